package rest

import (
	"net/http"

	"github.com/edgeflare/magicapi/pkg/httputil"
	"go.uber.org/zap"
)

// Index describes the resources of a package.
type Index struct {
	Name      string          `json:"name"`
	Title     string          `json:"title,omitempty"`
	Resources []IndexResource `json:"resources"`
}

type IndexResource struct {
	Name       string          `json:"name"`
	Title      string          `json:"title,omitempty"`
	List       string          `json:"list"`
	Single     string          `json:"single"`
	Properties []IndexProperty `json:"properties"`
}

type IndexProperty struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Field string `json:"field,omitempty"`
}

// Index returns the description served at the package route.
func (rm *ResourcesMaker) Index() (*Index, error) {
	resources, err := rm.Resources()
	if err != nil {
		return nil, err
	}

	pkg := rm.models.Package()
	idx := &Index{Name: pkg.Name, Title: pkg.Title, Resources: []IndexResource{}}
	for _, res := range resources {
		if res.Kind != KindList {
			continue
		}
		single, err := rm.GetResource(res.Model.Name)
		if err != nil {
			return nil, err
		}

		ir := IndexResource{
			Name:   res.Model.Name,
			Title:  res.Model.Resource.Title,
			List:   rm.baseURL + res.Path,
			Single: rm.baseURL + single.Path,
		}
		for _, prop := range res.Projection {
			ir.Properties = append(ir.Properties, IndexProperty{
				Name:  prop.Name,
				Type:  prop.Serializer.Name(),
				Field: prop.Field,
			})
		}
		idx.Resources = append(idx.Resources, ir)
	}
	return idx, nil
}

func (rm *ResourcesMaker) serveIndex(w http.ResponseWriter, _ *http.Request) {
	idx, err := rm.Index()
	if err != nil {
		rm.logger.Error("failed to build index", zap.Error(err))
		httputil.Error(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}
	httputil.JSON(w, http.StatusOK, idx)
}
