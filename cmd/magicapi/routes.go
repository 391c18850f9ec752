package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/edgeflare/magicapi/pkg/dal"
	"github.com/edgeflare/magicapi/pkg/dal/tabular"
	"github.com/edgeflare/magicapi/pkg/rest"
	"github.com/spf13/cobra"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Print the endpoints the API would serve",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pkg, err := loadPackage(cmd.Context())
		if err != nil {
			return err
		}

		// routes do not depend on storage, so no database is opened
		mm := dal.NewModelsMaker(pkg, tabular.New(logger), dal.WithPrefix(cfg.Prefix))
		rm := rest.NewResourcesMaker(mm, rest.WithBaseURL(cfg.REST.BaseURL))
		resources, err := rm.Resources()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tROUTE\tPROPERTIES")
		for _, res := range resources {
			fmt.Fprintf(w, "%s\t%s\t%d\n", res.Key, res.Pattern(rm.BaseURL()), len(res.Projection))
		}
		return w.Flush()
	},
}
