// Package rest exposes the models of a data package as a read-only REST API.
//
// A ResourcesMaker builds two resources per model and registers them on an httputil.Router
// under the base URL (default /api):
//
//	Route                              | Key            | Response
//	-----------------------------------|----------------|------------------------------
//	GET /api/{package}/{resource}      | {resource}List | JSON array of instances
//	GET /api/{package}/{resource}/{pk} | {resource}     | JSON object, 404 if absent
//	GET /api/{package}                 |                | index of resources and fields
//
// Path segments are storage ids. Instances are rendered through the resource projection:
// `_uid` followed by one camelCase property per schema field.
//
// Query parameters of the collection route:
//
//	Parameter         | Description
//	------------------|------------------------------------------------
//	?{property}=v     | Keep instances whose property is one of the given values (repeatable)
//	?page=0           | Zero-based page number (default: 0)
//	?per_page=100     | Page size (default: 100)
//	?select=a,b       | Render only a and b
//	?select=-a        | Render every property except a
//
// Both routes accept `select`. A selection that leaves no property renders all of them.
// Malformed parameters answer 400, storage failures 500 and backends without query support 501.
//
// Example usage:
//
//	models := dal.NewModelsMaker(pkg, backend)
//	server, err := rest.NewServer(rest.NewResourcesMaker(models))
//	if err != nil {
//		log.Fatal(err)
//	}
//	log.Fatal(server.Start(ctx, ":8080"))
package rest
