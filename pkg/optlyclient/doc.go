// Package optlyclient provides the primary entry point for constructing an
// Optimizely client that implements the optly.Client interface.
//
// It layers endpoint defaults, HTTP transport, retries and bearer token
// authentication on top of the interfaces and types defined in the optly
// package.
//
// Quick start
//
//	import (
//	  "context"
//	  "log"
//
//	  "github.com/fivetwenty-io/optly/pkg/optly"
//	  "github.com/fivetwenty-io/optly/pkg/optlyclient"
//	)
//
//	func example() {
//	  ctx := context.Background()
//
//	  cli, err := optlyclient.New(&optly.Config{
//	    AccessToken: "2:abc...", // personal access token
//	    ProjectID:   12345,
//	    AccountID:   67890,
//	  })
//	  if err != nil { log.Fatal(err) }
//	  defer cli.Close()
//
//	  res, err := cli.Get(ctx, []optly.AssetType{optly.AssetTypeAudience}, &optly.GetOptions{
//	    IncludeArchived: true,
//	  })
//	  if err != nil { log.Fatal(err) }
//
//	  if err := res.ListIDs("id").Err(); err != nil { log.Fatal(err) }
//	  for _, id := range res.IDs() {
//	    log.Println(id)
//	  }
//	}
//
// Endpoints
//
// APIEndpoint defaults to https://api.optimizely.com and EventsEndpoint to
// https://logx.optimizely.com/v1/events. Endpoints without a scheme get
// https:// prepended and a trailing slash is removed.
//
// Caching
//
// Set Config.Cache to cache detail responses fetched by GetOptions.AllAssetData:
//
//	cache := optly.NewCacheBuilder().WithType(optly.CacheTypeMemory).WithMemoryConfig(500).Config()
//	cli, err := optlyclient.New(&optly.Config{AccessToken: token, ProjectID: 1, Cache: cache})
//
// Errors
//
// API failures are returned as *optly.APIError; use optly.IsNotFound,
// optly.IsUnauthorized and friends to branch on them.
package optlyclient
