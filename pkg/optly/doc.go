// Package optly provides types, interfaces, and helpers for working with the
// Optimizely REST API and Event API.
//
// # Overview
//
// The optly package defines the domain types (Asset, AssetType, Table, the
// Event API payload types) and the Client interface. A concrete implementation
// is provided by the optlyclient package, which wires configuration,
// transport and authentication. Most consumers import optlyclient to build a
// client and then work with the Result values it returns.
//
// Getting a client
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
//	  cli, err := optlyclient.New(&optly.Config{
//	    AccessToken: "token",
//	    ProjectID:   12345,
//	  })
//	  if err != nil { log.Fatal(err) }
//
//	  res, err := cli.Get(ctx, []optly.AssetType{optly.AssetTypeExperiment}, nil)
//	  if err != nil { log.Fatal(err) }
//
//	  res.Filter(map[string]string{"status": "running"}).ListIDs("id")
//	  if err := res.Err(); err != nil { log.Fatal(err) }
//	  ids := res.IDs()
//	  _ = ids
//	}
//
// # Search and pagination
//
// Client.Get walks the /v2/search endpoint one page at a time until the Link
// header stops advertising a rel="last" page. With GetOptions.IncludeArchived
// a second pass collects archived assets; with GetOptions.AllAssetData each
// hit is re-fetched through its detail endpoint.
//
// # Event payloads
//
// Client.ReadCSV loads event rows into a tabular Result. ConstructPayload
// groups the rows by visitor, converts them into the Event API schema and
// optionally posts the JSON:
//
//	res, err := cli.ReadCSV("events.csv", ',')
//	if err != nil { /* handle error */ }
//	status, payload, err := res.ConstructPayload(ctx, optly.DefaultPayloadOptions())
//
// # Errors
//
// Filter and ListIDs record a missing field on the Result instead of
// returning it; check Result.Err after chaining them.
//
// API errors are represented by APIError. Helpers such as IsNotFound,
// IsUnauthorized and IsRateLimited make it easy to branch on common cases.
//
// # Caching
//
// Detail responses can be cached in memory, in a NATS JetStream key-value
// bucket, or in a chain of both. See CacheConfig and NewCacheFromConfig.
package optly
