// Package evergreen embeds the Evergreen hybrid retrieval engine in a Go
// program. The client talks to the same backends as the HTTP server
// (Redis with search and graph modules, optionally pgvector) and runs
// ingestion and retrieval in-process.
//
//	client, _ := evergreen.New(ctx,
//	    evergreen.WithRedis("localhost:6379", ""),
//	    evergreen.WithOllama("http://localhost:11434", "nomic-embed-text", 768),
//	)
//	defer client.Close()
//
//	acme := client.Tenant("acme")
//	rec := acme.Ingest(ctx, evergreen.Document{
//	    ID:         "msg-1",
//	    SourceKind: evergreen.Slack,
//	    SourceID:   "C0123/1700000000.0001",
//	    Body:       "Jane Doe from Acme Corp owns the billing migration.",
//	})
//	res, _ := acme.Query(ctx, "who owns billing?", evergreen.TopK(5))
//
// A client can also be built from the server's YAML configuration with
// WithEnv or WithConfigFile; later options override file values.
package evergreen
