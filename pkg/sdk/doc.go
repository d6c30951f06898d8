// Package knnsearch is an embeddable Go client for semantic product search
// over Redis Stack or Valkey with search modules.
//
// Documents are JSON objects, one per line. Each description is embedded and
// stored next to the document; queries are embedded in query mode and answered
// with KNN over the stored vectors.
//
//	client, _ := knnsearch.New(ctx,
//	    knnsearch.WithRedis("localhost:6379", ""),
//	    knnsearch.WithEmbedder(myEmbedder),
//	    knnsearch.WithDimensions(768),
//	)
//	defer client.Close()
//
//	report, _ := client.IndexFile(ctx, "products", "catalog.jsonl")
//	hits, _ := client.Search(ctx, "products", "waterproof boots", 3, 5)
package knnsearch
