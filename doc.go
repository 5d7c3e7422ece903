// Package catidx builds and queries keyed indexes over BGZF compressed,
// line-oriented catalogs.
//
// A build streams the catalog once, extracting one key per record together with
// the virtual offset of the record, stages the pairs on disk, loads them into a
// Pebble store in committed batches and then builds the key index in bulk. The
// index is verified against the scan before it is published by renaming it onto
// its destination, so a reader never sees a partial index.
//
// Basic usage:
//
//	summary, err := catidx.Build(ctx, catidx.Config{
//	    Catalog: "genes.tsv.bgz",
//	    Column:  -1,
//	    Path:    "GeneID",
//	    Dest:    "genes.GeneID.idx",
//	})
//
//	engine, err := lookup.Open("genes.GeneID.idx")
//	offsets, err := engine.LookupString(ctx, "672")
package catidx
