// Package recordio implements the binary frame format shared by the staging
// store and the sort spill runs. Every frame starts with three magic bytes that
// identify its kind, followed by a length-prefixed key and a fixed 8 byte offset.
//
// Basic usage:
//
//	var buf bytes.Buffer
//	n, err := recordio.WriteStaged(&buf, entry.Staged{Key: "BRCA1", Offset: 42})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	r := recordio.NewReader(&buf)
//	for e := range r.Staged() {
//	    fmt.Println(e.Key, e.Offset)
//	}
//	if err := r.Err(); err != nil {
//	    log.Fatal(err)
//	}
package recordio
