// Package sortrun implements the external sort used to build the key index.
//
// Index elements are accumulated in an in-memory B-tree. When the tree holds the
// configured number of elements it is flushed, in order, to a run file:
//
//	+--------------------------+
//	| magic header  (int64)    |
//	| format version (int64)   |
//	+--------------------------+
//	| lz4 frame of recordio    |
//	| index frames, ascending  |
//	+--------------------------+
//	| element count (int64)    |
//	| magic footer  (int64)    |
//	+--------------------------+
//
// Once every element has been added, the runs are merged with a loser tree, so each
// element is compared O(log runs) times and memory stays bounded by the run size.
// A sorter that never filled a run is served straight from memory.
package sortrun
