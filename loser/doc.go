// Package loser implements a tournament tree (also known as a loser tree) for merging
// sorted sequences. It is based on the work by Bryan Boreham
// (https://github.com/bboreham/go-loser).
//
// The tree is laid out in an array: for node N its children are 2N and 2N+1, the M
// leaves live in positions M to 2M-1, the internal nodes in 1 to M-1 and node 0 holds
// the current winner. Each internal node keeps the loser of the game played below it,
// so advancing the winning sequence replays only the games on its path to the root,
// O(log M) comparisons per element.
//
// Exhausted sequences lose every game, so no sentinel maximum value is needed. Equal
// elements are yielded in sequence order.
//
// Basic usage:
//
//	tree := loser.New([]iter.Seq[int]{
//	    slices.Values([]int{1, 4, 7}),
//	    slices.Values([]int{2, 5, 8}),
//	}, cmp.Compare[int])
//
//	for v := range tree.All() {
//	    fmt.Println(v)
//	}
package loser
