package loser

import (
	"iter"
)

// New returns a tree merging sequences, each of which must already be sorted by cmp.
func New[E any](sequences []iter.Seq[E], cmp func(E, E) int) *Tree[E] {
	return &Tree[E]{
		nodes:     make([]node[E], len(sequences)*2),
		sequences: sequences,
		cmp:       cmp,
	}
}

// Tree merges sorted sequences. A tree can be iterated once.
type Tree[E any] struct {
	nodes     []node[E]
	sequences []iter.Seq[E]
	cmp       func(E, E) int
}

type node[E any] struct {
	index int              // The loser for all nodes except the 0th, where it is the winner.
	value E                // Value copied from the loser node, or winner for node 0.
	done  bool             // Set on leaves whose sequence is exhausted.
	next  func() (E, bool) // Only populated for leaf nodes.
}

func (t *Tree[E]) moveNext(index int) {
	n := &t.nodes[index]
	if v, ok := n.next(); ok {
		n.value = v
		return
	}
	var zero E
	n.value = zero
	n.done = true
}

// All yields the merged elements in order.
func (t *Tree[E]) All() iter.Seq[E] {
	return func(yield func(E) bool) {
		if len(t.nodes) == 0 {
			return
		}
		m := len(t.sequences)
		for i, s := range t.sequences {
			next, stop := iter.Pull(s)
			t.nodes[i+m].next = next
			t.nodes[i+m].index = i + m
			//nolint:gocritic // stopped when the merge returns.
			defer stop()
			t.moveNext(i + m)
		}
		t.initialize()
		for !t.nodes[t.nodes[0].index].done && yield(t.nodes[0].value) {
			t.moveNext(t.nodes[0].index)
			t.replayGames(t.nodes[0].index)
		}
	}
}

func (t *Tree[E]) initialize() {
	winner := t.playGame(1)
	t.nodes[0].index = winner
	t.nodes[0].value = t.nodes[winner].value
}

// beats reports whether leaf a wins against leaf b.
func (t *Tree[E]) beats(a, b int) bool {
	na, nb := &t.nodes[a], &t.nodes[b]
	switch {
	case na.done:
		return false
	case nb.done:
		return true
	}
	c := t.cmp(na.value, nb.value)
	return c < 0 || (c == 0 && a < b)
}

// Find the winner at position pos; if it is a non-leaf node, store the loser.
// pos must be >= 1 and < len(t.nodes).
func (t *Tree[E]) playGame(pos int) int {
	nodes := t.nodes
	if pos >= len(nodes)/2 {
		return pos
	}
	left := t.playGame(pos * 2)
	right := t.playGame(pos*2 + 1)
	loser, winner := left, right
	if t.beats(left, right) {
		loser, winner = right, left
	}
	nodes[pos].index = loser
	nodes[pos].value = nodes[loser].value
	return winner
}

// Starting at pos, which is a winner, re-consider all games up to the root.
func (t *Tree[E]) replayGames(pos int) {
	nodes := t.nodes
	for n := parent(pos); n != 0; n = parent(n) {
		node := &nodes[n]
		if t.beats(node.index, pos) {
			// Record pos as the loser here, and the old loser is the new winner.
			node.index, pos = pos, node.index
			node.value = nodes[node.index].value
		}
	}
	nodes[0].index = pos
	nodes[0].value = nodes[pos].value
}

func parent(i int) int { return i >> 1 }
