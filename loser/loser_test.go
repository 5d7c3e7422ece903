package loser_test

import (
	"cmp"
	"iter"
	"slices"
	"testing"

	"github.com/davidvella/catidx/loser"
	"github.com/stretchr/testify/assert"
)

func values[E any](v ...E) iter.Seq[E] {
	return slices.Values(v)
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name string
		args []iter.Seq[uint64]
		want []uint64
	}{
		{
			name: "empty input",
			want: nil,
		},
		{
			name: "one list",
			args: []iter.Seq[uint64]{values[uint64](1, 2, 3, 4)},
			want: []uint64{1, 2, 3, 4},
		},
		{
			name: "two lists",
			args: []iter.Seq[uint64]{values[uint64](3, 4, 5), values[uint64](1, 2)},
			want: []uint64{1, 2, 3, 4, 5},
		},
		{
			name: "two lists, first empty",
			args: []iter.Seq[uint64]{values[uint64](), values[uint64](1, 2)},
			want: []uint64{1, 2},
		},
		{
			name: "two lists, second empty",
			args: []iter.Seq[uint64]{values[uint64](1, 2), values[uint64]()},
			want: []uint64{1, 2},
		},
		{
			name: "all empty",
			args: []iter.Seq[uint64]{values[uint64](), values[uint64](), values[uint64]()},
			want: nil,
		},
		{
			name: "three lists interleaved",
			args: []iter.Seq[uint64]{values[uint64](1, 4, 7), values[uint64](2, 5, 8), values[uint64](3, 6, 9)},
			want: []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9},
		},
		{
			name: "duplicates across lists",
			args: []iter.Seq[uint64]{values[uint64](1, 1, 3), values[uint64](1, 2, 3), values[uint64](3)},
			want: []uint64{1, 1, 1, 2, 3, 3, 3},
		},
		{
			name: "five uneven lists",
			args: []iter.Seq[uint64]{
				values[uint64](10),
				values[uint64](1, 2, 3, 11, 12),
				values[uint64](),
				values[uint64](0, 20),
				values[uint64](5, 6),
			},
			want: []uint64{0, 1, 2, 3, 5, 6, 10, 11, 12, 20},
		},
		{
			name: "maximum values",
			args: []iter.Seq[uint64]{values[uint64](^uint64(0)), values[uint64](0, ^uint64(0))},
			want: []uint64{0, ^uint64(0), ^uint64(0)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := loser.New(tt.args, cmp.Compare[uint64])
			got := slices.Collect(tree.All())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergeStableForEqualElements(t *testing.T) {
	type item struct {
		key    string
		source int
	}
	byKey := func(a, b item) int { return cmp.Compare(a.key, b.key) }

	tree := loser.New([]iter.Seq[item]{
		values(item{"a", 0}, item{"b", 0}),
		values(item{"a", 1}, item{"b", 1}),
		values(item{"a", 2}),
	}, byKey)

	got := slices.Collect(tree.All())
	assert.Equal(t, []item{{"a", 0}, {"a", 1}, {"a", 2}, {"b", 0}, {"b", 1}}, got)
}

func TestMergeEarlyStop(t *testing.T) {
	tree := loser.New([]iter.Seq[int]{values(1, 3, 5), values(2, 4, 6)}, cmp.Compare[int])

	var got []int
	for v := range tree.All() {
		got = append(got, v)
		if v == 3 {
			break
		}
	}
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestMergeStrings(t *testing.T) {
	tree := loser.New([]iter.Seq[string]{
		values("apple", "dog", "zebra"),
		values("banana", "elephant"),
		values("cat", "fish"),
	}, cmp.Compare[string])

	assert.Equal(t,
		[]string{"apple", "banana", "cat", "dog", "elephant", "fish", "zebra"},
		slices.Collect(tree.All()))
}
