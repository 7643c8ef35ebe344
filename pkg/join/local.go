// Package join implements the local hash join and the streaming ArrowJoin
// operator (spec.md §4.5's local half, §4.6). The build/probe shape is
// grounded on the other_examples hash-join classic operator: build an
// in-memory hash table over the left side keyed by the join column, then
// probe it with the right side's rows. The left side is always the build
// side, whichever side is smaller.
package join

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/pkg/errors"

	"github.com/tablemesh/tablemesh/pkg/config"
	"github.com/tablemesh/tablemesh/pkg/kernel"
)

// Local performs config.Kind's equi-join of left and right on their
// respective key columns, returning a batch whose schema is left's fields
// followed by right's fields — both key columns retained, matching
// spec.md §4.5's "key columns retained per side, outer-side columns
// nullable for non-inner kinds".
func Local(mem memory.Allocator, left, right arrow.Record, cfg config.JoinConfig) (arrow.Record, error) {
	if cfg.Algorithm != config.Hash {
		return nil, errors.New("join: only the hash algorithm is implemented")
	}
	if cfg.LeftColumnIndex < 0 || cfg.LeftColumnIndex >= int(left.NumCols()) {
		return nil, errors.Errorf("join: left column %d out of range [0,%d)", cfg.LeftColumnIndex, left.NumCols())
	}
	if cfg.RightColumnIndex < 0 || cfg.RightColumnIndex >= int(right.NumCols()) {
		return nil, errors.Errorf("join: right column %d out of range [0,%d)", cfg.RightColumnIndex, right.NumCols())
	}

	buildIndex := make(map[string][]int)
	leftRows := int(left.NumRows())
	for i := 0; i < leftRows; i++ {
		key := kernel.RowKeyBytes(left, i, []int{cfg.LeftColumnIndex})
		buildIndex[key] = append(buildIndex[key], i)
	}

	leftMatched := make([]bool, leftRows)
	var leftIdx, rightIdx []int

	rightRows := int(right.NumRows())
	for j := 0; j < rightRows; j++ {
		key := kernel.RowKeyBytes(right, j, []int{cfg.RightColumnIndex})
		matches := buildIndex[key]
		if len(matches) == 0 {
			if cfg.Kind == config.Right || cfg.Kind == config.Full {
				leftIdx = append(leftIdx, -1)
				rightIdx = append(rightIdx, j)
			}
			continue
		}
		for _, i := range matches {
			leftMatched[i] = true
			leftIdx = append(leftIdx, i)
			rightIdx = append(rightIdx, j)
		}
	}

	if cfg.Kind == config.Left || cfg.Kind == config.Full {
		for i := 0; i < leftRows; i++ {
			if !leftMatched[i] {
				leftIdx = append(leftIdx, i)
				rightIdx = append(rightIdx, -1)
			}
		}
	}

	leftOut, err := kernel.TakeByIndicesNullable(mem, left, leftIdx)
	if err != nil {
		return nil, errors.Wrap(err, "join: materialize left side")
	}
	defer leftOut.Release()
	rightOut, err := kernel.TakeByIndicesNullable(mem, right, rightIdx)
	if err != nil {
		return nil, errors.Wrap(err, "join: materialize right side")
	}
	defer rightOut.Release()

	return combineSides(mem, leftOut, rightOut, cfg.Kind)
}

// combineSides concatenates left's and right's columns side by side into
// one record. Both inputs must have the same row count (Local guarantees
// this: leftOut and rightOut are built from parallel index vectors).
func combineSides(mem memory.Allocator, left, right arrow.Record, kind config.JoinKind) (arrow.Record, error) {
	if left.NumRows() != right.NumRows() {
		return nil, errors.Errorf("join: side row counts disagree: %d vs %d", left.NumRows(), right.NumRows())
	}

	fields := make([]arrow.Field, 0, int(left.NumCols())+int(right.NumCols()))
	cols := make([]arrow.Array, 0, cap(fields))
	for i := 0; i < int(left.NumCols()); i++ {
		f := left.Schema().Field(i)
		if kind == config.Right || kind == config.Full {
			f.Nullable = true
		}
		fields = append(fields, f)
		cols = append(cols, left.Column(i))
	}
	for i := 0; i < int(right.NumCols()); i++ {
		f := right.Schema().Field(i)
		if kind == config.Left || kind == config.Full {
			f.Nullable = true
		}
		fields = append(fields, f)
		cols = append(cols, right.Column(i))
	}

	schema := arrow.NewSchema(fields, nil)
	return array.NewRecord(schema, cols, left.NumRows()), nil
}
