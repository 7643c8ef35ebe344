package kernel

import (
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/pkg/errors"
)

// SortIndices returns a stable permutation of [0, batch.NumRows()) that
// orders rows non-decreasing on column col. Nulls sort last. Feed the
// result to TakeByIndices to materialize the sorted batch (spec.md §4.9).
func SortIndices(batch arrow.Record, col int) ([]int, error) {
	if col < 0 || col >= int(batch.NumCols()) {
		return nil, errors.Errorf("kernel: sort column %d out of range [0,%d)", col, batch.NumCols())
	}
	less, err := lessFunc(batch.Column(col))
	if err != nil {
		return nil, err
	}

	n := int(batch.NumRows())
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(i, j int) bool {
		return less(indices[i], indices[j])
	})
	return indices, nil
}

// lessFunc returns a strict less-than comparator over row indices of arr,
// with null rows always ordering after every non-null row.
func lessFunc(arr arrow.Array) (func(i, j int) bool, error) {
	nullLast := func(i, j int) (bool, bool, bool) {
		ni, nj := arr.IsNull(i), arr.IsNull(j)
		if ni || nj {
			return true, !ni && nj, ni == nj
		}
		return false, false, false
	}

	switch a := arr.(type) {
	case *array.Int8:
		return func(i, j int) bool {
			if handled, less, tie := nullLast(i, j); handled {
				return !tie && less
			}
			return a.Value(i) < a.Value(j)
		}, nil
	case *array.Int16:
		return func(i, j int) bool {
			if handled, less, tie := nullLast(i, j); handled {
				return !tie && less
			}
			return a.Value(i) < a.Value(j)
		}, nil
	case *array.Int32:
		return func(i, j int) bool {
			if handled, less, tie := nullLast(i, j); handled {
				return !tie && less
			}
			return a.Value(i) < a.Value(j)
		}, nil
	case *array.Int64:
		return func(i, j int) bool {
			if handled, less, tie := nullLast(i, j); handled {
				return !tie && less
			}
			return a.Value(i) < a.Value(j)
		}, nil
	case *array.Uint8:
		return func(i, j int) bool {
			if handled, less, tie := nullLast(i, j); handled {
				return !tie && less
			}
			return a.Value(i) < a.Value(j)
		}, nil
	case *array.Uint16:
		return func(i, j int) bool {
			if handled, less, tie := nullLast(i, j); handled {
				return !tie && less
			}
			return a.Value(i) < a.Value(j)
		}, nil
	case *array.Uint32:
		return func(i, j int) bool {
			if handled, less, tie := nullLast(i, j); handled {
				return !tie && less
			}
			return a.Value(i) < a.Value(j)
		}, nil
	case *array.Uint64:
		return func(i, j int) bool {
			if handled, less, tie := nullLast(i, j); handled {
				return !tie && less
			}
			return a.Value(i) < a.Value(j)
		}, nil
	case *array.Float32:
		return func(i, j int) bool {
			if handled, less, tie := nullLast(i, j); handled {
				return !tie && less
			}
			return a.Value(i) < a.Value(j)
		}, nil
	case *array.Float64:
		return func(i, j int) bool {
			if handled, less, tie := nullLast(i, j); handled {
				return !tie && less
			}
			return a.Value(i) < a.Value(j)
		}, nil
	case *array.String:
		return func(i, j int) bool {
			if handled, less, tie := nullLast(i, j); handled {
				return !tie && less
			}
			return a.Value(i) < a.Value(j)
		}, nil
	case *array.Timestamp:
		return func(i, j int) bool {
			if handled, less, tie := nullLast(i, j); handled {
				return !tie && less
			}
			return a.Value(i) < a.Value(j)
		}, nil
	case *array.Date32:
		return func(i, j int) bool {
			if handled, less, tie := nullLast(i, j); handled {
				return !tie && less
			}
			return a.Value(i) < a.Value(j)
		}, nil
	default:
		return nil, errors.Errorf("kernel: unsupported sort column type %s", arr.DataType())
	}
}
