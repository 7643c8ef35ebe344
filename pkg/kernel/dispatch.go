// Package kernel implements the columnar primitives spec.md names as
// external collaborators: row-hash, row-compare, split-by-partition,
// take-by-indices, concatenate-batches, combine-chunks, and
// filter-by-mask. Every kernel that builds a new record (take, split,
// filter, empty record) dispatches per column type through a single builder
// factory; row-hash, row-compare and sort use their own type switches. The
// factory generalizes the teacher's per-type switch in
// pkg/engine/executor/filter.go from one boolean-mask consumer into the
// shared primitive every operator in pkg/ops builds on.
package kernel

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/pkg/errors"
)

// columnAppender copies one value at a time from a source array into a
// builder. Every kernel that produces a new record from a subset or
// reordering of an existing one is built by wiring rows through an
// appender per column, one builder factory per supported logical type.
type columnAppender struct {
	builder array.Builder
	// appendRow copies row `src` of the source array into the builder, or
	// appends null if the source value is null.
	appendRow func(src arrow.Array, row int)
}

// newColumnAppender returns a builder/appender pair for field's type.
// Extending the supported type set means adding one case here; every
// kernel in this package picks it up for free.
func newColumnAppender(field arrow.Field, mem memory.Allocator) (*columnAppender, error) {
	switch t := field.Type.(type) {
	case *arrow.BooleanType:
		b := array.NewBooleanBuilder(mem)
		return &columnAppender{b, func(src arrow.Array, row int) {
			appendOrNull(b, src, row, func() { b.Append(src.(*array.Boolean).Value(row)) })
		}}, nil

	case *arrow.Int8Type:
		b := array.NewInt8Builder(mem)
		return &columnAppender{b, func(src arrow.Array, row int) {
			appendOrNull(b, src, row, func() { b.Append(src.(*array.Int8).Value(row)) })
		}}, nil
	case *arrow.Int16Type:
		b := array.NewInt16Builder(mem)
		return &columnAppender{b, func(src arrow.Array, row int) {
			appendOrNull(b, src, row, func() { b.Append(src.(*array.Int16).Value(row)) })
		}}, nil
	case *arrow.Int32Type:
		b := array.NewInt32Builder(mem)
		return &columnAppender{b, func(src arrow.Array, row int) {
			appendOrNull(b, src, row, func() { b.Append(src.(*array.Int32).Value(row)) })
		}}, nil
	case *arrow.Int64Type:
		b := array.NewInt64Builder(mem)
		return &columnAppender{b, func(src arrow.Array, row int) {
			appendOrNull(b, src, row, func() { b.Append(src.(*array.Int64).Value(row)) })
		}}, nil

	case *arrow.Uint8Type:
		b := array.NewUint8Builder(mem)
		return &columnAppender{b, func(src arrow.Array, row int) {
			appendOrNull(b, src, row, func() { b.Append(src.(*array.Uint8).Value(row)) })
		}}, nil
	case *arrow.Uint16Type:
		b := array.NewUint16Builder(mem)
		return &columnAppender{b, func(src arrow.Array, row int) {
			appendOrNull(b, src, row, func() { b.Append(src.(*array.Uint16).Value(row)) })
		}}, nil
	case *arrow.Uint32Type:
		b := array.NewUint32Builder(mem)
		return &columnAppender{b, func(src arrow.Array, row int) {
			appendOrNull(b, src, row, func() { b.Append(src.(*array.Uint32).Value(row)) })
		}}, nil
	case *arrow.Uint64Type:
		b := array.NewUint64Builder(mem)
		return &columnAppender{b, func(src arrow.Array, row int) {
			appendOrNull(b, src, row, func() { b.Append(src.(*array.Uint64).Value(row)) })
		}}, nil

	case *arrow.Float32Type:
		b := array.NewFloat32Builder(mem)
		return &columnAppender{b, func(src arrow.Array, row int) {
			appendOrNull(b, src, row, func() { b.Append(src.(*array.Float32).Value(row)) })
		}}, nil
	case *arrow.Float64Type:
		b := array.NewFloat64Builder(mem)
		return &columnAppender{b, func(src arrow.Array, row int) {
			appendOrNull(b, src, row, func() { b.Append(src.(*array.Float64).Value(row)) })
		}}, nil

	case *arrow.StringType:
		b := array.NewStringBuilder(mem)
		return &columnAppender{b, func(src arrow.Array, row int) {
			appendOrNull(b, src, row, func() { b.Append(src.(*array.String).Value(row)) })
		}}, nil
	case *arrow.BinaryType:
		b := array.NewBinaryBuilder(mem, arrow.BinaryTypes.Binary)
		return &columnAppender{b, func(src arrow.Array, row int) {
			appendOrNull(b, src, row, func() { b.Append(src.(*array.Binary).Value(row)) })
		}}, nil

	case *arrow.TimestampType:
		b := array.NewTimestampBuilder(mem, t)
		return &columnAppender{b, func(src arrow.Array, row int) {
			appendOrNull(b, src, row, func() { b.Append(src.(*array.Timestamp).Value(row)) })
		}}, nil

	case *arrow.Date32Type:
		b := array.NewDate32Builder(mem)
		return &columnAppender{b, func(src arrow.Array, row int) {
			appendOrNull(b, src, row, func() { b.Append(src.(*array.Date32).Value(row)) })
		}}, nil

	default:
		return nil, errors.Errorf("kernel: unsupported column type %s", field.Type)
	}
}

func appendOrNull(b array.Builder, src arrow.Array, row int, appendValue func()) {
	if src.IsNull(row) {
		b.AppendNull()
		return
	}
	appendValue()
}

// newAppenders builds one columnAppender per field of schema.
func newAppenders(fields []arrow.Field, mem memory.Allocator) ([]*columnAppender, error) {
	out := make([]*columnAppender, len(fields))
	for i, f := range fields {
		a, err := newColumnAppender(f, mem)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

func releaseAppenders(appenders []*columnAppender) {
	for _, a := range appenders {
		if a != nil {
			a.builder.Release()
		}
	}
}

func finishAppenders(schema *arrow.Schema, appenders []*columnAppender, numRows int64) arrow.Record {
	cols := make([]arrow.Array, len(appenders))
	for i, a := range appenders {
		cols[i] = a.builder.NewArray()
	}
	return array.NewRecord(schema, cols, numRows)
}

// EqualLength returns the shared length of cols, or an error naming the
// first column whose length disagrees. HashPartition (pkg/ops) uses this to
// validate its key columns before deriving a partition vector (spec.md
// §4.2 step 1).
func EqualLength(cols []arrow.Array) (int64, error) {
	if len(cols) == 0 {
		return 0, nil
	}
	l := int64(cols[0].Len())
	for i, c := range cols {
		if int64(c.Len()) != l {
			return 0, errors.Errorf("kernel: column %d has length %d, want %d", i, c.Len(), l)
		}
	}
	return l, nil
}
