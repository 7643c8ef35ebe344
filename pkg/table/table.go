// Package table holds the schema/batch/table types every operator in
// pkg/ops and pkg/join consumes, plus the Registry those operators
// register their results in.
package table

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/pkg/errors"

	"github.com/tablemesh/tablemesh/pkg/status"
)

// Schema is the ordered field list shared by every batch of a Table.
type Schema = *arrow.Schema

// RecordBatch is a schema plus one immutable, equal-length array per field.
// It is a direct alias for arrow.Record: the columnar array representation
// named as an external collaborator is arrow-go's own, so there is nothing
// for this package to wrap.
type RecordBatch = arrow.Record

// Table is a schema plus an ordered list of batches, logically equivalent
// to their concatenation. Tables are immutable: every operator that would
// mutate one instead builds and registers a new Table.
type Table struct {
	schema  *arrow.Schema
	batches []RecordBatch
}

// New builds a Table from a schema and its batches. Each batch retains a
// reference; the Table takes ownership and releases them on Release.
func New(schema *arrow.Schema, batches []RecordBatch) (*Table, error) {
	if schema == nil {
		return nil, status.New(status.Invalid, "table: schema is nil")
	}
	for i, b := range batches {
		if !b.Schema().Equal(schema) {
			return nil, status.New(status.Invalid, "table: batch %d schema does not match table schema", i)
		}
		b.Retain()
	}
	return &Table{schema: schema, batches: append([]RecordBatch(nil), batches...)}, nil
}

// FromRecordBatch builds a single-batch Table, taking the batch's schema as
// the table's schema.
func FromRecordBatch(batch RecordBatch) (*Table, error) {
	return New(batch.Schema(), []RecordBatch{batch})
}

func (t *Table) Schema() *arrow.Schema  { return t.schema }
func (t *Table) Batches() []RecordBatch { return t.batches }

// NumCols returns the field count. The original returns -1 on a missing
// table via a package-level lookup by id; here the receiver is always a
// valid handle, so there is no failure mode left to report.
func (t *Table) NumCols() int {
	return t.schema.NumFields()
}

// NumRows sums batch lengths.
func (t *Table) NumRows() int64 {
	var n int64
	for _, b := range t.batches {
		n += b.NumRows()
	}
	return n
}

// Retain increments the reference count of every batch.
func (t *Table) Retain() {
	for _, b := range t.batches {
		b.Retain()
	}
}

// Release decrements the reference count of every batch. Call once per
// Table obtained from New/FromRecordBatch. A Table returned by Registry.Get
// is not retained for the caller; the registry releases it on Remove.
func (t *Table) Release() {
	for _, b := range t.batches {
		b.Release()
	}
}

// SchemaCompatible reports whether two schemas are field-type compatible:
// same field count, pairwise equal types, names ignored. Used by Union
// (spec.md §4.7) which unions rows across tables with differently-named but
// type-compatible columns.
func SchemaCompatible(a, b *arrow.Schema) bool {
	if a.NumFields() != b.NumFields() {
		return false
	}
	for i := 0; i < a.NumFields(); i++ {
		if !arrow.TypeEqual(a.Field(i).Type, b.Field(i).Type) {
			return false
		}
	}
	return true
}

// Row is a transient, read-only view of one row of a batch, passed to
// Select's predicate (pkg/ops) in place of the original's caller-built
// boolean mask.
type Row struct {
	batch RecordBatch
	index int
}

// NewRow returns a view onto row index of batch. index must be in
// [0, batch.NumRows()).
func NewRow(batch RecordBatch, index int) Row {
	return Row{batch: batch, index: index}
}

func (r Row) NumCols() int { return int(r.batch.NumCols()) }

// Value returns the column's value at this row as an untyped Go value
// (nil for a null entry), using arrow's own array accessors so every
// logical type arrow-go supports is handled without a type switch here.
func (r Row) Value(col int) (interface{}, error) {
	if col < 0 || col >= int(r.batch.NumCols()) {
		return nil, errors.Errorf("table: column %d out of range [0,%d)", col, r.batch.NumCols())
	}
	arr := r.batch.Column(col)
	if arr.IsNull(r.index) {
		return nil, nil
	}
	return arr.GetOneForMarshal(r.index), nil
}
