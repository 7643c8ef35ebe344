package csvio

import (
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	arrowcsv "github.com/apache/arrow-go/v18/arrow/csv"

	"github.com/tablemesh/tablemesh/pkg/config"
	"github.com/tablemesh/tablemesh/pkg/status"
	"github.com/tablemesh/tablemesh/pkg/table"
	"github.com/tablemesh/tablemesh/pkg/tmctx"
)

// WriteCSV serializes the table registered under id to path (spec.md §6's
// write_csv). A header row is written only when opts.OverrideColumnNames is
// set, matching the original's PrintToOStream: it only ever wrote a header
// line for the caller-supplied custom-header path, never for a table's own
// column names.
func WriteCSV(tctx *tmctx.Context, reg *table.Registry, id, path string, opts config.CSVWriteOptions) error {
	t, err := reg.Get(id)
	if err != nil {
		return err
	}

	outSchema := t.Schema()
	if opts.OverrideColumnNames {
		if len(opts.ColumnNames) != t.NumCols() {
			return status.New(status.IndexError, "csvio: %d column names provided, table has %d columns", len(opts.ColumnNames), t.NumCols())
		}
		fields := make([]arrow.Field, t.NumCols())
		for i, f := range t.Schema().Fields() {
			f.Name = opts.ColumnNames[i]
			fields[i] = f
		}
		outSchema = arrow.NewSchema(fields, nil)
	}

	f, err := os.Create(path)
	if err != nil {
		return status.Wrap(status.IOError, err, "csvio: create %s", path)
	}
	defer f.Close()

	delim := opts.Delimiter
	if delim == 0 {
		delim = ','
	}
	w := arrowcsv.NewWriter(f, outSchema, arrowcsv.WithComma(delim), arrowcsv.WithHeader(opts.OverrideColumnNames))

	for _, b := range t.Batches() {
		batch := b
		if opts.OverrideColumnNames {
			batch = array.NewRecord(outSchema, b.Columns(), b.NumRows())
		}
		if err := w.Write(batch); err != nil {
			return status.Wrap(status.IOError, err, "csvio: write batch to %s", path)
		}
	}
	if err := w.Flush(); err != nil {
		return status.Wrap(status.IOError, err, "csvio: flush %s", path)
	}
	return nil
}
