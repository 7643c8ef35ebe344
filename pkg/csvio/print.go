package csvio

import (
	"fmt"
	"io"
	"os"

	"github.com/tablemesh/tablemesh/pkg/kernel"
	"github.com/tablemesh/tablemesh/pkg/status"
	"github.com/tablemesh/tablemesh/pkg/table"
	"github.com/tablemesh/tablemesh/pkg/tmctx"
)

// PrintToOStream renders rows [row1,row2) and columns [col1,col2) of the
// table registered under id to out, delimiter-separated, one line per row.
// If headers is non-empty it is written as a header line first; headers
// must have exactly as many entries as the table has columns, matching the
// original's validation (original_source's PrintToOStream returns
// IndexError otherwise).
func PrintToOStream(tctx *tmctx.Context, reg *table.Registry, id string, col1, col2, row1, row2 int, out io.Writer, delimiter rune, headers []string) error {
	t, err := reg.Get(id)
	if err != nil {
		return err
	}
	if headers != nil && len(headers) != t.NumCols() {
		return status.New(status.IndexError, "csvio: %d headers provided, table has %d columns", len(headers), t.NumCols())
	}
	if col1 < 0 || col2 > t.NumCols() || col1 > col2 {
		return status.New(status.IndexError, "csvio: column range [%d,%d) invalid for %d columns", col1, col2, t.NumCols())
	}

	var batch table.RecordBatch
	if len(t.Batches()) == 0 {
		batch, err = kernel.EmptyRecord(tctx.Allocator(), t.Schema())
	} else {
		batch, err = kernel.ConcatenateBatches(tctx.Allocator(), t.Batches())
	}
	if err != nil {
		return status.Wrap(status.ExecutionError, err, "csvio: concatenate table")
	}
	defer batch.Release()
	if row1 < 0 || row2 > int(batch.NumRows()) || row1 > row2 {
		return status.New(status.IndexError, "csvio: row range [%d,%d) invalid for %d rows", row1, row2, batch.NumRows())
	}

	if headers != nil {
		if err := writeDelimited(out, headers, delimiter); err != nil {
			return status.Wrap(status.IOError, err, "csvio: write header")
		}
	}

	cells := make([]string, col2-col1)
	for row := row1; row < row2; row++ {
		r := table.NewRow(batch, row)
		for i, col := 0, col1; col < col2; i, col = i+1, col+1 {
			v, err := r.Value(col)
			if err != nil {
				return err
			}
			if v == nil {
				cells[i] = ""
			} else {
				cells[i] = fmt.Sprint(v)
			}
		}
		if err := writeDelimited(out, cells, delimiter); err != nil {
			return status.Wrap(status.IOError, err, "csvio: write row %d", row)
		}
	}
	return nil
}

// Print is PrintToOStream to stdout with no custom headers.
func Print(tctx *tmctx.Context, reg *table.Registry, id string, col1, col2, row1, row2 int) error {
	return PrintToOStream(tctx, reg, id, col1, col2, row1, row2, os.Stdout, ',', nil)
}

func writeDelimited(out io.Writer, cells []string, delimiter rune) error {
	for i, c := range cells {
		if i > 0 {
			if _, err := fmt.Fprintf(out, "%c", delimiter); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(out, c); err != nil {
			return err
		}
	}
	_, err := io.WriteString(out, "\n")
	return err
}
