package csvio

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/tablemesh/tablemesh/pkg/config"
	"github.com/tablemesh/tablemesh/pkg/table"
	"github.com/tablemesh/tablemesh/pkg/tmctx"
)

var csvFields = []arrow.Field{
	{Name: "name", Type: arrow.BinaryTypes.String},
	{Name: "age", Type: arrow.PrimitiveTypes.Int64},
}

func TestFromReaderParsesRows(t *testing.T) {
	mem := memory.NewGoAllocator()
	data := "Alice,30\nBob,25\n"
	rec, err := fromReader(mem, strings.NewReader(data), csvFields, config.CSVReadOptions{Delimiter: ',', HasHeader: false})
	require.NoError(t, err)
	defer rec.Release()

	require.EqualValues(t, 2, rec.NumRows())
	names := rec.Column(0).(*array.String)
	require.Equal(t, "Alice", names.Value(0))
	require.Equal(t, "Bob", names.Value(1))
}

func TestFromCSVAndWriteCSVRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(path, []byte("Alice,30\nBob,25\n"), 0o644))

	tctx, err := tmctx.InitLoopback()
	require.NoError(t, err)
	reg := table.NewRegistry()

	id, err := FromCSV(tctx, reg, path, csvFields, config.CSVReadOptions{Delimiter: ',', HasHeader: false})
	require.NoError(t, err)

	outPath := filepath.Join(dir, "out.csv")
	require.NoError(t, WriteCSV(tctx, reg, id, outPath, config.DefaultCSVWriteOptions()))

	out, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, "Alice,30\nBob,25\n", string(out))
}

func TestReadCSVFilesConcurrentReadsEveryFile(t *testing.T) {
	dir := t.TempDir()
	path1 := filepath.Join(dir, "a.csv")
	path2 := filepath.Join(dir, "b.csv")
	require.NoError(t, os.WriteFile(path1, []byte("Alice,30\n"), 0o644))
	require.NoError(t, os.WriteFile(path2, []byte("Bob,25\n"), 0o644))

	tctx, err := tmctx.InitLoopback()
	require.NoError(t, err)
	reg := table.NewRegistry()

	opts := config.DefaultCSVReadOptions()
	opts.HasHeader = false
	opts.ConcurrentFileReads = true
	ids, err := ReadCSVFiles(context.Background(), tctx, reg, []string{path1, path2}, csvFields, opts)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	t1, err := reg.Get(ids[0])
	require.NoError(t, err)
	require.EqualValues(t, 1, t1.NumRows())
	t2, err := reg.Get(ids[1])
	require.NoError(t, err)
	require.EqualValues(t, 1, t2.NumRows())
}

func TestReadCSVFilesMissingFileFails(t *testing.T) {
	tctx, err := tmctx.InitLoopback()
	require.NoError(t, err)
	reg := table.NewRegistry()

	_, err = ReadCSVFiles(context.Background(), tctx, reg, []string{"/nonexistent/path.csv"}, csvFields, config.DefaultCSVReadOptions())
	require.Error(t, err)
}

func TestPrintToOStreamWritesHeaderOnlyWhenProvided(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(path, []byte("Alice,30\nBob,25\n"), 0o644))

	tctx, err := tmctx.InitLoopback()
	require.NoError(t, err)
	reg := table.NewRegistry()
	id, err := FromCSV(tctx, reg, path, csvFields, config.CSVReadOptions{Delimiter: ',', HasHeader: false})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, PrintToOStream(tctx, reg, id, 0, 2, 0, 2, &buf, ',', nil))
	require.Equal(t, "Alice,30\nBob,25\n", buf.String())

	buf.Reset()
	require.NoError(t, PrintToOStream(tctx, reg, id, 0, 2, 0, 1, &buf, ',', []string{"n", "a"}))
	require.Equal(t, "n,a\nAlice,30\n", buf.String())
}
