package exchange

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/pkg/errors"
)

// kind tags a frame's payload, mirroring spec.md §4.3's control header
// { edge_id, source_rank, target_rank, kind }.
type kind byte

const (
	kindBatch kind = iota
	kindFin
)

// header is the fixed-size prefix of every frame this package puts on the
// wire. It is encoded manually (big-endian, fixed width) rather than with a
// generated message type: the teacher's Go framing
// (pkg/engine/internal/scheduler/wire's ProtobufProtocol) used a
// protobuf-encoded header, but this module has no protoc step available, so
// the header fields are written directly. See DESIGN.md.
type header struct {
	EdgeID int64
	Source int32
	Target int32
	Kind   kind
}

const headerSize = 8 + 4 + 4 + 1

func writeHeader(w io.Writer, h header) error {
	var buf [headerSize]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(h.EdgeID))
	binary.BigEndian.PutUint32(buf[8:12], uint32(h.Source))
	binary.BigEndian.PutUint32(buf[12:16], uint32(h.Target))
	buf[16] = byte(h.Kind)
	_, err := w.Write(buf[:])
	return err
}

func readHeader(r io.Reader) (header, error) {
	var buf [headerSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return header{}, err
	}
	return header{
		EdgeID: int64(binary.BigEndian.Uint64(buf[0:8])),
		Source: int32(binary.BigEndian.Uint32(buf[8:12])),
		Target: int32(binary.BigEndian.Uint32(buf[12:16])),
		Kind:   kind(buf[16]),
	}, nil
}

// peekEdgeID reads only the edge id from a frame without decoding the rest,
// so the demultiplexer can route a frame to its owning exchange without
// paying for an IPC decode it may not need yet.
func peekEdgeID(payload []byte) (int64, error) {
	if len(payload) < 8 {
		return 0, errors.New("exchange: frame shorter than header")
	}
	return int64(binary.BigEndian.Uint64(payload[0:8])), nil
}

// encodeFrame serializes h and, for a BATCH frame, batch's arrow IPC form
// (spec.md §4.3 wire framing: header followed by the columnar IPC payload).
func encodeFrame(mem memory.Allocator, h header, batch arrow.Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeHeader(&buf, h); err != nil {
		return nil, errors.Wrap(err, "exchange: write header")
	}
	if h.Kind != kindBatch {
		return buf.Bytes(), nil
	}
	w := ipc.NewWriter(&buf, ipc.WithSchema(batch.Schema()), ipc.WithAllocator(mem))
	if err := w.Write(batch); err != nil {
		return nil, errors.Wrap(err, "exchange: write ipc batch")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "exchange: close ipc writer")
	}
	return buf.Bytes(), nil
}

// decodeFrame is the inverse of encodeFrame. The returned record, if any,
// is retained for the caller and must be released by it.
func decodeFrame(mem memory.Allocator, payload []byte) (header, arrow.Record, error) {
	r := bytes.NewReader(payload)
	h, err := readHeader(r)
	if err != nil {
		return header{}, nil, errors.Wrap(err, "exchange: read header")
	}
	if h.Kind != kindBatch {
		return h, nil, nil
	}
	ipcReader, err := ipc.NewReader(r, ipc.WithAllocator(mem))
	if err != nil {
		return h, nil, errors.Wrap(err, "exchange: open ipc reader")
	}
	defer ipcReader.Release()
	if !ipcReader.Next() {
		return h, nil, errors.New("exchange: empty ipc stream in batch frame")
	}
	rec := ipcReader.Record()
	rec.Retain()
	return h, rec, nil
}
