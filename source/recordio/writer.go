package recordio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"imagefeed/source"
)

// Writer produces files readable by Source.
type Writer struct {
	bw    *bufio.Writer
	zw    *zstd.Encoder
	owned io.Closer
	buf   []byte
}

func NewWriter(w io.Writer, compress bool) (*Writer, error) {
	out := &Writer{}
	if compress {
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("recordio: zstd: %w", err)
		}
		out.zw = zw
		w = zw
	}
	out.bw = bufio.NewWriterSize(w, 1<<16)
	return out, nil
}

// Create writes a new record file at path, truncating any existing one.
func Create(path string, compress bool) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("recordio: %w", err)
	}
	w, err := NewWriter(f, compress)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.owned = f
	return w, nil
}

func (w *Writer) Write(r source.Record) error {
	w.buf = AppendRecord(w.buf[:0], r)
	var hdr [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(hdr[:], uint64(len(w.buf)))
	if _, err := w.bw.Write(hdr[:n]); err != nil {
		return err
	}
	_, err := w.bw.Write(w.buf)
	return err
}

func (w *Writer) Close() error {
	err := w.bw.Flush()
	if w.zw != nil {
		if cerr := w.zw.Close(); err == nil {
			err = cerr
		}
	}
	if w.owned != nil {
		if cerr := w.owned.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
