// Package recordio stores records in a flat file: each record is a uvarint
// length followed by a protobuf-wire message {1: data, 2: label, 3: key}.
// Files may be zstd-compressed as a whole; the reader detects the zstd
// frame magic and decompresses transparently.
package recordio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/encoding/protowire"

	"imagefeed/internal/logging"
	"imagefeed/source"
)

const (
	fieldData  protowire.Number = 1
	fieldLabel protowire.Number = 2
	fieldKey   protowire.Number = 3

	// MaxRecordSize bounds a single frame so a corrupt length cannot
	// trigger a huge allocation.
	MaxRecordSize = 64 << 20
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Source reads a record file from the start and wraps around at EOF.
type Source struct {
	path string

	mu   sync.Mutex
	f    *os.File
	zr   *zstd.Decoder
	br   *bufio.Reader
	pass uint64 // records read in the current pass
}

func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("recordio: %w", err)
	}
	s := &Source{path: path, f: f, br: bufio.NewReaderSize(f, 1<<16)}
	head, err := s.br.Peek(len(zstdMagic))
	if err == nil && bytes.Equal(head, zstdMagic) {
		if s.zr, err = zstd.NewReader(s.br); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("recordio: zstd: %w", err)
		}
		s.br = bufio.NewReaderSize(s.zr, 1<<16)
	}
	logging.L().Info("recordio source opened", "path", path, "zstd", s.zr != nil)
	return s, nil
}

func (s *Source) Next(ctx context.Context) (source.Record, error) {
	if err := ctx.Err(); err != nil {
		return source.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return source.Record{}, source.ErrEndOfStream
	}
	rec, err := s.read()
	if errors.Is(err, io.EOF) {
		if s.pass == 0 {
			return source.Record{}, source.ErrEndOfStream
		}
		if err := s.rewind(); err != nil {
			return source.Record{}, err
		}
		rec, err = s.read()
	}
	if err != nil {
		return source.Record{}, err
	}
	s.pass++
	return rec, nil
}

func (s *Source) read() (source.Record, error) {
	size, err := binary.ReadUvarint(s.br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return source.Record{}, io.EOF
		}
		return source.Record{}, fmt.Errorf("recordio: frame header: %w", err)
	}
	if size > MaxRecordSize {
		return source.Record{}, fmt.Errorf("recordio: frame of %d bytes exceeds limit", size)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(s.br, buf); err != nil {
		return source.Record{}, fmt.Errorf("recordio: truncated frame: %w", err)
	}
	return ParseRecord(buf)
}

func (s *Source) rewind() error {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("recordio: rewind: %w", err)
	}
	s.pass = 0
	if s.zr == nil {
		s.br.Reset(s.f)
		return nil
	}
	if err := s.zr.Reset(s.f); err != nil {
		return fmt.Errorf("recordio: rewind: %w", err)
	}
	s.br.Reset(s.zr)
	return nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	if s.zr != nil {
		s.zr.Close()
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// AppendRecord appends the wire payload of r (without frame length).
func AppendRecord(b []byte, r source.Record) []byte {
	b = protowire.AppendTag(b, fieldData, protowire.BytesType)
	b = protowire.AppendBytes(b, r.Data)
	b = protowire.AppendTag(b, fieldLabel, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(r.Label)))
	if r.Key != "" {
		b = protowire.AppendTag(b, fieldKey, protowire.BytesType)
		b = protowire.AppendString(b, r.Key)
	}
	return b
}

func ParseRecord(b []byte) (source.Record, error) {
	var r source.Record
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return r, fmt.Errorf("recordio: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldData && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, fmt.Errorf("recordio: data: %w", protowire.ParseError(n))
			}
			r.Data, b = v, b[n:]
		case num == fieldLabel && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return r, fmt.Errorf("recordio: label: %w", protowire.ParseError(n))
			}
			r.Label, b = int32(v), b[n:]
		case num == fieldKey && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return r, fmt.Errorf("recordio: key: %w", protowire.ParseError(n))
			}
			r.Key, b = v, b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return r, fmt.Errorf("recordio: field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return r, nil
}

func init() {
	source.Register("recordio", func(o source.Options) (source.Source, error) { return Open(o.DB) })
}
