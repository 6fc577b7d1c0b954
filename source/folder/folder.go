// Package folder reads images laid out as <root>/<class>/<file>. The label
// of a file is the index of its class directory in lexical order.
package folder

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"imagefeed/internal/logging"
	"imagefeed/source"
)

type entry struct {
	path  string
	label int32
}

// Source walks the file list in lexical order and wraps around at the end.
type Source struct {
	root    string
	classes []string

	mu    sync.Mutex
	files []entry
	pos   int
}

func Open(root string) (*Source, error) {
	dirs, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("folder: %w", err)
	}
	s := &Source{root: root}
	for _, d := range dirs {
		if !d.IsDir() || hidden(d.Name()) {
			continue
		}
		label := int32(len(s.classes))
		s.classes = append(s.classes, d.Name())
		err := filepath.WalkDir(filepath.Join(root, d.Name()), func(p string, e fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if e.IsDir() {
				if hidden(e.Name()) && p != filepath.Join(root, d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if e.Type().IsRegular() && !hidden(e.Name()) {
				s.files = append(s.files, entry{path: p, label: label})
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("folder: walk %s: %w", d.Name(), err)
		}
	}
	if len(s.files) == 0 {
		return nil, fmt.Errorf("folder: no images under %s", root)
	}
	logging.L().Info("folder source opened", "root", root, "classes", len(s.classes), "files", len(s.files))
	return s, nil
}

// Classes returns class names indexed by label.
func (s *Source) Classes() []string { return append([]string(nil), s.classes...) }

func (s *Source) Len() int { return len(s.files) }

func (s *Source) Next(ctx context.Context) (source.Record, error) {
	if err := ctx.Err(); err != nil {
		return source.Record{}, err
	}
	s.mu.Lock()
	if s.files == nil {
		s.mu.Unlock()
		return source.Record{}, source.ErrEndOfStream
	}
	if s.pos == len(s.files) {
		s.pos = 0
	}
	e := s.files[s.pos]
	s.pos++
	s.mu.Unlock()

	data, err := os.ReadFile(e.path)
	if err != nil {
		return source.Record{}, fmt.Errorf("folder: %w", err)
	}
	return source.Record{Key: recordKey(s.root, e.path), Data: data, Label: e.label}, nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	s.files = nil
	s.mu.Unlock()
	return nil
}

// recordKey is path relative to root, or path itself when no relative form
// exists.
func recordKey(root, path string) string {
	key, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return key
}

func hidden(name string) bool { return strings.HasPrefix(name, ".") }

func init() {
	source.Register("folder", func(o source.Options) (source.Source, error) { return Open(o.DB) })
}
