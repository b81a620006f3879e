package pipeline

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/cognicore/clair/pkg/clair/internalerr"
)

// Source feeds items into a pipeline. Next returns io.EOF when the input
// is exhausted. Count returns the total number of items the source would
// yield from the start; it may read the input to do so.
type Source interface {
	Name() string
	Next() (Item, error)
	Count() (int, error)
}

// Peeker is implemented by sources that can look at the next item without
// consuming it.
type Peeker interface {
	Peek() (Item, error)
}

// ItemReader reads items from one input file.
type ItemReader interface {
	Next() (Item, error)
	Close() error
}

// OpenFunc opens one input file as an item reader.
type OpenFunc func(path string) (ItemReader, error)

// GlobSource iterates the items of every file matching a list of glob
// patterns, in sorted file order.
type GlobSource struct {
	name   string
	files  []string
	open   OpenFunc
	index  int
	reader ItemReader
	peeked Item
	read   int
}

// NewGlobSource expands the patterns and validates that each matches at
// least one file.
func NewGlobSource(name string, patterns []string, open OpenFunc) (*GlobSource, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, internalerr.Config("bad glob pattern '%s': %v", pattern, err)
		}
		if len(matches) == 0 {
			return nil, internalerr.Config("No files match pattern '%s'", pattern)
		}
		sort.Strings(matches)
		files = append(files, matches...)
	}
	return &GlobSource{name: name, files: files, open: open}, nil
}

func (s *GlobSource) Name() string { return s.name }

// Next returns the next item, moving across file boundaries. A matched
// file with no items at all is a parse error.
func (s *GlobSource) Next() (Item, error) {
	if s.peeked != nil {
		item := s.peeked
		s.peeked = nil
		return item, nil
	}
	for {
		if s.reader == nil {
			if s.index >= len(s.files) {
				return nil, io.EOF
			}
			reader, err := s.open(s.files[s.index])
			if err != nil {
				return nil, err
			}
			s.reader = reader
			s.read = 0
		}
		item, err := s.reader.Next()
		if err == io.EOF {
			file := s.files[s.index]
			empty := s.read == 0
			s.closeReader()
			s.index++
			if empty {
				return nil, internalerr.Parse("no items in file %s", file)
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", s.files[s.index], err)
		}
		s.read++
		return item, nil
	}
}

// Peek returns the next item without consuming it.
func (s *GlobSource) Peek() (Item, error) {
	if s.peeked == nil {
		item, err := s.Next()
		if err != nil {
			return nil, err
		}
		s.peeked = item
	}
	return s.peeked, nil
}

// Count reads every file once and counts the items.
func (s *GlobSource) Count() (int, error) {
	count := 0
	for _, file := range s.files {
		reader, err := s.open(file)
		if err != nil {
			return 0, err
		}
		for {
			_, err := reader.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				reader.Close()
				return 0, fmt.Errorf("reading %s: %w", file, err)
			}
			count++
		}
		if err := reader.Close(); err != nil {
			return 0, err
		}
	}
	return count, nil
}

// Close releases the current file reader.
func (s *GlobSource) Close() error {
	return s.closeReader()
}

func (s *GlobSource) closeReader() error {
	if s.reader == nil {
		return nil
	}
	err := s.reader.Close()
	s.reader = nil
	return err
}

// SlicedSource restricts a source to the items in [start, stop). A stop
// of zero means the end of the input.
type SlicedSource struct {
	source  Source
	start   int
	stop    int
	skipped bool
	yielded int
}

// NewSlicedSource wraps source with item bounds.
func NewSlicedSource(source Source, start, stop int) *SlicedSource {
	return &SlicedSource{source: source, start: start, stop: stop}
}

func (s *SlicedSource) Name() string { return s.source.Name() }

func (s *SlicedSource) Next() (Item, error) {
	if !s.skipped {
		for i := 0; i < s.start; i++ {
			if _, err := s.source.Next(); err != nil {
				return nil, err
			}
		}
		s.skipped = true
	}
	if s.stop > 0 && s.yielded >= s.stop-s.start {
		return nil, io.EOF
	}
	item, err := s.source.Next()
	if err != nil {
		return nil, err
	}
	s.yielded++
	return item, nil
}

// Count returns the size of the slice given the underlying total.
func (s *SlicedSource) Count() (int, error) {
	total, err := s.source.Count()
	if err != nil {
		return 0, err
	}
	stop := s.stop
	if stop <= 0 || stop > total {
		stop = total
	}
	if s.start >= stop {
		return 0, nil
	}
	return stop - s.start, nil
}

// Peek delegates to the wrapped source when possible. Peeking does not
// honor the slice start; callers peek for metadata such as the language
// of the first record, which is uniform across the input.
func (s *SlicedSource) Peek() (Item, error) {
	if p, ok := s.source.(Peeker); ok {
		return p.Peek()
	}
	return nil, fmt.Errorf("source %s does not support peeking", s.source.Name())
}
