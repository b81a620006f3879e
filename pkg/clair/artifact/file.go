package artifact

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileWriter writes a line-oriented artifact file and knows how to append
// the matching file from partition directories during reduce.
type FileWriter struct {
	dir     string
	runPath string
	name    string

	file *os.File
	buf  *bufio.Writer
}

// NewFileWriter creates a writer for the file name inside artifact dir.
func NewFileWriter(dir, runPath, name string) *FileWriter {
	return &FileWriter{dir: dir, runPath: runPath, name: name}
}

// Path returns the file location.
func (w *FileWriter) Path() string { return filepath.Join(w.dir, w.name) }

// Open creates the directory and truncates the file.
func (w *FileWriter) Open() error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}
	file, err := os.Create(w.Path())
	if err != nil {
		return fmt.Errorf("creating %s: %w", w.Path(), err)
	}
	w.file = file
	w.buf = bufio.NewWriter(file)
	return nil
}

// WriteLine writes one record followed by a newline.
func (w *FileWriter) WriteLine(line []byte) error {
	if _, err := w.buf.Write(line); err != nil {
		return err
	}
	return w.buf.WriteByte('\n')
}

// Append copies the partition copies of this file into the open writer,
// in partition order.
func (w *FileWriter) Append(parts []string) error {
	for _, part := range parts {
		path := filepath.Join(PartPath(part, w.runPath, w.dir), w.name)
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening partition output %s: %w", path, err)
		}
		_, err = io.Copy(w.buf, file)
		file.Close()
		if err != nil {
			return fmt.Errorf("appending %s: %w", path, err)
		}
	}
	return nil
}

// Close flushes and closes the file.
func (w *FileWriter) Close() error {
	if w.file == nil {
		return nil
	}
	if err := w.buf.Flush(); err != nil {
		return err
	}
	return w.file.Close()
}
