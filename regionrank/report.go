package regionrank

import (
	"bufio"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Report appends lines to the output file and mirrors them to the console when verbose.
type Report struct {
	path    string
	file    *os.File
	buf     *bufio.Writer
	console io.Writer
	verbose bool
	written int64
}

// CreateReport truncates or creates the file at path.
func CreateReport(path string, console io.Writer, verbose bool) (*Report, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not create report")
	}

	return &Report{
		path:    path,
		file:    file,
		buf:     bufio.NewWriter(file),
		console: console,
		verbose: verbose,
	}, nil
}

func (r *Report) Println(line string) error {
	n, err := r.buf.WriteString(line + "\n")
	r.written += int64(n)
	if err != nil {
		return errors.Wrapf(err, "could not write to %s", r.path)
	}

	if r.verbose && r.console != nil {
		if _, err := io.WriteString(r.console, line+"\n"); err != nil {
			return errors.Wrap(err, "could not write to console")
		}
	}

	return nil
}

func (r *Report) Path() string   { return r.path }
func (r *Report) Written() int64 { return r.written }

// Close flushes and closes the file. It is safe to call more than once.
func (r *Report) Close() error {
	if r.file == nil {
		return nil
	}

	flushErr := r.buf.Flush()
	closeErr := r.file.Close()
	r.file = nil

	if flushErr != nil {
		return errors.Wrapf(flushErr, "could not flush %s", r.path)
	}
	return errors.Wrapf(closeErr, "could not close %s", r.path)
}
