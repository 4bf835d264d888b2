package output

import (
	"encoding/csv"
	"io"

	"emperror.dev/errors"
	"github.com/Scalingo/github-repo-stats/model"
)

// CSVWriter streams repository rows as CSV, the header being written before the first row
// every row is flushed immediately so nothing accumulates in memory
type CSVWriter struct {
	csv           *csv.Writer
	headerWritten bool
	count         int
}

func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{
		csv: csv.NewWriter(w),
	}
}

// Write projects the repository into a row and writes it
func (w *CSVWriter) Write(repo model.Repository) error {
	if err := w.WriteHeader(); err != nil {
		return err
	}

	if err := w.csv.Write(repo.ToRow().Record()); err != nil {
		return errors.Wrapf(err, "failed to write repository %s", repo.Name)
	}

	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return errors.Wrapf(err, "failed to write repository %s", repo.Name)
	}

	w.count++
	return nil
}

// WriteHeader writes the header line once, an empty listing still gets a header
func (w *CSVWriter) WriteHeader() error {
	if w.headerWritten {
		return nil
	}

	if err := w.csv.Write(model.RowHeader); err != nil {
		return errors.Wrap(err, "failed to write header")
	}

	w.headerWritten = true
	return nil
}

// Count returns the number of rows written, header excluded
func (w *CSVWriter) Count() int {
	return w.count
}

// Close writes the header if nothing was written yet and flushes
func (w *CSVWriter) Close() error {
	if err := w.WriteHeader(); err != nil {
		return err
	}

	w.csv.Flush()
	return w.csv.Error()
}
