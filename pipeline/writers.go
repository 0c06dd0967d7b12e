package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aluiziolira/go-scrape-editions/models"
)

// exportFile replaces path wholesale on each write. The file is left alone
// until a finished report arrives, so a failed run keeps the last export.
type exportFile struct {
	path    string
	written bool
}

func newExportFile(path string) (exportFile, error) {
	if path == "" {
		return exportFile{}, errors.New("export path cannot be empty")
	}
	return exportFile{path: path}, nil
}

// replace streams encode into a temp file next to path, then renames it over
// path.
func (ef *exportFile) replace(encode func(w io.Writer) error) (err error) {
	if err := ensureDir(ef.path); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(ef.path), "."+filepath.Base(ef.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp export: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	buffered := bufio.NewWriter(tmp)
	if err := encode(buffered); err != nil {
		return err
	}
	if err := buffered.Flush(); err != nil {
		return fmt.Errorf("flush export: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("chmod export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close export: %w", err)
	}
	if err := os.Rename(tmp.Name(), ef.path); err != nil {
		return fmt.Errorf("replace %s: %w", ef.path, err)
	}
	ef.written = true
	return nil
}

// validate checks that this run produced the file. An empty file is fine: a
// page without editions exports zero records.
func (ef *exportFile) validate() error {
	if !ef.written {
		return fmt.Errorf("%s was not written", ef.path)
	}
	if _, err := os.Stat(ef.path); err != nil {
		return fmt.Errorf("stat export: %w", err)
	}
	return nil
}

// CSVWriter exports listings as CSV with a header row.
type CSVWriter struct {
	file exportFile
}

// NewCSVWriter prepares a CSV export to filename. Nothing is created until
// Write.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	file, err := newExportFile(filename)
	if err != nil {
		return nil, err
	}
	return &CSVWriter{file: file}, nil
}

var csvHeader = []string{"edition", "source_price", "price", "amount", "currency", "scraped_at"}

func (cw *CSVWriter) Write(report *models.Report) error {
	return cw.file.replace(func(w io.Writer) error {
		out := csv.NewWriter(w)
		if err := out.Write(csvHeader); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		for _, listing := range report.Listings {
			err := out.Write([]string{
				listing.Edition,
				strconv.Itoa(listing.SourcePrice),
				listing.Price,
				listing.Amount,
				listing.Currency,
				listing.ScrapedAt.Format(time.RFC3339),
			})
			if err != nil {
				return fmt.Errorf("write csv record: %w", err)
			}
		}
		out.Flush()
		return out.Error()
	})
}

func (cw *CSVWriter) Close() error    { return nil }
func (cw *CSVWriter) Validate() error { return cw.file.validate() }

// JSONWriter exports one JSON object per listing per line.
type JSONWriter struct {
	file exportFile
}

// NewJSONWriter prepares a JSONL export to filename. Nothing is created
// until Write.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	file, err := newExportFile(filename)
	if err != nil {
		return nil, err
	}
	return &JSONWriter{file: file}, nil
}

func (jw *JSONWriter) Write(report *models.Report) error {
	return jw.file.replace(func(w io.Writer) error {
		encoder := json.NewEncoder(w)
		for _, listing := range report.Listings {
			if err := encoder.Encode(listing); err != nil {
				return fmt.Errorf("encode json record: %w", err)
			}
		}
		return nil
	})
}

func (jw *JSONWriter) Close() error    { return nil }
func (jw *JSONWriter) Validate() error { return jw.file.validate() }

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
