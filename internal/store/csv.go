package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// ErrRecordNotFound is returned by Get when no persisted record matches.
var ErrRecordNotFound = errors.New("record not found")

// CSVStore appends records for one domain to a CSV file. The header row is
// written on first use. Writers to the same file are serialized by a mutex:
// concurrent sessions in one process must not interleave partial rows.
type CSVStore struct {
	spec   Spec
	path   string
	logger *slog.Logger

	mu  sync.Mutex
	ids *idGenerator
}

func NewCSVStore(spec Spec, path string, logger *slog.Logger) (*CSVStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &CSVStore{
		spec:   spec,
		path:   path,
		logger: logger,
		ids:    newIDGenerator(),
	}
	if err := s.ensureHeader(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *CSVStore) ensureHeader() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.path); err == nil {
		return nil
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("create %s store file: %w", s.spec.Domain, err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(s.spec.Columns); err != nil {
		return fmt.Errorf("write %s header: %w", s.spec.Domain, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s header: %w", s.spec.Domain, err)
	}
	s.logger.Info("created record store file", "domain", s.spec.Domain, "path", s.path)
	return nil
}

func (s *CSVStore) Save(_ context.Context, fields map[string]string) Result {
	if missing := s.spec.missingRequired(fields); len(missing) > 0 {
		return Result{Success: false, Missing: missing}
	}

	id, now := s.ids.next(s.spec.Prefix)
	rec := s.spec.row(id, fields, now)
	row := make([]string, len(s.spec.Columns))
	for i, col := range s.spec.Columns {
		row[i] = rec[col]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return Result{Err: fmt.Errorf("open %s store file: %w", s.spec.Domain, err)}
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		return Result{Err: fmt.Errorf("append %s record: %w", s.spec.Domain, err)}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return Result{Err: fmt.Errorf("flush %s record: %w", s.spec.Domain, err)}
	}

	s.logger.Info("record saved", "domain", s.spec.Domain, "id", id)
	return Result{Success: true, ID: id}
}

// Get scans all persisted records for id. O(n), acceptable at call volume.
func (s *CSVStore) Get(_ context.Context, id string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("open %s store file: %w", s.spec.Domain, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", s.spec.Domain, err)
	}
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil, ErrRecordNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("read %s record: %w", s.spec.Domain, err)
		}
		rec := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		if rec[s.spec.IDField] == id {
			return rec, nil
		}
	}
}

func (s *CSVStore) Close() error { return nil }
