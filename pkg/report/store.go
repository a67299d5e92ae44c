package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/absmach/hubnspoke/pkg/atomicfile"
)

// Store keeps one report file per node in a directory.
type Store struct {
	dir string
	mu  sync.Mutex
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path is the report file of the named node. Spaces are dropped from the
// name, so "Node One" is stored as NodeOne.json.
func (s *Store) Path(node string) (string, error) {
	name := FileName(node)
	if name == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidNodeName, node)
	}

	return filepath.Join(s.dir, name+".json"), nil
}

func (s *Store) Get(node string) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.Path(node)
	if err != nil {
		return Report{}, err
	}

	return read(path)
}

// Check reports whether AppendOrCreate would accept rec for node, without
// writing anything. A node without a report accepts any record.
func (s *Store) Check(node string, rec Record) error {
	if _, ok := rec[TestDiceScoresKey]; ok {
		return fmt.Errorf("%w: %s", ErrReservedKey, TestDiceScoresKey)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.Path(node)
	if err != nil {
		return err
	}

	rep, err := read(path)
	switch {
	case errors.Is(err, ErrReportNotFound):
		return nil
	case err != nil:
		return err
	default:
		return sameKeys(rep, rec)
	}
}

// AppendOrCreate adds one round of metrics to the node's report, creating
// the report with single-element lists if it does not exist. The record must
// carry exactly the metric keys already stored; otherwise nothing is written.
func (s *Store) AppendOrCreate(node string, rec Record) (Report, error) {
	if _, ok := rec[TestDiceScoresKey]; ok {
		return Report{}, fmt.Errorf("%w: %s", ErrReservedKey, TestDiceScoresKey)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.Path(node)
	if err != nil {
		return Report{}, err
	}

	rep, err := read(path)
	switch {
	case errors.Is(err, ErrReportNotFound):
		rep = Report{Metrics: make(map[string][]any, len(rec))}
		for k, v := range rec {
			rep.Metrics[k] = []any{v}
		}
	case err != nil:
		return Report{}, err
	default:
		if err := sameKeys(rep, rec); err != nil {
			return Report{}, err
		}
		for k, v := range rec {
			rep.Metrics[k] = append(rep.Metrics[k], v)
		}
	}

	if err := write(path, rep); err != nil {
		return Report{}, err
	}

	return rep, nil
}

// PatchTestResult replaces the evaluation result of an existing report.
func (s *Store) PatchTestResult(node string, scores any) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.Path(node)
	if err != nil {
		return Report{}, err
	}

	rep, err := read(path)
	if err != nil {
		return Report{}, err
	}
	rep.TestDiceScores = scores

	if err := write(path, rep); err != nil {
		return Report{}, err
	}

	return rep, nil
}

func sameKeys(rep Report, rec Record) error {
	var missing, extra []string
	for k := range rep.Metrics {
		if _, ok := rec[k]; !ok {
			missing = append(missing, k)
		}
	}
	for k := range rec {
		if _, ok := rep.Metrics[k]; !ok {
			extra = append(extra, k)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}

	return fmt.Errorf("%w: missing %v, unexpected %v", ErrMetricsMismatch, missing, extra)
}

func read(path string) (Report, error) {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return Report{}, fmt.Errorf("%w: %s", ErrReportNotFound, filepath.Base(path))
	case err != nil:
		return Report{}, fmt.Errorf("failed to read report file: %w", err)
	}

	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return Report{}, fmt.Errorf("failed to unmarshal report %s: %w", filepath.Base(path), err)
	}

	return rep, nil
}

func write(path string, rep Report) error {
	data, err := json.MarshalIndent(rep, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	return atomicfile.WriteFile(path, data, 0o644)
}

// FileName is the report file base name of node: only the characters that
// are safe in a file name are kept. Distinct nodes must map to distinct names.
func FileName(node string) string {
	var b strings.Builder
	for _, r := range node {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
		}
	}

	return strings.Trim(b.String(), ".")
}
