package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/i474232898/dmi-observation-cache/internal/observations"
)

var _ observations.DayStore = (*FileStore)(nil)

// dayFilePattern matches entries the store considers its own. Anything else in
// the directory (notes, temp files, sub-directories) is ignored.
var dayFilePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}\.json$`)

const dayFileExt = ".json"

// FileStore keeps one JSON file per cached day under dir.
//
// It assumes a single writer. Writes go through a temp file and a rename, so
// concurrent readers only ever see whole files.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at dir. The directory is created on
// first write, not here.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the backing directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(date observations.Date) string {
	return filepath.Join(s.dir, date.String()+dayFileExt)
}

// Exists reports whether a payload is cached for date.
func (s *FileStore) Exists(date observations.Date) bool {
	info, err := os.Stat(s.path(date))
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// Read returns the cached payload for date, or observations.ErrDayNotFound.
func (s *FileStore) Read(date observations.Date) (json.RawMessage, error) {
	raw, err := os.ReadFile(s.path(date))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", observations.ErrDayNotFound, date)
		}
		return nil, fmt.Errorf("reading %s: %w", date, err)
	}
	return json.RawMessage(raw), nil
}

// Write persists payload for date, replacing any earlier payload.
func (s *FileStore) Write(date observations.Date, payload json.RawMessage) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating cache dir: %v", observations.ErrStorage, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+date.String()+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp file for %s: %v", observations.ErrStorage, date, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: writing %s: %v", observations.ErrStorage, date, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: closing %s: %v", observations.ErrStorage, date, err)
	}
	if err := os.Rename(tmpName, s.path(date)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: committing %s: %v", observations.ErrStorage, date, err)
	}
	return nil
}

// Dates lists every cached date in ascending order. A missing directory yields
// an empty list.
func (s *FileStore) Dates() ([]observations.Date, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing cache dir: %w", err)
	}

	var dates []observations.Date
	for _, e := range entries {
		if !e.Type().IsRegular() || !dayFilePattern.MatchString(e.Name()) {
			continue
		}
		d, err := observations.ParseDate(strings.TrimSuffix(e.Name(), dayFileExt))
		if err != nil {
			// e.g. 2024-13-40.json
			continue
		}
		dates = append(dates, d)
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// ScanDateRange returns the earliest and latest cached dates. ok is false when
// the directory is absent or holds no valid entries. Gaps inside the range do
// not narrow it.
func (s *FileStore) ScanDateRange() (observations.DateRange, bool, error) {
	dates, err := s.Dates()
	if err != nil {
		return observations.DateRange{}, false, err
	}
	if len(dates) == 0 {
		return observations.DateRange{}, false, nil
	}
	return observations.DateRange{From: dates[0], To: dates[len(dates)-1]}, true, nil
}
