package tle

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/madddiyarn/regulus/internal/errors"
)

// Spool reads catalog snapshots that the ingestion pipeline drops into a
// directory as tle_<unix seconds>.txt files. Regulus never writes there.
type Spool struct {
	dir string
}

// NewSpool creates a Spool reading from dir.
func NewSpool(dir string) *Spool {
	return &Spool{dir: dir}
}

// Dir returns the spool directory.
func (s *Spool) Dir() string {
	return s.dir
}

// LatestTimestamp returns the timestamp of the newest snapshot file, or the
// zero time when the spool is empty.
func (s *Spool) LatestTimestamp() (time.Time, error) {
	files, err := s.listFiles()
	if err != nil || len(files) == 0 {
		return time.Time{}, err
	}
	return files[len(files)-1].ts, nil
}

// LoadLatest parses the newest snapshot file into a Dataset.
func (s *Spool) LoadLatest(logger *slog.Logger) (*Dataset, error) {
	files, err := s.listFiles()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.NotFoundf("no catalog snapshots in %s", s.dir)
	}

	// Files are sorted oldest first; take the last one.
	latest := files[len(files)-1]
	data, err := os.ReadFile(filepath.Join(s.dir, latest.name))
	if err != nil {
		return nil, errors.Wrap(err, "reading catalog snapshot")
	}

	sets, err := Parse(bytes.NewReader(data), logger)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", latest.name)
	}
	return NewDataset(latest.name, latest.ts, sets), nil
}

// LoadFile parses a single element-set file, for operator tooling.
func LoadFile(path string, logger *slog.Logger) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading element set file")
	}
	sets, err := Parse(bytes.NewReader(data), logger)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "stat element set file")
	}
	return NewDataset(filepath.Base(path), info.ModTime(), sets), nil
}

type spoolFile struct {
	name string
	ts   time.Time
}

func (s *Spool) listFiles() ([]spoolFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "listing spool dir")
	}

	var files []spoolFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "tle_") || !strings.HasSuffix(name, ".txt") {
			continue
		}
		tsStr := strings.TrimSuffix(strings.TrimPrefix(name, "tle_"), ".txt")
		unix, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			continue
		}
		files = append(files, spoolFile{name: name, ts: time.Unix(unix, 0)})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ts.Before(files[j].ts)
	})
	return files, nil
}
