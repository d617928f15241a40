package crashdump

import (
	"cmp"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/smykla-skalski/hookgate/internal/xdg"
)

const (
	filePerm      fs.FileMode = 0o600
	fileExtension             = ".json"
	tempSuffix                = ".tmp"

	// maxSummaryPanicLen caps the panic value shown in listings.
	maxSummaryPanicLen = 80
)

var (
	// ErrDumpNotFound is returned when no dump has the requested ID.
	ErrDumpNotFound = errors.New("crash dump not found")

	// ErrInvalidDumpDir is returned for an empty or unusable dump directory.
	ErrInvalidDumpDir = errors.New("invalid dump directory")

	// ErrWriteFailed is returned when a dump cannot be written.
	ErrWriteFailed = errors.New("failed to write crash dump")
)

// Store reads and writes dumps as one JSON file per crash.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir. A leading ~ is expanded; the
// directory is created on first write.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.Wrap(ErrInvalidDumpDir, "dump directory cannot be empty")
	}

	expanded, err := xdg.ExpandPath(dir)
	if err != nil {
		return nil, errors.Mark(err, ErrInvalidDumpDir)
	}

	return &Store{dir: expanded}, nil
}

// Dir returns the dump directory.
func (s *Store) Dir() string { return s.dir }

// Write stores info and returns the file path. The file appears atomically.
func (s *Store) Write(info *CrashInfo) (string, error) {
	if info == nil {
		return "", errors.Wrap(ErrWriteFailed, "crash info is nil")
	}

	if err := xdg.EnsureDir(s.dir); err != nil {
		return "", errors.Mark(err, ErrInvalidDumpDir)
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return "", errors.Mark(errors.Wrap(err, "marshaling crash info"), ErrWriteFailed)
	}

	path := filepath.Join(s.dir, info.ID+fileExtension)
	tmp := path + tempSuffix

	if err := os.WriteFile(tmp, data, filePerm); err != nil {
		return "", errors.Mark(err, ErrWriteFailed)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)

		return "", errors.Mark(err, ErrWriteFailed)
	}

	return path, nil
}

// List returns dump summaries, newest first. Unreadable files are skipped.
func (s *Store) List() ([]DumpSummary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, errors.Wrap(err, "failed to read dump directory")
	}

	summaries := make([]DumpSummary, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExtension) {
			continue
		}

		summary, err := s.summary(entry)
		if err != nil {
			continue
		}

		summaries = append(summaries, summary)
	}

	slices.SortFunc(summaries, func(a, b DumpSummary) int {
		return cmp.Compare(b.Timestamp.UnixNano(), a.Timestamp.UnixNano())
	})

	return summaries, nil
}

func (s *Store) summary(entry fs.DirEntry) (DumpSummary, error) {
	path := filepath.Join(s.dir, entry.Name())

	info, err := load(path)
	if err != nil {
		return DumpSummary{}, err
	}

	stat, err := entry.Info()
	if err != nil {
		return DumpSummary{}, errors.Wrap(err, "failed to stat dump file")
	}

	panicValue := info.PanicValue
	if len(panicValue) > maxSummaryPanicLen {
		panicValue = panicValue[:maxSummaryPanicLen] + "..."
	}

	return DumpSummary{
		ID:         info.ID,
		Timestamp:  info.Timestamp,
		PanicValue: panicValue,
		FilePath:   path,
		Size:       stat.Size(),
	}, nil
}

// Get loads the dump with the given ID.
func (s *Store) Get(id string) (*CrashInfo, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}

	return load(path)
}

// Delete removes the dump with the given ID.
func (s *Store) Delete(id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errors.Wrapf(ErrDumpNotFound, "ID: %s", id)
		}

		return errors.Wrap(err, "failed to delete dump file")
	}

	return nil
}

// Removable returns the dumps Prune would delete: those older than maxAge,
// then everything past the newest maxDumps. Zero disables either limit.
func (s *Store) Removable(maxDumps int, maxAge time.Duration, now time.Time) ([]DumpSummary, error) {
	summaries, err := s.List()
	if err != nil {
		return nil, err
	}

	var (
		remove []DumpSummary
		kept   int
	)

	for _, summary := range summaries {
		expired := maxAge > 0 && now.Sub(summary.Timestamp) > maxAge
		if expired || (maxDumps > 0 && kept >= maxDumps) {
			remove = append(remove, summary)

			continue
		}

		kept++
	}

	return remove, nil
}

// Prune deletes the dumps Removable selects and returns how many went.
func (s *Store) Prune(maxDumps int, maxAge time.Duration) (int, error) {
	remove, err := s.Removable(maxDumps, maxAge, time.Now())
	if err != nil {
		return 0, err
	}

	var (
		removed int
		errs    []error
	)

	for _, summary := range remove {
		if err := s.Delete(summary.ID); err != nil {
			errs = append(errs, err)

			continue
		}

		removed++
	}

	return removed, errors.Join(errs...)
}

// path rejects IDs that would escape the dump directory.
func (s *Store) path(id string) (string, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return "", errors.Wrapf(ErrDumpNotFound, "ID: %q", id)
	}

	return filepath.Join(s.dir, id+fileExtension), nil
}

func load(path string) (*CrashInfo, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is built from the dump dir and a validated ID
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(ErrDumpNotFound, "file: %s", path)
		}

		return nil, errors.Wrap(err, "failed to read dump file")
	}

	var info CrashInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, errors.Wrapf(err, "failed to parse dump file %s", path)
	}

	return &info, nil
}
