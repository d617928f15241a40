package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/smykla-skalski/hookgate/pkg/config"
	"github.com/smykla-skalski/hookgate/pkg/hook"
	"github.com/smykla-skalski/hookgate/pkg/logger"
)

const (
	// backupLayout names rotated files: audit.20260102-150405.jsonl.
	backupLayout = "20060102-150405"

	// maxLineBytes bounds a single JSONL record. Records hold two capped
	// output streams plus metadata, so this leaves generous headroom.
	maxLineBytes = 4 * bytesPerMB
)

// JSONLSink appends records to a JSON lines file, rotating it by size and
// pruning backups by count and age.
type JSONLSink struct {
	mu     sync.Mutex
	path   string
	config *config.AuditConfig
	logger logger.Logger
	now    func() time.Time
}

// NewJSONLSink creates a JSONL store at path. The file is created on the
// first record.
func NewJSONLSink(path string, cfg *config.AuditConfig, opts ...Option) *JSONLSink {
	o := newOptions(opts)

	return &JSONLSink{
		path:   path,
		config: cfg,
		logger: o.logger,
		now:    o.now,
	}
}

// Record appends rec, logging write failures instead of returning them.
func (s *JSONLSink) Record(rec *hook.InvocationRecord) {
	if err := s.Write(rec); err != nil {
		s.logger.Error("failed to write audit record",
			"id", rec.ID,
			"path", s.path,
			"error", err,
		)
	}
}

// Write appends rec, rotating first when the file exceeds the size limit.
func (s *JSONLSink) Write(rec *hook.InvocationRecord) error {
	if rec == nil {
		return nil
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshaling audit record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rotateErr := s.rotateIfNeededLocked(); rotateErr != nil {
		s.logger.Error("failed to rotate audit log", "error", rotateErr)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), auditDirPermissions); err != nil {
		return errors.Wrap(err, "creating audit directory")
	}

	//nolint:gosec // G304: path is from config
	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, auditFilePermissions)
	if err != nil {
		return errors.Wrap(err, "opening audit file")
	}

	_, writeErr := file.Write(append(data, '\n'))
	closeErr := file.Close()

	if writeErr != nil {
		return errors.Wrap(writeErr, "writing audit record")
	}

	return errors.Wrap(closeErr, "closing audit file")
}

// Read returns every record in the current file in write order. Malformed
// lines are skipped.
func (s *JSONLSink) Read() ([]*hook.InvocationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []*hook.InvocationRecord

	err := s.scanLocked(func(line []byte) {
		var rec hook.InvocationRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			s.logger.Debug("skipping malformed audit record", "error", err)

			return
		}

		records = append(records, &rec)
	})

	return records, err
}

// List returns matching records from the current file, newest first.
func (s *JSONLSink) List(_ context.Context, filter Filter) ([]*hook.InvocationRecord, error) {
	records, err := s.Read()
	if err != nil {
		return nil, err
	}

	out := make([]*hook.InvocationRecord, 0, len(records))

	for _, rec := range slices.Backward(records) {
		if !filter.Match(rec) {
			continue
		}

		out = append(out, rec)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}

	return out, nil
}

// Rotate forces rotation of the current file.
func (s *JSONLSink) Rotate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rotateLocked()
}

// Cleanup drops backups past the count and age limits and records in the
// current file older than the retention.
func (s *JSONLSink) Cleanup(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.pruneBackupsLocked(); err != nil {
		return err
	}

	return s.dropExpiredLocked()
}

// Stats describes the current file and its backups.
func (s *JSONLSink) Stats(context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &Stats{
		Backend:  config.AuditBackendJSONL,
		Path:     s.path,
		Outcomes: make(map[hook.Outcome]int),
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}

		return nil, errors.Wrap(err, "getting audit file info")
	}

	stats.SizeBytes = info.Size()
	stats.ModTime = info.ModTime()
	stats.BackupCount = len(s.backupsLocked())

	err = s.scanLocked(func(line []byte) {
		stats.EntryCount++

		var rec struct {
			Outcome hook.Outcome `json:"outcome"`
		}

		if json.Unmarshal(line, &rec) == nil {
			stats.Outcomes[rec.Outcome]++
		}
	})
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// Path returns the current file.
func (s *JSONLSink) Path() string {
	return s.path
}

// Close is a no-op; the file is opened per write.
func (*JSONLSink) Close() error {
	return nil
}

// scanLocked calls fn for each non-blank line. A missing file has no lines.
func (s *JSONLSink) scanLocked(fn func(line []byte)) error {
	file, err := os.Open(s.path) //nolint:gosec // G304: path is from config
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return errors.Wrap(err, "opening audit file")
	}

	defer func() {
		_ = file.Close()
	}()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		fn(line)
	}

	return errors.Wrap(scanner.Err(), "scanning audit file")
}

func (s *JSONLSink) rotateIfNeededLocked() error {
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return errors.Wrap(err, "checking audit file size")
	}

	maxSize := int64(s.config.GetMaxSizeMB()) * bytesPerMB
	if maxSize <= 0 || info.Size() < maxSize {
		return nil
	}

	s.logger.Debug("audit log exceeds max size, rotating",
		"size", info.Size(),
		"max_size", maxSize,
	)

	return s.rotateLocked()
}

func (s *JSONLSink) rotateLocked() error {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil
	}

	ext := filepath.Ext(s.path)
	backup := strings.TrimSuffix(s.path, ext) + "." + s.now().Format(backupLayout) + ext

	if err := os.Rename(s.path, backup); err != nil {
		return errors.Wrap(err, "rotating audit file")
	}

	s.logger.Debug("rotated audit log", "from", s.path, "to", backup)

	return s.pruneBackupsLocked()
}

// backupsLocked returns backup paths, newest first.
func (s *JSONLSink) backupsLocked() []string {
	dir := filepath.Dir(s.path)
	ext := filepath.Ext(s.path)
	prefix := filepath.Base(strings.TrimSuffix(s.path, ext)) + "."

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var backups []string

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ext) {
			continue
		}

		stamp := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ext)
		if _, err := time.Parse(backupLayout, stamp); err == nil {
			backups = append(backups, filepath.Join(dir, name))
		}
	}

	slices.Sort(backups)
	slices.Reverse(backups)

	return backups
}

func (s *JSONLSink) pruneBackupsLocked() error {
	keep := s.config.GetMaxBackups()
	cutoff := s.now().Add(-retention(s.config))

	for i, backup := range s.backupsLocked() {
		expired := false

		if info, err := os.Stat(backup); err == nil && s.config.GetMaxAgeDays() > 0 {
			expired = info.ModTime().Before(cutoff)
		}

		if i < keep && !expired {
			continue
		}

		if err := os.Remove(backup); err != nil {
			s.logger.Error("failed to remove old backup", "path", backup, "error", err)

			continue
		}

		s.logger.Debug("removed old backup", "path", backup)
	}

	return nil
}

func (s *JSONLSink) dropExpiredLocked() error {
	if s.config.GetMaxAgeDays() <= 0 {
		return nil
	}

	cutoff := s.now().Add(-retention(s.config))

	var (
		kept  [][]byte
		total int
	)

	err := s.scanLocked(func(line []byte) {
		total++

		var rec struct {
			StartedAt time.Time `json:"started_at"`
		}

		// Malformed lines are kept to avoid data loss.
		if json.Unmarshal(line, &rec) != nil || !rec.StartedAt.Before(cutoff) {
			kept = append(kept, slices.Clone(line))
		}
	})
	if err != nil || len(kept) == total {
		return err
	}

	tmp := s.path + ".tmp"

	//nolint:gosec // G304: derived from config path
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, auditFilePermissions)
	if err != nil {
		return errors.Wrap(err, "creating temp file for cleanup")
	}

	w := bufio.NewWriter(file)
	for _, line := range kept {
		_, _ = w.Write(line)
		_ = w.WriteByte('\n')
	}

	if err := errors.CombineErrors(w.Flush(), file.Close()); err != nil {
		_ = os.Remove(tmp)

		return errors.Wrap(err, "writing cleaned records")
	}

	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)

		return errors.Wrap(err, "replacing audit file after cleanup")
	}

	s.logger.Debug("cleaned up old audit records",
		"removed", total-len(kept),
		"remaining", len(kept),
	)

	return nil
}
