package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/HyIsNoob/khytool/internal/domain"
)

// Registry is the in-memory table of download records backed by a JSON
// ledger on disk. All mutation goes through one mutex; the ledger is
// rewritten only when a record reaches completed or error, never for
// live progress updates.
type Registry struct {
	mu       sync.Mutex
	records  map[string]*domain.DownloadRecord
	path     string
	logger   *zap.Logger
	handlers handlers
}

// handlers are the optional lifecycle callbacks
type handlers struct {
	onUpdated   []func(id string)
	onCompleted []func(id, outputFile string)
	onError     []func(id, message string)
	onRemoved   []func(id string)
}

// New creates a registry backed by the JSON file at path and loads any
// existing ledger. Entries whose output file has vanished are dropped.
func New(path string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		records: make(map[string]*domain.DownloadRecord),
		path:    path,
		logger:  logger,
	}
	r.load()
	return r
}

// OnUpdated registers a callback fired after any record change
func (r *Registry) OnUpdated(fn func(id string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers.onUpdated = append(r.handlers.onUpdated, fn)
}

// OnCompleted registers a callback fired when a record completes
func (r *Registry) OnCompleted(fn func(id, outputFile string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers.onCompleted = append(r.handlers.onCompleted, fn)
}

// OnError registers a callback fired when a record fails
func (r *Registry) OnError(fn func(id, message string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers.onError = append(r.handlers.onError, fn)
}

// OnRemoved registers a callback fired when a record is removed
func (r *Registry) OnRemoved(fn func(id string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers.onRemoved = append(r.handlers.onRemoved, fn)
}

// Add creates a running record and returns its ID
func (r *Registry) Add(source domain.Platform, title string) string {
	rec := domain.NewDownloadRecord(source, title)

	r.mu.Lock()
	r.records[rec.ID] = rec
	updated := r.handlers.onUpdated
	r.mu.Unlock()

	for _, fn := range updated {
		fn(rec.ID)
	}
	return rec.ID
}

// SetProgress updates live transfer state. Not persisted.
func (r *Registry) SetProgress(id string, percent int, speed, downloaded, total, eta string) {
	r.mu.Lock()
	rec, ok := r.records[id]
	if ok {
		rec.Progress = percent
		rec.Speed = speed
		rec.Downloaded = downloaded
		rec.TotalSize = total
		rec.RemainingTime = eta
		rec.Touch()
	}
	updated := r.handlers.onUpdated
	r.mu.Unlock()

	if ok {
		for _, fn := range updated {
			fn(id)
		}
	}
}

// SetTitle updates the record title once real metadata arrives
func (r *Registry) SetTitle(id, title string) {
	r.mutate(id, func(rec *domain.DownloadRecord) { rec.Title = title })
}

// SetThumbnail records the side-fetched thumbnail path
func (r *Registry) SetThumbnail(id, path string) {
	r.mutate(id, func(rec *domain.DownloadRecord) { rec.ThumbnailPath = path })
}

// MarkCompleted finalizes a record and persists the ledger
func (r *Registry) MarkCompleted(id, outputFile string) {
	r.mu.Lock()
	rec, ok := r.records[id]
	if ok {
		rec.MarkCompleted(outputFile)
		if err := r.save(); err != nil {
			r.logger.Warn("Failed to persist registry", zap.String("id", id), zap.Error(err))
		}
	}
	updated := r.handlers.onUpdated
	completed := r.handlers.onCompleted
	r.mu.Unlock()

	if !ok {
		return
	}
	for _, fn := range updated {
		fn(id)
	}
	for _, fn := range completed {
		fn(id, outputFile)
	}
}

// MarkError finalizes a record as failed and persists the ledger
func (r *Registry) MarkError(id, message string) {
	r.mu.Lock()
	rec, ok := r.records[id]
	if ok {
		rec.MarkError(message)
		if err := r.save(); err != nil {
			r.logger.Warn("Failed to persist registry", zap.String("id", id), zap.Error(err))
		}
	}
	updated := r.handlers.onUpdated
	errored := r.handlers.onError
	r.mu.Unlock()

	if !ok {
		return
	}
	for _, fn := range updated {
		fn(id)
	}
	for _, fn := range errored {
		fn(id, message)
	}
}

// MarkPaused marks a record paused (cancelled transfer). Not persisted.
func (r *Registry) MarkPaused(id string) {
	r.mutate(id, func(rec *domain.DownloadRecord) { rec.MarkPaused() })
}

// Remove deletes a record. Removing an unknown ID is not an error;
// the return value reports whether anything was removed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	rec, ok := r.records[id]
	if ok {
		delete(r.records, id)
		if rec.IsTerminal() {
			if err := r.save(); err != nil {
				r.logger.Warn("Failed to persist registry", zap.String("id", id), zap.Error(err))
			}
		}
	}
	removed := r.handlers.onRemoved
	r.mu.Unlock()

	if ok {
		for _, fn := range removed {
			fn(id)
		}
	}
	return ok
}

// Get returns a copy of a record
func (r *Registry) Get(id string) (domain.DownloadRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return domain.DownloadRecord{}, false
	}
	return *rec, true
}

// GetAll returns copies of all records, most recent first
func (r *Registry) GetAll() []domain.DownloadRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.DownloadRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Active returns records still in flight
func (r *Registry) Active() []domain.DownloadRecord {
	return r.filter(func(rec *domain.DownloadRecord) bool {
		return rec.Status == domain.RecordRunning || rec.Status == domain.RecordPaused
	})
}

// Completed returns successfully finished records
func (r *Registry) Completed() []domain.DownloadRecord {
	return r.filter(func(rec *domain.DownloadRecord) bool {
		return rec.Status == domain.RecordCompleted
	})
}

func (r *Registry) filter(keep func(*domain.DownloadRecord) bool) []domain.DownloadRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.DownloadRecord
	for _, rec := range r.records {
		if keep(rec) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out
}

// Save forces a ledger rewrite
func (r *Registry) Save() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save()
}

// mutate applies a change under lock and fires onUpdated
func (r *Registry) mutate(id string, change func(*domain.DownloadRecord)) {
	r.mu.Lock()
	rec, ok := r.records[id]
	if ok {
		change(rec)
		rec.Touch()
	}
	updated := r.handlers.onUpdated
	r.mu.Unlock()

	if ok {
		for _, fn := range updated {
			fn(id)
		}
	}
}

// save writes terminal records to the ledger. Caller holds the lock.
// Completed records whose file is gone are skipped, so a deleted file
// ages out of the ledger at the next write.
func (r *Registry) save() error {
	persisted := make([]*domain.DownloadRecord, 0, len(r.records))
	for _, rec := range r.records {
		if !rec.IsTerminal() {
			continue
		}
		if rec.Status == domain.RecordCompleted && !fileExists(rec.OutputFile) {
			continue
		}
		persisted = append(persisted, rec)
	}
	sort.Slice(persisted, func(i, j int) bool { return persisted[i].Timestamp > persisted[j].Timestamp })

	data, err := json.MarshalIndent(persisted, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("failed to replace registry: %w", err)
	}
	return nil
}

// load reads the ledger, dropping completed entries whose output file
// no longer exists and clearing stale thumbnail paths.
func (r *Registry) load() {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("Failed to read registry file", zap.String("path", r.path), zap.Error(err))
		}
		return
	}

	var entries []*domain.DownloadRecord
	if err := json.Unmarshal(data, &entries); err != nil {
		r.logger.Warn("Registry file is corrupt, starting empty", zap.String("path", r.path), zap.Error(err))
		return
	}

	for _, rec := range entries {
		if rec.ID == "" {
			continue
		}
		if rec.Status == domain.RecordCompleted && !fileExists(rec.OutputFile) {
			r.logger.Debug("Dropping registry entry with missing file",
				zap.String("id", rec.ID), zap.String("file", rec.OutputFile))
			continue
		}
		if rec.ThumbnailPath != "" && !fileExists(rec.ThumbnailPath) {
			rec.ThumbnailPath = ""
		}
		r.records[rec.ID] = rec
	}
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
