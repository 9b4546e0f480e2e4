// Package watcher re-ingests documents as they appear or change in a folder.
//
// Only top-level *.pdf and *.txt files are watched. Bursts of events are
// coalesced: the changed files are ingested together once the folder has been
// quiet for the debounce interval.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/fyrsmithlabs/ragvisor/internal/loader"
	"github.com/fyrsmithlabs/ragvisor/internal/rag"
	"go.uber.org/zap"
)

// DefaultDebounce is used when Config.Debounce is not set.
const DefaultDebounce = 2 * time.Second

// ErrWatcherFailed indicates the filesystem watcher could not be initialized.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// Ingester stores documents. *rag.Pipeline implements it.
type Ingester interface {
	Ingest(ctx context.Context, req rag.IngestRequest) (*rag.IngestReport, error)
}

// Config configures a Watcher.
type Config struct {
	// Dir is the folder to watch.
	Dir string

	// Debounce is the quiet period before pending changes are ingested.
	Debounce time.Duration
}

// Watcher ingests created or modified documents in a folder.
type Watcher struct {
	dir      string
	debounce time.Duration
	ingester Ingester
	logger   *zap.Logger
	fsw      *fsnotify.Watcher
}

// New creates a watcher for cfg.Dir. Call Run to start watching.
func New(cfg Config, ingester Ingester, logger *zap.Logger) (*Watcher, error) {
	if ingester == nil {
		return nil, errors.New("ingester cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", cfg.Dir, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("watch folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch folder %s is not a directory", dir)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	return &Watcher{
		dir:      dir,
		debounce: debounce,
		ingester: ingester,
		logger:   logger.With(zap.String("dir", dir)),
		fsw:      fsw,
	}, nil
}

// Run processes filesystem events until ctx is cancelled. Changes still
// pending at cancellation are dropped.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	w.logger.Info("watching folder", zap.Duration("debounce", w.debounce))

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			pending[event.Name] = struct{}{}
			timer.Reset(w.debounce)

		case <-timer.C:
			w.flush(ctx, pending)
			pending = make(map[string]struct{})

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("filesystem watcher error", zap.Error(err))
		}
	}
}

// relevant reports whether event creates or modifies a watched document.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	if filepath.Dir(event.Name) != w.dir {
		return false
	}
	_, ok := loader.KindOf(event.Name)
	return ok
}

// flush ingests the pending files in name order. Files removed since their
// event are skipped.
func (w *Watcher) flush(ctx context.Context, pending map[string]struct{}) {
	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	files := make([]rag.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			w.logger.Debug("skipping unreadable file", zap.String("path", p), zap.Error(err))
			continue
		}
		files = append(files, rag.File{Name: filepath.Base(p), Data: data})
	}
	if len(files) == 0 {
		return
	}

	report, err := w.ingester.Ingest(ctx, rag.IngestRequest{Kind: rag.KindUpload, Files: files})
	if err != nil {
		w.logger.Error("re-ingestion failed", zap.Int("files", len(files)), zap.Error(err))
		return
	}
	for _, se := range report.Errors {
		w.logger.Warn("source not ingested", zap.String("source", se.Source), zap.String("error", se.Message))
	}
	w.logger.Info("re-ingested changed documents",
		zap.Int("files", len(files)),
		zap.Int("chunks", report.ChunksEmbedded),
	)
}
