package documents

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/joseph-ayodele/cdv-tracker/constants"
	"github.com/joseph-ayodele/cdv-tracker/internal/common"
)

const defaultDebounce = 500 * time.Millisecond

type WatchConfig struct {
	Roots       []string      // directories to watch (recursive)
	InitialScan bool          // register PDFs already present under Roots
	Debounce    time.Duration // coalesce create/write bursts of a file being copied
}

// Watch registers PDFs as they appear under the configured roots and reports
// each import on the returned channel. Both channels are closed when ctx is
// done.
func (r *Registry) Watch(ctx context.Context, cfg WatchConfig) (<-chan FileResult, <-chan error, error) {
	if len(cfg.Roots) == 0 {
		return nil, nil, errors.New("no roots provided")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		r.logger.Error("failed to create fsnotify watcher", "error", err)
		return nil, nil, err
	}

	var initial []string
	for _, root := range cfg.Roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				return w.Add(path)
			}
			if cfg.InitialScan && isPDF(path) {
				initial = append(initial, path)
			}
			return nil
		})
		if err != nil {
			r.logger.Error("failed to add root directory", "root", root, "error", err)
			_ = w.Close()
			return nil, nil, err
		}
	}

	results := make(chan FileResult, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(results)
		defer close(errs)
		defer func() {
			if err := w.Close(); err != nil {
				r.logger.Warn("failed to close watcher", "error", err)
			}
		}()

		emit := func(path string) bool {
			res := r.importFile(path)
			select {
			case results <- res:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for _, path := range initial {
			if !emit(path) {
				return
			}
		}

		pending := map[string]struct{}{}
		timer := time.NewTimer(cfg.Debounce)
		timer.Stop()

		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Has(fsnotify.Create) {
					// New sub-directories are watched too; Add fails for files.
					_ = w.Add(e.Name)
				}
				if isPDF(e.Name) && (e.Has(fsnotify.Create) || e.Has(fsnotify.Write)) {
					pending[e.Name] = struct{}{}
					timer.Reset(cfg.Debounce)
				}
			case <-timer.C:
				for path := range pending {
					delete(pending, path)
					if !emit(path) {
						return
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				r.logger.Error("watcher error", "error", err)
				select {
				case errs <- err:
				default:
				}
			}
		}
	}()

	return results, errs, nil
}

func (r *Registry) importFile(path string) FileResult {
	doc, dedup, err := r.Register(path)
	if err != nil {
		r.logger.Warn("document import failed", "path", path, "error", err)
		return FileResult{Path: path, Err: common.UserMessage(err, err.Error())}
	}
	r.logger.Info("document imported", "path", path, "document_id", doc.ID, "pages", doc.Pages, "dedup", dedup)
	return FileResult{Path: path, DocumentID: doc.ID, Deduplicated: dedup}
}

func isPDF(path string) bool {
	_, ok := constants.AllowedExtensions[constants.NormalizeExt(filepath.Ext(path))]
	return ok
}
