// Package documents keeps track of the source PDFs imported for sessions.
package documents

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/joseph-ayodele/cdv-tracker/constants"
	"github.com/joseph-ayodele/cdv-tracker/internal/common"
)

var (
	ErrDocumentNotFound = common.NewAppError("DOCUMENT_NOT_FOUND", "document not found", common.ErrNotFound)
	ErrUnsupportedExt   = common.NewAppError("DOCUMENT_UNSUPPORTED", "only PDF documents can be imported", common.ErrInvalidInput)
)

// Document is one imported source file.
type Document struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	HashHex    string    `json:"hash"`
	Pages      int       `json:"pages"`
	Size       int64     `json:"size"`
	ImportedAt time.Time `json:"imported_at"`
}

// FileResult reports the import of one file of a directory.
type FileResult struct {
	Path         string `json:"path"`
	DocumentID   string `json:"document_id,omitempty"`
	Deduplicated bool   `json:"deduplicated,omitempty"`
	Err          string `json:"error,omitempty"`
}

type DirStats struct {
	Scanned      uint32 `json:"scanned"`
	Matched      uint32 `json:"matched"`
	Succeeded    uint32 `json:"succeeded"`
	Deduplicated uint32 `json:"deduplicated"`
	Failed       uint32 `json:"failed"`
}

// Registry is an in-memory index of imported documents keyed by id and
// deduplicated by content hash.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]Document
	byHash map[string]string
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byID:   make(map[string]Document),
		byHash: make(map[string]string),
		logger: logger,
	}
}

// Register imports the PDF at path. A file whose content was already
// registered returns the existing document with dedup set.
func (r *Registry) Register(path string) (Document, bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Document{}, false, err
	}
	ext := constants.NormalizeExt(filepath.Ext(abs))
	if _, ok := constants.AllowedExtensions[ext]; !ok {
		return Document{}, false, ErrUnsupportedExt
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return Document{}, false, fmt.Errorf("read %s: %w", abs, err)
	}
	sum := sha256.Sum256(data)
	hashHex := hex.EncodeToString(sum[:])

	r.mu.RLock()
	if id, ok := r.byHash[hashHex]; ok {
		doc := r.byID[id]
		r.mu.RUnlock()
		r.logger.Debug("documents.register.dedup", "path", abs, "document_id", id)
		return doc, true, nil
	}
	r.mu.RUnlock()

	pages, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return Document{}, false, common.NewAppError("DOCUMENT_INVALID_PDF", fmt.Sprintf("%s is not a readable PDF", filepath.Base(abs)), err)
	}

	doc := Document{
		ID:         uuid.NewString(),
		Path:       abs,
		Name:       filepath.Base(abs),
		HashHex:    hashHex,
		Pages:      pages,
		Size:       int64(len(data)),
		ImportedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byHash[hashHex]; ok {
		return r.byID[id], true, nil
	}
	r.byID[doc.ID] = doc
	r.byHash[hashHex] = doc.ID
	r.logger.Info("documents.registered", "document_id", doc.ID, "path", abs, "pages", pages)
	return doc, false, nil
}

// RegisterDirectory walks root and registers every PDF, continuing past
// per-file failures.
func (r *Registry) RegisterDirectory(ctx context.Context, root string, skipHidden bool) ([]FileResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var (
		results []FileResult
		stats   DirStats
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, FileResult{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !isPDF(path) {
			return nil
		}
		stats.Matched++

		doc, dedup, err := r.Register(path)
		if err != nil {
			results = append(results, FileResult{Path: path, Err: common.UserMessage(err, err.Error())})
			stats.Failed++
			return nil
		}
		results = append(results, FileResult{Path: path, DocumentID: doc.ID, Deduplicated: dedup})
		stats.Succeeded++
		if dedup {
			stats.Deduplicated++
		}
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	return results, stats, nil
}

// Resolve returns the document registered under id.
func (r *Registry) Resolve(id string) (Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.byID[id]
	return doc, ok
}

// ResolvePath returns the document registered for path, registering it on
// first use.
func (r *Registry) ResolvePath(path string) (Document, error) {
	doc, _, err := r.Register(path)
	return doc, err
}

// Read loads the bytes of a registered document.
func (r *Registry) Read(id string) ([]byte, error) {
	doc, ok := r.Resolve(id)
	if !ok {
		return nil, ErrDocumentNotFound
	}
	data, err := os.ReadFile(doc.Path)
	if err != nil {
		return nil, common.NewAppError("DOCUMENT_READ_FAILED", fmt.Sprintf("cannot read %s", doc.Name), err)
	}
	return data, nil
}

// List returns every registered document.
func (r *Registry) List() []Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Document, 0, len(r.byID))
	for _, d := range r.byID {
		out = append(out, d)
	}
	return out
}
