// Package library loads TEI files into mapping documents.
//
// A load fingerprints the markup, then tries the in-memory cache, then the
// persistent store, and only renders when both miss. Concurrent loads of the
// same markup share one build.
package library

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/FocuswithJustin/TeiSync/core/cache"
	"github.com/FocuswithJustin/TeiSync/core/errors"
	"github.com/FocuswithJustin/TeiSync/core/ir"
	"github.com/FocuswithJustin/TeiSync/core/mapping"
	"github.com/FocuswithJustin/TeiSync/core/store"
	"github.com/FocuswithJustin/TeiSync/internal/logging"
	"github.com/FocuswithJustin/TeiSync/internal/validation"
)

// Origin says where a loaded document came from.
type Origin string

const (
	OriginMemory Origin = "memory"
	OriginStore  Origin = "store"
	OriginBuild  Origin = "build"
)

// Config configures a Library.
type Config struct {
	// Root is the corpus directory that relative paths resolve against.
	Root string

	// MaxMarkupSize caps the size of a loaded file (0 = validation default).
	MaxMarkupSize int64

	// Cache configures the in-memory document cache.
	Cache cache.Config
}

// DefaultConfig returns a configuration rooted at the working directory.
func DefaultConfig() Config {
	return Config{Root: ".", Cache: cache.DefaultConfig()}
}

// Loaded is the result of one load.
type Loaded struct {
	Name        string            `json:"name"`
	Fingerprint string            `json:"fingerprint"`
	Origin      Origin            `json:"origin"`
	Doc         *mapping.Document `json:"-"`
}

// Library owns a document cache and an optional store.
type Library struct {
	cfg   Config
	cache *cache.DocumentCache
	store *store.Store
	group singleflight.Group
}

// New creates a library. st may be nil to disable persistence.
func New(cfg Config, st *store.Store) *Library {
	if cfg.Root == "" {
		cfg.Root = "."
	}
	return &Library{
		cfg:   cfg,
		cache: cache.NewDocumentCache(cfg.Cache),
		store: st,
	}
}

// Root returns the corpus directory.
func (l *Library) Root() string {
	return l.cfg.Root
}

// ResolvePath maps a client-supplied corpus-relative path to a file path
// under Root. Paths escaping Root and non-markup files are rejected.
func (l *Library) ResolvePath(rel string) (string, error) {
	clean, err := validation.SanitizePath(l.cfg.Root, rel)
	if err != nil {
		return "", &errors.ValidationError{Field: "path", Value: rel, Message: err.Error(), Err: err}
	}
	if !validation.IsMarkupFile(clean) {
		return "", errors.NewUnsupported("file type", filepath.Ext(clean))
	}
	return filepath.Join(l.cfg.Root, clean), nil
}

// Load reads the file at path and returns its document.
func (l *Library) Load(ctx context.Context, path string) (*Loaded, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errors.NotFoundError{Resource: "file", ID: path, Err: err}
		}
		return nil, errors.NewIO("open", path, err)
	}
	defer f.Close()

	data, err := validation.ReadMarkup(f, l.cfg.MaxMarkupSize)
	if err != nil {
		return nil, &errors.ValidationError{Field: "markup", Value: path, Message: err.Error(), Err: err}
	}
	return l.LoadMarkup(ctx, filepath.Base(path), string(data))
}

// LoadMarkup returns the document for markup, building it if needed.
func (l *Library) LoadMarkup(ctx context.Context, name, markup string) (*Loaded, error) {
	fp := ir.FingerprintString(markup)
	if doc, ok := l.cache.Get(fp); ok {
		logging.RenderEvent(ctx, name, fp, string(OriginMemory), 0)
		return &Loaded{Name: name, Fingerprint: fp, Origin: OriginMemory, Doc: doc}, nil
	}

	v, err, _ := l.group.Do(fp, func() (any, error) {
		return l.fetch(ctx, name, fp, markup)
	})
	if err != nil {
		return nil, err
	}
	loaded := *v.(*Loaded)
	loaded.Name = name
	return &loaded, nil
}

func (l *Library) fetch(ctx context.Context, name, fp, markup string) (*Loaded, error) {
	start := time.Now()

	// A build that finished between the caller's miss and this call.
	if doc, ok := l.cache.Get(fp); ok {
		return &Loaded{Name: name, Fingerprint: fp, Origin: OriginMemory, Doc: doc}, nil
	}

	if l.store != nil {
		doc, err := l.store.Get(ctx, fp)
		switch {
		case err == nil:
			l.cache.Put(fp, doc)
			logging.RenderEvent(ctx, name, fp, string(OriginStore), time.Since(start))
			return &Loaded{Name: name, Fingerprint: fp, Origin: OriginStore, Doc: doc}, nil
		case !errors.Is(err, errors.ErrNotFound):
			logging.StoreError(ctx, "get", fp, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc := mapping.Build(markup)
	l.cache.Put(fp, doc)

	if l.store != nil {
		if err := l.store.Put(ctx, fp, name, doc); err != nil {
			logging.StoreError(ctx, "put", fp, err)
		}
	}
	logging.RenderEvent(ctx, name, fp, string(OriginBuild), time.Since(start),
		"runes", doc.Len(), "segments", len(doc.Segments()), "notes", len(doc.Annotations()))
	return &Loaded{Name: name, Fingerprint: fp, Origin: OriginBuild, Doc: doc}, nil
}

// Evict drops a document from the memory cache and the store.
func (l *Library) Evict(ctx context.Context, fingerprint string) error {
	l.cache.Remove(fingerprint)
	if l.store == nil {
		return nil
	}
	return l.store.Delete(ctx, fingerprint)
}

// CacheStats returns memory cache statistics.
func (l *Library) CacheStats() cache.Stats {
	return l.cache.Stats()
}
