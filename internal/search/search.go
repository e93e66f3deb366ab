package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"image-tagger/internal/database"
	"image-tagger/internal/logging"
	"image-tagger/internal/metrics"
)

// ErrSearchDisabled is returned by a nil or closed index.
var ErrSearchDisabled = errors.New("description search is disabled")

// DefaultLimit caps a search when no limit is given.
const DefaultLimit = 50

type document struct {
	Path        string    `json:"path"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
	IndexedAt   time.Time `json:"indexedAt"`
}

// Hit is one search result.
type Hit struct {
	Path        string   `json:"path"`
	Score       float64  `json:"score"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Result is a page of hits.
type Result struct {
	Query string        `json:"query"`
	Total uint64        `json:"total"`
	Took  time.Duration `json:"took"`
	Hits  []Hit         `json:"hits"`
}

// Index is a description index. A nil *Index is valid and disabled.
type Index struct {
	mu    sync.RWMutex
	index bleve.Index
	path  string
}

// Open opens the index at path, creating it if it does not exist. created
// reports whether the index is new and needs a Rebuild.
func Open(path string) (idx *Index, created bool, err error) {
	if path == "" {
		return nil, false, ErrSearchDisabled
	}

	index, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		logging.Info("Creating description index at %s", path)
		index, err = bleve.New(path, buildMapping())
		if err != nil {
			return nil, false, fmt.Errorf("create index %s: %w", path, err)
		}
		created = true
	} else if err != nil {
		return nil, false, fmt.Errorf("open index %s: %w", path, err)
	} else {
		logging.Info("Opened description index at %s", path)
	}

	return &Index{index: index, path: path}, created, nil
}

// OpenMemory creates an in-memory index. The CLI and tests use it.
func OpenMemory() (*Index, error) {
	index, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, err
	}
	return &Index{index: index}, nil
}

func buildMapping() mapping.IndexMapping {
	text := bleve.NewTextFieldMapping()
	text.Analyzer = "en"

	keyword := bleve.NewTextFieldMapping()
	keyword.Analyzer = "keyword"

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("description", text)
	doc.AddFieldMappingsAt("tags", keyword)
	doc.AddFieldMappingsAt("path", keyword)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = "en"
	return m
}

func (x *Index) get() (bleve.Index, error) {
	if x == nil || x.index == nil {
		return nil, ErrSearchDisabled
	}
	return x.index, nil
}

// IndexDescription adds or replaces the entry for path.
func (x *Index) IndexDescription(path, description string, tags []string) error {
	if x == nil {
		return ErrSearchDisabled
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	index, err := x.get()
	if err != nil {
		return err
	}
	err = index.Index(path, document{
		Path:        path,
		Description: description,
		Tags:        tags,
		IndexedAt:   time.Now(),
	})
	recordOperation("index", err)
	return err
}

func recordOperation(op string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.SearchIndexOperationsTotal.WithLabelValues(op, status).Inc()
}

// Remove deletes the entry for path.
func (x *Index) Remove(path string) error {
	if x == nil {
		return ErrSearchDisabled
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	index, err := x.get()
	if err != nil {
		return err
	}
	return index.Delete(path)
}

// Rebuild indexes every Completed record in db in batches.
func (x *Index) Rebuild(ctx context.Context, db *database.Database) (int, error) {
	if x == nil {
		return 0, ErrSearchDisabled
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	index, err := x.get()
	if err != nil {
		return 0, err
	}

	descs, err := db.ListDescriptions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list descriptions: %w", err)
	}

	const batchSize = 500
	batch := index.NewBatch()
	now := time.Now()
	for i, d := range descs {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := batch.Index(d.Path, document{Path: d.Path, Description: d.Description, Tags: d.Tags, IndexedAt: now}); err != nil {
			return i, err
		}
		if batch.Size() >= batchSize {
			if err := index.Batch(batch); err != nil {
				return i, err
			}
			batch.Reset()
		}
	}
	if batch.Size() > 0 {
		if err := index.Batch(batch); err != nil {
			return len(descs), err
		}
	}

	logging.Info("Indexed %d descriptions", len(descs))
	return len(descs), nil
}

// Search runs a query string query ("dog beach", "+tags:dog", "sunset -beach").
func (x *Index) Search(query string, limit int) (*Result, error) {
	if x == nil {
		return nil, ErrSearchDisabled
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	index, err := x.get()
	if err != nil {
		return nil, err
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return &Result{Hits: []Hit{}}, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(query), limit, 0, false)
	req.Fields = []string{"description", "tags"}
	res, err := index.Search(req)
	recordOperation("search", err)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	out := &Result{Query: query, Total: res.Total, Took: res.Took, Hits: make([]Hit, 0, len(res.Hits))}
	for _, h := range res.Hits {
		hit := Hit{Path: h.ID, Score: h.Score, Tags: []string{}}
		if desc, ok := h.Fields["description"].(string); ok {
			hit.Description = desc
		}
		switch tags := h.Fields["tags"].(type) {
		case string:
			hit.Tags = []string{tags}
		case []interface{}:
			for _, t := range tags {
				if s, ok := t.(string); ok {
					hit.Tags = append(hit.Tags, s)
				}
			}
		}
		out.Hits = append(out.Hits, hit)
	}
	return out, nil
}

// Count returns the number of indexed documents.
func (x *Index) Count() (uint64, error) {
	if x == nil {
		return 0, ErrSearchDisabled
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	index, err := x.get()
	if err != nil {
		return 0, err
	}
	return index.DocCount()
}

// Close closes the index. Later calls return ErrSearchDisabled.
func (x *Index) Close() error {
	if x == nil {
		return nil
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.index == nil {
		return nil
	}
	err := x.index.Close()
	x.index = nil
	return err
}
