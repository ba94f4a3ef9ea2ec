package records

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps records in process memory. It backs tests and the
// console chat.
type MemoryStore struct {
	mu      sync.RWMutex
	docs    map[string]map[string]*memoryDoc
	closed  bool
	created int
}

type memoryDoc struct {
	rec      Record
	archived bool
	seq      int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]map[string]*memoryDoc),
	}
}

// Create implements Store.
func (s *MemoryStore) Create(ctx context.Context, collection string, rec Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrClosed
	}

	coll, ok := s.docs[collection]
	if !ok {
		coll = make(map[string]*memoryDoc)
		s.docs[collection] = coll
	}

	id := uuid.New().String()
	s.created++
	coll[id] = &memoryDoc{rec: rec, seq: s.created}
	return id, nil
}

// QueryBefore implements Store. Results are ordered by date.
func (s *MemoryStore) QueryBefore(ctx context.Context, collection string, before time.Time) ([]Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	var pages []Page
	for id, doc := range s.docs[collection] {
		if doc.archived || !doc.rec.Date.Before(before) {
			continue
		}
		pages = append(pages, Page{ID: id, Collection: collection, Date: doc.rec.Date})
	}
	sort.Slice(pages, func(i, j int) bool {
		return pages[i].Date.Before(pages[j].Date)
	})
	return pages, nil
}

// Archive implements Store.
func (s *MemoryStore) Archive(ctx context.Context, page Page) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	if doc, ok := s.docs[page.Collection][page.ID]; ok {
		doc.archived = true
	}
	return nil
}

// Records returns the non-archived records of collection in creation order.
func (s *MemoryStore) Records(collection string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]*memoryDoc, 0, len(s.docs[collection]))
	for _, doc := range s.docs[collection] {
		if !doc.archived {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].seq < docs[j].seq })

	out := make([]Record, len(docs))
	for i, doc := range docs {
		out[i] = doc.rec
	}
	return out
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping implements Pinger.
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return ctx.Err()
}
