// Package memory implements the remote ports in-process. It backs the dev
// server and the test suites: documents with live query fan-out, blobs, and a
// credential service with a change stream.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"nestfeed/internal/remote"
	"nestfeed/pkg/sentinel"
)

// Store is an in-memory DocumentStore and BlobStore. Mutations are serialized
// by a single lock and snapshots are fanned out to subscribers synchronously
// under it, so each subscriber observes snapshots in mutation order.
// Subscription callbacks must not call back into the store.
type Store struct {
	mu          sync.Mutex
	collections map[string]*collection
	blobs       map[string][]byte
	blobScheme  string
}

type collection struct {
	docs    map[string][]byte
	order   []string
	subs    map[int]*subscription
	nextSub int
}

type subscription struct {
	q          remote.Query
	onSnapshot func([]remote.Doc)
	onErr      func(error)
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		collections: make(map[string]*collection),
		blobs:       make(map[string][]byte),
		blobScheme:  "mem://",
	}
}

func (s *Store) col(name string) *collection {
	c, ok := s.collections[name]
	if !ok {
		c = &collection{
			docs: make(map[string][]byte),
			subs: make(map[int]*subscription),
		}
		s.collections[name] = c
	}
	return c
}

// AllocateID reserves a new document id without writing anything.
func (s *Store) AllocateID(collection string) string {
	return uuid.NewString()
}

// GetDocument performs a point read.
func (s *Store) GetDocument(ctx context.Context, collection, id string) (remote.Doc, error) {
	if err := ctx.Err(); err != nil {
		return remote.Doc{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.col(collection)
	data, ok := c.docs[id]
	if !ok {
		return remote.Doc{}, fmt.Errorf("document %s/%s: %w", collection, id, sentinel.ErrNotFound)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return remote.Doc{ID: id, Data: cp}, nil
}

// SetDocument creates or replaces a document and notifies live queries.
func (s *Store) SetDocument(ctx context.Context, collection, id string, fields any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal document %s/%s: %w", collection, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.col(collection)
	if _, exists := c.docs[id]; !exists {
		c.order = append(c.order, id)
	}
	c.docs[id] = data
	s.fanOut(c)
	return nil
}

// DeleteDocument removes a document. Absent ids are a no-op.
func (s *Store) DeleteDocument(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.col(collection)
	if _, exists := c.docs[id]; !exists {
		return nil
	}
	delete(c.docs, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	s.fanOut(c)
	return nil
}

// SubscribeQuery registers a live query and delivers the current result set
// before returning. The unsubscribe function blocks until delivery to this
// subscriber has ceased for good.
func (s *Store) SubscribeQuery(ctx context.Context, collection string, q remote.Query, onSnapshot func(docs []remote.Doc), onErr func(err error)) (func(), error) {
	if onSnapshot == nil {
		return nil, fmt.Errorf("subscribe query: %w", sentinel.ErrInvalidState)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.col(collection)
	sub := &subscription{q: q, onSnapshot: onSnapshot, onErr: onErr}
	key := c.nextSub
	c.nextSub++
	c.subs[key] = sub

	onSnapshot(s.evaluate(c, q))

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(c.subs, key)
		})
	}
	return unsubscribe, nil
}

// fanOut pushes the current result set of every live query on c. Caller holds s.mu.
func (s *Store) fanOut(c *collection) {
	for _, sub := range c.subs {
		sub.onSnapshot(s.evaluate(c, sub.q))
	}
}

// evaluate computes the result set for q. Caller holds s.mu.
func (s *Store) evaluate(c *collection, q remote.Query) []remote.Doc {
	out := make([]remote.Doc, 0, len(c.order))
	for _, id := range c.order {
		data := c.docs[id]
		if q.FilterField != "" {
			fields := decodeFields(data)
			if !equalValues(fields[q.FilterField], q.FilterValue) {
				continue
			}
		}
		cp := make([]byte, len(data))
		copy(cp, data)
		out = append(out, remote.Doc{ID: id, Data: cp})
	}

	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			a := decodeFields(out[i].Data)[q.OrderBy]
			b := decodeFields(out[j].Data)[q.OrderBy]
			return lessValues(a, b)
		})
	}
	return out
}

// UploadBlob stores bytes under path.
func (s *Store) UploadBlob(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]byte, len(data))
	copy(cp, data)
	s.blobs[path] = cp
	return nil
}

// BlobURL returns the synthetic URL for an uploaded blob.
func (s *Store) BlobURL(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[path]; !ok {
		return "", fmt.Errorf("blob %s: %w", path, sentinel.ErrNotFound)
	}
	return s.blobScheme + path, nil
}

// Blob returns the stored bytes for a path, primarily for tests and the dev
// server's image endpoint.
func (s *Store) Blob(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[path]
	return data, ok
}

func decodeFields(data []byte) map[string]any {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	return fields
}

// equalValues compares a decoded JSON field against a caller-supplied filter
// value. JSON numbers decode as float64, so numeric filters are normalized
// before comparison; everything else compares via string form.
func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// lessValues orders decoded JSON fields ascending. Numbers compare
// numerically; strings lexically, which keeps RFC 3339 timestamps
// chronological. Missing fields sort first.
func lessValues(a, b any) bool {
	if a == nil {
		return b != nil
	}
	if b == nil {
		return false
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af < bf
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
