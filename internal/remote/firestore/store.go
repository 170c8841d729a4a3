// Package firestore adapts the managed Firestore backend onto the remote
// ports. Live queries map onto Firestore snapshot listeners, which already
// deliver the full matching result set per change.
package firestore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"nestfeed/internal/remote"
	"nestfeed/pkg/sentinel"
)

// Store implements remote.DocumentStore over a Firestore client. Blob URLs
// are composed from a public bucket prefix; the upload itself is owned by the
// managed object store and out of scope here.
type Store struct {
	client      *firestore.Client
	blobBaseURL string
}

// New connects to the given project. blobBaseURL is the public prefix for
// uploaded listing images.
func New(ctx context.Context, projectID, blobBaseURL string) (*Store, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return &Store{client: client, blobBaseURL: strings.TrimSuffix(blobBaseURL, "/")}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// AllocateID reserves a new document id without writing anything.
func (s *Store) AllocateID(collection string) string {
	return s.client.Collection(collection).NewDoc().ID
}

// GetDocument performs a point read.
func (s *Store) GetDocument(ctx context.Context, collection, id string) (remote.Doc, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return remote.Doc{}, fmt.Errorf("document %s/%s: %w", collection, id, sentinel.ErrNotFound)
	}
	if err != nil {
		return remote.Doc{}, fmt.Errorf("get document %s/%s: %w", collection, id, err)
	}
	return encodeSnapshot(snap)
}

// SetDocument creates or replaces a document.
func (s *Store) SetDocument(ctx context.Context, collection, id string, fields any) error {
	if _, err := s.client.Collection(collection).Doc(id).Set(ctx, fields); err != nil {
		return fmt.Errorf("set document %s/%s: %w", collection, id, err)
	}
	return nil
}

// DeleteDocument removes a document. Firestore treats absent ids as success.
func (s *Store) DeleteDocument(ctx context.Context, collection, id string) error {
	if _, err := s.client.Collection(collection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("delete document %s/%s: %w", collection, id, err)
	}
	return nil
}

// SubscribeQuery attaches a Firestore snapshot listener. The returned
// function cancels the listener and blocks until the pump goroutine has
// stopped, so no callback runs after it returns.
func (s *Store) SubscribeQuery(ctx context.Context, collection string, q remote.Query, onSnapshot func(docs []remote.Doc), onErr func(err error)) (func(), error) {
	if onSnapshot == nil {
		return nil, fmt.Errorf("subscribe query: %w", sentinel.ErrInvalidState)
	}

	query := s.client.Collection(collection).Query
	if q.FilterField != "" {
		query = query.Where(q.FilterField, "==", q.FilterValue)
	}
	if q.OrderBy != "" {
		query = query.OrderBy(q.OrderBy, firestore.Asc)
	}

	ctx, cancel := context.WithCancel(ctx)
	it := query.Snapshots(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			snap, err := it.Next()
			if err != nil {
				if ctx.Err() != nil || status.Code(err) == codes.Canceled {
					return
				}
				if onErr != nil {
					onErr(err)
				}
				continue
			}
			docs, err := collectDocs(snap)
			if err != nil {
				if onErr != nil {
					onErr(err)
				}
				continue
			}
			onSnapshot(docs)
		}
	}()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			cancel()
			it.Stop()
			wg.Wait()
		})
	}
	return unsubscribe, nil
}

// UploadBlob is not served by this adapter; the managed object store owns
// uploads in production.
func (s *Store) UploadBlob(ctx context.Context, path string, data []byte) error {
	return fmt.Errorf("blob upload via firestore adapter: %w", sentinel.ErrUnavailable)
}

// BlobURL composes the public URL for an uploaded blob.
func (s *Store) BlobURL(ctx context.Context, path string) (string, error) {
	if s.blobBaseURL == "" {
		return "", fmt.Errorf("blob base url not configured: %w", sentinel.ErrUnavailable)
	}
	return s.blobBaseURL + "/" + path, nil
}

func collectDocs(snap *firestore.QuerySnapshot) ([]remote.Doc, error) {
	var out []remote.Doc
	for {
		docSnap, err := snap.Documents.Next()
		if err == iterator.Done {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("iterate query snapshot: %w", err)
		}
		doc, err := encodeSnapshot(docSnap)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
}

// encodeSnapshot bridges Firestore's field map into the JSON document shape
// the rest of the system speaks.
func encodeSnapshot(snap *firestore.DocumentSnapshot) (remote.Doc, error) {
	data, err := json.Marshal(snap.Data())
	if err != nil {
		return remote.Doc{}, fmt.Errorf("encode document %s: %w", snap.Ref.ID, err)
	}
	return remote.Doc{ID: snap.Ref.ID, Data: data}, nil
}
