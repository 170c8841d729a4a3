// Package remote defines the ports onto the authoritative backend: credential
// lifecycle, document reads/writes with live queries, and blob storage. The
// rest of the system consumes these interfaces; implementations live in
// subpackages.
package remote

import "context"

//go:generate mockgen -source=remote.go -destination=mocks/mocks.go -package=mocks

// Credential is an established external identity: the stable identity string
// plus the token minted for it.
type Credential struct {
	Identity string
	Email    string
	Token    string
}

// CredentialService owns the external authentication lifecycle. The change
// stream is the single source of truth for session state transitions: Verify,
// Create and Invalidate acknowledge the network operation, the stream confirms
// the settled state.
type CredentialService interface {
	// OnCredentialChange registers cb and immediately delivers the current
	// credential (or nil when absent), then again on every change. Callbacks
	// for one subscriber run sequentially with at most one in flight. The
	// returned function releases the subscription; after it returns cb is
	// never invoked again.
	OnCredentialChange(cb func(cred *Credential)) (unsubscribe func())

	Verify(ctx context.Context, email, password string) (Credential, error)
	Create(ctx context.Context, email, password string) (Credential, error)
	Invalidate(ctx context.Context) error
}

// Doc is one serialized document: its store-assigned id and JSON fields.
type Doc struct {
	ID   string
	Data []byte
}

// Query narrows and orders a collection subscription. OrderBy sorts ascending
// by the named field. FilterField with FilterValue restricts to exact-match
// equality. Zero values mean unfiltered, insertion-ordered results.
type Query struct {
	OrderBy     string
	FilterField string
	FilterValue any
}

// DocumentStore is the authoritative document database. Live queries push the
// complete current result set on every change, never deltas.
type DocumentStore interface {
	// AllocateID reserves a new document id without writing anything.
	AllocateID(collection string) string

	// GetDocument performs a point read. Misses return sentinel.ErrNotFound.
	GetDocument(ctx context.Context, collection, id string) (Doc, error)

	// SetDocument creates or replaces a document with the given fields.
	SetDocument(ctx context.Context, collection, id string, fields any) error

	// DeleteDocument removes a document. Deleting an absent id is not an error.
	DeleteDocument(ctx context.Context, collection, id string) error

	// SubscribeQuery establishes a live query. onSnapshot receives the full
	// matching result set immediately and after every change, in the order the
	// store observes mutations. onErr receives subscription failures without
	// terminating the subscription. The returned function tears the listener
	// down; after it returns no further callbacks are delivered.
	SubscribeQuery(ctx context.Context, collection string, q Query, onSnapshot func(docs []Doc), onErr func(err error)) (unsubscribe func(), err error)
}

// BlobStore holds listing images keyed by path.
type BlobStore interface {
	UploadBlob(ctx context.Context, path string, data []byte) error
	BlobURL(ctx context.Context, path string) (string, error)
}
