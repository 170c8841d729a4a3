package memory_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestfeed/internal/remote"
	"nestfeed/internal/remote/memory"
	"nestfeed/pkg/sentinel"
)

type fields map[string]any

func set(t *testing.T, s *memory.Store, collection, id string, f fields) {
	t.Helper()
	require.NoError(t, s.SetDocument(context.Background(), collection, id, f))
}

func decode(t *testing.T, doc remote.Doc) fields {
	t.Helper()
	var f fields
	require.NoError(t, json.Unmarshal(doc.Data, &f))
	return f
}

func TestPointReadsAndMisses(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()

	set(t, s, "things", "a", fields{"name": "first"})

	doc, err := s.GetDocument(ctx, "things", "a")
	require.NoError(t, err)
	assert.Equal(t, "a", doc.ID)
	assert.Equal(t, "first", decode(t, doc)["name"])

	_, err = s.GetDocument(ctx, "things", "missing")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	// Deleting an absent id is not an error.
	assert.NoError(t, s.DeleteDocument(ctx, "things", "missing"))
}

func TestAllocateIDIsUniqueAndWriteFree(t *testing.T) {
	s := memory.NewStore()
	seen := make(map[string]bool)
	for range 100 {
		id := s.AllocateID("things")
		assert.False(t, seen[id])
		seen[id] = true
		_, err := s.GetDocument(context.Background(), "things", id)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	}
}

func TestSubscriberSeesSnapshotsInMutationOrder(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()

	var mu sync.Mutex
	var sizes []int
	unsubscribe, err := s.SubscribeQuery(ctx, "things", remote.Query{}, func(docs []remote.Doc) {
		mu.Lock()
		sizes = append(sizes, len(docs))
		mu.Unlock()
	}, nil)
	require.NoError(t, err)

	set(t, s, "things", "a", fields{"n": 1})
	set(t, s, "things", "b", fields{"n": 2})
	require.NoError(t, s.DeleteDocument(ctx, "things", "a"))

	unsubscribe()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 1}, sizes, "initial snapshot, then one per mutation")
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()

	calls := 0
	unsubscribe, err := s.SubscribeQuery(ctx, "things", remote.Query{}, func([]remote.Doc) {
		calls++
	}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	unsubscribe()
	unsubscribe() // idempotent
	set(t, s, "things", "a", fields{"n": 1})

	assert.Equal(t, 1, calls, "no delivery after unsubscribe returns")
}

func TestQueryFilterAndOrder(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()

	set(t, s, "things", "a", fields{"owner": "x", "rank": 3})
	set(t, s, "things", "b", fields{"owner": "y", "rank": 1})
	set(t, s, "things", "c", fields{"owner": "x", "rank": 2})

	var got []remote.Doc
	unsubscribe, err := s.SubscribeQuery(ctx, "things",
		remote.Query{FilterField: "owner", FilterValue: "x", OrderBy: "rank"},
		func(docs []remote.Doc) { got = docs }, nil)
	require.NoError(t, err)
	defer unsubscribe()

	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
}

func TestNumericFilterMatchesAcrossIntAndFloat(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()

	set(t, s, "things", "a", fields{"rooms": 2})

	var got []remote.Doc
	unsubscribe, err := s.SubscribeQuery(ctx, "things",
		remote.Query{FilterField: "rooms", FilterValue: 2},
		func(docs []remote.Doc) { got = docs }, nil)
	require.NoError(t, err)
	defer unsubscribe()

	// JSON decodes numbers as float64; the filter still matches the int.
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

func TestSubscribeRequiresCallback(t *testing.T) {
	s := memory.NewStore()
	_, err := s.SubscribeQuery(context.Background(), "things", remote.Query{}, nil, nil)
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)
}

func TestBlobRoundTrip(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()

	require.NoError(t, s.UploadBlob(ctx, "listings/l1", []byte("img")))

	url, err := s.BlobURL(ctx, "listings/l1")
	require.NoError(t, err)
	assert.Equal(t, "mem://listings/l1", url)

	data, ok := s.Blob("listings/l1")
	require.True(t, ok)
	assert.Equal(t, []byte("img"), data)

	_, err = s.BlobURL(ctx, "listings/absent")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
