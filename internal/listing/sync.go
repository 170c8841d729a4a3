// Package listing carries the live listing feed and the write paths around
// it. Sync maps filter/order parameters onto a continuously updating result
// set and serves single-document reads through the advisory cache; Service
// owns create, save and delete.
package listing

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"nestfeed/internal/cache"
	"nestfeed/internal/domain"
	"nestfeed/internal/platform/metrics"
	"nestfeed/internal/remote"
	"nestfeed/pkg/derrors"
	"nestfeed/pkg/sentinel"
)

// Params identifies a subscription: ascending order by OrderBy when set,
// exact-match equality on FilterField/FilterValue when both set. Zero Params
// subscribe to the unfiltered, insertion-ordered set.
type Params struct {
	OrderBy     string
	FilterField string
	FilterValue any
}

// Sync wraps live queries against the remote store and the cached detail-read
// path.
type Sync struct {
	docs   remote.DocumentStore
	cache  cache.Cache
	logger *slog.Logger
	stats  *metrics.Metrics
	tracer trace.Tracer
	group  singleflight.Group
}

type SyncOption func(*Sync)

func WithSyncLogger(logger *slog.Logger) SyncOption {
	return func(s *Sync) { s.logger = logger }
}

func WithSyncMetrics(stats *metrics.Metrics) SyncOption {
	return func(s *Sync) { s.stats = stats }
}

func WithSyncTracer(tracer trace.Tracer) SyncOption {
	return func(s *Sync) { s.tracer = tracer }
}

func NewSync(docs remote.DocumentStore, c cache.Cache, opts ...SyncOption) *Sync {
	s := &Sync{
		docs:   docs,
		cache:  c,
		logger: slog.Default(),
		tracer: otel.Tracer("nestfeed/listing"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscription is one live result feed. Each value on Snapshots is the
// complete current result set; consumers replace their working set on every
// emission, never merge. Errors arrive on a separate channel and do not
// terminate the feed; recovery is a fresh Subscribe.
type Subscription struct {
	snapshots   chan []domain.Listing
	errs        chan error
	unsubscribe func()

	mu     sync.Mutex
	closed bool
}

func (s *Subscription) Snapshots() <-chan []domain.Listing { return s.snapshots }
func (s *Subscription) Errs() <-chan error                 { return s.errs }

// Close tears the remote listener down. Idempotent; after Close returns the
// channels are closed and no snapshot is ever delivered again.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	// unsubscribe blocks until in-flight deliveries have finished, so closing
	// the channels afterwards cannot race a send.
	s.unsubscribe()
	close(s.snapshots)
	close(s.errs)
}

// deliverSnapshot conflates: a consumer that has not drained the previous
// snapshot only ever sees the latest complete result set.
func (s *Subscription) deliverSnapshot(listings []domain.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.snapshots <- listings:
	default:
		select {
		case <-s.snapshots:
		default:
		}
		select {
		case s.snapshots <- listings:
		default:
		}
	}
}

func (s *Subscription) deliverErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.errs <- err:
	default:
	}
}

// Subscribe establishes a live query for params. The first snapshot (the
// current result set) is available immediately. Re-subscribing with the same
// params after a teardown starts a fresh remote listener.
func (s *Sync) Subscribe(ctx context.Context, params Params) (*Subscription, error) {
	sub := &Subscription{
		snapshots: make(chan []domain.Listing, 1),
		errs:      make(chan error, 1),
	}

	q := remote.Query{
		OrderBy:     params.OrderBy,
		FilterField: params.FilterField,
		FilterValue: params.FilterValue,
	}
	unsubscribe, err := s.docs.SubscribeQuery(ctx, domain.CollectionListings, q,
		func(docs []remote.Doc) {
			sub.deliverSnapshot(s.decodeAll(docs))
			if s.stats != nil {
				s.stats.SnapshotsDelivered.Inc()
			}
		},
		func(err error) {
			s.logger.Error("listing subscription error", "error", err)
			sub.deliverErr(derrors.Wrap(err, derrors.CodeStore, "listing subscription"))
		},
	)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeStore, "subscribe listings")
	}
	sub.unsubscribe = unsubscribe
	return sub, nil
}

// List is the one-shot form of Subscribe: current result set, then teardown.
func (s *Sync) List(ctx context.Context, params Params) ([]domain.Listing, error) {
	sub, err := s.Subscribe(ctx, params)
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	select {
	case snapshot := <-sub.Snapshots():
		return snapshot, nil
	case err := <-sub.Errs():
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get is the detail-read path: local cache first, remote point read on a
// miss, cache repopulated from the fetch. The cached copy is served even when
// a live query for the same collection is active; that staleness window is a
// deliberate latency trade-off, not a bug. Concurrent misses for one id
// collapse into a single remote fetch.
func (s *Sync) Get(ctx context.Context, id string) (domain.Listing, error) {
	ctx, span := s.tracer.Start(ctx, "listing.get")
	defer span.End()

	key := cache.ListingKey(id)
	if raw, err := s.cache.Get(ctx, key); err == nil {
		var l domain.Listing
		if err := json.Unmarshal([]byte(raw), &l); err == nil {
			if s.stats != nil {
				s.stats.CacheHits.Inc()
			}
			return l, nil
		}
		s.logger.Warn("cache entry undecodable, falling through to remote", "key", key, "error", err)
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		// Cache failures are advisory: log and fall through.
		s.logger.Warn("cache read failed", "key", key, "error", err)
	}
	if s.stats != nil {
		s.stats.CacheMisses.Inc()
	}

	v, err, _ := s.group.Do(id, func() (any, error) {
		doc, err := s.docs.GetDocument(ctx, domain.CollectionListings, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			return domain.Listing{}, derrors.Wrap(err, derrors.CodeNotFound, "listing "+id)
		}
		if err != nil {
			return domain.Listing{}, derrors.Wrap(err, derrors.CodeStore, "fetch listing "+id)
		}

		l, err := decodeListing(doc)
		if err != nil {
			return domain.Listing{}, err
		}

		if data, err := json.Marshal(l); err == nil {
			if err := s.cache.Set(ctx, key, string(data)); err != nil {
				s.logger.Warn("cache write failed", "key", key, "error", err)
			}
		}
		return l, nil
	})
	if err != nil {
		return domain.Listing{}, err
	}
	return v.(domain.Listing), nil
}

func (s *Sync) decodeAll(docs []remote.Doc) []domain.Listing {
	out := make([]domain.Listing, 0, len(docs))
	for _, doc := range docs {
		l, err := decodeListing(doc)
		if err != nil {
			s.logger.Warn("skipping undecodable listing document", "id", doc.ID, "error", err)
			continue
		}
		out = append(out, l)
	}
	return out
}

func decodeListing(doc remote.Doc) (domain.Listing, error) {
	var l domain.Listing
	if err := json.Unmarshal(doc.Data, &l); err != nil {
		return domain.Listing{}, derrors.Wrap(err, derrors.CodeStore, "decode listing "+doc.ID)
	}
	l.ID = doc.ID
	return l, nil
}
