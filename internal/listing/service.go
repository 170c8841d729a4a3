package listing

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"nestfeed/internal/audit"
	"nestfeed/internal/cache"
	"nestfeed/internal/domain"
	"nestfeed/internal/platform/metrics"
	"nestfeed/internal/remote"
	"nestfeed/pkg/derrors"
	"nestfeed/pkg/sentinel"
)

// AuditPublisher emits audit events for listing lifecycle changes.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Draft is the user-entered part of a new listing.
type Draft struct {
	Description string
	AreaSize    string
	Rooms       int
	Price       float64
}

// Service owns the listing write paths: blob upload, document write, and the
// write-through cache population that follows a successful create.
type Service struct {
	docs   remote.DocumentStore
	blobs  remote.BlobStore
	cache  cache.Cache
	logger *slog.Logger
	pub    AuditPublisher
	stats  *metrics.Metrics
}

type ServiceOption func(*Service)

func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

func WithServiceAuditPublisher(pub AuditPublisher) ServiceOption {
	return func(s *Service) { s.pub = pub }
}

func WithServiceMetrics(stats *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.stats = stats }
}

func NewService(docs remote.DocumentStore, blobs remote.BlobStore, c cache.Cache, opts ...ServiceOption) *Service {
	s := &Service{
		docs:   docs,
		blobs:  blobs,
		cache:  c,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create publishes a new listing owned by ownerID: upload the image blob
// under the new document id, write the document with a server-assigned
// creation time, then write through to the local cache (single entry plus the
// device bulk key). Cache failures are logged and swallowed; there is no
// transactional guarantee across document and blob.
func (s *Service) Create(ctx context.Context, ownerID string, draft Draft, image []byte) (domain.Listing, error) {
	l := domain.Listing{
		Description: draft.Description,
		AreaSize:    draft.AreaSize,
		Rooms:       draft.Rooms,
		Price:       draft.Price,
		OwnerID:     ownerID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := l.Validate(); err != nil {
		return domain.Listing{}, err
	}

	id := s.docs.AllocateID(domain.CollectionListings)
	l.ID = id

	if len(image) > 0 {
		path := domain.CollectionListings + "/" + id
		if err := s.blobs.UploadBlob(ctx, path, image); err != nil {
			return domain.Listing{}, derrors.Wrap(err, derrors.CodeStore, "upload listing image")
		}
		url, err := s.blobs.BlobURL(ctx, path)
		if err != nil {
			return domain.Listing{}, derrors.Wrap(err, derrors.CodeStore, "resolve image url")
		}
		l.ImageURL = url
	}

	if err := s.docs.SetDocument(ctx, domain.CollectionListings, id, l); err != nil {
		return domain.Listing{}, derrors.Wrap(err, derrors.CodeStore, "write listing document")
	}

	s.populateCache(ctx, l)

	if s.stats != nil {
		s.stats.ListingsCreated.Inc()
	}
	s.emitAudit(ctx, audit.Event{Actor: ownerID, Action: audit.ActionListingCreated, Entity: id})
	return l, nil
}

// Save updates an existing listing. Only the owner may write; CreatedAt and
// OwnerID are immutable and taken from the stored document. The single-entry
// cache key is refreshed on success.
func (s *Service) Save(ctx context.Context, callerID string, l domain.Listing) (domain.Listing, error) {
	existing, err := s.load(ctx, l.ID)
	if err != nil {
		return domain.Listing{}, err
	}
	if existing.OwnerID != callerID {
		return domain.Listing{}, derrors.New(derrors.CodePermission, "listing belongs to another realtor")
	}

	l.OwnerID = existing.OwnerID
	l.CreatedAt = existing.CreatedAt
	if l.ImageURL == "" {
		l.ImageURL = existing.ImageURL
	}
	if err := l.Validate(); err != nil {
		return domain.Listing{}, err
	}

	if err := s.docs.SetDocument(ctx, domain.CollectionListings, l.ID, l); err != nil {
		return domain.Listing{}, derrors.Wrap(err, derrors.CodeStore, "update listing document")
	}

	if data, err := json.Marshal(l); err == nil {
		if err := s.cache.Set(ctx, cache.ListingKey(l.ID), string(data)); err != nil {
			s.logger.Warn("cache refresh failed", "id", l.ID, "error", err)
		}
	}

	s.emitAudit(ctx, audit.Event{Actor: callerID, Action: audit.ActionListingUpdated, Entity: l.ID})
	return l, nil
}

// Delete removes a listing. The detail cache entry is deliberately left in
// place; it ages out by overwrite only.
func (s *Service) Delete(ctx context.Context, callerID, id string) error {
	existing, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if existing.OwnerID != callerID {
		return derrors.New(derrors.CodePermission, "listing belongs to another realtor")
	}

	if err := s.docs.DeleteDocument(ctx, domain.CollectionListings, id); err != nil {
		return derrors.Wrap(err, derrors.CodeStore, "delete listing document")
	}

	s.emitAudit(ctx, audit.Event{Actor: callerID, Action: audit.ActionListingDeleted, Entity: id})
	return nil
}

func (s *Service) load(ctx context.Context, id string) (domain.Listing, error) {
	if id == "" {
		return domain.Listing{}, derrors.New(derrors.CodeInvalidInput, "listing id is required")
	}
	doc, err := s.docs.GetDocument(ctx, domain.CollectionListings, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return domain.Listing{}, derrors.Wrap(err, derrors.CodeNotFound, "listing "+id)
	}
	if err != nil {
		return domain.Listing{}, derrors.Wrap(err, derrors.CodeStore, "fetch listing "+id)
	}
	return decodeListing(doc)
}

func (s *Service) populateCache(ctx context.Context, l domain.Listing) {
	data, err := json.Marshal(l)
	if err != nil {
		s.logger.Warn("marshal listing for cache failed", "id", l.ID, "error", err)
		return
	}
	if err := s.cache.Set(ctx, cache.ListingKey(l.ID), string(data)); err != nil {
		s.logger.Warn("cache write failed", "id", l.ID, "error", err)
	}
	if err := cache.AppendDeviceListing(ctx, s.cache, l); err != nil {
		s.logger.Warn("device listings append failed", "id", l.ID, "error", err)
	}
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Emit(ctx, event); err != nil {
		s.logger.Warn("audit emit failed", "action", string(event.Action), "error", err)
	}
}
