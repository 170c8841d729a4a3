package domain

import (
	"time"

	"nestfeed/pkg/derrors"
)

// Collection names in the remote document store.
const (
	CollectionListings = "listings"
	CollectionProfiles = "users"
)

// Listing is a published property advertisement. ID is the document key,
// assigned by the store at creation. CreatedAt is immutable after creation and
// defines the default display ordering.
type Listing struct {
	ID          string    `json:"id" firestore:"-"`
	Description string    `json:"description" firestore:"description"`
	AreaSize    string    `json:"areaSize" firestore:"areaSize"`
	Rooms       int       `json:"rooms" firestore:"rooms"`
	Price       float64   `json:"price" firestore:"price"`
	ImageURL    string    `json:"imageUrl" firestore:"imageUrl"`
	OwnerID     string    `json:"ownerId" firestore:"ownerId"`
	CreatedAt   time.Time `json:"createdAt" firestore:"createdAt"`
}

// Validate checks the field invariants before a write reaches the store.
func (l Listing) Validate() error {
	if l.Description == "" {
		return derrors.New(derrors.CodeInvalidInput, "description is required")
	}
	if l.AreaSize == "" {
		return derrors.New(derrors.CodeInvalidInput, "area size is required")
	}
	if l.Rooms < 0 {
		return derrors.New(derrors.CodeInvalidInput, "rooms must be >= 0")
	}
	if l.Price < 0 {
		return derrors.New(derrors.CodeInvalidInput, "price must be >= 0")
	}
	if l.OwnerID == "" {
		return derrors.New(derrors.CodeInvalidInput, "owner id is required")
	}
	return nil
}
