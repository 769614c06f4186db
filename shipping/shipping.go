package shipping

import (
	"context"

	"github.com/vinayprograms/freightkit/cargo"
	"github.com/vinayprograms/freightkit/errors"
)

// Request is one dispatch call: a load moving between two cities.
type Request struct {
	Source      cargo.CityID
	Destination cargo.CityID
	Resource    cargo.Vector
	Vessels     int64
	ShipType    cargo.ShipType
}

// RequestFor builds the dispatch request for a shipment or load.
func RequestFor(s cargo.Shipment) Request {
	return Request{
		Source:      s.Source,
		Destination: s.Destination,
		Resource:    s.Resource,
		Vessels:     s.Vessels,
		ShipType:    s.ShipType,
	}
}

// Service sends loads. Dispatch returns nil on success, a retryable error
// for transient failures and a non-retryable one for permanent failures.
// A call in progress is never interrupted by shutdown.
type Service interface {
	Dispatch(ctx context.Context, req Request) error
}

// SupplierQuery lists candidate source cities for one planning pass.
type SupplierQuery interface {
	// ListSuppliers returns a snapshot of every city except exclude, with
	// Distance measured from exclude.
	ListSuppliers(ctx context.Context, exclude cargo.CityID) ([]cargo.Supplier, error)
}

// StorageQuery reports how much more a city can store per kind. ok is
// false when the city does not report storage limits.
type StorageQuery interface {
	FreeStorage(ctx context.Context, city cargo.CityID) (free cargo.Vector, ok bool, err error)
}

// HoldingQuery reads stock and storage for a chosen set of cities in one
// call. Distribution plans are built from it.
type HoldingQuery interface {
	Holdings(ctx context.Context, cities []cargo.CityID) ([]cargo.Holding, error)
}

// Transient wraps a failure that may succeed if retried.
func Transient(message string, cause error) *errors.Error {
	if cause == nil {
		return errors.Unavailable(message)
	}
	return errors.Unavailable(message, errors.WithCause(cause))
}

// Permanent wraps a failure that will not succeed if retried.
func Permanent(message string, cause error) *errors.Error {
	if cause == nil {
		return errors.Rejected(message)
	}
	return errors.Rejected(message, errors.WithCause(cause))
}

// Retryable reports whether a dispatch error is worth retrying.
func Retryable(err error) bool {
	return errors.IsRetryable(err)
}
