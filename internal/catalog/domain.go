package catalog

import (
	"errors"
	"time"
)

// Reference maps a supplier-facing external code to the workshop's internal
// material identity. External codes come from supplier catalogues and order
// forms; everything inside the workshop speaks internal codes.
type Reference struct {
	ID              int64
	ExternalCode    string
	InternalCode    string
	Category        string
	DefaultSupplier string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// UpsertInput creates or updates a reference mapping keyed by external code.
type UpsertInput struct {
	ExternalCode    string
	InternalCode    string
	Category        string
	DefaultSupplier string
	ActorID         int64
}

// ListFilter filters reference listings.
type ListFilter struct {
	Category string
	Limit    int
}

// ErrReferenceNotFound indicates an external code with no mapping.
var ErrReferenceNotFound = errors.New("catalog: reference not found")

// ErrInvalidReference indicates a mapping missing required fields.
var ErrInvalidReference = errors.New("catalog: external and internal codes required")
