package stock

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MovementKind enumerates supported stock movements.
type MovementKind string

const (
	// MovementEntry represents goods received into stock.
	MovementEntry MovementKind = "ENTRY"
	// MovementExit represents goods leaving stock (shipment, sale).
	MovementExit MovementKind = "EXIT"
	// MovementConsumption represents material consumed by cutting.
	MovementConsumption MovementKind = "CONSUMPTION"
	// MovementAdjustment changes location/price/unit only, never quantity.
	MovementAdjustment MovementKind = "ADJUSTMENT"
	// MovementWidthReduction records the batch spawned by a délaizage split.
	MovementWidthReduction MovementKind = "WIDTH_REDUCTION"
)

// IsValid reports whether the kind is a known movement kind.
func (k MovementKind) IsValid() bool {
	switch k {
	case MovementEntry, MovementExit, MovementConsumption, MovementAdjustment, MovementWidthReduction:
		return true
	default:
		return false
	}
}

// Outbound reports whether the kind depletes a batch.
func (k MovementKind) Outbound() bool {
	return k == MovementExit || k == MovementConsumption
}

// Unit enumerates quantity units.
type Unit string

const (
	// UnitLinearMetre is métrage for roll-form materials.
	UnitLinearMetre Unit = "ML"
	// UnitSquareMetre is surface quantity.
	UnitSquareMetre Unit = "M2"
	// UnitPiece counts discrete items.
	UnitPiece Unit = "PC"
)

// IsValid reports whether the unit is known.
func (u Unit) IsValid() bool {
	switch u {
	case UnitLinearMetre, UnitSquareMetre, UnitPiece:
		return true
	default:
		return false
	}
}

// Origin tags identifying which workflow produced a movement.
const (
	OriginReceiving = "RECEIVING"
	OriginCutting   = "CUTTING"
	OriginShipment  = "SHIPMENT"
	OriginManual    = "MANUAL"
	OriginDelaizage = "DELAIZAGE"
)

// Batch models one physical roll/lot of a material. A batch row is never
// deleted once goods have been received against it; a zero quantity row stays
// as a historical record.
type Batch struct {
	ID                int64
	MaterialRef       string
	BatchKey          string
	Quantity          decimal.Decimal
	Unit              Unit
	WidthMM           decimal.Decimal
	Location          string
	SupplierBatchCode string
	Supplier          string
	UnitPrice         decimal.Decimal
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Movement is an append-only audit entry for one ledger mutation.
// QtyAfter always equals QtyBefore + QtyDelta; adjustments carry a zero delta.
type Movement struct {
	ID          int64
	Kind        MovementKind
	MaterialRef string
	BatchKey    string
	QtyBefore   decimal.Decimal
	QtyDelta    decimal.Decimal
	QtyAfter    decimal.Decimal
	Unit        Unit
	Origin      string
	Note        string
	RefID       string
	CreatedAt   time.Time
}

// MaterialInfo is the catalog resolution result used at receipt time.
type MaterialInfo struct {
	InternalCode    string
	Category        string
	DefaultSupplier string
}

// ReceiveInput describes a stock receipt request.
type ReceiveInput struct {
	MaterialExternalCode string
	BatchKey             string
	SupplierBatchCode    string
	Supplier             string
	Quantity             decimal.Decimal
	Unit                 Unit
	WidthMM              decimal.Decimal
	Location             string
	UnitPrice            decimal.Decimal
	Note                 string
	Origin               string
	ActorID              int64
	RefID                string
}

// ConsumeInput describes an EXIT or CONSUMPTION request.
type ConsumeInput struct {
	BatchKey string
	Quantity decimal.Decimal
	Kind     MovementKind
	Note     string
	Origin   string
	ActorID  int64
	RefID    string
}

// AdjustInput updates non-quantity batch attributes. Nil fields are left
// unchanged; at least one must be supplied.
type AdjustInput struct {
	BatchKey  string
	Location  *string
	UnitPrice *decimal.Decimal
	Unit      *Unit
	Note      string
	Origin    string
	ActorID   int64
}

// SplitWidthInput describes a délaizage request.
type SplitWidthInput struct {
	BatchKey        string
	WidthToRemoveMM decimal.Decimal
	Note            string
	Origin          string
	ActorID         int64
}

// SplitResult carries both sides of a délaizage split.
type SplitResult struct {
	Source   Batch
	Derived  Batch
	Movement Movement
}

// MovementFilter filters movement history queries.
type MovementFilter struct {
	MaterialRef string
	BatchKey    string
	Kind        MovementKind
	From        time.Time
	To          time.Time
	Limit       int
}

// ErrInvalidQuantity indicates a non-positive quantity.
var ErrInvalidQuantity = errors.New("stock: quantity must be positive")

// ErrInvalidUnit indicates an unknown unit.
var ErrInvalidUnit = errors.New("stock: unknown unit")

// ErrInvalidAttribute indicates a batch attribute outside its valid range.
var ErrInvalidAttribute = errors.New("stock: invalid attribute")

// ErrInvalidMovementKind indicates an unsupported kind for the operation.
var ErrInvalidMovementKind = errors.New("stock: invalid movement kind")

// ErrDuplicateBatch indicates a batch key collision on receipt.
var ErrDuplicateBatch = errors.New("stock: batch key already exists")

// ErrNoOpAdjustment indicates an adjustment with no field supplied.
var ErrNoOpAdjustment = errors.New("stock: adjustment must change at least one attribute")

// ErrInvalidWidthReduction indicates a width reduction out of range.
var ErrInvalidWidthReduction = errors.New("stock: width to remove must be strictly between zero and the batch width")

// ErrInsufficientStock indicates the requested quantity exceeds availability.
var ErrInsufficientStock = errors.New("stock: insufficient quantity")

// InsufficientStockError carries the available amount so callers can surface
// it instead of silently truncating the request.
type InsufficientStockError struct {
	BatchKey  string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("stock: batch %s has %s available, requested %s", e.BatchKey, e.Available, e.Requested)
}

// Unwrap lets errors.Is match ErrInsufficientStock.
func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}
