package production

import (
	"errors"
	"time"
)

// Status enumerates production item stages. The set is closed; unknown values
// are rejected at the boundary instead of defaulting.
type Status string

const (
	StatusToDo                   Status = "TO_DO"
	StatusCuttingInProgress      Status = "CUTTING_IN_PROGRESS"
	StatusConfectionToDo         Status = "CONFECTION_TO_DO"
	StatusAssemblyToDo           Status = "ASSEMBLY_TO_DO"
	StatusAwaitingPurchaseResale Status = "AWAITING_PURCHASE_RESALE"
	StatusConfectionInProgress   Status = "CONFECTION_IN_PROGRESS"
	StatusAssemblyInProgress     Status = "ASSEMBLY_IN_PROGRESS"
	StatusReadyToShip            Status = "READY_TO_SHIP"
	StatusShipped                Status = "SHIPPED"
)

// IsValid reports whether the status belongs to the closed set.
func (s Status) IsValid() bool {
	switch s {
	case StatusToDo, StatusCuttingInProgress, StatusConfectionToDo, StatusAssemblyToDo,
		StatusAwaitingPurchaseResale, StatusConfectionInProgress, StatusAssemblyInProgress,
		StatusReadyToShip, StatusShipped:
		return true
	default:
		return false
	}
}

// Stage enumerates workshop production stages.
type Stage string

const (
	StageCutting    Stage = "CUTTING"
	StageConfection Stage = "CONFECTION"
	StageAssembly   Stage = "ASSEMBLY"
	StageShipment   Stage = "SHIPMENT"
)

// IsValid reports whether the stage is known.
func (s Stage) IsValid() bool {
	switch s {
	case StageCutting, StageConfection, StageAssembly, StageShipment:
		return true
	default:
		return false
	}
}

// startTransition returns the exact predecessor status a stage start expects
// and the in-progress status it moves items into. Shipment has no in-progress
// leg; it completes directly from READY_TO_SHIP.
func (s Stage) startTransition() (from, to Status, ok bool) {
	switch s {
	case StageCutting:
		return StatusToDo, StatusCuttingInProgress, true
	case StageConfection:
		return StatusConfectionToDo, StatusConfectionInProgress, true
	case StageAssembly:
		return StatusAssemblyToDo, StatusAssemblyInProgress, true
	default:
		return "", "", false
	}
}

// completeFrom returns the status items must hold for a stage completion.
func (s Stage) completeFrom() (Status, bool) {
	switch s {
	case StageCutting:
		return StatusCuttingInProgress, true
	case StageConfection:
		return StatusConfectionInProgress, true
	case StageAssembly:
		return StatusAssemblyInProgress, true
	case StageShipment:
		return StatusReadyToShip, true
	default:
		return "", false
	}
}

// completeAssignmentFrom returns the assignment state a stage completion
// closes out. Shipment has no start leg, so its assignment goes straight
// from PENDING to DONE.
func (s Stage) completeAssignmentFrom() AssignmentState {
	if s == StageShipment {
		return AssignmentPending
	}
	return AssignmentInProgress
}

// AssignmentState tracks the lifecycle of a task assignment.
type AssignmentState string

const (
	AssignmentPending    AssignmentState = "PENDING"
	AssignmentInProgress AssignmentState = "IN_PROGRESS"
	AssignmentDone       AssignmentState = "DONE"
)

// Item is a production line item: a quantity of one product reference for one
// client, advancing through the routing graph.
type Item struct {
	ID         int64
	ClientName string
	ProductRef string
	Category   string
	Quantity   int
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TaskAssignment links an item to a stage and its lifecycle state. It moves in
// lockstep with the item status for the same stage and never outlives the item.
type TaskAssignment struct {
	ID          int64
	ItemID      int64
	Stage       Stage
	State       AssignmentState
	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// HistoryEntry is the append-only production counterpart of a stock movement:
// one entry per item status transition.
type HistoryEntry struct {
	ID              int64
	ItemID          int64
	ProductRef      string
	Stage           Stage
	FromStatus      Status
	ToStatus        Status
	DurationMinutes int
	Origin          string
	CreatedAt       time.Time
}

// CreateItemInput describes a new production item.
type CreateItemInput struct {
	ClientName string
	ProductRef string
	Category   string
	Quantity   int
	ActorID    int64
}

// StartStageInput moves matching items into a stage's in-progress status.
type StartStageInput struct {
	Stage       Stage
	ProductRefs []string
	ActorID     int64
}

// CompleteStageInput moves matching in-progress items to their successor
// status. HasCutting reports whether raw material was actually consumed during
// a cutting event; it overrides the category routing.
type CompleteStageInput struct {
	Stage           Stage
	ProductRefs     []string
	DurationMinutes int
	HasCutting      bool
	ActorID         int64
}

// StageResult reports what a stage operation touched. Skipped lists product
// references with no item in the expected predecessor status; skipping them is
// the documented partial-success policy for mixed batches, not error masking.
type StageResult struct {
	Updated []Item
	Skipped []string
}

// ItemFilter filters item listings.
type ItemFilter struct {
	ClientName string
	ProductRef string
	Status     Status
	Limit      int
}

// HistoryFilter filters history listings.
type HistoryFilter struct {
	ProductRef string
	Stage      Stage
	From       time.Time
	To         time.Time
	Limit      int
}

// ErrInvalidStage indicates an unknown stage or one unsupported by the operation.
var ErrInvalidStage = errors.New("production: invalid stage")

// ErrUnknownStatus indicates a status outside the closed set.
var ErrUnknownStatus = errors.New("production: unknown status")

// ErrInvalidDuration indicates a negative stage duration.
var ErrInvalidDuration = errors.New("production: duration must not be negative")

// ErrItemNotFound indicates a missing production item.
var ErrItemNotFound = errors.New("production: item not found")
