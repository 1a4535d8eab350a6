package production

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryRepo is an in-memory RepositoryPort for service tests.
type memoryRepo struct {
	nextItemID    int64
	nextHistoryID int64
	items         map[int64]*Item
	assignments   []*TaskAssignment
	history       []HistoryEntry
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: make(map[int64]*Item)}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: m})
}

func (m *memoryRepo) ListItems(_ context.Context, filter ItemFilter) ([]Item, error) {
	var out []Item
	for _, item := range m.items {
		if filter.ProductRef != "" && item.ProductRef != filter.ProductRef {
			continue
		}
		if filter.ClientName != "" && item.ClientName != filter.ClientName {
			continue
		}
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		out = append(out, *item)
	}
	return out, nil
}

func (m *memoryRepo) ListHistory(_ context.Context, filter HistoryFilter) ([]HistoryEntry, error) {
	var out []HistoryEntry
	for _, entry := range m.history {
		if filter.ProductRef != "" && entry.ProductRef != filter.ProductRef {
			continue
		}
		if filter.Stage != "" && entry.Stage != filter.Stage {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) InsertItem(_ context.Context, item Item) (Item, error) {
	t.repo.nextItemID++
	item.ID = t.repo.nextItemID
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	stored := item
	t.repo.items[item.ID] = &stored
	return item, nil
}

func (t *memoryTx) GetItemsForUpdate(_ context.Context, productRef string, status Status) ([]Item, error) {
	var out []Item
	for _, item := range t.repo.items {
		if item.ProductRef == productRef && item.Status == status {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (t *memoryTx) UpdateItemStatus(_ context.Context, itemID int64, status Status) error {
	item, ok := t.repo.items[itemID]
	if !ok {
		return ErrItemNotFound
	}
	item.Status = status
	item.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *memoryTx) InsertAssignment(_ context.Context, itemID int64, stage Stage) error {
	t.repo.assignments = append(t.repo.assignments, &TaskAssignment{
		ID:        int64(len(t.repo.assignments) + 1),
		ItemID:    itemID,
		Stage:     stage,
		State:     AssignmentPending,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (t *memoryTx) TransitionAssignments(_ context.Context, itemID int64, stage Stage, from, to AssignmentState, at time.Time) error {
	for _, a := range t.repo.assignments {
		if a.ItemID != itemID || a.Stage != stage || a.State != from {
			continue
		}
		a.State = to
		switch to {
		case AssignmentInProgress:
			a.StartedAt = &at
		case AssignmentDone:
			a.CompletedAt = &at
		}
	}
	return nil
}

func (t *memoryTx) InsertHistory(_ context.Context, entry HistoryEntry) (HistoryEntry, error) {
	t.repo.nextHistoryID++
	entry.ID = t.repo.nextHistoryID
	t.repo.history = append(t.repo.history, entry)
	return entry, nil
}

func (m *memoryRepo) assignmentsFor(itemID int64, stage Stage) []*TaskAssignment {
	var out []*TaskAssignment
	for _, a := range m.assignments {
		if a.ItemID == itemID && a.Stage == stage {
			out = append(out, a)
		}
	}
	return out
}

type fakeIntegration struct {
	events []StageCompletedEvent
	err    error
}

func (f *fakeIntegration) HandleStageCompleted(_ context.Context, evt StageCompletedEvent) error {
	f.events = append(f.events, evt)
	return f.err
}

func newTestService(repo *memoryRepo, integration IntegrationHandler) *Service {
	return NewService(repo, nil, nil, nil, integration, slog.New(slog.DiscardHandler))
}

func TestCreateItemStartsInToDoWithCuttingAssignment(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)

	item, err := svc.CreateItem(context.Background(), CreateItemInput{
		ClientName: "Maison Bleu",
		ProductRef: "CF-0001",
		Category:   "CF",
		Quantity:   4,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusToDo, item.Status)
	assert.NotZero(t, item.ID)

	assignments := repo.assignmentsFor(item.ID, StageCutting)
	require.Len(t, assignments, 1)
	assert.Equal(t, AssignmentPending, assignments[0].State)
}

func TestCreateItemValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)

	_, err := svc.CreateItem(context.Background(), CreateItemInput{ProductRef: "CF-0001", Quantity: 1})
	assert.Error(t, err)

	_, err = svc.CreateItem(context.Background(), CreateItemInput{ClientName: "Maison Bleu", ProductRef: "CF-0001", Quantity: 0})
	assert.Error(t, err)
}

func TestStartStageMovesItemsAndAssignments(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)

	item, err := svc.CreateItem(context.Background(), CreateItemInput{
		ClientName: "Maison Bleu", ProductRef: "CF-0001", Category: "CF", Quantity: 2,
	})
	require.NoError(t, err)

	result, err := svc.StartStage(context.Background(), StartStageInput{
		Stage:       StageCutting,
		ProductRefs: []string{"CF-0001"},
	})
	require.NoError(t, err)
	require.Len(t, result.Updated, 1)
	assert.Equal(t, StatusCuttingInProgress, result.Updated[0].Status)
	assert.Empty(t, result.Skipped)

	assignments := repo.assignmentsFor(item.ID, StageCutting)
	require.Len(t, assignments, 1)
	assert.Equal(t, AssignmentInProgress, assignments[0].State)
	assert.NotNil(t, assignments[0].StartedAt)

	require.Len(t, repo.history, 1)
	assert.Equal(t, StatusToDo, repo.history[0].FromStatus)
	assert.Equal(t, StatusCuttingInProgress, repo.history[0].ToStatus)
	assert.Equal(t, "STAGE_START", repo.history[0].Origin)
}

func TestStartStageSkipsWhenNothingMatches(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)

	result, err := svc.StartStage(context.Background(), StartStageInput{
		Stage:       StageCutting,
		ProductRefs: []string{"CF-9999"},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Updated)
	assert.Equal(t, []string{"CF-9999"}, result.Skipped)
	assert.Empty(t, repo.history)
}

func TestStartStageDoubleStartIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)

	_, err := svc.CreateItem(context.Background(), CreateItemInput{
		ClientName: "Maison Bleu", ProductRef: "CF-0001", Category: "CF", Quantity: 1,
	})
	require.NoError(t, err)

	first, err := svc.StartStage(context.Background(), StartStageInput{
		Stage: StageCutting, ProductRefs: []string{"CF-0001"},
	})
	require.NoError(t, err)
	require.Len(t, first.Updated, 1)

	// Second start finds nothing in TO_DO: the reference is skipped, nothing
	// moves and no further history accrues.
	second, err := svc.StartStage(context.Background(), StartStageInput{
		Stage: StageCutting, ProductRefs: []string{"CF-0001"},
	})
	require.NoError(t, err)
	assert.Empty(t, second.Updated)
	assert.Equal(t, []string{"CF-0001"}, second.Skipped)
	assert.Len(t, repo.history, 1)
}

func TestStartStageRejectsShipmentAndUnknownStage(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)

	_, err := svc.StartStage(context.Background(), StartStageInput{
		Stage: StageShipment, ProductRefs: []string{"CF-0001"},
	})
	assert.ErrorIs(t, err, ErrInvalidStage)

	_, err = svc.StartStage(context.Background(), StartStageInput{
		Stage: Stage("PAINTING"), ProductRefs: []string{"CF-0001"},
	})
	assert.ErrorIs(t, err, ErrInvalidStage)
}

func TestCompleteCuttingHasCuttingForcesConfection(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)

	// IJ nominally routes to assembly, but actual fabric consumption wins.
	_, err := svc.CreateItem(context.Background(), CreateItemInput{
		ClientName: "Maison Bleu", ProductRef: "IJ-0007", Category: "IJ", Quantity: 1,
	})
	require.NoError(t, err)
	_, err = svc.StartStage(context.Background(), StartStageInput{
		Stage: StageCutting, ProductRefs: []string{"IJ-0007"},
	})
	require.NoError(t, err)

	result, err := svc.CompleteStage(context.Background(), CompleteStageInput{
		Stage:           StageCutting,
		ProductRefs:     []string{"IJ-0007"},
		DurationMinutes: 30,
		HasCutting:      true,
	})
	require.NoError(t, err)
	require.Len(t, result.Updated, 1)
	assert.Equal(t, StatusConfectionToDo, result.Updated[0].Status)
}

func TestCompleteCuttingRoutesByCategory(t *testing.T) {
	cases := []struct {
		category string
		want     Status
	}{
		{"CF", StatusConfectionToDo},
		{"DC", StatusReadyToShip},
		{"IJ", StatusAssemblyToDo},
		{"AS", StatusAssemblyToDo},
		{"NG", StatusAwaitingPurchaseResale},
		{"ZZ", StatusReadyToShip},
	}
	for _, tc := range cases {
		t.Run(tc.category, func(t *testing.T) {
			repo := newMemoryRepo()
			svc := newTestService(repo, nil)

			ref := tc.category + "-0001"
			_, err := svc.CreateItem(context.Background(), CreateItemInput{
				ClientName: "Maison Bleu", ProductRef: ref, Category: tc.category, Quantity: 1,
			})
			require.NoError(t, err)
			_, err = svc.StartStage(context.Background(), StartStageInput{
				Stage: StageCutting, ProductRefs: []string{ref},
			})
			require.NoError(t, err)

			result, err := svc.CompleteStage(context.Background(), CompleteStageInput{
				Stage: StageCutting, ProductRefs: []string{ref}, DurationMinutes: 10,
			})
			require.NoError(t, err)
			require.Len(t, result.Updated, 1)
			assert.Equal(t, tc.want, result.Updated[0].Status)
		})
	}
}

func TestCompleteStageOpensSuccessorAssignment(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)

	item, err := svc.CreateItem(context.Background(), CreateItemInput{
		ClientName: "Maison Bleu", ProductRef: "CF-0001", Category: "CF", Quantity: 1,
	})
	require.NoError(t, err)
	_, err = svc.StartStage(context.Background(), StartStageInput{
		Stage: StageCutting, ProductRefs: []string{"CF-0001"},
	})
	require.NoError(t, err)
	_, err = svc.CompleteStage(context.Background(), CompleteStageInput{
		Stage: StageCutting, ProductRefs: []string{"CF-0001"}, DurationMinutes: 45,
	})
	require.NoError(t, err)

	cutting := repo.assignmentsFor(item.ID, StageCutting)
	require.Len(t, cutting, 1)
	assert.Equal(t, AssignmentDone, cutting[0].State)
	assert.NotNil(t, cutting[0].CompletedAt)

	confection := repo.assignmentsFor(item.ID, StageConfection)
	require.Len(t, confection, 1)
	assert.Equal(t, AssignmentPending, confection[0].State)
}

func TestCompleteStageRecordsDuration(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)

	_, err := svc.CreateItem(context.Background(), CreateItemInput{
		ClientName: "Maison Bleu", ProductRef: "DC-0002", Category: "DC", Quantity: 1,
	})
	require.NoError(t, err)
	_, err = svc.StartStage(context.Background(), StartStageInput{
		Stage: StageCutting, ProductRefs: []string{"DC-0002"},
	})
	require.NoError(t, err)
	_, err = svc.CompleteStage(context.Background(), CompleteStageInput{
		Stage: StageCutting, ProductRefs: []string{"DC-0002"}, DurationMinutes: 25,
	})
	require.NoError(t, err)

	require.Len(t, repo.history, 2)
	last := repo.history[1]
	assert.Equal(t, "STAGE_COMPLETE", last.Origin)
	assert.Equal(t, 25, last.DurationMinutes)
	assert.Equal(t, StatusCuttingInProgress, last.FromStatus)
	assert.Equal(t, StatusReadyToShip, last.ToStatus)
}

func TestCompleteStageRejectsNegativeDuration(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)

	_, err := svc.CompleteStage(context.Background(), CompleteStageInput{
		Stage: StageCutting, ProductRefs: []string{"CF-0001"}, DurationMinutes: -5,
	})
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestFullLifecycleToShipped(t *testing.T) {
	repo := newMemoryRepo()
	integration := &fakeIntegration{}
	svc := newTestService(repo, integration)
	ctx := context.Background()

	item, err := svc.CreateItem(ctx, CreateItemInput{
		ClientName: "Maison Bleu", ProductRef: "CF-0001", Category: "CF", Quantity: 3,
	})
	require.NoError(t, err)

	steps := []struct {
		start    Stage
		complete Stage
		has      bool
	}{
		{StageCutting, StageCutting, true},
		{StageConfection, StageConfection, false},
	}
	for _, step := range steps {
		_, err = svc.StartStage(ctx, StartStageInput{Stage: step.start, ProductRefs: []string{"CF-0001"}})
		require.NoError(t, err)
		_, err = svc.CompleteStage(ctx, CompleteStageInput{
			Stage: step.complete, ProductRefs: []string{"CF-0001"}, DurationMinutes: 20, HasCutting: step.has,
		})
		require.NoError(t, err)
	}

	// Shipment has no in-progress leg: it completes straight from READY_TO_SHIP.
	result, err := svc.CompleteStage(ctx, CompleteStageInput{
		Stage: StageShipment, ProductRefs: []string{"CF-0001"},
	})
	require.NoError(t, err)
	require.Len(t, result.Updated, 1)
	assert.Equal(t, StatusShipped, result.Updated[0].Status)
	assert.Equal(t, StatusShipped, repo.items[item.ID].Status)

	// The shipment assignment moves in lockstep with the item even though the
	// stage has no start leg: it closes out from PENDING with a completion
	// timestamp instead of lingering.
	shipAssignments := repo.assignmentsFor(item.ID, StageShipment)
	require.Len(t, shipAssignments, 1)
	assert.Equal(t, AssignmentDone, shipAssignments[0].State)
	require.NotNil(t, shipAssignments[0].CompletedAt)

	// One board-sync event per completed stage.
	require.Len(t, integration.events, 3)
	assert.Equal(t, StageShipment, integration.events[2].Stage)
	require.Len(t, integration.events[2].Transitions, 1)
	assert.Equal(t, StatusShipped, integration.events[2].Transitions[0].ToStatus)
}

func TestCompleteStageKeepsResultWhenEventDeliveryFails(t *testing.T) {
	repo := newMemoryRepo()
	integration := &fakeIntegration{err: errors.New("broker down")}
	svc := newTestService(repo, integration)
	ctx := context.Background()

	item, err := svc.CreateItem(ctx, CreateItemInput{
		ClientName: "Maison Bleu", ProductRef: "DC-0009", Category: "DC", Quantity: 2,
	})
	require.NoError(t, err)
	_, err = svc.StartStage(ctx, StartStageInput{Stage: StageCutting, ProductRefs: []string{"DC-0009"}})
	require.NoError(t, err)

	// The transition commits before the event goes out, so a failed delivery
	// must not turn into an error for work that already applied.
	result, err := svc.CompleteStage(ctx, CompleteStageInput{
		Stage: StageCutting, ProductRefs: []string{"DC-0009"}, DurationMinutes: 10,
	})
	require.NoError(t, err)
	require.Len(t, result.Updated, 1)
	assert.Equal(t, StatusReadyToShip, repo.items[item.ID].Status)
	require.Len(t, integration.events, 1)
}

func TestCompleteStageDuplicateRefsProcessedOnce(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	_, err := svc.CreateItem(ctx, CreateItemInput{
		ClientName: "Maison Bleu", ProductRef: "DC-0003", Category: "DC", Quantity: 1,
	})
	require.NoError(t, err)
	_, err = svc.StartStage(ctx, StartStageInput{Stage: StageCutting, ProductRefs: []string{"DC-0003"}})
	require.NoError(t, err)

	result, err := svc.CompleteStage(ctx, CompleteStageInput{
		Stage:       StageCutting,
		ProductRefs: []string{"DC-0003", "DC-0003", ""},
	})
	require.NoError(t, err)
	assert.Len(t, result.Updated, 1)
	assert.Empty(t, result.Skipped)
}

func TestListItemsRejectsUnknownStatus(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)

	_, err := svc.ListItems(context.Background(), ItemFilter{Status: Status("MAYBE")})
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestHistoryRejectsUnknownStage(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)

	_, err := svc.History(context.Background(), HistoryFilter{Stage: Stage("PAINTING")})
	assert.ErrorIs(t, err, ErrInvalidStage)
}
