package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/partsbench/partsbench-engine/pkg/apperrors"
	"github.com/partsbench/partsbench-engine/pkg/bus"
	"github.com/partsbench/partsbench-engine/pkg/models"
)

type memItemRepo struct {
	items []*models.InventoryItem
}

func (r *memItemRepo) LoadAll(_ context.Context) ([]*models.InventoryItem, error) {
	return r.items, nil
}
func (r *memItemRepo) Save(_ context.Context, _ *models.InventoryItem) error { return nil }
func (r *memItemRepo) Delete(_ context.Context, _ uuid.UUID) error           { return nil }

type memProjectRepo struct {
	projects []*models.Project
}

func (r *memProjectRepo) LoadAll(_ context.Context) ([]*models.Project, error) {
	return r.projects, nil
}
func (r *memProjectRepo) Save(_ context.Context, _ *models.Project) error { return nil }
func (r *memProjectRepo) Delete(_ context.Context, _ uuid.UUID) error     { return nil }

type recordingInvalidator struct {
	allCalls     int
	projectCalls []uuid.UUID
	itemCalls    []uuid.UUID
}

func (r *recordingInvalidator) InvalidateItem(id uuid.UUID)    { r.itemCalls = append(r.itemCalls, id) }
func (r *recordingInvalidator) InvalidateProject(id uuid.UUID) { r.projectCalls = append(r.projectCalls, id) }
func (r *recordingInvalidator) InvalidateAll()                 { r.allCalls++ }

func newTestLedger(t *testing.T) LedgerService {
	t.Helper()
	return NewLedgerService(&memItemRepo{}, &memProjectRepo{}, NewNoopPersister(), bus.New(zap.NewNop()), zap.NewNop())
}

func TestAddComponentValidation(t *testing.T) {
	ledger := newTestLedger(t)

	_, err := ledger.AddComponent(models.ItemSpec{Quantity: 5})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = ledger.AddComponent(models.ItemSpec{Name: "resistor", Quantity: -1})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = ledger.AddComponent(models.ItemSpec{Name: "resistor", Quantity: 1, Status: "lost"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	item, err := ledger.AddComponent(models.ItemSpec{Name: "resistor", Quantity: 5})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInStock, item.Status)
	assert.Equal(t, 0, item.Allocated)
}

func TestAllocateMergesRecords(t *testing.T) {
	ledger := newTestLedger(t)

	item, err := ledger.AddComponent(models.ItemSpec{Name: "servo", Category: "motor", Quantity: 10})
	require.NoError(t, err)
	project, err := ledger.AddProject("Rover", "robotics", "")
	require.NoError(t, err)

	_, err = ledger.Allocate(item.ID, project.ID, project.Name, 4)
	require.NoError(t, err)
	updated, err := ledger.Allocate(item.ID, project.ID, project.Name, 3)
	require.NoError(t, err)

	assert.Equal(t, 7, updated.Allocated)
	assert.Equal(t, 3, updated.Available())

	records := ledger.AllocationsFor(item.ID)
	require.Len(t, records, 1)
	assert.Equal(t, 7, records[0].Quantity)
	assert.Equal(t, project.ID, records[0].ProjectID)

	require.Len(t, updated.UsedIn, 1)
	assert.Equal(t, 7, updated.UsedIn[0].Quantity)

	// The project picks up a single merged inventory reference.
	got, err := ledger.Project(project.ID)
	require.NoError(t, err)
	require.Len(t, got.Components, 1)
	assert.Equal(t, 7, got.Components[0].Quantity)
	assert.True(t, got.Components[0].IsAllocated)
	assert.Equal(t, models.ProvenanceInventory, got.Components[0].Provenance)
}

func TestAllocateRejectsOverAllocation(t *testing.T) {
	ledger := newTestLedger(t)

	item, err := ledger.AddComponent(models.ItemSpec{Name: "esp32", Quantity: 5})
	require.NoError(t, err)
	project, err := ledger.AddProject("Weather station", "iot", "")
	require.NoError(t, err)

	_, err = ledger.Allocate(item.ID, project.ID, project.Name, 4)
	require.NoError(t, err)
	_, err = ledger.Allocate(item.ID, project.ID, project.Name, 2)
	assert.ErrorIs(t, err, apperrors.ErrOverAllocation)

	// The failed call left nothing behind.
	got, err := ledger.Item(item.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Allocated)
}

func TestDeallocateIsIdempotent(t *testing.T) {
	ledger := newTestLedger(t)

	item, err := ledger.AddComponent(models.ItemSpec{Name: "led strip", Quantity: 8})
	require.NoError(t, err)
	project, err := ledger.AddProject("Desk lamp", "lighting", "")
	require.NoError(t, err)

	_, err = ledger.Allocate(item.ID, project.ID, project.Name, 5)
	require.NoError(t, err)

	require.NoError(t, ledger.Deallocate(project.ID))
	got, err := ledger.Item(item.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Allocated)
	assert.Empty(t, got.UsedIn)
	assert.Empty(t, ledger.AllocationsFor(item.ID))

	// Second release is a no-op.
	require.NoError(t, ledger.Deallocate(project.ID))
	got, err = ledger.Item(item.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Allocated)
}

func TestCheckoutProtectsReservedStock(t *testing.T) {
	ledger := newTestLedger(t)

	item, err := ledger.AddComponent(models.ItemSpec{Name: "m3 screw", Quantity: 10})
	require.NoError(t, err)
	project, err := ledger.AddProject("Printer mods", "3d-printing", "")
	require.NoError(t, err)

	_, err = ledger.Checkout(item.ID, 12)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)

	_, err = ledger.Allocate(item.ID, project.ID, project.Name, 6)
	require.NoError(t, err)

	// 4 unreserved units remain; consuming 5 would break the invariant.
	_, err = ledger.Checkout(item.ID, 5)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)

	got, err := ledger.Checkout(item.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 6, got.Quantity)
	assert.Equal(t, 6, got.Allocated)
	assert.Equal(t, 0, got.Available())
}

func TestCheckoutValidation(t *testing.T) {
	ledger := newTestLedger(t)

	_, err := ledger.Checkout(uuid.New(), 1)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	item, err := ledger.AddComponent(models.ItemSpec{Name: "fuse", Quantity: 2})
	require.NoError(t, err)
	_, err = ledger.Checkout(item.ID, 0)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestRemoveComponentCascades(t *testing.T) {
	ledger := newTestLedger(t)

	item, err := ledger.AddComponent(models.ItemSpec{Name: "dc motor", Quantity: 6})
	require.NoError(t, err)
	project, err := ledger.AddProject("Line follower", "robotics", "")
	require.NoError(t, err)
	_, err = ledger.Allocate(item.ID, project.ID, project.Name, 3)
	require.NoError(t, err)

	require.NoError(t, ledger.RemoveComponent(item.ID))

	_, err = ledger.Item(item.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	// The project keeps its part entry but it is no longer an allocation.
	got, err := ledger.Project(project.ID)
	require.NoError(t, err)
	require.Len(t, got.Components, 1)
	assert.False(t, got.Components[0].IsAllocated)
	assert.Nil(t, got.Components[0].ComponentID)

	err = ledger.RemoveComponent(item.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRemoveProjectReleasesAllocations(t *testing.T) {
	ledger := newTestLedger(t)

	item, err := ledger.AddComponent(models.ItemSpec{Name: "relay", Quantity: 4})
	require.NoError(t, err)
	project, err := ledger.AddProject("Sprinkler", "iot", "")
	require.NoError(t, err)
	_, err = ledger.Allocate(item.ID, project.ID, project.Name, 2)
	require.NoError(t, err)

	require.NoError(t, ledger.RemoveProject(project.ID))

	_, err = ledger.Project(project.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	got, err := ledger.Item(item.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Allocated)
}

func TestSetProjectStatusEnforcesTransitions(t *testing.T) {
	ledger := newTestLedger(t)

	project, err := ledger.AddProject("Synth", "audio", "")
	require.NoError(t, err)

	updated, err := ledger.SetProjectStatus(project.ID, models.ProjectInProgress)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectInProgress, updated.Status)

	updated, err = ledger.SetProjectStatus(project.ID, models.ProjectCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectCompleted, updated.Status)
	assert.True(t, ledger.CompletedProjects()[project.ID])

	_, err = ledger.SetProjectStatus(project.ID, models.ProjectDropped)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	_, err = ledger.SetProjectStatus(project.ID, "archived")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = ledger.SetProjectStatus(uuid.New(), models.ProjectInProgress)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAttachComponent(t *testing.T) {
	ledger := newTestLedger(t)

	item, err := ledger.AddComponent(models.ItemSpec{Name: "oled display", Quantity: 3})
	require.NoError(t, err)
	project, err := ledger.AddProject("Clock", "iot", "")
	require.NoError(t, err)

	// Unallocated wishlist entry.
	got, err := ledger.AttachComponent(project.ID, models.ComponentRef{Name: "enclosure", Quantity: 1})
	require.NoError(t, err)
	require.Len(t, got.Components, 1)
	assert.Equal(t, models.ProvenanceManual, got.Components[0].Provenance)
	assert.NotEqual(t, uuid.Nil, got.Components[0].RefID)
	assert.False(t, got.Components[0].IsAllocated)

	// Allocated entry reserves stock.
	componentID := item.ID
	got, err = ledger.AttachComponent(project.ID, models.ComponentRef{
		Name:        item.Name,
		Quantity:    2,
		ComponentID: &componentID,
		IsAllocated: true,
	})
	require.NoError(t, err)
	require.Len(t, got.Components, 2)

	inv, err := ledger.Item(item.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, inv.Allocated)

	// Over-allocation leaves the parts list untouched.
	_, err = ledger.AttachComponent(project.ID, models.ComponentRef{
		Name:        item.Name,
		Quantity:    5,
		ComponentID: &componentID,
		IsAllocated: true,
	})
	assert.ErrorIs(t, err, apperrors.ErrOverAllocation)
	got, err = ledger.Project(project.ID)
	require.NoError(t, err)
	assert.Len(t, got.Components, 2)

	_, err = ledger.AttachComponent(project.ID, models.ComponentRef{Name: "bare", Quantity: 1, IsAllocated: true})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = ledger.AttachComponent(project.ID, models.ComponentRef{Name: "odd", Quantity: 1, Provenance: "guess"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestLoadRebuildsAllocations(t *testing.T) {
	itemID := uuid.New()
	projectID := uuid.New()
	ghostID := uuid.New()

	itemRepo := &memItemRepo{items: []*models.InventoryItem{
		{ID: itemID, Name: "stepper", Quantity: 10, Status: models.StatusInStock},
	}}
	projectRepo := &memProjectRepo{projects: []*models.Project{
		{
			ID:     projectID,
			Name:   "CNC",
			Kind:   "3d-printing",
			Status: models.ProjectInProgress,
			Components: []models.ComponentRef{
				{RefID: uuid.New(), Name: "stepper", Quantity: 4, ComponentID: &itemID, IsAllocated: true},
				{RefID: uuid.New(), Name: "gone", Quantity: 2, ComponentID: &ghostID, IsAllocated: true},
				{RefID: uuid.New(), Name: "spindle", Quantity: 1, Provenance: models.ProvenanceManual},
			},
		},
	}}

	ledger := NewLedgerService(itemRepo, projectRepo, NewNoopPersister(), bus.New(zap.NewNop()), zap.NewNop())
	require.NoError(t, ledger.Load(context.Background()))

	item, err := ledger.Item(itemID)
	require.NoError(t, err)
	assert.Equal(t, 4, item.Allocated)
	require.Len(t, item.UsedIn, 1)
	assert.Equal(t, "CNC", item.UsedIn[0].ProjectName)

	records := ledger.AllocationsFor(itemID)
	require.Len(t, records, 1)
	assert.Equal(t, 4, records[0].Quantity)

	// The dangling reference is ignored, not an error.
	assert.Empty(t, ledger.AllocationsFor(ghostID))
}

func TestLoadClampsOverAllocatedReferences(t *testing.T) {
	itemID := uuid.New()
	itemRepo := &memItemRepo{items: []*models.InventoryItem{
		{ID: itemID, Name: "bearing", Quantity: 3, Status: models.StatusInStock},
	}}
	projectRepo := &memProjectRepo{projects: []*models.Project{
		{
			ID: uuid.New(), Name: "A", Status: models.ProjectInProgress,
			Components: []models.ComponentRef{
				{RefID: uuid.New(), Name: "bearing", Quantity: 2, ComponentID: &itemID, IsAllocated: true},
			},
		},
		{
			ID: uuid.New(), Name: "B", Status: models.ProjectInProgress,
			Components: []models.ComponentRef{
				{RefID: uuid.New(), Name: "bearing", Quantity: 5, ComponentID: &itemID, IsAllocated: true},
			},
		},
	}}

	ledger := NewLedgerService(itemRepo, projectRepo, NewNoopPersister(), bus.New(zap.NewNop()), zap.NewNop())
	require.NoError(t, ledger.Load(context.Background()))

	item, err := ledger.Item(itemID)
	require.NoError(t, err)
	assert.Equal(t, 3, item.Allocated)
	assert.Equal(t, 0, item.Available())
}

func TestLedgerEventsAndInvalidation(t *testing.T) {
	b := bus.New(zap.NewNop())
	ledger := NewLedgerService(&memItemRepo{}, &memProjectRepo{}, NewNoopPersister(), b, zap.NewNop())

	inv := &recordingInvalidator{}
	ledger.SetInvalidator(inv)

	var kinds []bus.EventKind
	b.Subscribe(func(e bus.Event) { kinds = append(kinds, e.Kind) })

	item, err := ledger.AddComponent(models.ItemSpec{Name: "buzzer", Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, inv.allCalls)

	project, err := ledger.AddProject("Alarm", "iot", "")
	require.NoError(t, err)

	_, err = ledger.Allocate(item.ID, project.ID, project.Name, 1)
	require.NoError(t, err)
	require.NoError(t, ledger.RemoveComponent(item.ID))

	assert.Contains(t, kinds, bus.EventProjectUpdated)
	assert.Contains(t, kinds, bus.EventItemDeleted)
	assert.GreaterOrEqual(t, inv.allCalls, 3)
}

func TestReadAccessorsReturnCopies(t *testing.T) {
	ledger := newTestLedger(t)

	item, err := ledger.AddComponent(models.ItemSpec{Name: "jumper wires", Quantity: 40})
	require.NoError(t, err)

	got, err := ledger.Item(item.ID)
	require.NoError(t, err)
	got.Quantity = 0

	again, err := ledger.Item(item.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, again.Quantity)

	items := ledger.Items()
	require.Len(t, items, 1)
	items[0].Name = "mutated"
	again, err = ledger.Item(item.ID)
	require.NoError(t, err)
	assert.Equal(t, "jumper wires", again.Name)
}
