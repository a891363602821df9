package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/partsbench/partsbench-engine/pkg/apperrors"
	"github.com/partsbench/partsbench-engine/pkg/bus"
	"github.com/partsbench/partsbench-engine/pkg/models"
	"github.com/partsbench/partsbench-engine/pkg/repositories"
)

// Invalidator is the ledger's hook into the recommendation cache. Mutations
// that change quantities or pools drop the affected cached entries.
type Invalidator interface {
	InvalidateItem(id uuid.UUID)
	InvalidateProject(id uuid.UUID)
	InvalidateAll()
}

// LedgerService is the exclusive owner of component quantity/allocation
// truth and of project status transitions. All mutations are validated fully
// before commit; callers never observe a partially-updated allocation.
type LedgerService interface {
	// Load seeds in-memory state from storage and rebuilds allocation
	// records from project component references.
	Load(ctx context.Context) error

	AddComponent(spec models.ItemSpec) (*models.InventoryItem, error)
	RemoveComponent(id uuid.UUID) error
	// Checkout consumes qty from total stock (distinct from allocation,
	// which reserves without consuming).
	Checkout(id uuid.UUID, qty int) (*models.InventoryItem, error)
	Allocate(componentID, projectID uuid.UUID, projectName string, qty int) (*models.InventoryItem, error)
	// Deallocate releases every allocation record held by the project.
	// Idempotent: a second call is a no-op.
	Deallocate(projectID uuid.UUID) error

	AddProject(name, kind, description string) (*models.Project, error)
	RemoveProject(id uuid.UUID) error
	AttachComponent(projectID uuid.UUID, ref models.ComponentRef) (*models.Project, error)
	SetProjectStatus(projectID uuid.UUID, status models.ProjectStatus) (*models.Project, error)

	Items() []*models.InventoryItem
	Item(id uuid.UUID) (*models.InventoryItem, error)
	Projects() []*models.Project
	Project(id uuid.UUID) (*models.Project, error)
	AllocationsFor(componentID uuid.UUID) []models.AllocationRecord
	CompletedProjects() map[uuid.UUID]bool

	// SetInvalidator attaches the recommendation cache. Must be called
	// before serving traffic.
	SetInvalidator(inv Invalidator)
}

type ledgerService struct {
	itemRepo    repositories.ItemRepository
	projectRepo repositories.ProjectRepository
	persister   Persister
	bus         *bus.Bus
	invalidator Invalidator
	logger      *zap.Logger

	mu       sync.RWMutex
	items    map[uuid.UUID]*models.InventoryItem
	projects map[uuid.UUID]*models.Project
	// allocations is keyed component -> project -> record. The per-component
	// sum always equals that component's Allocated field.
	allocations map[uuid.UUID]map[uuid.UUID]*models.AllocationRecord
}

// NewLedgerService creates the ledger. The cache invalidator is attached
// later with SetInvalidator because the recommendation service needs the
// ledger first.
func NewLedgerService(
	itemRepo repositories.ItemRepository,
	projectRepo repositories.ProjectRepository,
	persister Persister,
	b *bus.Bus,
	logger *zap.Logger,
) LedgerService {
	return &ledgerService{
		itemRepo:    itemRepo,
		projectRepo: projectRepo,
		persister:   persister,
		bus:         b,
		logger:      logger.Named("ledger"),
		items:       make(map[uuid.UUID]*models.InventoryItem),
		projects:    make(map[uuid.UUID]*models.Project),
		allocations: make(map[uuid.UUID]map[uuid.UUID]*models.AllocationRecord),
	}
}

var _ LedgerService = (*ledgerService)(nil)

func (s *ledgerService) SetInvalidator(inv Invalidator) {
	s.invalidator = inv
}

// Load reads items and projects from storage and rebuilds the allocation
// table from component references flagged is_allocated. The rebuilt record
// sums become each item's Allocated value, clamped to its total.
func (s *ledgerService) Load(ctx context.Context) error {
	items, err := s.itemRepo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrUpstreamUnavailable, err)
	}
	projects, err := s.projectRepo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrUpstreamUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[uuid.UUID]*models.InventoryItem, len(items))
	for _, item := range items {
		item.Allocated = 0
		item.UsedIn = nil
		s.items[item.ID] = item
	}

	s.projects = make(map[uuid.UUID]*models.Project, len(projects))
	s.allocations = make(map[uuid.UUID]map[uuid.UUID]*models.AllocationRecord)
	for _, project := range projects {
		s.projects[project.ID] = project
		for _, ref := range project.Components {
			if !ref.IsAllocated || ref.ComponentID == nil {
				continue
			}
			item, ok := s.items[*ref.ComponentID]
			if !ok {
				s.logger.Warn("component reference points at missing item",
					zap.String("project", project.ID.String()),
					zap.String("component", ref.ComponentID.String()))
				continue
			}
			qty := ref.Quantity
			if item.Allocated+qty > item.Quantity {
				qty = item.Quantity - item.Allocated
				s.logger.Warn("clamping over-allocated reference",
					zap.String("component", item.ID.String()),
					zap.Int("requested", ref.Quantity),
					zap.Int("granted", qty))
			}
			if qty <= 0 {
				continue
			}
			s.upsertAllocationLocked(item, project.ID, project.Name, qty)
		}
	}

	s.logger.Info("ledger loaded",
		zap.Int("items", len(s.items)),
		zap.Int("projects", len(s.projects)))
	return nil
}

func (s *ledgerService) AddComponent(spec models.ItemSpec) (*models.InventoryItem, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("%w: name is required", apperrors.ErrValidation)
	}
	if spec.Quantity < 0 {
		return nil, fmt.Errorf("%w: quantity cannot be negative", apperrors.ErrValidation)
	}
	status := spec.Status
	if status == "" {
		status = models.StatusInStock
	}
	if !models.ValidItemStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", apperrors.ErrValidation, spec.Status)
	}
	if spec.UnitPrice != nil && *spec.UnitPrice < 0 {
		return nil, fmt.Errorf("%w: unit price cannot be negative", apperrors.ErrValidation)
	}

	now := time.Now()
	item := &models.InventoryItem{
		ID:        uuid.New(),
		Name:      spec.Name,
		Category:  spec.Category,
		Quantity:  spec.Quantity,
		Allocated: 0,
		Status:    status,
		UnitPrice: spec.UnitPrice,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.items[item.ID] = item
	snapshot := item.Clone()
	s.mu.Unlock()

	s.persister.SaveItem(snapshot)
	// A new candidate changes every alternative pool.
	s.invalidateAll()
	return snapshot, nil
}

func (s *ledgerService) RemoveComponent(id uuid.UUID) error {
	s.mu.Lock()
	item, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: component %s", apperrors.ErrNotFound, id)
	}

	snapshot := item.Clone()
	delete(s.items, id)

	// Cascade: drop allocation records and unmark the owning references.
	var touchedProjects []*models.Project
	for projectID := range s.allocations[id] {
		if project, ok := s.projects[projectID]; ok {
			changed := false
			for i := range project.Components {
				ref := &project.Components[i]
				if ref.ComponentID != nil && *ref.ComponentID == id && ref.IsAllocated {
					ref.IsAllocated = false
					ref.ComponentID = nil
					changed = true
				}
			}
			if changed {
				project.UpdatedAt = time.Now()
				touchedProjects = append(touchedProjects, project.Clone())
			}
		}
	}
	delete(s.allocations, id)
	s.mu.Unlock()

	s.persister.DeleteItem(id)
	for _, project := range touchedProjects {
		s.persister.SaveProject(project)
	}
	s.invalidateAll()
	s.bus.Publish(bus.Event{Kind: bus.EventItemDeleted, ItemID: id, Payload: snapshot})
	for _, project := range touchedProjects {
		s.bus.Publish(bus.Event{Kind: bus.EventProjectUpdated, ProjectID: project.ID, Payload: project})
	}
	return nil
}

func (s *ledgerService) Checkout(id uuid.UUID, qty int) (*models.InventoryItem, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: checkout quantity must be positive", apperrors.ErrValidation)
	}

	s.mu.Lock()
	item, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: component %s", apperrors.ErrNotFound, id)
	}
	if qty > item.Quantity {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: requested %d, total %d", apperrors.ErrInsufficientStock, qty, item.Quantity)
	}
	// Consuming reserved stock would leave allocated > total.
	if qty > item.Quantity-item.Allocated {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: requested %d, unallocated %d", apperrors.ErrInsufficientStock, qty, item.Quantity-item.Allocated)
	}

	item.Quantity -= qty
	item.UpdatedAt = time.Now()
	snapshot := item.Clone()
	s.mu.Unlock()

	s.persister.SaveItem(snapshot)
	s.invalidateAll()
	return snapshot, nil
}

func (s *ledgerService) Allocate(componentID, projectID uuid.UUID, projectName string, qty int) (*models.InventoryItem, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: allocation quantity must be positive", apperrors.ErrValidation)
	}
	if projectID == uuid.Nil {
		return nil, fmt.Errorf("%w: project id is required", apperrors.ErrValidation)
	}

	s.mu.Lock()
	item, ok := s.items[componentID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: component %s", apperrors.ErrNotFound, componentID)
	}
	if item.Allocated+qty > item.Quantity {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: requested %d, available %d", apperrors.ErrOverAllocation, qty, item.Available())
	}

	if project, ok := s.projects[projectID]; ok && project.Name != "" {
		projectName = project.Name
	}
	s.upsertAllocationLocked(item, projectID, projectName, qty)
	item.UpdatedAt = time.Now()
	snapshot := item.Clone()

	var projectSnapshot *models.Project
	if project, ok := s.projects[projectID]; ok {
		s.syncProjectRefLocked(project, item, qty)
		project.UpdatedAt = time.Now()
		projectSnapshot = project.Clone()
	}
	s.mu.Unlock()

	s.persister.SaveItem(snapshot)
	if projectSnapshot != nil {
		s.persister.SaveProject(projectSnapshot)
		s.bus.Publish(bus.Event{Kind: bus.EventProjectUpdated, ProjectID: projectID, Payload: projectSnapshot})
	}
	s.invalidateAll()
	return snapshot, nil
}

func (s *ledgerService) Deallocate(projectID uuid.UUID) error {
	s.mu.Lock()
	var touched []*models.InventoryItem
	for componentID, byProject := range s.allocations {
		record, ok := byProject[projectID]
		if !ok {
			continue
		}
		item := s.items[componentID]
		if item != nil {
			item.Allocated -= record.Quantity
			if item.Allocated < 0 {
				item.Allocated = 0
			}
			s.removeUsageLocked(item, projectID)
			item.UpdatedAt = time.Now()
			touched = append(touched, item.Clone())
		}
		delete(byProject, projectID)
		if len(byProject) == 0 {
			delete(s.allocations, componentID)
		}
	}

	var projectSnapshot *models.Project
	if project, ok := s.projects[projectID]; ok && len(touched) > 0 {
		for i := range project.Components {
			project.Components[i].IsAllocated = false
		}
		project.UpdatedAt = time.Now()
		projectSnapshot = project.Clone()
	}
	s.mu.Unlock()

	if len(touched) == 0 {
		return nil // nothing allocated; deallocate is idempotent
	}

	for _, item := range touched {
		s.persister.SaveItem(item)
	}
	if projectSnapshot != nil {
		s.persister.SaveProject(projectSnapshot)
		s.bus.Publish(bus.Event{Kind: bus.EventProjectUpdated, ProjectID: projectID, Payload: projectSnapshot})
	}
	s.invalidateAll()
	return nil
}

func (s *ledgerService) AddProject(name, kind, description string) (*models.Project, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", apperrors.ErrValidation)
	}

	now := time.Now()
	project := &models.Project{
		ID:          uuid.New(),
		Name:        name,
		Kind:        kind,
		Description: description,
		Status:      models.ProjectPlanning,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	s.projects[project.ID] = project
	snapshot := project.Clone()
	s.mu.Unlock()

	s.persister.SaveProject(snapshot)
	s.bus.Publish(bus.Event{Kind: bus.EventProjectUpdated, ProjectID: project.ID, Payload: snapshot})
	return snapshot, nil
}

func (s *ledgerService) RemoveProject(id uuid.UUID) error {
	s.mu.RLock()
	_, ok := s.projects[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: project %s", apperrors.ErrNotFound, id)
	}

	// Release reservations first so item state stays consistent.
	if err := s.Deallocate(id); err != nil {
		return err
	}

	s.mu.Lock()
	project := s.projects[id]
	var snapshot *models.Project
	if project != nil {
		snapshot = project.Clone()
		delete(s.projects, id)
	}
	s.mu.Unlock()

	if snapshot == nil {
		return fmt.Errorf("%w: project %s", apperrors.ErrNotFound, id)
	}

	s.persister.DeleteProject(id)
	s.invalidateProject(id)
	s.bus.Publish(bus.Event{Kind: bus.EventProjectDeleted, ProjectID: id, Payload: snapshot})
	return nil
}

func (s *ledgerService) AttachComponent(projectID uuid.UUID, ref models.ComponentRef) (*models.Project, error) {
	if ref.Name == "" {
		return nil, fmt.Errorf("%w: component name is required", apperrors.ErrValidation)
	}
	if ref.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", apperrors.ErrValidation)
	}
	if ref.Provenance == "" {
		ref.Provenance = models.ProvenanceManual
	}
	switch ref.Provenance {
	case models.ProvenanceManual, models.ProvenanceInventory,
		models.ProvenanceAISuggested, models.ProvenanceExternalSync:
	default:
		return nil, fmt.Errorf("%w: unknown provenance %q", apperrors.ErrValidation, ref.Provenance)
	}
	if ref.IsAllocated && ref.ComponentID == nil {
		return nil, fmt.Errorf("%w: allocation requires a backing component", apperrors.ErrValidation)
	}

	s.mu.RLock()
	project, ok := s.projects[projectID]
	projectName := ""
	if ok {
		projectName = project.Name
	}
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: project %s", apperrors.ErrNotFound, projectID)
	}

	// Reserve stock before mutating the parts list so an over-allocation
	// leaves the project untouched.
	if ref.IsAllocated {
		if _, err := s.Allocate(*ref.ComponentID, projectID, projectName, ref.Quantity); err != nil {
			return nil, err
		}
		// Allocate already merged a matching inventory reference.
		s.mu.RLock()
		var snapshot *models.Project
		if project := s.projects[projectID]; project != nil {
			snapshot = project.Clone()
		}
		s.mu.RUnlock()
		if snapshot == nil {
			return nil, fmt.Errorf("%w: project %s", apperrors.ErrNotFound, projectID)
		}
		return snapshot, nil
	}

	ref.RefID = uuid.New()

	s.mu.Lock()
	project = s.projects[projectID]
	if project == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: project %s", apperrors.ErrNotFound, projectID)
	}
	project.Components = append(project.Components, ref)
	project.UpdatedAt = time.Now()
	snapshot := project.Clone()
	s.mu.Unlock()

	s.persister.SaveProject(snapshot)
	s.invalidateProject(projectID)
	s.bus.Publish(bus.Event{Kind: bus.EventProjectUpdated, ProjectID: projectID, Payload: snapshot})
	return snapshot, nil
}

func (s *ledgerService) SetProjectStatus(projectID uuid.UUID, status models.ProjectStatus) (*models.Project, error) {
	if !models.ValidProjectStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", apperrors.ErrValidation, status)
	}

	s.mu.Lock()
	project, ok := s.projects[projectID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: project %s", apperrors.ErrNotFound, projectID)
	}
	if !models.CanTransition(project.Status, status) {
		current := project.Status
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s -> %s", apperrors.ErrInvalidTransition, current, status)
	}

	project.Status = status
	project.UpdatedAt = time.Now()
	snapshot := project.Clone()
	s.mu.Unlock()

	s.persister.SaveProject(snapshot)
	s.invalidateProject(projectID)
	if status == models.ProjectCompleted {
		// Completed projects feed the co-usage bonus; alternative entries
		// computed before this transition are stale.
		s.invalidateAll()
	}
	s.bus.Publish(bus.Event{Kind: bus.EventProjectUpdated, ProjectID: projectID, Payload: snapshot})
	return snapshot, nil
}

func (s *ledgerService) Items() []*models.InventoryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]*models.InventoryItem, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item.Clone())
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].ID.String() < items[j].ID.String()
	})
	return items
}

func (s *ledgerService) Item(id uuid.UUID) (*models.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: component %s", apperrors.ErrNotFound, id)
	}
	return item.Clone(), nil
}

func (s *ledgerService) Projects() []*models.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()

	projects := make([]*models.Project, 0, len(s.projects))
	for _, project := range s.projects {
		projects = append(projects, project.Clone())
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].ID.String() < projects[j].ID.String()
	})
	return projects
}

func (s *ledgerService) Project(id uuid.UUID) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	project, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("%w: project %s", apperrors.ErrNotFound, id)
	}
	return project.Clone(), nil
}

func (s *ledgerService) AllocationsFor(componentID uuid.UUID) []models.AllocationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []models.AllocationRecord
	for _, record := range s.allocations[componentID] {
		records = append(records, *record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ProjectID.String() < records[j].ProjectID.String()
	})
	return records
}

func (s *ledgerService) CompletedProjects() map[uuid.UUID]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	completed := make(map[uuid.UUID]bool)
	for id, project := range s.projects {
		if project.Status == models.ProjectCompleted {
			completed[id] = true
		}
	}
	return completed
}

// upsertAllocationLocked merges qty into the (component, project) record and
// mirrors it into the item's usage history. Caller holds the write lock and
// has already validated the allocation bound.
func (s *ledgerService) upsertAllocationLocked(item *models.InventoryItem, projectID uuid.UUID, projectName string, qty int) {
	byProject := s.allocations[item.ID]
	if byProject == nil {
		byProject = make(map[uuid.UUID]*models.AllocationRecord)
		s.allocations[item.ID] = byProject
	}

	if record, ok := byProject[projectID]; ok {
		record.Quantity += qty
	} else {
		byProject[projectID] = &models.AllocationRecord{
			ComponentID: item.ID,
			ProjectID:   projectID,
			ProjectName: projectName,
			Quantity:    qty,
		}
	}

	item.Allocated += qty

	for i := range item.UsedIn {
		if item.UsedIn[i].ProjectID == projectID {
			item.UsedIn[i].Quantity += qty
			return
		}
	}
	item.UsedIn = append(item.UsedIn, models.UsageRecord{
		ProjectID:   projectID,
		ProjectName: projectName,
		Quantity:    qty,
	})
}

// syncProjectRefLocked merges an allocation into the project's parts list.
func (s *ledgerService) syncProjectRefLocked(project *models.Project, item *models.InventoryItem, qty int) {
	for i := range project.Components {
		ref := &project.Components[i]
		if ref.ComponentID != nil && *ref.ComponentID == item.ID && ref.IsAllocated {
			ref.Quantity += qty
			return
		}
	}
	componentID := item.ID
	project.Components = append(project.Components, models.ComponentRef{
		RefID:       uuid.New(),
		Name:        item.Name,
		Quantity:    qty,
		Provenance:  models.ProvenanceInventory,
		ComponentID: &componentID,
		IsAllocated: true,
	})
}

func (s *ledgerService) removeUsageLocked(item *models.InventoryItem, projectID uuid.UUID) {
	for i := range item.UsedIn {
		if item.UsedIn[i].ProjectID == projectID {
			item.UsedIn = append(item.UsedIn[:i], item.UsedIn[i+1:]...)
			return
		}
	}
}

func (s *ledgerService) invalidateAll() {
	if s.invalidator != nil {
		s.invalidator.InvalidateAll()
	}
}

func (s *ledgerService) invalidateProject(id uuid.UUID) {
	if s.invalidator != nil {
		s.invalidator.InvalidateProject(id)
	}
}
