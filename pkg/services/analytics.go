package services

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/partsbench/partsbench-engine/pkg/bus"
	"github.com/partsbench/partsbench-engine/pkg/models"
)

// CategoryUsage is one category's aggregate usage across projects.
type CategoryUsage struct {
	Category string `json:"category"`
	Uses     int    `json:"uses"`
}

// InventoryStats is an aggregate snapshot of the workshop.
type InventoryStats struct {
	TotalComponents   int             `json:"total_components"`
	TotalQuantity     int             `json:"total_quantity"`
	AllocatedQuantity int             `json:"allocated_quantity"`
	LowStock          int             `json:"low_stock"`
	InventoryValue    float64         `json:"inventory_value"`
	ActiveProjects    int             `json:"active_projects"`
	CompletedProjects int             `json:"completed_projects"`
	TopCategories     []CategoryUsage `json:"top_categories,omitempty"`
	ComputedAt        time.Time       `json:"computed_at"`
}

// StatsSource is the ledger surface the analytics service reads.
type StatsSource interface {
	Items() []*models.InventoryItem
	Projects() []*models.Project
}

// AnalyticsService maintains inventory statistics, recomputing lazily after
// update events rather than on every read.
type AnalyticsService struct {
	source StatsSource
	logger *zap.Logger

	mu    sync.Mutex
	dirty bool
	stats InventoryStats
}

// NewAnalyticsService creates the service and subscribes it to b.
func NewAnalyticsService(source StatsSource, b *bus.Bus, logger *zap.Logger) *AnalyticsService {
	s := &AnalyticsService{
		source: source,
		logger: logger.Named("analytics"),
		dirty:  true,
	}
	b.Subscribe(s.onEvent)
	return s
}

func (s *AnalyticsService) onEvent(event bus.Event) {
	switch event.Kind {
	case bus.EventItemDeleted, bus.EventProjectUpdated, bus.EventProjectDeleted:
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
	}
}

// Stats returns the current snapshot, recomputing it first when stale.
func (s *AnalyticsService) Stats() InventoryStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dirty {
		s.stats = s.recompute()
		s.dirty = false
	}
	return s.stats
}

// MarkDirty forces a recompute on the next read. Item quantity changes do
// not raise bus events, so the handler layer calls this after mutations.
func (s *AnalyticsService) MarkDirty() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}

func (s *AnalyticsService) recompute() InventoryStats {
	items := s.source.Items()
	projects := s.source.Projects()

	stats := InventoryStats{
		TotalComponents: len(items),
		ComputedAt:      time.Now(),
	}

	usage := make(map[string]int)
	for _, item := range items {
		stats.TotalQuantity += item.Quantity
		stats.AllocatedQuantity += item.Allocated
		if item.Status == models.StatusInStock && item.Available() > 0 && item.Available() <= lowStockWatermark {
			stats.LowStock++
		}
		if item.UnitPrice != nil {
			stats.InventoryValue += *item.UnitPrice * float64(item.Quantity)
		}
		if item.Category != "" {
			usage[item.Category] += len(item.UsedIn)
		}
	}

	for _, project := range projects {
		switch project.Status {
		case models.ProjectCompleted:
			stats.CompletedProjects++
		case models.ProjectDropped:
		default:
			stats.ActiveProjects++
		}
	}

	for category, uses := range usage {
		if uses > 0 {
			stats.TopCategories = append(stats.TopCategories, CategoryUsage{Category: category, Uses: uses})
		}
	}
	sort.Slice(stats.TopCategories, func(i, j int) bool {
		a, b := stats.TopCategories[i], stats.TopCategories[j]
		if a.Uses != b.Uses {
			return a.Uses > b.Uses
		}
		return a.Category < b.Category
	})
	if len(stats.TopCategories) > 5 {
		stats.TopCategories = stats.TopCategories[:5]
	}

	return stats
}
