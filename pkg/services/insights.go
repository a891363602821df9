package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/partsbench/partsbench-engine/pkg/llm"
	"github.com/partsbench/partsbench-engine/pkg/models"
)

// InsightReport is a set of purchasing and stocking observations.
type InsightReport struct {
	Insights    []string  `json:"insights"`
	Source      string    `json:"source"` // "ai" or "heuristic"
	GeneratedAt time.Time `json:"generated_at"`
}

const insightSystemMessage = `You are a workshop inventory assistant. Given an inventory summary,
produce at most five short purchasing and stocking observations, one per
line, plain text, no numbering or markdown.`

// InsightService produces inventory insights, preferring the configured
// model and degrading to local heuristics when it is absent or failing.
// It never returns an error for upstream trouble.
type InsightService struct {
	client   llm.Client // nil when no provider is configured
	ledger   LedgerReader
	fallback *FallbackAdvisor
	health   *HealthTracker
	logger   *zap.Logger
}

// NewInsightService creates the service. client may be nil.
func NewInsightService(client llm.Client, ledger LedgerReader, fallback *FallbackAdvisor, health *HealthTracker, logger *zap.Logger) *InsightService {
	return &InsightService{
		client:   client,
		ledger:   ledger,
		fallback: fallback,
		health:   health,
		logger:   logger.Named("insights"),
	}
}

// Generate returns the current insight report.
func (s *InsightService) Generate(ctx context.Context) InsightReport {
	items := s.ledger.Items()

	if s.client != nil {
		insights, err := s.generateFromModel(ctx, items)
		if err == nil {
			return InsightReport{Insights: insights, Source: "ai", GeneratedAt: time.Now()}
		}
		s.health.Record(err)
		s.logger.Warn("model insights unavailable, using heuristics", zap.Error(err))
	}

	return InsightReport{
		Insights:    s.fallback.Insights(items),
		Source:      "heuristic",
		GeneratedAt: time.Now(),
	}
}

func (s *InsightService) generateFromModel(ctx context.Context, items []*models.InventoryItem) ([]string, error) {
	response, err := s.client.Complete(ctx, insightSystemMessage, buildInventoryPrompt(items))
	if err != nil {
		return nil, err
	}

	var insights []string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*• \t"))
		if line == "" {
			continue
		}
		insights = append(insights, line)
		if len(insights) == 5 {
			break
		}
	}
	if len(insights) == 0 {
		return nil, fmt.Errorf("model returned no usable insight lines")
	}
	return insights, nil
}

// buildInventoryPrompt summarizes the ledger compactly enough for a single
// completion request. Large inventories are truncated by category totals.
func buildInventoryPrompt(items []*models.InventoryItem) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Inventory of %d components:\n", len(items)))

	const maxLines = 60
	for i, item := range items {
		if i == maxLines {
			b.WriteString(fmt.Sprintf("... and %d more components\n", len(items)-maxLines))
			break
		}
		b.WriteString(fmt.Sprintf("- %s", item.Name))
		if item.Category != "" {
			b.WriteString(fmt.Sprintf(" (%s)", item.Category))
		}
		b.WriteString(fmt.Sprintf(": %d on hand, %d reserved", item.Quantity, item.Allocated))
		if item.UnitPrice != nil {
			b.WriteString(fmt.Sprintf(", $%.2f each", *item.UnitPrice))
		}
		if used := len(item.UsedIn); used > 0 {
			b.WriteString(fmt.Sprintf(", used in %d projects", used))
		}
		b.WriteString("\n")
	}
	return b.String()
}
