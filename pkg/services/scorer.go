package services

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/partsbench/partsbench-engine/pkg/apperrors"
	"github.com/partsbench/partsbench-engine/pkg/models"
)

// Scorer ranks substitute components and project part picks. Implementations
// must be pure: identical inputs yield identical output, with no clock or
// randomness inside the scoring itself.
type Scorer interface {
	// FindAlternatives ranks substitutes for source out of pool.
	// completedProjects marks project IDs whose usage counts toward the
	// co-usage bonus.
	FindAlternatives(source *models.InventoryItem, pool []*models.InventoryItem, completedProjects map[uuid.UUID]bool) ([]models.Alternative, error)

	// SuggestForProject ranks components for a project kind and description.
	// Only candidates whose confidence exceeds threshold are returned.
	SuggestForProject(kind, description string, pool []*models.InventoryItem, threshold float64) ([]models.ComponentSuggestion, error)
}

// Compatibility score weights. These are fixed so that scores, cache entries
// and explanations stay reproducible across runs.
const (
	altBaseScore       = 40 // every eligible candidate starts here
	altCategoryBonus   = 20 // exact category match (case-insensitive)
	altTokenBonus      = 5  // per shared name token
	altTokenBonusCap   = 15
	altPriceBonusMax   = 15 // scaled down by relative price delta
	altCoUsageBonus    = 2  // per completed project shared with the source
	altCoUsageBonusCap = 10
)

// Suggestion confidence weights.
const (
	suggNameBase       = 0.3  // kind keyword found in candidate name
	suggCategoryBonus  = 0.25 // kind keyword found in candidate category
	suggDescTokenBonus = 0.05 // per description token matching the candidate
	suggDescBonusCap   = 0.15
	suggUsageBonus     = 0.05 // per project the candidate was used in
	suggUsageBonusCap  = 0.2
	maxSuggestions     = 8
)

// projectKeywords maps a project kind to the part keywords that characterize
// it. Unknown kinds fall back to genericKeywords.
var projectKeywords = map[string][]string{
	"robotics":    {"motor", "servo", "wheel", "driver", "sensor", "battery", "chassis", "encoder"},
	"iot":         {"esp32", "esp8266", "wifi", "sensor", "relay", "antenna", "mqtt", "display"},
	"audio":       {"amplifier", "speaker", "capacitor", "potentiometer", "jack", "opamp", "dac"},
	"lighting":    {"led", "strip", "driver", "diffuser", "controller", "rgb", "resistor"},
	"power":       {"battery", "charger", "regulator", "converter", "solar", "fuse", "transformer"},
	"3d-printing": {"stepper", "nozzle", "filament", "belt", "bearing", "hotend", "extruder"},
}

var genericKeywords = []string{"resistor", "capacitor", "wire", "connector", "switch", "screw", "sensor", "board"}

// HeuristicScorer is the deterministic weighted-heuristic Scorer.
type HeuristicScorer struct{}

// NewHeuristicScorer creates the default scorer.
func NewHeuristicScorer() *HeuristicScorer {
	return &HeuristicScorer{}
}

var _ Scorer = (*HeuristicScorer)(nil)

// FindAlternatives ranks candidate substitutes for source. The source itself
// and candidates without available stock are excluded. Ties break by higher
// available quantity, then lexical id order.
func (s *HeuristicScorer) FindAlternatives(source *models.InventoryItem, pool []*models.InventoryItem, completedProjects map[uuid.UUID]bool) ([]models.Alternative, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: no source component", apperrors.ErrValidation)
	}

	sourceTokens := tokenize(source.Name)

	var alternatives []models.Alternative
	for _, candidate := range pool {
		if candidate.ID == source.ID || candidate.Available() <= 0 {
			continue
		}

		score := altBaseScore
		var fired []string

		if source.Category != "" && strings.EqualFold(candidate.Category, source.Category) {
			score += altCategoryBonus
			fired = append(fired, fmt.Sprintf("same category (%s)", strings.ToLower(source.Category)))
		}

		shared := sharedTokens(sourceTokens, tokenize(candidate.Name))
		if shared > 0 {
			bonus := shared * altTokenBonus
			if bonus > altTokenBonusCap {
				bonus = altTokenBonusCap
			}
			score += bonus
			fired = append(fired, fmt.Sprintf("%d shared name tokens", shared))
		}

		var price *models.PriceComparison
		if source.UnitPrice != nil && candidate.UnitPrice != nil && *source.UnitPrice > 0 {
			delta := math.Abs(*candidate.UnitPrice-*source.UnitPrice) / *source.UnitPrice
			if delta < 1 {
				bonus := int(math.Round(altPriceBonusMax * (1 - delta)))
				if bonus > 0 {
					score += bonus
					fired = append(fired, fmt.Sprintf("similar price (%d%% delta)", int(math.Round(delta*100))))
				}
			}
			price = &models.PriceComparison{
				Original:    *source.UnitPrice,
				Alternative: *candidate.UnitPrice,
				Savings:     *source.UnitPrice - *candidate.UnitPrice,
			}
		}

		coUsage := sharedCompletedProjects(source, candidate, completedProjects)
		if coUsage > 0 {
			bonus := coUsage * altCoUsageBonus
			if bonus > altCoUsageBonusCap {
				bonus = altCoUsageBonusCap
			}
			score += bonus
			fired = append(fired, fmt.Sprintf("used together in %d completed projects", coUsage))
		}

		if score > 100 {
			score = 100
		}

		explanation := "general match"
		if len(fired) > 0 {
			explanation = strings.Join(fired, "; ")
		}

		alternatives = append(alternatives, models.Alternative{
			CandidateID:        candidate.ID,
			Name:               candidate.Name,
			CompatibilityScore: score,
			Available:          candidate.Available(),
			Price:              price,
			Explanation:        explanation,
		})
	}

	if len(alternatives) == 0 {
		return nil, fmt.Errorf("%w: no candidates with available stock", apperrors.ErrInsufficientData)
	}

	sort.Slice(alternatives, func(i, j int) bool {
		a, b := alternatives[i], alternatives[j]
		if a.CompatibilityScore != b.CompatibilityScore {
			return a.CompatibilityScore > b.CompatibilityScore
		}
		if a.Available != b.Available {
			return a.Available > b.Available
		}
		return a.CandidateID.String() < b.CandidateID.String()
	})

	return alternatives, nil
}

// SuggestForProject matches the kind's keyword table against candidate names
// and categories, returning at most maxSuggestions picks above threshold.
func (s *HeuristicScorer) SuggestForProject(kind, description string, pool []*models.InventoryItem, threshold float64) ([]models.ComponentSuggestion, error) {
	keywords, ok := projectKeywords[strings.ToLower(kind)]
	if !ok {
		keywords = genericKeywords
	}
	descTokens := tokenize(description)

	var suggestions []models.ComponentSuggestion
	anyStock := false
	for _, candidate := range pool {
		if candidate.Available() <= 0 {
			continue
		}
		anyStock = true

		confidence := 0.0
		var fired []string

		name := strings.ToLower(candidate.Name)
		category := strings.ToLower(candidate.Category)

		if kw := firstKeyword(keywords, name); kw != "" {
			confidence += suggNameBase
			fired = append(fired, fmt.Sprintf("matches %q", kw))
		}
		if kw := firstKeyword(keywords, category); kw != "" {
			confidence += suggCategoryBonus
			fired = append(fired, "category match")
		}

		descMatches := sharedTokens(descTokens, tokenize(candidate.Name+" "+candidate.Category))
		if descMatches > 0 {
			bonus := float64(descMatches) * suggDescTokenBonus
			if bonus > suggDescBonusCap {
				bonus = suggDescBonusCap
			}
			confidence += bonus
			fired = append(fired, "mentioned in description")
		}

		if used := len(candidate.UsedIn); used > 0 {
			bonus := float64(used) * suggUsageBonus
			if bonus > suggUsageBonusCap {
				bonus = suggUsageBonusCap
			}
			confidence += bonus
			fired = append(fired, fmt.Sprintf("used in %d projects", used))
		}

		if confidence > 1 {
			confidence = 1
		}
		if confidence <= threshold {
			continue
		}

		suggestions = append(suggestions, models.ComponentSuggestion{
			ComponentID: candidate.ID,
			Name:        candidate.Name,
			Category:    candidate.Category,
			Confidence:  round2(confidence),
			Available:   candidate.Available(),
			Reason:      strings.Join(fired, "; "),
		})
	}

	if !anyStock {
		return nil, fmt.Errorf("%w: no candidates with available stock", apperrors.ErrInsufficientData)
	}

	sort.Slice(suggestions, func(i, j int) bool {
		a, b := suggestions[i], suggestions[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Available != b.Available {
			return a.Available > b.Available
		}
		return a.ComponentID.String() < b.ComponentID.String()
	})

	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}

	return suggestions, nil
}

// tokenize lowercases and splits on non-alphanumeric runes, dropping
// single-character fragments.
func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if len(tok) > 1 {
			tokens[tok] = true
		}
	}
	return tokens
}

func sharedTokens(a, b map[string]bool) int {
	count := 0
	for tok := range a {
		if b[tok] {
			count++
		}
	}
	return count
}

// sharedCompletedProjects counts completed projects holding both components.
func sharedCompletedProjects(source, candidate *models.InventoryItem, completed map[uuid.UUID]bool) int {
	if len(completed) == 0 {
		return 0
	}
	inSource := make(map[uuid.UUID]bool, len(source.UsedIn))
	for _, usage := range source.UsedIn {
		if completed[usage.ProjectID] {
			inSource[usage.ProjectID] = true
		}
	}
	count := 0
	for _, usage := range candidate.UsedIn {
		if inSource[usage.ProjectID] {
			count++
		}
	}
	return count
}

func firstKeyword(keywords []string, text string) string {
	if text == "" {
		return ""
	}
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return kw
		}
	}
	return ""
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
