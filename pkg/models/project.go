package models

import (
	"time"

	"github.com/google/uuid"
)

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectPlanning   ProjectStatus = "planning"
	ProjectInProgress ProjectStatus = "in-progress"
	ProjectTesting    ProjectStatus = "testing"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectOnHold     ProjectStatus = "on-hold"
	ProjectDropped    ProjectStatus = "dropped"
)

// projectTransitions is the fixed adjacency table for project status changes.
// The initial state is planning. A dropped project can only be revived back
// into planning; a completed project can be reopened for rework or retesting.
var projectTransitions = map[ProjectStatus][]ProjectStatus{
	ProjectPlanning:   {ProjectInProgress, ProjectOnHold, ProjectDropped},
	ProjectInProgress: {ProjectTesting, ProjectCompleted, ProjectOnHold, ProjectDropped},
	ProjectTesting:    {ProjectInProgress, ProjectCompleted, ProjectDropped},
	ProjectCompleted:  {ProjectInProgress, ProjectTesting},
	ProjectOnHold:     {ProjectPlanning, ProjectInProgress, ProjectDropped},
	ProjectDropped:    {ProjectPlanning},
}

// CanTransition reports whether a project may move from one status to another.
func CanTransition(from, to ProjectStatus) bool {
	for _, next := range projectTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidProjectStatus reports whether s is one of the known project statuses.
func ValidProjectStatus(s ProjectStatus) bool {
	if s == ProjectPlanning {
		return true
	}
	_, ok := projectTransitions[s]
	return ok
}

// Provenance marks how a component reference was added to a project.
type Provenance string

const (
	ProvenanceManual       Provenance = "manual"
	ProvenanceInventory    Provenance = "inventory"
	ProvenanceAISuggested  Provenance = "ai-suggested"
	ProvenanceExternalSync Provenance = "external-sync"
)

// ComponentRef is an entry in a project's parts list. When the reference is
// backed by an inventory component and IsAllocated is set, it is tied 1:1 to
// an allocation record keyed by (ComponentID, project ID).
type ComponentRef struct {
	RefID       uuid.UUID  `json:"ref_id"`
	Name        string     `json:"name"`
	Quantity    int        `json:"quantity"`
	Provenance  Provenance `json:"provenance"`
	ComponentID *uuid.UUID `json:"component_id,omitempty"`
	IsAllocated bool       `json:"is_allocated,omitempty"`
}

// Project groups component references under a named effort.
type Project struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Kind        string         `json:"kind,omitempty"`
	Description string         `json:"description,omitempty"`
	Status      ProjectStatus  `json:"status"`
	Components  []ComponentRef `json:"components,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Clone returns a deep copy of the project.
func (p *Project) Clone() *Project {
	c := *p
	if p.Components != nil {
		c.Components = make([]ComponentRef, len(p.Components))
		for i, ref := range p.Components {
			c.Components[i] = ref
			if ref.ComponentID != nil {
				id := *ref.ComponentID
				c.Components[i].ComponentID = &id
			}
		}
	}
	return &c
}
