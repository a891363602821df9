package models

import "github.com/google/uuid"

// AllocationRecord reserves a quantity of a component for a project without
// consuming it from stock. At most one record exists per (component, project)
// pair; repeated allocations merge by summing quantities.
type AllocationRecord struct {
	ComponentID uuid.UUID `json:"component_id"`
	ProjectID   uuid.UUID `json:"project_id"`
	ProjectName string    `json:"project_name"`
	Quantity    int       `json:"quantity"`
}
