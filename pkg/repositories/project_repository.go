package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/partsbench/partsbench-engine/pkg/apperrors"
	"github.com/partsbench/partsbench-engine/pkg/database"
	"github.com/partsbench/partsbench-engine/pkg/models"
)

// ProjectRepository defines storage access for projects.
type ProjectRepository interface {
	LoadAll(ctx context.Context) ([]*models.Project, error)
	Save(ctx context.Context, project *models.Project) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type projectRepository struct {
	db *database.DB
}

// NewProjectRepository creates a new project repository.
func NewProjectRepository(db *database.DB) ProjectRepository {
	return &projectRepository{db: db}
}

// LoadAll returns every stored project, oldest first.
func (r *projectRepository) LoadAll(ctx context.Context) ([]*models.Project, error) {
	query := `
		SELECT id, name, kind, description, status, components, created_at, updated_at
		FROM bench_projects
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load projects: %w", err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		var project models.Project
		var components []byte

		if err := rows.Scan(
			&project.ID,
			&project.Name,
			&project.Kind,
			&project.Description,
			&project.Status,
			&components,
			&project.CreatedAt,
			&project.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}

		if err := json.Unmarshal(components, &project.Components); err != nil {
			return nil, fmt.Errorf("failed to unmarshal components: %w", err)
		}

		projects = append(projects, &project)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read projects: %w", err)
	}

	return projects, nil
}

// Save upserts a project.
func (r *projectRepository) Save(ctx context.Context, project *models.Project) error {
	components, err := json.Marshal(project.Components)
	if err != nil {
		return fmt.Errorf("failed to marshal components: %w", err)
	}
	if project.Components == nil {
		components = []byte("[]")
	}

	query := `
		INSERT INTO bench_projects (id, name, kind, description, status, components, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    kind = EXCLUDED.kind,
		    description = EXCLUDED.description,
		    status = EXCLUDED.status,
		    components = EXCLUDED.components,
		    updated_at = EXCLUDED.updated_at`

	_, err = r.db.Exec(ctx, query,
		project.ID,
		project.Name,
		project.Kind,
		project.Description,
		project.Status,
		components,
		project.CreatedAt,
		project.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}

	return nil
}

// Delete removes a project by ID.
func (r *projectRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM bench_projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// Ensure projectRepository implements ProjectRepository at compile time.
var _ ProjectRepository = (*projectRepository)(nil)
