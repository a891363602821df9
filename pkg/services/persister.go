package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/partsbench/partsbench-engine/pkg/apperrors"
	"github.com/partsbench/partsbench-engine/pkg/models"
	"github.com/partsbench/partsbench-engine/pkg/repositories"
	"github.com/partsbench/partsbench-engine/pkg/retry"
)

// Persister accepts storage writes from the ledger without blocking it.
// Durability is best-effort: the in-memory state is already committed when a
// task is enqueued, and a failed write surfaces as a health record, never as
// a mutation failure.
type Persister interface {
	SaveItem(item *models.InventoryItem)
	DeleteItem(id uuid.UUID)
	SaveProject(project *models.Project)
	DeleteProject(id uuid.UUID)
	Close()
}

type persistOp int

const (
	opSaveItem persistOp = iota
	opDeleteItem
	opSaveProject
	opDeleteProject
)

type persistTask struct {
	op      persistOp
	item    *models.InventoryItem
	project *models.Project
	id      uuid.UUID
}

// writeBehindPersister drains a bounded task queue on a single worker
// goroutine, retrying transient storage failures with backoff.
type writeBehindPersister struct {
	items    repositories.ItemRepository
	projects repositories.ProjectRepository
	health   *HealthTracker
	logger   *zap.Logger
	retryCfg *retry.Config

	tasks     chan persistTask
	closeOnce sync.Once
	done      chan struct{}
}

const persistQueueSize = 256

// NewPersister starts the write-behind worker.
func NewPersister(
	items repositories.ItemRepository,
	projects repositories.ProjectRepository,
	health *HealthTracker,
	logger *zap.Logger,
) Persister {
	p := &writeBehindPersister{
		items:    items,
		projects: projects,
		health:   health,
		logger:   logger.Named("persister"),
		retryCfg: retry.DefaultConfig(),
		tasks:    make(chan persistTask, persistQueueSize),
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

var _ Persister = (*writeBehindPersister)(nil)

func (p *writeBehindPersister) SaveItem(item *models.InventoryItem) {
	p.enqueue(persistTask{op: opSaveItem, item: item, id: item.ID})
}

func (p *writeBehindPersister) DeleteItem(id uuid.UUID) {
	p.enqueue(persistTask{op: opDeleteItem, id: id})
}

func (p *writeBehindPersister) SaveProject(project *models.Project) {
	p.enqueue(persistTask{op: opSaveProject, project: project, id: project.ID})
}

func (p *writeBehindPersister) DeleteProject(id uuid.UUID) {
	p.enqueue(persistTask{op: opDeleteProject, id: id})
}

// Close stops accepting tasks and drains the queue.
func (p *writeBehindPersister) Close() {
	p.closeOnce.Do(func() {
		close(p.tasks)
	})
	<-p.done
}

// enqueue never blocks the ledger: when the queue is full the write is
// dropped and recorded against health.
func (p *writeBehindPersister) enqueue(task persistTask) {
	defer func() {
		// Enqueue after Close is a programming error upstream; swallow the
		// send-on-closed panic rather than take the process down.
		if r := recover(); r != nil {
			p.logger.Warn("persist task enqueued after close", zap.String("id", task.id.String()))
		}
	}()

	select {
	case p.tasks <- task:
	default:
		p.logger.Warn("persist queue full, dropping write",
			zap.String("id", task.id.String()))
		p.health.Record(fmt.Errorf("%w: persist queue full", apperrors.ErrUpstreamUnavailable))
	}
}

func (p *writeBehindPersister) run() {
	defer close(p.done)
	ctx := context.Background()

	for task := range p.tasks {
		err := retry.DoIfRetryable(ctx, p.retryCfg, func() error {
			return p.execute(ctx, task)
		})
		if err != nil {
			p.logger.Warn("storage write failed after retries",
				zap.String("id", task.id.String()),
				zap.Error(err))
			p.health.Record(fmt.Errorf("%w: %v", apperrors.ErrUpstreamUnavailable, err))
		}
	}
}

func (p *writeBehindPersister) execute(ctx context.Context, task persistTask) error {
	switch task.op {
	case opSaveItem:
		return p.items.Save(ctx, task.item)
	case opDeleteItem:
		err := p.items.Delete(ctx, task.id)
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil // already gone, nothing to retry
		}
		return err
	case opSaveProject:
		return p.projects.Save(ctx, task.project)
	case opDeleteProject:
		err := p.projects.Delete(ctx, task.id)
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// noopPersister satisfies Persister when no storage backend is configured.
type noopPersister struct{}

// NewNoopPersister returns a Persister that discards all writes. Useful for
// ephemeral runs and tests.
func NewNoopPersister() Persister {
	return noopPersister{}
}

func (noopPersister) SaveItem(*models.InventoryItem) {}
func (noopPersister) DeleteItem(uuid.UUID)           {}
func (noopPersister) SaveProject(*models.Project)    {}
func (noopPersister) DeleteProject(uuid.UUID)        {}
func (noopPersister) Close()                         {}
