// Package scenario tracks per-user progress through the authority's
// compliance certification scenarios.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taxops/einvoicing-system/internal/model"
	"github.com/taxops/einvoicing-system/internal/repository"
)

// ErrInvalidTransition is returned for a move the state machine forbids.
// Allowed: not_started -> in_progress, in_progress -> completed,
// in_progress -> failed, failed -> in_progress. Completed is terminal.
var ErrInvalidTransition = errors.New("invalid scenario status transition")

// Store is the persistence contract of the tracker: a plain upsert keyed by
// (user, scenario).
type Store interface {
	GetScenarioProgress(ctx context.Context, userID int64, scenarioID string) (*model.ScenarioProgress, error)
	UpsertScenarioProgress(ctx context.Context, progress *model.ScenarioProgress) error
}

// Tracker records attempts and terminal outcomes per (user, scenario).
type Tracker struct {
	store Store
}

// NewTracker creates a tracker over the given store.
func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

// Begin marks the start of a submission attempt: moves the scenario into
// in_progress and increments the attempt counter. The first attempt creates
// the record.
func (t *Tracker) Begin(ctx context.Context, userID int64, scenarioID string) (*model.ScenarioProgress, error) {
	progress, err := t.load(ctx, userID, scenarioID)
	if err != nil {
		return nil, err
	}

	if err := checkTransition(progress.Status, model.ScenarioInProgress); err != nil {
		return nil, err
	}

	progress.Status = model.ScenarioInProgress
	progress.Attempts++
	progress.LastAttemptAt = time.Now()

	if err := t.store.UpsertScenarioProgress(ctx, progress); err != nil {
		return nil, fmt.Errorf("upsert scenario progress: %w", err)
	}
	return progress, nil
}

// Complete records a successful terminal outcome with the literal authority
// response for audit.
func (t *Tracker) Complete(ctx context.Context, userID int64, scenarioID string, response []byte) error {
	return t.finish(ctx, userID, scenarioID, model.ScenarioCompleted, response)
}

// Fail records a failed outcome. Failed scenarios may be retried back into
// in_progress via Begin. Fail must run even when submission errors out of an
// exception path, so callers invoke it from a deferred cleanup.
func (t *Tracker) Fail(ctx context.Context, userID int64, scenarioID string, response []byte) error {
	return t.finish(ctx, userID, scenarioID, model.ScenarioFailed, response)
}

func (t *Tracker) finish(ctx context.Context, userID int64, scenarioID string, status model.ScenarioStatus, response []byte) error {
	progress, err := t.load(ctx, userID, scenarioID)
	if err != nil {
		return err
	}

	if err := checkTransition(progress.Status, status); err != nil {
		return err
	}

	progress.Status = status
	progress.LastResponse = response
	progress.LastAttemptAt = time.Now()
	if status == model.ScenarioCompleted {
		now := time.Now()
		progress.CompletedAt = &now
	}

	if err := t.store.UpsertScenarioProgress(ctx, progress); err != nil {
		return fmt.Errorf("upsert scenario progress: %w", err)
	}
	return nil
}

func (t *Tracker) load(ctx context.Context, userID int64, scenarioID string) (*model.ScenarioProgress, error) {
	progress, err := t.store.GetScenarioProgress(ctx, userID, scenarioID)
	if err != nil {
		if errors.Is(err, repository.ErrProgressNotFound) {
			return &model.ScenarioProgress{
				UserID:     userID,
				ScenarioID: scenarioID,
				Status:     model.ScenarioNotStarted,
			}, nil
		}
		return nil, fmt.Errorf("get scenario progress: %w", err)
	}
	return progress, nil
}

// checkTransition enforces the four-state machine. Re-entering the current
// state is a no-op, not a transition.
func checkTransition(from, to model.ScenarioStatus) error {
	if from == to && from != model.ScenarioCompleted {
		return nil
	}

	allowed := map[model.ScenarioStatus][]model.ScenarioStatus{
		model.ScenarioNotStarted: {model.ScenarioInProgress},
		model.ScenarioInProgress: {model.ScenarioCompleted, model.ScenarioFailed},
		model.ScenarioFailed:     {model.ScenarioInProgress},
		model.ScenarioCompleted:  nil,
	}

	for _, next := range allowed[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
