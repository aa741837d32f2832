package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"collabhub/internal/domain"
	"collabhub/internal/events"
	"collabhub/internal/repo"
)

// CommitmentInput names a task, the project it belongs to and an organization.
// It is shared by commitments and selections.
type CommitmentInput struct {
	ProjectID int64
	TaskID    int64
	OngID     int64
}

// Commit records the organization's interest in performing the task.
func (e Engine) Commit(ctx context.Context, in CommitmentInput, actor domain.User) (domain.Commitment, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Commitment{}, err
	}
	defer tx.Rollback()

	if err := e.requireMember(ctx, tx, actor, in.OngID, "actor is not a member of the committing organization"); err != nil {
		return domain.Commitment{}, err
	}
	task, err := e.Repo.GetTaskTx(ctx, tx, in.TaskID)
	if err != nil {
		return domain.Commitment{}, err
	}
	if task.ProjectID != in.ProjectID {
		return domain.Commitment{}, repo.ErrNotFound
	}
	p, err := e.Repo.GetProjectTx(ctx, tx, in.ProjectID)
	if err != nil {
		return domain.Commitment{}, err
	}
	switch {
	case task.ResolvesByItself:
		return domain.Commitment{}, ConflictError{Reason: "task resolves by itself and takes no commitments"}
	case task.Status == domain.TaskResolved:
		return domain.Commitment{}, ConflictError{Reason: "task is already resolved"}
	case p.Status != domain.ProjectActive:
		return domain.Commitment{}, ConflictError{Reason: "project is not accepting commitments"}
	case p.OwnerID == in.OngID:
		return domain.Commitment{}, ConflictError{Reason: "an organization cannot commit to its own project"}
	}
	_, err = e.Repo.ActiveCommitmentTx(ctx, tx, task.ID, in.OngID)
	if err == nil {
		return domain.Commitment{}, DuplicateError{Entity: "commitment", Key: "for this task and organization"}
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Commitment{}, err
	}
	c, err := e.Repo.InsertCommitmentTx(ctx, tx, domain.Commitment{
		TaskID:    task.ID,
		OngID:     in.OngID,
		ProjectID: p.ID,
		Status:    domain.CommitmentInterested,
		CreatedAt: e.stamp(),
	})
	if err != nil {
		return domain.Commitment{}, err
	}
	if err := e.eventWriter().Append(ctx, tx, events.Entry{
		Type: events.CommitmentCreated, ProjectID: p.ID, EntityKind: "commitment", EntityID: c.ID, ActorID: actor.Username,
	}, events.EventPayload{"task_id": task.ID, "ong_id": in.OngID}); err != nil {
		return domain.Commitment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Commitment{}, err
	}
	e.log().Info("commitment created",
		zap.Int64("commitment_id", c.ID), zap.Int64("task_id", task.ID), zap.Int64("ong_id", in.OngID))
	return c, nil
}

// Select awards the task to the organization and rejects every other commitment.
func (e Engine) Select(ctx context.Context, in CommitmentInput, actor domain.User) (domain.Commitment, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Commitment{}, err
	}
	defer tx.Rollback()

	task, err := e.Repo.GetTaskTx(ctx, tx, in.TaskID)
	if err != nil {
		return domain.Commitment{}, err
	}
	if task.ProjectID != in.ProjectID {
		return domain.Commitment{}, repo.ErrNotFound
	}
	owns, err := e.Auth.OwnsProject(ctx, tx, actor.ID, task.ProjectID)
	if err != nil {
		return domain.Commitment{}, err
	}
	if !owns {
		return domain.Commitment{}, NotAuthorizedError{Reason: "only the owner organization can select"}
	}
	if task.Status == domain.TaskResolved {
		return domain.Commitment{}, AlreadyResolvedError{TaskID: task.ID}
	}
	c, err := e.Repo.ActiveCommitmentTx(ctx, tx, task.ID, in.OngID)
	if err != nil {
		return domain.Commitment{}, err
	}
	resolved, err := e.Repo.ResolveTaskTx(ctx, tx, task.ID)
	if err != nil {
		return domain.Commitment{}, err
	}
	if !resolved {
		return domain.Commitment{}, AlreadyResolvedError{TaskID: task.ID}
	}
	ts := e.stamp()
	if err := e.Repo.SelectCommitmentTx(ctx, tx, c.ID, ts); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return domain.Commitment{}, AlreadyResolvedError{TaskID: task.ID}
		}
		return domain.Commitment{}, err
	}
	rejected, err := e.Repo.RejectSiblingsTx(ctx, tx, task.ID, c.ID)
	if err != nil {
		return domain.Commitment{}, err
	}
	if err := e.eventWriter().Append(ctx, tx, events.Entry{
		Type: events.CommitmentSelected, ProjectID: task.ProjectID, EntityKind: "commitment", EntityID: c.ID, ActorID: actor.Username,
	}, events.EventPayload{"task_id": task.ID, "ong_id": in.OngID, "rejected": rejected}); err != nil {
		return domain.Commitment{}, err
	}
	c, err = e.Repo.GetCommitmentTx(ctx, tx, c.ID)
	if err != nil {
		return domain.Commitment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Commitment{}, err
	}
	e.log().Info("organization selected",
		zap.Int64("task_id", task.ID), zap.Int64("ong_id", in.OngID), zap.Int64("rejected", rejected))
	e.notify(ctx, ProcessEvent{Type: events.CommitmentSelected, ProjectID: task.ProjectID, EntityID: c.ID, ActorID: actor.Username,
		Payload: map[string]any{"task_id": task.ID, "ong_id": in.OngID}})
	return c, nil
}

// CommitmentFilter narrows ViewCompromises. Zero values match everything.
type CommitmentFilter struct {
	TaskID    int64
	ProjectID int64
	OngID     int64
	Status    string
}

func (e Engine) ViewCompromises(ctx context.Context, f CommitmentFilter) ([]domain.Commitment, error) {
	switch f.Status {
	case "", domain.CommitmentInterested, domain.CommitmentSelected, domain.CommitmentRejected:
	default:
		var v validator
		v.add("status", "must be one of interested, selected, rejected")
		return nil, v.err()
	}
	rf := repo.CommitmentFilters{TaskID: f.TaskID, ProjectID: f.ProjectID, Status: f.Status}
	if f.OngID != 0 {
		rf.OngIDs = []int64{f.OngID}
	}
	return e.Repo.ListCommitments(ctx, rf)
}

func (e Engine) ListCommitmentsByTask(ctx context.Context, taskID int64) ([]domain.Commitment, error) {
	return e.Repo.ListCommitments(ctx, repo.CommitmentFilters{TaskID: taskID})
}
