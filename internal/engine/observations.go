package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"collabhub/internal/domain"
	"collabhub/internal/events"
	"collabhub/internal/repo"
)

// ObservationInput targets a project by id, or by name among the projects
// owned by OngID.
type ObservationInput struct {
	Content     string
	ProjectID   int64
	ProjectName string
	OngID       int64
}

func (e Engine) SendObservation(ctx context.Context, in ObservationInput, author domain.User) (domain.Observation, error) {
	content := strings.TrimSpace(in.Content)
	minLen := e.Config.Policies.MinObservation
	var v validator
	v.check(chars(content) >= minLen, "content", fmt.Sprintf("must be at least %d characters", minLen))
	v.check(in.ProjectID != 0 || strings.TrimSpace(in.ProjectName) != "", "project_id", "project_id or project_name is required")
	if err := v.err(); err != nil {
		return domain.Observation{}, err
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Observation{}, err
	}
	defer tx.Rollback()

	var p domain.Project
	if in.ProjectID != 0 {
		p, err = e.Repo.GetProjectTx(ctx, tx, in.ProjectID)
	} else {
		p, err = e.Repo.FindProjectByNameTx(ctx, tx, strings.TrimSpace(in.ProjectName), in.OngID)
		if errors.Is(err, repo.ErrDuplicate) {
			return domain.Observation{}, ConflictError{Reason: "project name is ambiguous, pass project_id"}
		}
	}
	if err != nil {
		return domain.Observation{}, err
	}
	if p.Status != domain.ProjectExecution {
		return domain.Observation{}, ConflictError{Reason: "observations are only accepted while the project is in execution"}
	}
	member, err := e.Auth.IsMember(ctx, tx, author.ID, p.OwnerID)
	if err != nil {
		return domain.Observation{}, err
	}
	if member {
		return domain.Observation{}, NotAuthorizedError{Reason: "the owner organization cannot observe its own project"}
	}
	o, err := e.Repo.InsertObservationTx(ctx, tx, domain.Observation{
		Content:   content,
		UserID:    author.ID,
		ProjectID: p.ID,
		Status:    domain.ObservationPending,
		CreatedAt: e.stamp(),
	})
	if err != nil {
		return domain.Observation{}, err
	}
	if err := e.eventWriter().Append(ctx, tx, events.Entry{
		Type: events.ObservationSent, ProjectID: p.ID, EntityKind: "observation", EntityID: o.ID, ActorID: author.Username,
	}, nil); err != nil {
		return domain.Observation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Observation{}, err
	}
	e.log().Info("observation sent", zap.Int64("observation_id", o.ID), zap.Int64("project_id", p.ID))
	e.notify(ctx, ProcessEvent{Type: events.ObservationSent, ProjectID: p.ID, EntityID: o.ID, ActorID: author.Username,
		Payload: map[string]any{"content": o.Content}})
	return o, nil
}

func (e Engine) AcceptObservation(ctx context.Context, observationID int64, actor domain.User) (domain.Observation, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Observation{}, err
	}
	defer tx.Rollback()

	o, err := e.Repo.GetObservationTx(ctx, tx, observationID)
	if err != nil {
		return domain.Observation{}, err
	}
	if err := e.requireMember(ctx, tx, actor, o.OngID, "only the owner organization can accept observations"); err != nil {
		return domain.Observation{}, err
	}
	if o.Status == domain.ObservationAccepted {
		return domain.Observation{}, ConflictError{Reason: "observation already accepted"}
	}
	if err := e.Repo.AcceptObservationTx(ctx, tx, o.ID, e.stamp()); err != nil {
		return domain.Observation{}, err
	}
	if err := e.eventWriter().Append(ctx, tx, events.Entry{
		Type: events.ObservationAccepted, ProjectID: o.ProjectID, EntityKind: "observation", EntityID: o.ID, ActorID: actor.Username,
	}, nil); err != nil {
		return domain.Observation{}, err
	}
	o, err = e.Repo.GetObservationTx(ctx, tx, o.ID)
	if err != nil {
		return domain.Observation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Observation{}, err
	}
	e.log().Info("observation accepted", zap.Int64("observation_id", o.ID))
	e.notify(ctx, ProcessEvent{Type: events.ObservationAccepted, ProjectID: o.ProjectID, EntityID: o.ID, ActorID: actor.Username})
	return o, nil
}

// ObservationsForOwner lists observations on projects the actor's organizations own.
func (e Engine) ObservationsForOwner(ctx context.Context, actor domain.User) ([]domain.Observation, error) {
	ids := actor.OrgIDs()
	if len(ids) == 0 {
		return []domain.Observation{}, nil
	}
	return e.Repo.ListObservations(ctx, repo.ObservationFilters{OwnerIDs: ids})
}

func (e Engine) ObservationsByAuthor(ctx context.Context, actor domain.User) ([]domain.Observation, error) {
	return e.Repo.ListObservations(ctx, repo.ObservationFilters{AuthorID: actor.ID})
}
