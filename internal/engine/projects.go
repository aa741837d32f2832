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

// ProjectInput is a project as submitted by its creator.
type ProjectInput struct {
	Name        string
	Description string
	StartDate   string
	EndDate     string
	// OwnerID defaults to the creator's first organization.
	OwnerID int64
	Tasks   []TaskInput
}

type TaskInput struct {
	Title            string
	Necessity        string
	Quantity         string
	StartDate        string
	EndDate          string
	ResolvesByItself bool
}

func (e Engine) validateProject(in ProjectInput) error {
	p := e.Config.Policies
	var v validator
	v.check(chars(in.Name) >= p.MinProjectName, "name",
		fmt.Sprintf("must be at least %d characters", p.MinProjectName))
	v.check(chars(in.Description) >= p.MinProjectDescription, "description",
		fmt.Sprintf("must be at least %d characters", p.MinProjectDescription))
	checkRange(&v, "", in.StartDate, in.EndDate)
	v.check(len(in.Tasks) > 0, "tasks", "at least one task is required")
	for i, t := range in.Tasks {
		prefix := fmt.Sprintf("tasks[%d].", i)
		v.check(chars(t.Title) >= p.MinTaskTitle, prefix+"title",
			fmt.Sprintf("must be at least %d characters", p.MinTaskTitle))
		v.check(strings.TrimSpace(t.Necessity) != "", prefix+"necessity", "is required")
		checkRange(&v, prefix, t.StartDate, t.EndDate)
	}
	return v.err()
}

func checkRange(v *validator, prefix, start, end string) {
	s, okStart := parseDate(start)
	v.check(okStart, prefix+"start_date", "must be a YYYY-MM-DD date")
	f, okEnd := parseDate(end)
	v.check(okEnd, prefix+"end_date", "must be a YYYY-MM-DD date")
	if okStart && okEnd {
		v.check(!f.Before(s), prefix+"end_date", "must not be before start_date")
	}
}

// CreateProject persists a project together with its tasks.
func (e Engine) CreateProject(ctx context.Context, in ProjectInput, actor domain.User) (domain.Project, error) {
	if err := e.validateProject(in); err != nil {
		return domain.Project{}, err
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	orgs, err := e.Auth.MemberOrgs(ctx, tx, actor.ID)
	if err != nil {
		return domain.Project{}, err
	}
	if len(orgs) == 0 {
		var v validator
		v.add("owner_id", "creator belongs to no organization")
		return domain.Project{}, v.err()
	}
	ownerID := in.OwnerID
	if ownerID == 0 {
		ownerID = orgs[0]
	}
	if !containsID(orgs, ownerID) {
		var v validator
		v.add("owner_id", "creator is not a member of the owner organization")
		return domain.Project{}, v.err()
	}
	owner, err := e.Repo.GetOrgTx(ctx, tx, ownerID)
	if err != nil {
		return domain.Project{}, fmt.Errorf("owner organization: %w", err)
	}
	forceSelf := !owner.CloudRegistered && e.Config.Policies.ForceSelfResolveForLocalOnly

	p, err := e.Repo.InsertProjectTx(ctx, tx, domain.Project{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		StartDate:   strings.TrimSpace(in.StartDate),
		EndDate:     strings.TrimSpace(in.EndDate),
		OwnerID:     ownerID,
		Status:      domain.ProjectActive,
		CreatedAt:   e.stamp(),
	})
	if errors.Is(err, repo.ErrDuplicate) {
		return domain.Project{}, DuplicateError{Entity: "project", Key: in.Name}
	}
	if err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	for _, ti := range in.Tasks {
		t, err := e.Repo.InsertTaskTx(ctx, tx, domain.Task{
			ProjectID:        p.ID,
			Title:            strings.TrimSpace(ti.Title),
			Necessity:        strings.TrimSpace(ti.Necessity),
			Quantity:         strings.TrimSpace(ti.Quantity),
			StartDate:        strings.TrimSpace(ti.StartDate),
			EndDate:          strings.TrimSpace(ti.EndDate),
			ResolvesByItself: ti.ResolvesByItself || forceSelf,
			Status:           domain.TaskPending,
		})
		if err != nil {
			return domain.Project{}, fmt.Errorf("insert task: %w", err)
		}
		p.Tasks = append(p.Tasks, t)
	}
	if err := e.eventWriter().Append(ctx, tx, events.Entry{
		Type: events.ProjectCreated, ProjectID: p.ID, EntityKind: "project", EntityID: p.ID, ActorID: actor.Username,
	}, events.EventPayload{"owner_id": ownerID, "tasks": len(p.Tasks), "forced_self_resolve": forceSelf}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	e.log().Info("project created", zap.Int64("project_id", p.ID), zap.Int64("owner_id", ownerID), zap.Int("tasks", len(p.Tasks)))
	e.notify(ctx, ProcessEvent{Type: events.ProjectCreated, ProjectID: p.ID, EntityID: p.ID, ActorID: actor.Username,
		Payload: map[string]any{"name": p.Name, "end_date": p.EndDate, "tasks": p.Tasks}})
	return p, nil
}

func ensureProjectTransition(oldStatus, newStatus string) error {
	allowed := map[string]string{
		domain.ProjectActive:    domain.ProjectExecution,
		domain.ProjectExecution: domain.ProjectFinished,
	}
	switch newStatus {
	case domain.ProjectActive, domain.ProjectExecution, domain.ProjectFinished:
	default:
		var v validator
		v.add("status", "must be one of active, execution, finished")
		return v.err()
	}
	if allowed[oldStatus] != newStatus {
		return ConflictError{Reason: fmt.Sprintf("invalid project transition %s -> %s", oldStatus, newStatus)}
	}
	return nil
}

// AdvanceProjectStatus moves a project one step along active, execution, finished.
func (e Engine) AdvanceProjectStatus(ctx context.Context, projectID int64, status string, actor domain.User) (domain.Project, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := e.requireMember(ctx, tx, actor, p.OwnerID, "only the owner organization can change project status"); err != nil {
		return domain.Project{}, err
	}
	if err := ensureProjectTransition(p.Status, status); err != nil {
		return domain.Project{}, err
	}
	var finishedAt *string
	if status == domain.ProjectFinished {
		ts := e.stamp()
		finishedAt = &ts
	}
	if err := e.Repo.UpdateProjectStatusTx(ctx, tx, p.ID, status, finishedAt); err != nil {
		return domain.Project{}, err
	}
	if err := e.eventWriter().Append(ctx, tx, events.Entry{
		Type: events.ProjectAdvanced, ProjectID: p.ID, EntityKind: "project", EntityID: p.ID, ActorID: actor.Username,
	}, events.EventPayload{"from": p.Status, "to": status}); err != nil {
		return domain.Project{}, err
	}
	p, err = e.Repo.GetProjectTx(ctx, tx, p.ID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	e.log().Info("project advanced", zap.Int64("project_id", p.ID), zap.String("status", status))
	e.notify(ctx, ProcessEvent{Type: events.ProjectAdvanced, ProjectID: p.ID, EntityID: p.ID, ActorID: actor.Username,
		Payload: map[string]any{"status": status}})
	return p, nil
}

// DeleteProject removes an active project that never received a commitment.
func (e Engine) DeleteProject(ctx context.Context, projectID int64, actor domain.User) error {
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return err
	}
	if err := e.requireMember(ctx, tx, actor, p.OwnerID, "only the owner organization can delete the project"); err != nil {
		return err
	}
	if p.Status != domain.ProjectActive {
		return ConflictError{Reason: fmt.Sprintf("project is %s and cannot be deleted", p.Status)}
	}
	n, err := e.Repo.CountProjectCommitmentsTx(ctx, tx, p.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		return ConflictError{Reason: "project has commitments and cannot be deleted"}
	}
	if err := e.Repo.DeleteProjectTx(ctx, tx, p.ID); err != nil {
		return err
	}
	if err := e.eventWriter().Append(ctx, tx, events.Entry{
		Type: events.ProjectDeleted, EntityKind: "project", EntityID: p.ID, ActorID: actor.Username,
	}, events.EventPayload{"name": p.Name}); err != nil {
		return err
	}
	return tx.Commit()
}

// MyProjects lists projects owned by any of the actor's organizations.
func (e Engine) MyProjects(ctx context.Context, actor domain.User) ([]domain.Project, error) {
	ids := actor.OrgIDs()
	if len(ids) == 0 {
		return []domain.Project{}, nil
	}
	return e.Repo.ListProjects(ctx, repo.ProjectFilters{OwnerIDs: ids, WithTasks: true})
}

// CollaborationCandidates lists active projects owned by other organizations,
// each narrowed to the tasks still open for commitments.
func (e Engine) CollaborationCandidates(ctx context.Context, actor domain.User) ([]domain.Project, error) {
	projects, err := e.Repo.ListProjects(ctx, repo.ProjectFilters{
		Status:     domain.ProjectActive,
		NotOwnedBy: actor.OrgIDs(),
		WithTasks:  true,
	})
	if err != nil {
		return nil, err
	}
	res := []domain.Project{}
	for _, p := range projects {
		open := []domain.Task{}
		for _, t := range p.Tasks {
			if t.Status == domain.TaskPending && !t.ResolvesByItself {
				open = append(open, t)
			}
		}
		if len(open) == 0 {
			continue
		}
		p.Tasks = open
		res = append(res, p)
	}
	return res, nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
