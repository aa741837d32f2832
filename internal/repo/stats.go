package repo

import (
	"context"
)

// ProjectOutcome is the per-project input of the dashboard rollups.
type ProjectOutcome struct {
	ProjectID      int64
	EndDate        string
	FinishedAt     string
	TaskCount      int
	SelfResolved   int
	SelectedCommit int
}

// FinishedOutcomes returns one row per finished project.
func (r Repo) FinishedOutcomes(ctx context.Context) ([]ProjectOutcome, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT p.id, p.end_date, COALESCE(p.finished_at,''),
  (SELECT count(*) FROM tasks t WHERE t.project_id=p.id),
  (SELECT count(*) FROM tasks t WHERE t.project_id=p.id AND t.resolves_by_itself=1),
  (SELECT count(*) FROM commitments c WHERE c.project_id=p.id AND c.status='selected')
FROM projects p
WHERE p.status='finished'
ORDER BY p.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ProjectOutcome
	for rows.Next() {
		var o ProjectOutcome
		if err := rows.Scan(&o.ProjectID, &o.EndDate, &o.FinishedAt, &o.TaskCount, &o.SelfResolved, &o.SelectedCommit); err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// OrgCount is an activity total for one organization.
type OrgCount struct {
	OrgID int64
	Name  string
	Count int
}

// SelfResolvedByOrg counts self-resolved tasks per owning organization.
func (r Repo) SelfResolvedByOrg(ctx context.Context) ([]OrgCount, error) {
	return r.orgCounts(ctx, `
SELECT o.id, o.name, count(t.id)
FROM tasks t
JOIN projects p ON p.id=t.project_id
JOIN organizations o ON o.id=p.owner_id
WHERE t.resolves_by_itself=1
GROUP BY o.id, o.name
ORDER BY count(t.id) DESC, o.id ASC`)
}

// SelectedByOrg counts selected commitments per collaborating organization.
func (r Repo) SelectedByOrg(ctx context.Context) ([]OrgCount, error) {
	return r.orgCounts(ctx, `
SELECT o.id, o.name, count(c.id)
FROM commitments c
JOIN organizations o ON o.id=c.ong_id
WHERE c.status='selected'
GROUP BY o.id, o.name
ORDER BY count(c.id) DESC, o.id ASC`)
}

func (r Repo) orgCounts(ctx context.Context, query string) ([]OrgCount, error) {
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []OrgCount
	for rows.Next() {
		var c OrgCount
		if err := rows.Scan(&c.OrgID, &c.Name, &c.Count); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
