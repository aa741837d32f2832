package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"collabhub/internal/domain"
)

const projectColumns = `id,name,description,start_date,end_date,owner_id,status,created_at,finished_at`

func scanProject(row interface{ Scan(...any) error }) (domain.Project, error) {
	var p domain.Project
	var finished sql.NullString
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.StartDate, &p.EndDate, &p.OwnerID, &p.Status, &p.CreatedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	p.FinishedAt = stringPtr(finished)
	return p, err
}

// InsertProjectTx inserts the project row and returns it with its id.
func (r Repo) InsertProjectTx(ctx context.Context, tx *sql.Tx, p domain.Project) (domain.Project, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO projects(name,description,start_date,end_date,owner_id,status,created_at) VALUES (?,?,?,?,?,?,?)`,
		p.Name, p.Description, p.StartDate, p.EndDate, p.OwnerID, p.Status, p.CreatedAt)
	if err != nil {
		return p, uniqueErr(err)
	}
	p.ID, err = res.LastInsertId()
	return p, err
}

func (r Repo) GetProject(ctx context.Context, id int64) (domain.Project, error) {
	return r.getProject(ctx, r.DB, id)
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Project, error) {
	return r.getProject(ctx, tx, id)
}

func (r Repo) getProject(ctx context.Context, q querier, id int64) (domain.Project, error) {
	p, err := scanProject(q.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
	if err != nil {
		return p, err
	}
	p.Tasks, err = r.listTasks(ctx, q, TaskFilters{ProjectID: p.ID})
	return p, err
}

// FindProjectByName looks a project up by name. ownerID narrows the lookup
// to one organization; zero searches all owners and fails on ambiguity.
func (r Repo) FindProjectByName(ctx context.Context, name string, ownerID int64) (domain.Project, error) {
	return r.findProjectByName(ctx, r.DB, name, ownerID)
}

func (r Repo) FindProjectByNameTx(ctx context.Context, tx *sql.Tx, name string, ownerID int64) (domain.Project, error) {
	return r.findProjectByName(ctx, tx, name, ownerID)
}

func (r Repo) findProjectByName(ctx context.Context, q querier, name string, ownerID int64) (domain.Project, error) {
	items, err := r.listProjects(ctx, q, ProjectFilters{Name: name, OwnerIDs: nonZero(ownerID)})
	if err != nil {
		return domain.Project{}, err
	}
	switch len(items) {
	case 0:
		return domain.Project{}, ErrNotFound
	case 1:
		return r.getProject(ctx, q, items[0].ID)
	default:
		return domain.Project{}, ErrDuplicate
	}
}

func (r Repo) ProjectNameExists(ctx context.Context, ownerID int64, name string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM projects WHERE owner_id=? AND name=?`, ownerID, strings.TrimSpace(name)).Scan(&n)
	return n > 0, err
}

type ProjectFilters struct {
	Name         string
	Status       string
	OwnerIDs     []int64
	NotOwnedBy   []int64
	WithTasks    bool
	Limit        int
	CursorBefore int64
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	return r.listProjects(ctx, r.DB, f)
}

func (r Repo) listProjects(ctx context.Context, q querier, f ProjectFilters) ([]domain.Project, error) {
	var clauses []string
	var args []any
	if f.Name != "" {
		clauses = append(clauses, "name=?")
		args = append(args, f.Name)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if len(f.OwnerIDs) > 0 {
		clauses = append(clauses, "owner_id IN ("+placeholders(len(f.OwnerIDs))+")")
		args = append(args, int64Args(f.OwnerIDs)...)
	}
	if len(f.NotOwnedBy) > 0 {
		clauses = append(clauses, "owner_id NOT IN ("+placeholders(len(f.NotOwnedBy))+")")
		args = append(args, int64Args(f.NotOwnedBy)...)
	}
	if f.CursorBefore > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.CursorBefore)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + projectColumns + ` FROM projects ` + where + ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	res := []domain.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, p)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if f.WithTasks {
		for i := range res {
			tasks, err := r.listTasks(ctx, q, TaskFilters{ProjectID: res[i].ID})
			if err != nil {
				return nil, err
			}
			res[i].Tasks = tasks
		}
	}
	return res, nil
}

func (r Repo) UpdateProjectStatusTx(ctx context.Context, tx *sql.Tx, id int64, status string, finishedAt *string) error {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET status=?, finished_at=COALESCE(?, finished_at) WHERE id=?`, status, nullableStringPtr(finishedAt), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProjectTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nonZero(id int64) []int64 {
	if id == 0 {
		return nil
	}
	return []int64{id}
}
