package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"collabhub/internal/domain"
)

const taskColumns = `id,project_id,title,necessity,quantity,start_date,end_date,resolves_by_itself,status`

func scanTask(row interface{ Scan(...any) error }) (domain.Task, error) {
	var t domain.Task
	var self int
	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Necessity, &t.Quantity, &t.StartDate, &t.EndDate, &self, &t.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	t.ResolvesByItself = self == 1
	return t, err
}

func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) (domain.Task, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO tasks(project_id,title,necessity,quantity,start_date,end_date,resolves_by_itself,status)
VALUES (?,?,?,?,?,?,?,?)`,
		t.ProjectID, t.Title, t.Necessity, t.Quantity, t.StartDate, t.EndDate, boolInt(t.ResolvesByItself), t.Status)
	if err != nil {
		return t, err
	}
	t.ID, err = res.LastInsertId()
	return t, err
}

func (r Repo) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	return scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Task, error) {
	return scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

// ResolveTaskTx flips a pending task to resolved. It reports false when the
// task was no longer pending, which is how concurrent selections lose.
func (r Repo) ResolveTaskTx(ctx context.Context, tx *sql.Tx, id int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET status=? WHERE id=? AND status=?`, domain.TaskResolved, id, domain.TaskPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

type TaskFilters struct {
	ProjectID        int64
	Status           string
	ResolvesByItself *bool
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	return r.listTasks(ctx, r.DB, f)
}

func (r Repo) listTasks(ctx context.Context, q querier, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.ProjectID != 0 {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.ResolvesByItself != nil {
		clauses = append(clauses, "resolves_by_itself=?")
		args = append(args, boolInt(*f.ResolvesByItself))
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := q.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks `+where+` ORDER BY id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
