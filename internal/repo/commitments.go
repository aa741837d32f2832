package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"collabhub/internal/domain"
)

const commitmentColumns = `id,task_id,ong_id,project_id,status,created_at,selected_at`

func scanCommitment(row interface{ Scan(...any) error }) (domain.Commitment, error) {
	var c domain.Commitment
	var selected sql.NullString
	err := row.Scan(&c.ID, &c.TaskID, &c.OngID, &c.ProjectID, &c.Status, &c.CreatedAt, &selected)
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	c.SelectedAt = stringPtr(selected)
	return c, err
}

func (r Repo) InsertCommitmentTx(ctx context.Context, tx *sql.Tx, c domain.Commitment) (domain.Commitment, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO commitments(task_id,ong_id,project_id,status,created_at) VALUES (?,?,?,?,?)`,
		c.TaskID, c.OngID, c.ProjectID, c.Status, c.CreatedAt)
	if err != nil {
		return c, uniqueErr(err)
	}
	c.ID, err = res.LastInsertId()
	return c, err
}

// ActiveCommitmentTx returns the non-rejected commitment of ongID on taskID.
func (r Repo) ActiveCommitmentTx(ctx context.Context, tx *sql.Tx, taskID, ongID int64) (domain.Commitment, error) {
	return scanCommitment(tx.QueryRowContext(ctx, `SELECT `+commitmentColumns+` FROM commitments
WHERE task_id=? AND ong_id=? AND status<>? ORDER BY id DESC LIMIT 1`, taskID, ongID, domain.CommitmentRejected))
}

// SelectCommitmentTx marks the given interested commitment as selected.
func (r Repo) SelectCommitmentTx(ctx context.Context, tx *sql.Tx, id int64, selectedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE commitments SET status=?, selected_at=? WHERE id=? AND status=?`,
		domain.CommitmentSelected, selectedAt, id, domain.CommitmentInterested)
	if err != nil {
		return uniqueErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RejectSiblingsTx rejects every other non-rejected commitment on the task.
func (r Repo) RejectSiblingsTx(ctx context.Context, tx *sql.Tx, taskID, keepID int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE commitments SET status=? WHERE task_id=? AND id<>? AND status<>?`,
		domain.CommitmentRejected, taskID, keepID, domain.CommitmentRejected)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r Repo) GetCommitmentTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Commitment, error) {
	return scanCommitment(tx.QueryRowContext(ctx, `SELECT `+commitmentColumns+` FROM commitments WHERE id=?`, id))
}

func (r Repo) CountProjectCommitmentsTx(ctx context.Context, tx *sql.Tx, projectID int64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM commitments WHERE project_id=?`, projectID).Scan(&n)
	return n, err
}

type CommitmentFilters struct {
	TaskID    int64
	ProjectID int64
	OngIDs    []int64
	Status    string
}

func (r Repo) ListCommitments(ctx context.Context, f CommitmentFilters) ([]domain.Commitment, error) {
	var clauses []string
	var args []any
	if f.TaskID != 0 {
		clauses = append(clauses, "task_id=?")
		args = append(args, f.TaskID)
	}
	if f.ProjectID != 0 {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if len(f.OngIDs) > 0 {
		clauses = append(clauses, "ong_id IN ("+placeholders(len(f.OngIDs))+")")
		args = append(args, int64Args(f.OngIDs)...)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+commitmentColumns+` FROM commitments `+where+` ORDER BY id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Commitment{}
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
