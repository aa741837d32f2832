package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"collabhub/internal/domain"
)

const observationSelect = `SELECT o.id,o.content,o.user_id,u.username,o.project_id,p.name,p.owner_id,o.status,o.created_at,o.accepted_at
FROM observations o
JOIN users u ON u.id=o.user_id
JOIN projects p ON p.id=o.project_id`

func scanObservation(row interface{ Scan(...any) error }) (domain.Observation, error) {
	var o domain.Observation
	var accepted sql.NullString
	err := row.Scan(&o.ID, &o.Content, &o.UserID, &o.Username, &o.ProjectID, &o.ProjectName, &o.OngID, &o.Status, &o.CreatedAt, &accepted)
	if errors.Is(err, sql.ErrNoRows) {
		return o, ErrNotFound
	}
	o.AcceptedAt = stringPtr(accepted)
	return o, err
}

func (r Repo) InsertObservationTx(ctx context.Context, tx *sql.Tx, o domain.Observation) (domain.Observation, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO observations(project_id,user_id,content,status,created_at) VALUES (?,?,?,?,?)`,
		o.ProjectID, o.UserID, o.Content, o.Status, o.CreatedAt)
	if err != nil {
		return o, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return o, err
	}
	return r.GetObservationTx(ctx, tx, id)
}

func (r Repo) GetObservationTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Observation, error) {
	return scanObservation(tx.QueryRowContext(ctx, observationSelect+` WHERE o.id=?`, id))
}

func (r Repo) AcceptObservationTx(ctx context.Context, tx *sql.Tx, id int64, acceptedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE observations SET status=?, accepted_at=? WHERE id=? AND status=?`,
		domain.ObservationAccepted, acceptedAt, id, domain.ObservationPending)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type ObservationFilters struct {
	OwnerIDs  []int64
	AuthorID  int64
	ProjectID int64
	Status    string
}

func (r Repo) ListObservations(ctx context.Context, f ObservationFilters) ([]domain.Observation, error) {
	var clauses []string
	var args []any
	if len(f.OwnerIDs) > 0 {
		clauses = append(clauses, "p.owner_id IN ("+placeholders(len(f.OwnerIDs))+")")
		args = append(args, int64Args(f.OwnerIDs)...)
	}
	if f.AuthorID != 0 {
		clauses = append(clauses, "o.user_id=?")
		args = append(args, f.AuthorID)
	}
	if f.ProjectID != 0 {
		clauses = append(clauses, "o.project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		clauses = append(clauses, "o.status=?")
		args = append(args, f.Status)
	}
	query := observationSelect
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, query+` ORDER BY o.id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Observation{}
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}
