// Package auth checks organization membership for engine mutations.
package auth

import (
	"context"
	"database/sql"
	"errors"
)

// Service answers organization membership questions inside a transaction.
type Service struct{}

func (s Service) IsMember(ctx context.Context, tx *sql.Tx, userID, orgID int64) (bool, error) {
	row := tx.QueryRowContext(ctx, `SELECT 1 FROM user_orgs WHERE user_id=? AND org_id=? LIMIT 1`, userID, orgID)
	var n int
	err := row.Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// OwnsProject reports whether the user belongs to the organization owning the project.
func (s Service) OwnsProject(ctx context.Context, tx *sql.Tx, userID, projectID int64) (bool, error) {
	row := tx.QueryRowContext(ctx, `
SELECT 1 FROM projects p
JOIN user_orgs uo ON uo.org_id=p.owner_id
WHERE p.id=? AND uo.user_id=? LIMIT 1`, projectID, userID)
	var n int
	err := row.Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s Service) MemberOrgs(ctx context.Context, tx *sql.Tx, userID int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, `SELECT org_id FROM user_orgs WHERE user_id=? ORDER BY org_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
