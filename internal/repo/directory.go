package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"collabhub/internal/domain"
)

// HashPassword hashes a plain password using bcrypt.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(b), err
}

// CheckPassword compares a plain password with a stored hash.
func CheckPassword(plain, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}

func (r Repo) InsertOrg(ctx context.Context, o domain.Organization) (domain.Organization, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO organizations(name, cloud_registered, created_at) VALUES (?,?,?)`,
		o.Name, boolInt(o.CloudRegistered), o.CreatedAt)
	if err != nil {
		return o, uniqueErr(err)
	}
	o.ID, err = res.LastInsertId()
	return o, err
}

func scanOrg(row interface{ Scan(...any) error }) (domain.Organization, error) {
	var o domain.Organization
	var cloud int
	err := row.Scan(&o.ID, &o.Name, &cloud, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return o, ErrNotFound
	}
	o.CloudRegistered = cloud == 1
	return o, err
}

func (r Repo) GetOrg(ctx context.Context, id int64) (domain.Organization, error) {
	return r.getOrg(ctx, r.DB, id)
}

func (r Repo) GetOrgTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Organization, error) {
	return r.getOrg(ctx, tx, id)
}

func (r Repo) getOrg(ctx context.Context, q querier, id int64) (domain.Organization, error) {
	return scanOrg(q.QueryRowContext(ctx, `SELECT id,name,cloud_registered,created_at FROM organizations WHERE id=?`, id))
}

func (r Repo) GetOrgByName(ctx context.Context, name string) (domain.Organization, error) {
	return scanOrg(r.DB.QueryRowContext(ctx, `SELECT id,name,cloud_registered,created_at FROM organizations WHERE name=?`, name))
}

func (r Repo) ListOrgs(ctx context.Context) ([]domain.Organization, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,cloud_registered,created_at FROM organizations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Organization{}
	for rows.Next() {
		o, err := scanOrg(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

func (r Repo) InsertUser(ctx context.Context, u domain.User) (domain.User, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO users(username,email,password_hash,is_manager,created_at) VALUES (?,?,?,?,?)`,
		u.Username, strings.ToLower(u.Email), u.PasswordHash, boolInt(u.IsManager), u.CreatedAt)
	if err != nil {
		return u, uniqueErr(err)
	}
	u.ID, err = res.LastInsertId()
	u.Orgs = []domain.Organization{}
	return u, err
}

func (r Repo) GetUser(ctx context.Context, id int64) (domain.User, error) {
	return r.getUser(ctx, r.DB, `WHERE id=?`, id)
}

func (r Repo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return r.getUser(ctx, r.DB, `WHERE username=?`, username)
}

func (r Repo) getUser(ctx context.Context, q querier, where string, arg any) (domain.User, error) {
	var u domain.User
	var manager int
	err := q.QueryRowContext(ctx, `SELECT id,username,email,password_hash,is_manager,created_at FROM users `+where, arg).
		Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &manager, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	u.IsManager = manager == 1
	u.Orgs, err = r.userOrgs(ctx, q, u.ID)
	return u, err
}

// ListUsers returns every account with its memberships, ordered by id.
func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		u, err := r.GetUser(ctx, id)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// MemberEmails lists the emails of an organization's members.
func (r Repo) MemberEmails(ctx context.Context, orgID int64) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT u.email FROM users u JOIN user_orgs uo ON uo.user_id=u.id
WHERE uo.org_id=? ORDER BY u.id`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	emails := []string{}
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

func (r Repo) CountUserObservationsTx(ctx context.Context, tx *sql.Tx, userID int64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM observations WHERE user_id=?`, userID).Scan(&n)
	return n, err
}

// DeleteUserTx removes an account; memberships go with it.
func (r Repo) DeleteUserTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) userOrgs(ctx context.Context, q querier, userID int64) ([]domain.Organization, error) {
	rows, err := q.QueryContext(ctx, `
SELECT o.id,o.name,o.cloud_registered,o.created_at
FROM organizations o JOIN user_orgs uo ON uo.org_id=o.id
WHERE uo.user_id=? ORDER BY o.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	orgs := []domain.Organization{}
	for rows.Next() {
		o, err := scanOrg(rows)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}

// AddMember links a user to an organization. Adding an existing membership is a duplicate.
func (r Repo) AddMember(ctx context.Context, userID, orgID int64) error {
	if _, err := r.GetUser(ctx, userID); err != nil {
		return fmt.Errorf("user %d: %w", userID, err)
	}
	if _, err := r.GetOrg(ctx, orgID); err != nil {
		return fmt.Errorf("organization %d: %w", orgID, err)
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO user_orgs(user_id, org_id) VALUES (?,?)`, userID, orgID)
	return uniqueErr(err)
}

// RemoveMember unlinks a user from an organization.
func (r Repo) RemoveMember(ctx context.Context, userID, orgID int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM user_orgs WHERE user_id=? AND org_id=?`, userID, orgID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
