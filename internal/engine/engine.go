package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"collabhub/internal/config"
	"collabhub/internal/domain"
	"collabhub/internal/engine/auth"
	"collabhub/internal/events"
	"collabhub/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Auth   auth.Service
	Config *config.Config
	Logger *zap.Logger
	Now    func() time.Time

	// Process is optional.
	Process ProcessNotifier
}

func New(db *sql.DB, cfg *config.Config, logger *zap.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Auth:   auth.Service{},
		Config: cfg,
		Logger: logger,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// begin starts a write transaction. The DSN makes it take the write lock immediately.
func (e Engine) begin(ctx context.Context) (*sql.Tx, error) {
	return e.DB.BeginTx(ctx, nil)
}

func (e Engine) eventWriter() events.Writer {
	w := e.Events
	w.Now = e.now
	return w
}

func (e Engine) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// RegisterInput holds the fields of a new account.
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	IsManager bool
	OrgIDs    []int64
}

var (
	upperRe   = regexp.MustCompile(`[A-Z]`)
	lowerRe   = regexp.MustCompile(`[a-z]`)
	digitRe   = regexp.MustCompile(`\d`)
	specialRe = regexp.MustCompile(`[^A-Za-z0-9]`)
)

func validateRegistration(in RegisterInput) error {
	var v validator
	name := strings.TrimSpace(in.Username)
	v.check(chars(name) >= 3 && chars(name) <= 50, "username", "must be between 3 and 50 characters")
	v.check(!strings.ContainsAny(name, " \t"), "username", "must not contain spaces")
	_, err := mail.ParseAddress(in.Email)
	v.check(err == nil, "email", "must be a valid email address")
	p := in.Password
	v.check(utf8.RuneCountInString(p) >= 6 && utf8.RuneCountInString(p) <= 128, "password", "must be between 6 and 128 characters")
	v.check(upperRe.MatchString(p) && lowerRe.MatchString(p) && digitRe.MatchString(p) && specialRe.MatchString(p),
		"password", "must include upper and lower case letters, a number and a special character")
	return v.err()
}

// RegisterUser creates an account and links it to the given organizations.
func (e Engine) RegisterUser(ctx context.Context, in RegisterInput) (domain.User, error) {
	if err := validateRegistration(in); err != nil {
		return domain.User{}, err
	}
	hash, err := repo.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	for _, id := range in.OrgIDs {
		if _, err := e.Repo.GetOrg(ctx, id); err != nil {
			return domain.User{}, fmt.Errorf("organization %d: %w", id, err)
		}
	}
	u, err := e.Repo.InsertUser(ctx, domain.User{
		Username:     strings.TrimSpace(in.Username),
		Email:        in.Email,
		PasswordHash: hash,
		IsManager:    in.IsManager,
		CreatedAt:    e.stamp(),
	})
	if errors.Is(err, repo.ErrDuplicate) {
		return domain.User{}, DuplicateError{Entity: "user", Key: in.Username}
	}
	if err != nil {
		return domain.User{}, err
	}
	for _, id := range in.OrgIDs {
		if err := e.Repo.AddMember(ctx, u.ID, id); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			return domain.User{}, err
		}
	}
	if err := e.appendStandalone(ctx, events.Entry{Type: events.UserRegistered, EntityKind: "user", EntityID: u.ID, ActorID: u.Username},
		events.EventPayload{"orgs": in.OrgIDs}); err != nil {
		return domain.User{}, err
	}
	return e.Repo.GetUser(ctx, u.ID)
}

// Authenticate checks a username and password pair.
func (e Engine) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	u, err := e.Repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, NotAuthorizedError{Reason: "incorrect username or password"}
	}
	if err != nil {
		return domain.User{}, err
	}
	if !repo.CheckPassword(password, u.PasswordHash) {
		return domain.User{}, NotAuthorizedError{Reason: "incorrect username or password"}
	}
	return u, nil
}

// CreateOrg registers an organization. Only managers may do so when actor is set.
func (e Engine) CreateOrg(ctx context.Context, name string, cloudRegistered bool, actor *domain.User) (domain.Organization, error) {
	var v validator
	name = strings.TrimSpace(name)
	v.check(chars(name) >= 3, "name", "must be at least 3 characters")
	if err := v.err(); err != nil {
		return domain.Organization{}, err
	}
	actorID, err := managerActor(actor, "only managers can create organizations")
	if err != nil {
		return domain.Organization{}, err
	}
	o, err := e.Repo.InsertOrg(ctx, domain.Organization{Name: name, CloudRegistered: cloudRegistered, CreatedAt: e.stamp()})
	if errors.Is(err, repo.ErrDuplicate) {
		return o, DuplicateError{Entity: "organization", Key: name}
	}
	if err != nil {
		return o, err
	}
	if err := e.appendStandalone(ctx, events.Entry{Type: events.OrgCreated, EntityKind: "org", EntityID: o.ID, ActorID: actorID},
		events.EventPayload{"name": o.Name, "cloud_registered": o.CloudRegistered}); err != nil {
		return o, err
	}
	return o, nil
}

// AddMember links a user to an organization. A non-nil actor must be a manager.
func (e Engine) AddMember(ctx context.Context, userID, orgID int64, actor *domain.User) error {
	actorID, err := managerActor(actor, "only managers can change memberships")
	if err != nil {
		return err
	}
	err = e.Repo.AddMember(ctx, userID, orgID)
	if errors.Is(err, repo.ErrDuplicate) {
		return DuplicateError{Entity: "membership", Key: fmt.Sprintf("%d/%d", userID, orgID)}
	}
	if err != nil {
		return err
	}
	return e.appendStandalone(ctx, events.Entry{Type: events.MemberAdded, EntityKind: "org", EntityID: orgID, ActorID: actorID},
		events.EventPayload{"user_id": userID})
}

// RemoveMember unlinks a user from an organization. Existing commitments and
// observations keep their organization.
func (e Engine) RemoveMember(ctx context.Context, userID, orgID int64, actor *domain.User) error {
	actorID, err := managerActor(actor, "only managers can change memberships")
	if err != nil {
		return err
	}
	if err := e.Repo.RemoveMember(ctx, userID, orgID); err != nil {
		return fmt.Errorf("membership %d/%d: %w", userID, orgID, err)
	}
	return e.appendStandalone(ctx, events.Entry{Type: events.MemberRemoved, EntityKind: "org", EntityID: orgID, ActorID: actorID},
		events.EventPayload{"user_id": userID})
}

// ListUsers returns the directory. A non-nil actor must be a manager.
func (e Engine) ListUsers(ctx context.Context, actor *domain.User) ([]domain.User, error) {
	if _, err := managerActor(actor, "only managers can list users"); err != nil {
		return nil, err
	}
	return e.Repo.ListUsers(ctx)
}

// DeleteUser removes an account that never authored an observation.
func (e Engine) DeleteUser(ctx context.Context, userID int64, actor *domain.User) error {
	actorID, err := managerActor(actor, "only managers can delete users")
	if err != nil {
		return err
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	n, err := e.Repo.CountUserObservationsTx(ctx, tx, userID)
	if err != nil {
		return err
	}
	if n > 0 {
		return ConflictError{Reason: "user has authored observations and cannot be deleted"}
	}
	if err := e.Repo.DeleteUserTx(ctx, tx, userID); err != nil {
		return fmt.Errorf("user %d: %w", userID, err)
	}
	if err := e.eventWriter().Append(ctx, tx, events.Entry{Type: events.UserDeleted, EntityKind: "user", EntityID: userID, ActorID: actorID}, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// MemberEmails lists contact emails of an organization for its members and managers.
func (e Engine) MemberEmails(ctx context.Context, orgID int64, actor domain.User) ([]string, error) {
	if _, err := e.Repo.GetOrg(ctx, orgID); err != nil {
		return nil, fmt.Errorf("organization %d: %w", orgID, err)
	}
	if !actor.IsManager && !actor.MemberOf(orgID) {
		return nil, NotAuthorizedError{Reason: "only members can read organization emails"}
	}
	return e.Repo.MemberEmails(ctx, orgID)
}

// managerActor returns the event actor for a directory change. A nil actor
// is the system itself.
func managerActor(actor *domain.User, reason string) (string, error) {
	if actor == nil {
		return "system", nil
	}
	if !actor.IsManager {
		return "", NotAuthorizedError{Reason: reason}
	}
	return actor.Username, nil
}

func (e Engine) appendStandalone(ctx context.Context, entry events.Entry, payload events.EventPayload) error {
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.eventWriter().Append(ctx, tx, entry, payload); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) requireMember(ctx context.Context, tx *sql.Tx, actor domain.User, orgID int64, reason string) error {
	ok, err := e.Auth.IsMember(ctx, tx, actor.ID, orgID)
	if err != nil {
		return err
	}
	if !ok {
		return NotAuthorizedError{Reason: reason}
	}
	return nil
}

func parseDate(s string) (time.Time, bool) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	return t, err == nil
}
