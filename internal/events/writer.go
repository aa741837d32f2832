package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"collabhub/internal/domain"
)

const (
	ProjectCreated      = "project.created"
	ProjectAdvanced     = "project.advanced"
	ProjectDeleted      = "project.deleted"
	CommitmentCreated   = "commitment.created"
	CommitmentSelected  = "commitment.selected"
	ObservationSent     = "observation.sent"
	ObservationAccepted = "observation.accepted"
	OrgCreated          = "org.created"
	UserRegistered      = "user.registered"
	UserDeleted         = "user.deleted"
	MemberAdded         = "org.member_added"
	MemberRemoved       = "org.member_removed"
)

// Writer appends audit events inside the caller's transaction.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Entry identifies the entity an event is about.
type Entry struct {
	Type       string
	ProjectID  int64
	EntityKind string
	EntityID   int64
	ActorID    string
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, e Entry, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, e.Type, nullableID(e.ProjectID), e.EntityKind, nullableID(e.EntityID), e.ActorID, string(data))
	return err
}

type Filters struct {
	ProjectID int64
	Type      string
	AfterID   int64
	Limit     int
}

// List returns events in append order.
func (w Writer) List(ctx context.Context, f Filters) ([]domain.Event, error) {
	var clauses []string
	var args []any
	if f.ProjectID != 0 {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.AfterID > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, f.AfterID)
	}
	query := `SELECT id,ts,type,COALESCE(project_id,0),entity_kind,COALESCE(entity_id,0),actor_id,payload_json FROM events`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := w.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var ev domain.Event
		if err := rows.Scan(&ev.ID, &ev.TS, &ev.Type, &ev.ProjectID, &ev.EntityKind, &ev.EntityID, &ev.ActorID, &ev.Payload); err != nil {
			return nil, err
		}
		res = append(res, ev)
	}
	return res, rows.Err()
}

func nullableID(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
