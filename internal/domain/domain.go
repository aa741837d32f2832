package domain

const (
	ProjectActive    = "active"
	ProjectExecution = "execution"
	ProjectFinished  = "finished"

	TaskPending  = "pending"
	TaskResolved = "resolved"

	CommitmentInterested = "interested"
	CommitmentSelected   = "selected"
	CommitmentRejected   = "rejected"

	ObservationPending  = "pending"
	ObservationAccepted = "accepted"
)

type Organization struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	CloudRegistered bool   `json:"cloud_registered"`
	CreatedAt       string `json:"created_at" format:"date-time"`
}

type User struct {
	ID           int64          `json:"id"`
	Username     string         `json:"username"`
	Email        string         `json:"email"`
	PasswordHash string         `json:"-"`
	IsManager    bool           `json:"is_manager"`
	Orgs         []Organization `json:"ongs"`
	CreatedAt    string         `json:"created_at" format:"date-time"`
}

// OrgIDs returns the ids of the organizations the user belongs to.
func (u User) OrgIDs() []int64 {
	ids := make([]int64, 0, len(u.Orgs))
	for _, o := range u.Orgs {
		ids = append(ids, o.ID)
	}
	return ids
}

// MemberOf reports whether the user belongs to orgID.
func (u User) MemberOf(orgID int64) bool {
	for _, o := range u.Orgs {
		if o.ID == orgID {
			return true
		}
	}
	return false
}

type Project struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	StartDate   string  `json:"start_date" format:"date"`
	EndDate     string  `json:"end_date" format:"date"`
	OwnerID     int64   `json:"owner_id"`
	Status      string  `json:"status" enum:"active,execution,finished"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	FinishedAt  *string `json:"finished_at,omitempty" format:"date-time"`
	Tasks       []Task  `json:"tasks"`
}

type Task struct {
	ID               int64  `json:"id"`
	ProjectID        int64  `json:"project_id"`
	Title            string `json:"title"`
	Necessity        string `json:"necessity"`
	Quantity         string `json:"quantity"`
	StartDate        string `json:"start_date" format:"date"`
	EndDate          string `json:"end_date" format:"date"`
	ResolvesByItself bool   `json:"resolves_by_itself"`
	Status           string `json:"status" enum:"pending,resolved"`
}

type Commitment struct {
	ID         int64   `json:"id"`
	TaskID     int64   `json:"task_id"`
	OngID      int64   `json:"ong_id"`
	ProjectID  int64   `json:"project_id"`
	Status     string  `json:"status" enum:"interested,selected,rejected"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
	SelectedAt *string `json:"selected_at,omitempty" format:"date-time"`
}

type Observation struct {
	ID          int64   `json:"id"`
	Content     string  `json:"content"`
	UserID      int64   `json:"user_id"`
	Username    string  `json:"username"`
	ProjectID   int64   `json:"project_id"`
	ProjectName string  `json:"project_name"`
	OngID       int64   `json:"ong_id"`
	Status      string  `json:"status" enum:"pending,accepted"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	AcceptedAt  *string `json:"accepted_at,omitempty" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  int64  `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   int64  `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
