package collabsdk

import (
	"errors"
	"fmt"
)

// validator is implemented by every response type.
type validator interface {
	Validate() error
}

// List is a JSON array whose items are validated one by one.
type List[T validator] []T

func (l List[T]) Validate() error {
	for i, item := range l {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

func oneOf(field, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%s: unexpected value %q", field, v)
}

type LoginResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	CloudAccessToken string `json:"cloud_access_token,omitempty"`
	CloudError       string `json:"cloud_error,omitempty"`
}

func (r LoginResponse) Validate() error {
	if r.AccessToken == "" {
		return errors.New("access_token missing")
	}
	if r.TokenType != "bearer" {
		return fmt.Errorf("token_type: unexpected value %q", r.TokenType)
	}
	return nil
}

type Organization struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	CloudRegistered bool   `json:"cloud_registered"`
	CreatedAt       string `json:"created_at"`
}

func (o Organization) Validate() error {
	if o.ID <= 0 || o.Name == "" {
		return errors.New("organization id and name required")
	}
	return nil
}

type User struct {
	ID        int64          `json:"id"`
	Username  string         `json:"username"`
	Email     string         `json:"email"`
	IsManager bool           `json:"is_manager"`
	Ongs      []Organization `json:"ongs"`
}

func (u User) Validate() error {
	if u.ID <= 0 || u.Username == "" {
		return errors.New("user id and username required")
	}
	return List[Organization](u.Ongs).Validate()
}

type Task struct {
	ID               int64  `json:"id"`
	ProjectID        int64  `json:"project_id"`
	Title            string `json:"title"`
	Necessity        string `json:"necessity"`
	Quantity         string `json:"quantity"`
	StartDate        string `json:"start_date"`
	EndDate          string `json:"end_date"`
	ResolvesByItself bool   `json:"resolves_by_itself"`
	Status           string `json:"status"`
}

func (t Task) Validate() error {
	if t.ID <= 0 || t.ProjectID <= 0 {
		return errors.New("task id and project_id required")
	}
	return oneOf("status", t.Status, "pending", "resolved")
}

type Project struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	StartDate   string  `json:"start_date"`
	EndDate     string  `json:"end_date"`
	OwnerID     int64   `json:"owner_id"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	FinishedAt  *string `json:"finished_at,omitempty"`
	Tasks       []Task  `json:"tasks"`
}

func (p Project) Validate() error {
	if p.ID <= 0 || p.Name == "" || p.OwnerID <= 0 {
		return errors.New("project id, name and owner_id required")
	}
	if err := oneOf("status", p.Status, "active", "execution", "finished"); err != nil {
		return err
	}
	return List[Task](p.Tasks).Validate()
}

type Commitment struct {
	ID         int64   `json:"id"`
	TaskID     int64   `json:"task_id"`
	OngID      int64   `json:"ong_id"`
	ProjectID  int64   `json:"project_id"`
	Status     string  `json:"status"`
	CreatedAt  string  `json:"created_at"`
	SelectedAt *string `json:"selected_at,omitempty"`
}

func (c Commitment) Validate() error {
	if c.ID <= 0 || c.TaskID <= 0 || c.OngID <= 0 {
		return errors.New("commitment id, task_id and ong_id required")
	}
	if err := oneOf("status", c.Status, "interested", "selected", "rejected"); err != nil {
		return err
	}
	if c.Status == "selected" && c.SelectedAt == nil {
		return errors.New("selected commitment without selected_at")
	}
	return nil
}

type Selection struct {
	Message    string     `json:"message"`
	Commitment Commitment `json:"commitment"`
}

func (s Selection) Validate() error {
	if s.Commitment.Status != "selected" {
		return fmt.Errorf("commitment.status: expected selected, got %q", s.Commitment.Status)
	}
	return s.Commitment.Validate()
}

type Observation struct {
	ID          int64   `json:"id"`
	Content     string  `json:"content"`
	UserID      int64   `json:"user_id"`
	Username    string  `json:"username"`
	ProjectID   int64   `json:"project_id"`
	ProjectName string  `json:"project_name"`
	OngID       int64   `json:"ong_id"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	AcceptedAt  *string `json:"accepted_at,omitempty"`
}

func (o Observation) Validate() error {
	if o.ID <= 0 || o.ProjectID <= 0 {
		return errors.New("observation id and project_id required")
	}
	return oneOf("status", o.Status, "pending", "accepted")
}

type ObservationResult struct {
	Message     string      `json:"message"`
	Observation Observation `json:"observation"`
}

func (r ObservationResult) Validate() error {
	return r.Observation.Validate()
}

type NameExists struct {
	Exists bool `json:"exists"`
}

func (NameExists) Validate() error { return nil }

type OngActivity struct {
	Name  string `json:"name"`
	Total int    `json:"total"`
}

func (a OngActivity) Validate() error {
	if a.Name == "" || a.Total < 0 {
		return errors.New("activity name required and total non-negative")
	}
	return nil
}

type NoCollaboration struct {
	ProjectsNoCollab int     `json:"projects_no_collab"`
	TotalProjects    int     `json:"total_projects"`
	Percent          float64 `json:"percent"`
}

type Dashboard struct {
	SuccessfulOnTimeAvg float64           `json:"successful_on_time_avg"`
	NoCollaboration     NoCollaboration   `json:"no_collaboration"`
	TopOngs             List[OngActivity] `json:"top_ongs"`
}

func (d Dashboard) Validate() error {
	if d.SuccessfulOnTimeAvg < 0 || d.SuccessfulOnTimeAvg > 100 {
		return fmt.Errorf("successful_on_time_avg out of range: %v", d.SuccessfulOnTimeAvg)
	}
	if d.NoCollaboration.ProjectsNoCollab > d.NoCollaboration.TotalProjects {
		return errors.New("no_collaboration: more projects without collaboration than total")
	}
	return d.TopOngs.Validate()
}

// Request payloads

type RegisterRequest struct {
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	IsManager bool    `json:"is_manager,omitempty"`
	OngIDs    []int64 `json:"ong_ids,omitempty"`
}

type TaskRequest struct {
	Title            string `json:"title"`
	Necessity        string `json:"necessity"`
	Quantity         string `json:"quantity,omitempty"`
	StartDate        string `json:"start_date"`
	EndDate          string `json:"end_date"`
	ResolvesByItself bool   `json:"resolves_by_itself,omitempty"`
}

type CreateProjectRequest struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	StartDate   string        `json:"start_date"`
	EndDate     string        `json:"end_date"`
	OwnerID     int64         `json:"owner_id,omitempty"`
	Tasks       []TaskRequest `json:"tasks"`
}

type SendObservationRequest struct {
	Content     string `json:"content"`
	ProjectID   int64  `json:"project_id,omitempty"`
	ProjectName string `json:"project_name,omitempty"`
	OngID       int64  `json:"ong_id,omitempty"`
}

// CompromiseFilter narrows Compromises. Zero values match everything.
type CompromiseFilter struct {
	TaskID    int64
	ProjectID int64
	OngID     int64
	Status    string
}
