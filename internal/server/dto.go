package server

import (
	"collabhub/internal/domain"
	"collabhub/internal/engine"
)

// Request payloads

type RegisterUserRequest struct {
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	IsManager bool    `json:"is_manager,omitempty"`
	OngIDs    []int64 `json:"ong_ids,omitempty"`
}

type CreateTaskRequest struct {
	Title            string `json:"title"`
	Necessity        string `json:"necessity"`
	Quantity         string `json:"quantity,omitempty"`
	StartDate        string `json:"start_date" example:"2024-01-15"`
	EndDate          string `json:"end_date" example:"2024-02-15"`
	ResolvesByItself bool   `json:"resolves_by_itself,omitempty"`
}

type CreateProjectRequest struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	StartDate   string              `json:"start_date" example:"2024-01-10"`
	EndDate     string              `json:"end_date" example:"2024-03-31"`
	OwnerID     int64               `json:"owner_id,omitempty"`
	Tasks       []CreateTaskRequest `json:"tasks"`
}

type AdvanceStatusRequest struct {
	Status string `json:"status" enum:"active,execution,finished"`
}

type CommitmentRequest struct {
	ProjectID int64 `json:"project_id"`
	TaskID    int64 `json:"task_id"`
	OngID     int64 `json:"ong_id"`
}

type SendObservationRequest struct {
	Content     string `json:"content"`
	ProjectID   int64  `json:"project_id,omitempty"`
	ProjectName string `json:"project_name,omitempty"`
	OngID       int64  `json:"ong_id,omitempty"`
}

type AcceptObservationRequest struct {
	ObservationID int64 `json:"observation_id"`
}

type CreateOrgRequest struct {
	Name            string `json:"name"`
	CloudRegistered bool   `json:"cloud_registered,omitempty"`
}

// Response payloads

type LoginResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	CloudAccessToken string `json:"cloud_access_token,omitempty"`
	CloudError       string `json:"cloud_error,omitempty"`
}

type NameExistsResponse struct {
	Exists bool `json:"exists"`
}

type SelectionResponse struct {
	Message    string            `json:"message"`
	Commitment domain.Commitment `json:"commitment"`
}

type ObservationResponse struct {
	Message     string             `json:"message"`
	Observation domain.Observation `json:"observation"`
}

func projectInput(req CreateProjectRequest) engine.ProjectInput {
	in := engine.ProjectInput{
		Name:        req.Name,
		Description: req.Description,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		OwnerID:     req.OwnerID,
	}
	for _, t := range req.Tasks {
		in.Tasks = append(in.Tasks, engine.TaskInput{
			Title:            t.Title,
			Necessity:        t.Necessity,
			Quantity:         t.Quantity,
			StartDate:        t.StartDate,
			EndDate:          t.EndDate,
			ResolvesByItself: t.ResolvesByItself,
		})
	}
	return in
}

func commitmentInput(req CommitmentRequest) engine.CommitmentInput {
	return engine.CommitmentInput{ProjectID: req.ProjectID, TaskID: req.TaskID, OngID: req.OngID}
}

type membershipPath struct {
	UserID int64 `path:"user_id"`
	OngID  int64 `path:"ong_id"`
}
