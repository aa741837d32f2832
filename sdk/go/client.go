// Package collabsdk is the Go client for the collabhub HTTP API.
package collabsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

type tier int

const (
	tierNone tier = iota
	tierLocal
	tierCloud
)

// Client talks to a local and a cloud deployment. Each call picks the
// deployment and token its endpoint belongs to.
type Client struct {
	LocalURL   string
	CloudURL   string
	Session    *Session
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults. An empty cloudURL sends cloud
// calls to localURL.
func New(localURL, cloudURL string) *Client {
	return &Client{
		LocalURL: localURL,
		CloudURL: cloudURL,
		Session:  &Session{},
		Timeout:  10 * time.Second,
	}
}

// Login authenticates against the local API and stores the returned tokens in
// the session. With cloud set the server also tries the cloud tier; a cloud
// failure is reported in CloudError and leaves the session local-only.
func (c *Client) Login(ctx context.Context, username, password string, cloud bool) (LoginResponse, error) {
	resp, err := c.login(ctx, c.LocalURL, username, password, cloud)
	if err != nil {
		return resp, err
	}
	c.session().SetTokens(resp.AccessToken, resp.CloudAccessToken)
	return resp, nil
}

// LoginRemote authenticates against baseURL without touching the session.
func (c *Client) LoginRemote(ctx context.Context, baseURL, username, password string, cloud bool) (LoginResponse, error) {
	return c.login(ctx, baseURL, username, password, cloud)
}

func (c *Client) login(ctx context.Context, baseURL, username, password string, cloud bool) (LoginResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", username)
	form.Set("password", password)
	form.Set("cloud", strconv.FormatBool(cloud))
	var resp LoginResponse
	endpoint := strings.TrimRight(baseURL, "/") + "/auth/login"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return resp, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	err = c.send(req, &resp)
	return resp, err
}

func (c *Client) Logout() {
	c.session().Clear()
}

func (c *Client) Health(ctx context.Context) error {
	var resp map[string]string
	return c.do(ctx, tierNone, http.MethodGet, "health", nil, &resp)
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (User, error) {
	var resp User
	err := c.do(ctx, tierNone, http.MethodPost, "users/register", req, &resp)
	return resp, err
}

func (c *Client) Me(ctx context.Context) (User, error) {
	var resp User
	err := c.do(ctx, tierLocal, http.MethodGet, "users/me", nil, &resp)
	return resp, err
}

func (c *Client) Orgs(ctx context.Context) ([]Organization, error) {
	var resp List[Organization]
	err := c.do(ctx, tierLocal, http.MethodGet, "ongs/", nil, &resp)
	return resp, err
}

func (c *Client) CreateOrg(ctx context.Context, name string, cloudRegistered bool) (Organization, error) {
	var resp Organization
	body := map[string]any{"name": name, "cloud_registered": cloudRegistered}
	err := c.do(ctx, tierLocal, http.MethodPost, "ongs/", body, &resp)
	return resp, err
}

// Users lists the directory. Managers only.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	var resp List[User]
	err := c.do(ctx, tierLocal, http.MethodGet, "users/", nil, &resp)
	return resp, err
}

func (c *Client) DeleteUser(ctx context.Context, userID int64) error {
	return c.do(ctx, tierLocal, http.MethodDelete, fmt.Sprintf("users/%d", userID), nil, nil)
}

func (c *Client) UserOrgs(ctx context.Context, userID int64) ([]Organization, error) {
	var resp List[Organization]
	err := c.do(ctx, tierLocal, http.MethodGet, fmt.Sprintf("users/%d/ongs", userID), nil, &resp)
	return resp, err
}

// AddMember links a user to an organization and returns the updated user. Managers only.
func (c *Client) AddMember(ctx context.Context, userID, orgID int64) (User, error) {
	var resp User
	err := c.do(ctx, tierLocal, http.MethodPost, fmt.Sprintf("users/%d/ongs/%d", userID, orgID), nil, &resp)
	return resp, err
}

func (c *Client) RemoveMember(ctx context.Context, userID, orgID int64) error {
	return c.do(ctx, tierLocal, http.MethodDelete, fmt.Sprintf("users/%d/ongs/%d", userID, orgID), nil, nil)
}

func (c *Client) OrgEmails(ctx context.Context, orgID int64) ([]string, error) {
	var resp []string
	err := c.do(ctx, tierLocal, http.MethodGet, fmt.Sprintf("ongs/%d/emails", orgID), nil, &resp)
	return resp, err
}

func (c *Client) CreateProject(ctx context.Context, req CreateProjectRequest) (Project, error) {
	var resp Project
	err := c.do(ctx, tierLocal, http.MethodPost, "projects/create", req, &resp)
	return resp, err
}

func (c *Client) ProjectNameExists(ctx context.Context, name string, ownerID int64) (bool, error) {
	q := url.Values{"name": {name}}
	if ownerID != 0 {
		q.Set("owner_id", strconv.FormatInt(ownerID, 10))
	}
	var resp NameExists
	err := c.do(ctx, tierLocal, http.MethodGet, "projects/name_exists?"+q.Encode(), nil, &resp)
	return resp.Exists, err
}

// ProjectByName resolves a project name. ownerID zero searches every owner.
func (c *Client) ProjectByName(ctx context.Context, name string, ownerID int64) (Project, error) {
	q := url.Values{"name": {name}}
	if ownerID != 0 {
		q.Set("owner_id", strconv.FormatInt(ownerID, 10))
	}
	var resp Project
	err := c.do(ctx, tierLocal, http.MethodGet, "projects/by_name?"+q.Encode(), nil, &resp)
	return resp, err
}

func (c *Client) MyProjects(ctx context.Context) ([]Project, error) {
	var resp List[Project]
	err := c.do(ctx, tierLocal, http.MethodGet, "projects/my_projects", nil, &resp)
	return resp, err
}

func (c *Client) GetProject(ctx context.Context, id int64) (Project, error) {
	var resp Project
	err := c.do(ctx, tierLocal, http.MethodGet, fmt.Sprintf("projects/%d", id), nil, &resp)
	return resp, err
}

func (c *Client) AdvanceProject(ctx context.Context, id int64, status string) (Project, error) {
	var resp Project
	err := c.do(ctx, tierLocal, http.MethodPost, fmt.Sprintf("projects/%d/status", id), map[string]string{"status": status}, &resp)
	return resp, err
}

func (c *Client) DeleteProject(ctx context.Context, id int64) error {
	return c.do(ctx, tierLocal, http.MethodDelete, fmt.Sprintf("projects/%d", id), nil, nil)
}

// CollaborationProjects lists active projects of other organizations with their open tasks.
func (c *Client) CollaborationProjects(ctx context.Context) ([]Project, error) {
	var resp List[Project]
	err := c.do(ctx, tierCloud, http.MethodGet, "api/projects/get_projects_not_owned_by_and_active", nil, &resp)
	return resp, err
}

func (c *Client) Commit(ctx context.Context, projectID, taskID, ongID int64) (Commitment, error) {
	var resp Commitment
	body := map[string]int64{"project_id": projectID, "task_id": taskID, "ong_id": ongID}
	err := c.do(ctx, tierCloud, http.MethodPost, "tasks/task_compromise", body, &resp)
	return resp, err
}

func (c *Client) SelectOrg(ctx context.Context, projectID, taskID, ongID int64) (Selection, error) {
	var resp Selection
	body := map[string]int64{"project_id": projectID, "task_id": taskID, "ong_id": ongID}
	err := c.do(ctx, tierCloud, http.MethodPost, "tasks/select_ong_for_task", body, &resp)
	return resp, err
}

func (c *Client) Compromises(ctx context.Context, f CompromiseFilter) ([]Commitment, error) {
	q := url.Values{}
	for key, v := range map[string]int64{"task_id": f.TaskID, "project_id": f.ProjectID, "ong_id": f.OngID} {
		if v != 0 {
			q.Set(key, strconv.FormatInt(v, 10))
		}
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	endpoint := "tasks/compromises"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp List[Commitment]
	err := c.do(ctx, tierCloud, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) SendObservation(ctx context.Context, req SendObservationRequest) (ObservationResult, error) {
	var resp ObservationResult
	err := c.do(ctx, tierCloud, http.MethodPost, "observations/send_observation", req, &resp)
	return resp, err
}

func (c *Client) AcceptObservation(ctx context.Context, observationID int64) (ObservationResult, error) {
	var resp ObservationResult
	body := map[string]int64{"observation_id": observationID}
	err := c.do(ctx, tierCloud, http.MethodPost, "observations/accept_observation", body, &resp)
	return resp, err
}

// MyObservations lists observations on projects owned by the caller's organizations.
func (c *Client) MyObservations(ctx context.Context) ([]Observation, error) {
	var resp List[Observation]
	err := c.do(ctx, tierCloud, http.MethodGet, "observations/my_observations_ong", nil, &resp)
	return resp, err
}

func (c *Client) Dashboard(ctx context.Context) (Dashboard, error) {
	var resp Dashboard
	err := c.do(ctx, tierLocal, http.MethodGet, "stats/dashboard-kpis", nil, &resp)
	return resp, err
}

func (c *Client) session() *Session {
	if c.Session == nil {
		c.Session = &Session{}
	}
	return c.Session
}

func (c *Client) baseFor(t tier) string {
	if t == tierCloud && c.CloudURL != "" {
		return strings.TrimRight(c.CloudURL, "/")
	}
	return strings.TrimRight(c.LocalURL, "/")
}

func (c *Client) do(ctx context.Context, t tier, method, endpoint string, body any, out any) error {
	var token string
	if t != tierNone {
		token = c.session().token(t)
		if token == "" {
			return ErrNotAuthenticated
		}
	}
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseFor(t)+"/"+strings.TrimLeft(endpoint, "/"), &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = cleanhttp.DefaultPooledClient()
		c.HTTPClient.Timeout = c.Timeout
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &NetworkError{Method: req.Method, URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Method: req.Method, URL: req.URL.String(), Err: err}
	}
	if resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	typeName := fmt.Sprintf("%T", out)
	if err := json.Unmarshal(data, out); err != nil {
		return &SchemaError{Type: typeName, Err: err}
	}
	if v, ok := out.(validator); ok {
		if err := v.Validate(); err != nil {
			return &SchemaError{Type: typeName, Err: err}
		}
	}
	return nil
}

func decodeAPIError(status int, data []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var body struct {
		Detail any               `json:"detail"`
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		apiErr.Detail = strings.TrimSpace(string(data))
		return apiErr
	}
	apiErr.Code = body.Code
	apiErr.Fields = body.Fields
	switch d := body.Detail.(type) {
	case string:
		apiErr.Detail = d
	case nil:
		apiErr.Detail = http.StatusText(status)
	default:
		raw, _ := json.Marshal(d)
		apiErr.Detail = string(raw)
	}
	return apiErr
}
