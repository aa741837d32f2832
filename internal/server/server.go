package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"reflect"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"collabhub/internal/domain"
	"collabhub/internal/engine"
	"collabhub/internal/metrics"
	"collabhub/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *zap.Logger
}

// apiError is the error envelope. Detail is the user-facing message.
type apiError struct {
	status int
	Detail string            `json:"detail" example:"task 7 already resolved"`
	Code   string            `json:"code" example:"already_resolved"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Detail }

// New returns an HTTP handler exposing the collabhub API.
func New(cfg Config) (http.Handler, error) {
	basePath := strings.TrimRight(cfg.BasePath, "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, fieldsFromErrors(errs))
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, fieldsFromErrors(errs))
	}

	router := chi.NewRouter()
	router.Use(requestLogger(cfg.Logger))
	router.Use(middleware.Recoverer)
	router.Use(newAuthMiddleware(cfg.Auth))

	hcfg := huma.DefaultConfig("Collabhub API", "1.0.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	var group huma.API = api
	if basePath != "" {
		group = huma.NewGroup(api, basePath)
	}

	router.Post(path.Join("/", basePath, "auth/login"), loginHandler(cfg.Engine, cfg.Auth))
	registerDocs(router, basePath)
	registerHealth(group)
	registerUsers(group, cfg.Engine)
	registerOngs(group, cfg.Engine)
	registerProjects(group, cfg.Engine)
	registerCollaboration(group, cfg.Engine)
	registerObservations(group, cfg.Engine)
	registerStats(group, cfg.Engine, cfg.Logger)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, fields map[string]string) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{status: status, Detail: message, Code: code, Fields: fields}
}

func fieldsFromErrors(errs []error) map[string]string {
	if len(errs) == 0 {
		return nil
	}
	fields := map[string]string{}
	for _, err := range errs {
		var detail *huma.ErrorDetail
		if errors.As(err, &detail) {
			fields[strings.TrimPrefix(detail.Location, "body.")] = detail.Message
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func handleError(ctx context.Context, err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var (
		validation engine.ValidationError
		duplicate  engine.DuplicateError
		conflict   engine.ConflictError
		resolved   engine.AlreadyResolvedError
		denied     engine.NotAuthorizedError
	)
	switch {
	case errors.As(err, &validation):
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), validation.Fields)
	case errors.As(err, &duplicate):
		return newAPIError(http.StatusConflict, "duplicate", err.Error(), nil)
	case errors.As(err, &resolved):
		return newAPIError(http.StatusConflict, "already_resolved", err.Error(), nil)
	case errors.As(err, &conflict):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	case errors.As(err, &denied):
		return newAPIError(http.StatusForbidden, "not_authorized", err.Error(), nil)
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, repo.ErrDuplicate):
		return newAPIError(http.StatusConflict, "ambiguous", "more than one match, narrow the query", nil)
	default:
		loggerFromContext(ctx).Error("unhandled error", zap.Error(err))
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "not_authorized"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get(path.Join("/", basePath, "docs"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once    sync.Once
		spec    []byte
		specErr error
	)
	r.Get(path.Join("/", basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, specErr = json.Marshal(oas)
		})
		if specErr != nil {
			http.Error(w, "openapi unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil || oas.Components == nil || oas.Components.Schemas == nil {
		return
	}
	errSchema := oas.Components.Schemas.Schema(reflect.TypeOf(apiError{}), true, "ApiError")
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {Schema: errSchema},
				},
			}
		}
	}
}

// publicOperations are reachable without a token.
var publicOperations = map[string]bool{
	"health":        true,
	"register-user": true,
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["localBearer"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
		Description:  "Token from /auth/login.",
	}
	oas.Components.SecuritySchemes["cloudBearer"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
		Description:  "cloud_access_token from /auth/login with cloud=true.",
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			switch {
			case publicOperations[op.OperationID]:
				op.Security = []map[string][]string{}
			case hasTag(op.Tags, TierCloud):
				op.Security = []map[string][]string{{"cloudBearer": {}}}
			default:
				op.Security = []map[string][]string{{"localBearer": {}}}
			}
		}
	}
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", basePath, "openapi.json")
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Collabhub API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;. Collaboration endpoints need the cloud token.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "register-user",
		Method:        http.MethodPost,
		Path:          "/users/register",
		Summary:       "Register user",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body RegisterUserRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		u, err := e.RegisterUser(ctx, engine.RegisterInput{
			Username:  input.Body.Username,
			Email:     input.Body.Email,
			Password:  input.Body.Password,
			IsManager: input.Body.IsManager,
			OrgIDs:    input.Body.OngIDs,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/users/me",
		Summary:     "Current user",
		Tags:        []string{TierLocal},
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		u, authErr := currentUser(ctx, e, TierLocal)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users/",
		Summary:     "List users (managers only)",
		Tags:        []string{TierLocal},
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.User `json:"body"`
	}, error) {
		u, authErr := currentUser(ctx, e, TierLocal)
		if authErr != nil {
			return nil, authErr
		}
		users, err := e.ListUsers(ctx, &u)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body []domain.User `json:"body"`
		}{Body: users}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-user",
		Method:        http.MethodDelete,
		Path:          "/users/{user_id}",
		Summary:       "Delete user (managers only)",
		Tags:          []string{TierLocal},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		UserID int64 `path:"user_id"`
	}) (*struct{}, error) {
		u, authErr := currentUser(ctx, e, TierLocal)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteUser(ctx, input.UserID, &u); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-user-ongs",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/ongs",
		Summary:     "Organizations of a user",
		Tags:        []string{TierLocal},
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UserID int64 `path:"user_id"`
	}) (*struct {
		Body []domain.Organization `json:"body"`
	}, error) {
		if _, authErr := currentUser(ctx, e, TierLocal); authErr != nil {
			return nil, authErr
		}
		target, err := e.Repo.GetUser(ctx, input.UserID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body []domain.Organization `json:"body"`
		}{Body: target.Orgs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-user-ong",
		Method:        http.MethodPost,
		Path:          "/users/{user_id}/ongs/{ong_id}",
		Summary:       "Add user to organization (managers only)",
		Tags:          []string{TierLocal},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *membershipPath) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		u, authErr := currentUser(ctx, e, TierLocal)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.AddMember(ctx, input.UserID, input.OngID, &u); err != nil {
			return nil, handleError(ctx, err)
		}
		target, err := e.Repo.GetUser(ctx, input.UserID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: target}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-user-ong",
		Method:        http.MethodDelete,
		Path:          "/users/{user_id}/ongs/{ong_id}",
		Summary:       "Remove user from organization (managers only)",
		Tags:          []string{TierLocal},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *membershipPath) (*struct{}, error) {
		u, authErr := currentUser(ctx, e, TierLocal)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveMember(ctx, input.UserID, input.OngID, &u); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}

func registerOngs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-ongs",
		Method:      http.MethodGet,
		Path:        "/ongs/",
		Summary:     "List organizations",
		Tags:        []string{TierLocal},
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Organization `json:"body"`
	}, error) {
		if _, authErr := currentUser(ctx, e, TierLocal); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListOrgs(ctx)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body []domain.Organization `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-ong",
		Method:        http.MethodPost,
		Path:          "/ongs/",
		Summary:       "Create organization (managers only)",
		Tags:          []string{TierLocal},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateOrgRequest `json:"body"`
	}) (*struct {
		Body domain.Organization `json:"body"`
	}, error) {
		u, authErr := currentUser(ctx, e, TierLocal)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.CreateOrg(ctx, input.Body.Name, input.Body.CloudRegistered, &u)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Organization `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "ong-emails",
		Method:      http.MethodGet,
		Path:        "/ongs/{ong_id}/emails",
		Summary:     "Member emails of an organization",
		Tags:        []string{TierLocal},
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OngID int64 `path:"ong_id"`
	}) (*struct {
		Body []string `json:"body"`
	}, error) {
		u, authErr := currentUser(ctx, e, TierLocal)
		if authErr != nil {
			return nil, authErr
		}
		emails, err := e.MemberEmails(ctx, input.OngID, u)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body []string `json:"body"`
		}{Body: emails}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects/create",
		Summary:       "Create project with its tasks",
		Tags:          []string{TierLocal},
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		u, authErr := currentUser(ctx, e, TierLocal)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProject(ctx, projectInput(input.Body), u)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-name-exists",
		Method:      http.MethodGet,
		Path:        "/projects/name_exists",
		Summary:     "Check whether a project name is taken",
		Tags:        []string{TierLocal},
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Name    string `query:"name" required:"true"`
		OwnerID int64  `query:"owner_id"`
	}) (*struct {
		Body NameExistsResponse `json:"body"`
	}, error) {
		u, authErr := currentUser(ctx, e, TierLocal)
		if authErr != nil {
			return nil, authErr
		}
		owners := u.OrgIDs()
		if input.OwnerID != 0 {
			owners = []int64{input.OwnerID}
		}
		exists := false
		for _, owner := range owners {
			ok, err := e.Repo.ProjectNameExists(ctx, owner, input.Name)
			if err != nil {
				return nil, handleError(ctx, err)
			}
			exists = exists || ok
		}
		return &struct {
			Body NameExistsResponse `json:"body"`
		}{Body: NameExistsResponse{Exists: exists}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-by-name",
		Method:      http.MethodGet,
		Path:        "/projects/by_name",
		Summary:     "Find project by name",
		Tags:        []string{TierLocal},
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Name    string `query:"name" required:"true"`
		OwnerID int64  `query:"owner_id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if _, authErr := currentUser(ctx, e, TierLocal); authErr != nil {
			return nil, authErr
		}
		p, err := e.Repo.FindProjectByName(ctx, strings.TrimSpace(input.Name), input.OwnerID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "my-projects",
		Method:      http.MethodGet,
		Path:        "/projects/my_projects",
		Summary:     "Projects owned by the caller's organizations",
		Tags:        []string{TierLocal},
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		u, authErr := currentUser(ctx, e, TierLocal)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.MyProjects(ctx, u)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{id}",
		Summary:     "Get project",
		Tags:        []string{TierLocal},
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if _, authErr := currentUser(ctx, e, TierLocal); authErr != nil {
			return nil, authErr
		}
		p, err := e.Repo.GetProject(ctx, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "advance-project",
		Method:      http.MethodPost,
		Path:        "/projects/{id}/status",
		Summary:     "Advance project status",
		Tags:        []string{TierLocal},
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   int64                `path:"id"`
		Body AdvanceStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		u, authErr := currentUser(ctx, e, TierLocal)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.AdvanceProjectStatus(ctx, input.ID, input.Body.Status, u)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-project",
		Method:        http.MethodDelete,
		Path:          "/projects/{id}",
		Summary:       "Delete an active project without commitments",
		Tags:          []string{TierLocal},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct{}, error) {
		u, authErr := currentUser(ctx, e, TierLocal)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteProject(ctx, input.ID, u); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}

func registerCollaboration(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "collaboration-projects",
		Method:      http.MethodGet,
		Path:        "/api/projects/get_projects_not_owned_by_and_active",
		Summary:     "Active projects of other organizations with open tasks",
		Tags:        []string{TierCloud},
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		u, authErr := currentUser(ctx, e, TierCloud)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.CollaborationCandidates(ctx, u)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "task-compromise",
		Method:        http.MethodPost,
		Path:          "/tasks/task_compromise",
		Summary:       "Commit an organization to a task",
		Tags:          []string{TierCloud},
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body CommitmentRequest `json:"body"`
	}) (*struct {
		Body domain.Commitment `json:"body"`
	}, error) {
		u, authErr := currentUser(ctx, e, TierCloud)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.Commit(ctx, commitmentInput(input.Body), u)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Commitment `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "select-ong-for-task",
		Method:      http.MethodPost,
		Path:        "/tasks/select_ong_for_task",
		Summary:     "Select the organization that performs a task",
		Tags:        []string{TierCloud},
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body CommitmentRequest `json:"body"`
	}) (*struct {
		Body SelectionResponse `json:"body"`
	}, error) {
		u, authErr := currentUser(ctx, e, TierCloud)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.Select(ctx, commitmentInput(input.Body), u)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body SelectionResponse `json:"body"`
		}{Body: SelectionResponse{Message: "organization selected", Commitment: c}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-compromises",
		Method:      http.MethodGet,
		Path:        "/tasks/compromises",
		Summary:     "List commitments",
		Tags:        []string{TierCloud},
		Errors:      []int{http.StatusUnauthorized, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		TaskID    int64  `query:"task_id"`
		ProjectID int64  `query:"project_id"`
		OngID     int64  `query:"ong_id"`
		Status    string `query:"status"`
	}) (*struct {
		Body []domain.Commitment `json:"body"`
	}, error) {
		if _, authErr := currentUser(ctx, e, TierCloud); authErr != nil {
			return nil, authErr
		}
		items, err := e.ViewCompromises(ctx, engine.CommitmentFilter{
			TaskID:    input.TaskID,
			ProjectID: input.ProjectID,
			OngID:     input.OngID,
			Status:    input.Status,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body []domain.Commitment `json:"body"`
		}{Body: items}, nil
	})
}

func registerObservations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "send-observation",
		Method:        http.MethodPost,
		Path:          "/observations/send_observation",
		Summary:       "Attach an observation to a project in execution",
		Tags:          []string{TierCloud},
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body SendObservationRequest `json:"body"`
	}) (*struct {
		Body ObservationResponse `json:"body"`
	}, error) {
		u, authErr := currentUser(ctx, e, TierCloud)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.SendObservation(ctx, engine.ObservationInput{
			Content:     input.Body.Content,
			ProjectID:   input.Body.ProjectID,
			ProjectName: input.Body.ProjectName,
			OngID:       input.Body.OngID,
		}, u)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body ObservationResponse `json:"body"`
		}{Body: ObservationResponse{Message: "observation saved", Observation: o}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-observation",
		Method:      http.MethodPost,
		Path:        "/observations/accept_observation",
		Summary:     "Accept an observation",
		Tags:        []string{TierCloud},
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body AcceptObservationRequest `json:"body"`
	}) (*struct {
		Body ObservationResponse `json:"body"`
	}, error) {
		u, authErr := currentUser(ctx, e, TierCloud)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.AcceptObservation(ctx, input.Body.ObservationID, u)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body ObservationResponse `json:"body"`
		}{Body: ObservationResponse{Message: "observation accepted", Observation: o}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "my-observations-ong",
		Method:      http.MethodGet,
		Path:        "/observations/my_observations_ong",
		Summary:     "Observations on projects owned by the caller's organizations",
		Tags:        []string{TierCloud},
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Observation `json:"body"`
	}, error) {
		u, authErr := currentUser(ctx, e, TierCloud)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ObservationsForOwner(ctx, u)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body []domain.Observation `json:"body"`
		}{Body: items}, nil
	})
}

func registerStats(api huma.API, e engine.Engine, logger *zap.Logger) {
	agg := metrics.Aggregator{Repo: e.Repo, Logger: logger}
	if e.Config != nil {
		agg.TopN = e.Config.Metrics.TopN
	}
	huma.Register(api, huma.Operation{
		OperationID: "dashboard-kpis",
		Method:      http.MethodGet,
		Path:        "/stats/dashboard-kpis",
		Summary:     "Dashboard indicators",
		Tags:        []string{TierLocal},
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body metrics.Dashboard `json:"body"`
	}, error) {
		if _, authErr := currentUser(ctx, e, TierLocal); authErr != nil {
			return nil, authErr
		}
		d, err := agg.Dashboard(ctx)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		if d.TopOngs == nil {
			d.TopOngs = []metrics.Activity{}
		}
		return &struct {
			Body metrics.Dashboard `json:"body"`
		}{Body: d}, nil
	})
}
