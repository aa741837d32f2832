package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"collabhub/internal/domain"
	"collabhub/internal/engine"
	"collabhub/internal/repo"
	collabsdk "collabhub/sdk/go"
)

const (
	TierLocal = "local"
	TierCloud = "cloud"
)

type AuthConfig struct {
	LocalSecret string
	CloudSecret string
	TokenTTL    time.Duration
	// CloudBaseURL is the remote deployment that issues cloud tokens.
	// Empty means this server signs them itself.
	CloudBaseURL string
	CloudClient  *collabsdk.Client
	Now          func() time.Time
}

func (c AuthConfig) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c AuthConfig) ttl() time.Duration {
	if c.TokenTTL > 0 {
		return c.TokenTTL
	}
	return 30 * time.Minute
}

func (c AuthConfig) secret(tier string) string {
	if tier == TierCloud {
		return c.CloudSecret
	}
	return c.LocalSecret
}

type Principal struct {
	Username string
	Tier     string
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Tier string `json:"tier"`
}

// IssueToken signs a token for username on the given tier.
func IssueToken(cfg AuthConfig, username, tier string) (string, error) {
	secret := cfg.secret(tier)
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured for tier " + tier)
	}
	now := cfg.now()
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.ttl())),
		},
		Tier: tier,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// authenticateJWT accepts a token signed by either tier's secret and reports
// which tier it belongs to.
func authenticateJWT(cfg AuthConfig, token string) (Principal, error) {
	var lastErr error
	for _, tier := range []string{TierLocal, TierCloud} {
		secret := cfg.secret(tier)
		if strings.TrimSpace(secret) == "" {
			continue
		}
		parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(cfg.now))
		claims := &jwtClaims{}
		parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
			return []byte(secret), nil
		})
		if err != nil {
			lastErr = err
			continue
		}
		if !parsed.Valid || claims.Tier != tier {
			lastErr = errors.New("invalid token")
			continue
		}
		if claims.Subject == "" {
			return Principal{}, errors.New("subject claim required")
		}
		return Principal{Username: claims.Subject, Tier: tier}, nil
	}
	if lastErr == nil {
		lastErr = errors.New("jwt secret not configured")
	}
	return Principal{}, lastErr
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// newAuthMiddleware attaches the principal of a valid bearer token. Tier
// enforcement happens per operation.
func newAuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			if authz == "" {
				next.ServeHTTP(w, req)
				return
			}
			token, ok := bearerToken(authz)
			if !ok {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "could not validate credentials", nil))
				return
			}
			principal, err := authenticateJWT(cfg, token)
			if err != nil {
				loggerFromContext(req.Context()).Debug("token rejected", zap.Error(err))
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "could not validate credentials", nil))
				return
			}
			next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
		})
	}
}

// currentUser resolves the authenticated user for an operation on tier.
func currentUser(ctx context.Context, e engine.Engine, tier string) (domain.User, huma.StatusError) {
	p, ok := principalFromContext(ctx)
	if !ok {
		return domain.User{}, newAPIError(http.StatusUnauthorized, "unauthorized", "not authenticated", nil)
	}
	if p.Tier != tier {
		return domain.User{}, newAPIError(http.StatusUnauthorized, "wrong_token_tier", "a "+tier+" token is required", nil)
	}
	u, err := e.Repo.GetUserByUsername(ctx, p.Username)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, newAPIError(http.StatusUnauthorized, "unauthorized", "user no longer exists", nil)
	}
	if err != nil {
		return domain.User{}, handleError(ctx, err)
	}
	return u, nil
}

// loginHandler accepts the OAuth2 password form and returns the local token,
// plus a cloud token when cloud=true.
func loginHandler(e engine.Engine, cfg AuthConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "invalid form body", nil))
			return
		}
		username := strings.TrimSpace(r.PostForm.Get("username"))
		password := r.PostForm.Get("password")
		if username == "" || password == "" {
			respondStatusError(w, newAPIError(http.StatusUnprocessableEntity, "validation_failed", "username and password are required", nil))
			return
		}
		wantCloud, _ := strconv.ParseBool(r.PostForm.Get("cloud"))
		ctx := r.Context()
		log := loggerFromContext(ctx)

		u, err := e.Authenticate(ctx, username, password)
		if err != nil {
			var denied engine.NotAuthorizedError
			if errors.As(err, &denied) {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "incorrect username or password", nil))
				return
			}
			respondStatusError(w, handleError(ctx, err))
			return
		}
		local, err := IssueToken(cfg, u.Username, TierLocal)
		if err != nil {
			respondStatusError(w, handleError(ctx, err))
			return
		}
		resp := LoginResponse{AccessToken: local, TokenType: "bearer"}
		if wantCloud {
			cloud, err := cloudToken(ctx, cfg, u.Username, password)
			if err != nil {
				log.Warn("cloud login failed", zap.String("username", u.Username), zap.Error(err))
				resp.CloudError = err.Error()
			} else {
				resp.CloudAccessToken = cloud
			}
		}
		log.Info("login", zap.String("username", u.Username), zap.Bool("cloud", resp.CloudAccessToken != ""))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func cloudToken(ctx context.Context, cfg AuthConfig, username, password string) (string, error) {
	if cfg.CloudBaseURL == "" {
		return IssueToken(cfg, username, TierCloud)
	}
	client := cfg.CloudClient
	if client == nil {
		client = collabsdk.New(cfg.CloudBaseURL, "")
	}
	resp, err := client.LoginRemote(ctx, cfg.CloudBaseURL, username, password, true)
	if err != nil {
		var apiErr *collabsdk.APIError
		if errors.As(err, &apiErr) {
			return "", errors.New(apiErr.Detail)
		}
		return "", err
	}
	if resp.CloudAccessToken == "" {
		if resp.CloudError != "" {
			return "", errors.New(resp.CloudError)
		}
		return "", errors.New("cloud login returned no token")
	}
	return resp.CloudAccessToken, nil
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
