// Package client is the session agent used by front ends and tools that talk
// to the auth API. It keeps the access token in memory, carries the refresh
// cookie in a cookie jar and silently refreshes once when a protected call is
// rejected with 401.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/Mukulsharnagat01/Collegedunia/pkg/errors"
	"github.com/Mukulsharnagat01/Collegedunia/pkg/httpclient"
)

const serviceName = "auth-api"

// Config holds agent configuration.
type Config struct {
	// BaseURL is the API root including the version prefix,
	// e.g. "https://api.college.example/api/v1".
	BaseURL string

	HTTP httpclient.Config

	// CircuitBreaker wraps the transport when set.
	CircuitBreaker *httpclient.CircuitBreakerConfig

	// Profiles persists the profile snapshot. Defaults to memory.
	Profiles ProfileStore

	// OnLogout runs after the session has been torn down, either by an
	// explicit Logout or by a failed refresh.
	OnLogout func()

	Logger *slog.Logger
}

// Agent manages one user session against the auth API.
type Agent struct {
	baseURL  string
	doer     httpclient.Doer
	profiles ProfileStore
	onLogout func()
	logger   *slog.Logger

	mu          sync.RWMutex
	accessToken string

	refreshes singleflight.Group
}

// New creates an agent with its own cookie jar.
func New(cfg Config) (*Agent, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("client: base URL is required")
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpCfg := cfg.HTTP
	if httpCfg.Timeout == 0 {
		httpCfg = httpclient.DefaultConfig()
	}
	httpCfg.Jar = jar

	var doer httpclient.Doer = httpclient.New(httpCfg)
	if cfg.CircuitBreaker != nil {
		doer = httpclient.NewCircuitBreakerClient(doer, *cfg.CircuitBreaker, logger)
	}

	profiles := cfg.Profiles
	if profiles == nil {
		profiles = NewMemoryProfileStore()
	}

	return &Agent{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		doer:     doer,
		profiles: profiles,
		onLogout: cfg.OnLogout,
		logger:   logger,
	}, nil
}

// --- Wire types ---

// SignupRequest is the body of POST /auth/signup.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
	Phone    string `json:"phone,omitempty"`
	City     string `json:"city,omitempty"`
	Course   string `json:"course,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	User        *Profile `json:"user"`
	AccessToken string   `json:"accessToken"`
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
}

// --- Session operations ---

// Login authenticates with email and password and stores the session.
func (a *Agent) Login(ctx context.Context, email, password string) (*Profile, error) {
	return a.authenticate(ctx, "/auth/login", loginRequest{Email: email, Password: password})
}

// Signup creates an account and stores the resulting session.
func (a *Agent) Signup(ctx context.Context, req SignupRequest) (*Profile, error) {
	return a.authenticate(ctx, "/auth/signup", req)
}

func (a *Agent) authenticate(ctx context.Context, path string, body any) (*Profile, error) {
	req, err := a.newJSONRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}

	resp, err := a.doer.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	if resp.StatusCode >= 300 {
		return nil, httpclient.ParseResponseError(resp, serviceName)
	}

	var out authResponse
	if err := decodeData(resp, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" || out.User == nil {
		return nil, fmt.Errorf("post %s: response missing session", path)
	}

	a.setToken(out.AccessToken)
	a.saveProfile(out.User)
	return out.User, nil
}

// Me fetches the current user's profile and refreshes the stored snapshot.
func (a *Agent) Me(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := a.CallProtected(ctx, http.MethodGet, "/auth/me", nil, &p); err != nil {
		return nil, err
	}
	a.saveProfile(&p)
	return &p, nil
}

// Logout ends the session. The server call is best-effort; local state is
// always cleared and the OnLogout hook always runs.
func (a *Agent) Logout(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/auth/logout", http.NoBody)
	if err == nil {
		resp, err := a.doer.Do(ctx, req)
		if err != nil {
			a.logger.WarnContext(ctx, "server logout failed", slog.String("error", err.Error()))
		} else {
			drain(resp)
		}
	}

	a.setToken("")
	if err := a.profiles.Clear(); err != nil {
		a.logger.WarnContext(ctx, "failed to clear profile snapshot", slog.String("error", err.Error()))
	}
	if a.onLogout != nil {
		a.onLogout()
	}
}

// Profile returns the stored profile snapshot, or nil when signed out.
func (a *Agent) Profile() (*Profile, error) {
	return a.profiles.Load()
}

// AccessToken returns the in-memory access token.
func (a *Agent) AccessToken() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.accessToken
}

func (a *Agent) setToken(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accessToken = token
}

func (a *Agent) saveProfile(p *Profile) {
	if err := a.profiles.Save(p); err != nil {
		a.logger.Warn("failed to store profile snapshot", slog.String("error", err.Error()))
	}
}

// --- Protected calls ---

// CallProtected sends a JSON request through Do and decodes the data envelope
// into out. Non-2xx responses are returned as *apperrors.AppError.
func (a *Agent) CallProtected(ctx context.Context, method, path string, body, out any) error {
	req, err := a.newJSONRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := a.Do(ctx, req)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return httpclient.ParseResponseError(resp, serviceName)
	}
	if out == nil {
		drain(resp)
		return nil
	}
	return decodeData(resp, out)
}

// Do sends req with the bearer access token. On the first 401 it refreshes
// the access token and replays req once. A replay answered with 401 is
// returned as is. If the refresh fails the session is logged out and the
// original 401 is returned as an error.
func (a *Agent) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := bufferBody(req); err != nil {
		return nil, err
	}

	sent := a.AccessToken()
	resp, err := a.send(ctx, req, sent)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	original := httpclient.ParseResponseError(resp, serviceName)

	// Another request may already have refreshed while this one was in flight.
	token := a.AccessToken()
	if token == "" || token == sent {
		token, err = a.refresh(ctx)
		if err != nil {
			a.logger.InfoContext(ctx, "session refresh failed", slog.String("error", err.Error()))
			return nil, original
		}
	}

	return a.send(ctx, req, token)
}

func (a *Agent) send(ctx context.Context, req *http.Request, token string) (*http.Response, error) {
	attempt := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewind request body: %w", err)
		}
		attempt.Body = body
	}
	if token != "" {
		attempt.Header.Set("Authorization", "Bearer "+token)
	} else {
		attempt.Header.Del("Authorization")
	}
	return a.doer.Do(ctx, attempt)
}

// refresh exchanges the refresh cookie for a new access token. Concurrent
// callers share one in-flight call. A failed refresh logs the session out
// exactly once.
func (a *Agent) refresh(ctx context.Context) (string, error) {
	ch := a.refreshes.DoChan("refresh", func() (any, error) {
		// The shared call must not die with whichever caller started it.
		rctx := context.WithoutCancel(ctx)
		token, err := a.redeemRefreshCookie(rctx)
		if err != nil {
			a.Logout(rctx)
			return "", err
		}
		a.setToken(token)
		return token, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (a *Agent) redeemRefreshCookie(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/auth/refresh", http.NoBody)
	if err != nil {
		return "", fmt.Errorf("create refresh request: %w", err)
	}

	resp, err := a.doer.Do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("refresh: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", httpclient.ParseResponseError(resp, serviceName)
	}

	var out refreshResponse
	if err := decodeData(resp, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", apperrors.Unauthenticated("refresh returned no access token")
	}
	return out.AccessToken, nil
}

// --- Helpers ---

func (a *Agent) newJSONRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// bufferBody makes req replayable by loading its body into memory.
func bufferBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	raw, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(raw)), nil
	}
	req.Body, _ = req.GetBody()
	return nil
}

func decodeData(resp *http.Response, out any) error {
	defer drain(resp)
	envelope := struct {
		Data any `json:"data"`
	}{Data: out}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode %s response: %w", serviceName, err)
	}
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
