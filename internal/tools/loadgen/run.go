package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL     string
	Profile     string
	Duration    time.Duration
	RPS         int
	Concurrency int
	Users       int
	Seed        uint64
	Client      *http.Client
}

type Result struct {
	TotalRequests int64
	Failures      int64
	StatusClasses map[string]int64
	Elapsed       time.Duration
}

const loadgenPassword = "L0adgen!Pass"

type session struct {
	access  string
	refresh string
}

type runner struct {
	cfg    Config
	client *http.Client

	mu       sync.Mutex
	sessions []session
	classes  map[string]int64
	total    atomic.Int64
	failures atomic.Int64
}

// Run drives authd with a paced request mix. It registers and logs in a small
// user pool first, then issues requests until Duration elapses.
func Run(ctx context.Context, cfg Config) (Result, error) {
	cfg = normalizeConfig(cfg)
	r := &runner{cfg: cfg, client: cfg.Client, classes: make(map[string]int64)}

	if err := r.prepareUsers(ctx); err != nil {
		return Result{}, err
	}

	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	ticker := time.NewTicker(time.Second / time.Duration(cfg.RPS))
	defer ticker.Stop()

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(cfg.Concurrency)
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

loop:
	for {
		select {
		case <-gctx.Done():
			break loop
		case <-ticker.C:
			op := pickOperation(cfg.Profile, rng.IntN(100))
			idx := rng.IntN(len(r.sessions))
			g.Go(func() error {
				r.do(gctx, op, idx)
				return nil
			})
		}
	}
	_ = g.Wait()

	r.mu.Lock()
	classes := make(map[string]int64, len(r.classes))
	for k, v := range r.classes {
		classes[k] = v
	}
	r.mu.Unlock()
	return Result{
		TotalRequests: r.total.Load(),
		Failures:      r.failures.Load(),
		StatusClasses: classes,
		Elapsed:       time.Since(start),
	}, nil
}

func normalizeConfig(cfg Config) Config {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.Profile = normalizeProfile(cfg.Profile)
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Users <= 0 {
		cfg.Users = 3
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Second}
	}
	return cfg
}

func normalizeProfile(p string) string {
	switch p = strings.ToLower(strings.TrimSpace(p)); p {
	case "auth", "read", "mixed":
		return p
	default:
		return "mixed"
	}
}

func classifyStatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	default:
		return "other"
	}
}

type operation string

const (
	opLogin       operation = "login"
	opRefresh     operation = "refresh"
	opMe          operation = "me"
	opPermissions operation = "permissions"
	opJWKS        operation = "jwks"
)

// pickOperation maps a roll in [0,100) to an operation for the profile.
func pickOperation(profile string, roll int) operation {
	switch profile {
	case "auth":
		if roll < 60 {
			return opLogin
		}
		return opRefresh
	case "read":
		switch {
		case roll < 50:
			return opMe
		case roll < 85:
			return opPermissions
		default:
			return opJWKS
		}
	default:
		switch {
		case roll < 20:
			return opLogin
		case roll < 35:
			return opRefresh
		case roll < 65:
			return opMe
		case roll < 90:
			return opPermissions
		default:
			return opJWKS
		}
	}
}

func (r *runner) userEmail(i int) string {
	return fmt.Sprintf("loadgen-%d-%d@example.com", r.cfg.Seed, i)
}

func (r *runner) prepareUsers(ctx context.Context) error {
	r.sessions = make([]session, r.cfg.Users)
	for i := range r.cfg.Users {
		email := r.userEmail(i)
		status, _, err := r.post(ctx, "/api/v1/auth/register", "", map[string]string{"email": email, "password": loadgenPassword})
		if err != nil {
			return fmt.Errorf("register %s: %w", email, err)
		}
		if status != http.StatusCreated && status != http.StatusConflict {
			return fmt.Errorf("register %s: unexpected status %d", email, status)
		}
		s, err := r.login(ctx, i)
		if err != nil {
			return err
		}
		r.sessions[i] = s
	}
	return nil
}

func (r *runner) login(ctx context.Context, i int) (session, error) {
	status, body, err := r.post(ctx, "/api/v1/auth/login", "", map[string]string{"email": r.userEmail(i), "password": loadgenPassword})
	if err != nil {
		return session{}, err
	}
	if status != http.StatusOK {
		return session{}, fmt.Errorf("login: unexpected status %d", status)
	}
	return decodeTokens(body)
}

func decodeTokens(body []byte) (session, error) {
	var env struct {
		Data struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return session{}, fmt.Errorf("decode tokens: %w", err)
	}
	return session{access: env.Data.AccessToken, refresh: env.Data.RefreshToken}, nil
}

func (r *runner) do(ctx context.Context, op operation, idx int) {
	r.mu.Lock()
	s := r.sessions[idx]
	r.mu.Unlock()

	var (
		status int
		body   []byte
		err    error
	)
	switch op {
	case opLogin:
		status, body, err = r.post(ctx, "/api/v1/auth/login", "", map[string]string{"email": r.userEmail(idx), "password": loadgenPassword})
	case opRefresh:
		status, body, err = r.post(ctx, "/api/v1/auth/refresh", "", map[string]string{"refresh_token": s.refresh})
	case opMe:
		status, _, err = r.get(ctx, "/api/v1/me", s.access)
	case opPermissions:
		status, _, err = r.get(ctx, "/api/v1/me/permissions", s.access)
	case opJWKS:
		status, _, err = r.get(ctx, "/.well-known/jwks.json", "")
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.total.Add(1)
		r.failures.Add(1)
		r.count("other")
		return
	}
	r.total.Add(1)
	r.count(classifyStatusClass(status))
	if status >= 500 {
		r.failures.Add(1)
	}
	if (op == opLogin || op == opRefresh) && status == http.StatusOK {
		if next, err := decodeTokens(body); err == nil && next.access != "" {
			r.mu.Lock()
			if next.refresh == "" {
				next.refresh = r.sessions[idx].refresh
			}
			r.sessions[idx] = next
			r.mu.Unlock()
		}
	}
}

func (r *runner) count(class string) {
	r.mu.Lock()
	r.classes[class]++
	r.mu.Unlock()
}

func (r *runner) post(ctx context.Context, path, token string, payload any) (int, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	return r.send(ctx, http.MethodPost, path, token, bytes.NewReader(raw))
}

func (r *runner) get(ctx context.Context, path, token string) (int, []byte, error) {
	return r.send(ctx, http.MethodGet, path, token, nil)
}

func (r *runner) send(ctx context.Context, method, path, token string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, data, nil
}
