package obscheck

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/berry-13/vicsam-group-sub002/internal/tools/common"
	"github.com/berry-13/vicsam-group-sub002/internal/tools/loadgen"
	"github.com/berry-13/vicsam-group-sub002/internal/tools/ui"
)

type options struct {
	baseURL         string
	grafanaURL      string
	grafanaUser     string
	grafanaPassword string
	serviceName     string
	window          time.Duration
	ci              bool
	client          *http.Client
	settle          time.Duration
}

// ErrCheckFailed is returned after a failed check so the caller can pick an
// exit code.
var ErrCheckFailed = fmt.Errorf("obscheck failed")

func NewCommand() *cobra.Command {
	opts := &options{client: &http.Client{Timeout: 20 * time.Second}, settle: 8 * time.Second}
	cmd := &cobra.Command{Use: "obscheck", Short: "Verify a running authd and its telemetry"}
	cmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", "http://localhost:8080", "authd base URL")
	cmd.PersistentFlags().StringVar(&opts.grafanaURL, "grafana-url", "", "Grafana base URL; telemetry checks are skipped when empty")
	cmd.PersistentFlags().StringVar(&opts.grafanaUser, "grafana-user", "admin", "Grafana username")
	cmd.PersistentFlags().StringVar(&opts.grafanaPassword, "grafana-password", "admin", "Grafana password")
	cmd.PersistentFlags().StringVar(&opts.serviceName, "service-name", "authd", "OTel service name")
	cmd.PersistentFlags().DurationVar(&opts.window, "window", 20*time.Minute, "query lookback window")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.AddCommand(newRunCommand(opts))
	return cmd
}

func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Generate traffic, check readiness and JWKS, then trace correlation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			details, err := run(cmd.Context(), opts, "obscheck run", func(ctx context.Context) ([]string, error) {
				return check(ctx, opts)
			})
			if opts.ci {
				common.PrintCIResult(err == nil, "obscheck run", details, err)
			}
			if err != nil {
				return fmt.Errorf("%w: %v", ErrCheckFailed, err)
			}
			return nil
		},
	}
}

func run(ctx context.Context, opts *options, title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	if opts.ci {
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
		defer cancel()
		return fn(ctx)
	}
	return ui.Run(title, fn)
}

func check(ctx context.Context, opts *options) ([]string, error) {
	var details []string
	if err := checkReady(ctx, opts); err != nil {
		return details, err
	}
	details = append(details, "readiness: ok")

	kids, err := checkJWKS(ctx, opts)
	if err != nil {
		return details, err
	}
	details = append(details, fmt.Sprintf("jwks: %d key(s)", kids))

	notBefore := time.Now()
	res, err := loadgen.Run(ctx, loadgen.Config{
		BaseURL:     opts.baseURL,
		Profile:     "mixed",
		Duration:    6 * time.Second,
		RPS:         20,
		Concurrency: 6,
		Seed:        uint64(notBefore.Unix()),
		Client:      opts.client,
	})
	if err != nil {
		return details, err
	}
	details = append(details, fmt.Sprintf("traffic total=%d failures=%d", res.TotalRequests, res.Failures))
	if res.Failures > 0 {
		return details, fmt.Errorf("%d requests failed", res.Failures)
	}

	if opts.grafanaURL == "" {
		return append(details, "telemetry: skipped"), nil
	}
	if err := sleepCtx(ctx, opts.settle); err != nil {
		return details, err
	}
	traceID, err := fetchTraceIDFromExemplar(ctx, opts, notBefore.Add(-time.Minute))
	if err != nil {
		return details, err
	}
	details = append(details, "exemplar trace_id="+traceID)
	if err := verifyTempoTrace(ctx, opts, traceID); err != nil {
		return details, err
	}
	details = append(details, "tempo trace lookup: ok")
	if err := verifyLokiTraceLogs(ctx, opts, traceID); err != nil {
		return details, err
	}
	return append(details, "loki trace correlation: ok"), nil
}

func checkReady(ctx context.Context, opts *options) error {
	body, status, err := get(ctx, opts.client, strings.TrimRight(opts.baseURL, "/")+"/health/ready", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("service not ready: %d %s", status, strings.TrimSpace(string(body)))
	}
	return nil
}

func checkJWKS(ctx context.Context, opts *options) (int, error) {
	body, status, err := get(ctx, opts.client, strings.TrimRight(opts.baseURL, "/")+"/.well-known/jwks.json", nil)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("jwks: unexpected status %d", status)
	}
	var set struct {
		Keys []struct {
			Kid string `json:"kid"`
		} `json:"keys"`
	}
	if err := json.Unmarshal(body, &set); err != nil {
		return 0, fmt.Errorf("decode jwks: %w", err)
	}
	if len(set.Keys) == 0 {
		return 0, fmt.Errorf("jwks has no keys")
	}
	return len(set.Keys), nil
}

func get(ctx context.Context, client *http.Client, target string, auth func(*http.Request)) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, err
	}
	if auth != nil {
		auth(req)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	return body, resp.StatusCode, err
}

func grafanaGET(ctx context.Context, opts *options, path string) ([]byte, error) {
	base, err := url.Parse(opts.grafanaURL)
	if err != nil {
		return nil, err
	}
	rel, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	body, status, err := get(ctx, opts.client, base.ResolveReference(rel).String(), func(r *http.Request) {
		r.SetBasicAuth(opts.grafanaUser, opts.grafanaPassword)
	})
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("grafana request failed: %d", status)
	}
	return body, nil
}

type exemplarResponse struct {
	Data []struct {
		Exemplars []struct {
			Labels    map[string]string `json:"labels"`
			Timestamp float64           `json:"timestamp"`
		} `json:"exemplars"`
	} `json:"data"`
}

// fetchTraceIDFromExemplar returns the newest trace id attached to an HTTP
// server duration exemplar recorded after notBefore.
func fetchTraceIDFromExemplar(ctx context.Context, opts *options, notBefore time.Time) (string, error) {
	end := time.Now()
	q := url.Values{}
	q.Set("query", fmt.Sprintf(`http_server_request_duration_seconds_bucket{service_name=%q}`, opts.serviceName))
	q.Set("start", fmt.Sprint(end.Add(-opts.window).Unix()))
	q.Set("end", fmt.Sprint(end.Unix()))
	body, err := grafanaGET(ctx, opts, "/api/datasources/proxy/uid/mimir/api/v1/query_exemplars?"+q.Encode())
	if err != nil {
		return "", err
	}
	var payload exemplarResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", err
	}
	var best string
	var bestTS float64
	for _, series := range payload.Data {
		for _, e := range series.Exemplars {
			if e.Timestamp < float64(notBefore.Unix()) {
				continue
			}
			if tid := e.Labels["trace_id"]; len(tid) == 32 && e.Timestamp > bestTS {
				best, bestTS = tid, e.Timestamp
			}
		}
	}
	if best == "" {
		return "", fmt.Errorf("no recent trace_id exemplar found")
	}
	return best, nil
}

func verifyTempoTrace(ctx context.Context, opts *options, traceID string) error {
	var lastErr error
	for range 5 {
		body, err := grafanaGET(ctx, opts, "/api/datasources/proxy/uid/tempo/api/traces/"+traceID)
		if err == nil {
			var payload struct {
				Batches []json.RawMessage `json:"batches"`
			}
			if err := json.Unmarshal(body, &payload); err != nil {
				return err
			}
			if len(payload.Batches) > 0 {
				return nil
			}
			err = fmt.Errorf("tempo trace has no batches yet")
		}
		lastErr = err
		if err := sleepCtx(ctx, 2*time.Second); err != nil {
			return err
		}
	}
	return lastErr
}

func verifyLokiTraceLogs(ctx context.Context, opts *options, traceID string) error {
	end := time.Now()
	queries := []string{
		fmt.Sprintf(`{service_name=%q} | json | trace_id=%q`, opts.serviceName, traceID),
		fmt.Sprintf(`{service_name=~".+"} | json | trace_id=%q`, traceID),
	}
	for _, raw := range queries {
		q := url.Values{}
		q.Set("query", raw)
		q.Set("start", fmt.Sprint(end.Add(-30*time.Minute).UnixNano()))
		q.Set("end", fmt.Sprint(end.UnixNano()))
		q.Set("limit", "1")
		q.Set("direction", "backward")
		body, err := grafanaGET(ctx, opts, "/api/datasources/proxy/uid/loki/loki/api/v1/query_range?"+q.Encode())
		if err != nil {
			return err
		}
		var payload struct {
			Data struct {
				Result []json.RawMessage `json:"result"`
			} `json:"data"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return err
		}
		if len(payload.Data.Result) > 0 {
			return nil
		}
	}
	return fmt.Errorf("no correlated loki logs found for trace_id %s", traceID)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
