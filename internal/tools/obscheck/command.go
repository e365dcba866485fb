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

	"github.com/ramcharankhv-byte/taskhub/internal/tools/common"
	"github.com/ramcharankhv-byte/taskhub/internal/tools/ui"
)

// obscheck probes the deployed observability pipeline: the service must
// answer liveness, and a recent request must have left a trace exemplar
// behind in Grafana.

type options struct {
	serviceURL string
	grafanaURL string
	window     time.Duration
	ci         bool
	timeout    time.Duration
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "obscheck",
		Short:         "Verify the observability pipeline end to end",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.serviceURL, "service-url", "http://localhost:8080", "base URL of the running API")
	root.PersistentFlags().StringVar(&opts.grafanaURL, "grafana-url", "http://localhost:3001", "base URL of Grafana")
	root.PersistentFlags().DurationVar(&opts.window, "window", 5*time.Minute, "how far back to look for exemplars")
	root.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive JSON output")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall timeout")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run all checks once",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(opts, "obscheck", "run", func(ctx context.Context) ([]string, error) {
				return runChecks(ctx, *opts)
			})
			return err
		},
	})

	return root
}

func run(opts *options, title, action string, fn func(ctx context.Context) ([]string, error)) ([]string, error) {
	wrapped := func(ctx context.Context) ([]string, error) {
		if opts.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, opts.timeout)
			defer cancel()
		}
		return fn(ctx)
	}
	if opts.ci {
		details, err := wrapped(context.Background())
		common.PrintCIResult(err == nil, strings.TrimSpace(title+" "+action), details, err)
		return details, err
	}
	return ui.Run(strings.TrimSpace(title+" "+action), wrapped)
}

func runChecks(ctx context.Context, opts options) ([]string, error) {
	var details []string

	if err := checkLiveness(ctx, opts); err != nil {
		return details, err
	}
	details = append(details, "service liveness: ok")

	traceID, err := fetchTraceIDFromExemplar(ctx, opts, time.Now().Add(-opts.window))
	if err != nil {
		return details, err
	}
	details = append(details, "trace exemplar: "+traceID)
	return details, nil
}

func checkLiveness(ctx context.Context, opts options) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(opts.serviceURL, "/")+"/health/live", nil)
	if err != nil {
		return fmt.Errorf("build liveness request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("liveness request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("liveness returned status %d", resp.StatusCode)
	}
	return nil
}

func grafanaGET(ctx context.Context, opts options, path string) ([]byte, error) {
	base, err := url.Parse(opts.grafanaURL)
	if err != nil {
		return nil, fmt.Errorf("parse grafana url: %w", err)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse grafana path: %w", err)
	}
	target := base.ResolveReference(ref).String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build grafana request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("grafana request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read grafana response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("grafana GET %s returned status %d", path, resp.StatusCode)
	}
	return body, nil
}

// fetchTraceIDFromExemplar asks Grafana's Prometheus proxy for request
// duration exemplars and returns the trace id of the newest one after since.
func fetchTraceIDFromExemplar(ctx context.Context, opts options, since time.Time) (string, error) {
	end := time.Now()
	path := fmt.Sprintf(
		"/api/datasources/proxy/uid/prometheus/api/v1/query_exemplars?query=%s&start=%d&end=%d",
		url.QueryEscape("http_server_request_duration_seconds_bucket"),
		end.Add(-opts.window).Unix(), end.Unix(),
	)
	body, err := grafanaGET(ctx, opts, path)
	if err != nil {
		return "", err
	}

	var payload struct {
		Data []struct {
			Exemplars []struct {
				Timestamp float64           `json:"timestamp"`
				Labels    map[string]string `json:"labels"`
			} `json:"exemplars"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode exemplar response: %w", err)
	}

	for _, series := range payload.Data {
		for _, ex := range series.Exemplars {
			traceID := ex.Labels["trace_id"]
			if traceID == "" {
				continue
			}
			if time.Unix(int64(ex.Timestamp), 0).After(since) {
				return traceID, nil
			}
		}
	}
	return "", fmt.Errorf("no trace exemplar found in the last %s", opts.window)
}
