package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/eskomcalendar/calendarapi/internal/api/models"
	"github.com/eskomcalendar/calendarapi/internal/upstream/resilience"
)

const defaultServer = "http://localhost:8080"

func newStatusCmd(opts *options) *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the subsystem and upstream feed status of a running API server",
		Example: `  calendarctl status
  calendarctl status --server https://calendar.example.com --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := fetchStatus(cmd.Context(), server, opts.timeout)
			if err != nil {
				return err
			}
			return opts.render(cmd.OutOrStdout(), status, func(w io.Writer) {
				fmt.Fprintf(w, "%s as of %s\n", status.Status, status.Time.Time().UTC().Format(time.RFC3339))
				printSimpleTable(w, []string{"NAME", "STATUS", "CIRCUIT", "LAST SUCCESS", "LAST FAILURE", "DETAIL"}, func(add func(...string)) {
					for _, s := range status.Subsystems {
						add(s.Name, string(s.Status), "-", "-", "-", orDash(s.Detail))
					}
					for _, u := range status.Upstreams {
						add(u.Upstream, string(u.Status), u.CircuitState,
							formatTimestamp(u.LastSuccessAt), formatTimestamp(u.LastFailureAt), orDash(u.Message))
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&server, "server", defaultServer, "base URL of the calendar API")
	return cmd
}

// fetchStatus reads /ops/status from server through a circuit-broken client.
func fetchStatus(ctx context.Context, server string, timeout time.Duration) (*models.SystemStatus, error) {
	rc := resilience.DefaultClientConfig("calendar-api")
	if timeout > 0 {
		rc.Timeout = timeout
	}
	client := resilience.NewClient(rc)

	target := strings.TrimSuffix(server, "/") + "/ops/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query %s: server returned %s", target, resp.Status)
	}

	var status models.SystemStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &status, nil
}

func formatTimestamp(ts *models.Timestamp) string {
	if ts == nil {
		return "-"
	}
	return ts.Time().UTC().Format(time.RFC3339)
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
