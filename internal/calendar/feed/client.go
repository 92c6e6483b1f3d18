// Package feed downloads the upstream loadshedding CSV feeds.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/eskomcalendar/calendarapi/internal/calendar"
	"github.com/eskomcalendar/calendarapi/internal/observability"
	"github.com/eskomcalendar/calendarapi/internal/telemetry"
	"github.com/eskomcalendar/calendarapi/internal/upstream/resilience"
)

const (
	// DefaultOutageFeedURL is the CSV of every dated outage.
	DefaultOutageFeedURL = "https://github.com/beyarkay/eskom-calendar/releases/download/latest/machine_friendly.csv"

	// DefaultScheduleBaseURL is the directory holding one schedule CSV per area.
	DefaultScheduleBaseURL = "https://raw.githubusercontent.com/beyarkay/eskom-calendar/main/generated/"

	// DefaultRateLimit is the sustained outbound request rate per second.
	DefaultRateLimit = 5

	// DefaultMaxFeedBytes caps the size of a downloaded feed.
	DefaultMaxFeedBytes = 64 << 20
)

// ErrFeedTooLarge is wrapped by the FetchError of a feed over the size cap.
var ErrFeedTooLarge = errors.New("feed exceeds size limit")

// ClientConfig holds configuration for the feed client.
type ClientConfig struct {
	// OutageFeedURL defaults to DefaultOutageFeedURL.
	OutageFeedURL string

	// ScheduleBaseURL defaults to DefaultScheduleBaseURL.
	ScheduleBaseURL string

	// HTTPClient is used for both feeds when set. If nil, one resilient
	// client per feed is created so a failing schedule host cannot open the
	// outage feed's circuit.
	HTTPClient HTTPDoer

	// Timeout for a single download (default: 30s).
	Timeout time.Duration

	// MaxRetries after a failed download. Zero never retries.
	MaxRetries uint64

	// RateLimit is the outbound requests per second. Negative disables pacing,
	// zero uses DefaultRateLimit.
	RateLimit float64

	// MaxFeedBytes caps a single download (default: DefaultMaxFeedBytes).
	MaxFeedBytes int64

	// Registry tracks upstream health. Optional.
	Registry *resilience.Registry

	// Metrics receives fetch observations. Optional.
	Metrics *observability.Metrics

	// Clock times downloads. Defaults to the real clock.
	Clock clockwork.Clock

	Logger zerolog.Logger
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client downloads the upstream feeds. It implements calendar.Source.
type Client struct {
	outageURL   string
	scheduleURL string
	outages     HTTPDoer
	schedules   HTTPDoer
	limiter     *rate.Limiter
	maxBytes    int64
	metrics     *observability.Metrics
	clock       clockwork.Clock
	logger      zerolog.Logger
}

var _ calendar.Source = (*Client)(nil)

// NewClient creates a new feed client.
func NewClient(cfg ClientConfig) *Client {
	outageURL := cfg.OutageFeedURL
	if outageURL == "" {
		outageURL = DefaultOutageFeedURL
	}
	scheduleURL := cfg.ScheduleBaseURL
	if scheduleURL == "" {
		scheduleURL = DefaultScheduleBaseURL
	}
	if !strings.HasSuffix(scheduleURL, "/") {
		scheduleURL += "/"
	}

	outages, schedules := cfg.HTTPClient, cfg.HTTPClient
	if cfg.HTTPClient == nil {
		outages = newResilientClient(calendar.FeedOutages, cfg)
		schedules = newResilientClient(calendar.FeedSchedules, cfg)
	}

	var limiter *rate.Limiter
	switch {
	case cfg.RateLimit < 0:
	case cfg.RateLimit == 0:
		limiter = rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit)
	default:
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	maxBytes := cfg.MaxFeedBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFeedBytes
	}

	return &Client{
		outageURL:   outageURL,
		scheduleURL: scheduleURL,
		outages:     outages,
		schedules:   schedules,
		limiter:     limiter,
		maxBytes:    maxBytes,
		metrics:     cfg.Metrics,
		clock:       clock,
		logger:      cfg.Logger,
	}
}

func newResilientClient(name string, cfg ClientConfig) *resilience.Client {
	rc := resilience.DefaultClientConfig(name)
	if cfg.Timeout > 0 {
		rc.Timeout = cfg.Timeout
	}
	rc.MaxRetries = cfg.MaxRetries
	rc.Registry = cfg.Registry
	rc.CircuitBreaker.OnStateChange = resilience.LogStateChanges(cfg.Logger)
	return resilience.NewClient(rc)
}

// OutageFeedURL returns the URL of the outage feed.
func (c *Client) OutageFeedURL() string {
	return c.outageURL
}

// ScheduleURL returns the URL of the schedule feed for area.
func (c *Client) ScheduleURL(area string) string {
	return c.scheduleURL + url.PathEscape(area) + ".csv"
}

// FetchOutageFeed downloads the outage feed.
func (c *Client) FetchOutageFeed(ctx context.Context) ([]byte, error) {
	return c.fetch(ctx, c.outages, calendar.FeedOutages, c.outageURL)
}

// FetchScheduleFeed downloads the recurring schedule of one area.
func (c *Client) FetchScheduleFeed(ctx context.Context, area string) ([]byte, error) {
	return c.fetch(ctx, c.schedules, calendar.FeedSchedules, c.ScheduleURL(area))
}

func (c *Client) fetch(ctx context.Context, doer HTTPDoer, feed, target string) (data []byte, err error) {
	ctx, span := telemetry.StartSpan(ctx, "feed.fetch",
		attribute.String("feed.name", feed),
		attribute.String("feed.url", target),
	)
	defer func() {
		span.SetAttributes(attribute.Int("feed.bytes", len(data)))
		telemetry.EndSpan(span, err)
	}()

	if c.limiter != nil {
		if waitErr := c.limiter.Wait(ctx); waitErr != nil {
			return nil, &calendar.FetchError{URL: target, Err: fmt.Errorf("wait for rate limiter: %w", waitErr)}
		}
	}

	start := c.clock.Now()
	data, err = c.download(ctx, doer, target)
	elapsed := c.clock.Since(start)

	outcome := fetchOutcome(err)
	if c.metrics != nil {
		c.metrics.RecordFetch(feed, outcome, elapsed, len(data))
	}

	event := c.logger.Debug()
	if err != nil {
		event = c.logger.Warn().Err(err)
	}
	event.
		Str("feed", feed).
		Str("url", target).
		Str("outcome", outcome).
		Int("bytes", len(data)).
		Dur("elapsed", elapsed).
		Msg("feed fetched")

	return data, err
}

func (c *Client) download(ctx context.Context, doer HTTPDoer, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, &calendar.FetchError{URL: target, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := doer.Do(req)
	if err != nil {
		return nil, &calendar.FetchError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &calendar.FetchError{URL: target, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, &calendar.FetchError{URL: target, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(data)) > c.maxBytes {
		return nil, &calendar.FetchError{URL: target, Err: fmt.Errorf("%w of %d bytes", ErrFeedTooLarge, c.maxBytes)}
	}
	return data, nil
}

func fetchOutcome(err error) string {
	if err == nil {
		return observability.OutcomeSuccess
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return observability.OutcomeCircuitOpen
	}
	var fetchErr *calendar.FetchError
	if errors.As(err, &fetchErr) && fetchErr.Status == http.StatusNotFound {
		return observability.OutcomeNotFound
	}
	return observability.OutcomeError
}
