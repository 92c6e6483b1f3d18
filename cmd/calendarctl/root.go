package main

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/eskomcalendar/calendarapi/internal/calendar"
	"github.com/eskomcalendar/calendarapi/internal/calendar/feed"
	"github.com/eskomcalendar/calendarapi/internal/config"
	"github.com/eskomcalendar/calendarapi/internal/feedcache"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

// options holds the persistent flags shared by every subcommand.
type options struct {
	format   string
	cache    string
	cacheTTL time.Duration
	boltPath string
	timeout  time.Duration
	verbose  bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "calendarctl",
		Short: "Query the loadshedding calendar feeds",
		Long: `calendarctl downloads the upstream loadshedding feeds and answers the same
queries as the calendar API.

Feed locations and the Postgres archive come from the same environment
variables as the API server (OUTAGE_FEED_URL, SCHEDULE_BASE_URL, DB_*).`,
		Example: `  calendarctl areas cape
  calendarctl outages city-of-cape-town-area-15
  calendarctl schedule city-of-cape-town-area-15 --format json
  calendarctl search "stellenbosch"
  calendarctl status --server http://localhost:8080`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.validate()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.format, "format", formatTable,
		"output format: table|json")
	pf.StringVar(&opts.cache, "cache", feedcache.BackendBolt,
		"feed cache: bolt|memory|none")
	pf.DurationVar(&opts.cacheTTL, "cache-ttl", 10*time.Minute,
		"how long a downloaded feed is reused")
	pf.StringVar(&opts.boltPath, "bolt-path", "",
		"bolt cache file (default: BOLT_PATH or data/feeds.db)")
	pf.DurationVar(&opts.timeout, "timeout", 0,
		"HTTP request timeout (e.g. 30s, 2m)")
	pf.BoolVar(&opts.verbose, "verbose", false,
		"log feed requests to stderr")

	root.AddCommand(
		newAreasCmd(opts),
		newOutagesCmd(opts),
		newScheduleCmd(opts),
		newSearchCmd(opts),
		newArchiveCmd(opts),
		newCacheCmd(opts),
		newStatusCmd(opts),
	)
	return root
}

func (o *options) validate() error {
	switch o.format {
	case formatTable, formatJSON:
	default:
		return fmt.Errorf("unknown format %q: expected table or json", o.format)
	}
	switch o.cache {
	case feedcache.BackendBolt, feedcache.BackendMemory, feedcache.BackendNone:
	default:
		return fmt.Errorf("unknown cache %q: expected bolt, memory or none", o.cache)
	}
	return nil
}

// deps is what a subcommand needs to answer a query.
type deps struct {
	cfg     *config.Config
	logger  zerolog.Logger
	service *calendar.Service
	cache   feedcache.Cache
}

func (d *deps) Close() error {
	if d.cache == nil {
		return nil
	}
	return d.cache.Close()
}

// buildDeps resolves config and applies the flag overrides. Called at the
// start of each command's RunE.
func (o *options) buildDeps(cmd *cobra.Command) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if o.timeout > 0 {
		cfg.FeedTimeout = o.timeout
	}
	if o.boltPath != "" {
		cfg.BoltPath = o.boltPath
	}
	cfg.CacheBackend = o.cache
	cfg.CacheTTL = o.cacheTTL

	logger := cfg.NewLogger(cmd.ErrOrStderr(), "calendarctl", Version)
	if !o.verbose {
		logger = logger.Level(zerolog.WarnLevel)
	}

	cache, err := feedcache.New(cmd.Context(), cfg.CacheOptions())
	if err != nil {
		return nil, fmt.Errorf("open %s cache: %w", o.cache, err)
	}

	client := feed.NewClient(feed.ClientConfig{
		OutageFeedURL:   cfg.OutageFeedURL,
		ScheduleBaseURL: cfg.ScheduleBaseURL,
		Timeout:         cfg.FeedTimeout,
		MaxRetries:      uint64(cfg.FeedMaxRetries), //nolint:gosec // validated non-negative
		RateLimit:       cfg.FeedClientRateLimit(),
		Logger:          logger,
	})

	source := feedcache.Wrap(feedcache.SourceConfig{
		Source: client,
		Cache:  cache,
		TTL:    cfg.CacheTTL,
		Logger: logger,
	})

	return &deps{
		cfg:    cfg,
		logger: logger,
		cache:  cache,
		service: calendar.NewService(calendar.ServiceConfig{
			Source: source,
			Logger: logger,
		}),
	}, nil
}

// withDeps builds deps, runs fn and closes the cache afterwards.
func (o *options) withDeps(cmd *cobra.Command, fn func(d *deps) error) error {
	d, err := o.buildDeps(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := d.Close(); closeErr != nil {
			d.logger.Warn().Err(closeErr).Msg("failed to close feed cache")
		}
	}()
	return fn(d)
}

func (o *options) render(w io.Writer, data any, table func(w io.Writer)) error {
	if o.format == formatJSON {
		return writeJSON(w, data)
	}
	table(w)
	return nil
}
