package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/eskomcalendar/calendarapi/internal/calendar"
	"github.com/eskomcalendar/calendarapi/internal/config"
	"github.com/eskomcalendar/calendarapi/internal/database"
	"github.com/eskomcalendar/calendarapi/internal/feedcache"
)

func newAreasCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "areas [regex]",
		Short: "List area names, optionally filtered by a regular expression",
		Example: `  calendarctl areas
  calendarctl areas '^city-of-cape-town'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := calendar.MatchAllPattern
			if len(args) == 1 {
				pattern = args[0]
			}
			return opts.withDeps(cmd, func(d *deps) error {
				areas, err := d.service.ListAreas(cmd.Context(), pattern)
				if err != nil {
					return err
				}
				return opts.render(cmd.OutOrStdout(), areas, func(w io.Writer) {
					printSimpleTable(w, []string{"AREA"}, func(add func(...string)) {
						for _, area := range areas {
							add(area)
						}
					})
				})
			})
		},
	}
}

func newOutagesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "outages <area>",
		Short: "Show the scheduled outages for an area",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDeps(cmd, func(d *deps) error {
				outages, err := d.service.Outages(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return opts.render(cmd.OutOrStdout(), outages, func(w io.Writer) {
					printSimpleTable(w, []string{"STAGE", "START", "FINISH", "SOURCE"}, func(add func(...string)) {
						for _, o := range outages {
							add(strconv.Itoa(o.Stage), o.Start.Format(time.RFC3339), o.Finish.Format(time.RFC3339), o.Source)
						}
					})
				})
			})
		},
	}
}

func newScheduleCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule <area>",
		Short: "Show the recurring schedule for an area",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDeps(cmd, func(d *deps) error {
				schedule, err := d.service.Schedule(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return opts.render(cmd.OutOrStdout(), schedule, func(w io.Writer) {
					printSimpleTable(w, []string{"RECURRENCE", "DAY", "START", "FINISH", "STAGE"}, func(add func(...string)) {
						for _, o := range schedule.Outages {
							add(describeRecurrence(o.Recurrence), strconv.Itoa(o.Day1OfRecurrence),
								o.StartTime.String(), o.FinishTime.String(), strconv.Itoa(o.Stage))
						}
					})
				})
			})
		},
	}
}

func newSearchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Fuzzy search area names, best match first",
		Example: `  calendarctl search stellenbosch
  calendarctl search "cape town" --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDeps(cmd, func(d *deps) error {
				results, err := d.service.FuzzySearch(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return opts.render(cmd.OutOrStdout(), results, func(w io.Writer) {
					printSimpleTable(w, []string{"SCORE", "AREA"}, func(add func(...string)) {
						for _, r := range results {
							add(strconv.Itoa(r.Score), r.Result.Name)
						}
					})
				})
			})
		},
	}
}

func newArchiveCmd(opts *options) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Record every area in the outage feed in the Postgres archive",
		Long: `archive upserts the distinct area names of the outage feed into the areas
table, creating it if needed. Connection settings come from DB_HOST, DB_PORT,
DB_USER, DB_PASSWORD, DB_NAME and DB_SSL_MODE.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			pool, err := database.Connect(ctx, database.ConfigFromEnv())
			if err != nil {
				return err
			}
			defer pool.Close()

			archive := database.NewAreaArchive(pool)
			if err := archive.Bootstrap(ctx); err != nil {
				return err
			}

			if list {
				return listArchive(cmd, opts, archive)
			}
			return opts.withDeps(cmd, func(d *deps) error {
				return syncArchive(cmd, d, archive)
			})
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "print the archive instead of updating it")
	return cmd
}

func syncArchive(cmd *cobra.Command, d *deps, archive *database.AreaArchive) error {
	areas, err := d.service.ListAllAreas(cmd.Context())
	if err != nil {
		return err
	}
	if err := archive.Upsert(cmd.Context(), areas, time.Now().UTC()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "archived %d areas\n", len(areas))
	return nil
}

func listArchive(cmd *cobra.Command, opts *options, archive *database.AreaArchive) error {
	areas, err := archive.List(cmd.Context())
	if err != nil {
		return err
	}
	return opts.render(cmd.OutOrStdout(), areas, func(w io.Writer) {
		printSimpleTable(w, []string{"AREA", "FIRST SEEN", "LAST SEEN"}, func(add func(...string)) {
			for _, a := range areas {
				add(a.Name, a.FirstSeen.Format(time.RFC3339), a.LastSeen.Format(time.RFC3339))
			}
		})
	})
}

func newCacheCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the local bolt feed cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete expired entries from the bolt cache file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.boltPath
			if path == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				path = cfg.BoltPath
			}

			b, err := feedcache.OpenBolt(path, nil)
			if err != nil {
				return err
			}
			defer b.Close()

			removed, err := b.Purge()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired entries from %s\n", removed, b.Path())
			return nil
		},
	})
	return cmd
}

func describeRecurrence(r calendar.Recurrence) string {
	if r.Kind != calendar.RecurrencePeriodic {
		return string(r.Kind)
	}
	return fmt.Sprintf("%s (every %d days from %s)", r.Kind, r.PeriodDays, r.Offset.Format("2006-01-02"))
}
