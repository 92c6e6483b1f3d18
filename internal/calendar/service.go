package calendar

import (
	"bytes"
	"context"

	"github.com/rs/zerolog"
)

// Feed names used in logs and metrics.
const (
	FeedOutages   = "outages"
	FeedSchedules = "schedules"
)

const maxLoggedRowErrors = 3

// Source retrieves the raw upstream feeds.
type Source interface {
	// FetchOutageFeed returns the CSV of all dated outages.
	FetchOutageFeed(ctx context.Context) ([]byte, error)

	// FetchScheduleFeed returns the recurring schedule CSV for one area.
	FetchScheduleFeed(ctx context.Context, area string) ([]byte, error)
}

// ParseRecorder observes feed parsing results.
type ParseRecorder interface {
	RecordParse(feed string, rows, skipped int)
}

// ServiceConfig holds configuration for the calendar service.
type ServiceConfig struct {
	// Source provides the upstream feeds.
	Source Source

	// Logger for service operations.
	Logger zerolog.Logger

	// Recorder receives parse statistics. Optional.
	Recorder ParseRecorder
}

// Service answers area queries by fetching and parsing the upstream feeds on
// every call.
type Service struct {
	source   Source
	logger   zerolog.Logger
	recorder ParseRecorder
}

// NewService creates a new calendar service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		source:   cfg.Source,
		logger:   cfg.Logger,
		recorder: cfg.Recorder,
	}
}

// Outages returns the scheduled outages for an area.
func (s *Service) Outages(ctx context.Context, area string) ([]PowerOutage, error) {
	all, err := s.loadOutages(ctx)
	if err != nil {
		return nil, err
	}
	return OutagesForArea(all, area)
}

// ListAreas returns the distinct area names matching pattern.
func (s *Service) ListAreas(ctx context.Context, pattern string) ([]string, error) {
	all, err := s.loadOutages(ctx)
	if err != nil {
		return nil, err
	}
	return ListAreas(all, pattern)
}

// ListAllAreas returns every distinct area name.
func (s *Service) ListAllAreas(ctx context.Context) ([]string, error) {
	return s.ListAreas(ctx, MatchAllPattern)
}

// FuzzySearch ranks areas against a free-text query.
func (s *Service) FuzzySearch(ctx context.Context, query string) ([]SearchResult[Area], error) {
	all, err := s.loadOutages(ctx)
	if err != nil {
		return nil, err
	}
	return FuzzySearch(all, query), nil
}

// Schedule returns the recurring schedule for an area.
func (s *Service) Schedule(ctx context.Context, area string) (RecurringSchedule, error) {
	data, err := s.source.FetchScheduleFeed(ctx, area)
	if err != nil {
		return RecurringSchedule{}, err
	}

	raws, err := ParseSchedule(bytes.NewReader(data))
	if err != nil {
		s.logger.Warn().Err(err).Str("area", area).Msg("schedule feed rejected")
		return RecurringSchedule{}, err
	}

	outages, err := NormalizeAll(raws)
	if err != nil {
		s.logger.Warn().Err(err).Str("area", area).Msg("schedule feed rejected")
		return RecurringSchedule{}, err
	}
	s.record(FeedSchedules, len(outages), 0)

	return NewRecurringSchedule(outages), nil
}

func (s *Service) loadOutages(ctx context.Context) ([]PowerOutage, error) {
	data, err := s.source.FetchOutageFeed(ctx)
	if err != nil {
		return nil, err
	}

	outages, rowErrs, err := ParseOutages(bytes.NewReader(data))
	if err != nil {
		s.logger.Error().Err(err).Msg("outage feed rejected")
		return nil, err
	}

	if len(rowErrs) > 0 {
		samples := make([]string, 0, maxLoggedRowErrors)
		for _, rowErr := range rowErrs {
			if len(samples) == maxLoggedRowErrors {
				break
			}
			samples = append(samples, rowErr.Error())
		}
		s.logger.Warn().
			Int("skipped", len(rowErrs)).
			Int("parsed", len(outages)).
			Strs("row_errors", samples).
			Msg("skipped malformed outage rows")
	}
	s.record(FeedOutages, len(outages), len(rowErrs))

	return outages, nil
}

func (s *Service) record(feed string, rows, skipped int) {
	if s.recorder != nil {
		s.recorder.RecordParse(feed, rows, skipped)
	}
}
