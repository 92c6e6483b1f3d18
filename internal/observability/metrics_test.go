package observability_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/eskomcalendar/calendarapi/internal/observability"
)

func TestRecordFetch(t *testing.T) {
	m := observability.NewMetricsForTesting()

	m.RecordFetch("outages", observability.OutcomeSuccess, 200*time.Millisecond, 1024)
	m.RecordFetch("outages", observability.OutcomeError, time.Second, 0)
	m.RecordFetch("schedules", observability.OutcomeNotFound, 50*time.Millisecond, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeedRequests.WithLabelValues("outages", observability.OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeedRequests.WithLabelValues("outages", observability.OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeedRequests.WithLabelValues("schedules", observability.OutcomeNotFound)))
	assert.Equal(t, 1024.0, testutil.ToFloat64(m.FeedBytes.WithLabelValues("outages")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.FeedDuration))
}

func TestRecordParse(t *testing.T) {
	m := observability.NewMetricsForTesting()

	m.RecordParse("outages", 10, 2)
	m.RecordParse("outages", 5, 0)

	assert.Equal(t, 15.0, testutil.ToFloat64(m.RowsParsed.WithLabelValues("outages")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RowsSkipped.WithLabelValues("outages")))
}

func TestRecordCache(t *testing.T) {
	m := observability.NewMetricsForTesting()

	m.RecordCache("outages", true)
	m.RecordCache("outages", false)
	m.RecordCache("outages", true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("outages", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("outages", "miss")))
}
