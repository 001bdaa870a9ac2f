// Package health reports service health from dataset load metadata and the
// reachability of the search host.
package health

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/giygas/medicaments-search/interfaces"
	"github.com/giygas/medicaments-search/protocol"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"

	staleDataAge    = 24 * time.Hour
	slowUpdateAge   = 6 * time.Hour
	hostProbeBudget = time.Second
)

// Compile-time check to ensure HealthCheckerImpl implements HealthChecker
var _ interfaces.HealthChecker = (*HealthCheckerImpl)(nil)

// HealthCheckerImpl implements the interfaces.HealthChecker interface
type HealthCheckerImpl struct {
	dataStore interfaces.DataStore
	searcher  interfaces.SearchService
	times     []time.Duration // offsets from midnight, sorted
	now       func() time.Time
}

// NewHealthChecker creates a health checker. schedule uses the reload syntax
// ("06:00;18:00").
func NewHealthChecker(dataStore interfaces.DataStore, searcher interfaces.SearchService, schedule string) (*HealthCheckerImpl, error) {
	times, err := ParseSchedule(schedule)
	if err != nil {
		return nil, err
	}
	return &HealthCheckerImpl{
		dataStore: dataStore,
		searcher:  searcher,
		times:     times,
		now:       time.Now,
	}, nil
}

// ParseSchedule turns "HH:MM[:SS];HH:MM[:SS]" into sorted offsets from midnight
func ParseSchedule(schedule string) ([]time.Duration, error) {
	var times []time.Duration
	for _, part := range strings.Split(schedule, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var t time.Time
		var err error
		if strings.Count(part, ":") == 2 {
			t, err = time.Parse("15:04:05", part)
		} else {
			t, err = time.Parse("15:04", part)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid schedule time %q: %w", part, err)
		}
		times = append(times, time.Duration(t.Hour())*time.Hour+
			time.Duration(t.Minute())*time.Minute+
			time.Duration(t.Second())*time.Second)
	}
	if len(times) == 0 {
		return nil, fmt.Errorf("schedule %q has no times", schedule)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	return times, nil
}

// HealthCheck returns the status, details and HTTP code served by /health
func (h *HealthCheckerImpl) HealthCheck(ctx context.Context) (status string, data map[string]any, httpStatus int) {
	now := h.now()
	load := h.dataStore.GetLastLoad()
	lastUpdate := h.dataStore.GetLastUpdated()
	isUpdating := h.dataStore.IsUpdating()
	updateStarted := h.dataStore.GetUpdateStartedAt()

	dataAge := now.Sub(lastUpdate)
	hostErr := h.probeHost(ctx)

	switch {
	case load.Records == 0:
		status = StatusUnhealthy
		httpStatus = http.StatusServiceUnavailable

	case errors.Is(hostErr, protocol.ErrHostUnavailable), errors.Is(hostErr, protocol.ErrNotInitialized):
		status = StatusUnhealthy
		httpStatus = http.StatusServiceUnavailable

	case hostErr != nil:
		status = StatusDegraded
		httpStatus = http.StatusServiceUnavailable

	case dataAge > staleDataAge:
		status = StatusDegraded
		httpStatus = http.StatusServiceUnavailable

	case isUpdating && now.Sub(updateStarted) > slowUpdateAge:
		status = StatusDegraded
		httpStatus = http.StatusServiceUnavailable

	default:
		status = StatusHealthy
		httpStatus = http.StatusOK
	}

	data = map[string]any{
		"last_update":    lastUpdate.Format(time.RFC3339),
		"data_age_hours": math.Round(dataAge.Hours()*10) / 10,
		"records":        load.Records,
		"duplicates":     load.Duplicates,
		"source":         load.Source,
		"is_updating":    isUpdating,
		"next_update":    h.nextUpdateAfter(now).Format(time.RFC3339),
		"host":           hostState(hostErr),
	}
	if h.searcher != nil {
		data["pending_requests"] = h.searcher.Pending()
	}

	return status, data, httpStatus
}

// probeHost sends a cheap round trip to the search host
func (h *HealthCheckerImpl) probeHost(ctx context.Context) error {
	if h.searcher == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, hostProbeBudget)
	defer cancel()

	_, err := h.searcher.GetStats(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return protocol.NewError(protocol.KindTimeout, "health probe", err)
	}
	return err
}

func hostState(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(string(protocol.KindOf(err)))
}

// CalculateNextUpdate returns the next scheduled update time
func (h *HealthCheckerImpl) CalculateNextUpdate() time.Time {
	return h.nextUpdateAfter(h.now())
}

func (h *HealthCheckerImpl) nextUpdateAfter(now time.Time) time.Time {
	for _, offset := range h.times {
		if next := atOffset(now, 0, offset); next.After(now) {
			return next
		}
	}
	return atOffset(now, 1, h.times[0])
}

// atOffset returns the wall clock time offset from midnight, days after now's date
func atOffset(now time.Time, days int, offset time.Duration) time.Time {
	secs := int(offset / time.Second)
	return time.Date(now.Year(), now.Month(), now.Day()+days, secs/3600, secs%3600/60, secs%60, 0, now.Location())
}
