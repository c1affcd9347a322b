package application

import (
	"context"
	"log/slog"
	"sort"

	"github.com/example/campus-rideshare/internal/observability"
	"github.com/example/campus-rideshare/internal/persistence"
	"github.com/example/campus-rideshare/internal/timeofday"
)

// DriverDirectory is the slice of user storage the matcher needs.
type DriverDirectory interface {
	DriversInArea(ctx context.Context, area string) ([]persistence.DriverSchedule, error)
}

// MatchService selects drivers whose recurring weekly schedule falls within
// ten minutes of a requested departure time.
type MatchService struct {
	drivers  DriverDirectory
	presence PresenceView
	logger   *slog.Logger
}

// NewMatchService wires dependencies for the match service.
func NewMatchService(drivers DriverDirectory, presence PresenceView, logger *slog.Logger) *MatchService {
	return &MatchService{drivers: drivers, presence: presence, logger: defaultLogger(logger)}
}

// ScheduleCandidates returns the usernames of every driver in the area whose
// schedule has an entry on the given weekday within the match window around
// targetSeconds. Presence is not consulted; candidates may be offline.
//
// A driver appears at most once no matter how many schedule entries land in
// the window. Unparsable schedule entries are skipped, not fatal.
func (s *MatchService) ScheduleCandidates(ctx context.Context, area string, weekday, targetSeconds int) ([]string, error) {
	logger := serviceLogger(ctx, s.logger, "match", "schedule_candidates", "area", area, "weekday", weekday)

	schedules, err := s.drivers.DriversInArea(ctx, area)
	if err != nil {
		logger.Error("driver lookup failed", "error", err)
		return nil, err
	}

	lower, upper := timeofday.MatchWindow(targetSeconds)

	candidates := make([]string, 0, len(schedules))
	seen := make(map[string]struct{}, len(schedules))
	for _, driver := range schedules {
		for day, departure := range driver.WeeklySchedule {
			dayIndex, err := timeofday.WeekdayIndex(day)
			if err != nil || dayIndex != weekday {
				continue
			}
			seconds, err := timeofday.ParseSeconds(departure)
			if err != nil {
				logger.Debug("skipping unparsable schedule entry", "driver", driver.Username, "value", departure)
				continue
			}
			if seconds < lower || seconds > upper {
				continue
			}
			if _, dup := seen[driver.Username]; dup {
				continue
			}
			seen[driver.Username] = struct{}{}
			candidates = append(candidates, driver.Username)
		}
	}

	sort.Strings(candidates)
	return candidates, nil
}

// FindOnlineDrivers runs a full matching pass: schedule candidates filtered
// down to drivers who are connected and available, with the preferred-driver
// tiers applied.
//
// When the preferred driver is both a candidate and online available, they
// are the only result. When they are not and the query is preferred-only,
// the result is empty. Otherwise every online available candidate matches.
func (s *MatchService) FindOnlineDrivers(ctx context.Context, query MatchQuery) ([]string, error) {
	logger := serviceLogger(ctx, s.logger, "match", "find_online_drivers", "area", query.Area)

	candidates, err := s.ScheduleCandidates(ctx, query.Area, query.Weekday, query.TargetSeconds)
	if err != nil {
		return nil, err
	}

	if query.PreferredDriver != "" {
		for _, username := range candidates {
			if username == query.PreferredDriver && s.presence.IsOnlineAvailable(username) {
				observability.MatchesTotal.Inc()
				logger.Info("matched preferred driver", "driver", username)
				return []string{username}, nil
			}
		}
		if query.PreferredOnly {
			logger.Info("preferred driver unavailable, no fallback requested", "driver", query.PreferredDriver)
			return nil, nil
		}
	}

	matched := candidates[:0]
	for _, username := range candidates {
		if s.presence.IsOnlineAvailable(username) {
			matched = append(matched, username)
		}
	}

	if len(matched) > 0 {
		observability.MatchesTotal.Inc()
	}
	logger.Info("matching pass finished", "candidates", len(candidates), "matched", len(matched))
	return matched, nil
}
