package application

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/example/campus-rideshare/internal/observability"
	"github.com/example/campus-rideshare/internal/persistence"
	"github.com/example/campus-rideshare/internal/timeofday"
)

// Matcher is the matching pass the ride service runs before persisting a
// ride request.
type Matcher interface {
	FindOnlineDrivers(ctx context.Context, query MatchQuery) ([]string, error)
}

// RideService owns the on-demand ride lifecycle: creation with matching,
// accept/decline/complete transitions, history, and ratings.
type RideService struct {
	rides       RideRepository
	ratings     RatingRepository
	preferences PreferencesRepository
	matcher     Matcher
	notifier    Notifier
	now         func() time.Time
	logger      *slog.Logger
}

// NewRideService wires dependencies for the ride service.
func NewRideService(rides RideRepository, ratings RatingRepository, preferences PreferencesRepository, matcher Matcher, notifier Notifier, logger *slog.Logger) *RideService {
	return &RideService{
		rides:       rides,
		ratings:     ratings,
		preferences: preferences,
		matcher:     matcher,
		notifier:    notifier,
		now:         time.Now,
		logger:      defaultLogger(logger),
	}
}

// CreateRide matches the request against the driver pool, persists it only
// when at least one driver can be notified, and fans the notice out.
//
// The target driver named in the request wins over the passenger's stored
// preferred driver; with neither set the pass is unrestricted.
func (s *RideService) CreateRide(ctx context.Context, params CreateRideParams) (CreateRideResult, error) {
	logger := serviceLogger(ctx, s.logger, "ride", "create_ride", "passenger", params.PassengerUsername, "area", params.Area)

	vErr := &ValidationError{}
	if strings.TrimSpace(params.Area) == "" {
		vErr.add("area", "Area is required.")
	}
	seconds, err := timeofday.ParseSeconds(params.Time)
	if err != nil {
		vErr.add("time", "Invalid time format. Use HH:MM, HH:MM:SS, or H:MM AM/PM.")
	}
	if vErr.HasErrors() {
		logger.Warn("ride request rejected", "fields", vErr.FieldErrors)
		return CreateRideResult{}, vErr
	}

	weekday := timeofday.WeekdayOf(s.now())
	if params.Weekday != nil {
		weekday = *params.Weekday
	}

	preferred := strings.TrimSpace(params.TargetDriver)
	if preferred == "" {
		if prefs, err := s.preferences.GetPreferences(ctx, params.PassengerUsername); err == nil && prefs.PreferredDriver != nil {
			preferred = *prefs.PreferredDriver
		}
	}

	matched, err := s.matcher.FindOnlineDrivers(ctx, MatchQuery{
		Area:            params.Area,
		Weekday:         weekday,
		TargetSeconds:   seconds,
		PreferredDriver: preferred,
		PreferredOnly:   params.PreferredOnly,
	})
	if err != nil {
		logger.Error("matching pass failed", "error", err)
		return CreateRideResult{}, err
	}
	if len(matched) == 0 {
		logger.Info("no drivers available")
		return CreateRideResult{}, ErrNoDriversAvailable
	}

	rideID, err := s.rides.CreateRide(ctx, persistence.Ride{
		PassengerUsername: params.PassengerUsername,
		Area:              params.Area,
		Time:              seconds,
		Weekday:           weekday,
		Status:            persistence.RideStatusPending,
	})
	if err != nil {
		logger.Error("ride insert failed", "error", err)
		return CreateRideResult{}, err
	}
	observability.RidesCreatedTotal.Inc()

	notice := NewRideNotice{
		Action:            EventNewRide,
		RideID:            rideID,
		PassengerUsername: params.PassengerUsername,
		Area:              params.Area,
		Time:              seconds,
		Weekday:           weekday,
	}
	// Fan-out must not block the requesting connection.
	go func(drivers []string) {
		for _, driver := range drivers {
			s.notifier.PushDriver(driver, notice)
		}
	}(matched)

	logger.Info("ride created", "ride_id", rideID, "notified", len(matched))
	return CreateRideResult{RideID: rideID, NotifiedDrivers: matched}, nil
}

// AcceptRide transitions a pending ride to accepted for the calling driver
// and notifies the passenger. Exactly one driver can win the transition.
func (s *RideService) AcceptRide(ctx context.Context, params AcceptRideParams) error {
	logger := serviceLogger(ctx, s.logger, "ride", "accept_ride", "ride_id", params.RideID, "driver", params.DriverUsername)

	if err := s.rides.MarkAccepted(ctx, params.RideID, params.DriverUsername, params.DriverIP, params.DriverPort); err != nil {
		return s.transitionError(logger, err)
	}

	ride, err := s.rides.GetRide(ctx, params.RideID)
	if err != nil {
		logger.Error("ride reload failed", "error", err)
		return err
	}

	s.notifier.PushPassenger(ride.PassengerUsername, RideAcceptedNotice{
		Action:         EventRideAccepted,
		RideID:         ride.ID,
		DriverUsername: params.DriverUsername,
		DriverIP:       params.DriverIP,
		DriverPort:     params.DriverPort,
	})

	logger.Info("ride accepted")
	return nil
}

// DeclineRide transitions a pending ride to declined and notifies the
// passenger which driver turned it down.
func (s *RideService) DeclineRide(ctx context.Context, rideID int64, driverUsername string) error {
	logger := serviceLogger(ctx, s.logger, "ride", "decline_ride", "ride_id", rideID, "driver", driverUsername)

	if err := s.rides.MarkDeclined(ctx, rideID); err != nil {
		return s.transitionError(logger, err)
	}

	ride, err := s.rides.GetRide(ctx, rideID)
	if err != nil {
		logger.Error("ride reload failed", "error", err)
		return err
	}

	s.notifier.PushPassenger(ride.PassengerUsername, RideDeclinedNotice{
		Action:         EventRideDeclined,
		RideID:         ride.ID,
		DriverUsername: driverUsername,
	})

	logger.Info("ride declined")
	return nil
}

// CompleteRide transitions an accepted ride to completed. Only the driver
// who accepted may complete it.
func (s *RideService) CompleteRide(ctx context.Context, rideID int64, driverUsername string) error {
	logger := serviceLogger(ctx, s.logger, "ride", "complete_ride", "ride_id", rideID, "driver", driverUsername)

	if err := s.rides.MarkCompleted(ctx, rideID, driverUsername); err != nil {
		return s.transitionError(logger, err)
	}

	ride, err := s.rides.GetRide(ctx, rideID)
	if err != nil {
		logger.Error("ride reload failed", "error", err)
		return err
	}

	s.notifier.PushPassenger(ride.PassengerUsername, RideCompletedNotice{
		Action:            EventRideCompleted,
		RideID:            ride.ID,
		PassengerUsername: ride.PassengerUsername,
		DriverUsername:    driverUsername,
	})

	logger.Info("ride completed")
	return nil
}

// PendingRides returns the pending requests in an area, oldest first.
func (s *RideService) PendingRides(ctx context.Context, area string) ([]persistence.Ride, error) {
	return s.rides.PendingInArea(ctx, area)
}

// RideHistory returns the user's rides in their given role, each enriched
// with the latest rating in both directions for that ride.
func (s *RideService) RideHistory(ctx context.Context, username string, role persistence.Role) ([]RideRecord, error) {
	logger := serviceLogger(ctx, s.logger, "ride", "ride_history", "username", username, "role", role)

	rides, err := s.rides.RidesForUser(ctx, username, role)
	if err != nil {
		logger.Error("history lookup failed", "error", err)
		return nil, err
	}

	records := make([]RideRecord, 0, len(rides))
	for _, ride := range rides {
		record := RideRecord{Ride: ride}
		if other := counterpart(ride, username); other != "" {
			if score, err := s.ratings.LatestScore(ctx, ride.ID, username, other); err == nil {
				record.MyRating = score
			}
			if score, err := s.ratings.LatestScore(ctx, ride.ID, other, username); err == nil {
				record.TheirRating = score
			}
		}
		records = append(records, record)
	}
	return records, nil
}

// SubmitRating appends a 1-5 score from rater to ratee for a ride.
func (s *RideService) SubmitRating(ctx context.Context, rating persistence.Rating) error {
	logger := serviceLogger(ctx, s.logger, "ride", "submit_rating", "ride_id", rating.RideID, "rater", rating.RaterUsername)

	vErr := &ValidationError{}
	if rating.Score < 1 || rating.Score > 5 {
		vErr.add("score", "Score must be between 1 and 5.")
	}
	if strings.TrimSpace(rating.RateeUsername) == "" {
		vErr.add("ratee_username", "Ratee is required.")
	}
	if vErr.HasErrors() {
		logger.Warn("rating rejected", "fields", vErr.FieldErrors)
		return vErr
	}

	if err := s.ratings.RecordRating(ctx, rating); err != nil {
		logger.Error("rating insert failed", "error", err)
		return err
	}

	logger.Info("rating recorded", "score", rating.Score)
	return nil
}

// AverageRating returns the mean score a user has received, nil when the
// user has never been rated.
func (s *RideService) AverageRating(ctx context.Context, username string) (*float64, error) {
	return s.ratings.AverageRating(ctx, username)
}

func (s *RideService) transitionError(logger *slog.Logger, err error) error {
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		logger.Warn("ride not found")
		return ErrNotFound
	case errors.Is(err, persistence.ErrConflict):
		logger.Warn("transition lost", "error_kind", "conflict")
		return ErrConflict
	default:
		logger.Error("transition failed", "error", err)
		return err
	}
}

func counterpart(ride persistence.Ride, username string) string {
	if ride.PassengerUsername == username {
		if ride.DriverUsername != nil {
			return *ride.DriverUsername
		}
		return ""
	}
	return ride.PassengerUsername
}
