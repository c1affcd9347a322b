package application

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/example/campus-rideshare/internal/persistence"
	"github.com/example/campus-rideshare/internal/timeofday"
)

// DriverCatalog is the slice of user storage the schedule service needs to
// present candidate drivers.
type DriverCatalog interface {
	ListDrivers(ctx context.Context, area string) ([]persistence.DriverListing, error)
}

// ScheduleMatcher finds drivers whose weekly schedule fits a concrete date
// and time, regardless of whether they are connected right now.
type ScheduleMatcher interface {
	ScheduleCandidates(ctx context.Context, area string, weekday, targetSeconds int) ([]string, error)
}

// ScheduleService owns rides booked in advance: candidate search, booking,
// and the driver/passenger response flow.
type ScheduleService struct {
	scheduled ScheduledRideRepository
	catalog   DriverCatalog
	matcher   ScheduleMatcher
	notifier  Notifier
	now       func() time.Time
	logger    *slog.Logger
}

// NewScheduleService wires dependencies for the schedule service.
func NewScheduleService(scheduled ScheduledRideRepository, catalog DriverCatalog, matcher ScheduleMatcher, notifier Notifier, logger *slog.Logger) *ScheduleService {
	return &ScheduleService{
		scheduled: scheduled,
		catalog:   catalog,
		matcher:   matcher,
		notifier:  notifier,
		now:       time.Now,
		logger:    defaultLogger(logger),
	}
}

const dateLayout = "2006-01-02"

// SearchDrivers returns the catalog rows for drivers whose schedule fits
// the given date and time in the area. Offline drivers are included; the
// booking happens in the future.
func (s *ScheduleService) SearchDrivers(ctx context.Context, area, date, departure string) ([]persistence.DriverListing, error) {
	logger := serviceLogger(ctx, s.logger, "schedule", "search_drivers", "area", area, "date", date)

	weekday, seconds, vErr := parseDateAndTime(date, departure)
	if vErr.HasErrors() {
		logger.Warn("search rejected", "fields", vErr.FieldErrors)
		return nil, vErr
	}

	candidates, err := s.matcher.ScheduleCandidates(ctx, area, weekday, seconds)
	if err != nil {
		logger.Error("candidate search failed", "error", err)
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	listings, err := s.catalog.ListDrivers(ctx, area)
	if err != nil {
		logger.Error("driver listing failed", "error", err)
		return nil, err
	}

	eligible := make(map[string]struct{}, len(candidates))
	for _, username := range candidates {
		eligible[username] = struct{}{}
	}

	matched := make([]persistence.DriverListing, 0, len(candidates))
	for _, listing := range listings {
		if _, ok := eligible[listing.Username]; ok {
			matched = append(matched, listing)
		}
	}
	return matched, nil
}

// CreateScheduledRide books a future ride with a specific driver. The
// driver's schedule is re-validated against the requested slot so a stale
// search result cannot book an ineligible driver.
func (s *ScheduleService) CreateScheduledRide(ctx context.Context, params CreateScheduledRideParams) (ScheduledRideSummary, error) {
	logger := serviceLogger(ctx, s.logger, "schedule", "create_scheduled_ride",
		"passenger", params.PassengerUsername, "driver", params.DriverUsername)

	vErr := &ValidationError{}
	if strings.TrimSpace(params.DriverUsername) == "" {
		vErr.add("driver_username", "Driver is required.")
	}
	if strings.TrimSpace(params.Area) == "" {
		vErr.add("area", "Area is required.")
	}
	weekday, seconds, parseErr := parseDateAndTime(params.Date, params.Time)
	if parseErr.HasErrors() {
		for field, message := range parseErr.FieldErrors {
			vErr.add(field, message)
		}
	}
	if vErr.HasErrors() {
		logger.Warn("booking rejected", "fields", vErr.FieldErrors)
		return ScheduledRideSummary{}, vErr
	}

	candidates, err := s.matcher.ScheduleCandidates(ctx, params.Area, weekday, seconds)
	if err != nil {
		logger.Error("candidate search failed", "error", err)
		return ScheduledRideSummary{}, err
	}
	eligible := false
	for _, username := range candidates {
		if username == params.DriverUsername {
			eligible = true
			break
		}
	}
	if !eligible {
		logger.Warn("driver schedule does not fit the requested slot")
		vErr.add("driver_username", "Driver is not available at that time.")
		return ScheduledRideSummary{}, vErr
	}

	id, err := s.scheduled.CreateScheduledRide(ctx, persistence.ScheduledRide{
		PassengerUsername: params.PassengerUsername,
		DriverUsername:    params.DriverUsername,
		Area:              params.Area,
		Date:              params.Date,
		Time:              seconds,
		Weekday:           weekday,
		Status:            persistence.ScheduledStatusScheduled,
		CreatedAt:         s.now().UTC(),
	})
	if err != nil {
		logger.Error("scheduled ride insert failed", "error", err)
		return ScheduledRideSummary{}, err
	}

	summary := ScheduledRideSummary{
		ID:                id,
		PassengerUsername: params.PassengerUsername,
		DriverUsername:    params.DriverUsername,
		Area:              params.Area,
		Date:              params.Date,
		Time:              params.Time,
	}

	s.notifier.PushDriver(params.DriverUsername, ScheduledRideCreatedNotice{
		Action:          EventScheduledRideCreated,
		ScheduledRideID: id,
		Ride:            summary,
	})

	logger.Info("scheduled ride created", "scheduled_ride_id", id)
	return summary, nil
}

// ScheduledRides returns the user's bookings in their given role, soonest
// first.
func (s *ScheduleService) ScheduledRides(ctx context.Context, username string, role persistence.Role) ([]persistence.ScheduledRide, error) {
	return s.scheduled.ScheduledRidesForUser(ctx, username, role)
}

// DriverRespond lets the booked driver accept or decline a pending booking.
// The passenger is notified of the outcome.
func (s *ScheduleService) DriverRespond(ctx context.Context, scheduledRideID int64, driverUsername string, accept bool) error {
	operation := "decline_scheduled_ride"
	toStatus := persistence.ScheduledStatusDeclined
	if accept {
		operation = "accept_scheduled_ride"
		toStatus = persistence.ScheduledStatusAccepted
	}
	logger := serviceLogger(ctx, s.logger, "schedule", operation, "scheduled_ride_id", scheduledRideID, "driver", driverUsername)

	ride, err := s.scheduled.GetScheduledRide(ctx, scheduledRideID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			logger.Warn("scheduled ride not found")
			return ErrNotFound
		}
		logger.Error("scheduled ride lookup failed", "error", err)
		return err
	}
	if ride.DriverUsername != driverUsername {
		logger.Warn("responder is not the booked driver")
		return ErrUnauthorized
	}

	if err := s.scheduled.SetStatus(ctx, scheduledRideID, persistence.ScheduledStatusScheduled, toStatus); err != nil {
		return s.transitionError(logger, err)
	}

	s.notifier.PushPassenger(ride.PassengerUsername, ScheduledRideUpdatedNotice{
		Action:         EventScheduledRideUpdated,
		RideID:         scheduledRideID,
		Status:         toStatus,
		DriverUsername: driverUsername,
	})

	logger.Info("scheduled ride updated", "status", toStatus)
	return nil
}

// PassengerCancel lets the booking passenger cancel regardless of whether
// the driver has already responded. The driver is notified.
func (s *ScheduleService) PassengerCancel(ctx context.Context, scheduledRideID int64, passengerUsername string) error {
	logger := serviceLogger(ctx, s.logger, "schedule", "cancel_scheduled_ride", "scheduled_ride_id", scheduledRideID, "passenger", passengerUsername)

	ride, err := s.scheduled.GetScheduledRide(ctx, scheduledRideID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			logger.Warn("scheduled ride not found")
			return ErrNotFound
		}
		logger.Error("scheduled ride lookup failed", "error", err)
		return err
	}
	if ride.PassengerUsername != passengerUsername {
		logger.Warn("caller is not the booking passenger")
		return ErrUnauthorized
	}

	if err := s.scheduled.SetStatus(ctx, scheduledRideID, "", persistence.ScheduledStatusCanceled); err != nil {
		return s.transitionError(logger, err)
	}

	s.notifier.PushDriver(ride.DriverUsername, ScheduledRideUpdatedNotice{
		Action:            EventScheduledRideUpdated,
		RideID:            scheduledRideID,
		Status:            persistence.ScheduledStatusCanceled,
		PassengerUsername: passengerUsername,
	})

	logger.Info("scheduled ride canceled")
	return nil
}

func (s *ScheduleService) transitionError(logger *slog.Logger, err error) error {
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		logger.Warn("scheduled ride not found")
		return ErrNotFound
	case errors.Is(err, persistence.ErrConflict):
		logger.Warn("scheduled ride already resolved")
		return ErrConflict
	default:
		logger.Error("status update failed", "error", err)
		return err
	}
}

func parseDateAndTime(date, departure string) (weekday, seconds int, vErr *ValidationError) {
	vErr = &ValidationError{}

	day, err := time.Parse(dateLayout, strings.TrimSpace(date))
	if err != nil {
		vErr.add("date", "Invalid date format. Use YYYY-MM-DD.")
	} else {
		weekday = timeofday.WeekdayOf(day)
	}

	seconds, err = timeofday.ParseSeconds(departure)
	if err != nil {
		vErr.add("time", "Invalid time format. Use HH:MM, HH:MM:SS, or H:MM AM/PM.")
	}
	return weekday, seconds, vErr
}
