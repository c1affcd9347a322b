package application

import (
	"context"

	"github.com/example/campus-rideshare/internal/persistence"
	"github.com/example/campus-rideshare/internal/presence"
)

// UserRepository captures the persistence operations needed by the user service.
type UserRepository interface {
	CreateUser(ctx context.Context, user persistence.User) error
	GetUserByUsername(ctx context.Context, username string) (persistence.User, error)
	UpdateProfile(ctx context.Context, update persistence.ProfileUpdate) error
	DriversInArea(ctx context.Context, area string) ([]persistence.DriverSchedule, error)
	ListDrivers(ctx context.Context, area string) ([]persistence.DriverListing, error)
}

// RideRepository captures the ride lifecycle operations the ride service uses.
type RideRepository interface {
	CreateRide(ctx context.Context, ride persistence.Ride) (int64, error)
	GetRide(ctx context.Context, id int64) (persistence.Ride, error)
	MarkAccepted(ctx context.Context, id int64, driver string, ip *string, port *int) error
	MarkDeclined(ctx context.Context, id int64) error
	MarkCompleted(ctx context.Context, id int64, driver string) error
	PendingInArea(ctx context.Context, area string) ([]persistence.Ride, error)
	RidesForUser(ctx context.Context, username string, role persistence.Role) ([]persistence.Ride, error)
}

// ScheduledRideRepository captures storage for rides booked in advance.
type ScheduledRideRepository interface {
	CreateScheduledRide(ctx context.Context, ride persistence.ScheduledRide) (int64, error)
	GetScheduledRide(ctx context.Context, id int64) (persistence.ScheduledRide, error)
	SetStatus(ctx context.Context, id int64, fromStatus, toStatus string) error
	ScheduledRidesForUser(ctx context.Context, username string, role persistence.Role) ([]persistence.ScheduledRide, error)
}

// RatingRepository captures the append-only rating log.
type RatingRepository interface {
	RecordRating(ctx context.Context, rating persistence.Rating) error
	AverageRating(ctx context.Context, username string) (*float64, error)
	LatestScore(ctx context.Context, rideID int64, rater, ratee string) (*float64, error)
}

// PreferencesRepository captures per-user UI and matching preferences.
type PreferencesRepository interface {
	GetPreferences(ctx context.Context, username string) (persistence.Preferences, error)
	SavePreferences(ctx context.Context, username string, prefs persistence.Preferences) error
}

// PresenceView is the read side of the connection registry.
type PresenceView interface {
	IsOnlineAvailable(username string) bool
	DriverStatus(username string) (online bool, status presence.Status)
}

// Notice is a push message delivered outside the request/response cycle.
// Event is the action value the payload carries, used for metrics labels.
type Notice interface {
	Event() string
}

// Notifier delivers push notices to connected peers. Delivery is best
// effort; an offline peer simply misses the notice.
type Notifier interface {
	PushDriver(username string, notice Notice)
	PushPassenger(username string, notice Notice)
}

// RegisterParams is the input for UserService.Register.
type RegisterParams struct {
	Username       string
	Password       string
	Name           string
	Email          string
	Area           string
	Role           persistence.Role
	WeeklySchedule map[string]string
}

// Profile is the public view of a user account, never carrying the
// password hash.
type Profile struct {
	Username       string
	Name           string
	Email          string
	Area           string
	Role           persistence.Role
	WeeklySchedule map[string]string
}

// UpdateProfileParams is the input for UserService.UpdateProfile. Nil
// pointer fields leave the stored value untouched.
type UpdateProfileParams struct {
	Username       string
	Name           *string
	Email          *string
	Area           *string
	Password       *string
	WeeklySchedule map[string]string
}

// DriverInfo is a catalog row enriched with live presence.
type DriverInfo struct {
	Username string
	Name     string
	Area     string
	Rating   *float64
	Online   bool
	Status   presence.Status
}

// MatchQuery describes one matching pass over the driver pool.
type MatchQuery struct {
	Area            string
	Weekday         int
	TargetSeconds   int
	PreferredDriver string
	PreferredOnly   bool
}

// CreateRideParams is the input for RideService.CreateRide.
type CreateRideParams struct {
	PassengerUsername string
	Area              string
	Time              string
	Weekday           *int
	TargetDriver      string
	PreferredOnly     bool
}

// CreateRideResult reports the persisted ride and the drivers notified.
type CreateRideResult struct {
	RideID          int64
	NotifiedDrivers []string
}

// AcceptRideParams is the input for RideService.AcceptRide. The optional
// address fields let the passenger contact the driver directly.
type AcceptRideParams struct {
	RideID         int64
	DriverUsername string
	DriverIP       *string
	DriverPort     *int
}

// RideRecord is a history row with the caller's rating of the counterpart
// and the counterpart's rating of the caller, when either exists.
type RideRecord struct {
	Ride        persistence.Ride
	MyRating    *float64
	TheirRating *float64
}

// CreateScheduledRideParams is the input for ScheduleService.CreateScheduledRide.
type CreateScheduledRideParams struct {
	PassengerUsername string
	DriverUsername    string
	Area              string
	Date              string
	Time              string
}
