package persistence

import "time"

// Role discriminates the two account kinds sharing the users table.
type Role string

const (
	RoleDriver    Role = "driver"
	RolePassenger Role = "passenger"
)

// Ride lifecycle states.
const (
	RideStatusPending   = "pending"
	RideStatusAccepted  = "accepted"
	RideStatusDeclined  = "declined"
	RideStatusCompleted = "completed"
)

// Scheduled ride lifecycle states.
const (
	ScheduledStatusScheduled = "scheduled"
	ScheduledStatusAccepted  = "accepted"
	ScheduledStatusDeclined  = "declined"
	ScheduledStatusCanceled  = "canceled"
)

// User is a registered account. WeeklySchedule maps weekday names to
// departure time strings and is only meaningful for drivers.
type User struct {
	ID             int64
	Username       string
	Name           string
	Email          string
	PasswordHash   string
	Area           string
	Role           Role
	WeeklySchedule map[string]string
	CreatedAt      time.Time
}

// ProfileUpdate carries the optional fields a profile update may change.
// Nil fields are left untouched; username and role are immutable.
type ProfileUpdate struct {
	Username       string
	Name           *string
	Email          *string
	Area           *string
	PasswordHash   *string
	WeeklySchedule map[string]string
}

// DriverSchedule is the matcher's view of a driver: identity plus the
// recurring weekly schedule to test against the request window.
type DriverSchedule struct {
	Username       string
	WeeklySchedule map[string]string
}

// DriverListing is a browsable driver row enriched with the mean of all
// ratings received. Rating is nil when the driver has never been rated.
type DriverListing struct {
	Username string
	Name     string
	Area     string
	Rating   *float64
}

// Ride is an on-demand, same-day ride request. The driver fields are set
// only once the ride has been accepted.
type Ride struct {
	ID                int64
	PassengerUsername string
	Area              string
	Time              int
	Weekday           int
	Status            string
	DriverUsername    *string
	DriverIP          *string
	DriverPort        *int
}

// ScheduledRide is a future ride booked with a specific driver; unlike Ride
// it never exists without an assigned driver.
type ScheduledRide struct {
	ID                int64
	PassengerUsername string
	DriverUsername    string
	Area              string
	Date              string
	Time              int
	Weekday           int
	Status            string
	CreatedAt         time.Time
}

// Rating is one append-only score a rater gave a ratee for a ride.
type Rating struct {
	ID            int64
	RideID        int64
	RaterUsername string
	RateeUsername string
	Score         int
	Comment       string
}

// Preferences is the per-user settings row. Most fields are UI cosmetics
// relayed untouched; PreferredDriver feeds the matcher.
type Preferences struct {
	SidebarColor     string
	BackgroundColor  string
	ButtonColor      string
	ButtonHoverColor string
	TextColor        string
	ThemeName        string
	FontSize         int
	PreferredDriver  *string
}

// DefaultPreferences returns the settings applied on a user's first access.
func DefaultPreferences() Preferences {
	return Preferences{
		SidebarColor:     "#2c3e50",
		BackgroundColor:  "#FFEAEC",
		ButtonColor:      "#2c3e50",
		ButtonHoverColor: "#34495e",
		TextColor:        "white",
		ThemeName:        "default",
		FontSize:         14,
	}
}
