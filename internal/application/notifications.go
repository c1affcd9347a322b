package application

// Push payload shapes. Every notice carries its action so clients can
// dispatch on a single field, the same field request responses echo.

const (
	EventNewRide              = "new_ride"
	EventRideAccepted         = "ride_accepted"
	EventRideDeclined         = "ride_declined"
	EventRideCompleted        = "ride_completed"
	EventScheduledRideCreated = "scheduled_ride_created"
	EventScheduledRideUpdated = "scheduled_ride_updated"
)

// NewRideNotice tells an eligible driver about a fresh ride request.
type NewRideNotice struct {
	Action            string `json:"action"`
	RideID            int64  `json:"ride_id"`
	PassengerUsername string `json:"passenger_username"`
	Area              string `json:"area"`
	Time              int    `json:"time"`
	Weekday           int    `json:"weekday"`
}

func (n NewRideNotice) Event() string { return n.Action }

// RideAcceptedNotice tells the passenger a driver took their ride.
type RideAcceptedNotice struct {
	Action         string  `json:"action"`
	RideID         int64   `json:"ride_id"`
	DriverUsername string  `json:"driver_username"`
	DriverIP       *string `json:"driver_ip"`
	DriverPort     *int    `json:"driver_port"`
}

func (n RideAcceptedNotice) Event() string { return n.Action }

// RideDeclinedNotice tells the passenger a driver turned their ride down.
type RideDeclinedNotice struct {
	Action         string `json:"action"`
	RideID         int64  `json:"ride_id"`
	DriverUsername string `json:"driver_username"`
}

func (n RideDeclinedNotice) Event() string { return n.Action }

// RideCompletedNotice tells the passenger the ride finished, unlocking the
// rating flow on both ends.
type RideCompletedNotice struct {
	Action            string `json:"action"`
	RideID            int64  `json:"ride_id"`
	PassengerUsername string `json:"passenger_username"`
	DriverUsername    string `json:"driver_username"`
}

func (n RideCompletedNotice) Event() string { return n.Action }

// ScheduledRideSummary mirrors a booking on the wire. Time keeps the text
// the passenger typed, not the parsed seconds.
type ScheduledRideSummary struct {
	ID                int64  `json:"id"`
	PassengerUsername string `json:"passenger_username"`
	DriverUsername    string `json:"driver_username"`
	Area              string `json:"area"`
	Date              string `json:"date"`
	Time              string `json:"time"`
}

// ScheduledRideCreatedNotice tells the chosen driver about a new booking.
type ScheduledRideCreatedNotice struct {
	Action          string               `json:"action"`
	ScheduledRideID int64                `json:"scheduled_ride_id"`
	Ride            ScheduledRideSummary `json:"ride"`
}

func (n ScheduledRideCreatedNotice) Event() string { return n.Action }

// ScheduledRideUpdatedNotice tells the other party about a status change.
// Only the counterpart's username is set, depending on who is notified.
type ScheduledRideUpdatedNotice struct {
	Action            string `json:"action"`
	RideID            int64  `json:"ride_id"`
	Status            string `json:"status"`
	DriverUsername    string `json:"driver_username,omitempty"`
	PassengerUsername string `json:"passenger_username,omitempty"`
}

func (n ScheduledRideUpdatedNotice) Event() string { return n.Action }
