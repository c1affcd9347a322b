package server

// Request payloads, one per action. Every inbound line carries an "action"
// discriminator; the remaining fields are unmarshalled into one of these.

type actionEnvelope struct {
	Action string `json:"action"`
}

type registerRequest struct {
	Username       string            `json:"username"`
	Password       string            `json:"password"`
	Name           string            `json:"name"`
	Email          string            `json:"email"`
	Area           string            `json:"area"`
	Role           string            `json:"role"`
	WeeklySchedule map[string]string `json:"weekly_schedule"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type getProfileRequest struct {
	Username string `json:"username"`
}

type updateProfileRequest struct {
	Username       string            `json:"username"`
	Name           *string           `json:"name"`
	Email          *string           `json:"email"`
	Area           *string           `json:"area"`
	Password       *string           `json:"password"`
	WeeklySchedule map[string]string `json:"weekly_schedule"`
}

type createRideRequest struct {
	PassengerUsername string `json:"passenger_username"`
	Area              string `json:"area"`
	Time              string `json:"time"`
	Weekday           *int   `json:"weekday"`
	TargetDriver      string `json:"target_driver_username"`
	PreferredOnly     bool   `json:"preferred_only"`
}

type acceptRideRequest struct {
	RideID     int64   `json:"ride_id"`
	Username   string  `json:"username"`
	DriverIP   *string `json:"driver_ip"`
	DriverPort *int    `json:"driver_port"`
}

type declineRideRequest struct {
	RideID   *int64 `json:"ride_id"`
	Username string `json:"username"`
}

type completeRideRequest struct {
	RideID   int64  `json:"ride_id"`
	Username string `json:"username"`
}

type pendingRidesRequest struct {
	Area string `json:"area"`
}

type rideHistoryRequest struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type submitRatingRequest struct {
	RideID        int64  `json:"ride_id"`
	RaterUsername string `json:"rater_username"`
	RateeUsername string `json:"ratee_username"`
	Score         int    `json:"score"`
	Comment       string `json:"comment"`
}

type getRatingRequest struct {
	Username string `json:"username"`
}

type listDriversRequest struct {
	Area string `json:"area"`
}

type searchScheduledDriversRequest struct {
	Area string `json:"area"`
	Date string `json:"date"`
	Time string `json:"time"`
}

type createScheduledRideRequest struct {
	Area              string `json:"area"`
	Date              string `json:"date"`
	Time              string `json:"time"`
	PassengerUsername string `json:"passenger_username"`
	DriverUsername    string `json:"driver_username"`
}

type scheduledRidesRequest struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type scheduledRideActionRequest struct {
	RideID   *int64 `json:"ride_id"`
	Username string `json:"username"`
}

type setStatusRequest struct {
	Username string `json:"username"`
	Status   string `json:"status"`
}

type preferencesRequest struct {
	Username    string         `json:"username"`
	Preferences map[string]any `json:"preferences"`
}

type disconnectRequest struct {
	Username string `json:"username"`
}
