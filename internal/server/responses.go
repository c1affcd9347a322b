package server

import (
	"errors"
	"sort"
	"strings"

	"github.com/example/campus-rideshare/internal/application"
	"github.com/example/campus-rideshare/internal/persistence"
	"github.com/example/campus-rideshare/internal/presence"
)

// baseResponse is the synchronous reply envelope. It carries a status field
// and never an action field; that asymmetry is how clients tell replies and
// pushes apart on a shared connection.
type baseResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (b baseResponse) statusValue() string { return b.Status }

// statusCarrier lets the session loop label metrics without knowing the
// concrete response type.
type statusCarrier interface {
	statusValue() string
}

func successResponse(message string) baseResponse {
	return baseResponse{Status: "success", Message: message}
}

func errorResponse(message string) baseResponse {
	return baseResponse{Status: "error", Message: message}
}

type loginResponse struct {
	baseResponse
	Name           string             `json:"name"`
	Email          string             `json:"email"`
	Username       string             `json:"username"`
	Area           string             `json:"area"`
	Role           string             `json:"role"`
	WeeklySchedule map[string]string  `json:"weekly_schedule"`
	Preferences    preferencesPayload `json:"preferences"`
}

type profileResponse struct {
	baseResponse
	Name           string            `json:"name"`
	Email          string            `json:"email"`
	Username       string            `json:"username"`
	Area           string            `json:"area"`
	Role           string            `json:"role"`
	WeeklySchedule map[string]string `json:"weekly_schedule"`
}

type createRideResponse struct {
	baseResponse
	RideID int64 `json:"ride_id"`
}

type driverPayload struct {
	Username string   `json:"username"`
	Name     string   `json:"name"`
	Area     string   `json:"area"`
	Rating   *float64 `json:"rating"`
	Online   bool     `json:"online"`
	Status   string   `json:"status"`
}

type driversResponse struct {
	baseResponse
	Drivers []driverPayload `json:"drivers"`
}

// candidatePayload is a search result row; presence is deliberately absent
// because future bookings do not require the driver to be online now.
type candidatePayload struct {
	Username string   `json:"username"`
	Name     string   `json:"name"`
	Area     string   `json:"area"`
	Rating   *float64 `json:"rating"`
}

type candidatesResponse struct {
	baseResponse
	Drivers []candidatePayload `json:"drivers"`
}

type ridePayload struct {
	ID                int64   `json:"id"`
	PassengerUsername string  `json:"passenger_username"`
	Area              string  `json:"area"`
	Time              int     `json:"time"`
	Weekday           int     `json:"weekday"`
	Status            string  `json:"status"`
	DriverUsername    *string `json:"driver_username"`
	DriverIP          *string `json:"driver_ip"`
	DriverPort        *int    `json:"driver_port"`
}

type ridesResponse struct {
	baseResponse
	Rides []ridePayload `json:"rides"`
}

type historyRidePayload struct {
	ridePayload
	MyRating    *float64 `json:"my_rating"`
	TheirRating *float64 `json:"their_rating"`
}

type historyResponse struct {
	baseResponse
	Rides []historyRidePayload `json:"rides"`
}

type ratingResponse struct {
	baseResponse
	Rating *float64 `json:"rating"`
}

type setStatusResponse struct {
	baseResponse
	StatusValue string `json:"status_value"`
}

type preferencesResponse struct {
	baseResponse
	Preferences preferencesPayload `json:"preferences"`
}

type createScheduledRideResponse struct {
	baseResponse
	// Both keys carry the same id; older clients read ride_id.
	ScheduledRideID int64 `json:"scheduled_ride_id"`
	RideID          int64 `json:"ride_id"`
}

type scheduledRidePayload struct {
	ID                int64  `json:"id"`
	PassengerUsername string `json:"passenger_username"`
	DriverUsername    string `json:"driver_username"`
	Area              string `json:"area"`
	Date              string `json:"date"`
	Time              int    `json:"time"`
	Weekday           int    `json:"weekday"`
	Status            string `json:"status"`
}

type scheduledRidesResponse struct {
	baseResponse
	Rides []scheduledRidePayload `json:"rides"`
}

// preferencesPayload mirrors the stored preferences row plus the theme alias
// clients may read instead of theme_name.
type preferencesPayload struct {
	SidebarColor     string  `json:"sidebar_color"`
	BackgroundColor  string  `json:"background_color"`
	ButtonColor      string  `json:"button_color"`
	ButtonHoverColor string  `json:"button_hover_color"`
	TextColor        string  `json:"text_color"`
	ThemeName        string  `json:"theme_name"`
	Theme            string  `json:"theme"`
	FontSize         int     `json:"font_size"`
	PreferredDriver  *string `json:"preferred_driver_username"`
}

func preferencesPayloadFrom(prefs persistence.Preferences) preferencesPayload {
	return preferencesPayload{
		SidebarColor:     prefs.SidebarColor,
		BackgroundColor:  prefs.BackgroundColor,
		ButtonColor:      prefs.ButtonColor,
		ButtonHoverColor: prefs.ButtonHoverColor,
		TextColor:        prefs.TextColor,
		ThemeName:        prefs.ThemeName,
		Theme:            prefs.ThemeName,
		FontSize:         prefs.FontSize,
		PreferredDriver:  prefs.PreferredDriver,
	}
}

// preferencesFromMap builds a full preferences row from a loosely typed
// client map, falling back to defaults for anything missing. Either "theme"
// or "theme_name" names the theme; "theme" wins when both are present.
func preferencesFromMap(raw map[string]any) persistence.Preferences {
	prefs := persistence.DefaultPreferences()
	if raw == nil {
		return prefs
	}

	if v, ok := stringValue(raw, "sidebar_color"); ok {
		prefs.SidebarColor = v
	}
	if v, ok := stringValue(raw, "background_color"); ok {
		prefs.BackgroundColor = v
	}
	if v, ok := stringValue(raw, "button_color"); ok {
		prefs.ButtonColor = v
	}
	if v, ok := stringValue(raw, "button_hover_color"); ok {
		prefs.ButtonHoverColor = v
	}
	if v, ok := stringValue(raw, "text_color"); ok {
		prefs.TextColor = v
	}
	if v, ok := stringValue(raw, "theme"); ok {
		prefs.ThemeName = v
	} else if v, ok := stringValue(raw, "theme_name"); ok {
		prefs.ThemeName = v
	}
	if v, ok := raw["font_size"].(float64); ok && v > 0 {
		prefs.FontSize = int(v)
	}
	if v, ok := stringValue(raw, "preferred_driver_username"); ok {
		prefs.PreferredDriver = &v
	}
	return prefs
}

func stringValue(raw map[string]any, key string) (string, bool) {
	v, ok := raw[key].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

func ridePayloadFrom(ride persistence.Ride) ridePayload {
	return ridePayload{
		ID:                ride.ID,
		PassengerUsername: ride.PassengerUsername,
		Area:              ride.Area,
		Time:              ride.Time,
		Weekday:           ride.Weekday,
		Status:            ride.Status,
		DriverUsername:    ride.DriverUsername,
		DriverIP:          ride.DriverIP,
		DriverPort:        ride.DriverPort,
	}
}

func scheduledRidePayloadFrom(ride persistence.ScheduledRide) scheduledRidePayload {
	return scheduledRidePayload{
		ID:                ride.ID,
		PassengerUsername: ride.PassengerUsername,
		DriverUsername:    ride.DriverUsername,
		Area:              ride.Area,
		Date:              ride.Date,
		Time:              ride.Time,
		Weekday:           ride.Weekday,
		Status:            ride.Status,
	}
}

func driverPayloadFrom(info application.DriverInfo) driverPayload {
	return driverPayload{
		Username: info.Username,
		Name:     info.Name,
		Area:     info.Area,
		Rating:   info.Rating,
		Online:   info.Online,
		Status:   string(info.Status),
	}
}

// serviceErrorResponse turns an application error into the wire reply,
// using the fallback message for sentinels the action has no specific text
// for. Validation messages are already written for end users.
func serviceErrorResponse(err error, fallback string) baseResponse {
	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		return errorResponse(validationMessage(vErr))
	}

	switch {
	case errors.Is(err, application.ErrInvalidCredentials):
		return errorResponse("Invalid username or password")
	case errors.Is(err, application.ErrNotFound),
		errors.Is(err, application.ErrConflict),
		errors.Is(err, application.ErrUnauthorized),
		errors.Is(err, application.ErrNoDriversAvailable):
		return errorResponse(fallback)
	case errors.Is(err, presence.ErrNotConnectedDriver):
		return errorResponse("Driver not connected or username missing.")
	}
	return errorResponse("Internal server error.")
}

// scheduledErrorResponse maps scheduled-ride errors to the messages clients
// key their dialogs on; role picks the ownership wording.
func scheduledErrorResponse(err error, role string) baseResponse {
	switch {
	case errors.Is(err, application.ErrNotFound):
		return errorResponse("Scheduled ride not found.")
	case errors.Is(err, application.ErrUnauthorized):
		if role == "passenger" {
			return errorResponse("You are not the passenger for this ride.")
		}
		return errorResponse("You are not the driver for this ride.")
	case errors.Is(err, application.ErrConflict):
		return errorResponse("Could not update scheduled ride.")
	}
	return serviceErrorResponse(err, "Could not update scheduled ride.")
}

func validationMessage(vErr *application.ValidationError) string {
	if vErr == nil || len(vErr.FieldErrors) == 0 {
		return "Invalid request."
	}
	messages := make([]string, 0, len(vErr.FieldErrors))
	for _, message := range vErr.FieldErrors {
		messages = append(messages, message)
	}
	sort.Strings(messages)
	return strings.Join(messages, " ")
}
