package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/example/campus-rideshare/internal/application"
	"github.com/example/campus-rideshare/internal/logging"
	"github.com/example/campus-rideshare/internal/observability"
	"github.com/example/campus-rideshare/internal/persistence"
	"github.com/example/campus-rideshare/internal/presence"
)

// maxLineBytes bounds a single request line; anything larger is a protocol
// violation and closes the connection.
const maxLineBytes = 1 << 20

type handlerFunc func(ctx context.Context, raw json.RawMessage) any

// session is one client connection. It owns all outbound writes on the
// socket, so synchronous replies and asynchronous pushes never interleave
// mid-message, and it implements presence.Peer for push delivery.
type session struct {
	id        string
	conn      net.Conn
	users     *application.UserService
	rides     *application.RideService
	schedules *application.ScheduleService
	registry  *presence.Registry
	logger    *slog.Logger

	writeMu sync.Mutex
	enc     *json.Encoder

	username string
	role     persistence.Role
	leaving  bool

	handlers map[string]handlerFunc
}

func newSession(conn net.Conn, srv *Server) *session {
	s := &session{
		id:        uuid.NewString(),
		conn:      conn,
		users:     srv.users,
		rides:     srv.rides,
		schedules: srv.schedules,
		registry:  srv.registry,
		enc:       json.NewEncoder(conn),
	}
	s.logger = srv.logger.With("conn_id", s.id, "remote_addr", conn.RemoteAddr().String())
	s.handlers = map[string]handlerFunc{
		"register":                        s.handleRegister,
		"login":                           s.handleLogin,
		"get_profile":                     s.handleGetProfile,
		"update_profile":                  s.handleUpdateProfile,
		"create_ride":                     s.handleCreateRide,
		"accept_ride":                     s.handleAcceptRide,
		"decline_ride":                    s.handleDeclineRide,
		"complete_ride":                   s.handleCompleteRide,
		"get_pending_rides":               s.handleGetPendingRides,
		"get_ride_history":                s.handleGetRideHistory,
		"submit_rating":                   s.handleSubmitRating,
		"get_rating":                      s.handleGetRating,
		"list_drivers":                    s.handleListDrivers,
		"search_scheduled_drivers":        s.handleSearchScheduledDrivers,
		"create_scheduled_ride":           s.handleCreateScheduledRide,
		"get_scheduled_rides":             s.handleGetScheduledRides,
		"driver_accept_scheduled_ride":    s.handleDriverAcceptScheduledRide,
		"driver_decline_scheduled_ride":   s.handleDriverDeclineScheduledRide,
		"passenger_cancel_scheduled_ride": s.handlePassengerCancelScheduledRide,
		"set_status":                      s.handleSetStatus,
		"get_preferences":                 s.handleGetPreferences,
		"save_preferences":                s.handleSavePreferences,
		"disconnect":                      s.handleDisconnect,
	}
	return s
}

// Send writes one newline-delimited JSON message. Safe for concurrent use;
// pushes from other connections' workers land here.
func (s *session) Send(message any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.enc.Encode(message)
}

// run processes request lines until the peer disconnects, a protocol error
// occurs, or a disconnect action is handled. Strictly one request in flight
// per connection.
func (s *session) run(ctx context.Context) {
	defer s.close()

	ctx = logging.ContextWithLogger(ctx, s.logger)
	s.logger.Info("connection opened")

	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var env actionEnvelope
		if err := json.Unmarshal(line, &env); err != nil {
			// Malformed JSON means the transport is not trustworthy;
			// no error reply is attempted.
			s.logger.Warn("malformed request line, closing connection", "error", err)
			return
		}

		var response any
		if handler, ok := s.handlers[env.Action]; ok {
			response = handler(ctx, json.RawMessage(line))
		} else {
			s.logger.Warn("unknown action", "action", env.Action)
			response = errorResponse("Unknown action.")
		}

		if carrier, ok := response.(statusCarrier); ok {
			observability.RequestsTotal.WithLabelValues(env.Action, carrier.statusValue()).Inc()
		}
		if err := s.Send(response); err != nil {
			s.logger.Warn("response write failed", "action", env.Action, "error", err)
			return
		}
		if s.leaving {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		s.logger.Warn("connection read failed", "error", err)
	}
}

func (s *session) close() {
	if s.username != "" {
		s.registry.Unregister(s.username)
		s.username = ""
	}
	s.conn.Close()
	s.logger.Info("connection closed")
}

func (s *session) handleRegister(ctx context.Context, raw json.RawMessage) any {
	var req registerRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse("Invalid request.")
	}

	err := s.users.Register(ctx, application.RegisterParams{
		Username:       req.Username,
		Password:       req.Password,
		Name:           req.Name,
		Email:          req.Email,
		Area:           req.Area,
		Role:           persistence.Role(req.Role),
		WeeklySchedule: req.WeeklySchedule,
	})
	if err != nil {
		return serviceErrorResponse(err, "Unable to register.")
	}
	return successResponse("User registered successfully")
}

func (s *session) handleLogin(ctx context.Context, raw json.RawMessage) any {
	var req loginRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse("Invalid request.")
	}

	profile, err := s.users.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return serviceErrorResponse(err, "Invalid username or password")
	}

	// Bind identity and register presence. A second login on the same
	// connection simply rebinds; a login from elsewhere silently replaces
	// the previous handle.
	s.username = profile.Username
	s.role = profile.Role
	if profile.Role == persistence.RoleDriver {
		s.registry.RegisterDriver(profile.Username, s)
	} else {
		s.registry.RegisterPassenger(profile.Username, s)
	}

	prefs, err := s.users.Preferences(ctx, profile.Username)
	if err != nil {
		prefs = persistence.DefaultPreferences()
	}

	return loginResponse{
		baseResponse:   successResponse("Login successful"),
		Name:           profile.Name,
		Email:          profile.Email,
		Username:       profile.Username,
		Area:           profile.Area,
		Role:           string(profile.Role),
		WeeklySchedule: profile.WeeklySchedule,
		Preferences:    preferencesPayloadFrom(prefs),
	}
}

func (s *session) handleGetProfile(ctx context.Context, raw json.RawMessage) any {
	var req getProfileRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse("Invalid request.")
	}

	profile, err := s.users.Profile(ctx, req.Username)
	if err != nil {
		return serviceErrorResponse(err, "User not found")
	}
	return profileResponse{
		baseResponse:   successResponse(""),
		Name:           profile.Name,
		Email:          profile.Email,
		Username:       profile.Username,
		Area:           profile.Area,
		Role:           string(profile.Role),
		WeeklySchedule: profile.WeeklySchedule,
	}
}

func (s *session) handleUpdateProfile(ctx context.Context, raw json.RawMessage) any {
	var req updateProfileRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse("Invalid request.")
	}

	err := s.users.UpdateProfile(ctx, application.UpdateProfileParams{
		Username:       req.Username,
		Name:           req.Name,
		Email:          req.Email,
		Area:           req.Area,
		Password:       req.Password,
		WeeklySchedule: req.WeeklySchedule,
	})
	if err != nil {
		return serviceErrorResponse(err, "User not found")
	}
	return successResponse("Profile updated")
}

func (s *session) handleCreateRide(ctx context.Context, raw json.RawMessage) any {
	var req createRideRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse("Invalid request.")
	}

	result, err := s.rides.CreateRide(ctx, application.CreateRideParams{
		PassengerUsername: req.PassengerUsername,
		Area:              req.Area,
		Time:              req.Time,
		Weekday:           req.Weekday,
		TargetDriver:      req.TargetDriver,
		PreferredOnly:     req.PreferredOnly,
	})
	if err != nil {
		return serviceErrorResponse(err, "No drivers are currently available for that time in your area.")
	}
	return createRideResponse{
		baseResponse: successResponse("Ride request created successfully"),
		RideID:       result.RideID,
	}
}

func (s *session) handleAcceptRide(ctx context.Context, raw json.RawMessage) any {
	var req acceptRideRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse("Invalid request.")
	}

	err := s.rides.AcceptRide(ctx, application.AcceptRideParams{
		RideID:         req.RideID,
		DriverUsername: req.Username,
		DriverIP:       req.DriverIP,
		DriverPort:     req.DriverPort,
	})
	if err != nil {
		return serviceErrorResponse(err, "Ride already taken or invalid.")
	}
	return successResponse("Ride accepted.")
}

func (s *session) handleDeclineRide(ctx context.Context, raw json.RawMessage) any {
	var req declineRideRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse("Invalid request.")
	}
	if req.RideID == nil {
		return errorResponse("Missing ride_id")
	}

	if err := s.rides.DeclineRide(ctx, *req.RideID, req.Username); err != nil {
		return serviceErrorResponse(err, "Ride not found or not pending.")
	}
	return successResponse("Ride declined.")
}

func (s *session) handleCompleteRide(ctx context.Context, raw json.RawMessage) any {
	var req completeRideRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse("Invalid request.")
	}

	if err := s.rides.CompleteRide(ctx, req.RideID, req.Username); err != nil {
		return serviceErrorResponse(err, "Ride not found or cannot be completed.")
	}
	return successResponse("Ride completed.")
}

func (s *session) handleGetPendingRides(ctx context.Context, raw json.RawMessage) any {
	var req pendingRidesRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse("Invalid request.")
	}

	rides, err := s.rides.PendingRides(ctx, req.Area)
	if err != nil {
		return serviceErrorResponse(err, "Unable to load pending rides.")
	}

	payload := make([]ridePayload, 0, len(rides))
	for _, ride := range rides {
		payload = append(payload, ridePayloadFrom(ride))
	}
	return ridesResponse{baseResponse: successResponse(""), Rides: payload}
}

func (s *session) handleGetRideHistory(ctx context.Context, raw json.RawMessage) any {
	var req rideHistoryRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse("Invalid request.")
	}
	role := persistence.Role(req.Role)
	if role != persistence.RolePassenger && role != persistence.RoleDriver {
		return errorResponse("Invalid role")
	}

	records, err := s.rides.RideHistory(ctx, req.Username, role)
	if err != nil {
		return serviceErrorResponse(err, "Unable to load ride history.")
	}

	payload := make([]historyRidePayload, 0, len(records))
	for _, record := range records {
		payload = append(payload, historyRidePayload{
			ridePayload: ridePayloadFrom(record.Ride),
			MyRating:    record.MyRating,
			TheirRating: record.TheirRating,
		})
	}
	return historyResponse{baseResponse: successResponse(""), Rides: payload}
}

func (s *session) handleSubmitRating(ctx context.Context, raw json.RawMessage) any {
	var req submitRatingRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse("Invalid request.")
	}

	err := s.rides.SubmitRating(ctx, persistence.Rating{
		RideID:        req.RideID,
		RaterUsername: req.RaterUsername,
		RateeUsername: req.RateeUsername,
		Score:         req.Score,
		Comment:       req.Comment,
	})
	if err != nil {
		return serviceErrorResponse(err, "Unable to submit rating.")
	}
	return successResponse("")
}

func (s *session) handleGetRating(ctx context.Context, raw json.RawMessage) any {
	var req getRatingRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse("Invalid request.")
	}

	rating, err := s.rides.AverageRating(ctx, req.Username)
	if err != nil {
		return serviceErrorResponse(err, "Unable to load rating.")
	}
	return ratingResponse{baseResponse: successResponse(""), Rating: rating}
}

func (s *session) handleListDrivers(ctx context.Context, raw json.RawMessage) any {
	var req listDriversRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse("Invalid request.")
	}

	infos, err := s.users.ListDrivers(ctx, req.Area)
	if err != nil {
		return serviceErrorResponse(err, "Unable to list drivers.")
	}

	payload := make([]driverPayload, 0, len(infos))
	for _, info := range infos {
		payload = append(payload, driverPayloadFrom(info))
	}
	return driversResponse{baseResponse: successResponse(""), Drivers: payload}
}

func (s *session) handleSearchScheduledDrivers(ctx context.Context, raw json.RawMessage) any {
	var req searchScheduledDriversRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse("Invalid request.")
	}
	if req.Area == "" || req.Date == "" || req.Time == "" {
		return errorResponse("Missing area, date, or time.")
	}

	listings, err := s.schedules.SearchDrivers(ctx, req.Area, req.Date, req.Time)
	if err != nil {
		return serviceErrorResponse(err, "Unable to search drivers.")
	}

	payload := make([]candidatePayload, 0, len(listings))
	for _, listing := range listings {
		payload = append(payload, candidatePayload{
			Username: listing.Username,
			Name:     listing.Name,
			Area:     listing.Area,
			Rating:   listing.Rating,
		})
	}
	return candidatesResponse{baseResponse: successResponse(""), Drivers: payload}
}

func (s *session) handleCreateScheduledRide(ctx context.Context, raw json.RawMessage) any {
	var req createScheduledRideRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse("Invalid request.")
	}
	if req.Area == "" || req.Date == "" || req.Time == "" || req.PassengerUsername == "" || req.DriverUsername == "" {
		return errorResponse("Missing fields for scheduled ride.")
	}

	summary, err := s.schedules.CreateScheduledRide(ctx, application.CreateScheduledRideParams{
		PassengerUsername: req.PassengerUsername,
		DriverUsername:    req.DriverUsername,
		Area:              req.Area,
		Date:              req.Date,
		Time:              req.Time,
	})
	if err != nil {
		return serviceErrorResponse(err, "Unable to create scheduled ride.")
	}
	return createScheduledRideResponse{
		baseResponse:    successResponse("Scheduled ride created."),
		ScheduledRideID: summary.ID,
		RideID:          summary.ID,
	}
}

func (s *session) handleGetScheduledRides(ctx context.Context, raw json.RawMessage) any {
	var req scheduledRidesRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse("Invalid request.")
	}
	role := persistence.Role(req.Role)
	if req.Username == "" || (role != persistence.RolePassenger && role != persistence.RoleDriver) {
		return errorResponse("Missing username or invalid role.")
	}

	rides, err := s.schedules.ScheduledRides(ctx, req.Username, role)
	if err != nil {
		return serviceErrorResponse(err, "Unable to load scheduled rides.")
	}

	payload := make([]scheduledRidePayload, 0, len(rides))
	for _, ride := range rides {
		payload = append(payload, scheduledRidePayloadFrom(ride))
	}
	return scheduledRidesResponse{baseResponse: successResponse(""), Rides: payload}
}

func (s *session) handleDriverAcceptScheduledRide(ctx context.Context, raw json.RawMessage) any {
	return s.scheduledRideResponse(ctx, raw, func(ctx context.Context, id int64, username string) error {
		return s.schedules.DriverRespond(ctx, id, username, true)
	}, "driver", "Scheduled ride accepted.")
}

func (s *session) handleDriverDeclineScheduledRide(ctx context.Context, raw json.RawMessage) any {
	return s.scheduledRideResponse(ctx, raw, func(ctx context.Context, id int64, username string) error {
		return s.schedules.DriverRespond(ctx, id, username, false)
	}, "driver", "Scheduled ride declined.")
}

func (s *session) handlePassengerCancelScheduledRide(ctx context.Context, raw json.RawMessage) any {
	return s.scheduledRideResponse(ctx, raw, s.schedules.PassengerCancel, "passenger", "Scheduled ride canceled.")
}

func (s *session) scheduledRideResponse(ctx context.Context, raw json.RawMessage, do func(context.Context, int64, string) error, role, successMessage string) any {
	var req scheduledRideActionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse("Invalid request.")
	}
	if req.RideID == nil {
		return errorResponse("Invalid ride_id.")
	}

	if err := do(ctx, *req.RideID, req.Username); err != nil {
		return scheduledErrorResponse(err, role)
	}
	return successResponse(successMessage)
}

func (s *session) handleSetStatus(ctx context.Context, raw json.RawMessage) any {
	var req setStatusRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse("Invalid request.")
	}

	status := presence.Status(req.Status)
	if status != presence.StatusAvailable && status != presence.StatusDND {
		status = presence.StatusAvailable
	}
	if req.Username == "" {
		return errorResponse("Driver not connected or username missing.")
	}
	if err := s.registry.SetStatus(req.Username, status); err != nil {
		return serviceErrorResponse(err, "Driver not connected or username missing.")
	}
	return setStatusResponse{baseResponse: successResponse(""), StatusValue: string(status)}
}

func (s *session) handleGetPreferences(ctx context.Context, raw json.RawMessage) any {
	var req preferencesRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse("Invalid request.")
	}

	prefs, err := s.users.Preferences(ctx, req.Username)
	if err != nil {
		return serviceErrorResponse(err, "Unable to load preferences.")
	}
	return preferencesResponse{baseResponse: successResponse(""), Preferences: preferencesPayloadFrom(prefs)}
}

func (s *session) handleSavePreferences(ctx context.Context, raw json.RawMessage) any {
	var req preferencesRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse("Invalid request.")
	}

	if err := s.users.SavePreferences(ctx, req.Username, preferencesFromMap(req.Preferences)); err != nil {
		return serviceErrorResponse(err, "Unable to save preferences.")
	}
	return successResponse("")
}

func (s *session) handleDisconnect(ctx context.Context, raw json.RawMessage) any {
	var req disconnectRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse("Invalid request.")
	}

	username := req.Username
	if username == "" {
		username = s.username
	}
	if username != "" {
		s.registry.Unregister(username)
	}
	s.username = ""
	s.leaving = true
	return successResponse("Disconnected.")
}
