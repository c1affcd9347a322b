package application

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/example/campus-rideshare/internal/persistence"
	"github.com/example/campus-rideshare/internal/timeofday"
)

// UserService orchestrates registration, authentication, and profile
// management for driver and passenger accounts.
type UserService struct {
	users       UserRepository
	preferences PreferencesRepository
	presence    PresenceView
	hash        func(password string) (string, error)
	verify      func(hashedPassword, password string) error
	now         func() time.Time
	logger      *slog.Logger
}

// NewUserService wires dependencies for the user service.
func NewUserService(users UserRepository, preferences PreferencesRepository, presence PresenceView, logger *slog.Logger) *UserService {
	return &UserService{
		users:       users,
		preferences: preferences,
		presence:    presence,
		hash: func(password string) (string, error) {
			return CreatePasswordHash(password, DefaultArgon2idParams)
		},
		verify: VerifyPassword,
		now:    time.Now,
		logger: defaultLogger(logger),
	}
}

// Register validates input and persists a new account. The password is
// stored only as an argon2id hash.
func (s *UserService) Register(ctx context.Context, params RegisterParams) error {
	logger := serviceLogger(ctx, s.logger, "user", "register", "username", params.Username)

	normalized := normalizeRegisterParams(params)
	if vErr := validateRegisterParams(normalized); vErr.HasErrors() {
		logger.Warn("registration rejected", "error_kind", ErrorKind(vErr), "fields", vErr.FieldErrors)
		return vErr
	}

	hashed, err := s.hash(normalized.Password)
	if err != nil {
		logger.Error("password hashing failed", "error", err)
		return err
	}

	user := persistence.User{
		Username:       normalized.Username,
		Name:           normalized.Name,
		Email:          normalized.Email,
		PasswordHash:   hashed,
		Area:           normalized.Area,
		Role:           normalized.Role,
		WeeklySchedule: normalized.WeeklySchedule,
		CreatedAt:      s.now().UTC(),
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			logger.Warn("username already taken")
			vErr := &ValidationError{}
			vErr.add("username", "Username already exists.")
			return vErr
		}
		logger.Error("user insert failed", "error", err)
		return err
	}

	logger.Info("user registered", "role", user.Role)
	return nil
}

// Authenticate checks the password against the stored hash and returns the
// profile on success. Unknown usernames and wrong passwords are
// indistinguishable to the caller.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (Profile, error) {
	logger := serviceLogger(ctx, s.logger, "user", "authenticate", "username", username)

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			logger.Warn("login failed", "error_kind", "invalid_credentials")
			return Profile{}, ErrInvalidCredentials
		}
		logger.Error("user lookup failed", "error", err)
		return Profile{}, err
	}

	if err := s.verify(user.PasswordHash, password); err != nil {
		logger.Warn("login failed", "error_kind", "invalid_credentials")
		return Profile{}, ErrInvalidCredentials
	}

	logger.Info("login succeeded", "role", user.Role)
	return profileOf(user), nil
}

// Profile returns the public account view for the given username.
func (s *UserService) Profile(ctx context.Context, username string) (Profile, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, err
	}
	return profileOf(user), nil
}

// UpdateProfile applies the provided fields to an existing account. A new
// password is rehashed before it reaches storage.
func (s *UserService) UpdateProfile(ctx context.Context, params UpdateProfileParams) error {
	logger := serviceLogger(ctx, s.logger, "user", "update_profile", "username", params.Username)

	vErr := &ValidationError{}
	if strings.TrimSpace(params.Username) == "" {
		vErr.add("username", "Username is required.")
	}
	if params.Email != nil {
		trimmed := strings.TrimSpace(*params.Email)
		if _, err := mail.ParseAddress(trimmed); err != nil {
			vErr.add("email", "Invalid email address.")
		} else {
			params.Email = &trimmed
		}
	}
	if params.Password != nil && len(*params.Password) < 8 {
		vErr.add("password", "Password must be at least 8 characters.")
	}
	if params.WeeklySchedule != nil {
		validateSchedule(vErr, params.WeeklySchedule)
	}
	if vErr.HasErrors() {
		logger.Warn("profile update rejected", "fields", vErr.FieldErrors)
		return vErr
	}

	update := persistence.ProfileUpdate{
		Username:       params.Username,
		Name:           params.Name,
		Email:          params.Email,
		Area:           params.Area,
		WeeklySchedule: params.WeeklySchedule,
	}
	if params.Password != nil {
		hashed, err := s.hash(*params.Password)
		if err != nil {
			logger.Error("password hashing failed", "error", err)
			return err
		}
		update.PasswordHash = &hashed
	}

	if err := s.users.UpdateProfile(ctx, update); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return ErrNotFound
		}
		logger.Error("profile update failed", "error", err)
		return err
	}

	logger.Info("profile updated")
	return nil
}

// Preferences returns the stored settings for a user, creating defaults on
// first access.
func (s *UserService) Preferences(ctx context.Context, username string) (persistence.Preferences, error) {
	return s.preferences.GetPreferences(ctx, username)
}

// SavePreferences replaces the stored settings for a user.
func (s *UserService) SavePreferences(ctx context.Context, username string, prefs persistence.Preferences) error {
	logger := serviceLogger(ctx, s.logger, "user", "save_preferences", "username", username)
	if err := s.preferences.SavePreferences(ctx, username, prefs); err != nil {
		logger.Error("preferences save failed", "error", err)
		return err
	}
	return nil
}

// ListDrivers returns the driver catalog for an area (all areas when empty),
// each row enriched with average rating and live presence.
func (s *UserService) ListDrivers(ctx context.Context, area string) ([]DriverInfo, error) {
	logger := serviceLogger(ctx, s.logger, "user", "list_drivers", "area", area)

	listings, err := s.users.ListDrivers(ctx, area)
	if err != nil {
		logger.Error("driver listing failed", "error", err)
		return nil, err
	}

	infos := make([]DriverInfo, 0, len(listings))
	for _, listing := range listings {
		online, status := s.presence.DriverStatus(listing.Username)
		infos = append(infos, DriverInfo{
			Username: listing.Username,
			Name:     listing.Name,
			Area:     listing.Area,
			Rating:   listing.Rating,
			Online:   online,
			Status:   status,
		})
	}
	return infos, nil
}

func profileOf(user persistence.User) Profile {
	return Profile{
		Username:       user.Username,
		Name:           user.Name,
		Email:          user.Email,
		Area:           user.Area,
		Role:           user.Role,
		WeeklySchedule: user.WeeklySchedule,
	}
}

func normalizeRegisterParams(params RegisterParams) RegisterParams {
	params.Username = strings.TrimSpace(params.Username)
	params.Name = strings.TrimSpace(params.Name)
	params.Email = strings.TrimSpace(params.Email)
	params.Area = strings.TrimSpace(params.Area)
	return params
}

func validateRegisterParams(params RegisterParams) *ValidationError {
	vErr := &ValidationError{}
	if params.Username == "" {
		vErr.add("username", "Username is required.")
	}
	if len(params.Password) < 8 {
		vErr.add("password", "Password must be at least 8 characters.")
	}
	if params.Name == "" {
		vErr.add("name", "Name is required.")
	}
	if params.Email != "" {
		if _, err := mail.ParseAddress(params.Email); err != nil {
			vErr.add("email", "Invalid email address.")
		}
	}
	if params.Area == "" {
		vErr.add("area", "Area is required.")
	}
	switch params.Role {
	case persistence.RoleDriver, persistence.RolePassenger:
	default:
		vErr.add("role", "Role must be driver or passenger.")
	}
	if params.WeeklySchedule != nil {
		validateSchedule(vErr, params.WeeklySchedule)
	}
	return vErr
}

// validateSchedule rejects schedules with unknown weekday names or
// unparsable departure times up front, so the matcher never sees them.
func validateSchedule(vErr *ValidationError, schedule map[string]string) {
	for day, departure := range schedule {
		if _, err := timeofday.WeekdayIndex(day); err != nil {
			vErr.add("weekly_schedule", "Unknown weekday: "+day)
			continue
		}
		if _, err := timeofday.ParseSeconds(departure); err != nil {
			vErr.add("weekly_schedule", "Invalid time format: "+departure)
		}
	}
}
