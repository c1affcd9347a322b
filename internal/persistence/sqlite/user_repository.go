package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/example/campus-rideshare/internal/persistence"
)

// UserRepository persists accounts and answers the matcher's driver queries.
type UserRepository struct {
	store *Store
}

// NewUserRepository creates a user repository backed by the given store.
func NewUserRepository(store *Store) *UserRepository {
	return &UserRepository{store: store}
}

// CreateUser inserts a new account. Returns persistence.ErrDuplicate when
// the username is already taken.
func (r *UserRepository) CreateUser(ctx context.Context, user persistence.User) error {
	scheduleJSON, err := encodeSchedule(user.WeeklySchedule)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO users (username, name, email, password_hash, area, role, weekly_schedule, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.store.db.ExecContext(ctx, query,
		user.Username,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Area,
		string(user.Role),
		scheduleJSON,
		time.Now().UTC().Format(time.RFC3339),
	)
	return mapError(err)
}

// GetUserByUsername retrieves one account, including the password hash.
func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (persistence.User, error) {
	query := `
		SELECT id, username, name, email, password_hash, area, role, weekly_schedule
		FROM users
		WHERE username = ?
	`

	var (
		user         persistence.User
		role         string
		scheduleJSON sql.NullString
	)
	err := r.store.db.QueryRowContext(ctx, query, username).Scan(
		&user.ID,
		&user.Username,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Area,
		&role,
		&scheduleJSON,
	)
	if err != nil {
		return persistence.User{}, mapError(err)
	}

	user.Role = persistence.Role(role)
	user.WeeklySchedule = decodeSchedule(scheduleJSON)
	return user, nil
}

// UpdateProfile applies the non-nil fields of the update to an existing
// account. Username and role are never changed.
func (r *UserRepository) UpdateProfile(ctx context.Context, update persistence.ProfileUpdate) error {
	assignments := make([]string, 0, 5)
	args := make([]any, 0, 6)

	if update.Name != nil {
		assignments = append(assignments, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Email != nil {
		assignments = append(assignments, "email = ?")
		args = append(args, *update.Email)
	}
	if update.Area != nil {
		assignments = append(assignments, "area = ?")
		args = append(args, *update.Area)
	}
	if update.PasswordHash != nil {
		assignments = append(assignments, "password_hash = ?")
		args = append(args, *update.PasswordHash)
	}
	if update.WeeklySchedule != nil {
		scheduleJSON, err := encodeSchedule(update.WeeklySchedule)
		if err != nil {
			return err
		}
		assignments = append(assignments, "weekly_schedule = ?")
		args = append(args, scheduleJSON)
	}

	if len(assignments) == 0 {
		return nil
	}
	args = append(args, update.Username)

	query := fmt.Sprintf("UPDATE users SET %s WHERE username = ?", strings.Join(assignments, ", "))
	result, err := r.store.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// DriversInArea returns every driver registered in the area together with
// their weekly schedule.
func (r *UserRepository) DriversInArea(ctx context.Context, area string) ([]persistence.DriverSchedule, error) {
	query := `
		SELECT username, weekly_schedule
		FROM users
		WHERE role = 'driver' AND area = ?
	`

	rows, err := r.store.db.QueryContext(ctx, query, area)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var drivers []persistence.DriverSchedule
	for rows.Next() {
		var (
			driver       persistence.DriverSchedule
			scheduleJSON sql.NullString
		)
		if err := rows.Scan(&driver.Username, &scheduleJSON); err != nil {
			return nil, mapError(err)
		}
		driver.WeeklySchedule = decodeSchedule(scheduleJSON)
		drivers = append(drivers, driver)
	}
	return drivers, rows.Err()
}

// ListDrivers returns drivers, optionally filtered by area, each with the
// mean of all ratings they have received.
func (r *UserRepository) ListDrivers(ctx context.Context, area string) ([]persistence.DriverListing, error) {
	query := `
		SELECT u.username, u.name, u.area, AVG(rt.score)
		FROM users u
		LEFT JOIN ratings rt ON rt.ratee_username = u.username
		WHERE u.role = 'driver'
	`
	args := []any{}
	if area != "" {
		query += " AND u.area = ?"
		args = append(args, area)
	}
	query += " GROUP BY u.username, u.name, u.area ORDER BY u.username"

	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var listings []persistence.DriverListing
	for rows.Next() {
		var (
			listing persistence.DriverListing
			rating  sql.NullFloat64
		)
		if err := rows.Scan(&listing.Username, &listing.Name, &listing.Area, &rating); err != nil {
			return nil, mapError(err)
		}
		if rating.Valid {
			rounded := roundScore(rating.Float64)
			listing.Rating = &rounded
		}
		listings = append(listings, listing)
	}
	return listings, rows.Err()
}

func encodeSchedule(schedule map[string]string) (string, error) {
	if schedule == nil {
		schedule = map[string]string{}
	}
	raw, err := json.Marshal(schedule)
	if err != nil {
		return "", fmt.Errorf("failed to encode weekly schedule: %w", err)
	}
	return string(raw), nil
}

func decodeSchedule(raw sql.NullString) map[string]string {
	schedule := map[string]string{}
	if !raw.Valid || raw.String == "" {
		return schedule
	}
	// A malformed stored schedule degrades to "no schedule" rather than
	// failing the whole read.
	_ = json.Unmarshal([]byte(raw.String), &schedule)
	return schedule
}
