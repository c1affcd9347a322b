package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/campus-rideshare/internal/persistence"
)

// ScheduledRideRepository persists future rides booked with a specific
// driver.
type ScheduledRideRepository struct {
	store *Store
}

// NewScheduledRideRepository creates a scheduled-ride repository backed by
// the given store.
func NewScheduledRideRepository(store *Store) *ScheduledRideRepository {
	return &ScheduledRideRepository{store: store}
}

// CreateScheduledRide inserts a ride with status "scheduled" and returns its
// generated id.
func (r *ScheduledRideRepository) CreateScheduledRide(ctx context.Context, ride persistence.ScheduledRide) (int64, error) {
	query := `
		INSERT INTO scheduled_rides (passenger_username, driver_username, area, date, time, weekday, status)
		VALUES (?, ?, ?, ?, ?, ?, 'scheduled')
	`
	result, err := r.store.db.ExecContext(ctx, query,
		ride.PassengerUsername,
		ride.DriverUsername,
		ride.Area,
		ride.Date,
		ride.Time,
		ride.Weekday,
	)
	if err != nil {
		return 0, mapError(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get scheduled ride id: %w", err)
	}
	return id, nil
}

// GetScheduledRide retrieves one scheduled ride by id.
func (r *ScheduledRideRepository) GetScheduledRide(ctx context.Context, id int64) (persistence.ScheduledRide, error) {
	query := `
		SELECT id, passenger_username, driver_username, area, date, time, weekday, status
		FROM scheduled_rides
		WHERE id = ?
	`
	var ride persistence.ScheduledRide
	err := r.store.db.QueryRowContext(ctx, query, id).Scan(
		&ride.ID,
		&ride.PassengerUsername,
		&ride.DriverUsername,
		&ride.Area,
		&ride.Date,
		&ride.Time,
		&ride.Weekday,
		&ride.Status,
	)
	if err != nil {
		return persistence.ScheduledRide{}, mapError(err)
	}
	return ride, nil
}

// SetStatus updates a scheduled ride's status. When fromStatus is non-empty
// the update only succeeds while the ride is still in that status; a stale
// transition returns persistence.ErrConflict.
func (r *ScheduledRideRepository) SetStatus(ctx context.Context, id int64, fromStatus, toStatus string) error {
	return r.store.WithTransaction(ctx, func(tx *sql.Tx) error {
		var (
			result sql.Result
			err    error
		)
		if fromStatus != "" {
			result, err = tx.ExecContext(ctx, `
				UPDATE scheduled_rides SET status = ? WHERE id = ? AND status = ?
			`, toStatus, id, fromStatus)
		} else {
			result, err = tx.ExecContext(ctx, `
				UPDATE scheduled_rides SET status = ? WHERE id = ?
			`, toStatus, id)
		}
		if err != nil {
			return mapError(err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected > 0 {
			return nil
		}

		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM scheduled_rides WHERE id = ?`, id).Scan(&exists); err != nil {
			return mapError(err)
		}
		if exists == 0 {
			return persistence.ErrNotFound
		}
		return persistence.ErrConflict
	})
}

// ScheduledRidesForUser returns the scheduled rides a user participates in,
// selected by role and ordered by date then time ascending.
func (r *ScheduledRideRepository) ScheduledRidesForUser(ctx context.Context, username string, role persistence.Role) ([]persistence.ScheduledRide, error) {
	column := "passenger_username"
	if role == persistence.RoleDriver {
		column = "driver_username"
	}
	query := fmt.Sprintf(`
		SELECT id, passenger_username, driver_username, area, date, time, weekday, status
		FROM scheduled_rides
		WHERE %s = ?
		ORDER BY date, time
	`, column)

	rows, err := r.store.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var rides []persistence.ScheduledRide
	for rows.Next() {
		var ride persistence.ScheduledRide
		err := rows.Scan(
			&ride.ID,
			&ride.PassengerUsername,
			&ride.DriverUsername,
			&ride.Area,
			&ride.Date,
			&ride.Time,
			&ride.Weekday,
			&ride.Status,
		)
		if err != nil {
			return nil, mapError(err)
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}
