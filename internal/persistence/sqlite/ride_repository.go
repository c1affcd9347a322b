package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/campus-rideshare/internal/persistence"
)

// RideRepository persists on-demand rides and enforces the lifecycle
// preconditions at the storage layer: every transition is a conditional
// UPDATE so concurrent attempts can never both succeed.
type RideRepository struct {
	store *Store
}

// NewRideRepository creates a ride repository backed by the given store.
func NewRideRepository(store *Store) *RideRepository {
	return &RideRepository{store: store}
}

// CreateRide inserts a pending ride and returns its generated id.
func (r *RideRepository) CreateRide(ctx context.Context, ride persistence.Ride) (int64, error) {
	query := `
		INSERT INTO rides (passenger_username, area, time, weekday, status)
		VALUES (?, ?, ?, ?, 'pending')
	`
	result, err := r.store.db.ExecContext(ctx, query,
		ride.PassengerUsername,
		ride.Area,
		ride.Time,
		ride.Weekday,
	)
	if err != nil {
		return 0, mapError(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get ride id: %w", err)
	}
	return id, nil
}

// GetRide retrieves one ride by id.
func (r *RideRepository) GetRide(ctx context.Context, id int64) (persistence.Ride, error) {
	query := `
		SELECT id, passenger_username, area, time, weekday, status, driver_username, driver_ip, driver_port
		FROM rides
		WHERE id = ?
	`
	return scanRide(r.store.db.QueryRowContext(ctx, query, id))
}

// MarkAccepted transitions a pending ride to accepted and records the
// driver's identity and chat contact coordinates. Returns
// persistence.ErrConflict when the ride exists but is no longer pending and
// persistence.ErrNotFound when it does not exist.
func (r *RideRepository) MarkAccepted(ctx context.Context, id int64, driver string, ip *string, port *int) error {
	return r.store.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE rides
			SET status = 'accepted', driver_username = ?, driver_ip = ?, driver_port = ?
			WHERE id = ? AND status = 'pending'
		`, driver, ip, port, id)
		if err != nil {
			return mapError(err)
		}
		return r.checkTransition(ctx, tx, result, id)
	})
}

// MarkDeclined transitions a pending ride to declined.
func (r *RideRepository) MarkDeclined(ctx context.Context, id int64) error {
	return r.store.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE rides
			SET status = 'declined'
			WHERE id = ? AND status = 'pending'
		`, id)
		if err != nil {
			return mapError(err)
		}
		return r.checkTransition(ctx, tx, result, id)
	})
}

// MarkCompleted transitions an accepted ride to completed, guarded by the
// accepting driver's identity.
func (r *RideRepository) MarkCompleted(ctx context.Context, id int64, driver string) error {
	return r.store.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE rides
			SET status = 'completed'
			WHERE id = ? AND status = 'accepted' AND driver_username = ?
		`, id, driver)
		if err != nil {
			return mapError(err)
		}
		return r.checkTransition(ctx, tx, result, id)
	})
}

// checkTransition distinguishes a missing ride from a precondition failure
// after a conditional update touched zero rows.
func (r *RideRepository) checkTransition(ctx context.Context, tx *sql.Tx, result sql.Result, id int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM rides WHERE id = ?`, id).Scan(&exists); err != nil {
		return mapError(err)
	}
	if exists == 0 {
		return persistence.ErrNotFound
	}
	return persistence.ErrConflict
}

// PendingInArea returns every pending ride in the area.
func (r *RideRepository) PendingInArea(ctx context.Context, area string) ([]persistence.Ride, error) {
	query := `
		SELECT id, passenger_username, area, time, weekday, status, driver_username, driver_ip, driver_port
		FROM rides
		WHERE status = 'pending' AND area = ?
		ORDER BY id
	`
	return r.queryRides(ctx, query, area)
}

// RidesForUser returns the rides a user participates in, selected by role.
func (r *RideRepository) RidesForUser(ctx context.Context, username string, role persistence.Role) ([]persistence.Ride, error) {
	column := "passenger_username"
	if role == persistence.RoleDriver {
		column = "driver_username"
	}
	query := fmt.Sprintf(`
		SELECT id, passenger_username, area, time, weekday, status, driver_username, driver_ip, driver_port
		FROM rides
		WHERE %s = ?
		ORDER BY id
	`, column)
	return r.queryRides(ctx, query, username)
}

func (r *RideRepository) queryRides(ctx context.Context, query string, args ...any) ([]persistence.Ride, error) {
	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var rides []persistence.Ride
	for rows.Next() {
		ride, err := scanRideRow(rows)
		if err != nil {
			return nil, err
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (persistence.Ride, error) {
	ride, err := scanRideRow(row)
	if err != nil {
		return persistence.Ride{}, err
	}
	return ride, nil
}

func scanRideRow(row rowScanner) (persistence.Ride, error) {
	var (
		ride   persistence.Ride
		driver sql.NullString
		ip     sql.NullString
		port   sql.NullInt64
	)
	err := row.Scan(
		&ride.ID,
		&ride.PassengerUsername,
		&ride.Area,
		&ride.Time,
		&ride.Weekday,
		&ride.Status,
		&driver,
		&ip,
		&port,
	)
	if err != nil {
		return persistence.Ride{}, mapError(err)
	}

	if driver.Valid {
		ride.DriverUsername = &driver.String
	}
	if ip.Valid {
		ride.DriverIP = &ip.String
	}
	if port.Valid {
		p := int(port.Int64)
		ride.DriverPort = &p
	}
	return ride, nil
}
