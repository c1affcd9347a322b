package sqlite

import (
	"context"
	"database/sql"
	"math"

	"github.com/example/campus-rideshare/internal/persistence"
)

// RatingRepository persists the append-only rating log. The same rater may
// score the same ride more than once; readers always take the latest row.
type RatingRepository struct {
	store *Store
}

// NewRatingRepository creates a rating repository backed by the given store.
func NewRatingRepository(store *Store) *RatingRepository {
	return &RatingRepository{store: store}
}

// RecordRating appends one rating row.
func (r *RatingRepository) RecordRating(ctx context.Context, rating persistence.Rating) error {
	query := `
		INSERT INTO ratings (ride_id, rater_username, ratee_username, score, comment)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := r.store.db.ExecContext(ctx, query,
		rating.RideID,
		rating.RaterUsername,
		rating.RateeUsername,
		rating.Score,
		rating.Comment,
	)
	return mapError(err)
}

// AverageRating returns the mean score across all ratings received by the
// user, rounded to two decimals, or nil when they have never been rated.
func (r *RatingRepository) AverageRating(ctx context.Context, username string) (*float64, error) {
	var avg sql.NullFloat64
	err := r.store.db.QueryRowContext(ctx,
		`SELECT AVG(score) FROM ratings WHERE ratee_username = ?`, username,
	).Scan(&avg)
	if err != nil {
		return nil, mapError(err)
	}
	if !avg.Valid {
		return nil, nil
	}
	rounded := roundScore(avg.Float64)
	return &rounded, nil
}

// LatestScore returns the most recent score rater gave ratee for the ride,
// or nil when no such rating exists. Recency is insertion order.
func (r *RatingRepository) LatestScore(ctx context.Context, rideID int64, rater, ratee string) (*float64, error) {
	var score float64
	err := r.store.db.QueryRowContext(ctx, `
		SELECT score
		FROM ratings
		WHERE ride_id = ? AND rater_username = ? AND ratee_username = ?
		ORDER BY id DESC
		LIMIT 1
	`, rideID, rater, ratee).Scan(&score)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err)
	}
	return &score, nil
}

func roundScore(v float64) float64 {
	return math.Round(v*100) / 100
}
