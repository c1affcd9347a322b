package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/example/campus-rideshare/internal/persistence"
)

// PreferencesRepository persists per-user settings rows.
type PreferencesRepository struct {
	store *Store
}

// NewPreferencesRepository creates a preferences repository backed by the
// given store.
func NewPreferencesRepository(store *Store) *PreferencesRepository {
	return &PreferencesRepository{store: store}
}

// GetPreferences returns the user's settings, creating and persisting the
// default row on first access.
func (r *PreferencesRepository) GetPreferences(ctx context.Context, username string) (persistence.Preferences, error) {
	prefs, err := r.fetch(ctx, username)
	if err == nil {
		return prefs, nil
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return persistence.Preferences{}, err
	}

	defaults := persistence.DefaultPreferences()
	if err := r.SavePreferences(ctx, username, defaults); err != nil {
		return persistence.Preferences{}, err
	}
	return defaults, nil
}

// SavePreferences upserts the user's settings row.
func (r *PreferencesRepository) SavePreferences(ctx context.Context, username string, prefs persistence.Preferences) error {
	query := `
		INSERT OR REPLACE INTO user_preferences
			(username, sidebar_color, background_color, button_color,
			 button_hover_color, text_color, theme_name, font_size,
			 preferred_driver_username)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.store.db.ExecContext(ctx, query,
		username,
		prefs.SidebarColor,
		prefs.BackgroundColor,
		prefs.ButtonColor,
		prefs.ButtonHoverColor,
		prefs.TextColor,
		prefs.ThemeName,
		prefs.FontSize,
		prefs.PreferredDriver,
	)
	return mapError(err)
}

func (r *PreferencesRepository) fetch(ctx context.Context, username string) (persistence.Preferences, error) {
	query := `
		SELECT sidebar_color, background_color, button_color,
		       button_hover_color, text_color, theme_name, font_size,
		       preferred_driver_username
		FROM user_preferences
		WHERE username = ?
	`

	var (
		prefs     persistence.Preferences
		theme     sql.NullString
		preferred sql.NullString
	)
	err := r.store.db.QueryRowContext(ctx, query, username).Scan(
		&prefs.SidebarColor,
		&prefs.BackgroundColor,
		&prefs.ButtonColor,
		&prefs.ButtonHoverColor,
		&prefs.TextColor,
		&theme,
		&prefs.FontSize,
		&preferred,
	)
	if err != nil {
		return persistence.Preferences{}, mapError(err)
	}

	prefs.ThemeName = "default"
	if theme.Valid && theme.String != "" {
		prefs.ThemeName = theme.String
	}
	if preferred.Valid && preferred.String != "" {
		prefs.PreferredDriver = &preferred.String
	}
	return prefs, nil
}
