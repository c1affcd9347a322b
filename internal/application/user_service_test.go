package application

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/example/campus-rideshare/internal/persistence"
)

type userRepoStub struct {
	created   persistence.User
	createErr error
	user      persistence.User
	getErr    error
	updated   persistence.ProfileUpdate
	updateErr error
	listings  []persistence.DriverListing
}

func (u *userRepoStub) CreateUser(ctx context.Context, user persistence.User) error {
	if u.createErr != nil {
		return u.createErr
	}
	u.created = user
	return nil
}

func (u *userRepoStub) GetUserByUsername(ctx context.Context, username string) (persistence.User, error) {
	if u.getErr != nil {
		return persistence.User{}, u.getErr
	}
	return u.user, nil
}

func (u *userRepoStub) UpdateProfile(ctx context.Context, update persistence.ProfileUpdate) error {
	if u.updateErr != nil {
		return u.updateErr
	}
	u.updated = update
	return nil
}

func (u *userRepoStub) DriversInArea(ctx context.Context, area string) ([]persistence.DriverSchedule, error) {
	return nil, nil
}

func (u *userRepoStub) ListDrivers(ctx context.Context, area string) ([]persistence.DriverListing, error) {
	return u.listings, nil
}

type preferencesRepoStub struct {
	prefs   persistence.Preferences
	getErr  error
	saved   persistence.Preferences
	saveErr error
}

func (p *preferencesRepoStub) GetPreferences(ctx context.Context, username string) (persistence.Preferences, error) {
	if p.getErr != nil {
		return persistence.Preferences{}, p.getErr
	}
	return p.prefs, nil
}

func (p *preferencesRepoStub) SavePreferences(ctx context.Context, username string, prefs persistence.Preferences) error {
	if p.saveErr != nil {
		return p.saveErr
	}
	p.saved = prefs
	return nil
}

func newTestUserService(users *userRepoStub, prefs *preferencesRepoStub, online *presenceStub) *UserService {
	if prefs == nil {
		prefs = &preferencesRepoStub{}
	}
	if online == nil {
		online = &presenceStub{}
	}
	return NewUserService(users, prefs, online, nil)
}

func TestUserService_Register_HashesPassword(t *testing.T) {
	t.Parallel()

	repo := &userRepoStub{}
	svc := newTestUserService(repo, nil, nil)

	err := svc.Register(context.Background(), RegisterParams{
		Username: "dana",
		Password: "correct horse",
		Name:     "Dana",
		Email:    "dana@example.edu",
		Area:     "Hamra",
		Role:     persistence.RoleDriver,
		WeeklySchedule: map[string]string{
			"monday": "08:05",
		},
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	if repo.created.PasswordHash == "correct horse" {
		t.Fatal("password stored in the clear")
	}
	if !strings.HasPrefix(repo.created.PasswordHash, "$argon2id$") {
		t.Fatalf("unexpected hash format: %q", repo.created.PasswordHash)
	}
	if err := VerifyPassword(repo.created.PasswordHash, "correct horse"); err != nil {
		t.Fatalf("stored hash does not verify: %v", err)
	}
}

func TestUserService_Register_RejectsInvalidInput(t *testing.T) {
	t.Parallel()

	svc := newTestUserService(&userRepoStub{}, nil, nil)

	err := svc.Register(context.Background(), RegisterParams{
		Username: "",
		Password: "short",
		Name:     "",
		Area:     "",
		Role:     "admin",
		WeeklySchedule: map[string]string{
			"someday": "08:05",
		},
	})

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"username", "password", "name", "area", "role", "weekly_schedule"} {
		if _, ok := vErr.FieldErrors[field]; !ok {
			t.Errorf("missing field error for %q", field)
		}
	}
}

func TestUserService_Register_MapsDuplicateUsername(t *testing.T) {
	t.Parallel()

	repo := &userRepoStub{createErr: persistence.ErrDuplicate}
	svc := newTestUserService(repo, nil, nil)

	err := svc.Register(context.Background(), RegisterParams{
		Username: "dana",
		Password: "correct horse",
		Name:     "Dana",
		Area:     "Hamra",
		Role:     persistence.RolePassenger,
	})

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := vErr.FieldErrors["username"]; !ok {
		t.Fatalf("duplicate username not reported: %v", vErr.FieldErrors)
	}
}

func TestUserService_Authenticate(t *testing.T) {
	t.Parallel()

	hash, err := CreatePasswordHash("correct horse", DefaultArgon2idParams)
	if err != nil {
		t.Fatalf("CreatePasswordHash: %v", err)
	}
	repo := &userRepoStub{user: persistence.User{
		Username:     "dana",
		Name:         "Dana",
		PasswordHash: hash,
		Area:         "Hamra",
		Role:         persistence.RoleDriver,
	}}
	svc := newTestUserService(repo, nil, nil)

	profile, err := svc.Authenticate(context.Background(), "dana", "correct horse")
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if profile.Username != "dana" || profile.Role != persistence.RoleDriver {
		t.Fatalf("unexpected profile: %+v", profile)
	}

	if _, err := svc.Authenticate(context.Background(), "dana", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v, want ErrInvalidCredentials", err)
	}

	repo.getErr = persistence.ErrNotFound
	if _, err := svc.Authenticate(context.Background(), "ghost", "correct horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: got %v, want ErrInvalidCredentials", err)
	}
}

func TestUserService_UpdateProfile_RehashesPassword(t *testing.T) {
	t.Parallel()

	repo := &userRepoStub{}
	svc := newTestUserService(repo, nil, nil)

	password := "fresh password"
	name := "Dana K"
	err := svc.UpdateProfile(context.Background(), UpdateProfileParams{
		Username: "dana",
		Name:     &name,
		Password: &password,
	})
	if err != nil {
		t.Fatalf("UpdateProfile returned error: %v", err)
	}

	if repo.updated.PasswordHash == nil {
		t.Fatal("password hash not forwarded to storage")
	}
	if err := VerifyPassword(*repo.updated.PasswordHash, password); err != nil {
		t.Fatalf("forwarded hash does not verify: %v", err)
	}
	if repo.updated.Name == nil || *repo.updated.Name != "Dana K" {
		t.Fatalf("name not forwarded: %+v", repo.updated)
	}
	if repo.updated.Email != nil || repo.updated.Area != nil {
		t.Fatal("untouched fields must stay nil")
	}
}

func TestUserService_ListDrivers_EnrichesPresence(t *testing.T) {
	t.Parallel()

	rating := 4.5
	repo := &userRepoStub{listings: []persistence.DriverListing{
		{Username: "dana", Name: "Dana", Area: "Hamra", Rating: &rating},
		{Username: "omar", Name: "Omar", Area: "Hamra"},
	}}
	online := &presenceStub{available: map[string]bool{"dana": true}}
	svc := newTestUserService(repo, nil, online)

	infos, err := svc.ListDrivers(context.Background(), "Hamra")
	if err != nil {
		t.Fatalf("ListDrivers returned error: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("got %d rows, want 2", len(infos))
	}
	if !infos[0].Online || infos[0].Rating == nil || *infos[0].Rating != 4.5 {
		t.Fatalf("dana row wrong: %+v", infos[0])
	}
	if infos[1].Online || infos[1].Rating != nil {
		t.Fatalf("omar row wrong: %+v", infos[1])
	}
}
