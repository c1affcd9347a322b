package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/example/campus-rideshare/internal/application"
	"github.com/example/campus-rideshare/internal/persistence/sqlite"
	"github.com/example/campus-rideshare/internal/presence"
)

// startServer wires a full stack on an in-memory database and an ephemeral
// port, and tears everything down with the test.
func startServer(t *testing.T) net.Addr {
	t.Helper()

	store, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	users := sqlite.NewUserRepository(store)
	rides := sqlite.NewRideRepository(store)
	scheduled := sqlite.NewScheduledRideRepository(store)
	ratings := sqlite.NewRatingRepository(store)
	preferences := sqlite.NewPreferencesRepository(store)

	registry := presence.NewRegistry()
	notifier := NewPushNotifier(registry, nil)

	matchSvc := application.NewMatchService(users, registry, nil)
	userSvc := application.NewUserService(users, preferences, registry, nil)
	rideSvc := application.NewRideService(rides, ratings, preferences, matchSvc, notifier, nil)
	scheduleSvc := application.NewScheduleService(scheduled, users, matchSvc, notifier, nil)

	srv := New(Config{
		ListenAddr: "127.0.0.1:0",
		Users:      userSvc,
		Rides:      rideSvc,
		Schedules:  scheduleSvc,
		Registry:   registry,
	})
	if err := srv.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	return srv.Addr()
}

// testClient drives one protocol connection. Push notifications that arrive
// while waiting for a synchronous reply are queued for later assertions.
type testClient struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
	pushes []map[string]any
}

func dialClient(t *testing.T, addr net.Addr) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

func (c *testClient) readLine(timeout time.Duration) map[string]any {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(timeout))
	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		c.t.Fatalf("read line: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(line, &msg); err != nil {
		c.t.Fatalf("decode line %q: %v", line, err)
	}
	return msg
}

// request sends one action and returns its synchronous reply, queueing any
// pushes that arrive first (pushes and replies may interleave).
func (c *testClient) request(payload map[string]any) map[string]any {
	c.t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		c.t.Fatalf("encode request: %v", err)
	}
	if _, err := c.conn.Write(append(data, '\n')); err != nil {
		c.t.Fatalf("write request: %v", err)
	}
	for {
		msg := c.readLine(5 * time.Second)
		if _, isPush := msg["action"]; isPush {
			c.pushes = append(c.pushes, msg)
			continue
		}
		return msg
	}
}

func (c *testClient) mustSucceed(payload map[string]any) map[string]any {
	c.t.Helper()
	msg := c.request(payload)
	if msg["status"] != "success" {
		c.t.Fatalf("action %v failed: %v", payload["action"], msg)
	}
	return msg
}

// waitPush returns the next queued or incoming push with the given action.
func (c *testClient) waitPush(action string) map[string]any {
	c.t.Helper()
	for i, p := range c.pushes {
		if p["action"] == action {
			c.pushes = append(c.pushes[:i], c.pushes[i+1:]...)
			return p
		}
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		msg := c.readLine(time.Until(deadline))
		if msg["action"] == action {
			return msg
		}
		if _, isPush := msg["action"]; isPush {
			c.pushes = append(c.pushes, msg)
		}
	}
	c.t.Fatalf("no %q push received", action)
	return nil
}

func registerUser(t *testing.T, c *testClient, username, role, area string, schedule map[string]string) {
	t.Helper()
	payload := map[string]any{
		"action":   "register",
		"username": username,
		"password": "correct horse",
		"name":     username,
		"email":    username + "@example.edu",
		"area":     area,
		"role":     role,
	}
	if schedule != nil {
		payload["weekly_schedule"] = schedule
	}
	c.mustSucceed(payload)
}

func login(t *testing.T, c *testClient, username string) map[string]any {
	t.Helper()
	return c.mustSucceed(map[string]any{
		"action":   "login",
		"username": username,
		"password": "correct horse",
	})
}

func TestServer_RideLifecycleEndToEnd(t *testing.T) {
	addr := startServer(t)

	driver := dialClient(t, addr)
	passenger := dialClient(t, addr)

	registerUser(t, driver, "dana", "driver", "Hamra", map[string]string{"monday": "08:00"})
	registerUser(t, passenger, "pia", "passenger", "Hamra", nil)

	loginResp := login(t, driver, "dana")
	if loginResp["role"] != "driver" {
		t.Fatalf("login role = %v", loginResp["role"])
	}
	if _, ok := loginResp["preferences"].(map[string]any); !ok {
		t.Fatalf("login response missing preferences: %v", loginResp)
	}
	login(t, passenger, "pia")

	// Monday, 08:05: inside dana's ten-minute window.
	created := passenger.mustSucceed(map[string]any{
		"action":             "create_ride",
		"passenger_username": "pia",
		"area":               "Hamra",
		"time":               "08:05",
		"weekday":            0,
	})
	rideID, ok := created["ride_id"].(float64)
	if !ok {
		t.Fatalf("create_ride reply missing ride_id: %v", created)
	}

	newRide := driver.waitPush("new_ride")
	if newRide["ride_id"].(float64) != rideID || newRide["passenger_username"] != "pia" {
		t.Fatalf("unexpected new_ride push: %v", newRide)
	}

	driver.mustSucceed(map[string]any{
		"action":      "accept_ride",
		"ride_id":     rideID,
		"username":    "dana",
		"driver_ip":   "10.0.0.5",
		"driver_port": 4242,
	})
	accepted := passenger.waitPush("ride_accepted")
	if accepted["driver_username"] != "dana" || accepted["driver_ip"] != "10.0.0.5" {
		t.Fatalf("unexpected ride_accepted push: %v", accepted)
	}

	// Second accept attempt must lose.
	conflict := driver.request(map[string]any{
		"action":   "accept_ride",
		"ride_id":  rideID,
		"username": "dana",
	})
	if conflict["status"] != "error" {
		t.Fatalf("double accept must fail: %v", conflict)
	}

	driver.mustSucceed(map[string]any{
		"action":   "complete_ride",
		"ride_id":  rideID,
		"username": "dana",
	})
	completed := passenger.waitPush("ride_completed")
	if completed["driver_username"] != "dana" || completed["passenger_username"] != "pia" {
		t.Fatalf("unexpected ride_completed push: %v", completed)
	}

	passenger.mustSucceed(map[string]any{
		"action":         "submit_rating",
		"ride_id":        rideID,
		"rater_username": "pia",
		"ratee_username": "dana",
		"score":          5,
		"comment":        "on time",
	})
	rating := passenger.mustSucceed(map[string]any{
		"action":   "get_rating",
		"username": "dana",
	})
	if rating["rating"].(float64) != 5 {
		t.Fatalf("get_rating = %v, want 5", rating["rating"])
	}

	history := passenger.mustSucceed(map[string]any{
		"action":   "get_ride_history",
		"username": "pia",
		"role":     "passenger",
	})
	rows, _ := history["rides"].([]any)
	if len(rows) != 1 {
		t.Fatalf("history rows = %v", history["rides"])
	}
	row := rows[0].(map[string]any)
	if row["status"] != "completed" || row["my_rating"].(float64) != 5 {
		t.Fatalf("unexpected history row: %v", row)
	}
}

func TestServer_CreateRideWithoutDriversPersistsNothing(t *testing.T) {
	addr := startServer(t)

	passenger := dialClient(t, addr)
	registerUser(t, passenger, "pia", "passenger", "Hamra", nil)
	login(t, passenger, "pia")

	resp := passenger.request(map[string]any{
		"action":             "create_ride",
		"passenger_username": "pia",
		"area":               "Hamra",
		"time":               "08:05",
		"weekday":            0,
	})
	if resp["status"] != "error" {
		t.Fatalf("expected error, got %v", resp)
	}

	pending := passenger.mustSucceed(map[string]any{
		"action": "get_pending_rides",
		"area":   "Hamra",
	})
	if rows, _ := pending["rides"].([]any); len(rows) != 0 {
		t.Fatalf("rides table gained rows: %v", pending["rides"])
	}
}

func TestServer_DNDDriverIsNotMatched(t *testing.T) {
	addr := startServer(t)

	driver := dialClient(t, addr)
	passenger := dialClient(t, addr)
	registerUser(t, driver, "dana", "driver", "Hamra", map[string]string{"monday": "08:00"})
	registerUser(t, passenger, "pia", "passenger", "Hamra", nil)
	login(t, driver, "dana")
	login(t, passenger, "pia")

	driver.mustSucceed(map[string]any{
		"action":   "set_status",
		"username": "dana",
		"status":   "dnd",
	})

	resp := passenger.request(map[string]any{
		"action":             "create_ride",
		"passenger_username": "pia",
		"area":               "Hamra",
		"time":               "08:05",
		"weekday":            0,
	})
	if resp["status"] != "error" {
		t.Fatalf("dnd driver must not be matched: %v", resp)
	}
}

func TestServer_DisconnectClearsPresence(t *testing.T) {
	addr := startServer(t)

	driver := dialClient(t, addr)
	registerUser(t, driver, "dana", "driver", "Hamra", map[string]string{"monday": "08:00"})
	login(t, driver, "dana")

	driver.mustSucceed(map[string]any{
		"action":   "disconnect",
		"username": "dana",
	})

	// A fresh connection cannot set status for the departed driver.
	other := dialClient(t, addr)
	resp := other.request(map[string]any{
		"action":   "set_status",
		"username": "dana",
		"status":   "available",
	})
	if resp["status"] != "error" {
		t.Fatalf("set_status after disconnect must fail: %v", resp)
	}
}

func TestServer_ScheduledRideFlow(t *testing.T) {
	addr := startServer(t)

	driver := dialClient(t, addr)
	passenger := dialClient(t, addr)
	registerUser(t, driver, "dana", "driver", "Hamra", map[string]string{"monday": "08:00"})
	registerUser(t, passenger, "pia", "passenger", "Hamra", nil)
	login(t, driver, "dana")
	login(t, passenger, "pia")

	// 2026-08-31 is a Monday.
	search := passenger.mustSucceed(map[string]any{
		"action": "search_scheduled_drivers",
		"area":   "Hamra",
		"date":   "2026-08-31",
		"time":   "08:05",
	})
	drivers, _ := search["drivers"].([]any)
	if len(drivers) != 1 {
		t.Fatalf("search drivers = %v", search["drivers"])
	}

	created := passenger.mustSucceed(map[string]any{
		"action":             "create_scheduled_ride",
		"area":               "Hamra",
		"date":               "2026-08-31",
		"time":               "08:05",
		"passenger_username": "pia",
		"driver_username":    "dana",
	})
	rideID := created["scheduled_ride_id"].(float64)

	push := driver.waitPush("scheduled_ride_created")
	ride := push["ride"].(map[string]any)
	if ride["time"] != "08:05" || push["scheduled_ride_id"].(float64) != rideID {
		t.Fatalf("unexpected scheduled_ride_created push: %v", push)
	}

	driver.mustSucceed(map[string]any{
		"action":   "driver_accept_scheduled_ride",
		"ride_id":  rideID,
		"username": "dana",
	})
	updated := passenger.waitPush("scheduled_ride_updated")
	if updated["status"] != "accepted" || updated["driver_username"] != "dana" {
		t.Fatalf("unexpected scheduled_ride_updated push: %v", updated)
	}

	// Accepting twice fails: the booking left "scheduled".
	again := driver.request(map[string]any{
		"action":   "driver_accept_scheduled_ride",
		"ride_id":  rideID,
		"username": "dana",
	})
	if again["status"] != "error" {
		t.Fatalf("second accept must fail: %v", again)
	}

	passenger.mustSucceed(map[string]any{
		"action":   "passenger_cancel_scheduled_ride",
		"ride_id":  rideID,
		"username": "pia",
	})
	canceled := driver.waitPush("scheduled_ride_updated")
	if canceled["status"] != "canceled" || canceled["passenger_username"] != "pia" {
		t.Fatalf("unexpected cancel push: %v", canceled)
	}

	list := passenger.mustSucceed(map[string]any{
		"action":   "get_scheduled_rides",
		"username": "pia",
		"role":     "passenger",
	})
	rows, _ := list["rides"].([]any)
	if len(rows) != 1 || rows[0].(map[string]any)["status"] != "canceled" {
		t.Fatalf("unexpected scheduled rides: %v", list["rides"])
	}
}

func TestServer_PreferencesRoundTripWithThemeAlias(t *testing.T) {
	addr := startServer(t)

	passenger := dialClient(t, addr)
	registerUser(t, passenger, "pia", "passenger", "Hamra", nil)
	login(t, passenger, "pia")

	passenger.mustSucceed(map[string]any{
		"action":   "save_preferences",
		"username": "pia",
		"preferences": map[string]any{
			"theme":     "dark",
			"font_size": 16,
		},
	})

	resp := passenger.mustSucceed(map[string]any{
		"action":   "get_preferences",
		"username": "pia",
	})
	prefs := resp["preferences"].(map[string]any)
	if prefs["theme_name"] != "dark" || prefs["theme"] != "dark" {
		t.Fatalf("theme alias lost: %v", prefs)
	}
	if prefs["font_size"].(float64) != 16 {
		t.Fatalf("font_size = %v", prefs["font_size"])
	}
}

func TestServer_MalformedJSONClosesConnection(t *testing.T) {
	addr := startServer(t)

	client := dialClient(t, addr)
	if _, err := client.conn.Write([]byte("this is not json\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	client.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := client.reader.ReadBytes('\n'); err == nil {
		t.Fatal("expected connection to close without a reply")
	}
}

func TestServer_UnknownActionKeepsConnectionOpen(t *testing.T) {
	addr := startServer(t)

	client := dialClient(t, addr)
	resp := client.request(map[string]any{"action": "make_coffee"})
	if resp["status"] != "error" || resp["message"] != "Unknown action." {
		t.Fatalf("unexpected reply: %v", resp)
	}

	// The connection still serves requests afterwards.
	registerUser(t, client, "pia", "passenger", "Hamra", nil)
}
