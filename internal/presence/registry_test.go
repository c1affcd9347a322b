package presence

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

type peerStub struct {
	id string
}

func (p *peerStub) Send(message any) error { return nil }

func TestRegistryDriverLifecycle(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	peer := &peerStub{id: "conn-1"}

	r.RegisterDriver("amal", peer)

	if !r.IsOnlineAvailable("amal") {
		t.Fatal("freshly registered driver should be online and available")
	}
	if got, ok := r.DriverPeer("amal"); !ok || got != peer {
		t.Fatalf("DriverPeer returned %v, %v", got, ok)
	}
	if _, ok := r.PassengerPeer("amal"); ok {
		t.Fatal("driver must not appear in the passenger map")
	}

	if err := r.SetStatus("amal", StatusDND); err != nil {
		t.Fatalf("SetStatus returned error: %v", err)
	}
	if r.IsOnlineAvailable("amal") {
		t.Fatal("dnd driver must not be available")
	}
	if online, status := r.DriverStatus("amal"); !online || status != StatusDND {
		t.Fatalf("DriverStatus = %v, %v", online, status)
	}

	r.Unregister("amal")
	if r.IsOnlineAvailable("amal") {
		t.Fatal("unregistered driver must be unavailable")
	}
	if online, status := r.DriverStatus("amal"); online || status != StatusOffline {
		t.Fatalf("DriverStatus after unregister = %v, %v", online, status)
	}
	if err := r.SetStatus("amal", StatusAvailable); !errors.Is(err, ErrNotConnectedDriver) {
		t.Fatalf("SetStatus after unregister = %v, want ErrNotConnectedDriver", err)
	}
}

func TestRegistryRoleExclusivity(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.RegisterDriver("sami", &peerStub{id: "as-driver"})
	r.RegisterPassenger("sami", &peerStub{id: "as-passenger"})

	if _, ok := r.DriverPeer("sami"); ok {
		t.Fatal("username must occupy at most one connection map")
	}
	if _, ok := r.PassengerPeer("sami"); !ok {
		t.Fatal("latest registration should win")
	}
	if _, status := r.DriverStatus("sami"); status != StatusOffline {
		t.Fatal("driver status must be cleared when the user becomes a passenger")
	}
}

func TestRegistryLastWriterWins(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	first := &peerStub{id: "first"}
	second := &peerStub{id: "second"}

	r.RegisterDriver("lina", first)
	if err := r.SetStatus("lina", StatusDND); err != nil {
		t.Fatalf("SetStatus returned error: %v", err)
	}
	r.RegisterDriver("lina", second)

	if got, _ := r.DriverPeer("lina"); got != second {
		t.Fatal("re-login must replace the previous handle")
	}
	if _, status := r.DriverStatus("lina"); status != StatusDND {
		t.Fatal("availability status should survive a reconnect")
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := fmt.Sprintf("driver-%d", n%8)
			r.RegisterDriver(name, &peerStub{id: name})
			_ = r.SetStatus(name, StatusDND)
			_ = r.IsOnlineAvailable(name)
			_, _ = r.DriverPeer(name)
			r.Unregister(name)
		}(i)
	}
	wg.Wait()
}
