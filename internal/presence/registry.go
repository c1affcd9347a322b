// Package presence tracks which users currently hold an open connection and,
// for drivers, their live availability status. State lives for the process
// lifetime only; nothing here is persisted.
package presence

import (
	"errors"
	"sync"
)

// Status is a connected driver's availability.
type Status string

const (
	StatusAvailable Status = "available"
	StatusDND       Status = "dnd"
	// StatusOffline is reported for drivers without a live connection. It is
	// never stored; it only appears in listings.
	StatusOffline Status = "offline"
)

// ErrNotConnectedDriver is returned when a status change targets a user who
// is not currently a connected driver.
var ErrNotConnectedDriver = errors.New("presence: not a connected driver")

// Peer is a live connection handle capable of receiving a push message.
type Peer interface {
	Send(message any) error
}

// Registry is the concurrent-safe presence store shared by every session.
// A username occupies at most one of the two connection maps; registering a
// role already held by another connection silently replaces the old handle.
type Registry struct {
	mu         sync.RWMutex
	drivers    map[string]Peer
	passengers map[string]Peer
	status     map[string]Status
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		drivers:    make(map[string]Peer),
		passengers: make(map[string]Peer),
		status:     make(map[string]Status),
	}
}

// RegisterDriver binds a driver connection. An existing availability status
// survives a reconnect; otherwise the driver starts out available.
func (r *Registry) RegisterDriver(username string, peer Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.passengers, username)
	r.drivers[username] = peer
	if _, ok := r.status[username]; !ok {
		r.status[username] = StatusAvailable
	}
}

// RegisterPassenger binds a passenger connection.
func (r *Registry) RegisterPassenger(username string, peer Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.drivers, username)
	delete(r.status, username)
	r.passengers[username] = peer
}

// Unregister removes the user from whichever connection map holds it and
// clears any driver status.
func (r *Registry) Unregister(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.drivers, username)
	delete(r.passengers, username)
	delete(r.status, username)
}

// SetStatus updates a connected driver's availability.
func (r *Registry) SetStatus(username string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.drivers[username]; !ok {
		return ErrNotConnectedDriver
	}
	r.status[username] = status
	return nil
}

// IsOnlineAvailable reports whether the driver is connected and available.
// Offline drivers are unavailable regardless of any prior status.
func (r *Registry) IsOnlineAvailable(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.drivers[username]; !ok {
		return false
	}
	status, ok := r.status[username]
	if !ok {
		status = StatusAvailable
	}
	return status == StatusAvailable
}

// DriverStatus reports a driver's live status for listings: offline without
// a connection, otherwise the stored availability.
func (r *Registry) DriverStatus(username string) (online bool, status Status) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.drivers[username]; !ok {
		return false, StatusOffline
	}
	status, ok := r.status[username]
	if !ok {
		status = StatusAvailable
	}
	return true, status
}

// DriverPeer looks up a driver's connection handle.
func (r *Registry) DriverPeer(username string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	peer, ok := r.drivers[username]
	return peer, ok
}

// PassengerPeer looks up a passenger's connection handle.
func (r *Registry) PassengerPeer(username string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	peer, ok := r.passengers[username]
	return peer, ok
}
