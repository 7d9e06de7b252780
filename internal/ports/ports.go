// Package ports enumerates serial devices and tracks which of them are held
// by a vehicle session.
package ports

import (
	"fmt"
	"iter"
	"maps"
	"slices"
	"sync"

	"go.bug.st/serial"
)

// Enumerator lists the serial-style devices currently attached.
type Enumerator interface {
	List() ([]string, error)
}

// SerialEnumerator asks the operating system on every call.
type SerialEnumerator struct{}

func (SerialEnumerator) List() ([]string, error) {
	list, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	return list, nil
}

// StaticEnumerator returns a fixed device list.
type StaticEnumerator []string

func (s StaticEnumerator) List() ([]string, error) {
	return slices.Clone(s), nil
}

// ListCandidates yields the devices reported by enum. Each iteration of the
// returned sequence enumerates again. Enumeration errors end the sequence
// early.
func ListCandidates(enum Enumerator) iter.Seq[string] {
	return func(yield func(string) bool) {
		list, err := enum.List()
		if err != nil {
			return
		}
		for _, d := range list {
			if !yield(d) {
				return
			}
		}
	}
}

// State maps each claimed device to the role holding it. All claims go
// through one mutex so two connect attempts cannot land on the same device.
type State struct {
	mu      sync.Mutex
	claimed map[string]string

	// OnChange, if set, is called with the number of claimed devices after
	// every claim or release.
	OnChange func(claimed int)
}

func NewState() *State {
	return &State{claimed: make(map[string]string)}
}

// Claim records device as held by role. It returns false if the device is
// already held.
func (s *State) Claim(device, role string) bool {
	s.mu.Lock()
	if _, ok := s.claimed[device]; ok {
		s.mu.Unlock()
		return false
	}
	s.claimed[device] = role
	n := len(s.claimed)
	s.mu.Unlock()

	s.notify(n)
	return true
}

// Release frees device. Releasing an unclaimed device is a no-op.
func (s *State) Release(device string) {
	s.mu.Lock()
	if _, ok := s.claimed[device]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.claimed, device)
	n := len(s.claimed)
	s.mu.Unlock()

	s.notify(n)
}

func (s *State) IsClaimed(device string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.claimed[device]
	return ok
}

// Owner returns the role holding device.
func (s *State) Owner(device string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.claimed[device]
	return role, ok
}

// Claimed returns a copy of the device to role map.
func (s *State) Claimed() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.claimed)
}

// Unclaimed filters candidates down to the devices nobody holds, keeping
// their order. candidates is drained before the claim lock is taken.
func (s *State) Unclaimed(candidates iter.Seq[string]) []string {
	devices := slices.Collect(candidates)

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for _, d := range devices {
		if _, ok := s.claimed[d]; !ok {
			out = append(out, d)
		}
	}
	return out
}

func (s *State) notify(n int) {
	if s.OnChange != nil {
		s.OnChange(n)
	}
}

// Holder is anything that holds a device, such as a vehicle session.
type Holder interface {
	Device() string
}

// IsClaimed reports whether any of the active holders is attached to device.
func IsClaimed[H Holder](device string, active []H) bool {
	return slices.ContainsFunc(active, func(h H) bool {
		return h.Device() == device
	})
}
