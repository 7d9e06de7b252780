package ports

import (
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingEnumerator struct {
	calls atomic.Int32
	list  []string
	err   error
}

func (c *countingEnumerator) List() ([]string, error) {
	c.calls.Add(1)
	return c.list, c.err
}

func TestListCandidatesReenumerates(t *testing.T) {
	enum := &countingEnumerator{list: []string{"/dev/ttyUSB0", "/dev/ttyUSB1"}}
	seq := ListCandidates(enum)

	first := slices.Collect(seq)
	enum.list = []string{"/dev/ttyACM0"}
	second := slices.Collect(seq)

	if !slices.Equal(first, []string{"/dev/ttyUSB0", "/dev/ttyUSB1"}) {
		t.Errorf("first snapshot = %v", first)
	}
	if !slices.Equal(second, []string{"/dev/ttyACM0"}) {
		t.Errorf("second snapshot = %v", second)
	}
	if n := enum.calls.Load(); n != 2 {
		t.Errorf("List called %d times, want 2", n)
	}
}

func TestListCandidatesError(t *testing.T) {
	enum := &countingEnumerator{list: []string{"a"}, err: errors.New("no permission")}
	if got := slices.Collect(ListCandidates(enum)); len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
}

func TestStateClaimRelease(t *testing.T) {
	s := NewState()

	var changes []int
	s.OnChange = func(n int) { changes = append(changes, n) }

	if !s.Claim("/dev/ttyUSB0", "mother") {
		t.Fatal("first claim failed")
	}
	if s.Claim("/dev/ttyUSB0", "top") {
		t.Error("second claim on the same device succeeded")
	}
	if owner, _ := s.Owner("/dev/ttyUSB0"); owner != "mother" {
		t.Errorf("owner = %q, want mother", owner)
	}

	got := s.Unclaimed(ListCandidates(StaticEnumerator{"/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyUSB2"}))
	if !slices.Equal(got, []string{"/dev/ttyUSB1", "/dev/ttyUSB2"}) {
		t.Errorf("Unclaimed = %v", got)
	}

	s.Release("/dev/ttyUSB0")
	s.Release("/dev/ttyUSB0")
	if s.IsClaimed("/dev/ttyUSB0") {
		t.Error("device still claimed after release")
	}
	if !slices.Equal(changes, []int{1, 0}) {
		t.Errorf("OnChange calls = %v, want [1 0]", changes)
	}
}

func TestStateConcurrentClaims(t *testing.T) {
	s := NewState()
	roles := []string{"mother", "top", "bottom", "spare"}

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Claim("/dev/ttyUSB0", roles[i%len(roles)]) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if n := wins.Load(); n != 1 {
		t.Errorf("%d goroutines claimed the device, want 1", n)
	}
	if len(s.Claimed()) != 1 {
		t.Errorf("Claimed = %v", s.Claimed())
	}
}

type holder string

func (h holder) Device() string { return string(h) }

func TestIsClaimed(t *testing.T) {
	active := []holder{"/dev/ttyUSB0", "/dev/ttyUSB2"}

	tests := []struct {
		device string
		want   bool
	}{
		{"/dev/ttyUSB0", true},
		{"/dev/ttyUSB1", false},
		{"/dev/ttyUSB2", true},
	}
	for _, tt := range tests {
		t.Run(tt.device, func(t *testing.T) {
			if got := IsClaimed(tt.device, active); got != tt.want {
				t.Errorf("IsClaimed(%q) = %v, want %v", tt.device, got, tt.want)
			}
		})
	}

	if IsClaimed[holder]("/dev/ttyUSB0", nil) {
		t.Error("IsClaimed with no holders returned true")
	}
}

func TestUnclaimedDoesNotBlockClaimsDuringEnumeration(t *testing.T) {
	s := NewState()
	claimed := make(chan bool, 1)

	// A slow enumeration during which another session takes a device.
	candidates := func(yield func(string) bool) {
		claimed <- s.Claim("/dev/ttyUSB1", "top")
		for _, d := range []string{"/dev/ttyUSB0", "/dev/ttyUSB1"} {
			if !yield(d) {
				return
			}
		}
	}

	done := make(chan []string, 1)
	go func() { done <- s.Unclaimed(candidates) }()

	select {
	case got := <-done:
		if !<-claimed {
			t.Fatal("claim during enumeration failed")
		}
		if !slices.Equal(got, []string{"/dev/ttyUSB0"}) {
			t.Errorf("Unclaimed = %v, want [/dev/ttyUSB0]", got)
		}
	case <-time.After(time.Second):
		t.Fatal("Claim blocked while candidates were enumerated")
	}
}
