package journal

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/autopeer-io/groundpeer/pkg/errdefs"
)

func newJournal(t *testing.T) *Journal {
	t.Helper()
	j := New(filepath.Join(t.TempDir(), "journal.db"))
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordAndList(t *testing.T) {
	j := newJournal(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, e := range []Entry{
		{Role: "mother", Action: "connect", Status: "success", Duration: 1500 * time.Millisecond},
		{Role: "top", Action: "arm", Status: "timeout", Duration: 10 * time.Second, Error: "arm timed out"},
		{Role: "mother", Action: "upload", Status: "success", Duration: 200 * time.Millisecond},
	} {
		e.Time = base.Add(time.Duration(i) * time.Minute)
		if _, err := j.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	tests := []struct {
		name    string
		role    string
		limit   int
		actions []string
	}{
		{name: "all newest first", limit: 10, actions: []string{"upload", "arm", "connect"}},
		{name: "by role", role: "mother", limit: 10, actions: []string{"upload", "connect"}},
		{name: "limit", limit: 1, actions: []string{"upload"}},
		{name: "unknown role", role: "bottom", limit: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := j.List(ctx, tt.role, tt.limit)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			var got []string
			for _, e := range entries {
				got = append(got, e.Action)
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.actions) {
				t.Errorf("actions = %v, want %v", got, tt.actions)
			}
		})
	}

	entries, err := j.List(ctx, "top", 1)
	if err != nil || len(entries) != 1 {
		t.Fatalf("List top: %v %v", entries, err)
	}
	e := entries[0]
	if !e.Time.Equal(base.Add(time.Minute)) || e.Duration != 10*time.Second || e.Error != "arm timed out" {
		t.Errorf("round trip mismatch: %+v", e)
	}
}

func TestObserveAction(t *testing.T) {
	j := newJournal(t)
	j.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }

	j.ObserveAction("bottom", "start", 3*time.Second, fmt.Errorf("wrap: %w", errdefs.ErrStartTimeout))
	j.ObserveAction("bottom", "land", time.Second, errors.New("link lost"))
	j.ObserveAction("bottom", "arm", time.Second, nil)

	entries, err := j.List(context.Background(), "bottom", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var statuses []string
	for _, e := range entries {
		statuses = append(statuses, e.Status)
	}
	if want := "[success failed timeout]"; fmt.Sprint(statuses) != want {
		t.Errorf("statuses = %v, want %s", statuses, want)
	}
	if !strings.Contains(entries[2].String(), "bottom start timeout") {
		t.Errorf("String() = %q", entries[2].String())
	}
}

func TestCloseIdempotent(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "journal.db"))
	if _, err := j.Record(context.Background(), Entry{Role: "mother", Action: "arm", Status: "success"}); err != nil {
		t.Fatal(err)
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
