package archive

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/autopeer-io/groundpeer/pkg/log"
)

const putTimeout = 30 * time.Second

// Resolver returns the mission file an action uploaded, or "" if the action
// uploads nothing.
type Resolver func(role, action string) string

// Recorder archives the mission file of every successful upload. It plugs
// into the coordinator as an observer.
type Recorder struct {
	archive Archive
	resolve Resolver
	now     func() time.Time
	wg      sync.WaitGroup
}

func NewRecorder(a Archive, resolve Resolver) *Recorder {
	return &Recorder{archive: a, resolve: resolve, now: time.Now}
}

func (r *Recorder) ObserveAction(role, action string, _ time.Duration, err error) {
	if err != nil {
		return
	}
	path := r.resolve(role, action)
	if path == "" {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		data, err := os.ReadFile(path)
		if err != nil {
			log.Error(err, "Failed to read mission for archiving", "role", role, "path", path)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), putTimeout)
		defer cancel()
		if err := r.archive.Put(ctx, ObjectKey(role, path, r.now()), data); err != nil {
			log.Error(err, "Failed to archive mission", "role", role, "path", path)
		}
	}()
}

// Wait blocks until pending uploads have finished.
func (r *Recorder) Wait() {
	r.wg.Wait()
}
