package snapshot

import (
	"bytes"
	"context"
	"io/ioutil"
	"time"

	"go.uber.org/zap"

	"github.com/fleetops/butterfly/pkg/dat"
	"github.com/fleetops/butterfly/pkg/log"
	"github.com/fleetops/butterfly/pkg/rumor"
)

const (
	saveRetryBase = 1 * time.Second
	saveRetryMax  = 1 * time.Minute
	saveAttempts  = 5
)

// Runner periodically persists the rumor state to the primary dat file
// and, when configured, to a backup Snapshotter. Serialization encodes
// each store under its own short read guard, one store after another;
// disk and network writes never hold store locks.
type Runner struct {
	State    *rumor.State
	File     *dat.DatFile
	Backup   Snapshotter
	Interval time.Duration

	lastCounter uint64
	saved       bool
}

// Run loops until the context is cancelled, writing a snapshot each
// interval when something changed. Failed saves are retried with capped
// exponential backoff; load-time errors are the caller's problem.
func (r *Runner) Run(ctx context.Context) {
	log.Debug("starting snapshotter", zap.String("path", r.File.Path()))
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			counter := r.updateCounter()
			if r.saved && counter == r.lastCounter {
				log.Debug("rumor state unchanged, skipping snapshot")
				continue
			}
			if err := r.save(ctx); err != nil {
				log.Error("cannot save snapshot", zap.Error(err))
				continue
			}
			r.lastCounter = counter
			r.saved = true
		case <-ctx.Done():
			log.Debug("stopping snapshotter")
			return
		}
	}
}

// updateCounter folds the per-store counters into a single change marker.
func (r *Runner) updateCounter() uint64 {
	return r.State.Memberships.GetUpdateCounter() +
		r.State.Departures.GetUpdateCounter() +
		r.State.Services.GetUpdateCounter() +
		r.State.ServiceConfigs.GetUpdateCounter() +
		r.State.ServiceFiles.GetUpdateCounter() +
		r.State.Elections.GetUpdateCounter() +
		r.State.ElectionUpdates.GetUpdateCounter()
}

func (r *Runner) save(ctx context.Context) error {
	data, err := dat.Marshal(r.State)
	if err != nil {
		return err
	}
	var lastErr error
	delay := saveRetryBase
	for i := 0; i < saveAttempts; i++ {
		if lastErr = r.saveOnce(data); lastErr == nil {
			return nil
		}
		log.Warn("snapshot save failed, retrying",
			zap.Duration("backoff", delay),
			zap.Error(lastErr),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if delay *= 2; delay > saveRetryMax {
			delay = saveRetryMax
		}
	}
	return lastErr
}

func (r *Runner) saveOnce(data []byte) error {
	if err := r.File.WriteBytes(data); err != nil {
		return err
	}
	if r.Backup != nil {
		return r.Backup.Save(ioutil.NopCloser(bytes.NewReader(data)))
	}
	return nil
}

// Restore loads the cold-start state from the primary dat file.
func (r *Runner) Restore() error {
	contents, err := r.File.Read()
	if err != nil {
		return err
	}
	contents.RestoreInto(r.State)
	return nil
}
