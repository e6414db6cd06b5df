package appraise

import (
	"context"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/robfig/cron/v3"
	"k8s.io/utils/clock"
)

// Schedule triggers a rebuild of the projection at the intervals described by
// the cron spec. Schedule is a blocking call and returns when ctx is
// cancelled or the spec fails to parse. A tick that finds the previous
// rebuild still running is skipped and logged rather than queued.
func (r *Rebuilder) Schedule(ctx context.Context, name, spec, initiatedBy, reason string) error {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return errors.Wrap(err, "parse cron spec", j.KV("spec", spec))
	}

	for {
		next := schedule.Next(r.clock.Now())

		err := waitUntil(ctx, r.clock, next)
		if err != nil {
			return err
		}

		_, err = r.Start(ctx, name, initiatedBy, reason)
		if errors.Is(err, ErrRebuildInProgress) {
			// NoReturnErr: Rather skip this tick than queue rebuilds behind a
			// long-running one.
			r.logger.Debug(ctx, "scheduled rebuild skipped - previous run still in flight", MKV{
				"projection": name,
				"spec":       spec,
			})
		} else if err != nil {
			r.logger.Error(ctx, errors.Wrap(err, "scheduled rebuild", j.MKV{
				"projection": name,
				"spec":       spec,
			}))
		}
	}
}

func waitUntil(ctx context.Context, c clock.Clock, t time.Time) error {
	d := t.Sub(c.Now())
	if d <= 0 {
		return ctx.Err()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.After(d):
		return nil
	}
}
