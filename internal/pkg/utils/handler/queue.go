package handler

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/vgarvardt/gue/v5"
)

// Opts configures a queue handler
type Opts[TM any] struct {
	backoff    gue.Backoff
	timeout    time.Duration
	maxRetries int32
	// failure decides if the job is retried, a zero delay means backoff
	failure func(context.Context, *TM, error, *gue.Job) (bool, time.Duration)
	// giveUp is called once when the job is dropped after a failure
	giveUp func(context.Context, *TM, error)
}

// Create wraps a typed message handler into a gue work func
func Create[TM any, SD any](data *SD, hf func(context.Context, *TM, *SD) error, opts *Opts[TM]) gue.WorkFunc {
	if opts == nil {
		goapp.Log.Panic().Msg("no opts provided")
	}
	return func(ctx context.Context, j *gue.Job) error {
		goapp.Log.Info().Str("queue", j.Queue).Str("type", j.Type).Int32("errCount", j.ErrorCount).Msg("got msg")

		var m TM
		if err := json.Unmarshal(j.Args, &m); err != nil {
			goapp.Log.Error().Err(err).Str("queue", j.Queue).Msg("could not unmarshal message, drop")
			return nil
		}
		wrkCtx, cf := context.WithTimeout(ctx, opts.timeout)
		defer cf()
		err := hf(wrkCtx, &m, data)
		if err == nil {
			return nil
		}
		goapp.Log.Warn().Err(err).Str("queue", j.Queue).Str("type", j.Type).Int32("errCount", j.ErrorCount).Msg("fail")

		retry, delay := false, time.Duration(0)
		if j.ErrorCount < opts.maxRetries {
			retry, delay = opts.failure(ctx, &m, err, j)
		}
		if !retry {
			goapp.Log.Error().Err(err).Str("queue", j.Queue).Str("type", j.Type).Int32("errCount", j.ErrorCount).Msg("give up")
			if opts.giveUp != nil {
				opts.giveUp(ctx, &m, err)
			}
			return nil
		}
		if delay == 0 {
			delay = opts.backoff(int(j.ErrorCount + 1))
		}
		goapp.Log.Info().Str("queue", j.Queue).Str("type", j.Type).Dur("after", delay).Msg("retry after")
		return gue.ErrRescheduleJobIn(delay, err.Error())
	}
}

// DefaultOpts retries three times with a jittered backoff
func DefaultOpts[TM any]() *Opts[TM] {
	return &Opts[TM]{timeout: time.Minute * 15, maxRetries: 3, failure: alwaysRetry[TM], backoff: DefaultBackoff()}
}

func DefaultBackoff() gue.Backoff {
	return func(retries int) time.Duration {
		return fullJitter(time.Duration(retries) * time.Second * 10)
	}
}

func NoBackoff() gue.Backoff {
	return func(retries int) time.Duration {
		return time.Millisecond
	}
}

func DefaultBackoffOrTest(test bool) gue.Backoff {
	if test {
		return NoBackoff()
	}
	return DefaultBackoff()
}

func (o *Opts[TM]) WithFailure(failure func(context.Context, *TM, error, *gue.Job) (bool, time.Duration)) *Opts[TM] {
	o.failure = failure
	return o
}

func (o *Opts[TM]) WithGiveUp(giveUp func(context.Context, *TM, error)) *Opts[TM] {
	o.giveUp = giveUp
	return o
}

func (o *Opts[TM]) WithTimeout(timeout time.Duration) *Opts[TM] {
	o.timeout = timeout
	return o
}

func (o *Opts[TM]) WithBackoff(b gue.Backoff) *Opts[TM] {
	o.backoff = b
	return o
}

func (o *Opts[TM]) WithMaxRetries(n int32) *Opts[TM] {
	o.maxRetries = n
	return o
}

// fullJitter return randomized duration in interval [0, t)
// as suggested by https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter/
func fullJitter(t time.Duration) time.Duration {
	return time.Duration(float64(t) * rand.Float64())
}

func alwaysRetry[TM any](_ context.Context, _ *TM, _ error, _ *gue.Job) (bool, time.Duration) {
	return true, 0
}
