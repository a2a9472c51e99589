// Package fetcher stores downloaded files in a content-addressed cache and
// runs download tasks against it.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/tie/mcfetch/graph"
)

const DefaultConcurrency = 8

// Retry bounds attempts per task. Zero fields take defaults.
type Retry struct {
	Attempts   int
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

var DefaultRetry = Retry{
	Attempts:   4,
	Initial:    500 * time.Millisecond,
	Max:        10 * time.Second,
	Multiplier: 2,
}

func (r Retry) attempts() int {
	if r.Attempts <= 0 {
		return DefaultRetry.Attempts
	}
	return r.Attempts
}

func (r Retry) backoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.Initial
	if b.InitialInterval <= 0 {
		b.InitialInterval = DefaultRetry.Initial
	}
	b.MaxInterval = r.Max
	if b.MaxInterval <= 0 {
		b.MaxInterval = DefaultRetry.Max
	}
	b.Multiplier = r.Multiplier
	if b.Multiplier <= 1 {
		b.Multiplier = DefaultRetry.Multiplier
	}
	b.Reset()
	return b
}

type Fetcher struct {
	Cache  *Cache
	Client *http.Client
	// Concurrency bounds simultaneous transfers.
	Concurrency int
	Retry       Retry
	// Limiter, when set, paces requests.
	Limiter *rate.Limiter
}

func (dl *Fetcher) client() *http.Client {
	if dl.Client != nil {
		return dl.Client
	}
	return http.DefaultClient
}

// run holds the state shared by the tasks of one Run call.
type run struct {
	slots  *semaphore.Weighted
	flight singleflight.Group
}

// Run executes tasks and reports one outcome per task, in task order.
// Failures are isolated per task. Once ctx is done no new transfer starts
// and the remaining tasks are reported cancelled.
func (dl *Fetcher) Run(ctx context.Context, tasks []graph.Task) *Report {
	rep := &Report{
		RunID:    uuid.NewString(),
		Started:  time.Now().UTC(),
		Outcomes: make([]Outcome, len(tasks)),
	}
	log := zerolog.Ctx(ctx).With().Str("run", rep.RunID).Logger()
	ctx = log.WithContext(ctx)

	n := dl.Concurrency
	if n <= 0 {
		n = DefaultConcurrency
	}
	r := &run{slots: semaphore.NewWeighted(int64(n))}

	var wg sync.WaitGroup
	for i, t := range tasks {
		if ctx.Err() != nil {
			rep.Outcomes[i] = Outcome{Task: t, Kind: Cancelled, Err: ctx.Err()}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			o := dl.runTask(ctx, r, t)
			ev := log.Debug()
			if !o.Kind.Succeeded() {
				ev = log.Warn().Err(o.Err)
			}
			ev.Str("task", t.ID()).Str("outcome", string(o.Kind)).Int("attempts", o.Attempts).Msg("task done")
			rep.Outcomes[i] = o
		}()
	}
	wg.Wait()
	rep.Finished = time.Now().UTC()

	c := rep.Counts()
	log.Info().
		Int("tasks", len(tasks)).
		Int("cached", c[Cached]).
		Int("downloaded", c[Downloaded]).
		Int("failed", c[Failed]).
		Int("cancelled", c[Cancelled]).
		Msg("run finished")
	return rep
}

type result struct {
	kind     OutcomeKind
	attempts int
}

func (dl *Fetcher) runTask(ctx context.Context, r *run, t graph.Task) Outcome {
	o := Outcome{Task: t}
	if _, ok, err := dl.Cache.Lookup(t.SHA1); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("hash", t.SHA1).Msg("cache lookup")
	} else if ok {
		o.Kind = Cached
		return dl.retain(o)
	}

	// Only one task per hash fetches; the rest wait for it and find the
	// object cached.
	leader := false
	v, err, _ := r.flight.Do(t.SHA1, func() (any, error) {
		leader = true
		if _, ok, err := dl.Cache.Lookup(t.SHA1); err == nil && ok {
			return result{kind: Cached}, nil
		}
		return dl.download(ctx, r, t)
	})
	res, _ := v.(result)
	o.Attempts = res.attempts
	o.Err = err
	switch {
	case err == nil && leader:
		o.Kind = res.kind
	case err == nil:
		o.Kind = Cached
		o.Attempts = 0
	default:
		o.Kind = res.kind
		if o.Kind == "" {
			o.Kind = Failed
		}
		return o
	}
	return dl.retain(o)
}

// retain records the task's destination on its entry. A task whose
// destination cannot be recorded fails.
func (dl *Fetcher) retain(o Outcome) Outcome {
	if err := dl.Cache.Retain(o.Task.SHA1, o.Task.Dest); err != nil {
		o.Kind, o.Err = Failed, err
	}
	return o
}

type state int

const (
	statePending state = iota
	stateInFlight
	stateVerified
	stateIntegrityFailed
	stateTransportFailed
	stateFailed
	stateCancelled
)

// download drives one task through its states until it is verified or
// gives up. Both failure states go back in flight after a backoff delay
// while attempts remain.
func (dl *Fetcher) download(ctx context.Context, r *run, t graph.Task) (result, error) {
	log := zerolog.Ctx(ctx).With().Str("task", t.ID()).Logger()
	var (
		st       = statePending
		last     = statePending
		attempts int
		lastErr  error
		bo       = dl.Retry.backoff()
	)
	for {
		switch st {
		case statePending:
			if ctx.Err() != nil {
				st, lastErr = stateCancelled, ctx.Err()
				continue
			}
			if err := r.slots.Acquire(ctx, 1); err != nil {
				st, lastErr = stateCancelled, err
				continue
			}
			st = stateInFlight

		case stateInFlight:
			attempts++
			err := dl.attempt(ctx, t)
			r.slots.Release(1)
			lastErr = err
			var terr *TransportError
			switch {
			case err == nil:
				st = stateVerified
			case ctx.Err() != nil:
				st, lastErr = stateCancelled, ctx.Err()
			case errors.Is(err, ErrIntegrity):
				st = stateIntegrityFailed
			case errors.As(err, &terr) && !terr.Temporary():
				last, st = stateTransportFailed, stateFailed
			default:
				st = stateTransportFailed
			}

		case stateIntegrityFailed, stateTransportFailed:
			last = st
			if attempts >= dl.Retry.attempts() {
				st = stateFailed
				continue
			}
			delay := bo.NextBackOff()
			log.Debug().Err(lastErr).Int("attempt", attempts).Dur("delay", delay).Msg("retrying")
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				st, lastErr = stateCancelled, ctx.Err()
				continue
			case <-timer.C:
			}
			if err := r.slots.Acquire(ctx, 1); err != nil {
				st, lastErr = stateCancelled, err
				continue
			}
			st = stateInFlight

		case stateVerified:
			return result{kind: Downloaded, attempts: attempts}, nil

		case stateFailed:
			if last == stateIntegrityFailed {
				log.Debug().Err(lastErr).Int("attempts", attempts).Msg("integrity retries exhausted")
			}
			return result{kind: Failed, attempts: attempts}, lastErr

		case stateCancelled:
			return result{kind: Cancelled, attempts: attempts}, lastErr
		}
	}
}

// attempt streams t.URL into a scratch file, hashing as it goes, and
// commits it to the cache when the digest and size match.
func (dl *Fetcher) attempt(ctx context.Context, t graph.Task) (err error) {
	if dl.Limiter != nil {
		if err := dl.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return err
	}
	resp, err := dl.client().Do(req)
	if err != nil {
		return &TransportError{URL: t.URL, Err: err}
	}
	body := resp.Body
	defer func() {
		cerr := body.Close()
		if cerr != nil {
			zerolog.Ctx(ctx).Debug().Err(cerr).Str("url", t.URL).Msg("close response body")
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return &TransportError{URL: t.URL, StatusCode: resp.StatusCode}
	}

	f, err := dl.Cache.createTemp(t.SHA1)
	if err != nil {
		return err
	}
	tmpName := f.Name()
	committed := false
	defer func() {
		if !committed {
			dl.Cache.removeTemp(ctx, tmpName)
		}
	}()

	h := newHasher()
	// One byte past the expected size is enough to detect an oversized
	// body.
	_, err = io.Copy(io.MultiWriter(f, h), io.LimitReader(body, t.Size+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransportError{URL: t.URL, Err: err}
	}

	sums := h.Sums()
	if h.n != t.Size || sums.SHA1 != t.SHA1 {
		return fmt.Errorf("%s: %w: got sha1 %s size %d, want sha1 %s size %d",
			t.URL, ErrIntegrity, sums.SHA1, h.n, t.SHA1, t.Size)
	}
	if _, err := dl.Cache.commit(ctx, tmpName, t.SHA1, t.Size, sums, ""); err != nil {
		return err
	}
	committed = true
	return nil
}
