package poster

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	logx "adsposter/pkg/logx"
)

// DefaultPlaceholder is posted when content generation fails or returns blank text.
const DefaultPlaceholder = "TEST 01"

// Executor walks a request's schedule against one composer.
// It is not safe for concurrent runs; the Manager serializes them.
type Executor struct {
	Content     ContentGenerator
	Media       MediaPool
	Pacer       *Pacer
	Placeholder string
	Log         logx.Logger
	Metrics     Metrics
}

// Execution binds one run's state to an Executor.Run call.
type Execution struct {
	Token    *CancelToken
	Rand     *rand.Rand
	Request  Request
	Composer Composer

	// OnJob, if set, observes every finished job.
	OnJob func(JobResult)
}

// Run executes every job in order. It returns a fatal error (session,
// media or composer failure) with the partial report; cancellation is
// reported through Report.Cancelled with a nil error.
func (x *Executor) Run(ctx context.Context, e Execution) (Report, error) {
	log := x.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	metrics := x.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	pacer := x.Pacer
	if pacer == nil {
		pacer = NewPacer(0, 0)
	}
	pacer.normalized()
	rng := e.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	var rep Report
	jobs := e.Request.Jobs()
	settings := e.Request.Settings.Normalize()

	for i, entry := range jobs {
		if e.Token.Cancelled() {
			log.Info("stop requested, leaving schedule", logx.Int("job", i+1), logx.Int("jobs", len(jobs)))
			rep.Cancelled = true
			return rep, nil
		}

		jlog := log.With(logx.Int("job", i+1), logx.Int("jobs", len(jobs)))
		res, err := x.runJob(ctx, jlog, e, rng, settings, i, entry)
		if errors.Is(err, ErrCancelled) {
			jlog.Info("stop requested mid-job")
			rep.Cancelled = true
			return rep, nil
		}
		if err != nil {
			jlog.Error("job failed, aborting run", logx.Err(err))
			return rep, err
		}
		rep.add(res)
		metrics.JobFinished(res.Outcome)
		if e.OnJob != nil {
			e.OnJob(res)
		}

		if i == len(jobs)-1 {
			break
		}
		d := pacer.Draw(rng, settings.DelayMin, settings.DelayMax)
		if d <= 0 {
			continue
		}
		jlog.Info("delay before next post", logx.Duration("delay", d))
		if slept, interrupted := pacer.Pace(e.Token, d); interrupted {
			jlog.Info("stop requested during delay", logx.Duration("slept", slept))
			rep.Cancelled = true
			return rep, nil
		}
	}
	return rep, nil
}

func (x *Executor) runJob(ctx context.Context, log logx.Logger, e Execution, rng *rand.Rand, s PacingSettings, idx int, entry ScheduleEntry) (JobResult, error) {
	res := JobResult{Index: idx}
	c := e.Composer

	if err := c.OpenComposer(ctx); err != nil {
		return res, fmt.Errorf("%w: open composer: %w", ErrComposer, err)
	}

	if x.Media == nil {
		return res, fmt.Errorf("%w: no media pool configured", ErrMediaUnavailable)
	}
	pool, err := x.Media.List(ctx)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrMediaUnavailable, err)
	}
	chosen, err := SelectMedia(rng, pool, s.ImagesMin, s.ImagesMax)
	if err != nil {
		return res, err
	}
	log.Debug("media selected", logx.Int("count", len(chosen)), logx.Int("pool", len(pool)))

	for n, path := range chosen {
		if e.Token.Cancelled() {
			return res, ErrCancelled
		}
		if err := c.AttachMedia(ctx, path); err != nil {
			return res, fmt.Errorf("%w: attach media %d: %w", ErrComposer, n+1, err)
		}
		res.Media = append(res.Media, path)
	}
	if e.Token.Cancelled() {
		return res, ErrCancelled
	}

	text, placeholder := x.compose(ctx, log, e.Request)
	res.Placeholder = placeholder
	if err := c.SetText(ctx, text); err != nil {
		return res, fmt.Errorf("%w: set text: %w", ErrComposer, err)
	}

	if !entry.Deferred() {
		if err := c.Publish(ctx); err != nil {
			return res, fmt.Errorf("%w: publish: %w", ErrComposer, err)
		}
		res.Outcome = JobPublished
		log.Info("post published", logx.Int("media", len(res.Media)), logx.Bool("placeholder", placeholder))
		return res, nil
	}

	target, err := EncodeSchedule(entry)
	if err != nil {
		return x.skip(log, res, err), nil
	}
	if err := c.SchedulePublish(ctx, target); err != nil {
		return x.skip(log, res, &JobError{Index: idx, Kind: ErrComposer, Err: err}), nil
	}
	res.Outcome = JobScheduled
	res.ScheduledAt = target.String()
	log.Info("post scheduled", logx.String("at", res.ScheduledAt), logx.Int("media", len(res.Media)))
	return res, nil
}

func (x *Executor) skip(log logx.Logger, res JobResult, err error) JobResult {
	log.Warn("job skipped", logx.Err(err))
	res.Outcome = JobSkipped
	res.Error = err.Error()
	return res
}

// compose returns the post text, falling back to the placeholder on failure or blank output.
func (x *Executor) compose(ctx context.Context, log logx.Logger, req Request) (string, bool) {
	placeholder := strings.TrimSpace(x.Placeholder)
	if placeholder == "" {
		placeholder = DefaultPlaceholder
	}
	if x.Content == nil {
		return placeholder, true
	}
	text, err := x.Content.Generate(ctx, req.Context, req.Credential, req.Model)
	if err != nil {
		log.Warn("content generation failed, using placeholder", logx.Err(fmt.Errorf("%w: %w", ErrContentGeneration, err)))
		return placeholder, true
	}
	text = strings.TrimSpace(text)
	if text == "" {
		log.Warn("content generation returned blank text, using placeholder")
		return placeholder, true
	}
	return text, false
}
