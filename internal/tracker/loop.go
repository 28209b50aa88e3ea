package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ghtrack/internal/github"
	logx "ghtrack/pkg/logx"
)

// LoopConfig carries the polling knobs shared by every task loop.
type LoopConfig struct {
	Interval time.Duration
	// HideErrors suppresses per-poll error notifications to the chat.
	// Errors are still logged either way.
	HideErrors bool
}

// loop drives one task until ctx is canceled: fetch, advance the
// watermark, emit, persist, sleep.
//
// Poll failures never kill the loop. A rate-limited response needs no
// special handling here: the limiter already recorded the exhausted quota,
// so the next iteration's pre-flight check sleeps until the reset.
func (r *Registry) loop(ctx context.Context, dest string, task *Task) {
	label := task.Target.Label(task.Mode)
	log := r.log.With(
		logx.String("task", task.ID),
		logx.String("mode", string(task.Mode)),
		logx.String("target", label),
	)
	log.Info("tracking started")
	defer log.Info("tracking stopped")

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		r.pollOnce(ctx, dest, task, log)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Registry) pollOnce(ctx context.Context, dest string, task *Task, log logx.Logger) {
	events, err := r.fetch(ctx, task)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return
		}
		log.Warn("poll failed", logx.Err(err))
		if !r.cfg.HideErrors {
			r.sink.Notify(dest, pollErrorLine(task, err))
		}
		return
	}

	// The loop is the only writer of its watermark, but List and persist
	// read it concurrently, so both sides go through r.mu.
	r.mu.Lock()
	current := task.Watermark
	r.mu.Unlock()

	emit, next := advance(task.Mode, current, events)
	moved := !watermarkEqual(current, next)

	r.mu.Lock()
	task.Watermark = next
	r.mu.Unlock()

	for _, ev := range emit {
		line := summarize(task.Mode, task.Target, ev)
		log.Debug("event emitted", logx.String("event_id", ev.ID), logx.String("type", ev.Type))
		r.sink.Notify(dest, line)
		if r.recorder != nil {
			r.recorder.RecordEvent(dest, task.ID, ev, line)
		}
	}

	if moved {
		if err := r.persist(); err != nil {
			log.Warn("task snapshot save failed", logx.Err(err))
		}
	}
}

func (r *Registry) fetch(ctx context.Context, task *Task) ([]github.Event, error) {
	switch task.Mode {
	case ModeRepo:
		return r.source.RepoEvents(ctx, task.Target.Owner, task.Target.Repo)
	default:
		return r.source.UserEvents(ctx, task.Target.Username)
	}
}

func pollErrorLine(task *Task, err error) string {
	label := task.Target.Label(task.Mode)
	var rl *github.RateLimitedError
	switch {
	case errors.Is(err, github.ErrNotFound):
		return fmt.Sprintf("[%s] not found; it may have been deleted or made private", label)
	case errors.As(err, &rl):
		return fmt.Sprintf("[%s] GitHub rate limit reached; resuming in %s", label, rl.Wait.Round(time.Second))
	default:
		return fmt.Sprintf("[%s] poll failed: %v", label, err)
	}
}

func watermarkEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
