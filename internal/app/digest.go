package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"ghtrack/internal/config"
	"ghtrack/internal/notifier"
	kit "ghtrack/internal/transport"
	logx "ghtrack/pkg/logx"
)

// digestService posts a periodic status summary (task count, events in
// the last 24h, remaining quota) to one configured chat.
type digestService struct {
	app    *App
	target kit.ChatTarget
	c      *cron.Cron
}

func newDigestService(a *App, cfg config.DigestConfig) (*digestService, error) {
	loc := time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("digest.timezone: %w", err)
		}
		loc = l
	}

	d := &digestService{
		app:    a,
		target: kit.ChatTarget{ChatID: cfg.ChatID, ThreadID: cfg.ThreadID},
		c:      cron.New(cron.WithLocation(loc)),
	}
	if _, err := d.c.AddFunc(cfg.Schedule, d.run); err != nil {
		return nil, fmt.Errorf("digest.schedule: %w", err)
	}
	return d, nil
}

func (d *digestService) Start() {
	d.c.Start()
	d.app.log.Info("digest scheduled", logx.Int64("chat_id", d.target.ChatID))
}

func (d *digestService) Stop(ctx context.Context) {
	stopped := d.c.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
}

func (d *digestService) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var b strings.Builder
	b.WriteString("Daily tracking digest\n")
	fmt.Fprintf(&b, "Active tasks: %d\n", d.app.registry.Count())

	if d.app.hist != nil {
		since := time.Now().Add(-24 * time.Hour)
		n, err := d.app.hist.CountSince(ctx, destKey(d.target), since)
		if err == nil {
			fmt.Fprintf(&b, "Events notified here in the last 24h: %d\n", n)
		}
	}

	q := d.app.limiter.Snapshot()
	if q.Known {
		fmt.Fprintf(&b, "GitHub quota: %d/%d remaining", q.Remaining, q.Limit)
	} else {
		b.WriteString("GitHub quota: unknown")
	}

	if err := d.app.notif.Notify(ctx, notifier.Notification{
		Target: d.target,
		Text:   b.String(),
	}); err != nil {
		d.app.log.Warn("digest delivery failed", logx.Err(err))
	}
}
