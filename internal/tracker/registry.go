package tracker

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	rtsup "ghtrack/internal/runtime/supervisor"
	logx "ghtrack/pkg/logx"
)

type entry struct {
	task   *Task
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry owns every running task, keyed by destination chat then task
// id. It starts loops, stops them, and keeps the persisted snapshot in
// step with the live table.
type Registry struct {
	cfg      LoopConfig
	source   EventSource
	store    Store
	sink     Sink
	recorder EventRecorder
	log      logx.Logger

	mu    sync.Mutex
	tasks map[string]map[string]*entry
	sup   *rtsup.Supervisor
}

func NewRegistry(cfg LoopConfig, source EventSource, store Store, sink Sink, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{
		cfg:    cfg,
		source: source,
		store:  store,
		sink:   sink,
		log:    log,
		tasks:  map[string]map[string]*entry{},
	}
}

// SetRecorder installs the optional event history recorder. Must be called
// before Start.
func (r *Registry) SetRecorder(rec EventRecorder) { r.recorder = rec }

// Start loads the persisted task table and resumes every task. Watermarks
// survive restarts, so a resumed task picks up where it left off instead
// of re-announcing old events.
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.sup != nil {
		r.mu.Unlock()
		return fmt.Errorf("tracker: already started")
	}
	r.sup = rtsup.New(ctx, rtsup.WithLogger(r.log.With(logx.String("comp", "tracker"))))
	r.mu.Unlock()

	saved, err := r.store.LoadAll()
	if err != nil {
		return fmt.Errorf("tracker: load tasks: %w", err)
	}

	resumed := 0
	for dest, byID := range saved {
		for _, t := range byID {
			task := t
			if err := r.start(dest, &task); err != nil {
				r.log.Warn("task resume failed", logx.String("task", task.ID), logx.Err(err))
				continue
			}
			resumed++
		}
	}
	if resumed > 0 {
		r.log.Info("tasks resumed", logx.Int("count", resumed))
	}
	return nil
}

// Stop cancels every loop and waits for them to drain. The persisted
// snapshot is left intact; tasks resume on the next start.
func (r *Registry) Stop(ctx context.Context) error {
	r.mu.Lock()
	sup := r.sup
	r.sup = nil
	r.mu.Unlock()

	if sup == nil {
		return nil
	}
	// Drain the loops before touching the table. A loop past its fetch
	// still finishes its poll, and clearing first would let it snapshot
	// an empty table over the on-disk copy. persist also refuses to
	// write once r.sup is nil, which covers loops that outlive the
	// drain deadline.
	err := sup.Stop(ctx)

	r.mu.Lock()
	r.tasks = map[string]map[string]*entry{}
	r.mu.Unlock()
	return err
}

// Add registers a new task for dest and starts its loop immediately.
func (r *Registry) Add(dest string, mode Mode, target Target) (Task, error) {
	task := &Task{ID: newTaskID(), Mode: mode, Target: target}
	if err := r.start(dest, task); err != nil {
		return Task{}, err
	}
	if err := r.persist(); err != nil {
		r.log.Warn("task snapshot save failed", logx.Err(err))
	}
	r.log.Info("task added",
		logx.String("task", task.ID),
		logx.String("mode", string(mode)),
		logx.String("target", target.Label(mode)))
	return *task, nil
}

func (r *Registry) start(dest string, task *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sup == nil {
		return fmt.Errorf("tracker: not started")
	}

	byID := r.tasks[dest]
	if byID == nil {
		byID = map[string]*entry{}
		r.tasks[dest] = byID
	}
	for byID[task.ID] != nil {
		// uuid prefix collision within one chat; just roll again
		task.ID = newTaskID()
	}

	loopCtx, cancel := context.WithCancel(r.sup.Context())
	e := &entry{task: task, cancel: cancel, done: make(chan struct{})}
	byID[task.ID] = e

	r.sup.Go0("tracker."+task.ID, func(context.Context) {
		defer close(e.done)
		r.loop(loopCtx, dest, task)
	})
	return nil
}

// Remove cancels one task, waits for its loop to exit, and drops it from
// both the live table and the persisted snapshot.
func (r *Registry) Remove(ctx context.Context, dest, id string) error {
	r.mu.Lock()
	byID := r.tasks[dest]
	e := byID[id]
	r.mu.Unlock()
	if e == nil {
		return fmt.Errorf("tracker: no task %q", id)
	}

	e.cancel()
	select {
	case <-e.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.mu.Lock()
	delete(byID, id)
	if len(byID) == 0 {
		delete(r.tasks, dest)
	}
	r.mu.Unlock()

	if err := r.persist(); err != nil {
		r.log.Warn("task snapshot save failed", logx.Err(err))
	}
	r.log.Info("task removed", logx.String("task", id))
	return nil
}

// RemoveAll stops every task of one destination. Returns how many were
// removed.
func (r *Registry) RemoveAll(ctx context.Context, dest string) (int, error) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.tasks[dest]))
	for id := range r.tasks[dest] {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		if err := r.Remove(ctx, dest, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// List returns a snapshot of dest's tasks.
func (r *Registry) List(dest string) []Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Task, 0, len(r.tasks[dest]))
	for _, e := range r.tasks[dest] {
		out = append(out, *e.task)
	}
	return out
}

// Count returns the total number of live tasks across destinations.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, byID := range r.tasks {
		n += len(byID)
	}
	return n
}

// persist writes the current task table through the store. Loops call it
// after every watermark move, so a crash never replays more than one
// polling interval of events. During shutdown it is a no-op: the snapshot
// on disk must outlive the process, and a draining loop must not overwrite
// it with a partial table.
func (r *Registry) persist() error {
	r.mu.Lock()
	if r.sup == nil {
		r.mu.Unlock()
		return nil
	}
	snap := make(map[string]map[string]Task, len(r.tasks))
	for dest, byID := range r.tasks {
		m := make(map[string]Task, len(byID))
		for id, e := range byID {
			m[id] = *e.task
		}
		snap[dest] = m
	}
	r.mu.Unlock()
	return r.store.SaveAll(snap)
}

func newTaskID() string {
	return uuid.NewString()[:8]
}
