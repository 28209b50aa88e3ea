package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	kit "ghtrack/internal/transport"
	logx "ghtrack/pkg/logx"
)

type fakeAdapter struct {
	mu    sync.Mutex
	sent  []string
	chats []int64
	fail  int // fail this many sends before succeeding
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return kit.MessageRef{}, errors.New("flood control")
	}
	f.sent = append(f.sent, text)
	f.chats = append(f.chats, to.ChatID)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) SendPhoto(ctx context.Context, to kit.ChatTarget, photoURL, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}

func (f *fakeAdapter) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func TestNotifyDeliversWithPrefix(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	s := New(Config{Workers: 1, QueueSize: 8, RatePerSec: 100, Prefix: "[ghtrack]"}, ad, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.Notify(context.Background(), Notification{
		Target: kit.ChatTarget{ChatID: 7},
		Text:   "new IssuesEvent: opened Fix panic",
	}); err != nil {
		t.Fatalf("Notify error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(ad.all()) == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	sent := ad.all()
	if len(sent) != 1 || !strings.HasPrefix(sent[0], "[ghtrack] ") {
		t.Fatalf("sent = %v", sent)
	}
}

func TestNotifyQueueFull(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	s := New(Config{Workers: 1, QueueSize: 1, RatePerSec: 1}, ad, logx.Nop())
	// Not started: queue nil means stopped, so start first with a tiny queue
	// and a rate slow enough that the queue backs up.
	s.Start(context.Background())
	defer s.Stop(context.Background())

	full := false
	for i := 0; i < 50; i++ {
		if err := s.Notify(context.Background(), Notification{Target: kit.ChatTarget{ChatID: 1}, Text: "x"}); err != nil {
			if !errors.Is(err, ErrQueueFull) {
				t.Fatalf("unexpected error: %v", err)
			}
			full = true
			break
		}
	}
	if !full {
		t.Fatal("queue never reported full")
	}
}

func TestNotifyBeforeStartIsStopped(t *testing.T) {
	t.Parallel()
	s := New(Config{}, &fakeAdapter{}, logx.Nop())
	err := s.Notify(context.Background(), Notification{Text: "x"})
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}

func TestStopDrainsQueue(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	s := New(Config{Workers: 2, QueueSize: 32, RatePerSec: 1000}, ad, logx.Nop())
	s.Start(context.Background())

	for i := 0; i < 10; i++ {
		if err := s.Notify(context.Background(), Notification{Target: kit.ChatTarget{ChatID: 1}, Text: "msg"}); err != nil {
			t.Fatalf("Notify error: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Stop(ctx)

	if got := len(ad.all()); got != 10 {
		t.Fatalf("delivered %d, want 10", got)
	}
	if err := s.Notify(context.Background(), Notification{Text: "late"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("post-stop Notify = %v, want ErrStopped", err)
	}
}

func TestDeliverRetriesTransientFailure(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{fail: 2}
	s := New(Config{Workers: 1, QueueSize: 4, RatePerSec: 1000}, ad, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.Notify(context.Background(), Notification{Target: kit.ChatTarget{ChatID: 1}, Text: "retry me"}); err != nil {
		t.Fatalf("Notify error: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(ad.all()) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("message never delivered after transient failures")
}
