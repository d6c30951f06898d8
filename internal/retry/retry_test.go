package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

var errFlaky = errors.New("flaky")

// recordTimer fires immediately and remembers every requested wait.
type recordTimer struct {
	waits []time.Duration
	c     chan time.Time
}

func (t *recordTimer) Start(d time.Duration) {
	t.waits = append(t.waits, d)
	t.c = make(chan time.Time, 1)
	t.c <- time.Time{}
}

func (t *recordTimer) Stop() {}

func (t *recordTimer) C() <-chan time.Time { return t.c }

func noSleep(p Policy) (Policy, *[]time.Duration) {
	rt := &recordTimer{}
	p.timer = rt
	return p, &rt.waits
}

// cancelTimer cancels the context instead of firing.
type cancelTimer struct{ cancel context.CancelFunc }

func (t cancelTimer) Start(time.Duration) { t.cancel() }
func (t cancelTimer) Stop()               {}
func (t cancelTimer) C() <-chan time.Time { return nil }

func TestDelay(t *testing.T) {
	p := New(10)
	want := []time.Duration{
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
		3200 * time.Millisecond,
		5 * time.Second,
		5 * time.Second,
	}
	for i, w := range want {
		if got := p.Delay(i); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i, got, w)
		}
	}
	if p.Delay(-1) != 200*time.Millisecond {
		t.Error("negative attempt should use base delay")
	}
	if p.Delay(100) != 5*time.Second {
		t.Error("large attempt should be capped")
	}
	if d := (Policy{Base: time.Minute, MaxDelay: time.Second}).Delay(0); d != time.Second {
		t.Errorf("base above cap: Delay(0) = %v, want 1s", d)
	}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	p, waits := noSleep(New(3))
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(*waits) != 2 || (*waits)[0] != 200*time.Millisecond || (*waits)[1] != 400*time.Millisecond {
		t.Errorf("waits = %v", *waits)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	p, _ := noSleep(New(3))
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	})
	if !errors.Is(err, errFlaky) {
		t.Errorf("err = %v, want errFlaky", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = Policy{}.Do(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_Permanent(t *testing.T) {
	p, _ := noSleep(New(5))
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(errFlaky)
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if err != errFlaky {
		t.Errorf("err = %v, want errFlaky itself", err)
	}
}

func TestDo_RetryablePredicate(t *testing.T) {
	errFatal := errors.New("fatal")
	p, _ := noSleep(New(5))
	p.Retryable = func(err error) bool { return !errors.Is(err, errFatal) }
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errFatal
	})
	if !errors.Is(err, errFatal) || calls != 1 {
		t.Errorf("err = %v, calls = %d; want errFatal after 1 call", err, calls)
	}
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := New(3).Do(ctx, func(context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestDo_CancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := New(5)
	p.timer = cancelTimer{cancel: cancel}
	calls := 0
	err := p.Do(ctx, func(context.Context) error {
		calls++
		return errFlaky
	})
	if !errors.Is(err, errFlaky) {
		t.Errorf("err = %v, want last attempt error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_RealTimer(t *testing.T) {
	p := Policy{Attempts: 3, Base: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Errorf("err = %v, calls = %d; want success on third attempt", err, calls)
	}
}

func TestDo_PermanentNil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) must stay nil")
	}
}

func TestDo_WrappedPermanentStops(t *testing.T) {
	p, waits := noSleep(New(5))
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return fmt.Errorf("search: %w", Permanent(errFlaky))
	})
	if calls != 1 || len(*waits) != 0 {
		t.Errorf("calls = %d, waits = %v; want one call and no wait", calls, *waits)
	}
	if !errors.Is(err, errFlaky) {
		t.Errorf("err = %v, want errFlaky", err)
	}
}

func TestDo_RetriesAttemptDeadlineWhileParentAlive(t *testing.T) {
	p, _ := noSleep(New(2))
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return context.DeadlineExceeded
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Errorf("err = %v, calls = %d; want success on second attempt", err, calls)
	}
}
