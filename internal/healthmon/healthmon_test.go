package healthmon

import (
	"context"
	"testing"
	"time"
)

func TestLevelFor_thresholds(t *testing.T) {
	cfg := Config{StallDetectSec: 3, FailoverTriggerSec: 5, PollMs: 1000}.setDefaults()
	cases := []struct {
		since time.Duration
		want  State
	}{
		{time.Second, Healthy},
		{3 * time.Second, Stalled},
		{4 * time.Second, Stalled},
		{5 * time.Second, FailoverNeeded},
		{10 * time.Second, FailoverNeeded},
	}
	for _, c := range cases {
		if got := levelFor(cfg, c.since); got != c.want {
			t.Errorf("levelFor(%s) = %s, want %s", c.since, got, c.want)
		}
	}
}

func TestRun_emitsEndedOnDone(t *testing.T) {
	done := make(chan struct{})
	m := New(Config{PollMs: 10}, func() time.Time { return time.Now() }, done)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	close(done)

	select {
	case tr, ok := <-m.Watch():
		if !ok {
			t.Fatal("watch channel closed before Ended transition")
		}
		if tr.State != Ended {
			t.Fatalf("state = %s, want Ended", tr.State)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Ended transition")
	}
}

func TestRun_staysHealthyWhileLastDataTimeIsZero(t *testing.T) {
	done := make(chan struct{})
	defer close(done)
	m := New(Config{PollMs: 5}, func() time.Time { return time.Time{} }, done)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	select {
	case tr := <-m.Watch():
		t.Fatalf("unexpected transition %v while still in prefill", tr)
	case <-time.After(50 * time.Millisecond):
	}
	cancel()
}

func TestRun_signalsStallThenFailover(t *testing.T) {
	// 1.5s of silence is past the 1s stall threshold but short of the 2s
	// failover threshold, so the first poll reports Stalled and a later one,
	// about 0.5s on, reports FailoverNeeded.
	start := time.Now().Add(-1500 * time.Millisecond)
	done := make(chan struct{})
	defer close(done)
	m := New(Config{StallDetectSec: 1, FailoverTriggerSec: 2, PollMs: 5}, func() time.Time { return start }, done)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	var got []State
	timeout := time.After(time.Second)
	for len(got) < 2 {
		select {
		case tr := <-m.Watch():
			got = append(got, tr.State)
		case <-timeout:
			t.Fatalf("timed out after transitions %v", got)
		}
	}
	if got[0] != Stalled || got[1] != FailoverNeeded {
		t.Fatalf("transitions = %v, want [Stalled FailoverNeeded]", got)
	}
}
