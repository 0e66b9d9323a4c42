package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func TestChainEvaluateIsOrderedAndFailFast(t *testing.T) {
	var seen []string
	gate := func(name string, ok bool) Gate {
		return Gate{Name: name, Reason: name + "-failed", Check: func(context.Context, *Cycle) (bool, string) {
			seen = append(seen, name)
			return ok, "detail " + name
		}}
	}
	ch := Chain{gate("a", true), gate("b", false), gate("c", true)}

	res := ch.Evaluate(context.Background(), &Cycle{})
	if res.Passed() {
		t.Fatalf("expected rejection")
	}
	if res.Reject.Gate != "b" || res.Reject.Reason != "b-failed" || res.Reject.Detail != "detail b" {
		t.Fatalf("unexpected reject %+v", res.Reject)
	}
	if len(seen) != 2 || seen[0] != "a" || seen[1] != "b" {
		t.Fatalf("expected a,b evaluated in order, got %v", seen)
	}
	if res.Reject.Error() != "b-failed: detail b" {
		t.Fatalf("unexpected error text %q", res.Reject.Error())
	}

	if !(Chain{gate("x", true)}).Evaluate(context.Background(), &Cycle{}).Passed() {
		t.Fatalf("expected pass")
	}
}

func TestOptionalGatesAreOmitted(t *testing.T) {
	names := func(ch Chain) map[string]bool {
		out := map[string]bool{}
		for _, g := range ch {
			out[g.Name] = true
		}
		return out
	}
	a := names(StageA(Thresholds{}, &fakeBalances{}))
	if a["derivative-name"] {
		t.Fatalf("empty denylist should disable the name gate")
	}
	b := names(StageB(Thresholds{}))
	if b["mint-ratio"] {
		t.Fatalf("zero ratio should disable the ratio gate")
	}
	if len(StageA(Thresholds{DerivativeDenylist: []string{"ape"}}, &fakeBalances{})) != 6 {
		t.Fatalf("expected 6 stage A gates with a denylist")
	}
}

func TestSchedulerSkipsOverlappingTicks(t *testing.T) {
	release := make(chan struct{})
	var runs atomic.Int32
	s := &Scheduler{
		Interval: time.Hour,
		Run: func(context.Context) {
			runs.Add(1)
			<-release
		},
	}
	log := slog.Default()

	if !s.trigger(context.Background(), log) {
		t.Fatalf("first trigger should start a cycle")
	}
	if s.trigger(context.Background(), log) {
		t.Fatalf("overlapping trigger should be skipped")
	}
	close(release)
	s.wg.Wait()

	if !s.trigger(context.Background(), log) {
		t.Fatalf("trigger after completion should start a cycle")
	}
	s.wg.Wait()
	if runs.Load() != 2 {
		t.Fatalf("expected 2 runs, got %d", runs.Load())
	}
}

func TestSchedulerRunsImmediatelyAndWaitsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{}, 8)
	var finished atomic.Bool
	s := &Scheduler{
		Interval: 10 * time.Millisecond,
		Run: func(context.Context) {
			started <- struct{}{}
			time.Sleep(30 * time.Millisecond)
			finished.Store(true)
		},
	}

	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatalf("expected an immediate cycle")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("scheduler did not stop")
	}
	if !finished.Load() {
		t.Fatalf("Start returned before the in-flight cycle finished")
	}
}

func TestSchedulerRecoversPanics(t *testing.T) {
	s := &Scheduler{Interval: time.Hour, Run: func(context.Context) { panic("boom") }}
	s.trigger(context.Background(), slog.Default())
	s.wg.Wait()
	if s.inFlight.Load() {
		t.Fatalf("guard should be released after a panic")
	}
}
