package resilience

import (
	"testing"
	"time"
)

func newTestBreaker(threshold int, cooldown time.Duration) (*CircuitBreaker, *time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("places", CircuitConfig{
		FailureThreshold: threshold,
		Cooldown:         cooldown,
	})
	cb.nowFunc = func() time.Time { return now }
	return cb, &now
}

func TestCircuit_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.IsOpen() {
		t.Fatal("circuit open before threshold")
	}

	cb.RecordFailure()
	if !cb.IsOpen() {
		t.Fatal("circuit should open after 3 consecutive failures")
	}
}

func TestCircuit_SuccessResetsCounter(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	if cb.IsOpen() {
		t.Fatal("counter should reset on success; circuit must stay closed")
	}
}

func TestCircuit_HalfOpenAfterCooldown(t *testing.T) {
	cb, now := newTestBreaker(1, time.Minute)

	cb.RecordFailure()
	if !cb.IsOpen() {
		t.Fatal("expected open circuit")
	}

	*now = now.Add(61 * time.Second)
	if cb.IsOpen() {
		t.Fatal("expected half-open probe to be allowed after cooldown")
	}
	if got := cb.State(); got != CircuitHalfOpen {
		t.Fatalf("state = %v, want half-open", got)
	}
}

func TestCircuit_AdmitsOneProbeAtATime(t *testing.T) {
	cb, now := newTestBreaker(1, time.Minute)

	cb.RecordFailure()
	*now = now.Add(2 * time.Minute)

	if cb.IsOpen() {
		t.Fatal("first caller after cooldown should be admitted as the probe")
	}
	if !cb.IsOpen() {
		t.Fatal("second caller must stay short-circuited while the probe is in flight")
	}

	cb.RecordFailure() // probe outcome: still failing
	*now = now.Add(2 * time.Minute)
	if cb.IsOpen() {
		t.Fatal("next cooldown window should admit a fresh probe")
	}

	cb.RecordSuccess()
	if cb.IsOpen() {
		t.Fatal("circuit should pass calls freely after the probe succeeds")
	}
	if cb.IsOpen() {
		t.Fatal("closed circuit must not ration callers")
	}
}

func TestCircuit_ProbeSuccessCloses(t *testing.T) {
	cb, now := newTestBreaker(1, time.Minute)

	cb.RecordFailure()
	*now = now.Add(2 * time.Minute)
	_ = cb.IsOpen() // transitions to half-open

	cb.RecordSuccess()
	if got := cb.State(); got != CircuitClosed {
		t.Fatalf("state = %v, want closed after successful probe", got)
	}
	failures, _ := cb.Counters()
	if failures != 0 {
		t.Fatalf("failure counter = %d, want 0", failures)
	}
}

func TestCircuit_ProbeFailureReopens(t *testing.T) {
	cb, now := newTestBreaker(1, time.Minute)

	cb.RecordFailure()
	*now = now.Add(2 * time.Minute)
	_ = cb.IsOpen()

	cb.RecordFailure()
	if got := cb.State(); got != CircuitOpen {
		t.Fatalf("state = %v, want open after failed probe", got)
	}

	// Cooldown restarts from the probe failure.
	*now = now.Add(30 * time.Second)
	if !cb.IsOpen() {
		t.Fatal("circuit should still be open before cooldown elapses again")
	}
}

func TestCircuit_StateChangeCallback(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker("atlas", CircuitConfig{
		FailureThreshold: 2,
		Cooldown:         time.Minute,
		OnStateChange: func(provider string, from, to CircuitState) {
			transitions = append(transitions, provider+":"+from.String()+"->"+to.String())
		},
	})

	cb.RecordFailure()
	cb.RecordFailure()
	cb.Reset()

	want := []string{"atlas:closed->open", "atlas:open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, transitions[i], want[i])
		}
	}
}

func TestBreakers_PerProviderIsolation(t *testing.T) {
	b := NewBreakers(CircuitConfig{FailureThreshold: 1, Cooldown: time.Minute})

	b.RecordFailure("places")
	if !b.IsOpen("places") {
		t.Fatal("places circuit should be open")
	}
	if b.IsOpen("atlas") {
		t.Fatal("atlas circuit should be unaffected")
	}

	states := b.States()
	if states["places"] != CircuitOpen {
		t.Errorf("places state = %v, want open", states["places"])
	}
}

func TestBreakers_GetReturnsSameInstance(t *testing.T) {
	b := NewBreakers(DefaultCircuitConfig())
	if b.Get("narrative") != b.Get("narrative") {
		t.Fatal("Get must memoize breakers per provider")
	}
}
