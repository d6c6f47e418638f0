package ratelimit

import "testing"

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.RequestsPerSecond <= 0 || cfg.Burst <= 0 {
		t.Fatalf("DefaultConfig() = %+v, want positive rate and burst", cfg)
	}
}

func TestNewFillsZeroValues(t *testing.T) {
	r := New(RateLimitConfig{})
	if r.config.RequestsPerSecond != 100 {
		t.Errorf("RequestsPerSecond = %v, want fallback of 100", r.config.RequestsPerSecond)
	}
	if r.config.Burst != 200 {
		t.Errorf("Burst = %v, want fallback of RequestsPerSecond*2", r.config.Burst)
	}
}

func TestAllowExhaustsBurst(t *testing.T) {
	r := New(RateLimitConfig{RequestsPerSecond: 1, Burst: 2})

	if !r.Allow() {
		t.Fatal("first call within burst should be allowed")
	}
	if !r.Allow() {
		t.Fatal("second call within burst should be allowed")
	}
	if r.Allow() {
		t.Fatal("third call should exceed the burst of 2")
	}
}

func TestLimitExceededMirrorsAllow(t *testing.T) {
	r := New(RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	if r.LimitExceeded() {
		t.Fatal("first check should have budget available")
	}
	if !r.LimitExceeded() {
		t.Fatal("second check should report the limit exceeded")
	}
}

func TestResetRestoresBudget(t *testing.T) {
	r := New(RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	r.Allow()
	if r.Allow() {
		t.Fatal("burst should be exhausted before Reset")
	}
	r.Reset()
	if !r.Allow() {
		t.Fatal("Allow() should succeed again after Reset")
	}
}
