package retry

import (
	"math"
	"time"
)

// Policy describes a bounded exponential backoff schedule.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// SettlementPolicy is the registrar retry schedule for technical failures:
// 60s, 120s, 240s... capped at 30m, three attempts in total.
func SettlementPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Minute,
		MaxBackoff:     30 * time.Minute,
		Multiplier:     2.0,
	}
}

// Exhausted reports whether attempts has reached the policy limit.
func (p Policy) Exhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}

// Delay returns the wait before the next try after the given attempt.
func (p Policy) Delay(attempt int) time.Duration {
	return CalculateExponential(p.InitialBackoff, p.Multiplier, attempt, p.MaxBackoff)
}

// CalculateExponential calculates exponential backoff without jitter
func CalculateExponential(initialBackoff time.Duration, multiplier float64, attempt int, maxBackoff time.Duration) time.Duration {
	if attempt <= 0 {
		return 0
	}

	backoff := float64(initialBackoff) * math.Pow(multiplier, float64(attempt-1))
	if maxBackoff > 0 && backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	return time.Duration(backoff)
}
