package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
	"github.com/amc-simulator/amc_simulator/pkg/circuitbreaker"
)

// Result is the registrar's verdict on a transaction
type Result string

const (
	ResultSuccess          Result = "success"
	ResultRejected         Result = "rejected"
	ResultTechnicalFailure Result = "technical_failure"
)

// Outcome is what the registrar returned for one submission
type Outcome struct {
	Result    Result
	Reference string
	Reason    string
}

var (
	// ErrRegistrarUnavailable is returned while the circuit breaker is open
	ErrRegistrarUnavailable = errors.New("registrar unavailable")

	errTechnicalFailure = errors.New("registrar technical failure")
)

// RejectionReasons are the business rejection messages the registrar returns
var RejectionReasons = []string{
	"Insufficient funds in bank account",
	"Invalid bank account details",
	"KYC verification pending",
	"Transaction amount below scheme minimum",
	"Duplicate transaction detected",
	"PAN validation failed",
	"Cut-off time exceeded",
}

// TechnicalFailureReason is recorded while a technical failure awaits retry
const TechnicalFailureReason = "Technical failure at registrar"

// ExhaustedReason is recorded when technical failures used up every retry
const ExhaustedReason = "Technical failure at registrar - retries exhausted"

// Client submits a transaction to the registrar
type Client interface {
	Submit(ctx context.Context, txn *entities.Transaction) (Outcome, error)
}

// Rand is a uniform [0,1) source
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// Simulate maps a uniform draw to an outcome: below 0.85 success, below
// 0.95 business rejection, otherwise a technical failure.
func Simulate(draw float64) Result {
	switch {
	case draw < 0.85:
		return ResultSuccess
	case draw < 0.95:
		return ResultRejected
	default:
		return ResultTechnicalFailure
	}
}

// SimulatedClient stands in for the CAMS registrar
type SimulatedClient struct {
	rng Rand
}

// NewSimulatedClient creates a registrar simulator drawing from rng
func NewSimulatedClient(rng Rand) *SimulatedClient {
	return &SimulatedClient{rng: rng}
}

// Submit returns a random outcome
func (c *SimulatedClient) Submit(_ context.Context, txn *entities.Transaction) (Outcome, error) {
	switch Simulate(c.rng.Float64()) {
	case ResultSuccess:
		return Outcome{
			Result:    ResultSuccess,
			Reference: fmt.Sprintf("CAMS%s%06d", time.Now().UTC().Format("20060102"), c.rng.IntN(1000000)),
		}, nil
	case ResultRejected:
		return Outcome{
			Result: ResultRejected,
			Reason: RejectionReasons[c.rng.IntN(len(RejectionReasons))],
		}, nil
	default:
		return Outcome{Result: ResultTechnicalFailure, Reason: TechnicalFailureReason}, nil
	}
}

// BreakerClient guards a registrar client with a circuit breaker. Technical
// failures count against the breaker; business rejections do not.
type BreakerClient struct {
	inner   Client
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerClient wraps inner with a breaker named "cams"
func NewBreakerClient(inner Client, cfg circuitbreaker.Config) *BreakerClient {
	return &BreakerClient{inner: inner, breaker: circuitbreaker.New("cams", cfg)}
}

// Breaker exposes the underlying breaker for health reporting
func (c *BreakerClient) Breaker() *gobreaker.CircuitBreaker {
	return c.breaker
}

// Submit forwards to the wrapped client unless the breaker is open
func (c *BreakerClient) Submit(ctx context.Context, txn *entities.Transaction) (Outcome, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		out, err := c.inner.Submit(ctx, txn)
		if err != nil {
			return nil, err
		}
		if out.Result == ResultTechnicalFailure {
			return out, errTechnicalFailure
		}
		return out, nil
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return Outcome{}, fmt.Errorf("%w: %v", ErrRegistrarUnavailable, err)
	case errors.Is(err, errTechnicalFailure):
		return res.(Outcome), nil
	case err != nil:
		return Outcome{}, err
	}
	return res.(Outcome), nil
}
