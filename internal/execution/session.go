package execution

import (
	"sync"

	"fms/internal/ledger"
	"fms/pkg/errors"

	"github.com/shopspring/decimal"
)

// QuotaAccount is a session-wide CPU-seconds allowance. Jobs reserve their
// requested quota up front and settle for what they used.
type QuotaAccount struct {
	mu        sync.Mutex
	remaining decimal.Decimal
}

// NewQuotaAccount creates an allowance of seconds.
func NewQuotaAccount(seconds float64) *QuotaAccount {
	q := &QuotaAccount{remaining: decimal.Zero}
	if seconds > 0 {
		q.remaining = decimal.NewFromFloat(seconds)
	}
	return q
}

// Remaining returns the unreserved allowance.
func (q *QuotaAccount) Remaining() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.remaining.InexactFloat64()
}

// Add tops up the allowance.
func (q *QuotaAccount) Add(seconds float64) error {
	amt := decimal.NewFromFloat(seconds)
	if !amt.IsPositive() {
		return errors.ValidationError("seconds", "must be positive")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.remaining = q.remaining.Add(amt)
	return nil
}

// Reserve holds requested seconds, failing with QuotaExhausted when they
// exceed the remaining allowance. The allowance is unchanged on failure.
func (q *QuotaAccount) Reserve(requested float64) error {
	req := decimal.NewFromFloat(requested)
	if !req.IsPositive() {
		return errors.Newf(errors.QuotaExhausted, "an unbounded CPU quota cannot be run against a session quota")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if req.GreaterThan(q.remaining) {
		return errors.Newf(errors.QuotaExhausted, "requested %.2fs exceeds remaining quota %.2fs",
			requested, q.remaining.InexactFloat64()).
			WithDetail("requested", requested).
			WithDetail("remaining", q.remaining.InexactFloat64())
	}
	q.remaining = q.remaining.Sub(req)
	return nil
}

// Settle returns an unused reservation and charges the CPU actually used,
// never leaving the allowance below zero. It returns the new remaining value.
func (q *QuotaAccount) Settle(reserved, used float64) float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.remaining = q.remaining.Add(decimal.NewFromFloat(reserved)).Sub(decimal.NewFromFloat(used))
	if q.remaining.IsNegative() {
		q.remaining = decimal.Zero
	}
	return q.remaining.InexactFloat64()
}

// Session is the accounting context jobs run under: a ledger with a payment
// mode, or a CPU quota when no ledger is configured. A zero Session runs
// jobs without accounting.
type Session struct {
	Mode   ledger.Mode
	Ledger *ledger.Ledger
	Quota  *QuotaAccount
}

// NewLedgerSession bills jobs to l under mode.
func NewLedgerSession(l *ledger.Ledger, mode ledger.Mode) *Session {
	return &Session{Mode: mode, Ledger: l}
}

// NewQuotaSession limits jobs by a total of seconds of CPU.
func NewQuotaSession(seconds float64) *Session {
	return &Session{Quota: NewQuotaAccount(seconds)}
}

// PaymentConfigured reports whether jobs are billed to a ledger.
func (s *Session) PaymentConfigured() bool {
	return s != nil && s.Ledger != nil && s.Mode != ""
}
