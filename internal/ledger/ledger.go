// Package ledger keeps per-user credit balances and usage logs.
package ledger

import (
	"context"
	"strings"
	"sync"

	"fms/internal/sandbox/observer"
	"fms/pkg/errors"
	"fms/pkg/utils/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Mode selects how a job is paid for.
type Mode string

const (
	// Prepaid debits the balance after each job.
	Prepaid Mode = "prepaid"
	// Postpaid appends each job to the usage log for later billing.
	Postpaid Mode = "postpaid"
)

// ParseMode parses a payment mode name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case Prepaid:
		return Prepaid, nil
	case Postpaid:
		return Postpaid, nil
	default:
		return "", errors.Newf(errors.InvalidPaymentMode, "invalid payment mode %q, use prepaid or postpaid", s)
	}
}

// Options are optional ledger collaborators.
type Options struct {
	Archiver Archiver
	Recorder observer.Recorder
}

// Ledger is the credit account and usage log of one user.
// All methods are safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	store    Store
	user     string
	balance  decimal.Decimal
	archiver Archiver
	recorder observer.Recorder
}

// Open loads the account of user. A missing record means a zero balance;
// an unreadable one is logged and also treated as zero.
func Open(ctx context.Context, store Store, user string, opts Options) (*Ledger, error) {
	if store == nil {
		return nil, errors.New(errors.LedgerNotConfigured)
	}
	if err := ValidateUser(user); err != nil {
		return nil, errors.Wrap(err, errors.InvalidParams)
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = observer.Nop{}
	}
	ctx = logger.WithUser(ctx, user)

	l := &Ledger{
		store:    store,
		user:     user,
		balance:  decimal.Zero,
		archiver: opts.Archiver,
		recorder: recorder,
	}
	acct, found, err := store.LoadAccount(ctx, user)
	recorder.ObserveLedger(ctx, "load", err)
	switch {
	case err != nil:
		logger.Warn(ctx, "load credits failed, starting from zero", zap.Error(err))
	case found:
		l.balance = decimal.NewFromFloat(acct.Credits)
		if l.balance.IsNegative() {
			logger.Warn(ctx, "negative stored balance reset to zero", zap.Float64("credits", acct.Credits))
			l.balance = decimal.Zero
		}
	}
	return l, nil
}

// User returns the account owner.
func (l *Ledger) User() string { return l.user }

// Balance returns the current balance.
func (l *Ledger) Balance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance.InexactFloat64()
}

// Debit subtracts amount when the balance covers it. A non-positive amount
// succeeds without change. When the new balance cannot be saved the debit
// still stands in memory and a LedgerIOError is returned alongside true.
func (l *Ledger) Debit(ctx context.Context, amount float64) (bool, error) {
	amt := decimal.NewFromFloat(amount)
	if !amt.IsPositive() {
		return true, nil
	}
	ctx = logger.WithUser(ctx, l.user)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balance.LessThan(amt) {
		logger.Info(ctx, "insufficient credits",
			zap.String("required", amt.StringFixed(2)),
			zap.String("available", l.balance.StringFixed(2)),
		)
		l.recorder.ObserveLedger(ctx, "debit_rejected", nil)
		return false, nil
	}
	l.balance = l.balance.Sub(amt)
	err := l.saveLocked(ctx)
	l.recorder.ObserveLedger(ctx, "debit", err)
	logger.Info(ctx, "credits debited",
		zap.String("amount", amt.StringFixed(2)),
		zap.String("balance", l.balance.StringFixed(2)),
	)
	return true, err
}

// Credit adds a positive amount and persists the balance.
func (l *Ledger) Credit(ctx context.Context, amount float64) error {
	amt := decimal.NewFromFloat(amount)
	if !amt.IsPositive() {
		return errors.ValidationError("amount", "must be positive")
	}
	ctx = logger.WithUser(ctx, l.user)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance = l.balance.Add(amt)
	err := l.saveLocked(ctx)
	l.recorder.ObserveLedger(ctx, "credit", err)
	logger.Info(ctx, "credits added",
		zap.String("amount", amt.StringFixed(2)),
		zap.String("balance", l.balance.StringFixed(2)),
	)
	return err
}

func (l *Ledger) saveLocked(ctx context.Context) error {
	acct := Account{User: l.user, Credits: l.balance.InexactFloat64()}
	if err := l.store.SaveAccount(ctx, acct); err != nil {
		logger.Error(ctx, "save credits failed", zap.Error(err))
		return errors.Wrapf(err, errors.LedgerIOError, "save credits of %s", l.user)
	}
	return nil
}

// RecordUsage appends rec to the usage log and persists the whole log.
func (l *Ledger) RecordUsage(ctx context.Context, rec UsageRecord) error {
	ctx = logger.WithUser(ctx, l.user)

	l.mu.Lock()
	defer l.mu.Unlock()
	records, err := l.store.LoadUsage(ctx, l.user)
	if err != nil {
		logger.Warn(ctx, "load usage failed, starting a new log", zap.Error(err))
		records = nil
	}
	records = append(records, rec)
	err = l.store.SaveUsage(ctx, l.user, records)
	l.recorder.ObserveLedger(ctx, "record_usage", err)
	if err != nil {
		logger.Error(ctx, "save usage failed", zap.Error(err))
		return errors.Wrapf(err, errors.LedgerIOError, "save usage of %s", l.user)
	}
	logger.Info(ctx, "usage recorded", zap.String("binary", rec.Binary), zap.Float64("cost", rec.Cost))
	return nil
}

// Usage returns the usage log and its total cost.
func (l *Ledger) Usage(ctx context.Context) ([]UsageRecord, float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	records, err := l.store.LoadUsage(ctx, l.user)
	if err != nil {
		return nil, 0, errors.Wrapf(err, errors.LedgerIOError, "load usage of %s", l.user)
	}
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(decimal.NewFromFloat(r.Cost))
	}
	return records, total.InexactFloat64(), nil
}

// ClearUsage deletes the usage log, archiving it first when an archiver is
// configured. It returns the archive path, if one was written.
func (l *Ledger) ClearUsage(ctx context.Context) (string, error) {
	ctx = logger.WithUser(ctx, l.user)

	l.mu.Lock()
	defer l.mu.Unlock()
	var archived string
	if l.archiver != nil {
		records, err := l.store.LoadUsage(ctx, l.user)
		if err != nil {
			return "", errors.Wrapf(err, errors.LedgerIOError, "load usage of %s", l.user)
		}
		archived, err = l.archiver.Archive(ctx, l.user, records)
		if err != nil {
			return "", errors.Wrapf(err, errors.LedgerIOError, "archive usage of %s", l.user)
		}
	}
	err := l.store.DeleteUsage(ctx, l.user)
	l.recorder.ObserveLedger(ctx, "clear_usage", err)
	if err != nil {
		return archived, errors.Wrapf(err, errors.LedgerIOError, "clear usage of %s", l.user)
	}
	logger.Info(ctx, "usage cleared", zap.String("archive", archived))
	return archived, nil
}

// Accounts hands out one shared Ledger per user.
type Accounts struct {
	store Store
	opts  Options

	mu      sync.Mutex
	ledgers map[string]*Ledger
}

// NewAccounts creates a registry over store.
func NewAccounts(store Store, opts Options) *Accounts {
	return &Accounts{store: store, opts: opts, ledgers: make(map[string]*Ledger)}
}

// Get returns the ledger of user, opening it on first use.
func (a *Accounts) Get(ctx context.Context, user string) (*Ledger, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if l, ok := a.ledgers[user]; ok {
		return l, nil
	}
	l, err := Open(ctx, a.store, user, a.opts)
	if err != nil {
		return nil, err
	}
	a.ledgers[user] = l
	return l, nil
}
