package ledger

import (
	"context"
	stderrors "errors"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"fms/internal/sandbox/result"
	"fms/pkg/errors"
	"fms/pkg/utils/logger"
)

type failingStore struct {
	*FileStore
	saveErr error
}

func (s *failingStore) SaveAccount(ctx context.Context, acct Account) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.FileStore.SaveAccount(ctx, acct)
}

func (s *failingStore) SaveUsage(ctx context.Context, user string, records []UsageRecord) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.FileStore.SaveUsage(ctx, user, records)
}

func openFile(t *testing.T, user string) (*Ledger, *FileStore) {
	t.Helper()
	store := NewFileStore(t.TempDir())
	l, err := Open(context.Background(), store, user, Options{})
	require.NoError(t, err)
	return l, store
}

func TestCost(t *testing.T) {
	assert.InDelta(t, 2.0, Cost(2, 0, 100), 1e-9)
	// 60 MB held for 60 s is 60 MB-minutes.
	assert.InDelta(t, 6.0, Cost(0, 60, 60), 1e-9)
	assert.InDelta(t, 3.5+1.0, CostOf(result.Sample{CPUSeconds: 3.5, MaxMemoryMB: 100, WallSeconds: 6}), 1e-9)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" PrePaid ")
	require.NoError(t, err)
	assert.Equal(t, Prepaid, m)
	m, err = ParseMode("postpaid")
	require.NoError(t, err)
	assert.Equal(t, Postpaid, m)
	_, err = ParseMode("free")
	assert.True(t, errors.Is(err, errors.InvalidPaymentMode))
}

func TestOpenMissingAccountIsZero(t *testing.T) {
	l, _ := openFile(t, "alice")
	assert.Zero(t, l.Balance())
	assert.Equal(t, "alice", l.User())
}

func TestOpenRejectsUnsafeUser(t *testing.T) {
	for _, user := range []string{"", "../etc", "a/b", ".hidden"} {
		_, err := Open(context.Background(), NewFileStore(t.TempDir()), user, Options{})
		assert.Error(t, err, user)
	}
}

func TestOpenUnreadableAccountIsZero(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logger.SetZap(zap.New(core))
	t.Cleanup(func() { logger.SetZap(nil) })

	store := NewFileStore(t.TempDir())
	require.NoError(t, os.WriteFile(store.CreditsPath("bob"), []byte("{not json"), 0o600))

	l, err := Open(context.Background(), store, "bob", Options{})
	require.NoError(t, err)
	assert.Zero(t, l.Balance())
	require.Equal(t, 1, logs.FilterMessage("load credits failed, starting from zero").Len())
	assert.Equal(t, "bob", logs.All()[0].ContextMap()["user"])
}

func TestCreditDebitPersist(t *testing.T) {
	ctx := context.Background()
	l, store := openFile(t, "carol")

	require.NoError(t, l.Credit(ctx, 10))
	ok, err := l.Debit(ctx, 2.5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 7.5, l.Balance(), 1e-9)

	reopened, err := Open(ctx, store, "carol", Options{})
	require.NoError(t, err)
	assert.InDelta(t, 7.5, reopened.Balance(), 1e-9)

	data, err := os.ReadFile(store.CreditsPath("carol"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"user":"carol","credits":7.5}`, string(data))
}

func TestCreditRejectsNonPositive(t *testing.T) {
	l, _ := openFile(t, "dave")
	assert.True(t, errors.Is(l.Credit(context.Background(), 0), errors.ValidationFailed))
	assert.True(t, errors.Is(l.Credit(context.Background(), -1), errors.ValidationFailed))
}

func TestDebitNonPositiveSucceeds(t *testing.T) {
	l, _ := openFile(t, "erin")
	ok, err := l.Debit(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = l.Debit(context.Background(), -3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, l.Balance())
}

func TestPrepaidInsufficientLeavesBalance(t *testing.T) {
	ctx := context.Background()
	l, _ := openFile(t, "frank")
	require.NoError(t, l.Credit(ctx, 10))

	ok, err := l.Debit(ctx, 12)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 10.0, l.Balance())
}

func TestDebitNeverNegativeAndRoundTrip(t *testing.T) {
	ctx := context.Background()
	l, _ := openFile(t, "gina")
	require.NoError(t, l.Credit(ctx, 100))
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 200; i++ {
		amount := float64(rng.Intn(10000)) / 100
		before := l.Balance()
		require.NoError(t, l.Credit(ctx, amount+0.01))
		ok, err := l.Debit(ctx, amount+0.01)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, before, l.Balance())

		_, err = l.Debit(ctx, amount)
		require.NoError(t, err)
		require.GreaterOrEqual(t, l.Balance(), 0.0)
	}
}

func TestFailedSaveIsReported(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{FileStore: NewFileStore(t.TempDir())}
	l, err := Open(ctx, store, "hank", Options{})
	require.NoError(t, err)
	require.NoError(t, l.Credit(ctx, 5))

	store.saveErr = stderrors.New("disk full")
	ok, err := l.Debit(ctx, 2)
	assert.True(t, ok)
	assert.True(t, errors.Is(err, errors.LedgerIOError))
	assert.InDelta(t, 3.0, l.Balance(), 1e-9)

	err = l.RecordUsage(ctx, UsageRecord{Binary: "x", Cost: 1})
	assert.True(t, errors.Is(err, errors.LedgerIOError))
}

func TestUsageLog(t *testing.T) {
	ctx := context.Background()
	l, store := openFile(t, "ivy")
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.Local)

	require.NoError(t, l.RecordUsage(ctx, NewUsageRecord("/bin/a", result.Sample{CPUSeconds: 1, MaxMemoryMB: 2, WallSeconds: 3}, 3.5, at)))
	require.NoError(t, l.RecordUsage(ctx, UsageRecord{Timestamp: "2026-03-04 05:06:08", Binary: "/bin/b", Cost: 1.25}))

	records, total, err := l.Usage(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "2026-03-04 05:06:07", records[0].Timestamp)
	assert.Equal(t, "/bin/a", records[0].Binary)
	assert.Equal(t, 1.0, records[0].CPUTime)
	assert.Equal(t, 2.0, records[0].MemoryMax)
	assert.Equal(t, 3.0, records[0].ExecutionTime)
	assert.InDelta(t, 4.75, total, 1e-9)
	assert.Zero(t, l.Balance())

	data, err := os.ReadFile(store.UsagePath("ivy"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"execution_time": 3`)

	path, err := l.ClearUsage(ctx)
	require.NoError(t, err)
	assert.Empty(t, path)
	records, total, err = l.Usage(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Zero(t, total)
	assert.NoFileExists(t, store.UsagePath("ivy"))
}

func TestClearUsageArchives(t *testing.T) {
	ctx := context.Background()
	archiveDir := t.TempDir()
	l, err := Open(ctx, NewFileStore(t.TempDir()), "jack", Options{Archiver: NewZstdArchiver(archiveDir)})
	require.NoError(t, err)

	rec := UsageRecord{Timestamp: "2026-01-01 00:00:00", Binary: "/bin/true", CPUTime: 0.1, Cost: 0.1}
	require.NoError(t, l.RecordUsage(ctx, rec))

	path, err := l.ClearUsage(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, path)
	archived, err := ReadArchive(path)
	require.NoError(t, err)
	assert.Equal(t, []UsageRecord{rec}, archived)

	// Nothing left to archive.
	path, err = l.ClearUsage(ctx)
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestAccountsShareLedger(t *testing.T) {
	ctx := context.Background()
	accts := NewAccounts(NewFileStore(t.TempDir()), Options{})
	a, err := accts.Get(ctx, "kim")
	require.NoError(t, err)
	b, err := accts.Get(ctx, "kim")
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = accts.Get(ctx, "../kim")
	assert.Error(t, err)
}

func TestOpenWithoutStore(t *testing.T) {
	_, err := Open(context.Background(), nil, "x", Options{})
	assert.True(t, errors.Is(err, errors.LedgerNotConfigured))
}
