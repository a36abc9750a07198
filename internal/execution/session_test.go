package execution

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fms/pkg/errors"
)

func TestQuotaAccountReserveSettle(t *testing.T) {
	q := NewQuotaAccount(20)
	require.NoError(t, q.Reserve(15))
	assert.Equal(t, 5.0, q.Remaining())

	err := q.Reserve(6)
	assert.True(t, errors.Is(err, errors.QuotaExhausted))
	assert.Equal(t, 5.0, q.Remaining())

	assert.InDelta(t, 18.0, q.Settle(15, 2), 1e-9)
	require.NoError(t, q.Add(2))
	assert.InDelta(t, 20.0, q.Remaining(), 1e-9)
	assert.Error(t, q.Add(0))
}

func TestQuotaAccountConcurrentReservations(t *testing.T) {
	q := NewQuotaAccount(10)
	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if q.Reserve(1) == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, granted)
	assert.Zero(t, q.Remaining())
}

func TestSessionPaymentConfigured(t *testing.T) {
	var nilSession *Session
	assert.False(t, nilSession.PaymentConfigured())
	assert.False(t, NewQuotaSession(1).PaymentConfigured())
}
