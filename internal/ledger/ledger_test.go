package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mevshield/mevwatch/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func opp(id, pool string, detectedAt time.Time) domain.Opportunity {
	return domain.Opportunity{
		ID:         id,
		PoolID:     pool,
		Kind:       domain.KindArbitrage,
		RiskScore:  0.5,
		Confidence: 0.85,
		DetectedAt: detectedAt,
	}
}

func TestAppend_FIFOEviction(t *testing.T) {
	l, err := New(3, nil, testLogger())
	require.NoError(t, err)

	now := time.Now().UTC()
	for i := range 5 {
		require.NoError(t, l.Append(context.Background(), opp(fmt.Sprintf("o%d", i), "pool-a", now)))
	}

	assert.Equal(t, 3, l.Size())

	recent := l.Recent(0)
	require.Len(t, recent, 3)
	// Newest first; o0 and o1 were evicted.
	assert.Equal(t, "o4", recent[0].ID)
	assert.Equal(t, "o3", recent[1].ID)
	assert.Equal(t, "o2", recent[2].ID)
}

func TestAppend_RejectsInvalid(t *testing.T) {
	l, err := New(3, nil, testLogger())
	require.NoError(t, err)

	bad := opp("o1", "pool-a", time.Now())
	bad.RiskScore = 1.5
	assert.Error(t, l.Append(context.Background(), bad))
	assert.Equal(t, 0, l.Size())
}

func TestHistory_WindowFilter(t *testing.T) {
	l, err := New(10, nil, testLogger())
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, l.Append(context.Background(), opp("old", "pool-a", now.Add(-10*time.Minute))))
	require.NoError(t, l.Append(context.Background(), opp("in1", "pool-a", now.Add(-4*time.Minute))))
	require.NoError(t, l.Append(context.Background(), opp("other", "pool-b", now.Add(-1*time.Minute))))
	require.NoError(t, l.Append(context.Background(), opp("in2", "pool-a", now.Add(-30*time.Second))))

	got := l.History("pool-a", now.Add(-5*time.Minute))
	require.Len(t, got, 2)
	assert.Equal(t, "in1", got[0].ID)
	assert.Equal(t, "in2", got[1].ID)
}

type failingStore struct {
	inserts int
}

func (s *failingStore) Insert(context.Context, domain.Opportunity) error {
	s.inserts++
	return fmt.Errorf("postgres: connection reset")
}

func (s *failingStore) ListRecent(context.Context, domain.ListOpts) ([]domain.Opportunity, error) {
	return nil, nil
}

func (s *failingStore) ListBefore(context.Context, time.Time) ([]domain.Opportunity, error) {
	return nil, nil
}

func (s *failingStore) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

func TestAppend_StoreFailureIsBestEffort(t *testing.T) {
	store := &failingStore{}
	l, err := New(3, store, testLogger())
	require.NoError(t, err)

	require.NoError(t, l.Append(context.Background(), opp("o1", "pool-a", time.Now().UTC())))
	assert.Equal(t, 1, l.Size())
	assert.Equal(t, 1, store.inserts)
}

func TestNew_InvalidCapacity(t *testing.T) {
	_, err := New(0, nil, testLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
