package riskcache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dexsentinel/engine/internal/domain"
)

func TestGetOrCompute_CachesResult(t *testing.T) {
	c := New(time.Hour)
	var calls int32

	compute := func(ctx context.Context) (domain.RiskCategoryScore, error) {
		atomic.AddInt32(&calls, 1)
		return domain.RiskCategoryScore{Category: domain.CategoryLiquidity, Score: decimal.NewFromFloat(0.2)}, nil
	}

	_, err := c.GetOrCompute(context.Background(), 1, "0xabc", domain.CategoryLiquidity, compute)
	require.NoError(t, err)
	_, err = c.GetOrCompute(context.Background(), 1, "0xabc", domain.CategoryLiquidity, compute)
	require.NoError(t, err)

	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestGetOrCompute_CoalescesConcurrentMisses(t *testing.T) {
	c := New(time.Hour)
	var calls int32
	start := make(chan struct{})

	compute := func(ctx context.Context) (domain.RiskCategoryScore, error) {
		atomic.AddInt32(&calls, 1)
		<-start
		return domain.RiskCategoryScore{Category: domain.CategoryHoneypot, Score: decimal.Zero}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetOrCompute(context.Background(), 1, "0xdef", domain.CategoryHoneypot, compute)
			require.NoError(t, err)
		}()
	}
	close(start)
	wg.Wait()

	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestTouch_EvictsOldestBeyondCapacity(t *testing.T) {
	c := New(time.Hour)
	for i := 0; i < maxEntriesPerCategory+10; i++ {
		c.set(1, keyFor(i), domain.CategoryTechnical, domain.RiskCategoryScore{Category: domain.CategoryTechnical})
	}
	_, ok := c.Get(1, keyFor(0), domain.CategoryTechnical)
	require.False(t, ok, "oldest entry should have been evicted")

	_, ok = c.Get(1, keyFor(maxEntriesPerCategory+9), domain.CategoryTechnical)
	require.True(t, ok, "most recent entry should still be cached")
}

func TestTTLFor_UnknownCategoryFallsBackToMarket(t *testing.T) {
	require.Equal(t, categoryTTLs[domain.CategoryMarket], TTLFor("NOT_A_REAL_CATEGORY"))
}

func TestInvalidate_DropsAllCategoriesForToken(t *testing.T) {
	c := New(time.Hour)
	c.set(1, "0xaaa", domain.CategoryLiquidity, domain.RiskCategoryScore{Category: domain.CategoryLiquidity})
	c.set(1, "0xaaa", domain.CategoryTax, domain.RiskCategoryScore{Category: domain.CategoryTax})

	c.Invalidate(1, "0xaaa")

	_, ok := c.Get(1, "0xaaa", domain.CategoryLiquidity)
	require.False(t, ok)
	_, ok = c.Get(1, "0xaaa", domain.CategoryTax)
	require.False(t, ok)
}

func keyFor(i int) string {
	return "0x" + string(rune('a'+i%26)) + string(rune('0'+i%10))
}
