package settlement

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/housefun/internal/domain"
)

// oddsDisplayPlaces is the rounding applied when odds are rendered.
const oddsDisplayPlaces = 4

// ComputeOdds returns the exact displayed multiplier for bucket.
//
// Pari-mutuel markets weight each bucket by 1/max(total_b, 1), so thinly
// backed buckets pay more:
//
//	multiplier = Σ_b 1/max(total_b,1) / (1/max(total_bucket,1))
//	odds       = multiplier * payoutPool / totalPool
//
// Binary markets use proportional-share odds: payoutPool / total_bucket.
//
// An empty pool, or a binary bucket with nothing on it, quotes zero.
func ComputeOdds(market domain.MarketKind, pool Pool, feeBps uint32, bucket domain.Bucket) (*big.Rat, error) {
	if bucket.Index() >= len(pool.TotalByBucket) {
		return nil, fmt.Errorf("settlement: compute odds: %w: %d of %d",
			domain.ErrInvalidBucket, bucket.Index(), len(pool.TotalByBucket))
	}
	if pool.TotalPool == 0 {
		return new(big.Rat), nil
	}
	payoutPool := new(big.Rat).SetUint64(pool.PayoutPool(feeBps))

	switch market {
	case domain.MarketParimutuel:
		totalInv := new(big.Rat)
		for _, t := range pool.TotalByBucket {
			totalInv.Add(totalInv, inverseWeight(t))
		}
		mult := new(big.Rat).Quo(totalInv, inverseWeight(pool.TotalByBucket[bucket]))
		share := new(big.Rat).Quo(payoutPool, new(big.Rat).SetUint64(pool.TotalPool))
		return mult.Mul(mult, share), nil

	case domain.MarketBinary:
		t := pool.TotalByBucket[bucket]
		if t == 0 {
			return new(big.Rat), nil
		}
		return payoutPool.Quo(payoutPool, new(big.Rat).SetUint64(t)), nil
	}
	return nil, fmt.Errorf("settlement: compute odds: %w: market %q", domain.ErrInvalidInput, market)
}

func inverseWeight(total uint64) *big.Rat {
	if total == 0 {
		total = 1
	}
	return new(big.Rat).SetFrac(big.NewInt(1), new(big.Int).SetUint64(total))
}

// DisplayOdds rounds an exact multiplier for presentation.
func DisplayOdds(r *big.Rat) decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	num := decimal.NewFromBigInt(r.Num(), 0)
	den := decimal.NewFromBigInt(r.Denom(), 0)
	return num.DivRound(den, oddsDisplayPlaces)
}

// Quote returns the winnings a new stake on bucket would receive if the
// bucket won with the pool as it stands plus that stake.
func Quote(pool Pool, feeBps uint32, bucket domain.Bucket, stake uint64) (uint64, error) {
	if stake == 0 {
		return 0, nil
	}
	next, err := pool.With(bucket, stake)
	if err != nil {
		return 0, err
	}
	return ComputePayout(stake, next.Total(bucket), next.TotalPool, feeBps)
}
