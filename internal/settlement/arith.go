// Package settlement divides a shared stake pool among the wagers on the
// winning bucket net of the house fee. Every function is pure: identical
// inputs always produce identical outputs.
package settlement

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/housefun/internal/domain"
)

const bpsDenominator = 10_000

// mulDiv returns floor(a * b / d) using a 256-bit intermediate. The caller
// guarantees d != 0 and that the quotient fits in a uint64.
func mulDiv(a, b, d uint64) uint64 {
	num := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	q := num.Div(num, uint256.NewInt(d))
	return q.Uint64()
}

func addChecked(a, b uint64, field string) (uint64, error) {
	if a > ^uint64(0)-b {
		return 0, fmt.Errorf("settlement: %s: %w", field, domain.ErrOverflow)
	}
	return a + b, nil
}

// ValidateFee rejects fee rates above 100%.
func ValidateFee(feeBps uint32) error {
	if feeBps > domain.MaxFeeBps {
		return fmt.Errorf("settlement: %w: %d bps", domain.ErrInvalidFee, feeBps)
	}
	return nil
}

// ComputeHouseFee returns floor(totalPool * feeBps / 10000). Rates above
// 10000 bps are clamped to 10000 so the fee never exceeds the pool.
func ComputeHouseFee(totalPool uint64, feeBps uint32) uint64 {
	if feeBps > domain.MaxFeeBps {
		feeBps = domain.MaxFeeBps
	}
	return mulDiv(totalPool, uint64(feeBps), bpsDenominator)
}

// ComputePayout returns floor((totalPool - fee) * wager / winningBucketTotal).
// The product is formed before the division so the sum of payouts over the
// winning bucket never exceeds the payout pool. A zero pool or a zero
// winning bucket yields 0 and ErrNoBetsOnWinner.
func ComputePayout(wager, winningBucketTotal, totalPool uint64, feeBps uint32) (uint64, error) {
	if totalPool == 0 || winningBucketTotal == 0 {
		return 0, fmt.Errorf("settlement: compute payout: %w", domain.ErrNoBetsOnWinner)
	}
	if wager > winningBucketTotal || winningBucketTotal > totalPool {
		return 0, fmt.Errorf("settlement: compute payout: %w: wager %d, bucket %d, pool %d",
			domain.ErrInvalidInput, wager, winningBucketTotal, totalPool)
	}
	payoutPool := totalPool - ComputeHouseFee(totalPool, feeBps)
	return mulDiv(payoutPool, wager, winningBucketTotal), nil
}

// FlipPayout is the fixed-odds coin flip against the house: a winning bet
// returns double its stake less the fee on the stake; a losing bet returns
// nothing.
func FlipPayout(amount uint64, feeBps uint32, won bool) (payout, fee uint64, err error) {
	fee = ComputeHouseFee(amount, feeBps)
	if !won {
		return 0, fee, nil
	}
	doubled, err := addChecked(amount, amount, "flip payout")
	if err != nil {
		return 0, 0, err
	}
	return doubled - fee, fee, nil
}
