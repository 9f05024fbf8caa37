package settlement

import (
	"fmt"

	"github.com/alanyoungcy/housefun/internal/domain"
)

// Settle computes one PayoutRecord per live wager against the resolved
// outcome. Wagers on the winning bucket share the payout pool in proportion
// to their stake; every other wager gets zero winnings. Each record also
// carries its pro-rata share of the house fee. Records are returned in
// input order and refunded wagers are skipped.
//
// When the pool is empty or nothing was staked on the winning bucket, Settle
// returns zero-valued records for every wager together with an error
// wrapping ErrNoBetsOnWinner. Callers must not treat that result as a
// successful resolution.
func Settle(wagers []domain.Wager, out domain.ResolvedOutcome, feeBps uint32) ([]domain.PayoutRecord, error) {
	if err := ValidateFee(feeBps); err != nil {
		return nil, err
	}
	for _, w := range wagers {
		if out.GameID != "" && w.GameID != out.GameID {
			return nil, fmt.Errorf("settlement: settle: %w: wager %s belongs to game %s, not %s",
				domain.ErrInvalidInput, w.ID, w.GameID, out.GameID)
		}
	}

	pool, err := BuildPool(wagers, domain.MaxBuckets)
	if err != nil {
		return nil, err
	}

	records := make([]domain.PayoutRecord, 0, len(wagers))
	winningTotal := pool.Total(out.WinningBucket)
	if pool.TotalPool == 0 || winningTotal == 0 {
		for _, w := range wagers {
			if w.Status == domain.WagerStatusRefunded {
				continue
			}
			records = append(records, domain.PayoutRecord{WagerID: w.ID, Bettor: w.Bettor})
		}
		return records, fmt.Errorf("settlement: settle game %s bucket %d: %w",
			out.GameID, out.WinningBucket.Index(), domain.ErrNoBetsOnWinner)
	}

	fee := ComputeHouseFee(pool.TotalPool, feeBps)
	for _, w := range wagers {
		if w.Status == domain.WagerStatusRefunded {
			continue
		}
		rec := domain.PayoutRecord{
			WagerID:       w.ID,
			Bettor:        w.Bettor,
			HouseFeeShare: mulDiv(fee, w.Amount, pool.TotalPool),
		}
		if w.Bucket == out.WinningBucket {
			rec.Won = true
			if rec.Winnings, err = ComputePayout(w.Amount, winningTotal, pool.TotalPool, feeBps); err != nil {
				return nil, err
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// Refund returns every live wager's full stake with no fee. It is the only
// path for a game cancelled before resolution.
func Refund(wagers []domain.Wager) []domain.RefundRecord {
	out := make([]domain.RefundRecord, 0, len(wagers))
	for _, w := range wagers {
		if w.Status == domain.WagerStatusRefunded {
			continue
		}
		out = append(out, domain.RefundRecord{WagerID: w.ID, Bettor: w.Bettor, Amount: w.Amount})
	}
	return out
}

// Summary totals a settlement for audit logging.
type Summary struct {
	TotalPool     uint64
	HouseFee      uint64
	PayoutPool    uint64
	TotalWinnings uint64
	Winners       int
	// Dust is the rounding remainder left in the payout pool.
	Dust uint64
}

// Summarize totals records produced by Settle against their pool.
func Summarize(pool Pool, feeBps uint32, records []domain.PayoutRecord) Summary {
	s := Summary{
		TotalPool:  pool.TotalPool,
		HouseFee:   ComputeHouseFee(pool.TotalPool, feeBps),
		PayoutPool: pool.PayoutPool(feeBps),
	}
	for _, r := range records {
		s.TotalWinnings += r.Winnings
		if r.Won {
			s.Winners++
		}
	}
	if s.TotalWinnings <= s.PayoutPool {
		s.Dust = s.PayoutPool - s.TotalWinnings
	}
	return s
}
