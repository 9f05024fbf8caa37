package settlement

import (
	"fmt"

	"github.com/alanyoungcy/housefun/internal/domain"
)

// Pool is the derived stake composition of a game. Refunded wagers are
// excluded so TotalPool always equals the sum of live stakes.
type Pool struct {
	TotalByBucket []uint64
	TotalPool     uint64
}

// BuildPool sums wagers per bucket for a game with the given bucket count.
func BuildPool(wagers []domain.Wager, buckets int) (Pool, error) {
	if buckets < 1 || buckets > domain.MaxBuckets {
		return Pool{}, fmt.Errorf("settlement: build pool: %w: %d buckets", domain.ErrInvalidBucket, buckets)
	}
	p := Pool{TotalByBucket: make([]uint64, buckets)}
	for _, w := range wagers {
		if w.Status == domain.WagerStatusRefunded {
			continue
		}
		if w.Bucket.Index() >= buckets {
			return Pool{}, fmt.Errorf("settlement: build pool: wager %s: %w: %d of %d",
				w.ID, domain.ErrInvalidBucket, w.Bucket.Index(), buckets)
		}
		var err error
		if p.TotalByBucket[w.Bucket], err = addChecked(p.TotalByBucket[w.Bucket], w.Amount, "bucket total"); err != nil {
			return Pool{}, err
		}
		if p.TotalPool, err = addChecked(p.TotalPool, w.Amount, "total pool"); err != nil {
			return Pool{}, err
		}
	}
	return p, nil
}

// Total returns the amount staked on bucket b, or 0 when b is out of range.
func (p Pool) Total(b domain.Bucket) uint64 {
	if b.Index() >= len(p.TotalByBucket) {
		return 0
	}
	return p.TotalByBucket[b]
}

// PayoutPool returns the pool net of the house fee.
func (p Pool) PayoutPool(feeBps uint32) uint64 {
	return p.TotalPool - ComputeHouseFee(p.TotalPool, feeBps)
}

// With returns a copy of the pool with stake added to bucket b.
func (p Pool) With(b domain.Bucket, stake uint64) (Pool, error) {
	if b.Index() >= len(p.TotalByBucket) {
		return Pool{}, fmt.Errorf("settlement: %w: %d of %d", domain.ErrInvalidBucket, b.Index(), len(p.TotalByBucket))
	}
	out := Pool{TotalByBucket: append([]uint64(nil), p.TotalByBucket...), TotalPool: p.TotalPool}
	var err error
	if out.TotalByBucket[b], err = addChecked(out.TotalByBucket[b], stake, "bucket total"); err != nil {
		return Pool{}, err
	}
	if out.TotalPool, err = addChecked(out.TotalPool, stake, "total pool"); err != nil {
		return Pool{}, err
	}
	return out, nil
}
