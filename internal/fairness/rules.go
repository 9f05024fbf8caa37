package fairness

import (
	"fmt"

	"github.com/alanyoungcy/housefun/internal/domain"
)

// RulesFor returns the published rules for a game kind with the given number
// of outcome buckets. Only single-winner games derive their outcome from
// seeds; fight and poker are resolved externally.
func RulesFor(kind domain.GameKind, buckets int) (Rules, error) {
	switch kind {
	case domain.GameFlip:
		return CoinFlip, nil
	case domain.GameDerby:
		lo, hi := kind.BucketRange()
		if buckets < lo || buckets > hi {
			return Rules{}, fmt.Errorf("%w: derby takes %d-%d horses, got %d", domain.ErrInvalidBucket, lo, hi, buckets)
		}
		return Uniform(fmt.Sprintf("derby_%d", buckets), buckets), nil
	}
	return Rules{}, fmt.Errorf("%w: %s outcomes are not seed-derived", domain.ErrInvalidInput, kind)
}
