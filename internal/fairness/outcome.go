package fairness

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/alanyoungcy/housefun/internal/domain"
)

// Rules is the published float-to-result mapping of a game. Bettors verify
// results against exactly this mapping, so it must never change for a game
// kind once results have been issued.
type Rules struct {
	Name string
	// Outcomes is the number of discrete results N.
	Outcomes int
	// Threshold, when set on a two-outcome game, maps float < Threshold to
	// result 0 and everything else to result 1.
	Threshold float64
	// Labels optionally names each result.
	Labels []string
}

// CoinFlip is the flip game: float < 0.5 is HEADS, otherwise TAILS.
var CoinFlip = Rules{
	Name:      "coin_flip",
	Outcomes:  2,
	Threshold: 0.5,
	Labels:    []string{"HEADS", "TAILS"},
}

// Uniform returns rules mapping the float to floor(float * n).
func Uniform(name string, n int) Rules {
	return Rules{Name: name, Outcomes: n}
}

// Validate checks that the rules describe a usable mapping.
func (r Rules) Validate() error {
	if r.Outcomes < 2 {
		return fmt.Errorf("%w: rules %q need at least 2 outcomes", domain.ErrInvalidInput, r.Name)
	}
	if r.Threshold != 0 && (r.Outcomes != 2 || r.Threshold <= 0 || r.Threshold >= 1) {
		return fmt.Errorf("%w: rules %q threshold %v", domain.ErrInvalidInput, r.Name, r.Threshold)
	}
	if len(r.Labels) != 0 && len(r.Labels) != r.Outcomes {
		return fmt.Errorf("%w: rules %q has %d labels for %d outcomes", domain.ErrInvalidInput, r.Name, len(r.Labels), r.Outcomes)
	}
	return nil
}

// Describe returns the human-readable derivation published with the game.
func (r Rules) Describe() string {
	var b strings.Builder
	b.WriteString("digest = HMAC_SHA256(key=serverSeed, message=clientSeed + \":\" + nonce); ")
	b.WriteString("u = big-endian uint64 of digest[0:8]; ")
	b.WriteString("float = (u >> 11) / 2^53; ")
	if r.Threshold != 0 {
		fmt.Fprintf(&b, "result = 0 if float < %v else 1", r.Threshold)
	} else {
		fmt.Fprintf(&b, "result = floor(float * %d)", r.Outcomes)
	}
	if len(r.Labels) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(r.Labels, ", "))
	}
	return b.String()
}

// Label returns the name of a result, or its decimal form when unlabelled.
func (r Rules) Label(result int) string {
	if result >= 0 && result < len(r.Labels) {
		return r.Labels[result]
	}
	return strconv.Itoa(result)
}

// ParseResult accepts a label (case-insensitive) or a decimal result.
func (r Rules) ParseResult(s string) (int, error) {
	for i, l := range r.Labels {
		if strings.EqualFold(l, s) {
			return i, nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n >= r.Outcomes {
		return 0, fmt.Errorf("%w: result %q for %s", domain.ErrInvalidInput, s, r.Name)
	}
	return n, nil
}

// Outcome is a derived result with everything needed to check it.
type Outcome struct {
	Result int     `json:"result"`
	Label  string  `json:"label"`
	Float  float64 `json:"float_value"`
	Digest string  `json:"digest"`
}

// Verification is the result of recomputing an outcome against an expected
// result.
type Verification struct {
	Verified bool `json:"verified"`
	Outcome
}

// DeriveOutcome maps (serverSeed, clientSeed, nonce) to a result under rules.
// Empty seeds are rejected as a usability guard.
func DeriveOutcome(serverSeed, clientSeed string, nonce uint64, rules Rules) (Outcome, error) {
	if serverSeed == "" || clientSeed == "" {
		return Outcome{}, domain.ErrEmptySeed
	}
	if err := rules.Validate(); err != nil {
		return Outcome{}, err
	}

	digest := Digest(serverSeed, clientSeed, nonce)
	f := digestFloat(digest)
	result := rules.resultFor(f)

	return Outcome{
		Result: result,
		Label:  rules.Label(result),
		Float:  f,
		Digest: hex.EncodeToString(digest),
	}, nil
}

// Verify recomputes the outcome and compares it with expected. It has no
// side effects and the same inputs always produce the same output.
func Verify(serverSeed, clientSeed string, nonce uint64, expected int, rules Rules) (Verification, error) {
	out, err := DeriveOutcome(serverSeed, clientSeed, nonce, rules)
	if err != nil {
		return Verification{}, err
	}
	return Verification{Verified: out.Result == expected, Outcome: out}, nil
}

// Digest returns HMAC-SHA256(serverSeed, clientSeed:nonce).
func Digest(serverSeed, clientSeed string, nonce uint64) []byte {
	mac := hmac.New(sha256.New, []byte(serverSeed))
	mac.Write([]byte(clientSeed))
	mac.Write([]byte{':'})
	mac.Write([]byte(strconv.FormatUint(nonce, 10)))
	return mac.Sum(nil)
}

// digestFloat keeps the top 53 bits of the first 8 digest bytes so the
// division is exact and the result is strictly below 1.
func digestFloat(digest []byte) float64 {
	u := binary.BigEndian.Uint64(digest[:8])
	return float64(u>>11) / (1 << 53)
}

func (r Rules) resultFor(f float64) int {
	if r.Threshold != 0 {
		if f < r.Threshold {
			return 0
		}
		return 1
	}
	n := int(math.Floor(f * float64(r.Outcomes)))
	if n >= r.Outcomes {
		n = r.Outcomes - 1
	}
	return n
}
