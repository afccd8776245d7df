package liquidity

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

// Rate is the value of one stSOL in wSOL as the exact fraction Numerator/Denominator.
// The staking pool reports it as total stake over total stSOL supply.
type Rate struct {
	Numerator   uint64 `json:"numerator"`
	Denominator uint64 `json:"denominator"`
}

// OneRate is the 1:1 rate of an empty or freshly created staking pool.
var OneRate = Rate{Numerator: 1, Denominator: 1}

// Validate checks that the rate is well formed and at least 1.
func (r Rate) Validate() error {
	if r.Denominator == 0 {
		return newError(KindInvalidRate, "", "zero denominator")
	}
	if r.Numerator < r.Denominator {
		return newError(KindInvalidRate, "", fmt.Sprintf("rate %s is below 1", r))
	}
	return nil
}

// Cmp compares two rates exactly: -1 if r < o, 0 if equal, +1 if r > o.
func (r Rate) Cmp(o Rate) int {
	left := new(uint256.Int).Mul(uint256.NewInt(r.Numerator), uint256.NewInt(o.Denominator))
	right := new(uint256.Int).Mul(uint256.NewInt(o.Numerator), uint256.NewInt(r.Denominator))
	return left.Cmp(right)
}

// Value converts an stSOL amount to wSOL, rounding down.
func (r Rate) Value(stsol uint64) (uint64, error) {
	return mulDivFloor(stsol, r.Numerator, r.Denominator)
}

func (r Rate) String() string {
	return fmt.Sprintf("%d/%d", r.Numerator, r.Denominator)
}

// ParseRate parses "N/D" or an exact decimal such as "1.0345".
func ParseRate(input string) (Rate, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Rate{}, fmt.Errorf("empty rate")
	}

	var rate Rate
	if num, den, ok := strings.Cut(input, "/"); ok {
		n, err := strconv.ParseUint(strings.TrimSpace(num), 10, 64)
		if err != nil {
			return Rate{}, fmt.Errorf("invalid rate numerator %q: %w", num, err)
		}
		d, err := strconv.ParseUint(strings.TrimSpace(den), 10, 64)
		if err != nil {
			return Rate{}, fmt.Errorf("invalid rate denominator %q: %w", den, err)
		}
		rate = Rate{Numerator: n, Denominator: d}
	} else {
		whole, frac, _ := strings.Cut(input, ".")
		if len(frac) > 18 {
			return Rate{}, fmt.Errorf("rate %q has more than 18 decimals", input)
		}
		digits := whole + frac
		n, err := strconv.ParseUint(digits, 10, 64)
		if err != nil {
			return Rate{}, fmt.Errorf("invalid rate %q: %w", input, err)
		}
		d := uint64(1)
		for i := 0; i < len(frac); i++ {
			d *= 10
		}
		rate = Rate{Numerator: n, Denominator: d}
	}

	if err := rate.Validate(); err != nil {
		return Rate{}, err
	}
	return rate, nil
}
