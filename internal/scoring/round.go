package scoring

import (
	"math"
	"strconv"
	"strings"
)

// RoundHalfUp rounds x to the given number of decimal places using the
// shortest decimal representation of x, so 1.005 rounds to 1.01 rather than
// falling victim to its binary approximation. Halves round away from zero.
func RoundHalfUp(x float64, places int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) || places < 0 {
		return x
	}

	repr := strconv.FormatFloat(math.Abs(x), 'f', -1, 64)
	intPart, frac, _ := strings.Cut(repr, ".")
	if len(frac) <= places {
		return x
	}

	digits := []byte(intPart + frac[:places])
	if frac[places] >= '5' {
		i := len(digits) - 1
		for ; i >= 0; i-- {
			if digits[i] == '9' {
				digits[i] = '0'
				continue
			}
			digits[i]++
			break
		}
		if i < 0 {
			digits = append([]byte{'1'}, digits...)
		}
	}

	split := len(digits) - places
	out := string(digits[:split])
	if places > 0 {
		out += "." + string(digits[split:])
	}

	v, err := strconv.ParseFloat(out, 64)
	if err != nil {
		return x
	}
	if v == 0 {
		return 0
	}
	if x < 0 {
		return -v
	}
	return v
}
