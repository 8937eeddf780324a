package cooldown

import (
	"fmt"
	"math"
	"strings"
	"time"
)

var unitScale = map[byte]time.Duration{
	'd': 24 * time.Hour,
	'h': time.Hour,
	'm': time.Minute,
	's': time.Second,
}

// ParseDuration parses a compact duration token such as "1h30m", "2d 4h" or
// "45". Units are d, h, m and s in any case and any order; each unit may
// appear once. A trailing number without a unit counts as seconds.
func ParseDuration(token string) (time.Duration, error) {
	s := strings.ToLower(strings.TrimSpace(token))
	if s == "" {
		return 0, fmt.Errorf("%w: empty token", ErrInvalidDuration)
	}

	var (
		total time.Duration
		seen  = map[byte]bool{}
	)
	for i := 0; i < len(s); {
		if s[i] == ' ' || s[i] == '\t' {
			i++
			continue
		}
		start := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if start == i {
			return 0, fmt.Errorf("%w: %q: expected digits at offset %d", ErrInvalidDuration, token, start)
		}
		n, ok := atoi(s[start:i])
		if !ok {
			return 0, fmt.Errorf("%w: %q: number too large", ErrInvalidDuration, token)
		}

		unit := byte('s')
		if i < len(s) && s[i] != ' ' && s[i] != '\t' {
			unit = s[i]
			i++
		} else if rest := strings.TrimSpace(s[i:]); rest != "" {
			return 0, fmt.Errorf("%w: %q: missing unit after %d", ErrInvalidDuration, token, n)
		}

		scale, ok := unitScale[unit]
		if !ok {
			return 0, fmt.Errorf("%w: %q: unknown unit %q", ErrInvalidDuration, token, unit)
		}
		if seen[unit] {
			return 0, fmt.Errorf("%w: %q: repeated unit %q", ErrInvalidDuration, token, unit)
		}
		seen[unit] = true

		if n > int64(math.MaxInt64/scale) {
			return 0, fmt.Errorf("%w: %q: overflow", ErrInvalidDuration, token)
		}
		part := time.Duration(n) * scale
		if total > math.MaxInt64-part {
			return 0, fmt.Errorf("%w: %q: overflow", ErrInvalidDuration, token)
		}
		total += part
	}
	return total, nil
}

func atoi(digits string) (int64, bool) {
	var n int64
	for i := 0; i < len(digits); i++ {
		d := int64(digits[i] - '0')
		if n > (math.MaxInt64-d)/10 {
			return 0, false
		}
		n = n*10 + d
	}
	return n, true
}
