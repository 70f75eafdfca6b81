package temprole

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sho0pi/naturaltime"
)

const (
	day = 24 * time.Hour

	MinDuration = time.Minute
	MaxDuration = 365 * day
)

var ErrInvalidDuration = errors.New("invalid duration")

// compactDuration matches "2w3d12h30m" style input; every unit is optional
// but the order is fixed.
var compactDuration = regexp.MustCompile(`^(?:(\d+)w)?(?:(\d+)d)?(?:(\d+)h)?(?:(\d+)m)?$`)

var compactUnits = []time.Duration{7 * day, day, time.Hour, time.Minute}

// ParseDuration parses compact durations such as "30m", "12h", "7d", "2w" or
// "1d12h".
func ParseDuration(input string) (time.Duration, error) {
	s := normalize(input)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidDuration)
	}

	match := compactDuration.FindStringSubmatch(s)
	if match == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, input)
	}

	var total time.Duration
	for i, unit := range compactUnits {
		if match[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(match[i+1])
		if err != nil || n > 100000 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, input)
		}
		total += time.Duration(n) * unit
	}

	return total, checkBounds(total)
}

func checkBounds(d time.Duration) error {
	if d < MinDuration {
		return fmt.Errorf("%w: must be at least %s", ErrInvalidDuration, MinDuration)
	}
	if d > MaxDuration {
		return fmt.Errorf("%w: must be at most %d days", ErrInvalidDuration, int(MaxDuration/day))
	}
	return nil
}

// ExpiryParser turns user input into an expiry time. Compact durations are
// tried first, then natural language ("in 3 days", "next friday").
type ExpiryParser struct {
	natural *naturaltime.Parser
	now     func() time.Time
}

func NewExpiryParser() (*ExpiryParser, error) {
	natural, err := naturaltime.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize naturaltime parser: %w", err)
	}
	return &ExpiryParser{natural: natural, now: time.Now}, nil
}

func (p *ExpiryParser) Parse(input string) (time.Time, error) {
	now := p.now()

	if compactDuration.MatchString(normalize(input)) {
		d, err := ParseDuration(input)
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(d), nil
	}

	if p.natural == nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDuration, input)
	}
	result, err := p.natural.ParseDate(input, now)
	if err != nil || result == nil {
		return time.Time{}, fmt.Errorf("%w: could not understand %q", ErrInvalidDuration, input)
	}
	if err := checkBounds(result.Sub(now)); err != nil {
		return time.Time{}, err
	}
	return *result, nil
}

func normalize(input string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(input), " ", ""))
}
