package system

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollect(t *testing.T) {
	snap := Collect(context.Background(), time.Now().Add(-time.Hour))

	assert.GreaterOrEqual(t, snap.Uptime, time.Hour)
	assert.Positive(t, snap.Goroutines)
	assert.Positive(t, snap.HeapAlloc)
	assert.NotEmpty(t, snap.GoVersion)
	if snap.MemPercent != nil {
		assert.Positive(t, snap.MemTotal)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[uint64]string{
		0:               "0 B",
		1023:            "1023 B",
		1024:            "1.0 KiB",
		1536:            "1.5 KiB",
		5 * 1024 * 1024: "5.0 MiB",
		3 << 30:         "3.0 GiB",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatBytes(in), "FormatBytes(%d)", in)
	}
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "0m", FormatUptime(10*time.Second))
	assert.Equal(t, "45m", FormatUptime(45*time.Minute))
	assert.Equal(t, "2h 5m", FormatUptime(2*time.Hour+5*time.Minute))
	assert.Equal(t, "1d 0h 30m", FormatUptime(24*time.Hour+30*time.Minute))
}

func TestFormatPercent(t *testing.T) {
	p := 42.27
	assert.Equal(t, "42.3%", FormatPercent(&p))
	assert.Equal(t, "n/a", FormatPercent(nil))
}
