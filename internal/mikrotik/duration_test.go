package mikrotik

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseUptime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"2h30m", 9000 * time.Second},
		{"1d5h", 104400 * time.Second},
		{"45s", 45 * time.Second},
		{"1d", 24 * time.Hour},
		{"3m", 3 * time.Minute},
		{"1d2h3m4s", 26*time.Hour + 3*time.Minute + 4*time.Second},
		{"", 0},
		{"bogus", 0},
		{"2h30", 0}, // trailing bare number is not a valid uptime
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseUptime(tt.in))
		})
	}
}
