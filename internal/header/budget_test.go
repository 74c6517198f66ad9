package header

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBudget_Reserve(t *testing.T) {
	tests := []struct {
		name  string
		limit int64
		used  int64
		n     int64
		ok    bool
	}{
		{"unlimited", 0, 100, 1 << 40, true},
		{"fits exactly", 100, 60, 40, true},
		{"one over", 100, 60, 41, false},
		{"sum would overflow", 1 << 20, 100, math.MaxInt64, false},
		{"negative", 100, 0, -1, false},
		{"negative unlimited", 0, 0, -1, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			b := budget{limit: tt.limit, used: tt.used}
			assert.Equal(t, tt.ok, b.reserve(tt.n))
			if tt.ok {
				assert.Equal(t, tt.used+tt.n, b.used)
			} else {
				assert.Equal(t, tt.used, b.used, "a failed reserve charges nothing")
			}
		})
	}
}
