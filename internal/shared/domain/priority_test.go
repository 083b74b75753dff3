package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/felixgeelhaar/gadfly/internal/shared/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePriority(t *testing.T) {
	tests := []struct {
		input    string
		expected domain.Priority
		wantErr  bool
	}{
		{"high", domain.PriorityHigh, false},
		{"Medium", domain.PriorityMedium, false},
		{" low ", domain.PriorityLow, false},
		{"urgent", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p, err := domain.ParsePriority(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidPriority)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, p)
		})
	}
}

func TestPriority_JSON(t *testing.T) {
	var payload struct {
		Priority domain.Priority `json:"priority"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"priority":"high"}`), &payload))
	assert.Equal(t, domain.PriorityHigh, payload.Priority)

	assert.Equal(t, domain.PriorityMedium, domain.Priority(0).OrDefault())
}
