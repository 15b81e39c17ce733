package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSource(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		max     int
		wantErr error
	}{
		{name: "empty", source: "", max: 10},
		{name: "within limit", source: "console.log(1)", max: 100},
		{name: "exactly at limit", source: strings.Repeat("a", 10), max: 10},
		{name: "too large", source: strings.Repeat("a", 11), max: 10, wantErr: ErrSourceTooLarge},
		{name: "invalid utf8", source: "\xff\xfe", max: 10, wantErr: ErrInvalidSource},
		{name: "null byte", source: "a\x00b", max: 10, wantErr: ErrInvalidSource},
		{name: "default limit", source: strings.Repeat("a", MaxSourceSize+1), max: 0, wantErr: ErrSourceTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSource(tt.source, tt.max)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestResolveTimeout(t *testing.T) {
	def := 5 * time.Second
	limit := 30 * time.Second

	tests := []struct {
		name      string
		requested time.Duration
		want      time.Duration
		wantErr   bool
	}{
		{name: "zero uses default", requested: 0, want: def},
		{name: "passes through", requested: 2 * time.Second, want: 2 * time.Second},
		{name: "clamped to max", requested: time.Minute, want: limit},
		{name: "negative", requested: -time.Second, wantErr: true},
		{name: "below minimum", requested: time.Microsecond, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveTimeout(tt.requested, def, limit)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTimeout)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSourceHash(t *testing.T) {
	a := SourceHash("console.log(1)")
	assert.Len(t, a, 64)
	assert.Equal(t, a, SourceHash("console.log(1)"))
	assert.NotEqual(t, a, SourceHash("console.log(2)"))
	assert.Equal(t, a[:12], ShortHash(a))
	assert.Equal(t, "abc", ShortHash("abc"))
}
