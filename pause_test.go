package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"30m", 30 * time.Minute},
		{"2h", 2 * time.Hour},
		{"45s", 45 * time.Second},
		{"1h30m", 90 * time.Minute},
		{"2h30m15s", 2*time.Hour + 30*time.Minute + 15*time.Second},
		{"1d", 24 * time.Hour},
		{"2d", 48 * time.Hour},
		{"1d12h", 36 * time.Hour},
		{"1d2h3m4s", 26*time.Hour + 3*time.Minute + 4*time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseDuration(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDuration_Invalid(t *testing.T) {
	inputs := []string{
		"",
		"abc",
		"1w",
		"h2",
		"2h1d", // units out of order
		"-30m",
		"0s",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			_, err := parseDuration(input)
			assert.Error(t, err)
		})
	}
}
