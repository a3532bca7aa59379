package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDaytime(t *testing.T) {
	day := []int{7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20}
	night := []int{0, 1, 2, 3, 4, 5, 6, 21, 22, 23}

	for _, hour := range day {
		assert.True(t, DefaultDaytime.IsDaytime(hour), "hour %d should be daytime", hour)
	}
	for _, hour := range night {
		assert.False(t, DefaultDaytime.IsDaytime(hour), "hour %d should be nighttime", hour)
	}
}

func TestIsDaytimeCustomWindow(t *testing.T) {
	w := DaytimeWindow{From: 6, To: 22}

	assert.False(t, w.IsDaytime(5))
	assert.True(t, w.IsDaytime(6))
	assert.True(t, w.IsDaytime(21))
	assert.False(t, w.IsDaytime(22))
}
