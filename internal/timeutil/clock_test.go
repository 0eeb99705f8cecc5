package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealClock_Now(t *testing.T) {
	before := time.Now()
	got := RealClock{}.Now()
	after := time.Now()

	assert.False(t, got.Before(before))
	assert.False(t, got.After(after))
}

func TestRealClock_Ticker(t *testing.T) {
	ticker := RealClock{}.NewTicker(time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("real ticker never fired")
	}
}

func TestMockClock_NowAndSet(t *testing.T) {
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(base)
	assert.Equal(t, base, clock.Now())

	later := base.Add(time.Hour)
	clock.Set(later)
	assert.Equal(t, later, clock.Now())
}

func TestMockClock_AdvanceFiresTicker(t *testing.T) {
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(base)
	ticker := clock.NewTicker(5 * time.Second)

	clock.Advance(2 * time.Second)
	select {
	case <-ticker.C():
		t.Fatal("ticker fired before its interval elapsed")
	default:
	}

	clock.Advance(3 * time.Second)
	select {
	case at := <-ticker.C():
		assert.Equal(t, base.Add(5*time.Second), at)
	default:
		t.Fatal("ticker did not fire at its interval")
	}
}

func TestMockClock_AdvanceReschedulesTicker(t *testing.T) {
	clock := NewMockClock(time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC))
	ticker := clock.NewTicker(time.Second)

	clock.Advance(time.Second)
	require.Len(t, drain(ticker), 1)

	clock.Advance(time.Second)
	require.Len(t, drain(ticker), 1)
}

func TestMockTicker_StopSuppressesTicks(t *testing.T) {
	clock := NewMockClock(time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC))
	ticker := clock.NewTicker(time.Second)
	ticker.Stop()

	clock.Advance(time.Minute)
	assert.Empty(t, drain(ticker))
}

func drain(ticker Ticker) []time.Time {
	var out []time.Time
	for {
		select {
		case at := <-ticker.C():
			out = append(out, at)
		default:
			return out
		}
	}
}
