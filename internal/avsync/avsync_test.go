package avsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeResampler is a minimal RateAdjuster recording every call, with a
// configurable rule for when it reports "back to nominal".
type fakeResampler struct {
	calls            []int
	resetCalls       int
	reportInactiveAt int // 0 means never report inactive on its own
}

func (f *fakeResampler) AdjustResampling(deltaHz int) bool {
	f.calls = append(f.calls, deltaHz)
	if f.reportInactiveAt != 0 && len(f.calls) >= f.reportInactiveAt {
		return false
	}
	return true
}

func (f *fakeResampler) Reset() {
	f.resetCalls++
}

func TestSteadyPlayNoDriftNoAction(t *testing.T) {
	c := New(nil)
	c.SetDiscontinuity(false)

	for i := 0; i < 10; i++ {
		action := c.Synchronize(0, 1.0, time.Duration(i)*21333333*time.Nanosecond, 10*time.Millisecond)
		require.False(t, action.Flush)
		require.False(t, action.InsertSilence)
	}
	require.Equal(t, ModeNone, c.ResampleState().Mode)
}

func TestEarlyStartInsertsSilenceAndStopsResampling(t *testing.T) {
	r := &fakeResampler{}
	c := New(r) // discontinuity defaults true on a fresh controller

	drift := -400 * time.Millisecond
	action := c.Synchronize(drift, 1.0, 0, 10*time.Millisecond)

	require.True(t, action.InsertSilence)
	require.Equal(t, 400*time.Millisecond, action.SilenceLength)
	require.True(t, action.KeepDiscontinuity)
	require.Equal(t, time.Duration(0), action.Drift)
	require.True(t, c.Discontinuity())
}

func TestCatastrophicLateFlushesAndStopsResampling(t *testing.T) {
	r := &fakeResampler{}
	c := New(r)
	c.SetDiscontinuity(false)

	action := c.Synchronize(1*time.Second, 1.0, 0, 10*time.Millisecond)
	require.True(t, action.Flush)
	require.True(t, action.KeepDiscontinuity)
}

func TestUpResamplingEngageDisengage(t *testing.T) {
	r := &fakeResampler{}
	c := New(r)
	c.SetDiscontinuity(false)

	drifts := []time.Duration{
		20 * time.Millisecond,
		50 * time.Millisecond,
		80 * time.Millisecond,
		110 * time.Millisecond, // exceeds MaxPTSDelay=100ms: None -> Up
		120 * time.Millisecond,
		90 * time.Millisecond,
		60 * time.Millisecond,
		30 * time.Millisecond, // ad=30 <= start/2(55) -> sign flips to -2
		10 * time.Millisecond,
		0,
	}

	var sawUp bool
	for _, d := range drifts {
		before := c.ResampleState().Mode
		c.Synchronize(d, 1.0, 0, 10*time.Millisecond)
		after := c.ResampleState().Mode
		if before == ModeNone && after == ModeUp {
			sawUp = true
		}
	}
	require.True(t, sawUp, "expected a None -> Up transition")
	require.NotEmpty(t, r.calls)
	require.Equal(t, 2, r.calls[0])

	foundFlip := false
	for i := 1; i < len(r.calls); i++ {
		if r.calls[i] < 0 && r.calls[i-1] > 0 {
			foundFlip = true
			break
		}
	}
	require.True(t, foundFlip, "expected the adjustment sign to flip to -2 at some point")
}

func TestUpResamplingClearsOnBackToNominal(t *testing.T) {
	r := &fakeResampler{reportInactiveAt: 2} // the 2nd AdjustResampling call reports back-to-nominal
	c := New(r)
	c.SetDiscontinuity(false)

	c.Synchronize(110*time.Millisecond, 1.0, 0, 10*time.Millisecond)
	require.Equal(t, ModeUp, c.ResampleState().Mode)

	c.Synchronize(110*time.Millisecond, 1.0, 0, 10*time.Millisecond)
	require.Equal(t, ModeNone, c.ResampleState().Mode)
}

func TestDivergenceStopsResampling(t *testing.T) {
	r := &fakeResampler{}
	c := New(r)
	c.SetDiscontinuity(false)

	c.Synchronize(110*time.Millisecond, 1.0, 0, 10*time.Millisecond)
	require.Equal(t, ModeUp, c.ResampleState().Mode)

	// Drift more than doubles from the recorded start -> diverges, stop.
	c.Synchronize(300*time.Millisecond, 1.0, 0, 10*time.Millisecond)
	require.Equal(t, ModeNone, c.ResampleState().Mode)
	require.Equal(t, 1, r.resetCalls)
}
