package avsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimingStateResetClearsFields(t *testing.T) {
	ts := NewTimingState(48000)
	ts.EnsureFirstPTS(5 * time.Second)
	ts.AddPlayedSamples(1000)
	require.NotEqual(t, Invalid, ts.FirstPTS())

	ts.Reset()
	require.Equal(t, Invalid, ts.FirstPTS())
	require.Equal(t, uint64(0), ts.PlayedSamples())
}

func TestEnsureFirstPTSOnlySeedsOnce(t *testing.T) {
	ts := NewTimingState(48000)
	ts.EnsureFirstPTS(1 * time.Second)
	ts.EnsureFirstPTS(2 * time.Second)
	require.Equal(t, 1*time.Second, ts.FirstPTS())
}

func TestNotifyTimingDroppedBeforeFirstPTS(t *testing.T) {
	ts := NewTimingState(48000)
	ts.NotifyTiming(10*time.Millisecond, 5*time.Millisecond)
	// No panic, no effect: GetDelay still reports 0 since firstPTS unset.
	require.Equal(t, time.Duration(0), ts.GetDelay(0))
}

// TestRateChangeDropsStalePointsAndRebasesFresh is the scenario 5 case:
// ChangeRate(2.0) while playing; the next Play sees sync.rate != timing.rate
// and records the anchor; a NotifyTiming before the anchor is dropped, the
// first at-or-after the anchor yields the rebased formula.
func TestRateChangeDropsStalePointsAndRebasesFresh(t *testing.T) {
	ts := NewTimingState(48000)
	ts.EnsureFirstPTS(0)

	playDate := 100 * time.Millisecond
	blockPTS := 90 * time.Millisecond
	ts.NoteRateChange(playDate, blockPTS, 2.0)

	// Stale point before the anchor: dropped, audioTS/systemTS unchanged.
	ts.NotifyTiming(playDate-10*time.Millisecond, 1*time.Millisecond)
	before := ts.GetDelay(0)

	// Fresh point at-or-after the anchor: audio_ts' = rate_audio_ts + (ts - rate_system_ts) * rate.
	ts2 := playDate + 20*time.Millisecond
	ts.NotifyTiming(ts2, 0 /* ignored: recomputed from the anchor */)
	after := ts.GetDelay(0)

	require.NotEqual(t, before, after, "a fresh in-anchor point should move the interpolated delay")
}

func TestPauseResumeAdvancesSystemTSByExactDelta(t *testing.T) {
	ts := NewTimingState(48000)
	ts.EnsureFirstPTS(0)
	ts.NotifyTiming(0, 0)

	before := ts.GetDelay(0)
	ts.Pause(1 * time.Second)
	ts.Resume(1*time.Second + 250*time.Millisecond)
	after := ts.GetDelay(0)

	require.Equal(t, before+250*time.Millisecond, after, "resume should advance system_ts by exactly the pause duration, shifting delay by the same amount")
}

func TestPauseResumeWithoutPauseIsNoop(t *testing.T) {
	ts := NewTimingState(48000)
	ts.EnsureFirstPTS(0)
	before := ts.GetDelay(0)
	ts.Resume(5 * time.Second) // no prior Pause call
	after := ts.GetDelay(0)
	require.Equal(t, before, after)
}
