package game

import (
	"sync"
	"time"

	"gunfight/internal/game/geom"
)

// PositionHistorySize bounds each player's sample buffer: 60 entries is
// one second at a 60 Hz update rate. Oldest samples are evicted FIFO.
const PositionHistorySize = 60

// PositionSample is one point of a player's movement trail, recorded by
// the owning session's update path and read by other shooters during
// lag-compensated hit resolution.
type PositionSample struct {
	At  time.Time `json:"at"`
	Pos geom.Vec3 `json:"pos"`
	Vel geom.Vec3 `json:"vel"`
}

// PositionHistory is a bounded ring buffer of position samples. Writes
// come only from the owner; readers take a snapshot under the lock and
// interpolate outside it.
type PositionHistory struct {
	mu      sync.Mutex
	samples [PositionHistorySize]PositionSample
	head    int // next write slot
	count   int
}

// Record appends a sample, evicting the oldest when full. Samples must
// arrive in non-decreasing time order (the owner's update path).
func (h *PositionHistory) Record(s PositionSample) {
	h.mu.Lock()
	h.samples[h.head] = s
	h.head = (h.head + 1) % PositionHistorySize
	if h.count < PositionHistorySize {
		h.count++
	}
	h.mu.Unlock()
}

// Snapshot returns the stored samples ordered oldest to newest.
func (h *PositionHistory) Snapshot() []PositionSample {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]PositionSample, h.count)
	start := h.head - h.count
	if start < 0 {
		start += PositionHistorySize
	}
	for i := 0; i < h.count; i++ {
		out[i] = h.samples[(start+i)%PositionHistorySize]
	}
	return out
}

// At reconstructs the position at time t. Between two bracketing samples
// it interpolates linearly; outside the recorded span it clamps to the
// nearest endpoint. ok is false when no samples exist.
func (h *PositionHistory) At(t time.Time) (PositionSample, bool) {
	samples := h.Snapshot()
	if len(samples) == 0 {
		return PositionSample{}, false
	}

	if !t.After(samples[0].At) {
		return samples[0], true
	}
	last := samples[len(samples)-1]
	if !t.Before(last.At) {
		return last, true
	}

	for i := 1; i < len(samples); i++ {
		if samples[i].At.Before(t) {
			continue
		}
		a, b := samples[i-1], samples[i]
		span := b.At.Sub(a.At)
		if span <= 0 {
			return b, true
		}
		frac := float64(t.Sub(a.At)) / float64(span)
		return PositionSample{
			At:  t,
			Pos: geom.Lerp(a.Pos, b.Pos, frac),
			Vel: geom.Lerp(a.Vel, b.Vel, frac),
		}, true
	}
	return last, true
}

// Len returns the number of stored samples.
func (h *PositionHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}
