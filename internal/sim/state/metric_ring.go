package state

import "github.com/signalsfoundry/handover-simulator/core"

// metricRing is a bounded, append-only window over one (station, cell)
// pair's metric history. Old samples fall off the far end; nothing is
// ever mutated in place, which keeps long-running simulations at a fixed
// memory footprint.
type metricRing struct {
	buf  []core.MetricSample
	next int
	full bool
}

func newMetricRing(capacity int) *metricRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &metricRing{buf: make([]core.MetricSample, capacity)}
}

// Append stores the sample, evicting the oldest when the ring is full.
func (r *metricRing) Append(sample core.MetricSample) {
	r.buf[r.next] = sample
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

// Len returns the number of stored samples.
func (r *metricRing) Len() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// Samples returns a copy of the stored samples in insertion order,
// oldest first.
func (r *metricRing) Samples() []core.MetricSample {
	out := make([]core.MetricSample, 0, r.Len())
	if r.full {
		out = append(out, r.buf[r.next:]...)
	}
	out = append(out, r.buf[:r.next]...)
	return out
}

// Latest returns the most recent sample, if any.
func (r *metricRing) Latest() (core.MetricSample, bool) {
	if r.Len() == 0 {
		return core.MetricSample{}, false
	}
	idx := r.next - 1
	if idx < 0 {
		idx = len(r.buf) - 1
	}
	return r.buf[idx], true
}
