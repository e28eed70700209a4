package bootloader

import "time"

// Rate sampling thresholds.
const (
	rateSampleInterval = time.Second
	rateSampleChunks   = 10
)

// rateMeter measures the send rate from periodic samples of a byte counter.
type rateMeter struct {
	lastAt    time.Time
	lastBytes int
	chunks    int
	bps       float64
}

func newRateMeter(now time.Time) rateMeter {
	return rateMeter{lastAt: now}
}

// update records that total bytes have been sent by now. The rate is
// recomputed when a second has passed or enough chunks were sent since the
// previous sample.
func (m *rateMeter) update(now time.Time, total int) float64 {
	m.chunks++
	dt := now.Sub(m.lastAt)
	if dt < rateSampleInterval && m.chunks < rateSampleChunks {
		return m.bps
	}

	if dt > 0 {
		m.bps = float64(total-m.lastBytes) / dt.Seconds()
	}
	m.lastAt = now
	m.lastBytes = total
	m.chunks = 0
	return m.bps
}

func (m *rateMeter) rate() float64 {
	return m.bps
}
