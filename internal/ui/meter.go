package ui

import (
	"time"

	"github.com/dkeye/VoiceAgent/internal/core"
)

// meter turns packet counters of the agent audio track into a level between 0 and 1.
type meter struct {
	src     core.StatsReporter
	last    core.TrackStats
	lastAt  time.Time
	level   float64
	bitrate float64
}

// fullScale is the bitrate shown as a full bar.
const fullScale = 64_000.0

func (m *meter) sample(src core.StatsReporter, now time.Time) {
	if src == nil {
		*m = meter{}
		return
	}
	st := src.Stats()
	if src != m.src || m.lastAt.IsZero() {
		m.src, m.last, m.lastAt = src, st, now
		return
	}
	dt := now.Sub(m.lastAt).Seconds()
	if dt <= 0 {
		return
	}
	bits := float64(st.Bytes-m.last.Bytes) * 8
	m.bitrate = bits / dt
	level := m.bitrate / fullScale
	if level > 1 {
		level = 1
	}
	// Decay instead of dropping.
	if level < m.level {
		level = m.level*0.6 + level*0.4
	}
	m.level = level
	m.last, m.lastAt = st, now
}
