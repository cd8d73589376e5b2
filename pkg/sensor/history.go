package sensor

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/asecurityteam/rolling"
)

// HistoryEntry is one periodic sample of the main quantities. Absent
// readings are recorded as zero.
type HistoryEntry struct {
	Timestamp time.Time `json:"ts"`
	Temp      float64   `json:"temp"`
	Hum       uint8     `json:"hum"`
	Tray      float64   `json:"soil"`
	EC        float64   `json:"ec"`
}

// Stats summarizes one quantity over the history window. Count is the
// number of present readings; Avg, Min and Max are zero when Count is zero.
type Stats struct {
	Count int     `json:"count"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Summary holds rolling statistics of present readings only.
type Summary struct {
	Temp Stats `json:"temp"`
	Hum  Stats `json:"hum"`
	Tray Stats `json:"tray"`
	EC   Stats `json:"ec"`
}

// History keeps the last N entries in a FIFO, oldest first.
type History struct {
	size int

	mu      sync.RWMutex
	entries []HistoryEntry

	temp *rolling.PointPolicy
	hum  *rolling.PointPolicy
	tray *rolling.PointPolicy
	ec   *rolling.PointPolicy
}

// NewHistory creates a history holding at most size entries.
func NewHistory(size int) *History {
	if size <= 0 {
		size = 1
	}
	return &History{
		size:    size,
		entries: make([]HistoryEntry, 0, size),
		temp:    newWindow(size),
		hum:     newWindow(size),
		tray:    newWindow(size),
		ec:      newWindow(size),
	}
}

// newWindow returns a point window pre-filled with NaN so unused slots are
// not mistaken for zero readings.
func newWindow(size int) *rolling.PointPolicy {
	p := rolling.NewPointPolicy(rolling.NewWindow(size))
	for i := 0; i < size; i++ {
		p.Append(math.NaN())
	}
	return p
}

// Record appends an entry built from d, dropping the oldest when full.
func (h *History) Record(d SensorData) {
	e := HistoryEntry{Timestamp: d.Timestamp}
	if d.Internal != nil {
		e.Temp = d.Internal.Temp
		e.Hum = d.Internal.Hum
	}
	if d.Tray != nil {
		e.Tray = *d.Tray
	}
	if d.EC != nil {
		e.EC = *d.EC
	}

	h.mu.Lock()
	if len(h.entries) == h.size {
		h.entries = h.entries[1:]
	}
	h.entries = append(h.entries, e)

	// Absent readings append NaN so the window slides without skewing stats.
	h.temp.Append(presentOrNaN(d.Internal != nil, e.Temp))
	h.hum.Append(presentOrNaN(d.Internal != nil, float64(e.Hum)))
	h.tray.Append(presentOrNaN(d.Tray != nil, e.Tray))
	h.ec.Append(presentOrNaN(d.EC != nil, e.EC))
	h.mu.Unlock()
}

// Entries returns a copy of the entries, oldest first.
func (h *History) Entries() []HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Summary returns rolling statistics over the history window.
func (h *History) Summary() Summary {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Summary{
		Temp: stats(h.temp),
		Hum:  stats(h.hum),
		Tray: stats(h.tray),
		EC:   stats(h.ec),
	}
}

// Run records a hub snapshot every interval until ctx is cancelled.
func (h *History) Run(ctx context.Context, hub *Hub, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Record(hub.Snapshot())
		}
	}
}

func presentOrNaN(ok bool, v float64) float64 {
	if !ok {
		return math.NaN()
	}
	return v
}

// stats reduces a window, ignoring NaN placeholders.
func stats(p *rolling.PointPolicy) Stats {
	var s Stats
	p.Reduce(func(w rolling.Window) float64 {
		s.Min = math.Inf(1)
		s.Max = math.Inf(-1)
		var sum float64
		for _, bucket := range w {
			for _, v := range bucket {
				if math.IsNaN(v) {
					continue
				}
				s.Count++
				sum += v
				s.Min = math.Min(s.Min, v)
				s.Max = math.Max(s.Max, v)
			}
		}
		if s.Count > 0 {
			s.Avg = sum / float64(s.Count)
		}
		return s.Avg
	})
	if s.Count == 0 {
		return Stats{}
	}
	return s
}
