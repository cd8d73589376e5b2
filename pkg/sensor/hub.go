package sensor

import "github.com/itohio/growbox/internal/slot"

// Hub is the shared SensorData slot. The acquisition task publishes into it
// and every reader gets its own copy.
type Hub struct {
	slot *slot.Slot[SensorData]
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{slot: slot.New(SensorData.Clone)}
}

// Publish replaces the current snapshot.
func (h *Hub) Publish(d SensorData) {
	h.slot.Publish(d)
}

// Snapshot returns a copy of the latest snapshot.
func (h *Hub) Snapshot() SensorData {
	return h.slot.Snapshot()
}

// Seq returns the number of snapshots published so far.
func (h *Hub) Seq() uint64 {
	return h.slot.Seq()
}
