package stat

import "math/bits"

// Distribution is a log2 histogram of latencies. A value v lands in slot
// bits.Len64(v)-1, values 0 and 1 both land in slot 0.
type Distribution struct {
	Slots []uint64 `json:"slots"`
	Total uint64   `json:"total"`
	Count uint64   `json:"count"`
}

// Slot returns the slot index of v.
func Slot(v uint64) int {
	if v == 0 {
		return 0
	}
	return bits.Len64(v) - 1
}

// SlotRange returns the inclusive bounds of slot i.
func SlotRange(i int) (uint64, uint64) {
	if i == 0 {
		return 0, 1
	}
	lo := uint64(1) << i
	return lo, lo<<1 - 1
}

func (d *Distribution) Add(v uint64) {
	slot := Slot(v)
	if slot >= len(d.Slots) {
		d.grow(slot + 1)
	}
	d.Slots[slot]++
	d.Total += v
	d.Count++
}

// Merge adds o into d. Merging is commutative and associative.
func (d *Distribution) Merge(o *Distribution) {
	if o == nil {
		return
	}
	if len(o.Slots) > len(d.Slots) {
		d.grow(len(o.Slots))
	}
	for i, n := range o.Slots {
		d.Slots[i] += n
	}
	d.Total += o.Total
	d.Count += o.Count
}

func (d *Distribution) Avg() uint64 {
	if d.Count == 0 {
		return 0
	}
	return d.Total / d.Count
}

// MaxSlotCount returns the largest slot count, used to scale charts.
func (d *Distribution) MaxSlotCount() uint64 {
	var m uint64
	for _, n := range d.Slots {
		m = max(m, n)
	}
	return m
}

// Equal reports whether both distributions hold the same samples. Trailing
// empty slots are ignored.
func (d *Distribution) Equal(o *Distribution) bool {
	if d.Total != o.Total || d.Count != o.Count {
		return false
	}
	n := max(len(d.Slots), len(o.Slots))
	for i := 0; i < n; i++ {
		if slotAt(d.Slots, i) != slotAt(o.Slots, i) {
			return false
		}
	}
	return true
}

func (d *Distribution) grow(n int) {
	slots := make([]uint64, n)
	copy(slots, d.Slots)
	d.Slots = slots
}

func slotAt(s []uint64, i int) uint64 {
	if i < len(s) {
		return s[i]
	}
	return 0
}
