package plot

// AxisCapacity is the number of y axes on a pull plot: primary and twin.
const AxisCapacity = 2

// Assignment is a channel drawn on an axis.
type Assignment struct {
	Channel string `json:"channel"`
	Axis    int    `json:"axis"`
}

// AxisTable assigns channels to the two y axes of a plot. When both axes
// are taken, the oldest assignment is evicted. Not safe for concurrent use.
type AxisTable struct {
	slots [AxisCapacity]string
	seq   [AxisCapacity]uint64 // 0 means free
	next  uint64
}

// Assign returns the axis for channel and the channel it evicted, if any.
func (t *AxisTable) Assign(channel string) (axis int, evicted string) {
	if a, ok := t.AxisOf(channel); ok {
		return a, ""
	}

	t.next++
	free, oldest := -1, 0
	for i := range t.slots {
		if t.seq[i] == 0 {
			if free < 0 {
				free = i
			}
			continue
		}
		if t.seq[oldest] == 0 || t.seq[i] < t.seq[oldest] {
			oldest = i
		}
	}
	if free >= 0 {
		axis = free
	} else {
		axis = oldest
		evicted = t.slots[oldest]
	}
	t.slots[axis] = channel
	t.seq[axis] = t.next
	return axis, evicted
}

// Release frees channel's axis. If the primary axis is freed while the twin
// is in use, the remaining channel moves to the primary axis.
func (t *AxisTable) Release(channel string) bool {
	axis, ok := t.AxisOf(channel)
	if !ok {
		return false
	}
	t.slots[axis], t.seq[axis] = "", 0
	if axis == 0 && t.seq[1] != 0 {
		t.slots[0], t.seq[0] = t.slots[1], t.seq[1]
		t.slots[1], t.seq[1] = "", 0
	}
	return true
}

// AxisOf returns the axis channel is drawn on.
func (t *AxisTable) AxisOf(channel string) (int, bool) {
	for i := range t.slots {
		if t.seq[i] != 0 && t.slots[i] == channel {
			return i, true
		}
	}
	return -1, false
}

// Clear frees both axes.
func (t *AxisTable) Clear() {
	*t = AxisTable{}
}

// Len returns the number of axes in use.
func (t *AxisTable) Len() int {
	n := 0
	for i := range t.seq {
		if t.seq[i] != 0 {
			n++
		}
	}
	return n
}

// Assignments lists channels in axis order.
func (t *AxisTable) Assignments() []Assignment {
	out := make([]Assignment, 0, AxisCapacity)
	for i := range t.slots {
		if t.seq[i] != 0 {
			out = append(out, Assignment{Channel: t.slots[i], Axis: i})
		}
	}
	return out
}
