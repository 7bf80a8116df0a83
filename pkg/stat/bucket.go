package stat

import (
	"cmp"

	"golang.org/x/exp/slices"
)

// Element aggregates the samples of one bucket key.
type Element struct {
	Count uint64 `json:"count"`
	Total uint64 `json:"total"`
	// Scale divides the average at presentation time, 0 means 1.
	Scale uint64 `json:"scale,omitempty"`
}

// Value returns the presented value of the element: the average scaled
// down by Scale.
func (e *Element) Value() uint64 {
	if e.Count == 0 {
		return 0
	}
	v := e.Total / e.Count
	if e.Scale > 1 {
		v /= e.Scale
	}
	return v
}

// Bucket aggregates samples by key, keeping a running total over all keys.
type Bucket struct {
	Name     string              `json:"name,omitempty"`
	Elements map[string]*Element `json:"elements"`
	Total    uint64              `json:"total"`
}

func NewBucket(name string) *Bucket {
	return &Bucket{
		Name:     name,
		Elements: make(map[string]*Element),
	}
}

func (b *Bucket) init() {
	if b.Elements == nil {
		b.Elements = make(map[string]*Element)
	}
}

func (b *Bucket) element(key string) *Element {
	b.init()
	e, ok := b.Elements[key]
	if !ok {
		e = new(Element)
		b.Elements[key] = e
	}
	return e
}

func (b *Bucket) AddVal(key string, v uint64) {
	e := b.element(key)
	e.Count++
	e.Total += v
	b.Total += v
}

// AddBucket merges o into b key-wise.
func (b *Bucket) AddBucket(o *Bucket) {
	if o == nil {
		return
	}
	for key, oe := range o.Elements {
		e := b.element(key)
		e.Count += oe.Count
		e.Total += oe.Total
		b.Total += oe.Total
	}
}

// SubBucket removes o from b for the keys present in both. Values clamp
// at zero and a key left with neither count nor total is removed.
func (b *Bucket) SubBucket(o *Bucket) {
	if o == nil {
		return
	}
	for key, oe := range o.Elements {
		e, ok := b.Elements[key]
		if !ok {
			continue
		}
		total := min(e.Total, oe.Total)
		e.Total -= total
		b.Total -= total
		e.Count -= min(e.Count, oe.Count)
		if e.Count == 0 && e.Total == 0 {
			delete(b.Elements, key)
		}
	}
}

// SetCount overrides the count of every key.
func (b *Bucket) SetCount(n uint64) {
	for _, e := range b.Elements {
		e.Count = n
	}
}

// SetCountFrom copies the counts of o for the keys present in both.
func (b *Bucket) SetCountFrom(o *Bucket) {
	for key, e := range b.Elements {
		if oe, ok := o.Elements[key]; ok {
			e.Count = oe.Count
		}
	}
}

func (b *Bucket) SetScale(scale uint64) {
	for _, e := range b.Elements {
		e.Scale = scale
	}
}

func (b *Bucket) Get(key string) (*Element, bool) {
	e, ok := b.Elements[key]
	return e, ok
}

func (b *Bucket) Len() int {
	return len(b.Elements)
}

func (b *Bucket) Empty() bool {
	return len(b.Elements) == 0
}

func (b *Bucket) Clear() {
	clear(b.Elements)
	b.Total = 0
}

// Clone returns a deep copy of b.
func (b *Bucket) Clone() *Bucket {
	c := NewBucket(b.Name)
	for key, e := range b.Elements {
		ce := *e
		c.Elements[key] = &ce
	}
	c.Total = b.Total
	return c
}

// Keys returns the keys ordered by decreasing total, then by name.
func (b *Bucket) Keys() []string {
	keys := make([]string, 0, len(b.Elements))
	for key := range b.Elements {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(x, y string) int {
		if c := cmp.Compare(b.Elements[y].Total, b.Elements[x].Total); c != 0 {
			return c
		}
		return cmp.Compare(x, y)
	})
	return keys
}

// MaxTotal returns the largest element total, used to scale charts.
func (b *Bucket) MaxTotal() uint64 {
	var m uint64
	for _, e := range b.Elements {
		m = max(m, e.Total)
	}
	return m
}
