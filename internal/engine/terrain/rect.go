package terrain

import "fmt"

// Rect is an integer rectangle in height-sample coordinates.
// Right and Bottom are exclusive; a rect with no area is null.
type Rect struct {
	Left, Top, Right, Bottom int
}

// NewRect returns a rect from its edges.
func NewRect(left, top, right, bottom int) Rect {
	return Rect{Left: left, Top: top, Right: right, Bottom: bottom}
}

// Width returns the horizontal extent.
func (r Rect) Width() int { return r.Right - r.Left }

// Height returns the vertical extent.
func (r Rect) Height() int { return r.Bottom - r.Top }

// IsNull reports whether the rect covers nothing.
func (r Rect) IsNull() bool {
	return r.Width() <= 0 || r.Height() <= 0
}

// Merge returns the union bounding rect. Null operands are ignored.
func (r Rect) Merge(o Rect) Rect {
	if r.IsNull() {
		return o
	}
	if o.IsNull() {
		return r
	}
	return Rect{
		Left:   min(r.Left, o.Left),
		Top:    min(r.Top, o.Top),
		Right:  max(r.Right, o.Right),
		Bottom: max(r.Bottom, o.Bottom),
	}
}

// Intersect returns the overlap, or a null rect when disjoint.
func (r Rect) Intersect(o Rect) Rect {
	out := Rect{
		Left:   max(r.Left, o.Left),
		Top:    max(r.Top, o.Top),
		Right:  min(r.Right, o.Right),
		Bottom: min(r.Bottom, o.Bottom),
	}
	if out.IsNull() {
		return Rect{}
	}
	return out
}

// Clamp limits the rect to [0, size) on both axes.
func (r Rect) Clamp(size int) Rect {
	return Rect{
		Left:   max(r.Left, 0),
		Top:    max(r.Top, 0),
		Right:  min(r.Right, size),
		Bottom: min(r.Bottom, size),
	}
}

// Contains reports whether (x, y) lies inside.
func (r Rect) Contains(x, y int) bool {
	return x >= r.Left && x < r.Right && y >= r.Top && y < r.Bottom
}

func (r Rect) String() string {
	if r.IsNull() {
		return "Rect(null)"
	}
	return fmt.Sprintf("Rect(%d,%d)-(%d,%d)", r.Left, r.Top, r.Right, r.Bottom)
}
