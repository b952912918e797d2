package geometry

// Rectangle is an axis-aligned box anchored at its top-left corner.
type Rectangle struct {
	X, Y          float64
	Width, Height float64
}

// Rect is shorthand for a Rectangle literal.
func Rect(x, y, w, h float64) Rectangle {
	return Rectangle{X: x, Y: y, Width: w, Height: h}
}

// Around returns a size×size square centred on p.
func Around(p Point, size float64) Rectangle {
	return Rectangle{X: p.X - size/2, Y: p.Y - size/2, Width: size, Height: size}
}

func (r Rectangle) TopLeft() Point     { return Point{X: r.X, Y: r.Y} }
func (r Rectangle) TopRight() Point    { return Point{X: r.X + r.Width, Y: r.Y} }
func (r Rectangle) BottomRight() Point { return Point{X: r.X + r.Width, Y: r.Y + r.Height} }
func (r Rectangle) BottomLeft() Point  { return Point{X: r.X, Y: r.Y + r.Height} }

func (r Rectangle) Top() Point    { return Point{X: r.X + r.Width/2, Y: r.Y} }
func (r Rectangle) Right() Point  { return Point{X: r.X + r.Width, Y: r.Y + r.Height/2} }
func (r Rectangle) Bottom() Point { return Point{X: r.X + r.Width/2, Y: r.Y + r.Height} }
func (r Rectangle) Left() Point   { return Point{X: r.X, Y: r.Y + r.Height/2} }

// Center returns the centre of the rectangle.
func (r Rectangle) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Corners returns the four corners clockwise from the top-left.
func (r Rectangle) Corners() [4]Point {
	return [4]Point{r.TopLeft(), r.TopRight(), r.BottomRight(), r.BottomLeft()}
}

// Midpoints returns the four edge midpoints clockwise from the top.
func (r Rectangle) Midpoints() [4]Point {
	return [4]Point{r.Top(), r.Right(), r.Bottom(), r.Left()}
}

// Contains reports whether p lies inside r, edges included.
func (r Rectangle) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.Width && p.Y >= r.Y && p.Y <= r.Y+r.Height
}

// Intersects reports whether r and o overlap, touching edges included.
func (r Rectangle) Intersects(o Rectangle) bool {
	return r.X <= o.X+o.Width && o.X <= r.X+r.Width &&
		r.Y <= o.Y+o.Height && o.Y <= r.Y+r.Height
}

// Translate moves r by d.
func (r Rectangle) Translate(d Point) Rectangle {
	r.X += d.X
	r.Y += d.Y
	return r
}
