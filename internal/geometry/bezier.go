package geometry

// BezierPath is a cubic bezier curve from P1 to P4 with control points P2, P3.
type BezierPath struct {
	P1, P2, P3, P4 Point
}

// SetCoords replaces all four points.
func (b *BezierPath) SetCoords(p1, p2, p3, p4 Point) {
	b.P1, b.P2, b.P3, b.P4 = p1, p2, p3, p4
}

// GetPoint evaluates the curve at t in [0,1].
func (b BezierPath) GetPoint(t float64) Point {
	switch t {
	case 0:
		return b.P1
	case 1:
		return b.P4
	}
	u := 1 - t
	c1 := u * u * u
	c2 := 3 * u * u * t
	c3 := 3 * u * t * t
	c4 := t * t * t
	return Point{
		X: c1*b.P1.X + c2*b.P2.X + c3*b.P3.X + c4*b.P4.X,
		Y: c1*b.P1.Y + c2*b.P2.Y + c3*b.P3.Y + c4*b.P4.Y,
	}
}

// String renders the curve as an SVG path: "M{p1} C {p2} {p3} {p4}".
func (b BezierPath) String() string {
	return "M" + b.P1.String() + " C " + b.P2.String() + " " + b.P3.String() + " " + b.P4.String()
}
