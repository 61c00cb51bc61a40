package fragindex

// Rect is an axis-aligned rectangle in text-layer pixel coordinates with
// the origin at the top-left corner.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Intersects reports whether r and o overlap.
func (r Rect) Intersects(o Rect) bool {
	return !(o.X > r.X+r.Width || o.X+o.Width < r.X ||
		o.Y > r.Y+r.Height || o.Y+o.Height < r.Y)
}

// Contains reports whether o lies entirely within r.
func (r Rect) Contains(o Rect) bool {
	return o.X >= r.X && o.X+o.Width <= r.X+r.Width &&
		o.Y >= r.Y && o.Y+o.Height <= r.Y+r.Height
}

// quadTree is a spatial index over fragment rectangles, used for pointer
// hit-testing against a rendered page.
type quadTree struct {
	bounds   Rect
	capacity int
	points   []quadPoint
	nodes    []*quadTree
}

type quadPoint struct {
	rect  Rect
	index int
}

func newQuadTree(bounds Rect, capacity int) *quadTree {
	return &quadTree{
		bounds:   bounds,
		capacity: capacity,
		points:   make([]quadPoint, 0, capacity),
	}
}

func (qt *quadTree) insert(rect Rect, index int) bool {
	if !qt.bounds.Intersects(rect) {
		return false
	}

	if qt.nodes != nil {
		for _, node := range qt.nodes {
			if node.bounds.Contains(rect) {
				if node.insert(rect, index) {
					return true
				}
			}
		}
	}

	if qt.nodes == nil {
		if len(qt.points) < qt.capacity {
			qt.points = append(qt.points, quadPoint{rect: rect, index: index})
			return true
		}
		qt.subdivide()
		old := qt.points
		qt.points = make([]quadPoint, 0, qt.capacity)
		for _, p := range old {
			qt.insert(p.rect, p.index)
		}
		return qt.insert(rect, index)
	}

	// Straddles child boundaries, keep it at this level.
	qt.points = append(qt.points, quadPoint{rect: rect, index: index})
	return true
}

func (qt *quadTree) subdivide() {
	halfW := qt.bounds.Width / 2
	halfH := qt.bounds.Height / 2
	qt.nodes = []*quadTree{
		newQuadTree(Rect{X: qt.bounds.X, Y: qt.bounds.Y, Width: halfW, Height: halfH}, qt.capacity),
		newQuadTree(Rect{X: qt.bounds.X + halfW, Y: qt.bounds.Y, Width: halfW, Height: halfH}, qt.capacity),
		newQuadTree(Rect{X: qt.bounds.X, Y: qt.bounds.Y + halfH, Width: halfW, Height: halfH}, qt.capacity),
		newQuadTree(Rect{X: qt.bounds.X + halfW, Y: qt.bounds.Y + halfH, Width: halfW, Height: halfH}, qt.capacity),
	}
}

func (qt *quadTree) query(region Rect) []int {
	var found []int
	if !qt.bounds.Intersects(region) {
		return found
	}
	for _, p := range qt.points {
		if p.rect.Intersects(region) {
			found = append(found, p.index)
		}
	}
	if qt.nodes != nil {
		for _, node := range qt.nodes {
			found = append(found, node.query(region)...)
		}
	}
	return found
}
