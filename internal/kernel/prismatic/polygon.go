package prismatic

import (
	"fmt"
	"math"

	"github.com/roach88/parcad/internal/document"
)

// eps is the geometric tolerance in model units.
const eps = 1e-9

type vec2 struct{ x, y float64 }

func (a vec2) sub(b vec2) vec2 { return vec2{a.x - b.x, a.y - b.y} }
func (a vec2) cross(b vec2) float64 {
	return a.x*b.y - a.y*b.x
}
func (a vec2) len() float64 { return math.Hypot(a.x, a.y) }

func pointOf(s document.SketchData, id string) (vec2, error) {
	p, ok := s.Points[id]
	if !ok {
		return vec2{}, fmt.Errorf("missing point %s", id)
	}
	return vec2{p.X, p.Y}, nil
}

// segment is the part of a loop contributed by one entity, traversed in
// walk order.
type segment struct {
	entity string
	kind   string
	pts    []vec2 // from the entry point up to, excluding, the exit point
	exit   vec2
	length float64
	mid    vec2
}

// arcSweep returns the start angle and signed sweep of an arc.
func arcSweep(center, start, end vec2, ccw bool) (a0, sweep float64) {
	a0 = math.Atan2(start.y-center.y, start.x-center.x)
	a1 := math.Atan2(end.y-center.y, end.x-center.x)
	if start == end {
		sweep = 2 * math.Pi
	} else {
		sweep = math.Mod(a1-a0+4*math.Pi, 2*math.Pi)
	}
	if !ccw {
		sweep -= 2 * math.Pi
		if start == end {
			sweep = -2 * math.Pi
		}
	}
	return a0, sweep
}

// traverse tessellates entity id from point enter.
func traverse(s document.SketchData, id, enter string) (segment, string, error) {
	e := s.Entities[id]
	start, err := pointOf(s, e.Start)
	if err != nil {
		return segment{}, "", err
	}
	end, err := pointOf(s, e.End)
	if err != nil {
		return segment{}, "", err
	}
	forward := enter == e.Start
	exitID := e.End
	if !forward {
		exitID = e.Start
	}
	seg := segment{entity: id, kind: e.Kind}

	switch e.Kind {
	case document.EntityArc:
		center, err := pointOf(s, e.Center)
		if err != nil {
			return segment{}, "", err
		}
		r := start.sub(center).len()
		if r < eps {
			return segment{}, "", fmt.Errorf("arc %s has zero radius", id)
		}
		a0, sweep := arcSweep(center, start, end, e.CCW)
		n := int(math.Max(4, math.Ceil(math.Abs(sweep)/(math.Pi/8))))
		var pts []vec2
		for k := 0; k < n; k++ {
			a := a0 + sweep*float64(k)/float64(n)
			pts = append(pts, vec2{center.x + r*math.Cos(a), center.y + r*math.Sin(a)})
		}
		seg.length = r * math.Abs(sweep)
		am := a0 + sweep/2
		seg.mid = vec2{center.x + r*math.Cos(am), center.y + r*math.Sin(am)}
		if forward {
			seg.pts, seg.exit = pts, end
		} else {
			// walk the same tessellation backwards from end
			rev := []vec2{end}
			for k := len(pts) - 1; k >= 1; k-- {
				rev = append(rev, pts[k])
			}
			seg.pts, seg.exit = rev, start
		}
	default:
		seg.length = end.sub(start).len()
		seg.mid = vec2{(start.x + end.x) / 2, (start.y + end.y) / 2}
		if forward {
			seg.pts, seg.exit = []vec2{start}, end
		} else {
			seg.pts, seg.exit = []vec2{end}, start
		}
	}
	return seg, exitID, nil
}

// walkLoop tessellates a closed loop given in walk order.
func walkLoop(s document.SketchData, entities []string) ([]segment, error) {
	first := s.Entities[entities[0]]
	enter := first.Start
	if len(entities) > 1 {
		last := s.Entities[entities[len(entities)-1]]
		if first.Start != last.Start && first.Start != last.End {
			enter = first.End
		}
	}
	segs := make([]segment, 0, len(entities))
	for _, id := range entities {
		seg, exit, err := traverse(s, id, enter)
		if err != nil {
			return nil, err
		}
		segs = append(segs, seg)
		enter = exit
	}
	return segs, nil
}

func polygonOf(segs []segment) []vec2 {
	var out []vec2
	for _, s := range segs {
		out = append(out, s.pts...)
	}
	return out
}

// signedArea is positive for counter-clockwise polygons.
func signedArea(poly []vec2) float64 {
	var a float64
	for i := range poly {
		j := (i + 1) % len(poly)
		a += poly[i].cross(poly[j])
	}
	return a / 2
}

func centroid(poly []vec2, area float64) vec2 {
	var cx, cy float64
	for i := range poly {
		j := (i + 1) % len(poly)
		f := poly[i].cross(poly[j])
		cx += (poly[i].x + poly[j].x) * f
		cy += (poly[i].y + poly[j].y) * f
	}
	return vec2{cx / (6 * area), cy / (6 * area)}
}

func orient(a, b, c vec2) int {
	v := b.sub(a).cross(c.sub(a))
	switch {
	case v > eps:
		return 1
	case v < -eps:
		return -1
	}
	return 0
}

func onSegment(a, b, p vec2) bool {
	return math.Min(a.x, b.x)-eps <= p.x && p.x <= math.Max(a.x, b.x)+eps &&
		math.Min(a.y, b.y)-eps <= p.y && p.y <= math.Max(a.y, b.y)+eps
}

func segmentsIntersect(p1, p2, q1, q2 vec2) bool {
	o1, o2 := orient(p1, p2, q1), orient(p1, p2, q2)
	o3, o4 := orient(q1, q2, p1), orient(q1, q2, p2)
	if o1 != o2 && o3 != o4 && o1 != 0 && o2 != 0 && o3 != 0 && o4 != 0 {
		return true
	}
	return (o1 == 0 && onSegment(p1, p2, q1)) ||
		(o2 == 0 && onSegment(p1, p2, q2)) ||
		(o3 == 0 && onSegment(q1, q2, p1)) ||
		(o4 == 0 && onSegment(q1, q2, p2))
}

// selfIntersects reports whether two non-adjacent edges of a closed polygon
// touch.
func selfIntersects(poly []vec2) bool {
	n := len(poly)
	for i := 0; i < n; i++ {
		a1, a2 := poly[i], poly[(i+1)%n]
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue
			}
			if segmentsIntersect(a1, a2, poly[j], poly[(j+1)%n]) {
				return true
			}
		}
	}
	return false
}
