package naming

import (
	"fmt"
	"slices"

	"github.com/roach88/parcad/internal/document"
	"github.com/roach88/parcad/internal/ir"
)

// Loop is a closed cycle of sketch entities in canonical walk order.
type Loop struct {
	ID       string
	Entities []string
}

// LoopSet is the result of loop discovery over one sketch.
type LoopSet struct {
	Loops []Loop
	// Open lists entities that are not part of any closed loop.
	Open []string
	// Branching is set when some point joins more than two entity ends,
	// i.e. the sketch has a T-junction or crossing profile.
	Branching bool
}

// endpoints returns the points an entity's ends sit on, and whether both
// exist in the sketch.
func endpoints(s document.SketchData, id string) (string, string, bool) {
	e, ok := s.Entities[id]
	if !ok {
		return "", "", false
	}
	_, okStart := s.Points[e.Start]
	_, okEnd := s.Points[e.End]
	return e.Start, e.End, okStart && okEnd
}

// FindLoops discovers the closed loops of a sketch. Entities connect
// through shared endpoint points; a connected group in which every point
// joins exactly two entity ends is a loop. Constraints are ignored.
func FindLoops(s document.SketchData) LoopSet {
	var set LoopSet
	ids := s.EntityIDs()

	incident := make(map[string][]string)
	var usable []string
	for _, id := range ids {
		start, end, ok := endpoints(s, id)
		if !ok {
			set.Open = append(set.Open, id)
			continue
		}
		usable = append(usable, id)
		incident[start] = append(incident[start], id)
		incident[end] = append(incident[end], id)
	}

	visited := make(map[string]bool)
	for _, first := range usable {
		if visited[first] {
			continue
		}
		component := collect(s, first, incident, visited)

		closed := true
		for _, id := range component {
			start, end, _ := endpoints(s, id)
			for _, p := range []string{start, end} {
				switch n := len(incident[p]); {
				case n > 2:
					set.Branching = true
					closed = false
				case n < 2:
					closed = false
				}
			}
		}
		if !closed {
			set.Open = append(set.Open, component...)
			continue
		}
		walk := canonicalWalk(s, component, incident)
		id, err := ir.LoopID(walk)
		if err != nil {
			set.Open = append(set.Open, component...)
			continue
		}
		set.Loops = append(set.Loops, Loop{ID: id, Entities: walk})
	}

	slices.SortFunc(set.Open, document.CompareElementIDs)
	return set
}

// collect gathers the connected component containing first.
func collect(s document.SketchData, first string, incident map[string][]string, visited map[string]bool) []string {
	var out []string
	stack := []string{first}
	visited[first] = true
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, id)
		start, end, _ := endpoints(s, id)
		for _, p := range []string{start, end} {
			for _, next := range incident[p] {
				if !visited[next] {
					visited[next] = true
					stack = append(stack, next)
				}
			}
		}
	}
	slices.SortFunc(out, document.CompareElementIDs)
	return out
}

// canonicalWalk orders a simple cycle: start at the smallest entity id and
// walk toward its smaller neighbour.
func canonicalWalk(s document.SketchData, cycle []string, incident map[string][]string) []string {
	start := slices.MinFunc(cycle, document.CompareElementIDs)
	a, b, _ := endpoints(s, start)
	if a == b || len(cycle) == 1 {
		return []string{start}
	}

	other := func(p, id string) string {
		for _, e := range incident[p] {
			if e != id {
				return e
			}
		}
		return id
	}

	next, enter := other(a, start), a
	if nb := other(b, start); document.CompareElementIDs(nb, next) < 0 {
		next, enter = nb, b
	}

	walk := []string{start}
	cur := next
	for cur != start && len(walk) <= len(cycle) {
		walk = append(walk, cur)
		cs, ce, _ := endpoints(s, cur)
		exit := cs
		if cs == enter {
			exit = ce
		}
		cur, enter = other(exit, cur), exit
	}
	return walk
}

// LoopID returns the canonical identity of the closed loop formed by
// entityIDs. The ids may be given in any order; points positions and
// constraints do not affect the result.
func LoopID(s document.SketchData, entityIDs []string) (string, error) {
	if len(entityIDs) == 0 {
		return "", fmt.Errorf("loop id: no entities")
	}
	members := make(map[string]bool, len(entityIDs))
	incident := make(map[string][]string)
	for _, id := range entityIDs {
		if members[id] {
			return "", fmt.Errorf("loop id: duplicate entity %s", id)
		}
		start, end, ok := endpoints(s, id)
		if !ok {
			return "", fmt.Errorf("loop id: entity %s is missing or has missing endpoints", id)
		}
		members[id] = true
		incident[start] = append(incident[start], id)
		incident[end] = append(incident[end], id)
	}
	for p, ids := range incident {
		if len(ids) != 2 {
			return "", fmt.Errorf("loop id: point %s joins %d entity ends, want 2", p, len(ids))
		}
	}

	visited := make(map[string]bool)
	component := collect(s, entityIDs[0], incident, visited)
	if len(component) != len(entityIDs) {
		return "", fmt.Errorf("loop id: entities form more than one loop")
	}
	return ir.LoopID(canonicalWalk(s, component, incident))
}
