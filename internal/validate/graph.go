package validate

import (
	"strings"

	"github.com/roach88/parcad/internal/document"
)

// dependencyGraph maps a feature to the features it reads.
type dependencyGraph struct {
	nodes []document.FeatureID
	edges map[document.FeatureID][]input
}

// buildGraph collects the inputs of every ordered feature. Inputs naming
// a feature without a record are reported as dangling.
func buildGraph(doc *tree, c *collector) *dependencyGraph {
	g := &dependencyGraph{edges: make(map[document.FeatureID][]input)}
	for _, id := range doc.order {
		rec, ok := doc.features[id]
		if !ok {
			continue
		}
		if _, dup := g.edges[id]; dup {
			continue
		}
		g.nodes = append(g.nodes, id)
		var kept []input
		for _, in := range inputsOf(id, rec, c) {
			if _, ok := doc.features[in.target]; !ok {
				c.warnf(CodeDanglingRef, "features."+string(id)+"."+in.field, "feature %s does not exist", in.target)
				continue
			}
			kept = append(kept, in)
		}
		g.edges[id] = kept
	}
	return g
}

func (g *dependencyGraph) successors(id document.FeatureID) []document.FeatureID {
	out := make([]document.FeatureID, 0, len(g.edges[id]))
	for _, in := range g.edges[id] {
		out = append(out, in.target)
	}
	return out
}

// checkForwardRefs warns about inputs evaluated at or after their consumer.
// Rebuild reports such a feature as failed.
func checkForwardRefs(doc *tree, g *dependencyGraph, c *collector) {
	for _, id := range g.nodes {
		at := doc.index[id]
		for _, in := range g.edges[id] {
			if in.target == id {
				continue
			}
			if j, ok := doc.index[in.target]; ok && j > at {
				c.warnf(CodeForwardRef, "features."+string(id)+"."+in.field, "input %s is evaluated after this feature", in.target)
			}
		}
	}
}

// checkCycles reports every strongly connected component with more than one
// feature, or a feature that reads itself.
func checkCycles(g *dependencyGraph, c *collector) {
	for _, scc := range tarjanSCC(g) {
		if len(scc) == 1 && !hasSelfLoop(g, scc[0]) {
			continue
		}
		path := reconstructCyclePath(scc, g)
		parts := make([]string, len(path))
		for i, id := range path {
			parts[i] = string(id)
		}
		c.warnf(CodeDependencyCycle, "features."+string(path[0]), "dependency cycle: %s", strings.Join(parts, " -> "))
	}
}

func hasSelfLoop(g *dependencyGraph, id document.FeatureID) bool {
	for _, w := range g.successors(id) {
		if w == id {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components. Nodes are visited in order
// so the result is deterministic.
func tarjanSCC(g *dependencyGraph) [][]document.FeatureID {
	var (
		index   = 0
		stack   []document.FeatureID
		indices = make(map[document.FeatureID]int)
		lowlink = make(map[document.FeatureID]int)
		onStack = make(map[document.FeatureID]bool)
		sccs    [][]document.FeatureID
	)

	var strongConnect func(document.FeatureID)
	strongConnect = func(v document.FeatureID) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.successors(v) {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []document.FeatureID
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range g.nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// reconstructCyclePath walks edges inside scc from its first member until
// it returns there.
func reconstructCyclePath(scc []document.FeatureID, g *dependencyGraph) []document.FeatureID {
	if len(scc) == 1 {
		return []document.FeatureID{scc[0], scc[0]}
	}
	members := make(map[document.FeatureID]bool, len(scc))
	for _, id := range scc {
		members[id] = true
	}

	start := scc[0]
	current := start
	path := []document.FeatureID{current}
	visited := make(map[document.FeatureID]bool)
	for {
		visited[current] = true
		var next document.FeatureID
		for _, w := range g.successors(current) {
			if members[w] && (!visited[w] || w == start) {
				next = w
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
