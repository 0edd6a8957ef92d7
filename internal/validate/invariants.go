package validate

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/parcad/internal/document"
	"github.com/roach88/parcad/internal/ir"
	"github.com/roach88/parcad/internal/naming"
)

var pinnedRoles = []struct {
	id   document.FeatureID
	kind document.Kind
	role string
}{
	{document.OriginID, document.KindOrigin, ""},
	{document.XYPlaneID, document.KindPlane, document.RoleXY},
	{document.XZPlaneID, document.KindPlane, document.RoleXZ},
	{document.YZPlaneID, document.KindPlane, document.RoleYZ},
}

// groupPrefixes lists the element id prefixes each sketch group accepts.
var groupPrefixes = map[string][]string{
	document.GroupPoints:      {document.PrefixPoint},
	document.GroupEntities:    {document.PrefixLine, document.PrefixArc},
	document.GroupConstraints: {document.PrefixConstraint},
}

// tree is the parts of a document tree the invariant checks read.
type tree struct {
	features map[document.FeatureID]ir.Object
	order    []document.FeatureID
	index    map[document.FeatureID]int
	gate     ir.Value
}

func readTree(t ir.Object, c *collector) *tree {
	out := &tree{
		features: make(map[document.FeatureID]ir.Object),
		index:    make(map[document.FeatureID]int),
		gate:     ir.Null{},
	}

	feats, ok := t["features"].(ir.Object)
	if !ok {
		c.errorf(CodeMalformed, "features", "must be an object")
	}
	for id, v := range feats {
		rec, ok := v.(ir.Object)
		if !ok {
			c.errorf(CodeMalformed, "features."+id, "must be an object")
			continue
		}
		out.features[document.FeatureID(id)] = rec
	}

	order, ok := ir.AsStrings(t["order"])
	if !ok {
		c.errorf(CodeMalformed, "order", "must be an array of feature ids")
	}
	for _, id := range order {
		out.order = append(out.order, document.FeatureID(id))
	}

	if state, ok := t["state"].(ir.Object); ok {
		if g, ok := state["rebuildGate"]; ok {
			out.gate = g
		}
	}
	return out
}

// CheckInvariants checks the structural invariants of a document tree.
func CheckInvariants(t ir.Object) Report {
	c := &collector{}
	checkInvariants(t, c)
	return c.report()
}

func checkInvariants(t ir.Object, c *collector) {
	doc := readTree(t, c)
	checkPinnedPrefix(doc, c)
	checkBijection(doc, c)
	checkGate(doc, c)
	for _, id := range doc.order {
		rec, ok := doc.features[id]
		if !ok {
			continue
		}
		if k, _ := ir.AsString(rec["type"]); k == string(document.KindSketch) {
			checkSketchIDs(id, rec, c)
		}
	}
	g := buildGraph(doc, c)
	checkForwardRefs(doc, g, c)
	checkCycles(g, c)
}

func checkPinnedPrefix(doc *tree, c *collector) {
	for i, p := range pinnedRoles {
		path := fmt.Sprintf("order[%d]", i)
		if i >= len(doc.order) || doc.order[i] != p.id {
			c.errorf(CodePinnedPrefix, path, "must be %s", p.id)
			continue
		}
		rec, ok := doc.features[p.id]
		if !ok {
			continue
		}
		kind, _ := ir.AsString(rec["type"])
		role, _ := ir.AsString(rec["role"])
		if kind != string(p.kind) || role != p.role {
			c.errorf(CodePinnedPrefix, "features."+string(p.id), "pinned datum has type %q role %q, want %q %q", kind, role, p.kind, p.role)
		}
	}
}

func checkBijection(doc *tree, c *collector) {
	seen := make(map[document.FeatureID]bool, len(doc.order))
	for i, id := range doc.order {
		path := fmt.Sprintf("order[%d]", i)
		if seen[id] {
			c.errorf(CodeBijection, path, "duplicate entry %s", id)
			continue
		}
		seen[id] = true
		doc.index[id] = i
		if _, ok := doc.features[id]; !ok {
			c.errorf(CodeBijection, path, "feature %s has no record", id)
		}
	}
	for _, id := range sortedIDs(doc.features) {
		rec := doc.features[id]
		path := "features." + string(id)
		if !seen[id] {
			c.errorf(CodeBijection, path, "record is not in the order")
		}
		if rid, _ := ir.AsString(rec["id"]); rid != string(id) {
			c.errorf(CodeBijection, path+".id", "is %q, want the record key", rid)
		}
	}
}

func checkGate(doc *tree, c *collector) {
	switch g := doc.gate.(type) {
	case nil, ir.Null:
	case ir.String:
		if _, ok := doc.index[document.FeatureID(g)]; !ok {
			c.errorf(CodeGate, "state.rebuildGate", "%s is not in the order", g)
		}
	default:
		c.errorf(CodeGate, "state.rebuildGate", "must be null or a feature id")
	}
}

func checkSketchIDs(id document.FeatureID, rec ir.Object, c *collector) {
	base := "features." + string(id)
	owner := make(map[string]string)
	points := make(map[string]bool)
	elements := make(map[string]bool)
	highest := make(map[string]int)

	for _, group := range []string{document.GroupPoints, document.GroupEntities, document.GroupConstraints} {
		obj, _ := rec[group].(ir.Object)
		for _, eid := range obj.SortedKeys() {
			path := base + "." + group + "." + eid
			el, ok := document.ParseElementID(eid)
			if !ok || !slices.Contains(groupPrefixes[group], el.Prefix) {
				c.errorf(CodeSketchIDs, path, "id does not fit group %s", group)
				continue
			}
			if prev, dup := owner[eid]; dup {
				c.errorf(CodeSketchIDs, path, "id is also used in %s", prev)
				continue
			}
			owner[eid] = group
			elements[eid] = true
			if group == document.GroupPoints {
				points[eid] = true
			}
			highest[el.CounterKey()] = max(highest[el.CounterKey()], el.N)
		}
	}

	counters, _ := rec[document.GroupCounters].(ir.Object)
	for _, key := range slices.Sorted(maps.Keys(highest)) {
		n := highest[key]
		v, _ := ir.AsFloat(counters[key])
		if int(v) < n {
			c.warnf(CodeSketchIDs, base+".counters."+key, "counter %d is below the highest allocated id %d", int(v), n)
		}
	}

	entities, _ := rec[document.GroupEntities].(ir.Object)
	for _, eid := range entities.SortedKeys() {
		e, _ := entities[eid].(ir.Object)
		for _, key := range []string{"start", "end", "center"} {
			pid, ok := ir.AsString(e[key])
			if ok && pid != "" && !points[pid] {
				c.warnf(CodeDanglingRef, base+".entities."+eid+"."+key, "point %s does not exist", pid)
			}
		}
	}
	constraints, _ := rec[document.GroupConstraints].(ir.Object)
	for _, cid := range constraints.SortedKeys() {
		cn, _ := constraints[cid].(ir.Object)
		refs, _ := ir.AsStrings(cn["refs"])
		for _, r := range refs {
			if !elements[r] {
				c.warnf(CodeDanglingRef, base+".constraints."+cid, "element %s does not exist", r)
			}
		}
	}
}

// input is one feature-to-feature dependency of a record.
type input struct {
	field  string
	target document.FeatureID
}

// inputsOf lists the dependencies of rec. Tokens contribute their origin
// feature; malformed tokens are reported and skipped.
func inputsOf(id document.FeatureID, rec ir.Object, c *collector) []input {
	base := "features." + string(id) + "."
	var out []input
	addID := func(field string, v ir.Value) {
		if s, ok := ir.AsString(v); ok && s != "" {
			out = append(out, input{field, document.FeatureID(s)})
		}
	}
	addTarget := func(field string, s string) {
		if s == "" {
			return
		}
		if !document.IsRefToken(s) {
			out = append(out, input{field, document.FeatureID(s)})
			return
		}
		ref, err := naming.Decode(s)
		if err != nil {
			c.errorf(CodeReference, base+field, "%v", err)
			return
		}
		out = append(out, input{field, ref.OriginFeatureID})
	}
	targetField := func(field string) {
		if s, ok := ir.AsString(rec[field]); ok {
			addTarget(field, s)
		}
	}

	kind, _ := ir.AsString(rec["type"])
	switch document.Kind(kind) {
	case document.KindPlane:
		targetField("base")
	case document.KindAxis:
		targetField("ref")
	case document.KindSketch:
		targetField("plane")
	case document.KindRevolve:
		addID("sketch", rec["sketch"])
		targetField("axis")
	case document.KindExtrude:
		addID("sketch", rec["sketch"])
		rp, err := document.RefParamFromValue(rec["extentRef"])
		if err != nil {
			c.errorf(CodeReference, base+"extentRef", "%v", err)
		}
		for _, t := range rp.Tokens() {
			addTarget("extentRef", t)
		}
		ids, _ := ir.AsStrings(rec["targetBodies"])
		for _, s := range ids {
			addID("targetBodies", ir.String(s))
		}
	case document.KindBoolean:
		addID("target", rec["target"])
		ids, _ := ir.AsStrings(rec["tools"])
		for _, s := range ids {
			addID("tools", ir.String(s))
		}
	}
	return out
}

func sortedIDs[V any](m map[document.FeatureID]V) []document.FeatureID {
	ids := make([]document.FeatureID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
