package validate

import (
	"fmt"

	"github.com/roach88/parcad/internal/document"
	"github.com/roach88/parcad/internal/ir"
)

// ValidateInvariants checks a snapshot's structural invariants. Snapshot
// anomalies are reported as warnings: they record how a merged state was
// normalized.
func ValidateInvariants(snap *document.Snapshot) Report {
	c := &collector{}
	checkInvariants(snap.TreeValue(), c)
	addAnomalies(snap, c)
	return c.report()
}

// ValidateDocument runs the schema, decode and invariant checks over a
// snapshot.
func ValidateDocument(snap *document.Snapshot) Report {
	c := &collector{}
	validateTree(snap.TreeValue(), c)
	addAnomalies(snap, c)
	return c.report()
}

// ValidateTree runs the schema, decode and invariant checks over a raw
// document tree such as one read from JSON.
func ValidateTree(tree ir.Object) Report {
	c := &collector{}
	validateTree(tree, c)
	return c.report()
}

func validateTree(tree ir.Object, c *collector) {
	checkSchema(tree, c)
	if feats, ok := tree["features"].(ir.Object); ok {
		for _, id := range feats.SortedKeys() {
			rec, ok := feats[id].(ir.Object)
			if !ok {
				continue
			}
			if _, err := document.DecodeFeature(rec); err != nil {
				c.errorf(CodeDecode, "features."+id, "%v", err)
			}
		}
	}
	checkInvariants(tree, c)
}

func addAnomalies(snap *document.Snapshot, c *collector) {
	for _, a := range snap.Anomalies {
		path := ""
		if a.Feature != "" {
			path = "features." + string(a.Feature)
		}
		c.warnf(a.Kind, path, "%s", anomalyMessage(a))
	}
}

func anomalyMessage(a document.Anomaly) string {
	if a.Detail == "" {
		return fmt.Sprintf("normalized %s", a.Kind)
	}
	return a.Detail
}
