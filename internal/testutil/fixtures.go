package testutil

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/parcad/internal/command"
	"github.com/roach88/parcad/internal/crdt"
	"github.com/roach88/parcad/internal/document"
)

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// SeqID returns the nth id of a SequenceGenerator with the given prefix.
func SeqID(prefix uint32, n int) document.FeatureID {
	g := document.NewSequenceGenerator(prefix)
	var id document.FeatureID
	for range n {
		id = g.Generate()
	}
	return id
}

// NewDocument creates a document named "test" on replica with a
// deterministic clock.
func NewDocument(t testing.TB, replica crdt.ReplicaID) *document.Document {
	t.Helper()
	clock := NewDeterministicClock()
	d, err := document.New(replica, "test", document.WithClock(clock.Now), document.WithLogger(DiscardLogger()))
	require.NoError(t, err)
	return d
}

// NewLayer creates a command layer over a fresh document. Feature ids come
// from a SequenceGenerator with prefix 0.
func NewLayer(t testing.TB) *command.Layer {
	t.Helper()
	return command.New(NewDocument(t, "a"), command.WithIDGenerator(document.NewSequenceGenerator(0)))
}

// Rectangle adds a w x h axis-aligned rectangle with a corner at the sketch
// origin and returns its line ids in walk order.
func Rectangle(t testing.TB, l *command.Layer, sketch document.FeatureID, w, h float64) []string {
	t.Helper()
	corners := [][2]float64{{0, 0}, {w, 0}, {w, h}, {0, h}}
	pts := make([]string, len(corners))
	for i, c := range corners {
		id, err := l.AddPoint(sketch, c[0], c[1])
		require.NoError(t, err)
		pts[i] = id
	}
	lines := make([]string, len(pts))
	for i := range pts {
		id, err := l.AddLine(sketch, pts[i], pts[(i+1)%len(pts)])
		require.NoError(t, err)
		lines[i] = id
	}
	return lines
}

// Box creates a sketch on the XY plane holding a w x h rectangle and
// extrudes it by d. It returns the sketch and extrude ids.
func Box(t testing.TB, l *command.Layer, w, h, d float64) (sketch, extrude document.FeatureID) {
	t.Helper()
	sketch, err := l.CreateSketch(command.SketchParams{Plane: string(document.XYPlaneID)})
	require.NoError(t, err)
	Rectangle(t, l, sketch, w, h)
	extrude, err = l.CreateExtrude(command.ExtrudeParams{Sketch: sketch, Distance: document.Num(d)})
	require.NoError(t, err)
	return sketch, extrude
}
