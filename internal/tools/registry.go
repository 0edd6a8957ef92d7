package tools

import (
	"encoding/json"

	"github.com/roach88/parcad/internal/command"
	"github.com/roach88/parcad/internal/document"
)

type idArgs struct {
	ID document.FeatureID `json:"id"`
}

type renameArgs struct {
	ID   document.FeatureID `json:"id"`
	Name string             `json:"name"`
}

type suppressArgs struct {
	ID         document.FeatureID `json:"id"`
	Suppressed bool               `json:"suppressed"`
}

type visibilityArgs struct {
	ID      document.FeatureID `json:"id"`
	Visible bool               `json:"visible"`
}

type modifyArgs struct {
	ID    document.FeatureID `json:"id"`
	Key   string             `json:"key"`
	Value json.RawMessage    `json:"value"`
}

type reorderArgs struct {
	ID    document.FeatureID `json:"id"`
	After document.FeatureID `json:"after,omitempty"`
}

type gateArgs struct {
	ID document.FeatureID `json:"id,omitempty"`
}

type refArgs struct {
	ID    document.FeatureID `json:"id"`
	Param string             `json:"param"`
	Ref   string             `json:"ref,omitempty"`
}

type variableArgs struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value,omitempty"`
}

type nameArgs struct {
	Name string `json:"name"`
}

type unitsArgs struct {
	Units string `json:"units"`
}

type pointArgs struct {
	Sketch document.FeatureID `json:"sketch"`
	Point  string             `json:"point,omitempty"`
	X      float64            `json:"x"`
	Y      float64            `json:"y"`
}

type lineArgs struct {
	Sketch document.FeatureID `json:"sketch"`
	Start  string             `json:"start"`
	End    string             `json:"end"`
}

type arcArgs struct {
	Sketch document.FeatureID `json:"sketch"`
	Center string             `json:"center"`
	Start  string             `json:"start"`
	End    string             `json:"end"`
	CCW    bool               `json:"ccw"`
}

type constraintArgs struct {
	Sketch document.FeatureID `json:"sketch"`
	Kind   string             `json:"kind"`
	Refs   []string           `json:"refs"`
	Value  *float64           `json:"value,omitempty"`
}

type elementArgs struct {
	Sketch  document.FeatureID `json:"sketch"`
	Element string             `json:"element"`
}

func required(name, typ, desc string) Param {
	return Param{Name: name, Type: typ, Required: true, Description: desc}
}

func optional(name, typ, desc string) Param {
	return Param{Name: name, Type: typ, Description: desc}
}

var featureID = required("id", "featureId", "feature to act on")

var registry = map[string]tool{}

func register(name, desc string, params []Param, run func(*command.Layer, json.RawMessage) (any, error)) {
	if _, dup := registry[name]; dup {
		panic("tools: duplicate tool " + name)
	}
	registry[name] = tool{Definition: Definition{Name: name, Description: desc, Params: params}, run: run}
}

func init() {
	register("getDocument", "Return the current document tree.", nil,
		bind(func(l *command.Layer, _ struct{}) (any, error) {
			return l.Document().Snapshot().Tree(), nil
		}))

	register("createSketch", "Create an empty sketch on a datum plane or planar face.",
		[]Param{required("plane", "target", "plane feature id or face reference token"), optional("name", "string", "display name")},
		bind(func(l *command.Layer, a command.SketchParams) (any, error) {
			return created(l.CreateSketch(a))
		}))
	register("createExtrude", "Extrude the closed loops of a sketch.",
		[]Param{
			required("sketch", "featureId", "sketch to extrude"),
			required("distance", "param", "distance or =expression"),
			optional("op", "enum", "add | cut | new | intersect"),
			optional("extent", "enum", "blind | symmetric | throughAll | upToFace"),
			optional("extentRef", "ref", "face reference for upToFace"),
			optional("mergeScope", "enum", "all | selected | none"),
			optional("targetBodies", "featureId[]", "bodies to merge with when mergeScope is selected"),
			optional("name", "string", "display name"),
		},
		bind(func(l *command.Layer, a command.ExtrudeParams) (any, error) {
			return created(l.CreateExtrude(a))
		}))
	register("createRevolve", "Revolve the closed loops of a sketch around an axis.",
		[]Param{
			required("sketch", "featureId", "sketch to revolve"),
			required("axis", "target", "axis feature id or edge reference token"),
			required("angle", "param", "angle in degrees or =expression"),
			optional("op", "enum", "add | cut | new | intersect"),
			optional("name", "string", "display name"),
		},
		bind(func(l *command.Layer, a command.RevolveParams) (any, error) {
			return created(l.CreateRevolve(a))
		}))
	register("createBoolean", "Combine tool bodies into a target body.",
		[]Param{
			required("op", "enum", "union | subtract | intersect"),
			required("target", "featureId", "body to modify"),
			required("tools", "featureId[]", "bodies to apply"),
			optional("name", "string", "display name"),
		},
		bind(func(l *command.Layer, a command.BooleanParams) (any, error) {
			return created(l.CreateBoolean(a))
		}))
	register("createOffsetPlane", "Create a datum plane offset from a plane or face.",
		[]Param{required("base", "target", "plane feature id or face reference token"), required("offset", "param", "offset or =expression"), optional("name", "string", "display name")},
		bind(func(l *command.Layer, a command.OffsetPlaneParams) (any, error) {
			return created(l.CreateOffsetPlane(a))
		}))
	register("createAxis", "Create a datum axis from an edge or a point and direction.",
		[]Param{
			optional("ref", "target", "axis feature id or edge reference token"),
			optional("point", "vec3", "point on the axis"),
			optional("direction", "vec3", "axis direction"),
			optional("name", "string", "display name"),
		},
		bind(func(l *command.Layer, a command.AxisParams) (any, error) {
			return created(l.CreateAxis(a))
		}))

	register("deleteFeature", "Delete a feature. Dependents are kept and report broken references.",
		[]Param{featureID},
		bind(func(l *command.Layer, a idArgs) (any, error) {
			return done(l.DeleteFeature(a.ID))
		}))
	register("renameFeature", "Set a feature's display name.",
		[]Param{featureID, required("name", "string", "new name")},
		bind(func(l *command.Layer, a renameArgs) (any, error) {
			return done(l.RenameFeature(a.ID, a.Name))
		}))
	register("suppressFeature", "Set whether rebuilds skip a feature.",
		[]Param{featureID, required("suppressed", "bool", "")},
		bind(func(l *command.Layer, a suppressArgs) (any, error) {
			return done(l.SuppressFeature(a.ID, a.Suppressed))
		}))
	register("setVisibility", "Show or hide a feature.",
		[]Param{featureID, required("visible", "bool", "")},
		bind(func(l *command.Layer, a visibilityArgs) (any, error) {
			return done(l.SetVisibility(a.ID, a.Visible))
		}))
	register("toggleVisibility", "Flip a feature's visibility and return the new value.",
		[]Param{featureID},
		bind(func(l *command.Layer, a idArgs) (any, error) {
			v, err := l.ToggleVisibility(a.ID)
			if err != nil {
				return nil, err
			}
			return v, nil
		}))
	register("modifyFeatureParam", "Write one parameter of a feature.",
		[]Param{featureID, required("key", "string", "parameter name"), optional("value", "any", "new value; null clears optional parameters")},
		bind(func(l *command.Layer, a modifyArgs) (any, error) {
			v, err := rawValue("value", a.Value)
			if err != nil {
				return nil, err
			}
			return done(l.ModifyFeatureParam(a.ID, a.Key, v))
		}))
	register("reorderFeature", "Move a feature after another; omit after to move it to the front.",
		[]Param{featureID, optional("after", "featureId", "feature to move after")},
		bind(func(l *command.Layer, a reorderArgs) (any, error) {
			return done(l.ReorderFeature(a.ID, a.After))
		}))
	register("setRebuildGate", "Set the edit-in-context boundary; omit id to clear it.",
		[]Param{optional("id", "featureId", "last feature to evaluate")},
		bind(func(l *command.Layer, a gateArgs) (any, error) {
			return done(l.SetRebuildGate(a.ID))
		}))

	register("repairReference", "Replace a reference parameter with a new token.",
		[]Param{featureID, required("param", "string", "reference parameter"), required("ref", "token", "replacement token")},
		bind(func(l *command.Layer, a refArgs) (any, error) {
			return done(l.RepairReference(a.ID, a.Param, a.Ref))
		}))
	register("clearReference", "Clear an optional reference parameter.",
		[]Param{featureID, required("param", "string", "reference parameter")},
		bind(func(l *command.Layer, a refArgs) (any, error) {
			return done(l.ClearReference(a.ID, a.Param))
		}))
	register("updateReferenceSetPreferred", "Select the preferred token of a reference set.",
		[]Param{featureID, required("param", "string", "reference parameter"), required("ref", "token", "token to prefer")},
		bind(func(l *command.Layer, a refArgs) (any, error) {
			return done(l.UpdateReferenceSetPreferred(a.ID, a.Param, a.Ref))
		}))

	register("setVariable", "Set a document variable to a number or =expression.",
		[]Param{required("name", "string", "identifier"), required("value", "param", "")},
		bind(func(l *command.Layer, a variableArgs) (any, error) {
			v, err := rawValue("value", a.Value)
			if err != nil {
				return nil, err
			}
			return done(l.SetVariable(a.Name, v))
		}))
	register("deleteVariable", "Remove a document variable.",
		[]Param{required("name", "string", "identifier")},
		bind(func(l *command.Layer, a nameArgs) (any, error) {
			return done(l.DeleteVariable(a.Name))
		}))
	register("renameDocument", "Set the document name.",
		[]Param{required("name", "string", "")},
		bind(func(l *command.Layer, a nameArgs) (any, error) {
			return done(l.RenameDocument(a.Name))
		}))
	register("setUnits", "Set the document unit system.",
		[]Param{required("units", "enum", "mm | cm | m | in")},
		bind(func(l *command.Layer, a unitsArgs) (any, error) {
			return done(l.SetUnits(a.Units))
		}))

	register("addPoint", "Add a sketch point and return its id.",
		[]Param{required("sketch", "featureId", ""), required("x", "number", ""), required("y", "number", "")},
		bind(func(l *command.Layer, a pointArgs) (any, error) {
			return element(l.AddPoint(a.Sketch, a.X, a.Y))
		}))
	register("movePoint", "Set a sketch point's coordinates.",
		[]Param{required("sketch", "featureId", ""), required("point", "string", "point id"), required("x", "number", ""), required("y", "number", "")},
		bind(func(l *command.Layer, a pointArgs) (any, error) {
			return done(l.MovePoint(a.Sketch, a.Point, a.X, a.Y))
		}))
	register("addLine", "Add a line between two sketch points.",
		[]Param{required("sketch", "featureId", ""), required("start", "string", "point id"), required("end", "string", "point id")},
		bind(func(l *command.Layer, a lineArgs) (any, error) {
			return element(l.AddLine(a.Sketch, a.Start, a.End))
		}))
	register("addArc", "Add an arc around a center point; start equal to end makes a circle.",
		[]Param{required("sketch", "featureId", ""), required("center", "string", "point id"), required("start", "string", "point id"), required("end", "string", "point id"), optional("ccw", "bool", "counter-clockwise")},
		bind(func(l *command.Layer, a arcArgs) (any, error) {
			return element(l.AddArc(a.Sketch, a.Center, a.Start, a.End, a.CCW))
		}))
	register("addConstraint", "Record a sketch constraint.",
		[]Param{required("sketch", "featureId", ""), required("kind", "enum", "constraint kind"), required("refs", "string[]", "element ids"), optional("value", "number", "dimension value")},
		bind(func(l *command.Layer, a constraintArgs) (any, error) {
			return element(l.AddConstraint(a.Sketch, a.Kind, a.Refs, a.Value))
		}))
	register("removeSketchElement", "Remove a sketch point, entity or constraint.",
		[]Param{required("sketch", "featureId", ""), required("element", "string", "element id")},
		bind(func(l *command.Layer, a elementArgs) (any, error) {
			return done(l.RemoveSketchElement(a.Sketch, a.Element))
		}))
}
