package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/parcad/internal/command"
	"github.com/roach88/parcad/internal/document"
	"github.com/roach88/parcad/internal/ir"
)

// Call is one tool invocation.
type Call struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// Param describes one tool argument.
type Param struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required,omitempty"`
	Description string `json:"description,omitempty"`
}

// Definition describes a tool to an agent.
type Definition struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"params"`
}

type tool struct {
	Definition
	run func(l *command.Layer, args json.RawMessage) (any, error)
}

// Executor runs tool calls against a command layer.
type Executor struct {
	layer  *command.Layer
	logger *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(lg *slog.Logger) Option {
	return func(e *Executor) {
		if lg != nil {
			e.logger = lg
		}
	}
}

// New creates an executor over layer.
func New(layer *command.Layer, opts ...Option) *Executor {
	e := &Executor{
		layer:  layer,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Definitions lists every tool in name order.
func Definitions() []Definition {
	defs := make([]Definition, 0, len(registry))
	for _, t := range registry {
		defs = append(defs, t.Definition)
	}
	slices.SortFunc(defs, func(a, b Definition) int { return strings.Compare(a.Name, b.Name) })
	return defs
}

// Execute runs one tool call.
func (e *Executor) Execute(ctx context.Context, call Call) command.Result[any] {
	if err := ctx.Err(); err != nil {
		return command.Wrap[any](nil, fmt.Errorf("tool %s: %w", call.Name, err))
	}
	t, ok := registry[call.Name]
	if !ok {
		return command.Wrap[any](nil, &command.NotFoundError{What: "tool", ID: call.Name})
	}
	res := command.Run(e.logger, func() (any, error) {
		return t.run(e.layer, call.Args)
	})
	if res.OK {
		e.logger.Debug("tool call", "tool", call.Name)
	} else {
		e.logger.Info("tool call failed", "tool", call.Name, "code", res.Code, "error", res.Error)
	}
	return res
}

// decodeArgs strictly decodes args into a P. Empty args decode as {}.
func decodeArgs[P any](args json.RawMessage) (P, error) {
	var p P
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return p, &command.ValidationError{Field: "args", Message: err.Error(), Err: err}
	}
	return p, nil
}

// bind adapts a typed command call to a registry entry.
func bind[P any](fn func(l *command.Layer, p P) (any, error)) func(*command.Layer, json.RawMessage) (any, error) {
	return func(l *command.Layer, args json.RawMessage) (any, error) {
		p, err := decodeArgs[P](args)
		if err != nil {
			return nil, err
		}
		return fn(l, p)
	}
}

// rawValue converts an optional JSON argument into an ir.Value.
func rawValue(field string, raw json.RawMessage) (ir.Value, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ir.Null{}, nil
	}
	v, err := ir.UnmarshalValue(raw)
	if err != nil {
		return nil, &command.ValidationError{Field: field, Message: err.Error(), Err: err}
	}
	return v, nil
}

func created(id document.FeatureID, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return id, nil
}

func element(id string, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return id, nil
}

func done(err error) (any, error) {
	return nil, err
}
