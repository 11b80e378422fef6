// Package tools holds the closed set of capabilities the agent can invoke and
// the registry that validates inputs before invoking them. Tools never return
// errors; every outcome is observation text for the model.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"sedar-analyst/internal/domain"
	"sedar-analyst/internal/metrics"
)

// Kind is one of the capabilities the agent may call.
type Kind int

const (
	KindRetrieve Kind = iota + 1
	KindComputeRatio
	KindFetchPrice
)

func (k Kind) String() string {
	switch k {
	case KindRetrieve:
		return "retrieve"
	case KindComputeRatio:
		return "compute_ratio"
	case KindFetchPrice:
		return "fetch_price"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Func runs a tool on validated arguments and renders the observation.
type Func func(ctx context.Context, args map[string]any) string

// Descriptor describes one registered tool.
type Descriptor struct {
	Name        string
	Kind        Kind
	Description string
	Schema      *jsonschema.Schema

	invoke   Func
	resolved *jsonschema.Resolved
}

// Parameters lists the schema's property names in sorted order.
func (d Descriptor) Parameters() []string {
	if d.Schema == nil {
		return nil
	}
	names := make([]string, 0, len(d.Schema.Properties))
	for name := range d.Schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SchemaJSON renders the input schema for the prompt.
func (d Descriptor) SchemaJSON() string {
	data, err := json.Marshal(d.Schema)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Result is the outcome of one Invoke.
type Result struct {
	Observation string
	// Valid is false when the tool was not invoked because the name or input was rejected.
	Valid bool
}

// Registry maps tool names to descriptors. It is immutable after NewRegistry.
type Registry struct {
	byName  map[string]Descriptor
	order   []string
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewRegistry validates and registers descriptors. Duplicate names, unknown
// kinds and schemas that do not resolve are rejected.
func NewRegistry(logger *zap.Logger, m *metrics.Collector, descriptors ...Descriptor) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		byName:  make(map[string]Descriptor, len(descriptors)),
		metrics: m,
		logger:  logger.With(zap.String("component", "tools")),
	}
	for _, d := range descriptors {
		if d.Name == "" {
			return nil, domain.Invalid("register tool", "tool name is empty")
		}
		if _, exists := r.byName[d.Name]; exists {
			return nil, domain.Invalid("register tool", "tool %s already registered", d.Name)
		}
		switch d.Kind {
		case KindRetrieve, KindComputeRatio, KindFetchPrice:
		default:
			return nil, domain.Invalid("register tool", "tool %s has unknown kind %s", d.Name, d.Kind)
		}
		if d.invoke == nil || d.Schema == nil {
			return nil, domain.Invalid("register tool", "tool %s is incomplete", d.Name)
		}
		resolved, err := d.Schema.Resolve(nil)
		if err != nil {
			return nil, domain.Invalid("register tool", "tool %s schema: %v", d.Name, err)
		}
		d.resolved = resolved
		r.byName[d.Name] = d
		r.order = append(r.order, d.Name)
		r.logger.Info("tool registered", zap.String("name", d.Name), zap.Stringer("kind", d.Kind))
	}
	return r, nil
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Descriptors returns the tools in registration order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Names returns the tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Invoke parses input as a JSON object, validates it against the tool's
// schema and runs the tool. Rejected calls are not invoked.
func (r *Registry) Invoke(ctx context.Context, name, input string) Result {
	d, ok := r.Lookup(name)
	if !ok {
		r.metrics.RecordTool(name, "unknown_tool")
		r.logger.Warn("unknown tool requested", zap.String("tool", name))
		return Result{Observation: fmt.Sprintf("Invalid input: there is no tool named %q. Available tools: %s.", name, strings.Join(r.order, ", "))}
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(input)), &args); err != nil || args == nil {
		r.metrics.RecordTool(name, "invalid_input")
		r.logger.Warn("tool input is not a JSON object", zap.String("tool", name), zap.String("input", input))
		return Result{Observation: fmt.Sprintf("Invalid input for %s: Action Input must be a JSON object with the fields %s, matching %s.",
			name, strings.Join(d.Parameters(), ", "), d.SchemaJSON())}
	}
	if err := d.resolved.Validate(args); err != nil {
		r.metrics.RecordTool(name, "invalid_input")
		r.logger.Warn("tool input failed validation", zap.String("tool", name), zap.Error(err))
		return Result{Observation: fmt.Sprintf("Invalid input for %s: %v. Expected a JSON object with the fields %s, matching %s.",
			name, err, strings.Join(d.Parameters(), ", "), d.SchemaJSON())}
	}

	ctx, span := otel.Tracer("tools").Start(ctx, "tool."+name)
	defer span.End()
	span.SetAttributes(attribute.String("tool.kind", d.Kind.String()))

	r.logger.Info("invoking tool", zap.String("tool", name))
	obs := d.invoke(ctx, args)
	r.metrics.RecordTool(name, "ok")
	return Result{Observation: obs, Valid: true}
}
