package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/billowhq/billow/pkg/llm"
	"github.com/billowhq/billow/pkg/store"
)

// Handler is the function signature for tool execution. Handlers are fully
// responsible for their own validation beyond the schema and for scoping
// every query to the supplied org.
type Handler func(ctx context.Context, st *store.Store, orgID string, args map[string]any) (any, error)

// Definition describes a callable tool
type Definition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// Parameters is a JSON-schema object describing the tool arguments
	Parameters map[string]any `json:"parameters"`
	// Destructive marks tools that mutate state in a way requiring human
	// sign-off before execution
	Destructive bool `json:"destructive"`
	// RequiredPermission is enforced at agent-configuration time, not per call
	RequiredPermission string  `json:"required_permission,omitempty"`
	Handler            Handler `json:"-"`
}

// Registry is the static catalog of callable tools. It is constructed once at
// process start and passed by reference into the orchestrator and resolver.
type Registry struct {
	tools   map[string]*Definition
	schemas map[string]*gojsonschema.Schema
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]*Definition),
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// Register adds a tool to the registry
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}
	if def.Parameters == nil {
		def.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.Parameters))
	if err != nil {
		return fmt.Errorf("invalid parameter schema for %s: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool already registered: %s", def.Name)
	}

	r.tools[def.Name] = &def
	r.schemas[def.Name] = schema

	log.Info().Str("tool", def.Name).Bool("destructive", def.Destructive).Msg("Tool registered")
	return nil
}

// ForAgent returns the tools an agent is configured to use. Unknown keys are
// silently dropped; agent configuration is the sole permission boundary.
func (r *Registry) ForAgent(toolKeys []string) []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*Definition, 0, len(toolKeys))
	for _, key := range toolKeys {
		if def, ok := r.tools[key]; ok {
			defs = append(defs, def)
		}
	}
	return defs
}

// ProviderSchemas projects tool definitions into the shape handed to the LLM
// provider, stripping handler, destructive, and permission metadata.
func (r *Registry) ProviderSchemas(defs []*Definition) []llm.ToolSchema {
	schemas := make([]llm.ToolSchema, 0, len(defs))
	for _, def := range defs {
		schemas = append(schemas, llm.ToolSchema{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.Parameters,
		})
	}
	return schemas
}

// ByName returns a tool definition by name
func (r *Registry) ByName(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.tools[name]
	return def, ok
}

// Names returns all registered tool names
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Execute resolves and invokes a tool handler. Unknown tools are an error;
// argument validation failures and handler errors pass through to the caller.
func (r *Registry) Execute(ctx context.Context, st *store.Store, orgID, name string, args map[string]any) (any, error) {
	r.mu.RLock()
	def := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()

	if def == nil {
		return nil, fmt.Errorf("tool not found: %s", name)
	}

	if args == nil {
		args = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return nil, fmt.Errorf("failed to validate arguments: %w", err)
	}
	if !result.Valid() {
		errs := []string{}
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return nil, fmt.Errorf("invalid arguments for %s: %v", name, errs)
	}

	log.Debug().Str("tool", name).Str("org_id", orgID).Msg("Executing tool")
	return def.Handler(ctx, st, orgID, args)
}
