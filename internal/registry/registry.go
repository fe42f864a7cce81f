// Package registry tracks acquired tools per capability.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fentz26/gapforge/internal/models"
	"go.uber.org/zap"
)

// Store persists registered tools.
type Store interface {
	SaveTool(ctx context.Context, t models.Tool) error
	ListTools(ctx context.Context) ([]models.Tool, error)
}

// Registry manages acquired tools. A nil store keeps it in memory only.
type Registry struct {
	tools  map[string]models.Tool
	store  Store
	logger *zap.Logger
	mu     sync.RWMutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates a registry backed by s.
func New(s Store, opts ...Option) *Registry {
	r := &Registry{
		tools:  make(map[string]models.Tool),
		store:  s,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load replaces the in-memory view with the persisted tools.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	tools, err := r.store.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("load tools: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = make(map[string]models.Tool, len(tools))
	for _, t := range tools {
		r.tools[t.Name] = t
	}
	r.logger.Debug("tools loaded", zap.Int("count", len(tools)))
	return nil
}

// Register adds or updates a tool.
func (r *Registry) Register(ctx context.Context, t models.Tool) error {
	if t.Name == "" || t.Capability == "" {
		return fmt.Errorf("%w: tool name and capability cannot be empty", models.ErrConfiguration)
	}
	if r.store != nil {
		if err := r.store.SaveTool(ctx, t); err != nil {
			return fmt.Errorf("%w: %v", models.ErrPersistence, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
	r.logger.Info("tool registered",
		zap.String("tool", t.Name),
		zap.String("capability", t.Capability),
		zap.String("kind", string(t.Kind)),
	)
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (models.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all tools sorted by capability then name.
func (r *Registry) List() []models.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]models.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool {
		if tools[i].Capability != tools[j].Capability {
			return tools[i].Capability < tools[j].Capability
		}
		return tools[i].Name < tools[j].Name
	})
	return tools
}

// ToolsFor returns the sorted names of tools serving capability.
func (r *Registry) ToolsFor(capability string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for _, t := range r.tools {
		if t.Capability == capability {
			names = append(names, t.Name)
		}
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
