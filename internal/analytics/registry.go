package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/ports"
)

// ValidationError is a registry-level rejection: duplicate id, broken
// dependency declaration, incompatible field types, or outstanding
// dependents.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// Registry stores plugin metadata and guards the dependency graph's
// integrity at registration, update and deletion time.
type Registry struct {
	store   ports.Store
	catalog *Catalog
}

func NewRegistry(store ports.Store, catalog *Catalog) *Registry {
	return &Registry{store: store, catalog: catalog}
}

var analyticsInfo = ports.TypeInfo{Kind: domain.KindAnalytics}

// Register validates and persists new plugin metadata.
func (r *Registry) Register(ctx context.Context, metadata *Metadata) (string, error) {
	existing, err := r.Get(ctx, metadata.ID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", validationErrorf("analytics with ID %s already exists", metadata.ID)
	}

	if err := r.validate(ctx, metadata); err != nil {
		return "", err
	}

	metadata.CreatedAt = time.Now().UTC()
	metadata.UpdatedAt = metadata.CreatedAt
	return r.store.Store(ctx, metadata, analyticsInfo)
}

// Get returns the metadata for an analytics id, or nil when unknown.
func (r *Registry) Get(ctx context.Context, analyticsID string) (*Metadata, error) {
	out := &Metadata{}
	found, err := r.store.Retrieve(ctx, "id", analyticsID, analyticsInfo, out)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return out, nil
}

// List returns all registered metadata.
func (r *Registry) List(ctx context.Context) ([]*Metadata, error) {
	var all []Metadata
	if err := r.store.Search(ctx, domain.Query{}, analyticsInfo, &all); err != nil {
		return nil, err
	}
	out := make([]*Metadata, len(all))
	for i := range all {
		out[i] = &all[i]
	}
	return out, nil
}

// Update re-validates the metadata and every plugin depending on it
// against the new output spec before persisting.
func (r *Registry) Update(ctx context.Context, analyticsID string, metadata *Metadata) error {
	existing, err := r.Get(ctx, analyticsID)
	if err != nil {
		return err
	}
	if existing == nil {
		return validationErrorf("analytics with ID %s not found", analyticsID)
	}

	if err := r.validate(ctx, metadata); err != nil {
		return err
	}

	// An updated output spec must keep every dependent satisfiable.
	all, err := r.List(ctx)
	if err != nil {
		return err
	}
	for _, candidate := range all {
		if !contains(candidate.Template.Controller.DependsOn, analyticsID) {
			continue
		}
		available := fieldSetOf(metadata)
		for _, depID := range candidate.Template.Controller.DependsOn {
			if depID == analyticsID {
				continue
			}
			dep, err := r.Get(ctx, depID)
			if err != nil {
				return err
			}
			if dep != nil {
				mergeFieldSet(available, fieldSetOf(dep))
			}
		}
		if err := requiredInputsSatisfied(candidate, available); err != nil {
			return validationErrorf("update would break dependent analytics %s: %v", candidate.ID, err)
		}
	}

	metadata.UpdatedAt = time.Now().UTC()
	metadata.ElementID = existing.ElementID
	_, err = r.store.Update(ctx, "id", analyticsID, metadata, analyticsInfo)
	return err
}

// Delete refuses while any other plugin lists the id in dependsOn or
// triggers.
func (r *Registry) Delete(ctx context.Context, analyticsID string) error {
	existing, err := r.Get(ctx, analyticsID)
	if err != nil {
		return err
	}
	if existing == nil {
		return validationErrorf("analytics with ID %s not found", analyticsID)
	}

	all, err := r.List(ctx)
	if err != nil {
		return err
	}
	var dependents []string
	for _, candidate := range all {
		if candidate.ID == analyticsID {
			continue
		}
		if contains(candidate.Template.Controller.DependsOn, analyticsID) ||
			contains(candidate.Template.Controller.Triggers, analyticsID) {
			dependents = append(dependents, candidate.ID)
		}
	}
	if len(dependents) > 0 {
		return validationErrorf("cannot delete analytics %s: referenced by %v", analyticsID, dependents)
	}

	_, err = r.store.Delete(ctx, "id", analyticsID, analyticsInfo)
	return err
}

// validate runs the full registration rule set: resolvable runtime,
// inferred specs, field spec structure, config defaults, and dependency
// field availability.
func (r *Registry) validate(ctx context.Context, metadata *Metadata) error {
	metadata.Type = domain.KindAnalytics
	if metadata.ElementID == "" {
		metadata.ElementID = metadata.ID
	}
	if metadata.Template.Runtime.Type != RuntimeGo {
		return validationErrorf("unsupported runtime type %q", metadata.Template.Runtime.Type)
	}
	pluginName, err := metadata.PluginName()
	if err != nil {
		return validationErrorf("%v", err)
	}
	plugin, err := r.catalog.Resolve(pluginName)
	if err != nil {
		return validationErrorf("%v", err)
	}

	// The implementation is authoritative for io specs when metadata does
	// not declare them explicitly.
	if metadata.Template.InputSpec == nil {
		spec := plugin.InputSpec()
		metadata.Template.InputSpec = &spec
	}
	if metadata.Template.OutputSpec == nil {
		spec := plugin.OutputSpec()
		metadata.Template.OutputSpec = &spec
	}

	if err := metadata.Template.InputSpec.Validate(); err != nil {
		return validationErrorf("input spec: %v", err)
	}
	if err := metadata.Template.OutputSpec.Validate(); err != nil {
		return validationErrorf("output spec: %v", err)
	}

	// Default config values must type-check against the input spec.
	for name, value := range metadata.Template.Config {
		field, declared := metadata.Template.InputSpec.Field(name)
		if !declared {
			continue
		}
		if err := checkValueType(value, field.Type, field.ArrayType); err != nil {
			return validationErrorf("invalid template config for %s: %v", name, err)
		}
	}

	return r.validateDependencies(ctx, metadata)
}

// validateDependencies applies the dependency policy: direct dependsOn
// edges are strictly validated against the union of their fields; forward
// triggers are validated only when the triggered plugin has no dependsOn
// of its own (otherwise it builds its own environment).
func (r *Registry) validateDependencies(ctx context.Context, metadata *Metadata) error {
	pipeline := make(map[string]FieldType)
	deps := make(map[string]*Metadata)

	for _, depID := range metadata.Template.Controller.DependsOn {
		dep, err := r.Get(ctx, depID)
		if err != nil {
			return err
		}
		if dep == nil {
			return validationErrorf("dependent analytics %s not found", depID)
		}
		deps[depID] = dep
		mergeFieldSet(pipeline, fieldSetOf(dep))
	}
	if len(deps) > 0 {
		if err := requiredInputsSatisfied(metadata, pipeline); err != nil {
			return validationErrorf("analytics %s: %v", metadata.ID, err)
		}
	}

	for _, triggerID := range metadata.Template.Controller.Triggers {
		trigger, err := r.Get(ctx, triggerID)
		if err != nil {
			return err
		}
		if trigger == nil {
			return validationErrorf("triggered analytics %s not found", triggerID)
		}
		if len(trigger.Template.Controller.DependsOn) > 0 {
			continue
		}
		// The triggered plugin relies solely on us: our inputs and outputs
		// plus our own pipeline must satisfy it.
		available := make(map[string]FieldType)
		mergeFieldSet(available, pipeline)
		mergeFieldSet(available, fieldSetOf(metadata))
		if err := requiredInputsSatisfied(trigger, available); err != nil {
			return validationErrorf(
				"analytics %q triggers %q which has no dependencies, but cannot satisfy its requirements: %v",
				metadata.ID, triggerID, err)
		}
	}
	return nil
}

// fieldSetOf unions a plugin's declared input and output fields.
func fieldSetOf(m *Metadata) map[string]FieldType {
	fields := make(map[string]FieldType)
	if m.Template.InputSpec != nil {
		for _, f := range m.Template.InputSpec.Fields {
			fields[f.Name] = f.Type
		}
	}
	if m.Template.OutputSpec != nil {
		for _, f := range m.Template.OutputSpec.Fields {
			fields[f.Name] = f.Type
		}
	}
	return fields
}

func mergeFieldSet(dst, src map[string]FieldType) {
	for name, t := range src {
		dst[name] = t
	}
}

// requiredInputsSatisfied checks that every required input of the plugin
// is present in the available field set with a compatible type.
func requiredInputsSatisfied(m *Metadata, available map[string]FieldType) error {
	if m.Template.InputSpec == nil {
		return nil
	}
	for _, f := range m.Template.InputSpec.Fields {
		if !f.Required {
			continue
		}
		got, ok := available[f.Name]
		if !ok {
			return fmt.Errorf("required input field %q is not produced by the pipeline", f.Name)
		}
		if !compatible(got, f.Type) {
			return fmt.Errorf("input field %q has incompatible type: pipeline provides %s, plugin requires %s",
				f.Name, got, f.Type)
		}
	}
	return nil
}

func contains(list []string, item string) bool {
	for _, candidate := range list {
		if candidate == item {
			return true
		}
	}
	return false
}
