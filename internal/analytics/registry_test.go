package analytics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgentToolkit/agent-mentor/internal/adapters/memory"
	"github.com/AgentToolkit/agent-mentor/internal/core/ports"
)

// stubPlugin is a configurable test plugin.
type stubPlugin struct {
	input  IOSpec
	output IOSpec
	run    func(input map[string]any) (map[string]any, error)
}

func (p *stubPlugin) InputSpec() IOSpec  { return p.input }
func (p *stubPlugin) OutputSpec() IOSpec { return p.output }

func (p *stubPlugin) Execute(_ context.Context, analyticsID string, _ ports.DataManager, input map[string]any, _ map[string]any) (*ExecutionResult, error) {
	if p.run == nil {
		result := NewExecutionResult(analyticsID, StatusSuccess)
		result.OutputResult = map[string]any{"ok": true}
		return result, nil
	}
	output, err := p.run(input)
	if err != nil {
		return nil, err
	}
	result := NewExecutionResult(analyticsID, StatusSuccess)
	result.OutputResult = output
	return result, nil
}

func specOf(fields ...FieldSpec) IOSpec { return IOSpec{Fields: fields} }

func metadataFor(id string, dependsOn, triggers []string) *Metadata {
	m := NewMetadata(id, id, "1.0.0", "tests")
	m.Template = TemplateConfig{
		Runtime: RuntimeConfig{
			Type:   RuntimeGo,
			Config: map[string]string{RuntimeConfigKeyPlugin: id},
		},
		Controller: ControllerConfig{DependsOn: dependsOn, Triggers: triggers},
	}
	return m
}

func newTestRegistry(t *testing.T, plugins map[string]*stubPlugin) *Registry {
	t.Helper()
	catalog := NewCatalog()
	for name, plugin := range plugins {
		p := plugin
		require.NoError(t, catalog.Register(name, func() Plugin { return p }))
	}
	return NewRegistry(memory.NewStore(), catalog)
}

func TestRegistry_RegisterAndInferSpecs(t *testing.T) {
	registry := newTestRegistry(t, map[string]*stubPlugin{
		"p1": {
			input:  specOf(FieldSpec{Name: "trace_id", Type: FieldString, Required: true, Description: "trace"}),
			output: specOf(FieldSpec{Name: "x", Type: FieldInteger, Required: true, Description: "count"}),
		},
	})
	ctx := context.Background()

	id, err := registry.Register(ctx, metadataFor("p1", nil, nil))
	require.NoError(t, err)
	assert.Equal(t, "p1", id)

	// Specs were inferred from the implementation.
	stored, err := registry.Get(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.Template.InputSpec)
	assert.Equal(t, "trace_id", stored.Template.InputSpec.Fields[0].Name)

	// Duplicate ids are rejected.
	_, err = registry.Register(ctx, metadataFor("p1", nil, nil))
	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestRegistry_UnknownRuntimePlugin(t *testing.T) {
	registry := newTestRegistry(t, nil)
	_, err := registry.Register(context.Background(), metadataFor("ghost", nil, nil))
	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestRegistry_ConfigDefaultsTypeChecked(t *testing.T) {
	registry := newTestRegistry(t, map[string]*stubPlugin{
		"p1": {
			input:  specOf(FieldSpec{Name: "threshold", Type: FieldFloat, Required: false, Description: "bound"}),
			output: specOf(FieldSpec{Name: "ok", Type: FieldBoolean, Required: true, Description: "flag"}),
		},
	})
	metadata := metadataFor("p1", nil, nil)
	metadata.Template.Config = map[string]any{"threshold": "not a number"}

	_, err := registry.Register(context.Background(), metadata)
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Message, "threshold")
}

func TestRegistry_DependencyFieldValidation(t *testing.T) {
	registry := newTestRegistry(t, map[string]*stubPlugin{
		"producer": {
			input:  specOf(FieldSpec{Name: "trace_id", Type: FieldString, Required: false, Description: "trace"}),
			output: specOf(FieldSpec{Name: "x", Type: FieldInteger, Required: true, Description: "count"}),
		},
		"consumer": {
			input:  specOf(FieldSpec{Name: "x", Type: FieldInteger, Required: true, Description: "count"}),
			output: specOf(FieldSpec{Name: "done", Type: FieldBoolean, Required: true, Description: "flag"}),
		},
		"needs_missing": {
			input:  specOf(FieldSpec{Name: "y", Type: FieldString, Required: true, Description: "absent everywhere"}),
			output: specOf(FieldSpec{Name: "done", Type: FieldBoolean, Required: true, Description: "flag"}),
		},
	})
	ctx := context.Background()

	_, err := registry.Register(ctx, metadataFor("producer", nil, nil))
	require.NoError(t, err)

	// The consumer's required input is produced by its dependency.
	_, err = registry.Register(ctx, metadataFor("consumer", []string{"producer"}, nil))
	require.NoError(t, err)

	// A required field nobody produces fails strict dependsOn validation.
	_, err = registry.Register(ctx, metadataFor("needs_missing", []string{"producer"}, nil))
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Message, "y")

	// Unknown dependencies are rejected outright.
	_, err = registry.Register(ctx, metadataFor("needs_missing", []string{"ghost"}, nil))
	assert.ErrorAs(t, err, &validationErr)
}

func TestRegistry_TriggerValidationPolicy(t *testing.T) {
	registry := newTestRegistry(t, map[string]*stubPlugin{
		"triggered_free": {
			input:  specOf(FieldSpec{Name: "x", Type: FieldInteger, Required: true, Description: "count"}),
			output: specOf(FieldSpec{Name: "done", Type: FieldBoolean, Required: true, Description: "flag"}),
		},
		"producer": {
			input:  specOf(FieldSpec{Name: "trace_id", Type: FieldString, Required: false, Description: "trace"}),
			output: specOf(FieldSpec{Name: "x", Type: FieldInteger, Required: true, Description: "count"}),
		},
		"poor_producer": {
			input:  specOf(FieldSpec{Name: "trace_id", Type: FieldString, Required: false, Description: "trace"}),
			output: specOf(FieldSpec{Name: "unrelated", Type: FieldString, Required: true, Description: "noise"}),
		},
	})
	ctx := context.Background()

	_, err := registry.Register(ctx, metadataFor("triggered_free", nil, nil))
	require.NoError(t, err)

	// The triggered plugin has no dependsOn, so the trigger source must
	// satisfy its required inputs.
	_, err = registry.Register(ctx, metadataFor("producer", nil, []string{"triggered_free"}))
	require.NoError(t, err)

	_, err = registry.Register(ctx, metadataFor("poor_producer", nil, []string{"triggered_free"}))
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Message, "triggered_free")
}

func TestRegistry_DeleteRefusedWithDependents(t *testing.T) {
	registry := newTestRegistry(t, map[string]*stubPlugin{
		"producer": {
			input:  specOf(FieldSpec{Name: "trace_id", Type: FieldString, Required: false, Description: "trace"}),
			output: specOf(FieldSpec{Name: "x", Type: FieldInteger, Required: true, Description: "count"}),
		},
		"consumer": {
			input:  specOf(FieldSpec{Name: "x", Type: FieldInteger, Required: true, Description: "count"}),
			output: specOf(FieldSpec{Name: "done", Type: FieldBoolean, Required: true, Description: "flag"}),
		},
	})
	ctx := context.Background()

	_, err := registry.Register(ctx, metadataFor("producer", nil, nil))
	require.NoError(t, err)
	_, err = registry.Register(ctx, metadataFor("consumer", []string{"producer"}, nil))
	require.NoError(t, err)

	var validationErr *ValidationError
	err = registry.Delete(ctx, "producer")
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Message, "consumer")

	// Deleting the leaf first unblocks the producer.
	require.NoError(t, registry.Delete(ctx, "consumer"))
	require.NoError(t, registry.Delete(ctx, "producer"))
}

func TestRegistry_UpdateReValidatesDependents(t *testing.T) {
	registry := newTestRegistry(t, map[string]*stubPlugin{
		"producer": {
			input:  specOf(FieldSpec{Name: "trace_id", Type: FieldString, Required: false, Description: "trace"}),
			output: specOf(FieldSpec{Name: "x", Type: FieldInteger, Required: true, Description: "count"}),
		},
		"consumer": {
			input:  specOf(FieldSpec{Name: "x", Type: FieldInteger, Required: true, Description: "count"}),
			output: specOf(FieldSpec{Name: "done", Type: FieldBoolean, Required: true, Description: "flag"}),
		},
	})
	ctx := context.Background()

	_, err := registry.Register(ctx, metadataFor("producer", nil, nil))
	require.NoError(t, err)
	_, err = registry.Register(ctx, metadataFor("consumer", []string{"producer"}, nil))
	require.NoError(t, err)

	// An update that stops producing x breaks the consumer.
	update := metadataFor("producer", nil, nil)
	update.Template.InputSpec = &IOSpec{Fields: []FieldSpec{
		{Name: "trace_id", Type: FieldString, Required: false, Description: "trace"},
	}}
	update.Template.OutputSpec = &IOSpec{Fields: []FieldSpec{
		{Name: "renamed", Type: FieldInteger, Required: true, Description: "count"},
	}}

	var validationErr *ValidationError
	err = registry.Update(ctx, "producer", update)
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Message, "consumer")
}

func TestFieldSpecValidation(t *testing.T) {
	// Arrays must declare their element type.
	err := (FieldSpec{Name: "items", Type: FieldArray, Description: "items"}).Validate()
	assert.Error(t, err)

	// Defaults must match the declared type.
	err = (FieldSpec{Name: "n", Type: FieldInteger, Description: "n", Default: "three"}).Validate()
	assert.Error(t, err)

	elem := FieldString
	err = (FieldSpec{Name: "items", Type: FieldArray, ArrayType: &elem, Description: "items",
		Default: []any{"a", "b"}}).Validate()
	assert.NoError(t, err)

	// Duplicate names in a spec are rejected.
	err = specOf(
		FieldSpec{Name: "x", Type: FieldString, Description: "x"},
		FieldSpec{Name: "x", Type: FieldString, Description: "x again"},
	).Validate()
	assert.Error(t, err)
}
