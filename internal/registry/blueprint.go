package registry

import (
	"bytes"
	"context"
	"fmt"
	"reflect"

	json "github.com/goccy/go-json"
	"github.com/vk/actiongrid/internal/action"
	"github.com/vk/actiongrid/internal/target"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Blueprint is the type-erased view of an action kind, able to build
// actions from parameter objects read out of a workflow file.
type Blueprint interface {
	Name() string
	// ParamsType is the Go type of the kind's parameter record.
	ParamsType() reflect.Type
	NewFromValue(ctx context.Context, params cty.Value, parent *action.Action, t target.Target) (*action.Action, error)
}

// Defaulter is implemented by parameter records that fill in defaults after
// decoding.
type Defaulter interface {
	Default()
}

// Validator is implemented by parameter records that check themselves after
// decoding.
type Validator interface {
	Validate() error
}

type kindBlueprint[P any] struct {
	kind *action.Kind[P]
}

// FromKind wraps k as a Blueprint.
func FromKind[P any](k *action.Kind[P]) Blueprint {
	return &kindBlueprint[P]{kind: k}
}

func (b *kindBlueprint[P]) Name() string { return b.kind.Name() }

func (b *kindBlueprint[P]) ParamsType() reflect.Type {
	return reflect.TypeOf((*P)(nil)).Elem()
}

func (b *kindBlueprint[P]) NewFromValue(ctx context.Context, v cty.Value, parent *action.Action, t target.Target) (*action.Action, error) {
	params, err := Decode[P](v)
	if err != nil {
		return nil, fmt.Errorf("kind %s: %w", b.kind.Name(), err)
	}
	return b.kind.New(ctx, params, parent, t)
}

// Decode converts a cty object into P through its JSON form, so parameter
// records are described with ordinary json tags. Unknown attributes are
// rejected and a null value decodes as an empty object.
func Decode[P any](v cty.Value) (P, error) {
	var params P

	data := []byte("{}")
	if !v.IsNull() {
		if !v.IsWhollyKnown() {
			return params, fmt.Errorf("parameters contain unknown values")
		}
		ty := v.Type()
		if !ty.IsObjectType() && !ty.IsMapType() {
			return params, fmt.Errorf("parameters must be an object, got %s", ty.FriendlyName())
		}
		raw, err := ctyjson.SimpleJSONValue{Value: v}.MarshalJSON()
		if err != nil {
			return params, fmt.Errorf("encoding parameters: %w", err)
		}
		data = raw
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&params); err != nil {
		return params, fmt.Errorf("decoding parameters: %w", err)
	}

	if d, ok := any(&params).(Defaulter); ok {
		d.Default()
	}
	if val, ok := any(&params).(Validator); ok {
		if err := val.Validate(); err != nil {
			return params, fmt.Errorf("invalid parameters: %w", err)
		}
	}
	return params, nil
}
