// Package flatten collapses nested event maps into a single-level record.
package flatten

import (
	"context"
	"fmt"

	apperrors "github.com/jittakal/kafeventlake/internal/errors"
	"github.com/jittakal/kafeventlake/internal/errorsink"
	"github.com/jittakal/kafeventlake/pkg/event"
)

// Separator joins the path segments of a flattened key.
const Separator = "_"

type options struct {
	strict bool
}

// Option configures flattening.
type Option func(*options)

// WithCollisionCheck makes two paths that produce the same key an error
// instead of letting the later one win.
func WithCollisionCheck() Option {
	return func(o *options) { o.strict = true }
}

// Flatten collapses v into one level. Each key becomes prefix+key; map
// values recurse with that key plus Separator as the new prefix, and every
// other value is stored unchanged. Fields are visited in order, so a later
// path producing an existing key overwrites it unless WithCollisionCheck
// is given.
//
// The returned error is a *errors.PipelineError of kind FlattenError.
func Flatten(v event.Value, prefix string, opts ...Option) (event.Record, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if v.Kind() != event.KindMap {
		return nil, apperrors.New(apperrors.KindFlatten, apperrors.StageFlatten,
			fmt.Errorf("%w: got %s", apperrors.ErrNotAMap, v.Kind()))
	}

	out := make(event.Record)
	if err := flattenInto(out, v, prefix, &o); err != nil {
		return nil, apperrors.New(apperrors.KindFlatten, apperrors.StageFlatten, err)
	}
	return out, nil
}

func flattenInto(out event.Record, v event.Value, prefix string, o *options) error {
	for _, f := range v.Fields() {
		key := prefix + f.Key
		if f.Value.Kind() == event.KindMap {
			if err := flattenInto(out, f.Value, key+Separator, o); err != nil {
				return err
			}
			continue
		}
		if o.strict {
			if _, exists := out[key]; exists {
				return fmt.Errorf("%w: %q", apperrors.ErrKeyCollision, key)
			}
		}
		out[key] = f.Value
	}
	return nil
}

// Flattener flattens events and records failures to an error sink.
type Flattener struct {
	sink errorsink.Recorder
	opts []Option
}

// New creates a Flattener.
func New(sink errorsink.Recorder, opts ...Option) *Flattener {
	return &Flattener{sink: sink, opts: opts}
}

// Flatten is the package-level Flatten with failure capture. The raw value
// is attached to the error record along with whatever event identity it
// carries.
func (f *Flattener) Flatten(ctx context.Context, v event.Value, prefix string) (event.Record, error) {
	rec, err := Flatten(v, prefix, f.opts...)
	if err != nil {
		pe, _ := apperrors.AsPipeline(err)
		pe.WithEvent(event.Identity(v))
		f.sink.Record(ctx, errorsink.FromError(pe, v))
		return nil, pe
	}
	return rec, nil
}
