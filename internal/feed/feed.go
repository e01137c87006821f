// Package feed adapts external geometry formats into feature records.
// Sources are streaming: they hand out one record at a time so batch memory
// stays bounded by the worker pool, not the input size.
//
// Malformed records are not fatal. A source yields them with a nil geometry
// so the pipeline reports a per-feature failure in the right output slot
// and the batch keeps going.
package feed

import (
	"context"
	"fmt"
	"strconv"

	"github.com/undergis/spatialid/internal/model"
)

// Source streams feature records from an input. Next returns ok=false once
// the input is exhausted; a non-nil error is fatal to the whole batch.
type Source interface {
	Next() (model.FeatureRecord, bool, error)
	Close() error
}

// Dimension property keys recognized on input features, in meters.
const (
	propWidth  = "width"
	propHeight = "height"
	propRadius = "radius"
	propDepth  = "depth"
)

// Drain feeds every record from src into out, stopping on source error or
// cancellation. It closes out so the pipeline sees end of input.
func Drain(ctx context.Context, src Source, out chan<- model.FeatureRecord) error {
	defer close(out)
	for {
		rec, ok, err := src.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		select {
		case out <- rec:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// AttrsFromProps renders property values as strings, preserving them for
// the downstream collaborator. Keys are not filtered: dimension properties
// stay visible in the output alongside the coverage they shaped.
func AttrsFromProps(props map[string]any) map[string]string {
	if len(props) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(props))
	for k, v := range props {
		switch t := v.(type) {
		case string:
			attrs[k] = t
		case float64:
			attrs[k] = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			attrs[k] = strconv.FormatBool(t)
		case nil:
			// dropped
		default:
			attrs[k] = fmt.Sprint(t)
		}
	}
	return attrs
}

// numProp extracts a numeric property, 0 when absent or non-numeric.
func numProp(props map[string]any, key string) float64 {
	switch t := props[key].(type) {
	case float64:
		return t
	case string:
		v, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0
		}
		return v
	default:
		return 0
	}
}
