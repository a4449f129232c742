package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/pixelgraph/internal/ctxlog"
	"github.com/vk/pixelgraph/internal/value"
)

// Validate performs a strict sanity check across every registered
// definition: port and parameter declarations must be internally
// consistent before the engine trusts them. All problems are collected
// and reported together.
func (r *Registry) Validate(ctx context.Context) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for _, typeID := range r.Types() {
		def := r.defs[typeID]

		if def.Run == nil {
			errs = append(errs, fmt.Sprintf("node '%s': no execute function registered", typeID))
		}
		if def.HasLocalTransform && def.LocalTransform == nil {
			errs = append(errs, fmt.Sprintf("node '%s': declares a local transform but provides no LocalTransform hook", typeID))
		}

		seen := make(map[string]bool)
		for _, p := range def.Inputs {
			if p.ID == "" {
				errs = append(errs, fmt.Sprintf("node '%s': input port with empty id", typeID))
				continue
			}
			if seen["in:"+p.ID] {
				errs = append(errs, fmt.Sprintf("node '%s': duplicate input port '%s'", typeID, p.ID))
			}
			seen["in:"+p.ID] = true
			if !p.Default.IsZero() && p.Type != value.TypeAny && p.Default.Kind() != value.KindOf(p.Type) {
				errs = append(errs, fmt.Sprintf("node '%s', input '%s': default is %s but port is declared %s",
					typeID, p.ID, p.Default.Kind(), p.Type))
			}
		}
		for _, p := range def.Outputs {
			if p.ID == "" {
				errs = append(errs, fmt.Sprintf("node '%s': output port with empty id", typeID))
				continue
			}
			if seen["out:"+p.ID] {
				errs = append(errs, fmt.Sprintf("node '%s': duplicate output port '%s'", typeID, p.ID))
			}
			seen["out:"+p.ID] = true
		}

		for _, p := range def.Params {
			if p.ID == "" {
				errs = append(errs, fmt.Sprintf("node '%s': parameter with empty id", typeID))
			}
			if p.Type == value.TypeAny {
				logger.Warn("Parameter declared with type 'any' disables constraint checking.", "node", typeID, "param", p.ID)
			}
			if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
				errs = append(errs, fmt.Sprintf("node '%s', parameter '%s': min %g exceeds max %g", typeID, p.ID, *p.Min, *p.Max))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}
