package inference

import (
	"context"
	"fmt"

	"github.com/dop251/goja"

	"github.com/aerosuite/platform/internal/apperrors"
	"github.com/aerosuite/platform/internal/ml/registry"
)

// ScriptLoader loads model instances whose artifact is a JavaScript
// predict function carried in the version metadata under "source":
//
//	function predict(input) { ... return output }
//
// The source is compiled once at load time; each prediction runs the
// compiled program in a fresh sandboxed VM, so instances are safe to call
// concurrently.
type ScriptLoader struct{}

// Load compiles the version's script artifact into a callable Instance.
func (ScriptLoader) Load(ctx context.Context, version *registry.Version) (Instance, error) {
	source, ok := version.Metadata["source"].(string)
	if !ok || source == "" {
		return nil, apperrors.Validation("model version carries no script source").
			WithDetail("version", version.Number)
	}

	program, err := goja.Compile(version.ID, "(function(){"+source+"\nreturn predict;})()", true)
	if err != nil {
		return nil, fmt.Errorf("inference: compiling model script: %w", err)
	}
	return &scriptInstance{program: program}, nil
}

type scriptInstance struct {
	program *goja.Program
}

func (s *scriptInstance) Predict(ctx context.Context, input any) (any, error) {
	vm := goja.New()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt("cancelled")
		case <-done:
		}
	}()

	fnVal, err := vm.RunProgram(s.program)
	if err != nil {
		return nil, fmt.Errorf("inference: loading model script: %w", err)
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return nil, fmt.Errorf("inference: model script does not define predict(input)")
	}

	out, err := fn(goja.Undefined(), vm.ToValue(input))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("inference: predict: %w", err)
	}
	return out.Export(), nil
}

func (s *scriptInstance) Close() error { return nil }
