package workerpool

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/dop251/goja"
)

// ScriptJob compiles source as a sandboxed JavaScript function body
// (`function run(input) { ... return output }`) and executes it inside a
// fresh goja.Runtime per invocation, giving the pool pluggable CPU jobs
// (hashing transforms, PDF layout math, drift-score kernels) without a
// native Go rebuild per job kind.
func ScriptJob(source string) (Job, error) {
	program, err := goja.Compile("job", "(function(){"+source+"\nreturn run;})()", true)
	if err != nil {
		return nil, fmt.Errorf("workerpool: compiling script: %w", err)
	}

	return func(ctx context.Context, input any) (any, error) {
		vm := goja.New()
		fnVal, err := vm.RunProgram(program)
		if err != nil {
			return nil, fmt.Errorf("workerpool: loading script: %w", err)
		}
		fn, ok := goja.AssertFunction(fnVal)
		if !ok {
			return nil, fmt.Errorf("workerpool: script does not define run(input)")
		}

		jsInput := vm.ToValue(input)
		out, err := fn(goja.Undefined(), jsInput)
		if err != nil {
			return nil, fmt.Errorf("workerpool: script execution: %w", err)
		}
		return out.Export(), nil
	}, nil
}

// HashJob is the built-in content-hash job:
// computes a SHA-256 hex digest of the input's string representation.
func HashJob(ctx context.Context, input any) (any, error) {
	s, ok := input.(string)
	if !ok {
		return nil, fmt.Errorf("workerpool: HashJob requires a string input")
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:]), nil
}
