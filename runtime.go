package webwindow

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"modernc.org/quickjs"
)

// Runtime selects how .js/.ts files under a window's root folder are
// executed when served: not at all (served as source), through an external
// Deno or Node.js process, or in an embedded QuickJS VM.
type Runtime int

const (
	RuntimeNone Runtime = iota
	RuntimeDeno
	RuntimeNode
	RuntimeEmbedded
)

func (rt Runtime) String() string {
	switch rt {
	case RuntimeNone:
		return "none"
	case RuntimeDeno:
		return "deno"
	case RuntimeNode:
		return "node"
	case RuntimeEmbedded:
		return "embedded"
	default:
		return "unknown"
	}
}

// scriptFileTimeout bounds a single script-file execution.
const scriptFileTimeout = 30 * time.Second

// runScriptFile executes a script file and returns its output, which is
// served as the HTTP response body.
func runScriptFile(rt Runtime, path string) ([]byte, error) {
	switch rt {
	case RuntimeDeno:
		return runExternal("deno", "run", "--quiet", "--allow-all", path)
	case RuntimeNode:
		return runExternal("node", path)
	case RuntimeEmbedded:
		return runEmbedded(path)
	default:
		return os.ReadFile(path)
	}
}

func runExternal(name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), scriptFileTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("running %s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// consoleShimJS routes console output and print() into the Go-backed
// __emit collector.
const consoleShimJS = `
(function() {
	function emit() {
		__emit(Array.prototype.slice.call(arguments).map(String).join(' '));
	}
	globalThis.console = { log: emit, info: emit, warn: emit, error: emit, debug: emit };
	globalThis.print = emit;
})();
`

// runEmbedded evaluates the file in a fresh QuickJS VM. Output is whatever
// the script printed; a non-undefined final value is appended.
func runEmbedded(path string) ([]byte, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, fmt.Errorf("creating VM: %w", err)
	}
	defer vm.Close()

	var out bytes.Buffer
	if err := vm.RegisterFunc("__emit", func(s string) (string, error) {
		out.WriteString(s)
		out.WriteByte('\n')
		return "", nil
	}, false); err != nil {
		return nil, fmt.Errorf("registering emit: %w", err)
	}
	if err := evalDiscard(vm, consoleShimJS); err != nil {
		return nil, fmt.Errorf("installing console shim: %w", err)
	}

	r, err := vm.Eval(string(source), quickjs.EvalGlobal)
	if err != nil {
		return nil, fmt.Errorf("evaluating %s: %w", path, err)
	}
	if r != nil {
		fmt.Fprint(&out, r)
	}
	return out.Bytes(), nil
}

// evalDiscard evaluates JavaScript and discards the result (frees the Value).
func evalDiscard(vm *quickjs.VM, js string) error {
	v, err := vm.EvalValue(js, quickjs.EvalGlobal)
	if err != nil {
		return err
	}
	v.Free()
	return nil
}

// runtimeContentType guesses the response type of interpreted script
// output: markup is served as HTML, anything else as plain text.
func runtimeContentType(out []byte) string {
	if bytes.HasPrefix(bytes.TrimSpace(out), []byte("<")) {
		return "text/html; charset=utf-8"
	}
	return "text/plain; charset=utf-8"
}
