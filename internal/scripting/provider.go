package scripting

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/cory-johannsen/dicelang/internal/dice"
)

// BindingsTable is the name of the Lua global table scripts populate with the
// values and functions they expose to formula evaluation.
const BindingsTable = "bindings"

// Provider runs binding scripts in a sandboxed Lua state and converts the
// entries of the bindings table into dice variable bindings. Numeric entries
// become numbers; function entries become callables that execute inside the
// sandbox when a formula invokes them.
//
// A Provider is not safe for concurrent use; the underlying Lua state is
// single-threaded.
type Provider struct {
	state *lua.LState
}

// NewProvider creates a Provider with a fresh sandboxed state and an empty
// bindings table.
//
// Precondition: instLimit >= 0; 0 uses DefaultInstructionLimit.
// Postcondition: Returns a non-nil *Provider. The caller must call Close.
func NewProvider(instLimit int) *Provider {
	L := NewSandboxedState(instLimit)
	L.SetGlobal(BindingsTable, L.NewTable())
	return &Provider{state: L}
}

// Close releases the underlying Lua state. Bindings obtained from the
// provider must not be invoked after Close.
func (p *Provider) Close() {
	p.state.Close()
}

// LoadDir executes every .lua file in dir in lexical filename order.
//
// Precondition: dir must be a readable directory path.
// Postcondition: All scripts have run, or a non-nil error names the first
// script that failed.
func (p *Provider) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading directory %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".lua") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	for _, path := range paths {
		if err := p.state.DoFile(path); err != nil {
			return fmt.Errorf("executing script %s: %w", path, err)
		}
	}
	return nil
}

// LoadString executes a Lua chunk in the sandbox.
func (p *Provider) LoadString(chunk string) error {
	return p.state.DoString(chunk)
}

// Bindings snapshots the bindings table as dice variable bindings.
//
// Postcondition: Returns a binding for every string-keyed number or function
// entry, or a non-nil error if an entry has an unsupported type.
func (p *Provider) Bindings() (dice.Bindings, error) {
	tbl, ok := p.state.GetGlobal(BindingsTable).(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("global %q is not a table", BindingsTable)
	}
	vars := make(dice.Bindings)
	var convErr error
	tbl.ForEach(func(k, v lua.LValue) {
		if convErr != nil {
			return
		}
		name, ok := k.(lua.LString)
		if !ok {
			convErr = fmt.Errorf("bindings table has non-string key %s", k.String())
			return
		}
		switch lv := v.(type) {
		case lua.LNumber:
			vars[string(name)] = numberBinding(float64(lv))
		case *lua.LFunction:
			vars[string(name)] = p.wrapFunction(string(name), lv)
		default:
			convErr = fmt.Errorf("binding %s has unsupported Lua type %s", name, v.Type())
		}
	})
	if convErr != nil {
		return nil, convErr
	}
	return vars, nil
}

// numberBinding keeps whole-valued Lua numbers integral so traces and integer
// arithmetic behave as if the value had been written in the formula.
func numberBinding(f float64) any {
	if f == math.Trunc(f) && !math.IsInf(f, 0) {
		return int64(f)
	}
	return f
}

func (p *Provider) wrapFunction(name string, fn *lua.LFunction) dice.Function {
	return func(args ...dice.Value) (dice.Value, error) {
		largs := make([]lua.LValue, len(args))
		for i, a := range args {
			largs[i] = lua.LNumber(a.Scalar().Float())
		}
		if err := p.state.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, largs...); err != nil {
			return nil, fmt.Errorf("calling script function %s: %w", name, err)
		}
		ret := p.state.Get(-1)
		p.state.Pop(1)
		n, ok := ret.(lua.LNumber)
		if !ok {
			return nil, fmt.Errorf("script function %s returned %s, want number", name, ret.Type())
		}
		f := float64(n)
		if f == math.Trunc(f) && !math.IsInf(f, 0) {
			return dice.IntNumber(int64(f)), nil
		}
		return dice.FloatNumber(f), nil
	}
}
