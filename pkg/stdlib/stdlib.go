// Package stdlib provides the small host library the quokka command
// registers before running a chunk: printing, wall-clock timing, type
// inspection and regular-expression matching. Embedders wanting a different
// surface register their own natives instead.
package stdlib

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/JacisNonsense/quokka-lua/pkg/vm"
)

// Library holds the state shared by the installed natives.
type Library struct {
	// Out receives print output. Defaults to stdout.
	Out io.Writer

	start    time.Time
	patterns map[string]*regexp2.Regexp
}

// Install registers the library's functions in the VM's global environment
// and returns the library for host-side adjustment.
func Install(m *vm.VM) *Library {
	lib := &Library{
		Out:      os.Stdout,
		start:    time.Now(),
		patterns: make(map[string]*regexp2.Regexp),
	}
	m.DefineNativeFunction("print", lib.print)
	m.DefineNativeFunction("clock", lib.clock)
	m.DefineNativeFunction("type", lib.typeOf)
	m.DefineNativeFunction("tostring", lib.tostring)
	m.DefineNativeFunction("tonumber", lib.tonumber)
	m.DefineNativeFunction("match", lib.match)
	return lib
}

func render(m *vm.VM, v vm.Value) string {
	if s, ok := v.CoerceString(); ok {
		return s
	}
	return v.Inspect()
}

func (lib *Library) print(m *vm.VM) (int, error) {
	parts := make([]string, 0, m.NumParams())
	for i := 1; i <= m.NumParams(); i++ {
		parts = append(parts, render(m, m.Argument(i)))
	}
	fmt.Fprintln(lib.Out, strings.Join(parts, "\t"))
	return 0, nil
}

func (lib *Library) clock(m *vm.VM) (int, error) {
	m.Push(vm.Float(time.Since(lib.start).Seconds()))
	return 1, nil
}

func (lib *Library) typeOf(m *vm.VM) (int, error) {
	v := m.Argument(1)
	name := v.Type().String()
	if v.IsObject() {
		if m.Object(v).IsTable() {
			name = "table"
		} else {
			name = "function"
		}
	}
	m.Push(vm.Str(name))
	return 1, nil
}

func (lib *Library) tostring(m *vm.VM) (int, error) {
	m.Push(vm.Str(render(m, m.Argument(1))))
	return 1, nil
}

func (lib *Library) tonumber(m *vm.VM) (int, error) {
	v := m.Argument(1)
	if i, ok := v.CoerceInteger(); ok {
		m.Push(vm.Int(i))
		return 1, nil
	}
	if f, ok := v.CoerceNumber(); ok {
		m.Push(vm.Float(f))
		return 1, nil
	}
	m.Push(vm.Nil())
	return 1, nil
}

// match(s, pattern) returns the first match of pattern in s, or nil.
// Compiled patterns are cached per library instance.
func (lib *Library) match(m *vm.VM) (int, error) {
	s, ok := m.Argument(1).CoerceString()
	if !ok {
		return 0, fmt.Errorf("match: expected a string subject")
	}
	pat, ok := m.Argument(2).CoerceString()
	if !ok {
		return 0, fmt.Errorf("match: expected a string pattern")
	}

	re, cached := lib.patterns[pat]
	if !cached {
		var err error
		if re, err = regexp2.Compile(pat, regexp2.None); err != nil {
			return 0, fmt.Errorf("match: bad pattern: %w", err)
		}
		lib.patterns[pat] = re
	}

	hit, err := re.FindStringMatch(s)
	if err != nil {
		return 0, fmt.Errorf("match: %w", err)
	}
	if hit == nil {
		m.Push(vm.Nil())
		return 1, nil
	}
	m.Push(vm.Str(hit.String()))
	return 1, nil
}
