package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/JacisNonsense/quokka-lua/pkg/bytecode"
	"github.com/JacisNonsense/quokka-lua/pkg/vm"
)

const historyFile = ".quokka_history"

var shellCommands = []string{"help", "list", "globals", "run", "call", "dump", "quit"}

// runShell opens an interactive inspection shell on a loaded chunk: list
// its functions, run it, poke at globals and call individual functions.
func runShell(m *vm.VM, chunk *bytecode.Chunk) int {
	fmt.Printf("quokka shell — %s, %d instructions. Type 'help'.\n",
		chunk.Root.Name(), len(chunk.Root.Code))

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetCompleter(func(line string) (out []string) {
		for _, c := range shellCommands {
			if strings.HasPrefix(c, strings.ToLower(line)) {
				out = append(out, c)
			}
		}
		return
	})

	histPath := ""
	if home, err := os.UserHomeDir(); err == nil {
		histPath = filepath.Join(home, historyFile)
		if f, err := os.Open(histPath); err == nil {
			_, _ = ln.ReadHistory(f)
			_ = f.Close()
		}
	}
	defer func() {
		if histPath == "" {
			return
		}
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	for {
		line, err := ln.Prompt("quokka> ")
		if err != nil {
			fmt.Println()
			return 0
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ln.AppendHistory(line)

		fields := strings.Fields(line)
		cmd, args := strings.ToLower(fields[0]), fields[1:]
		switch cmd {
		case "quit", "exit":
			return 0
		case "help":
			printShellHelp()
		case "list":
			filter := ""
			if len(args) > 0 {
				filter = args[0]
			}
			if err := listChunk(os.Stdout, chunk, filter); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		case "globals":
			printGlobals(m)
		case "run":
			if err := runChunk(m, chunk); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		case "call":
			if len(args) == 0 {
				fmt.Fprintln(os.Stderr, "usage: call <global> [args...]")
				continue
			}
			if err := callGlobal(m, args[0], args[1:]); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		case "dump":
			if len(args) != 1 {
				fmt.Fprintln(os.Stderr, "usage: dump <file>")
				continue
			}
			if err := dumpChunk(chunk, args[0]); err != nil {
				fmt.Fprintln(os.Stderr, err)
			} else {
				fmt.Printf("wrote %s\n", args[0])
			}
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q; type 'help'\n", cmd)
		}
	}
}

func printShellHelp() {
	fmt.Print(`commands:
  list [pattern]        disassemble the chunk (optionally filtered by name)
  globals               show the global environment
  run                   execute the chunk's root function
  call <name> [args]    call a global function (numbers and strings as args)
  dump <file>           write a CBOR structural dump of the chunk
  quit                  leave the shell
`)
}

func printGlobals(m *vm.VM) {
	env := m.EnvTable()
	if len(env.Entries) == 0 {
		fmt.Println("(empty environment)")
		return
	}
	for _, e := range env.Entries {
		fmt.Printf("  %s = %s\n", e.Key.Inspect(), e.Value.Inspect())
	}
}

// callGlobal invokes a global by name with literal arguments: integers,
// floats, true/false/nil, anything else as a string.
func callGlobal(m *vm.VM, name string, args []string) error {
	m.PushGlobal(vm.Str(name))
	for _, a := range args {
		m.Push(parseArg(a))
	}
	if err := m.Call(len(args), vm.MultRet); err != nil {
		return err
	}
	n := m.Top()
	results := make([]vm.Value, n)
	for i := n - 1; i >= 0; i-- {
		results[i] = m.Pop()
	}
	for _, v := range results {
		fmt.Println(v.Inspect())
		m.Release(v)
	}
	return nil
}

func parseArg(s string) vm.Value {
	switch s {
	case "nil":
		return vm.Nil()
	case "true":
		return vm.Bool(true)
	case "false":
		return vm.Bool(false)
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return vm.Int(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return vm.Float(f)
	}
	return vm.Str(s)
}
