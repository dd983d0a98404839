package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dlclark/regexp2"
	"github.com/tliron/commonlog"

	"github.com/JacisNonsense/quokka-lua/pkg/bytecode"
	"github.com/JacisNonsense/quokka-lua/pkg/config"
	"github.com/JacisNonsense/quokka-lua/pkg/stdlib"
	"github.com/JacisNonsense/quokka-lua/pkg/vm"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	listFlag := flag.Bool("list", false, "Disassemble the chunk instead of running it")
	filterFlag := flag.String("filter", "", "With -list: only list functions whose name matches this pattern")
	dumpFlag := flag.String("dump", "", "Write a CBOR structural dump of the chunk to the given file and exit")
	shellFlag := flag.Bool("i", false, "Open an interactive inspection shell on the chunk")
	verbosityFlag := flag.Int("verbosity", -1, "Log verbosity, overrides quokka.toml")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: quokka [options] <chunk.luac>\n")
		flag.PrintDefaults()
		os.Exit(64)
	}
	path := flag.Arg(0)

	cfg, err := config.FindAndLoad(filepath.Dir(path))
	if err != nil {
		fmt.Fprintf(os.Stderr, "quokka: %v\n", err)
		os.Exit(78)
	}
	verbosity := cfg.Log.Verbosity
	if *verbosityFlag >= 0 {
		verbosity = *verbosityFlag
	}
	commonlog.Configure(verbosity, nil)

	chunk, err := loadChunk(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quokka: %v\n", err)
		os.Exit(65)
	}

	if *dumpFlag != "" {
		if err := dumpChunk(chunk, *dumpFlag); err != nil {
			fmt.Fprintf(os.Stderr, "quokka: %v\n", err)
			os.Exit(74)
		}
		return
	}

	if *listFlag {
		if err := listChunk(os.Stdout, chunk, *filterFlag); err != nil {
			fmt.Fprintf(os.Stderr, "quokka: %v\n", err)
			os.Exit(65)
		}
		return
	}

	m := vm.New()
	cfg.Apply(m)
	stdlib.Install(m)

	if *shellFlag {
		os.Exit(runShell(m, chunk))
	}

	if err := runChunk(m, chunk); err != nil {
		fmt.Fprintf(os.Stderr, "quokka: %v\n", err)
		os.Exit(70)
	}
}

func loadChunk(path string) (*bytecode.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return bytecode.NewReader(f).ReadChunk()
}

func dumpChunk(c *bytecode.Chunk, path string) error {
	data, err := bytecode.ExportCBOR(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// listChunk prints a disassembly listing, optionally restricted to the
// functions whose name matches the filter pattern.
func listChunk(out *os.File, c *bytecode.Chunk, filter string) error {
	if filter == "" {
		fmt.Fprint(out, c.Disassemble())
		return nil
	}
	re, err := regexp2.Compile(filter, regexp2.None)
	if err != nil {
		return fmt.Errorf("bad -filter pattern: %w", err)
	}
	c.Root.Walk(func(p *bytecode.Prototype) {
		if ok, _ := re.MatchString(p.Name()); ok {
			fmt.Fprint(out, p.Disassemble())
			fmt.Fprintln(out)
		}
	})
	return nil
}

// runChunk executes the root function and prints whatever it returns.
func runChunk(m *vm.VM, c *bytecode.Chunk) error {
	if err := m.Load(c); err != nil {
		return err
	}
	if err := m.Call(0, vm.MultRet); err != nil {
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
