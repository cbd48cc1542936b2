package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/ThomasKrenn/dukglue"
	"github.com/ThomasKrenn/dukglue/engine"
	"github.com/ThomasKrenn/dukglue/memengine"
	"github.com/ThomasKrenn/dukglue/roots"
)

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "Path to a Duktape wasm build (default: in-memory engine)")
		debugLog    = flag.Bool("debug", false, "Enable debug logging")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *debugLog {
		logger, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		engine.SetLogger(logger)
		roots.SetLogger(logger)
	}

	s, err := newSession(*wasmFile, *debugLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer s.close()

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: -i requires a terminal")
			os.Exit(1)
		}
		if err := runInteractive(s); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// plain REPL over stdin: one command per line
	fmt.Println("dukval - script value bridge inspector (type 'help')")
	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !sc.Scan() {
			break
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		out, err := s.exec(line)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		if out != "" {
			fmt.Println(out)
		}
	}
}

// session drives one engine instance and a set of named native values. Both
// the plain REPL and the TUI run commands through it.
type session struct {
	ctx    engine.Context
	mem    *memengine.Context    // nil when running against a wasm build
	wasm   *engine.WazeroContext // nil when running in-memory
	eng    *engine.WazeroEngine
	goctx  context.Context
	values map[string]*dukglue.Value
}

func newSession(wasmFile string, debugLog bool) (*session, error) {
	s := &session{
		goctx:  context.Background(),
		values: make(map[string]*dukglue.Value),
	}

	if wasmFile == "" {
		if debugLog {
			s.mem = memengine.NewWithLogger(engine.Logger())
		} else {
			s.mem = memengine.New()
		}
		s.ctx = s.mem
		return s, nil
	}

	data, err := os.ReadFile(wasmFile)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	eng, err := engine.NewWazeroEngine(s.goctx, data)
	if err != nil {
		return nil, err
	}
	wctx, err := eng.NewContext(s.goctx)
	if err != nil {
		_ = eng.Close(s.goctx)
		return nil, err
	}
	s.eng = eng
	s.wasm = wctx
	s.ctx = wctx
	return s, nil
}

func (s *session) close() {
	for _, v := range s.values {
		v.Release()
	}
	if s.wasm != nil {
		_ = s.wasm.Close()
	}
	if s.eng != nil {
		_ = s.eng.Close(s.goctx)
	}
}

const helpText = `commands:
  push <lit>      push a literal: undefined, null, true, false, a number,
                  "a string", or obj (a fresh empty object)
  pop [n]         pop the top n values (default 1)
  copy <name>     marshal the stack top into a named value, keep the entry
  take <name>     marshal the stack top into a named value, remove the entry
  dup <a> <b>     b = shared copy of a
  load <name>     push a named value back onto the stack
  drop <name>     release a named value
  eq <a> <b>      compare two named values
  setprop <k>     pop a value into property k of the object below it
  getprop <k>     read property k of the object at the top
  eval <code>     evaluate script (wasm engine only)
  stack           show the value stack
  roots           show root table stats
  vals            list named values
  gc              run a collection pass (in-memory engine only)
  help            this text`

func (s *session) exec(line string) (out string, err error) {
	// contract violations (wrong accessor, bad stack index) panic with a
	// structured error; surface them as command failures
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("%v", r)
		}
	}()

	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "help":
		return helpText, nil

	case "push":
		return "", s.pushLiteral(rest)

	case "pop":
		n := 1
		if rest != "" {
			var err error
			if n, err = strconv.Atoi(rest); err != nil {
				return "", fmt.Errorf("pop: %w", err)
			}
		}
		s.ctx.Pop(n)
		return "", nil

	case "copy", "take":
		if rest == "" {
			return "", fmt.Errorf("%s: name required", cmd)
		}
		var v *dukglue.Value
		var err error
		if cmd == "copy" {
			v, err = dukglue.CopyFromStack(s.ctx, -1, engine.MaskAny)
		} else {
			v, err = dukglue.TakeFromStack(s.ctx, -1, engine.MaskAny)
		}
		if err != nil {
			return "", err
		}
		if old, ok := s.values[rest]; ok {
			old.Release()
		}
		s.values[rest] = v
		return fmt.Sprintf("%s = %s", rest, v), nil

	case "dup":
		a, b, ok := strings.Cut(rest, " ")
		if !ok {
			return "", fmt.Errorf("dup: two names required")
		}
		src, ok := s.values[a]
		if !ok {
			return "", fmt.Errorf("no value named %q", a)
		}
		b = strings.TrimSpace(b)
		if old, ok := s.values[b]; ok {
			old.Release()
		}
		s.values[b] = src.Copy()
		return fmt.Sprintf("%s = %s", b, s.values[b]), nil

	case "load":
		v, ok := s.values[rest]
		if !ok {
			return "", fmt.Errorf("no value named %q", rest)
		}
		v.Push()
		return "", nil

	case "drop":
		v, ok := s.values[rest]
		if !ok {
			return "", fmt.Errorf("no value named %q", rest)
		}
		v.Release()
		delete(s.values, rest)
		return "", nil

	case "eq":
		a, b, ok := strings.Cut(rest, " ")
		if !ok {
			return "", fmt.Errorf("eq: two names required")
		}
		va, ok := s.values[a]
		if !ok {
			return "", fmt.Errorf("no value named %q", a)
		}
		vb, ok := s.values[strings.TrimSpace(b)]
		if !ok {
			return "", fmt.Errorf("no value named %q", strings.TrimSpace(b))
		}
		return strconv.FormatBool(va.Equal(vb)), nil

	case "setprop":
		if rest == "" {
			return "", fmt.Errorf("setprop: key required")
		}
		s.ctx.PutProp(-2, rest)
		return "", nil

	case "getprop":
		if rest == "" {
			return "", fmt.Errorf("getprop: key required")
		}
		found := s.ctx.GetProp(-1, rest)
		out := describeTop(s.ctx)
		s.ctx.Pop(1)
		if !found {
			return out + " (absent)", nil
		}
		return out, nil

	case "eval":
		if s.wasm == nil {
			return "", fmt.Errorf("eval needs a wasm engine (-wasm)")
		}
		if err := s.wasm.Eval(rest); err != nil {
			return "", err
		}
		return describeTop(s.wasm), nil

	case "stack":
		return s.describeStack(), nil

	case "roots":
		return fmt.Sprintf("table length %d, free head %d",
			roots.Len(s.ctx), roots.FreeHead(s.ctx)), nil

	case "vals":
		if len(s.values) == 0 {
			return "(none)", nil
		}
		names := make([]string, 0, len(s.values))
		for name := range s.values {
			names = append(names, name)
		}
		sort.Strings(names)
		var b strings.Builder
		for _, name := range names {
			fmt.Fprintf(&b, "%s = %s\n", name, s.values[name])
		}
		return strings.TrimSuffix(b.String(), "\n"), nil

	case "gc":
		if s.mem == nil {
			return "", fmt.Errorf("gc is only meaningful on the in-memory engine")
		}
		s.mem.Collect()
		return fmt.Sprintf("%d objects live", s.mem.Live()), nil

	default:
		return "", fmt.Errorf("unknown command %q (try 'help')", cmd)
	}
}

func (s *session) pushLiteral(lit string) error {
	switch {
	case lit == "undefined":
		s.ctx.PushUndefined()
	case lit == "null":
		s.ctx.PushNull()
	case lit == "true" || lit == "false":
		s.ctx.PushBoolean(lit == "true")
	case lit == "obj":
		if s.mem != nil {
			s.mem.PushObject()
			return nil
		}
		return s.wasm.Eval("({})")
	case strings.HasPrefix(lit, "\""):
		str, err := strconv.Unquote(lit)
		if err != nil {
			return fmt.Errorf("push: %w", err)
		}
		s.ctx.PushString([]byte(str))
	default:
		n, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return fmt.Errorf("push: unrecognized literal %q", lit)
		}
		s.ctx.PushNumber(n)
	}
	return nil
}

func (s *session) describeStack() string {
	depth := s.ctx.Depth()
	if depth == 0 {
		return "(empty)"
	}
	var b strings.Builder
	for i := depth - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "%3d: %s\n", i, describeAt(s.ctx, i))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func describeTop(c engine.Context) string {
	return describeAt(c, -1)
}

func describeAt(c engine.Context, idx int) string {
	switch t := c.TypeAt(idx); t {
	case engine.TypeBoolean:
		return fmt.Sprintf("boolean(%t)", c.Boolean(idx))
	case engine.TypeNumber:
		return fmt.Sprintf("number(%g)", c.Number(idx))
	case engine.TypeString:
		return fmt.Sprintf("string(%q)", c.StringBytes(idx))
	case engine.TypePointer:
		return fmt.Sprintf("pointer(%#x)", c.Pointer(idx))
	default:
		return t.String()
	}
}
