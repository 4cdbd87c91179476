package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	luabridge "github.com/wippyai/lua-bridge"
	"github.com/wippyai/lua-bridge/transcoder"
)

// Config preloads script globals from a YAML file.
type Config struct {
	// Globals are encoded through the transcoder and bound as script
	// globals before the script runs.
	Globals map[string]any `yaml:"globals"`

	// ArrayMetatable controls whether encoded sequences carry the array
	// metatable. Defaults to true.
	ArrayMetatable *bool `yaml:"array_metatable"`

	// NullGlobal binds the absence sentinel to this global name when set.
	NullGlobal string `yaml:"null_global"`
}

func main() {
	var (
		scriptFile  = flag.String("script", "", "Path to Lua script file")
		expr        = flag.String("e", "", "Lua expression to evaluate")
		configFile  = flag.String("config", "", "YAML config preloading script globals")
		interactive = flag.Bool("i", false, "Interactive REPL")
		verbose     = flag.Bool("v", false, "Verbose bridge logging to stderr")
	)
	flag.Parse()

	if *scriptFile == "" && *expr == "" && !*interactive {
		fmt.Fprintln(os.Stderr, "Usage: run -script <file.lua> [-config file.yaml]")
		fmt.Fprintln(os.Stderr, "       run -e '<expression>'")
		fmt.Fprintln(os.Stderr, "       run -i  (interactive mode)")
		os.Exit(1)
	}

	if *verbose {
		log, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = log.Sync() }()
		luabridge.SetLogger(log)
	}

	rt := luabridge.New()
	defer rt.Close()

	if err := registerDemoTypes(rt); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *configFile != "" {
		if err := applyConfig(rt, *configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(rt); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(rt, *scriptFile, *expr); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func run(rt *luabridge.Runtime, scriptFile, expr string) error {
	L := rt.State()

	var fn *lua.LFunction
	var err error
	if scriptFile != "" {
		fn, err = L.LoadFile(scriptFile)
	} else {
		// Expressions first, so `run -e '1 + 2'` prints 3; statements as
		// the fallback.
		fn, err = L.LoadString("return " + expr)
		if err != nil {
			fn, err = L.LoadString(expr)
		}
	}
	if err != nil {
		return err
	}

	base := L.GetTop()
	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		L.SetTop(base)
		return err
	}

	for i := base + 1; i <= L.GetTop(); i++ {
		color.Green("%s", renderValue(rt, L.Get(i)))
	}
	L.SetTop(base)
	return nil
}

func applyConfig(rt *luabridge.Runtime, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	opts := transcoder.DefaultEncodeOptions()
	if cfg.ArrayMetatable != nil {
		opts.SetArrayMetatable = *cfg.ArrayMetatable
	}
	for name, v := range cfg.Globals {
		lv, err := rt.ToValueWith(v, opts)
		if err != nil {
			return fmt.Errorf("encode global %q: %w", name, err)
		}
		rt.State().SetGlobal(name, lv)
	}
	if cfg.NullGlobal != "" {
		rt.State().SetGlobal(cfg.NullGlobal, rt.Null())
	}
	return nil
}

// renderValue turns an engine value into display text, falling back to the
// engine's own tostring for values with no host shape.
func renderValue(rt *luabridge.Runtime, lv lua.LValue) string {
	v, err := rt.FromValueAny(lv)
	if err != nil {
		return lv.String()
	}
	return formatAny(v)
}

func formatAny(v any) string {
	switch tv := v.(type) {
	case nil:
		return "nil"
	case string:
		return fmt.Sprintf("%q", tv)
	case []byte:
		return fmt.Sprintf("%q", tv)
	case []any:
		parts := make([]string, len(tv))
		for i, e := range tv {
			parts[i] = formatAny(e)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case map[string]any:
		keys := make([]string, 0, len(tv))
		for k := range tv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + " = " + formatAny(tv[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case lua.LValue:
		return tv.String()
	default:
		return fmt.Sprintf("%v", tv)
	}
}

// counter is the demo type the runner ships with so handles can be tried
// without writing an embedder.
type counter struct {
	N int
}

// stopwatch demonstrates field getters over live state.
type stopwatch struct {
	start time.Time
}

func registerDemoTypes(rt *luabridge.Runtime) error {
	err := luabridge.NewRegistry[counter]("counter").
		AddField("kind", "demo counter").
		AddFieldGet("value", func(c *counter) int { return c.N }).
		AddMethodMut("add", func(c *counter, n int) int { c.N += n; return c.N }).
		AddMethodMut("reset", func(c *counter) { c.N = 0 }).
		AddMetaMethod(luabridge.MetaToString, func(c *counter) string {
			return fmt.Sprintf("counter(%d)", c.N)
		}).
		Register(rt)
	if err != nil {
		return err
	}

	err = luabridge.NewRegistry[stopwatch]("stopwatch").
		AddFieldGet("elapsed", func(s *stopwatch) float64 {
			return time.Since(s.start).Seconds()
		}).
		AddMethodMut("restart", func(s *stopwatch) { s.start = time.Now() }).
		Register(rt)
	if err != nil {
		return err
	}

	L := rt.State()
	L.SetGlobal("new_counter", L.NewFunction(func(L *lua.LState) int {
		h, err := luabridge.NewObject(rt, counter{N: L.OptInt(1, 0)})
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		L.Push(h.LuaValue())
		return 1
	}))
	L.SetGlobal("new_stopwatch", L.NewFunction(func(L *lua.LState) int {
		h, err := luabridge.NewObject(rt, stopwatch{start: time.Now()})
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		L.Push(h.LuaValue())
		return 1
	}))
	return nil
}
