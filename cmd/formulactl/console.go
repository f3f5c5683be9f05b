package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/nerrad567/attribute-processor/internal/formula"
	"github.com/nerrad567/attribute-processor/internal/processor"
)

// evalTimeout bounds one console command.
const evalTimeout = 10 * time.Second

// Target is what the console evaluates against. *device.Device implements it.
type Target interface {
	Name() string
	State() (string, string)
	Attributes() []processor.AttributeInfo
	Symbols() []string
	Evaluate(ctx context.Context, source string) (formula.Value, error)
	ReadAttribute(ctx context.Context, name string) (processor.EvaluatedValue, error)
	ReadCycle(ctx context.Context) (processor.Cycle, error)
	SetInput(name string, v formula.Value) error
}

// Console is the interactive formula console.
type Console struct {
	target Target
	rl     *readline.Instance
	out    io.Writer
}

// NewConsole creates a console reading from the terminal.
func NewConsole(target Target) (*Console, error) {
	c := &Console{target: target}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          target.Name() + "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    c.completer(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	c.rl = rl
	c.out = rl.Stdout()
	return c, nil
}

func (c *Console) completer() readline.AutoCompleter {
	attrs := func(string) []string {
		var names []string
		for _, a := range c.target.Attributes() {
			names = append(names, a.Name)
		}
		return names
	}
	return readline.NewPrefixCompleter(
		readline.PcItem(":help"),
		readline.PcItem(":attrs"),
		readline.PcItem(":read", readline.PcItemDynamic(attrs)),
		readline.PcItem(":cycle"),
		readline.PcItem(":state"),
		readline.PcItem(":symbols"),
		readline.PcItem(":set"),
		readline.PcItem(":quit"),
	)
}

// Run reads lines until EOF, :quit or ctx is cancelled.
func (c *Console) Run(ctx context.Context) {
	defer c.rl.Close()

	c.printHelp()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			return
		}
		if c.Execute(ctx, line) {
			return
		}
	}
}

// Execute runs one console line and reports whether the console should exit.
// Lines starting with ':' are commands; anything else is a formula.
func (c *Console) Execute(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	if !strings.HasPrefix(input, ":") {
		c.evaluate(ctx, input)
		return false
	}

	parts := strings.Fields(input)
	cmd, args := strings.ToLower(parts[0]), parts[1:]
	switch cmd {
	case ":help", ":h":
		c.printHelp()
	case ":attrs", ":a":
		c.cmdAttrs()
	case ":read", ":r":
		c.cmdRead(ctx, args)
	case ":cycle", ":c":
		c.cmdCycle(ctx)
	case ":state", ":s":
		state, status := c.target.State()
		fmt.Fprintf(c.out, "%s (%s)\n", state, status)
	case ":symbols":
		c.cmdSymbols(args)
	case ":set":
		c.cmdSet(strings.TrimSpace(strings.TrimPrefix(input, parts[0])))
	case ":quit", ":q", ":exit":
		fmt.Fprintln(c.out, "Exiting...")
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type ':help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Formula console. Enter a formula to evaluate it, or a command:

  :attrs               List configured attributes
  :read <attribute>    Evaluate one attribute
  :cycle               Run a full read cycle and derive the state
  :state               Show the device state
  :symbols [prefix]    List names available to formulas
  :set <input> <json>  Set an input, e.g. :set raw 21
  :help                Show this help
  :quit                Exit`)
}

func (c *Console) evaluate(ctx context.Context, source string) {
	v, err := c.target.Evaluate(ctx, source)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "%s (%s)\n", v.String(), v.Kind())
}

func (c *Console) cmdAttrs() {
	attrs := c.target.Attributes()
	if len(attrs) == 0 {
		fmt.Fprintln(c.out, "No attributes configured")
		return
	}
	for _, a := range attrs {
		fmt.Fprintf(c.out, "  %-20s %-8s %-12s %s\n", a.Name, a.Type, a.Status, a.Source)
	}
}

func (c *Console) cmdRead(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: :read <attribute>")
		return
	}
	v, err := c.target.ReadAttribute(ctx, args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	printReading(c.out, v)
}

func (c *Console) cmdCycle(ctx context.Context) {
	cycle, err := c.target.ReadCycle(ctx)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	for _, v := range cycle.Values {
		printReading(c.out, v)
	}
	fmt.Fprintf(c.out, "state: %s (%s)\n", cycle.State, cycle.Status)
	for _, w := range cycle.Warnings {
		fmt.Fprintf(c.out, "warning: %s\n", w)
	}
}

func (c *Console) cmdSymbols(args []string) {
	prefix := ""
	if len(args) > 0 {
		prefix = args[0]
	}
	var shown []string
	for _, name := range c.target.Symbols() {
		if strings.HasPrefix(name, prefix) {
			shown = append(shown, name)
		}
	}
	fmt.Fprintf(c.out, "%s\n(%d names)\n", strings.Join(shown, " "), len(shown))
}

// cmdSet parses the "<name> <json value>" arguments of :set. The value may
// contain spaces.
func (c *Console) cmdSet(rest string) {
	name, raw, ok := strings.Cut(rest, " ")
	if !ok || strings.TrimSpace(raw) == "" {
		fmt.Fprintln(c.out, "Usage: :set <input> <json value>")
		return
	}

	var native any
	if err := json.Unmarshal([]byte(raw), &native); err != nil {
		fmt.Fprintf(c.out, "Invalid value: %v\n", err)
		return
	}
	v, err := formula.FromNative(native)
	if err == nil {
		err = c.target.SetInput(name, v)
	}
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, "OK")
}

func printReading(w io.Writer, v processor.EvaluatedValue) {
	line := fmt.Sprintf("%s = %v [%s]", v.Name, v.Value, v.Quality)
	if v.Stale {
		line += " stale"
	}
	if v.Error != "" {
		line += " error: " + v.Error
	}
	fmt.Fprintln(w, line)
}
