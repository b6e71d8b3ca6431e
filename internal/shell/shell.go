// Package shell is an interactive prompt for typing raw integration
// commands at a connected bridge.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"caseta/internal/bridge"
)

// Prompt mirrors the bridge's own prompt.
const Prompt = bridge.PromptMarker + " "

// Sender sends one command line and returns what came back.
// *bridge.Session satisfies it.
type Sender interface {
	Send(ctx context.Context, command string) (bridge.Result, error)
}

// LineReader yields one line of input per call.  *readline.Instance
// satisfies it.
type LineReader interface {
	Readline() (string, error)
}

// NewReadline returns a line editor on stdin/stdout with the bridge
// prompt.  The caller closes it.
func NewReadline(stdin io.ReadCloser, stdout io.Writer) (*readline.Instance, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          Prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdin:           stdin,
		Stdout:          stdout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return rl, nil
}

// Run reads commands from in until exit, EOF or ctx is done.  Lines
// starting with # or ? go to the bridge unchanged; a few local
// shorthands are translated first.  A transport failure ends the
// shell, since the session cannot be used afterwards.
func Run(ctx context.Context, sess Sender, in LineReader, out io.Writer) error {
	printHelp(out)

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := in.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			return nil
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		command, done, err := translate(input)
		if done {
			return nil
		}
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		if command == "" {
			printHelp(out)
			continue
		}

		res, err := sess.Send(ctx, command)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			return err
		}
		printResult(out, res)
	}
}

// translate maps one input line to the command sent on the wire.  An
// empty command with no error means "show help".
func translate(input string) (command string, done bool, err error) {
	if input[0] == '#' || input[0] == '?' {
		return input, false, nil
	}

	parts := strings.Fields(input)
	args := parts[1:]
	switch strings.ToLower(parts[0]) {
	case "quit", "exit", "q":
		return "", true, nil

	case "help", "h":
		return "", false, nil

	case "set", "s":
		if len(args) != 2 {
			return "", false, fmt.Errorf("usage: set <zone> <level>")
		}
		zone, err := zoneArg(args[0])
		if err != nil {
			return "", false, err
		}
		level, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return "", false, fmt.Errorf("invalid level %q", args[1])
		}
		return bridge.FormatOutputCommand(zone, level), false, nil

	case "on", "off":
		if len(args) != 1 {
			return "", false, fmt.Errorf("usage: %s <zone>", parts[0])
		}
		zone, err := zoneArg(args[0])
		if err != nil {
			return "", false, err
		}
		level := bridge.MaxLevel
		if strings.EqualFold(parts[0], "off") {
			level = bridge.MinLevel
		}
		return bridge.FormatOutputCommand(zone, level), false, nil

	case "get", "g":
		if len(args) != 1 {
			return "", false, fmt.Errorf("usage: get <zone>")
		}
		zone, err := zoneArg(args[0])
		if err != nil {
			return "", false, err
		}
		return fmt.Sprintf("%s,%d,%d", bridge.QueryOutput, zone, bridge.OutputActionSetLevel), false, nil

	default:
		return "", false, fmt.Errorf("unknown command: %s (type 'help' for commands)", parts[0])
	}
}

func zoneArg(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid zone %q", s)
	}
	return id, nil
}

func printResult(out io.Writer, res bridge.Result) {
	if res.Response != "" {
		fmt.Fprintln(out, res.Response)
	}
	if !res.PromptSeen {
		fmt.Fprintln(out, "(no prompt before timeout)")
	}
}

func printHelp(out io.Writer) {
	fmt.Fprint(out, `Integration shell commands:
  #... / ?...          - Send a raw integration command
  set <zone> <level>   - Set a zone level (0-100)
  on <zone>            - Set a zone to 100
  off <zone>           - Set a zone to 0
  get <zone>           - Read a zone level
  help                 - Show this help
  exit                 - Leave the shell
`)
}
