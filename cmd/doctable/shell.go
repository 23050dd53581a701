package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/fatih/color"
	"github.com/google/shlex"
	"github.com/peterh/liner"

	"github.com/andreyvit/doctable"
	"github.com/andreyvit/doctable/docstore"
)

var errQuit = errors.New("quit")

// shell executes commands against one session. Command errors are reported
// and never end the shell.
type shell struct {
	session *doctable.Session
	store   *docstore.Store
	cfg     Config

	out    io.Writer
	errOut io.Writer
	red    *color.Color
}

func newShell(e *env, cfg Config, out, errOut io.Writer) *shell {
	return &shell{
		session: doctable.NewSession(e.store, e.engine, doctable.Options{Logger: e.logger}),
		store:   e.store,
		cfg:     cfg,
		out:     out,
		errOut:  errOut,
		red:     color.New(color.FgRed),
	}
}

// runCommands executes each command in turn and returns the exit code: 1 if
// any of them failed.
func (sh *shell) runCommands(ctx context.Context, lines []string) int {
	code := 0
	for _, line := range lines {
		err := sh.exec(ctx, line)
		if err == errQuit {
			break
		} else if err != nil {
			sh.printErr(err)
			code = 1
		}
	}
	return code
}

// repl reads commands until EOF or quit. Line editing is used only when
// reading a terminal.
func (sh *shell) repl(ctx context.Context, stdin io.Reader) error {
	if f, ok := stdin.(*os.File); ok && f == os.Stdin && liner.TerminalSupported() {
		return sh.interactive(ctx)
	}
	sc := bufio.NewScanner(stdin)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		err := sh.exec(ctx, sc.Text())
		if err == errQuit {
			return nil
		} else if err != nil {
			sh.printErr(err)
		}
	}
	return sc.Err()
}

func (sh *shell) interactive(ctx context.Context) error {
	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetCompleter(sh.complete)

	if sh.cfg.History != "" {
		if f, err := os.Open(sh.cfg.History); err == nil {
			ln.ReadHistory(f)
			f.Close()
		}
	}

	fmt.Fprintln(sh.out, "doctable shell. Type 'help' for commands.")
	for {
		line, err := ln.Prompt(sh.prompt())
		if err == liner.ErrPromptAborted {
			continue
		} else if err == io.EOF {
			fmt.Fprintln(sh.out)
			break
		} else if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		ln.AppendHistory(line)

		err = sh.exec(ctx, line)
		if err == errQuit {
			break
		} else if err != nil {
			sh.printErr(err)
		}
	}

	if sh.cfg.History != "" {
		if err := os.MkdirAll(filepath.Dir(sh.cfg.History), 0o755); err == nil {
			if f, err := os.Create(sh.cfg.History); err == nil {
				ln.WriteHistory(f)
				f.Close()
			}
		}
	}
	return nil
}

func (sh *shell) prompt() string {
	if id := sh.session.Target(); !id.IsZero() {
		return id.String() + "> "
	}
	return "doctable> "
}

// exec runs one command line. Interrupting a running command cancels its
// context only.
func (sh *shell) exec(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" || line[0] == '#' {
		return nil
	}
	name, rest := line, ""
	if i := strings.IndexFunc(line, unicode.IsSpace); i >= 0 {
		name, rest = line[:i], strings.TrimSpace(line[i:])
	}
	cmd := lookupCommand(strings.ToLower(name))
	if cmd == nil {
		return fmt.Errorf("unknown command %q (type 'help' for commands)", name)
	}

	var args []string
	if cmd.raw {
		if rest != "" {
			args = []string{rest}
		}
	} else {
		var err error
		args, err = shlex.Split(rest)
		if err != nil {
			return fmt.Errorf("%s: %w", cmd.name, err)
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	return cmd.run(sh, ctx, args)
}

func (sh *shell) printErr(err error) {
	sh.red.Fprintf(sh.errOut, "error: %v\n", err)
}

func (sh *shell) printf(format string, args ...any) {
	fmt.Fprintf(sh.out, format, args...)
}

// complete offers command names for the first word and column names of the
// current table after that.
func (sh *shell) complete(line string) []string {
	var result []string
	i := strings.LastIndexByte(line, ' ')
	if i < 0 {
		lower := strings.ToLower(line)
		for _, cmd := range commands {
			if strings.HasPrefix(cmd.name, lower) {
				result = append(result, cmd.name)
			}
		}
		return result
	}
	head, word := line[:i+1], line[i+1:]
	if t := sh.session.Table(); t != nil {
		for _, col := range t.Columns {
			if strings.HasPrefix(col, word) {
				result = append(result, head+quoteArg(col))
			}
		}
	}
	return result
}

// quoteArg quotes s so that shlex splits it back into a single word.
func quoteArg(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\r\n\"'\\#") {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
