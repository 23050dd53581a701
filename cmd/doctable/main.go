// doctable is an interactive shell for editing document collections as
// tables.
//
// Usage:
//
//	doctable [options]
//
// Options:
//
//	-C, --config FILE    config file (default ./doctable.json when present)
//	    --db PATH        store file
//	    --mem            keep everything in memory
//	    --archive DIR    keep overwritten collection contents in DIR
//	    --use DB.COLL    select a collection on start
//	-c, --command CMD    run CMD instead of the shell (repeatable)
//	-v, --verbose        debug logging
//
// Type 'help' in the shell for the list of commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/andreyvit/doctable"
	"github.com/andreyvit/doctable/archive"
	"github.com/andreyvit/doctable/docstore"
	"github.com/andreyvit/doctable/sqlengine"
)

const archiveFileName = "snapshots-*.bin"

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("doctable", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.StringP("config", "C", "", "config file (default ./"+ConfigFileName+" when present)")
	dbPath := fs.String("db", "", "store file")
	mem := fs.Bool("mem", false, "keep everything in memory")
	archiveDir := fs.String("archive", "", "keep overwritten collection contents in this directory")
	use := fs.String("use", "", "select a collection on start, as DB.COLL")
	commands := fs.StringArrayP("command", "c", nil, "run a shell command and exit (repeatable)")
	verbose := fs.BoolP("verbose", "v", false, "debug logging")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: doctable [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "error: unexpected argument %q\n", fs.Arg(0))
		return 2
	}

	cfg, err := loadConfig(or(*configPath, ConfigFileName), *configPath != "")
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if fs.Changed("db") {
		cfg.DB = *dbPath
	}
	if fs.Changed("mem") {
		cfg.Memory = *mem
	}
	if fs.Changed("archive") {
		cfg.Archive = *archiveDir
	}
	if fs.Changed("verbose") {
		cfg.Verbose = *verbose
	}
	if fs.Changed("use") {
		db, coll, ok := strings.Cut(*use, ".")
		if !ok || db == "" || coll == "" {
			fmt.Fprintf(stderr, "error: --use wants DB.COLL, got %q\n", *use)
			return 2
		}
		cfg.Database, cfg.Collection = db, coll
	}

	level := slog.LevelError
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	e, err := open(cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	defer e.Close()

	sh := newShell(e, cfg, stdout, stderr)
	if cfg.Database != "" && cfg.Collection != "" {
		sh.session.Use(doctable.CollectionID{Database: cfg.Database, Collection: cfg.Collection})
	}

	if len(*commands) > 0 {
		return sh.runCommands(ctx, *commands)
	}
	if err := sh.repl(ctx, stdin); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// env holds what the shell opened and must close.
type env struct {
	store   *docstore.Store
	archive *archive.Archive
	engine  *sqlengine.Engine
	logger  *slog.Logger
}

func open(cfg Config, logger *slog.Logger) (*env, error) {
	e := &env{logger: logger}
	if cfg.Archive != "" {
		var err error
		e.archive, err = archive.Open(cfg.Archive, archive.Options{
			FileName:  archiveFileName,
			DebugName: "snapshots",
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
	}

	opt := docstore.Options{
		Logger:  logger,
		Verbose: cfg.Verbose,
		Archive: e.archive,
	}
	if cfg.Memory {
		e.store = docstore.OpenMemory(opt)
	} else {
		var err error
		e.store, err = docstore.Open(cfg.DB, opt)
		if err != nil {
			e.Close()
			return nil, err
		}
	}

	e.engine = sqlengine.New(sqlengine.Options{Logger: logger})
	return e, nil
}

func (e *env) Close() {
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.logger.Error("closing store", "err", err)
		}
	}
	if e.archive != nil {
		if err := e.archive.Close(); err != nil {
			e.logger.Error("closing archive", "err", err)
		}
	}
}

func or[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}
