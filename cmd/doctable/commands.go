package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"

	"github.com/andreyvit/doctable"
	"github.com/andreyvit/doctable/docstore"
)

type command struct {
	name  string
	args  string
	short string

	// raw commands get the rest of the line as a single argument.
	raw bool

	run func(sh *shell, ctx context.Context, args []string) error
}

var commands []*command

func init() {
	commands = []*command{
		{name: "dbs", short: "list databases", run: cmdDatabases},
		{name: "colls", args: "[DB]", short: "list collections of DB (default: current)", run: cmdCollections},
		{name: "use", args: "DB COLL", short: "select the collection to load from and save to", run: cmdUse},
		{name: "load", short: "load the selected collection as the current table", run: cmdLoad},
		{name: "upload", args: "FILE", short: "read a CSV/TSV/PSV/XLSX file into the selected collection", run: cmdUpload},
		{name: "show", args: "[N|all]", short: "print the first N rows of the current table", run: cmdShow},
		{name: "add", args: "[-t] NAME VALUE", short: "add a column with VALUE in every row", run: cmdAdd},
		{name: "merge", args: "A B NEW [drop]", short: "concatenate A and B into NEW, optionally dropping A and B", run: cmdMerge},
		{name: "rm", args: "COL...", short: "remove columns", run: cmdRemove},
		{name: "rename", args: "OLD NEW", short: "rename a column", run: cmdRename},
		{name: "update", args: "[-t] COL MATCH VALUE", short: "set COL to VALUE where its text is MATCH", run: cmdUpdate},
		{name: "set", args: "[-t] ROW COL VALUE", short: "set one cell (ROW counts from 0)", run: cmdSet},
		{name: "sql", args: "QUERY", short: "run a read-only query against table \"" + doctable.RelationName + "\"", raw: true, run: cmdSQL},
		{name: "save", short: "replace the selected collection with the current table", run: cmdSave},
		{name: "export", args: "FILE", short: "write the current table as CSV", run: cmdExport},
		{name: "snapshots", short: "list archived contents of the selected collection", run: cmdSnapshots},
		{name: "restore", args: "N", short: "make snapshot N the current table", run: cmdRestore},
		{name: "stats", short: "show storage statistics of the selected collection", run: cmdStats},
		{name: "dump", short: "print every stored document", run: cmdDump},
		{name: "help", short: "show this help", run: cmdHelp},
		{name: "quit", short: "exit the shell", run: cmdQuit},
	}
}

var aliases = map[string]string{
	"exit": "quit",
	"q":    "quit",
	"?":    "help",
	"ls":   "colls",
}

func lookupCommand(name string) *command {
	if s, ok := aliases[name]; ok {
		name = s
	}
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd
		}
	}
	return nil
}

type usageError struct {
	cmd *command
}

func (e *usageError) Error() string {
	return "usage: " + strings.TrimSpace(e.cmd.name+" "+e.cmd.args)
}

func usage(name string) error {
	return &usageError{lookupCommand(name)}
}

func cmdHelp(sh *shell, ctx context.Context, args []string) error {
	width := 0
	for _, cmd := range commands {
		width = max(width, len(cmd.name)+1+len(cmd.args))
	}
	for _, cmd := range commands {
		sh.printf("  %-*s  %s\n", width, strings.TrimSpace(cmd.name+" "+cmd.args), cmd.short)
	}
	sh.printf("\nValues are text; with -t they are read as null, true/false, or numbers when they look like one.\n")
	return nil
}

func cmdQuit(sh *shell, ctx context.Context, args []string) error {
	return errQuit
}

func cmdDatabases(sh *shell, ctx context.Context, args []string) error {
	if len(args) != 0 {
		return usage("dbs")
	}
	names, err := sh.store.Databases(ctx)
	if err != nil {
		return err
	}
	printList(sh.out, names, "(no databases)")
	return nil
}

func cmdCollections(sh *shell, ctx context.Context, args []string) error {
	db := sh.session.Target().Database
	switch len(args) {
	case 0:
		if db == "" {
			return usage("colls")
		}
	case 1:
		db = args[0]
	default:
		return usage("colls")
	}
	names, err := sh.store.Collections(ctx, db)
	if err != nil {
		return err
	}
	printList(sh.out, names, "(no collections)")
	return nil
}

func cmdUse(sh *shell, ctx context.Context, args []string) error {
	var id doctable.CollectionID
	switch len(args) {
	case 1:
		var ok bool
		id.Database, id.Collection, ok = strings.Cut(args[0], ".")
		if !ok {
			return usage("use")
		}
	case 2:
		id.Database, id.Collection = args[0], args[1]
	default:
		return usage("use")
	}
	if id.Database == "" || id.Collection == "" {
		return usage("use")
	}
	sh.session.Use(id)
	sh.printf("using %s\n", id)
	return nil
}

func cmdLoad(sh *shell, ctx context.Context, args []string) error {
	if len(args) != 0 {
		return usage("load")
	}
	t, err := sh.session.Load(ctx)
	if err != nil {
		return err
	}
	sh.printf("loaded %s from %s\n", describeTable(t), sh.session.Target())
	return nil
}

func cmdUpload(sh *shell, ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("upload")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	t, err := sh.session.Upload(ctx, filepath.Base(args[0]), f)
	if err != nil {
		return err
	}
	sh.printf("uploaded %s into %s\n", describeTable(t), sh.session.Target())
	return nil
}

func cmdShow(sh *shell, ctx context.Context, args []string) error {
	limit := sh.cfg.ShowRows
	switch len(args) {
	case 0:
	case 1:
		if args[0] == "all" {
			limit = 0
		} else {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return usage("show")
			}
			limit = n
		}
	default:
		return usage("show")
	}
	t := sh.session.Table()
	if t == nil {
		return doctable.ErrNoTable
	}
	printTable(sh.out, t, limit)
	return nil
}

func cmdAdd(sh *shell, ctx context.Context, args []string) error {
	args, typed, err := parseTyped("add", args)
	if err != nil {
		return err
	}
	if len(args) != 2 {
		return usage("add")
	}
	return sh.apply(doctable.AddColumn{Name: args[0], Value: parseValue(args[1], typed)})
}

func cmdMerge(sh *shell, ctx context.Context, args []string) error {
	var drop bool
	switch {
	case len(args) == 4 && args[3] == "drop":
		drop = true
	case len(args) == 3:
	default:
		return usage("merge")
	}
	return sh.apply(doctable.MergeColumns{A: args[0], B: args[1], Name: args[2], Drop: drop})
}

func cmdRemove(sh *shell, ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usage("rm")
	}
	return sh.apply(doctable.RemoveColumns{Names: args})
}

func cmdRename(sh *shell, ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("rename")
	}
	return sh.apply(doctable.RenameColumn{Old: args[0], New: args[1]})
}

func cmdUpdate(sh *shell, ctx context.Context, args []string) error {
	args, typed, err := parseTyped("update", args)
	if err != nil {
		return err
	}
	if len(args) != 3 {
		return usage("update")
	}
	return sh.apply(doctable.ConditionalUpdate{Column: args[0], Match: args[1], Value: parseValue(args[2], typed)})
}

func cmdSet(sh *shell, ctx context.Context, args []string) error {
	args, typed, err := parseTyped("set", args)
	if err != nil {
		return err
	}
	if len(args) != 3 {
		return usage("set")
	}
	row, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("set: invalid row %q", args[0])
	}
	return sh.apply(doctable.SetCell{Row: row, Column: args[1], Value: parseValue(args[2], typed)})
}

func (sh *shell) apply(tr doctable.Transform) error {
	t, err := sh.session.Apply(tr)
	if err != nil {
		return err
	}
	sh.printf("%s: %s\n", tr, describeTable(t))
	return nil
}

func cmdSQL(sh *shell, ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("sql")
	}
	t, err := sh.session.Query(ctx, args[0])
	if err != nil {
		return err
	}
	printTable(sh.out, t, sh.cfg.ShowRows)
	return nil
}

func cmdSave(sh *shell, ctx context.Context, args []string) error {
	if len(args) != 0 {
		return usage("save")
	}
	if err := sh.session.Save(ctx); err != nil {
		return err
	}
	sh.printf("saved %s to %s\n", describeTable(sh.session.Table()), sh.session.Target())
	return nil
}

func cmdExport(sh *shell, ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("export")
	}
	t := sh.session.Table()
	if t == nil {
		return doctable.ErrNoTable
	}
	if err := atomic.WriteFile(args[0], bytes.NewReader(t.CSV())); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	sh.printf("exported %s to %s\n", describeTable(t), args[0])
	return nil
}

func cmdSnapshots(sh *shell, ctx context.Context, args []string) error {
	if len(args) != 0 {
		return usage("snapshots")
	}
	snaps, err := sh.snapshots(ctx)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		sh.printf("(no snapshots)\n")
		return nil
	}
	for i, snap := range snaps {
		sh.printf("%3d  %s  %d docs\n", i+1, snap.Time.Format(doctable.TimeFormat), snap.Len())
	}
	return nil
}

func cmdRestore(sh *shell, ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("restore")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return usage("restore")
	}
	snaps, err := sh.snapshots(ctx)
	if err != nil {
		return err
	}
	if n < 1 || n > len(snaps) {
		return fmt.Errorf("restore: no snapshot %d (have %d)", n, len(snaps))
	}
	snap := snaps[n-1]
	docs, err := snap.Documents()
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	t := doctable.Project(docs)
	sh.session.Replace(t)
	sh.printf("restored %s as of %s; use 'save' to write it back\n", describeTable(t), snap.Time.Format(doctable.TimeFormat))
	return nil
}

func (sh *shell) snapshots(ctx context.Context) ([]*docstore.Snapshot, error) {
	id := sh.session.Target()
	if id.IsZero() {
		return nil, doctable.ErrNoCollection
	}
	return sh.store.Snapshots(ctx, id)
}

func cmdStats(sh *shell, ctx context.Context, args []string) error {
	if len(args) != 0 {
		return usage("stats")
	}
	id := sh.session.Target()
	if id.IsZero() {
		return doctable.ErrNoCollection
	}
	st, err := sh.store.Stats(ctx, id)
	if err != nil {
		return err
	}
	sh.printf("%s: %d docs, data_size = %d, data_alloc = %d\n", id, st.Documents, st.DataSize, st.DataAlloc)
	sh.printf("store: size = %d, reads = %d, writes = %d\n", sh.store.Size(), sh.store.ReadCount.Load(), sh.store.WriteCount.Load())
	return nil
}

func cmdDump(sh *shell, ctx context.Context, args []string) error {
	if len(args) != 0 {
		return usage("dump")
	}
	return sh.store.Dump(ctx, sh.out, docstore.DumpAll)
}

// parseTyped strips a leading -t/--typed flag. Flags are only recognized
// before the first argument, so negative numbers can be passed as values.
func parseTyped(name string, args []string) ([]string, bool, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetInterspersed(false)
	typed := fs.BoolP("typed", "t", false, "read values as null, booleans or numbers")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, false, usage(name)
		}
		return nil, false, fmt.Errorf("%s: %w", name, err)
	}
	return fs.Args(), *typed, nil
}

// parseValue returns s itself unless typed is set, in which case null,
// booleans, integers and finite floats get their native types.
func parseValue(s string, typed bool) any {
	if !typed {
		return s
	}
	switch s {
	case "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	return s
}

func describeTable(t *doctable.Table) string {
	return fmt.Sprintf("%s, %s", plural(t.Len(), "row"), plural(len(t.Columns), "column"))
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}
