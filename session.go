package doctable

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

var (
	ErrNoCollection = errors.New("no collection selected")
	ErrNoTable      = errors.New("no table loaded")
)

type Options struct {
	Logger *slog.Logger
}

// Session owns the current table of one user and the collection it is loaded
// from and saved to. Methods are meant to be called sequentially by a single
// caller. A failed operation leaves the current table as it was.
type Session struct {
	store   Store
	engine  QueryEngine
	logger  *slog.Logger
	target  CollectionID
	current *Table
}

func NewSession(store Store, engine QueryEngine, opt Options) *Session {
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	return &Session{
		store:  store,
		engine: engine,
		logger: opt.Logger,
	}
}

// Use selects the collection that Load, Upload and Save work with. The
// current table is kept, so it can be saved into a different collection.
func (s *Session) Use(id CollectionID) {
	s.target = id
	s.logger.Debug("doctable: using collection", "db", id.Database, "coll", id.Collection)
}

func (s *Session) Target() CollectionID {
	return s.target
}

// Table returns the current table, nil before anything is loaded.
func (s *Session) Table() *Table {
	return s.current
}

// Replace makes t the current table.
func (s *Session) Replace(t *Table) {
	s.current = t
}

// Load reads every document of the selected collection and makes their
// projection the current table.
func (s *Session) Load(ctx context.Context) (*Table, error) {
	if s.target.IsZero() {
		return nil, ErrNoCollection
	}
	docs, err := s.store.LoadAll(ctx, s.target)
	if err != nil {
		return nil, s.failed(ctx, "load", err)
	}
	t := Project(docs)
	s.logger.LogAttrs(ctx, slog.LevelInfo, "doctable: loaded", s.targetAttr(), slog.Int("docs", len(docs)), slog.Int("cols", len(t.Columns)))
	s.current = t
	return t, nil
}

// Upload parses a file with ReadUpload, replaces the selected collection with
// its rows and makes it the current table.
func (s *Session) Upload(ctx context.Context, name string, r io.Reader) (*Table, error) {
	if s.target.IsZero() {
		return nil, ErrNoCollection
	}
	t, err := ReadUpload(name, r)
	if err != nil {
		return nil, s.failed(ctx, "upload", err)
	}
	if err := s.replaceAll(ctx, t); err != nil {
		return nil, err
	}
	s.current = t
	return t, nil
}

// Apply runs a transform against the current table.
func (s *Session) Apply(tr Transform) (*Table, error) {
	if s.current == nil {
		return nil, ErrNoTable
	}
	t, err := tr.Apply(s.current)
	if err != nil {
		return nil, s.failed(context.Background(), "transform", err)
	}
	s.logger.Debug("doctable: applied", "op", tr.String(), "rows", t.Len(), "cols", len(t.Columns))
	s.current = t
	return t, nil
}

// Query runs a read-only SQL statement against the current table and makes
// the result the current table.
func (s *Session) Query(ctx context.Context, sql string) (*Table, error) {
	if s.current == nil {
		return nil, ErrNoTable
	}
	t, err := Execute(ctx, s.engine, s.current, sql)
	if err != nil {
		return nil, s.failed(ctx, "query", err)
	}
	s.logger.Debug("doctable: queried", "sql", sql, "rows", t.Len(), "cols", len(t.Columns))
	s.current = t
	return t, nil
}

// Save replaces every document of the selected collection with the rows of
// the current table. Composite values produced by a query stay the text they
// were serialized to. Times are stored in UTC, so a time loaded back after a
// save has lost its original offset.
//
// The replacement is not atomic from the session's point of view: a failure
// may leave the collection partially written, and nothing is retried.
func (s *Session) Save(ctx context.Context) error {
	if s.target.IsZero() {
		return ErrNoCollection
	}
	if s.current == nil {
		return ErrNoTable
	}
	return s.replaceAll(ctx, s.current)
}

func (s *Session) replaceAll(ctx context.Context, t *Table) error {
	docs := t.Documents()
	if err := s.store.ReplaceAll(ctx, s.target, docs); err != nil {
		return s.failed(ctx, "save", err)
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "doctable: saved", s.targetAttr(), slog.Int("docs", len(docs)))
	return nil
}

func (s *Session) failed(ctx context.Context, op string, err error) error {
	s.logger.LogAttrs(ctx, slog.LevelWarn, "doctable: "+op+" failed", s.targetAttr(), slog.Any("err", err))
	return err
}

func (s *Session) targetAttr() slog.Attr {
	return slog.String("coll", s.target.String())
}
