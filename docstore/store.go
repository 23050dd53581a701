package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/andreyvit/doctable"
	"github.com/andreyvit/doctable/archive"
)

var errInvalidName = errors.New("invalid database or collection name")

// Store is a document store with named databases, each holding named
// collections of schema-less documents.
//
// Documents are kept in insertion order under 8-byte ordinal keys. Every
// document carries a store-assigned doctable.IDField, regenerated on each
// ReplaceAll.
type Store struct {
	stor    storage
	logger  *slog.Logger
	verbose bool
	archive *archive.Archive
	now     func() time.Time

	lastSize   atomic.Int64
	ReadCount  atomic.Uint64
	WriteCount atomic.Uint64
}

var _ doctable.Store = (*Store)(nil)

type Options struct {
	Logger    *slog.Logger
	Verbose   bool
	IsTesting bool
	MmapSize  int

	// Archive, if set, receives the previous contents of a collection before
	// ReplaceAll overwrites it.
	Archive *archive.Archive

	Now func() time.Time
}

// Open opens (creating if needed) a Bolt-backed store at path.
func Open(path string, opt Options) (*Store, error) {
	bopt := *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.InitialMmapSize = 1024 * 1024 * 64
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}

	bdb, err := bbolt.Open(path, 0666, &bopt)
	if err != nil {
		return nil, fmt.Errorf("docstore: %w", err)
	}
	return newStore(newBoltStorage(bdb), opt), nil
}

// OpenMemory returns a store that keeps everything in memory.
func OpenMemory(opt Options) *Store {
	return newStore(newMemStorage(), opt)
}

func newStore(stor storage, opt Options) *Store {
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Store{
		stor:    stor,
		logger:  opt.Logger,
		verbose: opt.Verbose,
		archive: opt.Archive,
		now:     opt.Now,
	}
}

func (s *Store) Close() error {
	err := s.stor.Close()
	if err != nil {
		return fmt.Errorf("docstore: closing: %w", err)
	}
	return nil
}

// Size returns the storage size observed by the most recent transaction.
func (s *Store) Size() int64 {
	return s.lastSize.Load()
}

func (s *Store) Databases(ctx context.Context) ([]string, error) {
	var names []string
	err := s.view(ctx, func(tx storageTx) error {
		names = tx.BucketNames("")
		return nil
	})
	if err != nil {
		return nil, storeErr("databases", doctable.CollectionID{}, err)
	}
	return names, nil
}

// Collections lists the collections of db. A database that does not exist has
// no collections.
func (s *Store) Collections(ctx context.Context, db string) ([]string, error) {
	var names []string
	err := s.view(ctx, func(tx storageTx) error {
		names = tx.BucketNames(db)
		return nil
	})
	if err != nil {
		return nil, storeErr("collections", doctable.CollectionID{Database: db}, err)
	}
	return names, nil
}

// LoadAll returns every document of the collection in insertion order. A
// missing collection loads as empty.
func (s *Store) LoadAll(ctx context.Context, id doctable.CollectionID) ([]doctable.Document, error) {
	if err := validateID(id); err != nil {
		return nil, storeErr("load_all", id, err)
	}
	var docs []doctable.Document
	err := s.view(ctx, func(tx storageTx) error {
		b := tx.Bucket(id.Database, id.Collection)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc, err := decodeDocument(v)
			if err != nil {
				return fmt.Errorf("document %s: %w", hexstr(k), err)
			}
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, storeErr("load_all", id, err)
	}
	if s.verbose {
		s.logger.LogAttrs(ctx, slog.LevelDebug, "docstore: loaded", slog.String("coll", id.String()), slog.Int("docs", len(docs)))
	}
	return docs, nil
}

// ReplaceAll deletes every document of the collection and inserts docs,
// creating the database and collection when needed. Each inserted document
// gets a fresh doctable.IDField; an incoming one is discarded.
//
// With an archive configured, the previous contents are archived first and a
// failure to archive aborts the replacement.
func (s *Store) ReplaceAll(ctx context.Context, id doctable.CollectionID, docs []doctable.Document) error {
	if err := validateID(id); err != nil {
		return storeErr("replace_all", id, err)
	}

	values := make([][]byte, 0, len(docs))
	for i, doc := range docs {
		doc = maps.Clone(doc)
		if doc == nil {
			doc = make(doctable.Document, 1)
		}
		doc[doctable.IDField] = newDocumentID()
		v, err := encodeDocument(doc)
		if err != nil {
			return storeErr("replace_all", id, fmt.Errorf("document %d: %w", i, err))
		}
		values = append(values, v)
	}

	var prev int
	err := s.update(ctx, func(tx storageTx) error {
		if old := tx.Bucket(id.Database, id.Collection); old != nil {
			var err error
			prev, err = s.archiveBucket(ctx, id, old)
			if err != nil {
				return err
			}
			err = tx.DeleteBucket(id.Database, id.Collection)
			if err != nil && err != ErrBucketNotFound {
				return err
			}
		}

		b, err := tx.CreateBucket(id.Database, id.Collection)
		if err != nil {
			return err
		}
		for i, v := range values {
			if err := b.Put(docKey(uint64(i)), v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return storeErr("replace_all", id, err)
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "docstore: replaced collection", slog.String("coll", id.String()), slog.Int("docs", len(values)), slog.Int("prev", prev))
	return nil
}

func (s *Store) view(ctx context.Context, f func(tx storageTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.stor.BeginTx(false)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	s.ReadCount.Add(1)
	err = safelyCall(f, tx)
	s.lastSize.Store(tx.Size())
	return err
}

func (s *Store) update(ctx context.Context, f func(tx storageTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.stor.BeginTx(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	err = safelyCall(f, tx)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.WriteCount.Add(1)
	s.lastSize.Store(tx.Size())
	return tx.Commit()
}

func storeErr(op string, id doctable.CollectionID, err error) error {
	if err == nil {
		return nil
	}
	return &doctable.StoreError{Op: op, Collection: id, Err: err}
}

func validateID(id doctable.CollectionID) error {
	if !validName(id.Database) || !validName(id.Collection) {
		return fmt.Errorf("%w: %q", errInvalidName, id.String())
	}
	return nil
}

func validName(name string) bool {
	return name != "" && !strings.Contains(name, memBucketSep)
}

func newDocumentID() string {
	return uuid.Must(uuid.NewV7()).String()
}
