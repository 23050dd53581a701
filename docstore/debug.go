package docstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/goccy/go-json"
)

type DumpFlags uint64

const (
	DumpHeaders = DumpFlags(1 << iota)
	DumpStats
	DumpDocuments

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)
)

var (
	dumpSep1 = strings.Repeat("=", 80)
	dumpSep2 = strings.Repeat("-", 60)
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump writes a human-readable listing of every database and collection.
func (s *Store) Dump(ctx context.Context, w io.Writer, f DumpFlags) error {
	return s.view(ctx, func(tx storageTx) error {
		for _, db := range tx.BucketNames("") {
			for _, coll := range tx.BucketNames(db) {
				s.dumpCollection(ctx, w, f, db+"."+coll, tx.Bucket(db, coll))
			}
		}
		return nil
	})
}

func (s *Store) dumpCollection(ctx context.Context, w io.Writer, f DumpFlags, prefix string, b storageBucket) {
	bs := b.Stats()
	if f.Contains(DumpHeaders) {
		fmt.Fprintln(w, dumpSep1)
		fmt.Fprintf(w, "%s (%d docs)\n", prefix, bs.KeyN)
	}
	if f.Contains(DumpStats) {
		fmt.Fprintf(w, "%s.stats: data_size = %d, data_alloc = %d\n", prefix, bs.LeafInuse, bs.TotalAlloc())
	}
	if f.Contains(DumpDocuments) {
		if f.Contains(DumpStats) {
			fmt.Fprintln(w, dumpSep2)
		}
		c := b.Cursor()
		var pos int
		for k, v := c.First(); k != nil; k, v = c.Next() {
			pos++
			doc, err := decodeDocument(v)
			if err != nil {
				s.logger.LogAttrs(ctx, slog.LevelWarn, "docstore: undecodable document", slog.String("coll", prefix), hexAttr("key", k), slog.Any("err", err))
				fmt.Fprintf(w, "%s.%d = ** ERROR: %v\n", prefix, pos, err)
				continue
			}
			fmt.Fprintf(w, "%s.%d = %s\n", prefix, pos, must(json.Marshal(doc)))
		}
	}
}
