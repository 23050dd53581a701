package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/andreyvit/doctable"
)

// Snapshot is the archived content of a collection as it was right before a
// ReplaceAll overwrote it.
type Snapshot struct {
	Database   string    `msgpack:"db"`
	Collection string    `msgpack:"coll"`
	Time       time.Time `msgpack:"tm"`
	Values     [][]byte  `msgpack:"vals"`
}

func (snap *Snapshot) CollectionID() doctable.CollectionID {
	return doctable.CollectionID{Database: snap.Database, Collection: snap.Collection}
}

func (snap *Snapshot) Len() int {
	return len(snap.Values)
}

// Documents decodes the archived documents.
func (snap *Snapshot) Documents() ([]doctable.Document, error) {
	docs := make([]doctable.Document, 0, len(snap.Values))
	for i, v := range snap.Values {
		doc, err := decodeDocument(v)
		if err != nil {
			return nil, fmt.Errorf("snapshot document %d: %w", i, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// archiveBucket appends the bucket's current documents to the archive and
// returns how many there were. Empty collections are not archived.
func (s *Store) archiveBucket(ctx context.Context, id doctable.CollectionID, b storageBucket) (int, error) {
	var values [][]byte
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		values = append(values, slices.Clone(v))
	}
	if s.archive == nil || len(values) == 0 {
		return len(values), nil
	}

	snap := &Snapshot{
		Database:   id.Database,
		Collection: id.Collection,
		Time:       s.now().UTC(),
		Values:     values,
	}
	data, err := encodeMsgpack(nil, snap)
	if err != nil {
		return 0, err
	}
	if err := s.archive.Append(data); err != nil {
		return 0, fmt.Errorf("archive: %w", err)
	}
	if err := s.archive.Commit(); err != nil {
		return 0, fmt.Errorf("archive: %w", err)
	}
	if s.verbose {
		s.logger.LogAttrs(ctx, slog.LevelDebug, "docstore: archived", slog.String("coll", id.String()), slog.Int("docs", len(values)), slog.Int("bytes", len(data)))
	}
	return len(values), nil
}

// Snapshots returns the archived snapshots of a collection, oldest first.
// Without an archive there are none.
func (s *Store) Snapshots(ctx context.Context, id doctable.CollectionID) ([]*Snapshot, error) {
	if s.archive == nil {
		return nil, nil
	}
	recs, err := s.archive.Records(ctx)
	if err != nil {
		return nil, storeErr("snapshots", id, err)
	}
	var result []*Snapshot
	for _, rec := range recs {
		snap := new(Snapshot)
		if err := decodeMsgpack(rec.Data, snap); err != nil {
			s.logger.LogAttrs(ctx, slog.LevelWarn, "docstore: skipping undecodable snapshot", slog.Uint64("seg", uint64(rec.Segment)), slog.Any("err", err))
			continue
		}
		if snap.Database == id.Database && snap.Collection == id.Collection {
			result = append(result, snap)
		}
	}
	return result, nil
}
