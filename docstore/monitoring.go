package docstore

import (
	"context"

	"github.com/andreyvit/doctable"
)

type CollectionStats struct {
	Documents int

	DataSize  int64
	DataAlloc int64
}

// Stats reports document count and storage usage of a collection. A missing
// collection reports zeros.
func (s *Store) Stats(ctx context.Context, id doctable.CollectionID) (CollectionStats, error) {
	var result CollectionStats
	err := s.view(ctx, func(tx storageTx) error {
		b := tx.Bucket(id.Database, id.Collection)
		if b == nil {
			return nil
		}
		bs := b.Stats()
		result = CollectionStats{
			Documents: bs.KeyN,
			DataSize:  bs.LeafInuse,
			DataAlloc: bs.TotalAlloc(),
		}
		return nil
	})
	if err != nil {
		return CollectionStats{}, storeErr("stats", id, err)
	}
	return result, nil
}
