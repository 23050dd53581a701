package archive

import (
	"context"
	"encoding/binary"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Record is a committed archive record.
type Record struct {
	Segment uint32
	Time    time.Time
	Data    []byte
}

// Records reads every committed record, oldest first. Reading a segment stops
// at its first damaged or uncommitted record; a segment with a damaged header
// is skipped.
func (a *Archive) Records(ctx context.Context) ([]Record, error) {
	a.lock.Lock()
	defer a.lock.Unlock()

	names, err := a.segmentNames()
	if err != nil {
		return nil, err
	}

	var result []Record
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seq, _, _, err := a.parseFileName(name)
		if err != nil {
			a.logger.LogAttrs(ctx, slog.LevelWarn, "archive: skipping unrecognized file", slog.String("arch", a.debugName), slog.String("file", name))
			continue
		}
		data, err := os.ReadFile(filepath.Join(a.dir, name))
		if err != nil {
			return nil, err
		}
		recs, err := a.readSegment(data, seq, name)
		if err == errCorruptedFile {
			a.logger.LogAttrs(ctx, slog.LevelWarn, "archive: skipping corrupted file", slog.String("arch", a.debugName), slog.String("file", name))
			continue
		} else if err != nil {
			return nil, err
		}
		result = append(result, recs...)
	}
	return result, nil
}

func (a *Archive) readSegment(data []byte, seq uint32, name string) ([]Record, error) {
	if len(data) < segmentHeaderSize {
		return nil, errCorruptedFile
	}
	var h segmentHeader
	n, err := binary.Decode(data[:segmentHeaderSize], binary.LittleEndian, &h)
	if err != nil {
		panic(err)
	}
	if n != segmentHeaderSize {
		panic("internal size mismatch")
	}
	if xxhash.Sum64(data[:segmentHeaderSize-8]) != h.Checksum {
		return nil, errCorruptedFile
	}
	if err := a.checkHeader(&h, seq); err != nil {
		return nil, err
	}

	var hash xxhash.Digest
	hash.Reset()
	hash.Write(data[:segmentHeaderSize])

	ts := h.Timestamp
	rest := data[segmentHeaderSize:]
	var pending, committed []Record
	for len(rest) > 0 {
		if rest[0]&recordFlagCommit != 0 {
			if len(rest) < 8 {
				break
			}
			if binary.LittleEndian.Uint64(rest[:8]) != hash.Sum64()|uint64(recordFlagCommit) {
				a.logger.LogAttrs(a.context, slog.LevelWarn, "archive: checksum mismatch", slog.String("arch", a.debugName), slog.String("file", name), slog.Int("off", len(data)-len(rest)))
				break
			}
			hash.Write(rest[:8])
			rest = rest[8:]
			committed = append(committed, pending...)
			pending = pending[:0]
			continue
		}

		sizeAndFlags, n1 := binary.Uvarint(rest)
		if n1 <= 0 {
			break
		}
		tsDelta, n2 := binary.Uvarint(rest[n1:])
		if n2 <= 0 {
			break
		}
		hlen := n1 + n2
		size := sizeAndFlags >> recordFlagShift
		if uint64(len(rest)-hlen) < size {
			break
		}
		body := rest[hlen : hlen+int(size)]
		hash.Write(rest[:hlen])
		hash.Write(body)
		ts += uint32(tsDelta)
		pending = append(pending, Record{
			Segment: seq,
			Time:    time.Unix(int64(ts), 0).UTC(),
			Data:    body,
		})
		rest = rest[hlen+int(size):]
	}
	return committed, nil
}
