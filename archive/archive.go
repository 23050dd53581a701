// Package archive keeps append-only segment files of opaque records, used to
// retain collection contents that a save is about to overwrite.
//
// Features:
//
//  1. Suitable for records of all sizes. Several records can be grouped under
//     a single commit.
//
//  2. Crash-resistant: every segment carries a running xxhash checksum, each
//     commit writes the checksum so far, and readers only return records
//     covered by a valid commit.
//
//  3. Rotates segment files once they reach MaxFileSize. A fresh segment is
//     started by every Open, so existing files are never appended to.
//
// File format:
//
//   - file = segmentHeader (record | commit)*
//   - segmentHeader = magic:64 ver:8 pad:8 flags:16 pad:32 seq:32 ts:32 prevChecksum:64 archiveInvariant:64*4 segmentInvariant:64*4 reserved:64*3 checksum:64
//   - record = sizeAndFlags:uvarint tsDelta:uvarint bytes*
//   - commit = checksum:64 (little-endian, lowest bit set)
//
// The lowest bit of the first byte tells a commit (1) from a record (0).
package archive

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

var (
	ErrIncompatible       = fmt.Errorf("incompatible archive")
	ErrUnsupportedVersion = fmt.Errorf("unsupported archive version")
	errCorruptedFile      = fmt.Errorf("corrupted archive segment file")
)

type Options struct {
	Context     context.Context
	FileName    string // e.g. "archive-*.bin"
	MaxFileSize int64  // new segment after this size
	DebugName   string
	Now         func() time.Time
	Invariant   [32]byte

	Logger *slog.Logger

	// NoSync skips fdatasync after commits. Meant for tests.
	NoSync bool
}

const DefaultMaxFileSize = 16 * 1024 * 1024

const (
	magic          = 0x45564948_43524153 // "SARCHIVE" as little-endian uint64
	version0 uint8 = 0
)

const segmentHeaderSize = 16 * 8

type segmentHeader struct {
	Magic            uint64
	Version          uint8
	_                uint8
	Flags            uint16
	_                uint32
	SegmentOrdinal   uint32
	Timestamp        uint32
	PrevChecksum     uint64
	ArchiveInvariant [32]byte
	SegmentInvariant [32]byte
	_                [3]uint64
	Checksum         uint64
}

const (
	recordFlagCommit byte = 1
	recordFlagShift       = 1
	timestampFmt          = "20060102T150405"
)

// Archive is a directory of segment files. Safe for concurrent use.
type Archive struct {
	context        context.Context
	maxFileSize    int64
	fileNamePrefix string
	fileNameSuffix string
	debugName      string
	dir            string
	now            func() time.Time
	logger         *slog.Logger
	noSync         bool
	invariant      [32]byte

	lock      sync.Mutex
	writeErr  error
	writeSeg  uint32
	writeRec  uint64
	segWriter *segmentWriter
}

// Open prepares an archive in dir, creating the directory if needed.
// Corrupted trailing segments left by a crash are deleted.
func Open(dir string, o Options) (*Archive, error) {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Context == nil {
		o.Context = context.Background()
	}
	if o.FileName == "" {
		o.FileName = "archive-*.bin"
	}
	prefix, suffix, _ := strings.Cut(o.FileName, "*")
	if o.DebugName == "" {
		o.DebugName = "archive"
	}
	if o.MaxFileSize == 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	a := &Archive{
		context:        o.Context,
		maxFileSize:    o.MaxFileSize,
		fileNamePrefix: prefix,
		fileNameSuffix: suffix,
		debugName:      o.DebugName,
		dir:            dir,
		now:            o.Now,
		logger:         o.Logger,
		noSync:         o.NoSync,
		invariant:      o.Invariant,
	}

	if err := os.MkdirAll(dir, 0o777); err != nil {
		return nil, fmt.Errorf("%v: %w", a.debugName, err)
	}
	if err := a.recover(); err != nil {
		return nil, fmt.Errorf("%v: %w", a.debugName, err)
	}
	return a, nil
}

func (a *Archive) String() string {
	return a.debugName
}

// Dir returns the directory holding the segment files.
func (a *Archive) Dir() string {
	return a.dir
}

func (a *Archive) timestamp() uint32 {
	v := a.now().Unix()
	if v < 0 {
		panic("time travel disallowed")
	}
	u := uint64(v)
	if u&0xFFFF_FFFF_0000_0000 != 0 {
		panic("time travel disallowed both ways")
	}
	return uint32(u)
}

func (a *Archive) recover() error {
	for {
		names, err := a.segmentNames()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			return nil
		}
		lastName := names[len(names)-1]

		seq, _, firstRec, err := a.parseFileName(lastName)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(filepath.Join(a.dir, lastName))
		if err != nil {
			return err
		}

		recs, err := a.readSegment(data, seq, lastName)
		if err == errCorruptedFile {
			a.logger.LogAttrs(a.context, slog.LevelWarn, "archive: deleting corrupted file", slog.String("arch", a.debugName), slog.String("file", lastName), slog.Int("size", len(data)))
			err := os.Remove(filepath.Join(a.dir, lastName))
			if err != nil {
				return fmt.Errorf("failed to delete corrupted file: %w", err)
			}
			continue
		} else if err != nil {
			return err
		}

		a.writeSeg = seq
		a.writeRec = firstRec - 1 + uint64(len(recs))
		return nil
	}
}

func (a *Archive) segmentNames() ([]string, error) {
	ents, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, ent := range ents {
		if !ent.Type().IsRegular() {
			continue
		}
		name := ent.Name()
		if !strings.HasPrefix(name, a.fileNamePrefix) || !strings.HasSuffix(name, a.fileNameSuffix) {
			continue
		}
		names = append(names, name)
	}
	// zero-padded ordinals sort lexicographically
	slices.Sort(names)
	return names, nil
}

func (a *Archive) parseFileName(name string) (seq, ts uint32, id uint64, err error) {
	base := strings.TrimSuffix(strings.TrimPrefix(name, a.fileNamePrefix), a.fileNameSuffix)
	return parseSegmentName(base)
}

// Append writes a record. It becomes visible to readers after Commit.
func (a *Archive) Append(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	a.lock.Lock()
	defer a.lock.Unlock()

	if a.writeErr != nil {
		return a.writeErr
	}

	ts := a.timestamp()
	a.writeRec++

	if a.segWriter == nil {
		a.writeSeg++
		sw, err := startSegment(a, a.writeSeg, ts, a.writeRec)
		if err != nil {
			return a.fail(err)
		}
		a.segWriter = sw
	}

	return a.fail(a.segWriter.writeRecord(ts, data))
}

// Commit makes appended records durable and visible, rotating the segment
// once it exceeds the size limit.
func (a *Archive) Commit() error {
	a.lock.Lock()
	defer a.lock.Unlock()

	if a.writeErr != nil {
		return a.writeErr
	}
	sw := a.segWriter
	if sw == nil {
		return nil
	}
	if err := sw.commit(); err != nil {
		return a.fail(err)
	}
	if !a.noSync {
		if err := fdatasync(sw.f); err != nil {
			return a.fail(err)
		}
	}
	if sw.size >= a.maxFileSize {
		a.logger.LogAttrs(a.context, slog.LevelDebug, "archive: rotating", slog.String("arch", a.debugName), slog.Uint64("seg", uint64(sw.seg)), slog.Int64("size", sw.size))
		sw.close()
		a.segWriter = nil
	}
	return nil
}

func (a *Archive) Close() error {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.segWriter != nil {
		a.segWriter.close()
		a.segWriter = nil
	}
	return nil
}

// fail makes a write error sticky: once a segment may be half-written, no
// further records are accepted.
func (a *Archive) fail(err error) error {
	if err == nil {
		return nil
	}

	a.logger.LogAttrs(a.context, slog.LevelError, "archive: failed", slog.String("arch", a.debugName), slog.Any("err", err))

	if a.segWriter != nil {
		a.segWriter.close()
		a.segWriter = nil
	}
	if a.writeErr == nil {
		a.writeErr = err
	}
	return err
}

func (a *Archive) openFile(name string) (*os.File, error) {
	return os.OpenFile(filepath.Join(a.dir, name), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
}

func (a *Archive) checkHeader(h *segmentHeader, expectedSeq uint32) error {
	if h.Magic != magic {
		return errCorruptedFile
	}
	if expectedSeq != h.SegmentOrdinal {
		return errCorruptedFile
	}
	if h.Version > version0 {
		return ErrUnsupportedVersion
	}
	if h.ArchiveInvariant != a.invariant {
		return ErrIncompatible
	}
	return nil
}

type segmentWriter struct {
	f           *os.File
	seg         uint32
	ts          uint32
	size        int64
	hash        xxhash.Digest
	uncommitted bool
}

func startSegment(a *Archive, seg, ts uint32, rec uint64) (*segmentWriter, error) {
	name := formatSegmentName(a.fileNamePrefix, a.fileNameSuffix, seg, ts, rec)

	f, err := a.openFile(name)
	if err != nil {
		return nil, err
	}

	var ok bool
	defer closeAndDeleteUnlessOK(f, &ok)

	sw := &segmentWriter{
		f:    f,
		seg:  seg,
		ts:   ts,
		size: segmentHeaderSize,
	}
	sw.hash.Reset()

	var hbuf [segmentHeaderSize]byte
	fillSegmentHeader(hbuf[:], a, seg, ts, &sw.hash)

	_, err = f.Write(hbuf[:])
	if err != nil {
		return nil, err
	}

	ok = true
	return sw, nil
}

const maxRecHeaderLen = binary.MaxVarintLen64 + binary.MaxVarintLen32

func (sw *segmentWriter) writeRecord(ts uint32, data []byte) error {
	var tsDelta uint32
	if ts > sw.ts {
		tsDelta = ts - sw.ts
		sw.ts = ts
	}
	sw.uncommitted = true

	var hbuf [maxRecHeaderLen]byte
	h := appendRecordHeader(hbuf[:0], len(data), tsDelta)

	sw.hash.Write(h)
	_, err := sw.f.Write(h)
	if err != nil {
		return err
	}

	sw.hash.Write(data)
	_, err = sw.f.Write(data)
	if err != nil {
		return err
	}

	sw.size += int64(len(h) + len(data))
	return nil
}

func (sw *segmentWriter) commit() error {
	if !sw.uncommitted {
		return nil
	}
	sw.uncommitted = false

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], sw.hash.Sum64())
	buf[0] |= recordFlagCommit

	sw.hash.Write(buf[:])
	_, err := sw.f.Write(buf[:])
	if err != nil {
		return err
	}
	sw.size += int64(len(buf))
	return nil
}

func (sw *segmentWriter) close() {
	if sw.f == nil {
		return
	}
	sw.f.Close()
	sw.f = nil
}

func closeAndDeleteUnlessOK(f *os.File, ok *bool) {
	if *ok {
		return
	}
	f.Close()
	os.Remove(f.Name())
}

func fillSegmentHeader(buf []byte, a *Archive, seg, ts uint32, hash *xxhash.Digest) {
	h := segmentHeader{
		Magic:            magic,
		Version:          version0,
		SegmentOrdinal:   seg,
		Timestamp:        ts,
		ArchiveInvariant: a.invariant,
	}

	n, err := binary.Encode(buf[:], binary.LittleEndian, h)
	if err != nil {
		panic(err)
	}
	if n != len(buf) {
		panic("internal size mismatch")
	}

	hash.Write(buf[:segmentHeaderSize-8])
	binary.LittleEndian.PutUint64(buf[segmentHeaderSize-8:], hash.Sum64())
	hash.Write(buf[segmentHeaderSize-8 : segmentHeaderSize])
}

func appendRecordHeader(b []byte, size int, tsDelta uint32) []byte {
	b = binary.AppendUvarint(b, uint64(size)<<recordFlagShift)
	b = binary.AppendUvarint(b, uint64(tsDelta))
	return b
}

func formatSegmentName(prefix, suffix string, seq, ts uint32, id uint64) string {
	t := time.Unix(int64(uint64(ts)), 0).UTC()
	return fmt.Sprintf("%s%012d-%s-%016x%s", prefix, seq, t.Format(timestampFmt), id, suffix)
}

func parseSegmentName(name string) (seq, ts uint32, id uint64, err error) {
	seqStr, rem, ok := strings.Cut(name, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid segment file name %q", name)
	}
	v, err := strconv.ParseUint(seqStr, 10, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid segment file name %q (invalid segment number)", name)
	}
	seq = uint32(v)

	tsStr, idStr, ok := strings.Cut(rem, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid segment file name %q", name)
	}
	t, err := time.ParseInLocation(timestampFmt, tsStr, time.UTC)
	if err != nil {
		return seq, 0, 0, fmt.Errorf("invalid segment file name %q (invalid timestamp)", name)
	}
	ts = uint32(t.Unix())

	id, err = strconv.ParseUint(idStr, 16, 64)
	if err != nil {
		return seq, 0, 0, fmt.Errorf("invalid segment file name %q (invalid record identifier)", name)
	}
	return
}
