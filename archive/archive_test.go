package archive_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/andreyvit/doctable/archive"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type testArchive struct {
	*archive.Archive
	t   testing.TB
	dir string
	now time.Time
}

func openTest(t testing.TB, dir string, o archive.Options) *testArchive {
	t.Helper()
	ta := &testArchive{t: t, dir: dir, now: start}
	o.FileName = "a*.bin"
	o.Now = func() time.Time { return ta.now }
	o.Logger = slog.New(slog.NewTextHandler(&logWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ta.Archive = must(archive.Open(dir, o))
	t.Cleanup(func() { ta.Close() })
	return ta
}

func (ta *testArchive) datas() []string {
	var out []string
	for _, rec := range must(ta.Records(context.Background())) {
		out = append(out, string(rec.Data))
	}
	return out
}

func (ta *testArchive) fileNames() []string {
	var names []string
	for _, ent := range must(os.ReadDir(ta.dir)) {
		names = append(names, ent.Name())
	}
	slices.Sort(names)
	return names
}

func TestArchive_trivial(t *testing.T) {
	a := openTest(t, t.TempDir(), archive.Options{})
	ensure(a.Append([]byte("hello")))
	ensure(a.Append([]byte("w")))
	a.now = a.now.Add(1000 * time.Second)
	ensure(a.Append([]byte("orld")))
	ensure(a.Commit())

	deepEq(t, a.fileNames(), []string{"a000000000001-20240101T000000-0000000000000001.bin"})

	recs := must(a.Records(context.Background()))
	deepEq(t, len(recs), 3)
	deepEq(t, string(recs[0].Data), "hello")
	deepEq(t, recs[0].Time, start)
	deepEq(t, string(recs[2].Data), "orld")
	deepEq(t, recs[2].Time, start.Add(1000*time.Second))
	deepEq(t, recs[2].Segment, uint32(1))
}

func TestArchive_uncommittedInvisible(t *testing.T) {
	a := openTest(t, t.TempDir(), archive.Options{NoSync: true})
	ensure(a.Append([]byte("one")))
	ensure(a.Commit())
	ensure(a.Append([]byte("two")))

	deepEq(t, a.datas(), []string{"one"})

	ensure(a.Commit())
	deepEq(t, a.datas(), []string{"one", "two"})
}

func TestArchive_emptyRecordIgnored(t *testing.T) {
	a := openTest(t, t.TempDir(), archive.Options{NoSync: true})
	ensure(a.Append(nil))
	ensure(a.Commit())
	deepEq(t, a.fileNames(), []string(nil))
	deepEq(t, a.datas(), []string(nil))
}

func TestArchive_reopenStartsNewSegment(t *testing.T) {
	dir := t.TempDir()
	a := openTest(t, dir, archive.Options{NoSync: true})
	ensure(a.Append([]byte("a")))
	ensure(a.Append([]byte("b")))
	ensure(a.Append([]byte("c")))
	ensure(a.Commit())
	ensure(a.Close())

	b := openTest(t, dir, archive.Options{NoSync: true})
	b.now = b.now.Add(time.Hour)
	ensure(b.Append([]byte("d")))
	ensure(b.Commit())

	deepEq(t, b.fileNames(), []string{
		"a000000000001-20240101T000000-0000000000000001.bin",
		"a000000000002-20240101T010000-0000000000000004.bin",
	})
	deepEq(t, b.datas(), []string{"a", "b", "c", "d"})
}

func TestArchive_rotation(t *testing.T) {
	a := openTest(t, t.TempDir(), archive.Options{NoSync: true, MaxFileSize: 200})
	payload := strings.Repeat("x", 100)
	ensure(a.Append([]byte(payload)))
	ensure(a.Commit())
	ensure(a.Append([]byte(payload)))
	ensure(a.Commit())

	deepEq(t, len(a.fileNames()), 2)
	deepEq(t, a.datas(), []string{payload, payload})
}

func TestArchive_truncatedTail(t *testing.T) {
	a := openTest(t, t.TempDir(), archive.Options{NoSync: true})
	ensure(a.Append([]byte("kept")))
	ensure(a.Commit())
	ensure(a.Append([]byte("lost")))
	ensure(a.Commit())
	ensure(a.Close())

	fn := filepath.Join(a.dir, a.fileNames()[0])
	data := must(os.ReadFile(fn))
	ensure(os.WriteFile(fn, data[:len(data)-3], 0o644))

	deepEq(t, a.datas(), []string{"kept"})
}

func TestArchive_flippedByte(t *testing.T) {
	a := openTest(t, t.TempDir(), archive.Options{NoSync: true})
	ensure(a.Append([]byte("first")))
	ensure(a.Commit())
	ensure(a.Append([]byte("second")))
	ensure(a.Commit())
	ensure(a.Close())

	fn := filepath.Join(a.dir, a.fileNames()[0])
	data := must(os.ReadFile(fn))
	i := strings.LastIndex(string(data), "second")
	data[i] = 'S'
	ensure(os.WriteFile(fn, data, 0o644))

	deepEq(t, a.datas(), []string{"first"})
}

func TestArchive_openDeletesCorruptedSegment(t *testing.T) {
	dir := t.TempDir()
	bad := "a000000000005-20240101T000000-0000000000000009.bin"
	ensure(os.WriteFile(filepath.Join(dir, bad), []byte("garbage"), 0o644))

	a := openTest(t, dir, archive.Options{NoSync: true})
	deepEq(t, a.fileNames(), []string(nil))

	ensure(a.Append([]byte("x")))
	ensure(a.Commit())
	deepEq(t, a.fileNames(), []string{"a000000000001-20240101T000000-0000000000000001.bin"})
}

func TestArchive_incompatibleInvariant(t *testing.T) {
	dir := t.TempDir()
	a := openTest(t, dir, archive.Options{NoSync: true, Invariant: [32]byte{1}})
	ensure(a.Append([]byte("x")))
	ensure(a.Commit())
	ensure(a.Close())

	_, err := archive.Open(dir, archive.Options{FileName: "a*.bin", Invariant: [32]byte{2}})
	if err == nil {
		t.Fatalf("Open with a different invariant succeeded, wanted ErrIncompatible")
	}
}

type logWriter struct{ t testing.TB }

func (c *logWriter) Write(buf []byte) (int, error) {
	c.t.Log(strings.TrimSuffix(string(buf), "\n"))
	return len(buf), nil
}

func deepEq[T any](t testing.TB, a, e T) bool {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
		return false
	}
	return true
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func ensure(err error) {
	if err != nil {
		panic(err)
	}
}
