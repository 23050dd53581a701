package docstore

import (
	"log/slog"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/andreyvit/doctable/archive"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testLogger(t testing.TB) *slog.Logger {
	return slog.New(slog.NewTextHandler(&logWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func setupBolt(t testing.TB, opt Options) *Store {
	t.Helper()
	fn := filepath.Join(t.TempDir(), "store.db")
	t.Logf("DB: %s", fn)
	opt.IsTesting = true
	opt.Verbose = true
	if opt.Logger == nil {
		opt.Logger = testLogger(t)
	}
	s := must(Open(fn, opt))
	t.Cleanup(func() { s.Close() })
	return s
}

func setupMem(t testing.TB, opt Options) *Store {
	opt.Verbose = true
	if opt.Logger == nil {
		opt.Logger = testLogger(t)
	}
	s := OpenMemory(opt)
	t.Cleanup(func() { s.Close() })
	return s
}

// eachBackend runs f against a Bolt store and an in-memory store.
func eachBackend(t *testing.T, opt Options, f func(t *testing.T, s *Store)) {
	t.Run("bolt", func(t *testing.T) { f(t, setupBolt(t, opt)) })
	t.Run("mem", func(t *testing.T) { f(t, setupMem(t, opt)) })
}

func setupArchive(t testing.TB, now *time.Time) *archive.Archive {
	a := must(archive.Open(t.TempDir(), archive.Options{
		NoSync: true,
		Now:    func() time.Time { return *now },
		Logger: testLogger(t),
	}))
	t.Cleanup(func() { a.Close() })
	return a
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func isempty[T any, S ~[]T](t testing.TB, a S) {
	if len(a) > 0 {
		t.Helper()
		t.Errorf("** got %v, wanted empty slice", a)
	}
}

func ensure(err error) {
	if err != nil {
		panic(err)
	}
}

type logWriter struct{ t testing.TB }

func (c *logWriter) Write(buf []byte) (int, error) {
	c.t.Log(strings.TrimSuffix(string(buf), "\n"))
	return len(buf), nil
}
