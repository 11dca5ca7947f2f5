package store

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/FocuswithJustin/TeiSync/core/errors"
	"github.com/FocuswithJustin/TeiSync/core/ir"
	"github.com/FocuswithJustin/TeiSync/core/mapping"
	"github.com/ulikunitz/xz"
)

const sampleMarkup = `<p xml:id="p1">Hello<note place="inline">greeting</note> world</p><lb n="2"/>Next`

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "renders.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	doc := mapping.Build(sampleMarkup)
	fp := ir.FingerprintString(sampleMarkup)
	if err := s.Put(ctx, fp, "sample.xml", doc); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := s.Get(ctx, fp)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Text() != doc.Text() {
		t.Errorf("Text() = %q, want %q", got.Text(), doc.Text())
	}
	if len(got.Segments()) != len(doc.Segments()) {
		t.Errorf("Segments() len = %d, want %d", len(got.Segments()), len(doc.Segments()))
	}
	if len(got.Markers()) != 1 {
		t.Fatalf("Markers() len = %d, want 1", len(got.Markers()))
	}
	for _, off := range []int{0, 5, 9} {
		want, _ := doc.DisplayToSource(off)
		have, ok := got.DisplayToSource(off)
		if !ok || have != want {
			t.Errorf("DisplayToSource(%d) = %d, %v; want %d", off, have, ok, want)
		}
	}
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), ir.FingerprintString("absent"))
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestPutRejectsBadFingerprint(t *testing.T) {
	s := openTestStore(t)
	err := s.Put(context.Background(), "not-a-hash", "x", mapping.Build("x"))
	if !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("Put() error = %v, want ErrInvalidInput", err)
	}
}

func TestPutReplaces(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	fp := ir.FingerprintString("a")

	if err := s.Put(ctx, fp, "first", mapping.Build("first")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, fp, "second", mapping.Build("second")); err != nil {
		t.Fatal(err)
	}

	entries, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name != "second" {
		t.Fatalf("List() = %+v, want one entry named second", entries)
	}
	doc, err := s.Get(ctx, fp)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Text() != "second" {
		t.Errorf("Text() = %q, want %q", doc.Text(), "second")
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	fp := ir.FingerprintString("d")

	if err := s.Put(ctx, fp, "d", mapping.Build("d")); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, fp); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, fp); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Get() after Delete error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, fp); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"old", "mid", "new"} {
		s.now = func() time.Time { return base.Add(time.Duration(i) * time.Hour) }
		if err := s.Put(ctx, ir.FingerprintString(name), name, mapping.Build(name)); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.Prune(ctx, base.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Prune() removed %d, want 2", n)
	}

	entries, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name != "new" {
		t.Errorf("List() = %+v, want only new", entries)
	}
}

func TestGetTouchesAccessTime(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fp := ir.FingerprintString("touched")

	s.now = func() time.Time { return base }
	if err := s.Put(ctx, fp, "touched", mapping.Build("touched")); err != nil {
		t.Fatal(err)
	}
	s.now = func() time.Time { return base.Add(2 * time.Hour) }
	if _, err := s.Get(ctx, fp); err != nil {
		t.Fatal(err)
	}

	n, err := s.Prune(ctx, base.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("Prune() removed %d, want 0 after access", n)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Entries != 0 || st.RawBytes != 0 {
		t.Errorf("empty Stats() = %+v", st)
	}

	for _, m := range []string{"one", sampleMarkup} {
		if err := s.Put(ctx, ir.FingerprintString(m), "", mapping.Build(m)); err != nil {
			t.Fatal(err)
		}
	}
	st, err = s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Entries != 2 {
		t.Errorf("Entries = %d, want 2", st.Entries)
	}
	if st.CompressedBytes <= 0 || st.RawBytes <= 0 {
		t.Errorf("sizes not recorded: %+v", st)
	}
	if st.Driver == "" {
		t.Error("Driver is empty")
	}
}

func TestCorruptPayload(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	fp := ir.FingerprintString("corrupt")

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO renders (fingerprint, name, payload, raw_size, created_at, accessed_at) VALUES (?, '', ?, 0, 0, 0)`,
		fp, []byte("not xz")); err != nil {
		t.Fatal(err)
	}
	_, err := s.Get(ctx, fp)
	var pe *errors.ParseError
	if !errors.As(err, &pe) {
		t.Errorf("Get() error = %v, want ParseError", err)
	}
}

func TestCompressErrors(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	fp := ir.FingerprintString("x")

	t.Run("marshal", func(t *testing.T) {
		orig := jsonMarshal
		defer func() { jsonMarshal = orig }()
		jsonMarshal = func(any) ([]byte, error) { return nil, fmt.Errorf("boom") }

		if err := s.Put(ctx, fp, "x", mapping.Build("x")); err == nil {
			t.Error("Put() should fail when encoding fails")
		}
	})

	t.Run("xz writer", func(t *testing.T) {
		orig := xzNewWriter
		defer func() { xzNewWriter = orig }()
		xzNewWriter = func(io.Writer) (*xz.Writer, error) { return nil, fmt.Errorf("no writer") }

		if err := s.Put(ctx, fp, "x", mapping.Build("x")); err == nil {
			t.Error("Put() should fail when the xz writer fails")
		}
	})

	t.Run("xz reader", func(t *testing.T) {
		if err := s.Put(ctx, fp, "x", mapping.Build("x")); err != nil {
			t.Fatal(err)
		}
		orig := xzNewReader
		defer func() { xzNewReader = orig }()
		xzNewReader = func(io.Reader) (*xz.Reader, error) { return nil, fmt.Errorf("no reader") }

		if _, err := s.Get(ctx, fp); err == nil {
			t.Error("Get() should fail when the xz reader fails")
		}
	})
}

func TestOpenReadOnly(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "renders.db")

	var ioErr *errors.IOError
	if _, err := OpenReadOnly(ctx, path); !errors.As(err, &ioErr) {
		t.Errorf("OpenReadOnly(missing) error = %v, want IOError", err)
	}

	rw, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	fp := ir.FingerprintString(sampleMarkup)
	if err := rw.Put(ctx, fp, "sample.xml", mapping.Build(sampleMarkup)); err != nil {
		t.Fatal(err)
	}
	rw.Close()

	ro, err := OpenReadOnly(ctx, path)
	if err != nil {
		t.Fatalf("OpenReadOnly() error = %v", err)
	}
	defer ro.Close()

	entries, err := ro.List(ctx)
	if err != nil || len(entries) != 1 || entries[0].Name != "sample.xml" {
		t.Errorf("List() = %+v, %v", entries, err)
	}
	if err := ro.Delete(ctx, fp); err == nil {
		t.Error("Delete() on a read-only store should fail")
	}
}
