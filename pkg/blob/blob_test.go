package blob

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/klimkalender/klimkalender-cms/pkg/whttp"
)

func TestFSBucket(t *testing.T) {
	b, err := NewFSBucket(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := b.Get(ctx, "boulderbot", "botresult.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := b.Put(ctx, "boulderbot", "botresult.json", []byte(`[1]`), "application/json"); err != nil {
		t.Fatal(err)
	}
	if err := b.Put(ctx, "boulderbot", "botresult.json", []byte(`[2]`), "application/json"); err != nil {
		t.Fatal(err)
	}
	got, err := b.Get(ctx, "boulderbot", "botresult.json")
	if err != nil || string(got) != `[2]` {
		t.Fatalf("got %q, %v", got, err)
	}
	if err := b.Delete(ctx, "boulderbot", "botresult.json"); err != nil {
		t.Fatal(err)
	}
	if err := b.Delete(ctx, "boulderbot", "botresult.json"); err != nil {
		t.Fatalf("deleting a missing object should succeed: %v", err)
	}
	if err := b.Put(ctx, "", "x", nil, ""); err == nil {
		t.Fatalf("expected error for empty bucket")
	}
}

func TestImageRef(t *testing.T) {
	tests := []struct {
		url, want string
	}{
		{"https://cdn.gripnijmegen.nl/uploads/Grip%20Games.jpg", "gripnijmegen.nl/abcdef12-Grip-Games.jpg"},
		{"https://www.klimkalender.nl/wp-content/a b%25.png", "klimkalender.nl/abcdef12-a-b-.png"},
		{"https://static.example.co.uk/", "example.co.uk/abcdef12-image"},
	}
	for _, tc := range tests {
		if got := ImageRef(tc.url, "abcdef1234567890"); got != tc.want {
			t.Errorf("ImageRef(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}

func TestUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer srv.Close()

	b, err := NewFSBucket(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	u := NewImageUploader(b, whttp.NewClient(whttp.Options{Retries: -1}))
	ctx := context.Background()

	ref, err := u.Upload(ctx, srv.URL+"/comp.png")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !strings.HasPrefix(ref, "127.0.0.1/") || !strings.HasSuffix(ref, "-comp.png") {
		t.Fatalf("unexpected ref %q", ref)
	}
	data, err := b.Get(ctx, ImageBucket, ref)
	if err != nil || !reflect.DeepEqual(data, []byte{0x89, 'P', 'N', 'G'}) {
		t.Fatalf("stored %v, %v", data, err)
	}
	if err := u.Delete(ctx, ref); err != nil {
		t.Fatal(err)
	}
	if _, err := u.Upload(ctx, srv.URL+"/missing.png"); err == nil {
		t.Fatalf("expected error for missing image")
	}
}

func TestUploadWithoutContentType(t *testing.T) {
	jpeg := []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01, 0x01, 0xc8, 0xe9, 0xfe}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		w.Write(jpeg)
	}))
	defer srv.Close()

	b, err := NewFSBucket(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	u := NewImageUploader(b, whttp.NewClient(whttp.Options{Retries: -1}))
	ctx := context.Background()

	ref, err := u.Upload(ctx, srv.URL+"/uploads/poster")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	data, err := b.Get(ctx, ImageBucket, ref)
	if err != nil || !reflect.DeepEqual(data, jpeg) {
		t.Fatalf("stored % x, %v", data, err)
	}
}

func TestResultRoundTrip(t *testing.T) {
	b, err := NewFSBucket(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := LoadResult(ctx, b); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := SaveResult(ctx, b, nil); err != nil {
		t.Fatal(err)
	}
	raw, _ := b.Get(ctx, ResultBucket, ResultKey)
	if string(raw) != "[]" {
		t.Fatalf("empty batch stored as %q", raw)
	}
}
