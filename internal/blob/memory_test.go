package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestMemoryStorePutGetRoundTrip(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	info, err := s.Put(ctx, "provenance/B-1/0.json", strings.NewReader("{}"), PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"batch": "B-1"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 2 || info.ContentType != "application/json" {
		t.Fatalf("info = %+v", info)
	}

	got, rc, err := s.Get(ctx, "provenance/B-1/0.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "{}" {
		t.Fatalf("content = %q", data)
	}
	if got.Metadata["batch"] != "B-1" {
		t.Fatalf("metadata = %v", got.Metadata)
	}
}

func TestMemoryStorePutIsCreateOnly(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	if _, err := s.Put(ctx, "k", strings.NewReader("a"), PutOptions{}); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if _, err := s.Put(ctx, "k", strings.NewReader("b"), PutOptions{}); err == nil {
		t.Fatal("expected second put to fail")
	}
}

func TestMemoryStoreListAndDelete(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	for _, key := range []string{"provenance/B-1/0.json", "provenance/B-1/1.json", "provenance/B-2/0.json"} {
		if _, err := s.Put(ctx, key, strings.NewReader("x"), PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := s.List(ctx, "provenance/B-1/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("list = %d entries, want 2", len(infos))
	}
	if infos[0].Key > infos[1].Key {
		t.Fatal("list not ordered by key")
	}

	existed, err := s.Delete(ctx, "provenance/B-2/0.json")
	if err != nil || !existed {
		t.Fatalf("delete = %t, %v", existed, err)
	}
	existed, err = s.Delete(ctx, "provenance/B-2/0.json")
	if err != nil || existed {
		t.Fatalf("second delete = %t, %v", existed, err)
	}
}

func TestMemoryStorePresignUnsupported(t *testing.T) {
	s := NewMemory()
	if _, err := s.PresignURL(context.Background(), "k", SignedURLOptions{}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
