package partition

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFSStorePublishReadExists(t *testing.T) {
	store := NewFSStore(t.TempDir())
	ctx := context.Background()
	key := "raw/2026/08/25/transactions.csv"

	ok, err := store.Exists(ctx, key)
	if err != nil || ok {
		t.Fatalf("Exists before publish: ok=%v err=%v", ok, err)
	}
	if _, err := store.Read(ctx, key); !errors.Is(err, ErrNotExist) {
		t.Fatalf("Read before publish: err = %v, want ErrNotExist", err)
	}

	if err := store.Publish(ctx, key, []byte("first")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	data, err := store.Read(ctx, key)
	if err != nil || !bytes.Equal(data, []byte("first")) {
		t.Fatalf("Read: data=%q err=%v", data, err)
	}
	ok, err = store.Exists(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Exists after publish: ok=%v err=%v", ok, err)
	}
}

func TestFSStorePublishOverwrites(t *testing.T) {
	store := NewFSStore(t.TempDir())
	ctx := context.Background()
	key := "raw/2026/08/25/transactions.csv"

	for _, payload := range []string{"first", "second"} {
		if err := store.Publish(ctx, key, []byte(payload)); err != nil {
			t.Fatalf("Publish %q: %v", payload, err)
		}
	}
	data, err := store.Read(ctx, key)
	if err != nil || string(data) != "second" {
		t.Fatalf("Read after overwrite: data=%q err=%v", data, err)
	}
}

func TestFSStoreLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	store := NewFSStore(root)
	key := "raw/2026/08/25/transactions.csv"

	if err := store.Publish(context.Background(), key, []byte("payload")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	dir := filepath.Join(root, "raw", "2026", "08", "25")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("temp file %s left behind", e.Name())
		}
	}
}

func TestFSStoreHonorsCancelledContext(t *testing.T) {
	store := NewFSStore(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Publish(ctx, "raw/x", []byte("p")); !errors.Is(err, context.Canceled) {
		t.Errorf("Publish: err = %v, want context.Canceled", err)
	}
	if _, err := store.Read(ctx, "raw/x"); !errors.Is(err, context.Canceled) {
		t.Errorf("Read: err = %v, want context.Canceled", err)
	}
}
