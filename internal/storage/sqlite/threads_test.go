package sqlite

import (
	"context"
	"fmt"
	"testing"

	"github.com/untoldecay/LoreVault/internal/types"
)

func TestThreadPushAutoCreatesAndSequences(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	e1, err := store.ThreadPush(ctx, "t1", "proj", "main", "user", "first")
	if err != nil {
		t.Fatalf("ThreadPush failed: %v", err)
	}
	if e1.Seq != 1 {
		t.Errorf("seq = %d, want 1", e1.Seq)
	}
	e2, err := store.ThreadPush(ctx, "t1", "proj", "main", "assistant", "second")
	if err != nil {
		t.Fatal(err)
	}
	if e2.Seq != 2 {
		t.Errorf("seq = %d, want 2", e2.Seq)
	}
	if e1.ThreadID != e2.ThreadID {
		t.Error("pushes to the same name produced different threads")
	}

	threads, err := store.ThreadList(ctx, "t1", "proj")
	if err != nil {
		t.Fatal(err)
	}
	if len(threads) != 1 || threads[0].EntryCount != 2 {
		t.Errorf("threads = %+v, want one thread with 2 entries", threads)
	}
}

func TestThreadReadChronologicalTail(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if _, err := store.ThreadPush(ctx, "t1", "proj", "main", "user", fmt.Sprintf("msg %d", i)); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := store.ThreadRead(ctx, "t1", "proj", "main", 3)
	if err != nil {
		t.Fatalf("ThreadRead failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	for i, want := range []int{3, 4, 5} {
		if entries[i].Seq != want {
			t.Errorf("entries[%d].Seq = %d, want %d", i, entries[i].Seq, want)
		}
	}
}

func TestThreadReadMissing(t *testing.T) {
	store := setupTestStore(t)
	_, err := store.ThreadRead(context.Background(), "t1", "proj", "nope", 10)
	if !types.IsKind(err, types.KindNotFound) {
		t.Errorf("kind = %v, want not_found", types.KindOf(err))
	}
}

func TestThreadSeek(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.ThreadPush(ctx, "t1", "proj", "main", "user", "we discussed authentication flows"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.ThreadPush(ctx, "t1", "proj", "main", "user", "unrelated grocery list"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.ThreadPush(ctx, "t2", "proj", "main", "user", "authentication in another tenant"); err != nil {
		t.Fatal(err)
	}

	hits, err := store.ThreadSeek(ctx, "t1", "proj", "authentication", 10)
	if err != nil {
		t.Fatalf("ThreadSeek failed: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if hits[0].Content != "we discussed authentication flows" {
		t.Errorf("hit = %q", hits[0].Content)
	}
}
