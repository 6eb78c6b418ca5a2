package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rhuss/converser/pkg/api"
	"github.com/rhuss/converser/pkg/storage"
)

func TestAppendAndReplay(t *testing.T) {
	l := New()
	defer l.Close()
	ctx := context.Background()

	m1 := api.NewUserMessage(api.TextContent("hello"))
	m2 := api.NewAssistantMessage(api.TextContent("hi"))

	if err := l.Append(ctx, "conv-1", m1); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.Append(ctx, "conv-1", m2); err != nil {
		t.Fatalf("append: %v", err)
	}

	history, err := l.Replay(ctx, "conv-1")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	if history[0].ID != m1.ID || history[1].ID != m2.ID {
		t.Error("replay order does not match append order")
	}
}

func TestReplayUnknownConversation(t *testing.T) {
	l := New()
	defer l.Close()

	_, err := l.Replay(context.Background(), "nope")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestReplayReturnsCopy(t *testing.T) {
	l := New()
	defer l.Close()
	ctx := context.Background()

	if err := l.Append(ctx, "conv-1", api.NewUserMessage(api.TextContent("a"))); err != nil {
		t.Fatal(err)
	}
	history, _ := l.Replay(ctx, "conv-1")
	history[0].ID = "mutated"

	again, _ := l.Replay(ctx, "conv-1")
	if again[0].ID == "mutated" {
		t.Error("replay must return a copy, not the backing slice")
	}
}

func TestClosedLog(t *testing.T) {
	l := New()
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal("close must be idempotent")
	}

	ctx := context.Background()
	if err := l.Append(ctx, "c", api.NewUserMessage()); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("append after close: expected ErrClosed, got %v", err)
	}
	if _, err := l.Replay(ctx, "c"); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("replay after close: expected ErrClosed, got %v", err)
	}
}

func TestConcurrentAppends(t *testing.T) {
	l := New()
	defer l.Close()
	ctx := context.Background()

	const writers = 8
	const perWriter = 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				id := fmt.Sprintf("conv-%d", w%2)
				if err := l.Append(ctx, id, api.NewUserMessage(api.TextContent("x"))); err != nil {
					t.Errorf("append: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	h0, err := l.Replay(ctx, "conv-0")
	if err != nil {
		t.Fatal(err)
	}
	h1, err := l.Replay(ctx, "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(h0)+len(h1) != writers*perWriter {
		t.Errorf("lost appends: %d + %d != %d", len(h0), len(h1), writers*perWriter)
	}
}
