package core_test

import (
	"context"
	"errors"
	"testing"

	"github.com/plantae-ai/plantae-server/internal/core"
	"github.com/plantae-ai/plantae-server/internal/store"
)

type fakeResponder struct {
	reply string
	err   error
	calls int
}

func (f *fakeResponder) GetChatResponse(_ context.Context, _ []store.Message, _ string) (string, error) {
	f.calls++
	return f.reply, f.err
}

func TestSendMessageAppendsBothTurns(t *testing.T) {
	anon := store.NewMemoryStore()
	ai := &fakeResponder{reply: "water it weekly"}
	svc := core.NewChatService(anon, store.NewMemoryStore(), ai)
	ctx := context.Background()
	owner := core.Owner{ID: "sess-1"}

	chat, err := svc.CreateChat(ctx, owner, "")
	if err != nil {
		t.Fatalf("CreateChat err: %v", err)
	}

	got, err := svc.SendMessage(ctx, owner, chat.ID, "how often should I water basil")
	if err != nil {
		t.Fatalf("SendMessage err: %v", err)
	}

	if len(got.Messages) != 2 {
		t.Fatalf("unexpected message count: got %d want 2", len(got.Messages))
	}
	if got.Messages[0].Role != store.RoleUser || got.Messages[0].Content != "how often should I water basil" {
		t.Fatalf("unexpected user turn: %+v", got.Messages[0])
	}
	if got.Messages[1].Role != store.RoleAssistant || got.Messages[1].Content != "water it weekly" {
		t.Fatalf("unexpected assistant turn: %+v", got.Messages[1])
	}
	if ai.calls != 1 {
		t.Fatalf("AI called %d times, want 1", ai.calls)
	}
}

func TestSendMessageRecordsFallbackOnAIFailure(t *testing.T) {
	anon := store.NewMemoryStore()
	ai := &fakeResponder{err: errors.New("backend down")}
	svc := core.NewChatService(anon, store.NewMemoryStore(), ai)
	ctx := context.Background()
	owner := core.Owner{ID: "sess-1"}

	chat, _ := svc.CreateChat(ctx, owner, "")

	got, err := svc.SendMessage(ctx, owner, chat.ID, "is my plant dying")
	if err != nil {
		t.Fatalf("SendMessage should not fail on AI error, got: %v", err)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("unexpected message count: got %d want 2", len(got.Messages))
	}
	if got.Messages[1].Role != store.RoleAssistant || got.Messages[1].Content == "" {
		t.Fatalf("expected a fallback assistant turn, got %+v", got.Messages[1])
	}
}

func TestSendMessageUnknownChat(t *testing.T) {
	svc := core.NewChatService(store.NewMemoryStore(), store.NewMemoryStore(), &fakeResponder{})
	ctx := context.Background()

	_, err := svc.SendMessage(ctx, core.Owner{ID: "sess-1"}, "missing", "hello")
	if !errors.Is(err, store.ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound, got %v", err)
	}
}

func TestOwnerSelectsStore(t *testing.T) {
	anon := store.NewMemoryStore()
	durable := store.NewMemoryStore()
	svc := core.NewChatService(anon, durable, &fakeResponder{reply: "ok"})
	ctx := context.Background()

	if _, err := svc.CreateChat(ctx, core.Owner{ID: "sess-1"}, "anon chat"); err != nil {
		t.Fatalf("CreateChat err: %v", err)
	}
	if _, err := svc.CreateChat(ctx, core.Owner{ID: "user-1", Authenticated: true}, "user chat"); err != nil {
		t.Fatalf("CreateChat err: %v", err)
	}

	anonChats, _ := anon.ListChats(ctx, "sess-1")
	durableChats, _ := durable.ListChats(ctx, "user-1")
	if len(anonChats) != 1 || anonChats[0].Title != "anon chat" {
		t.Fatalf("anonymous store contents wrong: %+v", anonChats)
	}
	if len(durableChats) != 1 || durableChats[0].Title != "user chat" {
		t.Fatalf("durable store contents wrong: %+v", durableChats)
	}
}
