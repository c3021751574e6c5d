package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/plantae-ai/plantae-server/internal/store"
)

func newTestSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore err: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreCreateAndGetChat(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	chat, err := s.CreateChat(ctx, "user-1", "")
	if err != nil {
		t.Fatalf("CreateChat err: %v", err)
	}
	if chat.ID == "" {
		t.Fatal("chat has no server-assigned id")
	}
	if chat.Title != store.DefaultChatTitle {
		t.Fatalf("unexpected default title: %q", chat.Title)
	}

	got, err := s.GetChat(ctx, "user-1", chat.ID)
	if err != nil {
		t.Fatalf("GetChat err: %v", err)
	}
	if got.ID != chat.ID || got.Title != chat.Title {
		t.Fatalf("roundtrip mismatch: got %+v", got)
	}
	if got.Messages == nil || len(got.Messages) != 0 {
		t.Fatalf("new chat should have an empty messages slice, got %v", got.Messages)
	}
}

func TestSQLiteStoreGetChatNotFound(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	if _, err := s.GetChat(ctx, "user-1", "missing"); !errors.Is(err, store.ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound, got %v", err)
	}
	if _, err := s.AppendMessage(ctx, "user-1", "missing", store.RoleUser, "hi"); !errors.Is(err, store.ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound, got %v", err)
	}
}

func TestSQLiteStoreChatsScopedToUser(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	chat, _ := s.CreateChat(ctx, "user-1", "mine")
	if _, err := s.GetChat(ctx, "user-2", chat.ID); !errors.Is(err, store.ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound for other user, got %v", err)
	}
}

func TestSQLiteStoreAppendAndTitleRule(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	chat, _ := s.CreateChat(ctx, "user-1", "")

	got, err := s.AppendMessage(ctx, "user-1", chat.ID, store.RoleUser, "why are my monstera leaves yellow")
	if err != nil {
		t.Fatalf("AppendMessage err: %v", err)
	}
	if len(got.Messages) != 1 {
		t.Fatalf("unexpected message count: got %d want 1", len(got.Messages))
	}
	want := "why are my monstera ..."
	if got.Title != want {
		t.Fatalf("unexpected title: got %q want %q", got.Title, want)
	}

	got, err = s.AppendMessage(ctx, "user-1", chat.ID, store.RoleAssistant, "likely overwatering")
	if err != nil {
		t.Fatalf("AppendMessage err: %v", err)
	}
	if got.Title != want {
		t.Fatalf("title changed after assignment: got %q", got.Title)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("unexpected message count: got %d want 2", len(got.Messages))
	}
	if got.Messages[0].Role != store.RoleUser || got.Messages[1].Role != store.RoleAssistant {
		t.Fatalf("messages out of order: %+v", got.Messages)
	}
	if got.UpdatedAt.Before(got.CreatedAt) {
		t.Error("updated_at went behind created_at")
	}

	// The append survives a reread.
	reread, err := s.GetChat(ctx, "user-1", chat.ID)
	if err != nil {
		t.Fatalf("GetChat err: %v", err)
	}
	if len(reread.Messages) != 2 {
		t.Fatalf("persisted message count: got %d want 2", len(reread.Messages))
	}
}

func TestSQLiteStoreListNewestUpdatedFirst(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	a, _ := s.CreateChat(ctx, "user-1", "chat a")
	time.Sleep(5 * time.Millisecond)
	b, _ := s.CreateChat(ctx, "user-1", "chat b")
	time.Sleep(5 * time.Millisecond)

	if _, err := s.AppendMessage(ctx, "user-1", a.ID, store.RoleUser, "bump"); err != nil {
		t.Fatalf("AppendMessage err: %v", err)
	}

	chats, err := s.ListChats(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListChats err: %v", err)
	}
	if len(chats) != 2 {
		t.Fatalf("unexpected chat count: got %d want 2", len(chats))
	}
	if chats[0].ID != a.ID || chats[1].ID != b.ID {
		t.Fatalf("unexpected order: got [%s %s] want [%s %s]", chats[0].ID, chats[1].ID, a.ID, b.ID)
	}
}

func TestSQLiteStoreAppendHealsMissingMessages(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	// A record written by an older or interrupted client: no messages field,
	// no timestamps.
	_, err := s.DB().ExecContext(ctx,
		"INSERT INTO user_chats (user_id, chat_id, doc, updated_at) VALUES (?, ?, ?, ?)",
		"user-1", "legacy-chat", `{"id":"legacy-chat","title":"Old Chat"}`, time.Now().UnixMilli())
	if err != nil {
		t.Fatalf("failed to seed malformed record: %v", err)
	}

	got, err := s.AppendMessage(ctx, "user-1", "legacy-chat", store.RoleUser, "still works")
	if err != nil {
		t.Fatalf("AppendMessage on malformed record err: %v", err)
	}
	if len(got.Messages) != 1 {
		t.Fatalf("unexpected message count: got %d want 1", len(got.Messages))
	}
	if got.Messages[0].Content != "still works" {
		t.Fatalf("unexpected message content: %q", got.Messages[0].Content)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatal("normalized record is missing timestamps")
	}

	// The rewritten record is fully formed on reread.
	reread, err := s.GetChat(ctx, "user-1", "legacy-chat")
	if err != nil {
		t.Fatalf("GetChat err: %v", err)
	}
	if len(reread.Messages) != 1 || reread.Title != "Old Chat" {
		t.Fatalf("healed record mismatch: %+v", reread)
	}
}

func TestSQLiteStoreGetNormalizesGarbageDoc(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := s.DB().ExecContext(ctx,
		"INSERT INTO user_chats (user_id, chat_id, doc, updated_at) VALUES (?, ?, ?, ?)",
		"user-1", "broken-chat", `not json at all`, time.Now().UnixMilli())
	if err != nil {
		t.Fatalf("failed to seed broken record: %v", err)
	}

	got, err := s.GetChat(ctx, "user-1", "broken-chat")
	if err != nil {
		t.Fatalf("GetChat on broken record err: %v", err)
	}
	if got.ID != "broken-chat" || got.Title != store.DefaultChatTitle {
		t.Fatalf("unexpected normalized chat: %+v", got)
	}
	if got.Messages == nil || len(got.Messages) != 0 {
		t.Fatalf("expected empty messages, got %v", got.Messages)
	}
}

func TestSQLiteStoreDeleteChat(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	chat, _ := s.CreateChat(ctx, "user-1", "doomed")
	if err := s.DeleteChat(ctx, "user-1", chat.ID); err != nil {
		t.Fatalf("DeleteChat err: %v", err)
	}
	if _, err := s.GetChat(ctx, "user-1", chat.ID); !errors.Is(err, store.ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound after delete, got %v", err)
	}
}

func TestSQLiteStoreUsers(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "fern@example.com", "hashed")
	if err != nil {
		t.Fatalf("CreateUser err: %v", err)
	}
	if user.ID == "" {
		t.Fatal("user has no id")
	}

	got, err := s.GetUserByEmail(ctx, "fern@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail err: %v", err)
	}
	if got == nil || got.ID != user.ID {
		t.Fatalf("user roundtrip mismatch: %+v", got)
	}

	missing, err := s.GetUserByEmail(ctx, "nobody@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail err: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown email, got %+v", missing)
	}
}
