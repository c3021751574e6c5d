package store

import (
	"context"
	"errors"
)

var (
	// ErrChatNotFound means the chat id does not exist for the owner.
	// Definitive: callers surface it, they do not retry.
	ErrChatNotFound = errors.New("chat not found")

	// ErrStoreUnavailable wraps transient backend failures. Safe to retry.
	ErrStoreUnavailable = errors.New("chat store unavailable")
)

// ChatStore is the capability set shared by the anonymous in-process store
// and the durable per-user store. ownerID is an anonymous session token for
// the former and a user id for the latter.
type ChatStore interface {
	CreateChat(ctx context.Context, ownerID, title string) (*Chat, error)
	ListChats(ctx context.Context, ownerID string) ([]*Chat, error)
	GetChat(ctx context.Context, ownerID, chatID string) (*Chat, error)
	AppendMessage(ctx context.Context, ownerID, chatID, role, content string) (*Chat, error)
	DeleteChat(ctx context.Context, ownerID, chatID string) error
}
