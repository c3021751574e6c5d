package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore is the durable per-user chat store. Each chat is persisted as
// a whole JSON document alongside an updated_at column for the descending
// list query; updates always overwrite the full record, so a document that
// lost fields to a partial write self-heals on the next append.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle so other components (the usage ledger)
// can share the same database file.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY, -- UUID
        email TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS user_chats (
        user_id TEXT NOT NULL,
        chat_id TEXT NOT NULL, -- UUID
        doc TEXT NOT NULL,     -- full Chat record as JSON
        updated_at INTEGER NOT NULL,
        PRIMARY KEY (user_id, chat_id)
    );

    CREATE INDEX IF NOT EXISTS idx_user_chats_updated
        ON user_chats (user_id, updated_at DESC);
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods

type User struct {
	ID           string    `json:"id"` // UUID
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Do not expose this in JSON responses
	CreatedAt    time.Time `json:"created_at"`
}

func (s *SQLiteStore) CreateUser(ctx context.Context, email, passwordHash string) (*User, error) {
	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)",
		user.ID, user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, password_hash, created_at FROM users WHERE email = ?", email).
		Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, password_hash, created_at FROM users WHERE id = ?", id).
		Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &user, nil
}

// Chat methods (ChatStore implementation; ownerID is the user id)

func (s *SQLiteStore) CreateChat(ctx context.Context, ownerID, title string) (*Chat, error) {
	if title == "" {
		title = DefaultChatTitle
	}

	now := time.Now().UTC()
	chat := &Chat{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []Message{},
	}

	doc, err := json.Marshal(chat)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO user_chats (user_id, chat_id, doc, updated_at) VALUES (?, ?, ?, ?)",
		ownerID, chat.ID, string(doc), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("%w: insert chat: %v", ErrStoreUnavailable, err)
	}
	return chat, nil
}

func (s *SQLiteStore) ListChats(ctx context.Context, ownerID string) ([]*Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT chat_id, doc FROM user_chats WHERE user_id = ? ORDER BY updated_at DESC",
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: query chats: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	chats := make([]*Chat, 0)
	for rows.Next() {
		var chatID, doc string
		if err := rows.Scan(&chatID, &doc); err != nil {
			return nil, fmt.Errorf("%w: scan chat row: %v", ErrStoreUnavailable, err)
		}
		chats = append(chats, decodeChatDoc(chatID, doc))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate chats: %v", ErrStoreUnavailable, err)
	}
	return chats, nil
}

func (s *SQLiteStore) GetChat(ctx context.Context, ownerID, chatID string) (*Chat, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		"SELECT doc FROM user_chats WHERE user_id = ? AND chat_id = ?",
		ownerID, chatID).Scan(&doc)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("%w: get chat: %v", ErrStoreUnavailable, err)
	}
	return decodeChatDoc(chatID, doc), nil
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, ownerID, chatID, role, content string) (*Chat, error) {
	chat, err := s.GetChat(ctx, ownerID, chatID)
	if err != nil {
		return nil, err
	}

	msg := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	chat.Messages = append(chat.Messages, msg)
	chat.UpdatedAt = msg.CreatedAt
	applyTitleRule(chat, msg)

	doc, err := json.Marshal(chat)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat: %w", err)
	}

	// Whole-record overwrite: the normalized document replaces whatever was
	// stored, repairing records that were missing fields.
	res, err := s.db.ExecContext(ctx,
		"UPDATE user_chats SET doc = ?, updated_at = ? WHERE user_id = ? AND chat_id = ?",
		string(doc), chat.UpdatedAt.UnixMilli(), ownerID, chatID)
	if err != nil {
		return nil, fmt.Errorf("%w: update chat: %v", ErrStoreUnavailable, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, ErrChatNotFound
	}
	return chat, nil
}

func (s *SQLiteStore) DeleteChat(ctx context.Context, ownerID, chatID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM user_chats WHERE user_id = ? AND chat_id = ?", ownerID, chatID)
	if err != nil {
		return fmt.Errorf("%w: delete chat: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// decodeChatDoc unmarshals a stored chat document, repairing what it can.
// A document with a missing or malformed messages field is treated as a chat
// with no messages rather than an error; absent timestamps default to now.
// The repaired shape is persisted by the next whole-record write.
func decodeChatDoc(chatID, doc string) *Chat {
	var chat Chat
	if err := json.Unmarshal([]byte(doc), &chat); err != nil {
		chat = Chat{}
	}

	chat.ID = chatID
	if chat.Title == "" {
		chat.Title = DefaultChatTitle
	}
	now := time.Now().UTC()
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now
	}
	if chat.UpdatedAt.IsZero() {
		chat.UpdatedAt = now
	}
	if chat.Messages == nil {
		chat.Messages = []Message{}
	}
	return &chat
}
