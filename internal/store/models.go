package store

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	// DefaultChatTitle is the placeholder a chat carries until its first
	// user message rewrites it.
	DefaultChatTitle = "New Chat"

	titleMaxLen = 20
)

type Message struct {
	ID        string    `json:"id"` // UUID
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Chat struct {
	ID        string    `json:"id"` // UUID
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages"`
}

// TitleFromContent derives a chat title from the first user message: a
// prefix of the content, with an ellipsis when truncated.
func TitleFromContent(content string) string {
	runes := []rune(content)
	if len(runes) > titleMaxLen {
		return string(runes[:titleMaxLen]) + "..."
	}
	return content
}

func userMessageCount(messages []Message) int {
	n := 0
	for _, m := range messages {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}

// applyTitleRule rewrites the default title exactly once: when the message
// just appended is the chat's first user-role message. The count is taken
// after the append, so a chat whose record arrived without any messages
// still gets titled by the first user message written to it.
func applyTitleRule(chat *Chat, appended Message) {
	if chat.Title != DefaultChatTitle || appended.Role != RoleUser {
		return
	}
	if userMessageCount(chat.Messages) == 1 {
		chat.Title = TitleFromContent(appended.Content)
	}
}
