package core

import (
	"context"
	"fmt"
	"log"

	"github.com/plantae-ai/plantae-server/internal/store"
)

// chatFallbackReply is recorded as the assistant turn when the AI backend
// fails; the user message is already stored at that point and the exchange
// still succeeds.
const chatFallbackReply = "I'm sorry, I encountered an error while processing your request. Please try again."

// Owner identifies whose chats an operation touches: an anonymous session
// token or a durable user id.
type Owner struct {
	ID            string
	Authenticated bool
}

// AIResponder is the text-generation backend as the chat service sees it:
// prior conversation plus new user text in, assistant text out. It has no
// side effects on the stores.
type AIResponder interface {
	GetChatResponse(ctx context.Context, priorMessages []store.Message, userText string) (string, error)
}

// ChatService is the conversation API exposed to the HTTP layer. It routes
// each operation to the anonymous in-process store or the durable per-user
// store depending on who the caller is.
type ChatService struct {
	anonStore store.ChatStore
	userStore store.ChatStore
	ai        AIResponder
}

func NewChatService(anonStore, userStore store.ChatStore, ai AIResponder) *ChatService {
	return &ChatService{
		anonStore: anonStore,
		userStore: userStore,
		ai:        ai,
	}
}

func (s *ChatService) storeFor(owner Owner) store.ChatStore {
	if owner.Authenticated {
		return s.userStore
	}
	return s.anonStore
}

func (s *ChatService) CreateChat(ctx context.Context, owner Owner, title string) (*store.Chat, error) {
	return s.storeFor(owner).CreateChat(ctx, owner.ID, title)
}

func (s *ChatService) ListChats(ctx context.Context, owner Owner) ([]*store.Chat, error) {
	return s.storeFor(owner).ListChats(ctx, owner.ID)
}

func (s *ChatService) GetChat(ctx context.Context, owner Owner, chatID string) (*store.Chat, error) {
	return s.storeFor(owner).GetChat(ctx, owner.ID, chatID)
}

func (s *ChatService) DeleteChat(ctx context.Context, owner Owner, chatID string) error {
	return s.storeFor(owner).DeleteChat(ctx, owner.ID, chatID)
}

// SendMessage performs one full exchange as a single logical unit: store the
// user's message, ask the AI backend for a reply with the prior conversation
// as context, and store the assistant's answer. An AI failure does not fail
// the exchange; the fallback reply is recorded instead.
func (s *ChatService) SendMessage(ctx context.Context, owner Owner, chatID, content string) (*store.Chat, error) {
	st := s.storeFor(owner)

	chat, err := st.GetChat(ctx, owner.ID, chatID)
	if err != nil {
		return nil, err
	}
	priorMessages := chat.Messages

	if _, err := st.AppendMessage(ctx, owner.ID, chatID, store.RoleUser, content); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}

	reply, err := s.ai.GetChatResponse(ctx, priorMessages, content)
	if err != nil {
		log.Printf("Error generating model response for chat %s: %v", chatID, err)
		reply = chatFallbackReply
	}

	chat, err = st.AppendMessage(ctx, owner.ID, chatID, store.RoleAssistant, reply)
	if err != nil {
		return nil, fmt.Errorf("failed to store assistant message: %w", err)
	}
	return chat, nil
}
