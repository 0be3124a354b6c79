package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mzhao28/medichat/internal/ai"
	"github.com/mzhao28/medichat/internal/common"
)

// ContextRetriever turns a user's uploaded documents plus a query into a
// grounding context string. Empty result means no usable context.
type ContextRetriever interface {
	Retrieve(userID uint64, query string, topK int) string
}

type Service struct {
	repo          *Repo
	registry      *ai.Registry
	providerName  string
	model         string
	retriever     ContextRetriever
	retrievalTopK int
	contextWindow int
}

func NewService(repo *Repo, registry *ai.Registry, providerName, model string, contextWindowSize int) *Service {
	if contextWindowSize <= 0 || contextWindowSize > 100 {
		contextWindowSize = 20
	}
	return &Service{
		repo:          repo,
		registry:      registry,
		providerName:  providerName,
		model:         model,
		contextWindow: contextWindowSize,
		retrievalTopK: 3,
	}
}

// WithRetriever attaches document grounding. Nil disables it.
func (s *Service) WithRetriever(r ContextRetriever, topK int) *Service {
	s.retriever = r
	if topK > 0 {
		s.retrievalTopK = topK
	}
	return s
}

func (s *Service) CreateConversation(ctx context.Context, userID uint64, title string) (*Conversation, error) {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}

	conv := &Conversation{
		ConversationID: id,
		UserID:         userID,
		Title:          title,
		LastUpdated:    time.Now(),
	}
	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// EnsureConversation resolves the target conversation for an inbound message:
// an empty id creates a fresh conversation, a given id must belong to userID.
func (s *Service) EnsureConversation(ctx context.Context, userID uint64, conversationID string) (string, error) {
	if conversationID == "" {
		conv, err := s.CreateConversation(ctx, userID, "")
		if err != nil {
			return "", err
		}
		return conv.ConversationID, nil
	}
	if err := s.ValidateConversationOwner(ctx, userID, conversationID); err != nil {
		return "", err
	}
	return conversationID, nil
}

func (s *Service) ValidateConversationOwner(ctx context.Context, userID uint64, conversationID string) error {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.UserID != userID {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AppendMessage records one transcript entry with all its side effects
// (conversation bump, recent-query upsert for user messages) atomically.
func (s *Service) AppendMessage(ctx context.Context, userID uint64, conversationID, role, content string) (*Message, error) {
	m := &Message{
		UserID:         userID,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	}
	if err := s.repo.AppendMessage(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) buildPrompt(ctx context.Context, userID uint64, conversationID, query string) ([]ai.Message, error) {
	recentDesc, err := s.repo.ListRecentMessagesDesc(ctx, conversationID, s.contextWindow)
	if err != nil {
		return nil, err
	}

	msgs := make([]ai.Message, 0, len(recentDesc)+1)

	if s.retriever != nil {
		if docCtx := s.retriever.Retrieve(userID, query, s.retrievalTopK); docCtx != "" {
			msgs = append(msgs, ai.Message{
				Role:    "system",
				Content: "Use the following reference material when answering:\n" + docCtx,
			})
		}
	}

	// reverse to ASC (oldest -> newest)
	for i := len(recentDesc) - 1; i >= 0; i-- {
		m := recentDesc[i]
		msgs = append(msgs, ai.Message{Role: m.Role, Content: m.Content})
	}
	return msgs, nil
}

// SendMessage stores the user message, generates a reply, and stores the
// assistant message. An empty conversationID starts a new conversation; its
// id is always returned.
func (s *Service) SendMessage(ctx context.Context, userID uint64, conversationID, content string) (string, string, error) {
	conversationID, err := s.EnsureConversation(ctx, userID, conversationID)
	if err != nil {
		return "", "", err
	}

	provider, err := s.registry.Get(ctx, s.providerName, s.model)
	if err != nil {
		return "", "", err
	}

	if _, err := s.AppendMessage(ctx, userID, conversationID, RoleUser, content); err != nil {
		return "", "", err
	}

	promptMsgs, err := s.buildPrompt(ctx, userID, conversationID, content)
	if err != nil {
		return "", "", err
	}

	reply, err := provider.Chat(ctx, promptMsgs)
	if err != nil {
		return "", "", err
	}

	if _, err := s.AppendMessage(ctx, userID, conversationID, RoleAssistant, reply); err != nil {
		return "", "", err
	}

	return conversationID, reply, nil
}

// SendMessageStream stores the user message immediately, streams assistant
// chunks, and stores the full assistant message once streaming completes.
// The conversation must already exist and belong to userID.
func (s *Service) SendMessageStream(ctx context.Context, userID uint64, conversationID, content string) (<-chan string, <-chan struct{}, <-chan error) {
	outChunks := make(chan string, 16)
	outDone := make(chan struct{})
	outErrs := make(chan error, 1)

	go func() {
		defer close(outChunks)
		defer close(outDone)
		defer close(outErrs)

		if err := s.ValidateConversationOwner(ctx, userID, conversationID); err != nil {
			outErrs <- err
			return
		}

		provider, err := s.registry.Get(ctx, s.providerName, s.model)
		if err != nil {
			outErrs <- err
			return
		}
		sp, ok := provider.(ai.StreamProvider)
		if !ok {
			outErrs <- errors.New("provider does not support streaming")
			return
		}

		if _, err := s.AppendMessage(ctx, userID, conversationID, RoleUser, content); err != nil {
			outErrs <- err
			return
		}

		promptMsgs, err := s.buildPrompt(ctx, userID, conversationID, content)
		if err != nil {
			outErrs <- err
			return
		}

		pChunks, pErrs := sp.StreamChat(ctx, promptMsgs)

		var b strings.Builder
		for c := range pChunks {
			b.WriteString(c)
			outChunks <- c
		}

		select {
		case err := <-pErrs:
			if err != nil {
				outErrs <- err
				return
			}
		default:
		}

		if _, err := s.AppendMessage(ctx, userID, conversationID, RoleAssistant, b.String()); err != nil {
			outErrs <- err
			return
		}
	}()

	return outChunks, outDone, outErrs
}

// GetConversationHistory returns the full transcript in ascending time order.
func (s *Service) GetConversationHistory(ctx context.Context, userID uint64, conversationID string) ([]Message, error) {
	if err := s.ValidateConversationOwner(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return s.repo.ListConversationMessages(ctx, conversationID)
}

func (s *Service) ListRecentConversations(ctx context.Context, userID uint64, limit int) ([]ConversationSummary, error) {
	return s.repo.ListRecentConversations(ctx, userID, limit)
}

func (s *Service) ListFavoriteConversations(ctx context.Context, userID uint64, limit int) ([]ConversationSummary, error) {
	return s.repo.ListFavoriteConversations(ctx, userID, limit)
}

func (s *Service) ToggleFavoriteConversation(ctx context.Context, conversationID string) (bool, error) {
	return s.repo.ToggleFavorite(ctx, conversationID)
}

func (s *Service) UpdateConversationTitle(ctx context.Context, conversationID, title string) (bool, error) {
	return s.repo.UpdateTitle(ctx, conversationID, title)
}

func (s *Service) AddFavoriteQuery(ctx context.Context, userID uint64, query string) (bool, error) {
	return s.repo.AddFavoriteQuery(ctx, userID, query)
}

func (s *Service) RemoveFavoriteQuery(ctx context.Context, userID uint64, query string) (bool, error) {
	return s.repo.RemoveFavoriteQuery(ctx, userID, query)
}

func (s *Service) ListFavoriteQueries(ctx context.Context, userID uint64, limit int) ([]string, error) {
	return s.repo.ListFavoriteQueries(ctx, userID, limit)
}

func (s *Service) ListRecentQueries(ctx context.Context, userID uint64, limit int) ([]RecentQuery, error) {
	return s.repo.ListRecentQueries(ctx, userID, limit)
}

func (s *Service) GetUserStats(ctx context.Context, userID uint64) (*UserStats, error) {
	return s.repo.UserStats(ctx, userID)
}
