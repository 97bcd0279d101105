package chat

import (
	"context"
	"errors"
	"log"
	"sort"

	"github.com/hqkang/chatvault/internal/common"
)

// Cache is the read-through cache the service consults for session metadata
// and message pages. A nil cache disables caching (worker and tests).
// Implementations report a miss with ok=false; errors are treated as misses.
type Cache interface {
	GetSessions(ctx context.Context) ([]Session, bool, error)
	SetSessions(ctx context.Context, sessions []Session) error
	GetPage(ctx context.Context, chatID string, page, size int) ([]Message, bool, error)
	SetPage(ctx context.Context, chatID string, page, size int, msgs []Message) error
	// InvalidateChat drops every cached page of the chat and the sessions
	// metadata entry. Called synchronously from every mutation.
	InvalidateChat(ctx context.Context, chatID string) error
}

type Service struct {
	repo        *Repo
	cache       Cache
	pageSize    int
	maxPageSize int
}

func NewService(repo *Repo, cache Cache, defaultPageSize, maxPageSize int) *Service {
	if maxPageSize <= 0 {
		maxPageSize = 200
	}
	if defaultPageSize <= 0 {
		defaultPageSize = 50
	}
	if defaultPageSize > maxPageSize {
		defaultPageSize = maxPageSize
	}
	return &Service{repo: repo, cache: cache, pageSize: defaultPageSize, maxPageSize: maxPageSize}
}

// CreateSession makes a new empty chat with a ULID chat_id. Sessions are
// normally created by the producing system; this exists for the HTTP surface.
func (s *Service) CreateSession(ctx context.Context, model string) (*Session, error) {
	chatID, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	session := &Session{
		ChatID: chatID,
		Model:  model,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	s.invalidate(ctx, chatID)
	return session, nil
}

func (s *Service) GetSession(ctx context.Context, chatID string) (*Session, error) {
	return s.repo.GetSession(ctx, chatID)
}

// ListSessions returns session metadata newest first, read through the cache.
func (s *Service) ListSessions(ctx context.Context) ([]Session, error) {
	if s.cache != nil {
		if sessions, ok, err := s.cache.GetSessions(ctx); err == nil && ok {
			return sessions, nil
		}
	}
	sessions, err := s.repo.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetSessions(ctx, sessions); err != nil {
			log.Printf("cache set sessions err=%v", err)
		}
	}
	return sessions, nil
}

func (s *Service) normalizeSize(size int) int {
	if size <= 0 || size > s.maxPageSize {
		return s.pageSize
	}
	return size
}

// Page returns page p (1-based) of the chat's ordered messages. Out-of-range
// pages yield an empty slice; clamping to the last page is the caller's call.
func (s *Service) Page(ctx context.Context, chatID string, page, size int) ([]Message, error) {
	if page < 1 {
		page = 1
	}
	size = s.normalizeSize(size)

	if s.cache != nil {
		if msgs, ok, err := s.cache.GetPage(ctx, chatID, page, size); err == nil && ok {
			return msgs, nil
		}
	}
	msgs, err := s.repo.ListMessagesPage(ctx, chatID, (page-1)*size, size)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetPage(ctx, chatID, page, size, msgs); err != nil {
			log.Printf("cache set page chat=%s page=%d err=%v", chatID, page, err)
		}
	}
	return msgs, nil
}

// TotalPages is ceil(message_count/size), 0 for an empty chat. It reads the
// denormalized counter, not COUNT(*).
func (s *Service) TotalPages(ctx context.Context, chatID string, size int) (int, error) {
	size = s.normalizeSize(size)
	sess, err := s.repo.GetSession(ctx, chatID)
	if err != nil {
		return 0, err
	}
	return int((sess.MessageCount + int64(size) - 1) / int64(size)), nil
}

func (s *Service) InsertMessage(ctx context.Context, chatID, role, content string, after *int64) (*Message, error) {
	m, err := s.repo.InsertMessage(ctx, chatID, role, content, after)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, chatID)
	return m, nil
}

func (s *Service) UpdateMessage(ctx context.Context, chatID string, id int64, content string) error {
	if err := s.repo.UpdateMessageContent(ctx, chatID, id, content); err != nil {
		return err
	}
	s.invalidate(ctx, chatID)
	return nil
}

func (s *Service) DeleteMessage(ctx context.Context, chatID string, id int64) error {
	if err := s.repo.DeleteMessage(ctx, chatID, id); err != nil {
		return err
	}
	s.invalidate(ctx, chatID)
	return nil
}

// Renormalize re-spaces a chat's order keys (maintenance, see order.go).
func (s *Service) Renormalize(ctx context.Context, chatID string) error {
	if err := s.repo.RenormalizeOrderKeys(ctx, chatID); err != nil {
		return err
	}
	s.invalidate(ctx, chatID)
	return nil
}

// Export bulk-reads the requested chats with their full ordered message sets.
// Unknown chat ids are skipped; chats with zero messages are included with an
// empty messages array, so the document always answers which chats it covers.
// Output is sorted by chat_id for reproducibility.
func (s *Service) Export(ctx context.Context, chatIDs []string) (*ExportDocument, error) {
	ids := append([]string(nil), chatIDs...)
	sort.Strings(ids)

	doc := &ExportDocument{Chats: []ExportChat{}}
	for _, chatID := range ids {
		sess, err := s.repo.GetSession(ctx, chatID)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				continue
			}
			return nil, err
		}
		msgs, err := s.repo.ListAllMessages(ctx, chatID)
		if err != nil {
			return nil, err
		}

		out := ExportChat{
			ChatID:       sess.ChatID,
			Model:        sess.Model,
			CreatedAt:    sess.CreatedAt,
			MessageCount: sess.MessageCount,
			Messages:     make([]ExportMessage, 0, len(msgs)),
		}
		for _, m := range msgs {
			out.Messages = append(out.Messages, ExportMessage{
				ID:        m.ID,
				Role:      m.Role,
				Content:   m.Content,
				OrderID:   m.OrderID,
				CreatedAt: m.CreatedAt,
			})
		}
		doc.Chats = append(doc.Chats, out)
	}
	return doc, nil
}

func (s *Service) CreateExportJob(ctx context.Context, job *ExportJob) error {
	return s.repo.CreateExportJob(ctx, job)
}

func (s *Service) CreateExportJobOrGetExisting(ctx context.Context, job *ExportJob) (*ExportJob, bool, error) {
	return s.repo.CreateExportJobOrGetExisting(ctx, job)
}

func (s *Service) GetExportJob(ctx context.Context, jobID string) (*ExportJob, error) {
	return s.repo.GetExportJobByID(ctx, jobID)
}

// invalidate purges cached reads for the chat before the mutation returns.
// A failed purge is logged, not surfaced: the row mutation is already
// committed and the TTL bounds the staleness.
func (s *Service) invalidate(ctx context.Context, chatID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateChat(ctx, chatID); err != nil {
		log.Printf("cache invalidate chat=%s err=%v", chatID, err)
	}
}
