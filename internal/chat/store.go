// Package chat runs conversational symptom sessions that can hand off to
// structured advice once enough has been gathered.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"symptom-assistant-server/internal/models"
)

// ErrSessionNotFound is returned for unknown sessions and for sessions owned
// by someone else.
var ErrSessionNotFound = errors.New("chat session not found")

// Store persists sessions and their append-only transcripts.
type Store interface {
	CreateSession(ctx context.Context, userID, title string) (*models.ChatSession, error)
	// GetSession returns the session without messages.
	GetSession(ctx context.Context, sessionID, userID string) (*models.ChatSession, error)
	ListSessions(ctx context.Context, userID string, limit int) ([]models.ChatSession, error)
	AddMessage(ctx context.Context, msg *models.ChatMessage) error
	// Messages returns the latest limit messages, oldest first. A limit of
	// zero returns the whole transcript.
	Messages(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error)
	// MergeContext overwrites the given keys and keeps the rest.
	MergeContext(ctx context.Context, sessionID string, updates map[string]interface{}) error
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) CreateSession(ctx context.Context, userID, title string) (*models.ChatSession, error) {
	session := &models.ChatSession{UserID: userID, Title: title, Context: models.JSONMap{}}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, fmt.Errorf("create chat session: %w", err)
	}
	return session, nil
}

func (s *GormStore) GetSession(ctx context.Context, sessionID, userID string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", sessionID, userID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat session: %w", err)
	}
	return &session, nil
}

func (s *GormStore) ListSessions(ctx context.Context, userID string, limit int) ([]models.ChatSession, error) {
	var sessions []models.ChatSession
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("list chat sessions: %w", err)
	}
	return sessions, nil
}

func (s *GormStore) AddMessage(ctx context.Context, msg *models.ChatMessage) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return fmt.Errorf("add chat message: %w", err)
		}
		return tx.Model(&models.ChatSession{}).Where("id = ?", msg.SessionID).
			Update("updated_at", time.Now()).Error
	})
}

func (s *GormStore) Messages(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	q := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var msgs []models.ChatMessage
	if err := q.Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *GormStore) MergeContext(ctx context.Context, sessionID string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.ChatSession
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&session, "id = ?", sessionID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("lock chat session: %w", err)
		}
		merged := models.JSONMap{}
		for k, v := range session.Context {
			merged[k] = v
		}
		for k, v := range updates {
			merged[k] = v
		}
		return tx.Model(&session).Update("context", merged).Error
	})
}

// MemoryStore keeps sessions in process.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*models.ChatSession
	messages map[string][]models.ChatMessage
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: map[string]*models.ChatSession{},
		messages: map[string][]models.ChatMessage{},
		now:      time.Now,
	}
}

func (m *MemoryStore) CreateSession(_ context.Context, userID, title string) (*models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	s := &models.ChatSession{UserID: userID, Title: title, Context: models.JSONMap{}}
	s.ID = uuid.New().String()
	s.CreatedAt = now
	s.UpdatedAt = now
	m.sessions[s.ID] = s
	out := *s
	return &out, nil
}

func (m *MemoryStore) GetSession(_ context.Context, sessionID, userID string) (*models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.UserID != userID {
		return nil, ErrSessionNotFound
	}
	out := *s
	out.Context = copyContext(s.Context)
	return &out, nil
}

func (m *MemoryStore) ListSessions(_ context.Context, userID string, limit int) ([]models.ChatSession, error) {
	m.mu.Lock()
	out := []models.ChatSession{}
	for _, s := range m.sessions {
		if s.UserID == userID {
			c := *s
			c.Context = copyContext(s.Context)
			out = append(out, c)
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) AddMessage(_ context.Context, msg *models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[msg.SessionID]
	if !ok {
		return ErrSessionNotFound
	}
	now := m.now()
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.CreatedAt = now
	msg.UpdatedAt = now
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], *msg)
	s.UpdatedAt = now
	return nil
}

func (m *MemoryStore) Messages(_ context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.messages[sessionID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]models.ChatMessage{}, all...), nil
}

func (m *MemoryStore) MergeContext(_ context.Context, sessionID string, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if s.Context == nil {
		s.Context = models.JSONMap{}
	}
	for k, v := range updates {
		s.Context[k] = v
	}
	s.UpdatedAt = m.now()
	return nil
}

func copyContext(c models.JSONMap) models.JSONMap {
	out := models.JSONMap{}
	for k, v := range c {
		out[k] = v
	}
	return out
}
