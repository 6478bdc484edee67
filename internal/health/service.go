// Package health tracks whether the remote API and the account's peers are
// usable.
package health

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventHealthUpdated is broadcast whenever an item changes status.
const EventHealthUpdated = "health:updated"

// Broadcaster defines the interface for sending websocket messages.
type Broadcaster interface {
	Broadcast(msgType string, payload any) error
}

type itemKey struct {
	category HealthCategory
	id       string
}

// Service manages the health state of all tracked items.
// All state is in-memory and resets on restart.
type Service struct {
	mu          sync.RWMutex
	items       map[itemKey]*HealthItem
	broadcaster Broadcaster
	logger      zerolog.Logger
	now         func() time.Time
}

// NewService creates a health service with the remote API registered as OK.
func NewService(logger zerolog.Logger) *Service {
	s := &Service{
		items:  make(map[itemKey]*HealthItem),
		logger: logger.With().Str("component", "health").Logger(),
		now:    time.Now,
	}
	s.RegisterItem(CategoryRemote, RemoteAPIItem, "Remote download API")
	return s
}

// SetBroadcaster sets the websocket broadcaster for real-time updates.
func (s *Service) SetBroadcaster(b Broadcaster) {
	s.mu.Lock()
	s.broadcaster = b
	s.mu.Unlock()
}

// RegisterItem adds an item with OK status. Registering an existing item
// only renames it.
func (s *Service) RegisterItem(category HealthCategory, id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := itemKey{category, id}
	if item, ok := s.items[key]; ok {
		item.Name = name
		return
	}
	s.items[key] = &HealthItem{ID: id, Category: category, Name: name, Status: StatusOK}
	s.logger.Debug().Str("category", string(category)).Str("id", id).Msg("tracking health item")
}

// UnregisterItem removes an item from health tracking.
func (s *Service) UnregisterItem(category HealthCategory, id string) {
	s.mu.Lock()
	delete(s.items, itemKey{category, id})
	s.mu.Unlock()
}

// SetError sets an item to Error status with a message.
func (s *Service) SetError(category HealthCategory, id, message string) {
	s.setStatus(category, id, StatusError, message)
}

// SetWarning sets an item to Warning status. For binary categories this is a
// no-op.
func (s *Service) SetWarning(category HealthCategory, id, message string) {
	if IsBinaryCategory(category) {
		return
	}
	s.setStatus(category, id, StatusWarning, message)
}

// ClearStatus resets an item to OK status.
func (s *Service) ClearStatus(category HealthCategory, id string) {
	s.setStatus(category, id, StatusOK, "")
}

// ReportRemote records the outcome of a call against the remote API.
func (s *Service) ReportRemote(err error) {
	if err != nil {
		s.SetError(CategoryRemote, RemoteAPIItem, err.Error())
		return
	}
	s.ClearStatus(CategoryRemote, RemoteAPIItem)
}

func (s *Service) setStatus(category HealthCategory, id string, status HealthStatus, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemKey{category, id}]
	if !ok {
		s.logger.Warn().Str("category", string(category)).Str("id", id).
			Msg("status update for untracked health item")
		return
	}
	if item.Status == status && item.Message == message {
		return
	}

	prev := item.Status
	item.Status, item.Message, item.Timestamp = status, message, nil
	if status != StatusOK {
		at := s.now()
		item.Timestamp = &at
	}

	level := zerolog.InfoLevel
	if status == StatusError {
		level = zerolog.WarnLevel
	}
	s.logger.WithLevel(level).Str("category", string(category)).
		Str("id", id).
		Str("from", string(prev)).
		Str("to", string(status)).
		Str("message", message).
		Msg("health changed")

	if s.broadcaster == nil {
		return
	}
	payload := HealthUpdatePayload{
		Category:  item.Category,
		ID:        item.ID,
		Name:      item.Name,
		Status:    item.Status,
		Message:   item.Message,
		Timestamp: item.Timestamp,
	}
	if err := s.broadcaster.Broadcast(EventHealthUpdated, payload); err != nil {
		s.logger.Warn().Err(err).Msg("failed to broadcast health update")
	}
}

// GetAll returns all health items grouped by category.
func (s *Service) GetAll() *HealthResponse {
	return &HealthResponse{
		Remote: s.GetByCategory(CategoryRemote),
		Peers:  s.GetByCategory(CategoryPeers),
	}
}

// GetByCategory returns a category's items ordered by id.
func (s *Service) GetByCategory(category HealthCategory) []HealthItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]HealthItem, 0)
	for key, item := range s.items {
		if key.category == category {
			items = append(items, *item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

// GetItem returns a copy of a single item, or nil.
func (s *Service) GetItem(category HealthCategory, id string) *HealthItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if item, ok := s.items[itemKey{category, id}]; ok {
		cp := *item
		return &cp
	}
	return nil
}

// GetSummary returns counts per category.
func (s *Service) GetSummary() *HealthSummary {
	counts := make(map[HealthCategory]*CategorySummary)
	summary := &HealthSummary{}
	for _, cat := range AllCategories() {
		counts[cat] = &CategorySummary{Category: cat}
	}

	s.mu.RLock()
	for key, item := range s.items {
		c := counts[key.category]
		switch item.Status {
		case StatusOK:
			c.OK++
		case StatusWarning:
			c.Warning++
		case StatusError:
			c.Error++
		}
	}
	s.mu.RUnlock()

	for _, cat := range AllCategories() {
		c := *counts[cat]
		summary.HasIssues = summary.HasIssues || c.HasIssues()
		summary.Categories = append(summary.Categories, c)
	}
	return summary
}

// IsHealthy returns true if the specified item is tracked and OK.
func (s *Service) IsHealthy(category HealthCategory, id string) bool {
	item := s.GetItem(category, id)
	return item != nil && item.Status == StatusOK
}
