package services

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/matcenter/internal/clock"
	"github.com/BradenHooton/matcenter/internal/flashcard"
	"github.com/BradenHooton/matcenter/internal/metrics"
	"github.com/BradenHooton/matcenter/internal/models"
)

// FlashcardSessionView is a session id with its current card
type FlashcardSessionView struct {
	ID     string         `json:"id"`
	Topics []string       `json:"topics"`
	Card   flashcard.Card `json:"card"`
}

type flashcardEntry struct {
	session  *flashcard.Session
	topics   []string
	lastUsed time.Time
}

// FlashcardService keeps knowledge-check sessions in memory, keyed by UUID
type FlashcardService struct {
	deck        *flashcard.Deck
	clock       clock.Clock
	idleTimeout time.Duration
	logger      *slog.Logger
	newRand     func() *rand.Rand

	mu       sync.Mutex
	sessions map[string]*flashcardEntry
}

// NewFlashcardService creates a new FlashcardService
func NewFlashcardService(deck *flashcard.Deck, c clock.Clock, idleTimeout time.Duration, logger *slog.Logger) *FlashcardService {
	return &FlashcardService{
		deck:        deck,
		clock:       c,
		idleTimeout: idleTimeout,
		logger:      logger,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		},
		sessions: make(map[string]*flashcardEntry),
	}
}

// Topics lists the deck topics
func (s *FlashcardService) Topics() []flashcard.TopicInfo {
	return s.deck.Topics()
}

// Start opens a session over the selected topics
func (s *FlashcardService) Start(ctx context.Context, topicIDs []string) (*FlashcardSessionView, error) {
	var selected []string
	for _, id := range topicIDs {
		if id = strings.TrimSpace(id); id != "" {
			selected = append(selected, id)
		}
	}

	items, err := s.deck.Items(selected)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	sess, err := flashcard.NewSession(items, s.newRand(), now)
	if err != nil {
		return nil, err
	}
	card, err := sess.Current()
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	s.mu.Lock()
	s.sessions[id] = &flashcardEntry{session: sess, topics: selected, lastUsed: now}
	s.mu.Unlock()
	metrics.FlashcardSessionsActive.Inc()

	s.logger.InfoContext(ctx, "knowledge check started",
		slog.String("session_id", id),
		slog.Int("topics", len(selected)),
		slog.Int("items", len(items)),
	)

	return &FlashcardSessionView{ID: id, Topics: selected, Card: card}, nil
}

// Current returns the current card of a session
func (s *FlashcardService) Current(id string) (*FlashcardSessionView, error) {
	return s.apply(id, (*flashcard.Session).Current)
}

// Reveal shows the definition of the current card
func (s *FlashcardService) Reveal(id string) (*FlashcardSessionView, error) {
	return s.apply(id, (*flashcard.Session).Reveal)
}

// Remember marks the revealed card as remembered and advances
func (s *FlashcardService) Remember(id string) (*FlashcardSessionView, error) {
	view, err := s.apply(id, (*flashcard.Session).Remember)
	if err == nil {
		metrics.FlashcardAnswers.WithLabelValues("remember").Inc()
	}
	return view, err
}

// Forget marks the revealed card as forgotten and advances
func (s *FlashcardService) Forget(id string) (*FlashcardSessionView, error) {
	view, err := s.apply(id, (*flashcard.Session).Forget)
	if err == nil {
		metrics.FlashcardAnswers.WithLabelValues("forget").Inc()
	}
	return view, err
}

// Finish closes a session and returns its final summary
func (s *FlashcardService) Finish(ctx context.Context, id string) (*flashcard.Summary, error) {
	s.mu.Lock()
	entry, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if !ok {
		return nil, models.ErrNotFound
	}
	metrics.FlashcardSessionsActive.Dec()

	summary, err := entry.session.Finish(s.clock.Now())
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "knowledge check finished",
		slog.String("session_id", id),
		slog.Int("answers", summary.Total),
		slog.Int("success_percent", summary.SuccessPercent),
		slog.Int("rounds", summary.Rounds),
	)
	return &summary, nil
}

// SweepIdle drops sessions unused for longer than the idle timeout and
// returns how many were removed
func (s *FlashcardService) SweepIdle(ctx context.Context) int {
	cutoff := s.clock.Now().Add(-s.idleTimeout)

	s.mu.Lock()
	removed := 0
	for id, entry := range s.sessions {
		if entry.lastUsed.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		metrics.FlashcardSessionsActive.Sub(float64(removed))
		s.logger.InfoContext(ctx, "idle knowledge checks removed", slog.Int("count", removed))
	}
	return removed
}

// Active returns the number of open sessions
func (s *FlashcardService) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *FlashcardService) apply(id string, op func(*flashcard.Session) (flashcard.Card, error)) (*FlashcardSessionView, error) {
	s.mu.Lock()
	entry, ok := s.sessions[id]
	if ok {
		entry.lastUsed = s.clock.Now()
	}
	s.mu.Unlock()

	if !ok {
		return nil, models.ErrNotFound
	}

	card, err := op(entry.session)
	if err != nil {
		return nil, err
	}
	return &FlashcardSessionView{ID: id, Topics: entry.topics, Card: card}, nil
}
