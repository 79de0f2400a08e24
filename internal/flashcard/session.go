package flashcard

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/BradenHooton/matcenter/internal/models"
)

// CardState is the state of the card currently shown
type CardState string

const (
	CardHidden     CardState = "HIDDEN"
	CardRevealed   CardState = "REVEALED"
	CardRemembered CardState = "REMEMBERED"
	CardForgotten  CardState = "FORGOTTEN"
)

// Verdict tiers of the final summary
const (
	VerdictNeedsWork = "needs work"
	VerdictGood      = "good"
	VerdictExcellent = "excellent"
)

// Card is the view of the current card. Definition fields are empty until
// the card is revealed.
type Card struct {
	ItemID         string    `json:"item_id"`
	TopicName      string    `json:"topic_name"`
	Term           string    `json:"term"`
	Definition     string    `json:"definition,omitempty"`
	DefinitionHTML string    `json:"definition_html,omitempty"`
	State          CardState `json:"state"`
	Position       int       `json:"position"`
	RoundLength    int       `json:"round_length"`
	Round          int       `json:"round"`
	Stats          Stats     `json:"stats"`
}

// Summary is the result shown when a session is closed
type Summary struct {
	Remember       int           `json:"remember"`
	Forget         int           `json:"forget"`
	Total          int           `json:"total"`
	SuccessPercent int           `json:"success_percent"`
	Verdict        string        `json:"verdict"`
	Rounds         int           `json:"rounds"`
	Duration       time.Duration `json:"duration_ns"`
}

// Session runs one knowledge check over a fixed item set. Safe for
// concurrent use.
type Session struct {
	mu sync.Mutex

	items     []Item
	stats     map[string]Stats
	queue     []Item
	index     int
	state     CardState
	remember  int
	forget    int
	rounds    int
	finished  bool
	startedAt time.Time
	rng       *rand.Rand
}

// NewSession starts a session with fresh statistics and builds the first
// round.
func NewSession(items []Item, rng *rand.Rand, now time.Time) (*Session, error) {
	if len(items) == 0 {
		return nil, models.ErrNoDefinitions
	}

	s := &Session{
		items:     items,
		stats:     make(map[string]Stats, len(items)),
		startedAt: now,
		rng:       rng,
	}
	s.newRound()
	return s, nil
}

func (s *Session) newRound() {
	s.queue = BuildRound(s.items, s.stats, s.rng)
	s.index = 0
	s.rounds++
	s.state = CardHidden
}

// Current returns the card being shown
func (s *Session) Current() (Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return Card{}, models.ErrSessionFinished
	}
	return s.card(), nil
}

func (s *Session) card() Card {
	item := s.queue[s.index]
	c := Card{
		ItemID:      item.ID,
		TopicName:   item.TopicName,
		Term:        item.Term,
		State:       s.state,
		Position:    s.index + 1,
		RoundLength: len(s.queue),
		Round:       s.rounds,
		Stats:       s.stats[item.ID],
	}
	if s.state != CardHidden {
		c.Definition = item.Definition
		c.DefinitionHTML = item.DefinitionHTML
	}
	return c
}

// Reveal shows the definition. Revealing twice is a no-op.
func (s *Session) Reveal() (Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return Card{}, models.ErrSessionFinished
	}
	s.state = CardRevealed
	return s.card(), nil
}

// Remember records a remembered answer and advances to the next card
func (s *Session) Remember() (Card, error) {
	return s.answer(CardRemembered)
}

// Forget records a forgotten answer and advances to the next card
func (s *Session) Forget() (Card, error) {
	return s.answer(CardForgotten)
}

func (s *Session) answer(verdict CardState) (Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return Card{}, models.ErrSessionFinished
	}
	if s.state != CardRevealed {
		return Card{}, models.ErrCardNotRevealed
	}

	id := s.queue[s.index].ID
	st := s.stats[id]
	if verdict == CardRemembered {
		st.Remember++
		s.remember++
	} else {
		st.Forget++
		s.forget++
	}
	s.stats[id] = st

	s.index++
	if s.index >= len(s.queue) {
		s.newRound()
	}
	s.state = CardHidden
	return s.card(), nil
}

// Stats returns a copy of the per-item statistics
func (s *Session) Stats() map[string]Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Stats, len(s.stats))
	for k, v := range s.stats {
		out[k] = v
	}
	return out
}

// Summary reports totals so far without closing the session
func (s *Session) Summary(now time.Time) Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary(now)
}

// Finish closes the session and returns the final summary
func (s *Session) Finish(now time.Time) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return Summary{}, models.ErrSessionFinished
	}
	s.finished = true
	return s.summary(now), nil
}

func (s *Session) summary(now time.Time) Summary {
	total := s.remember + s.forget
	percent := int(math.Round(float64(s.remember) / float64(max(1, total)) * 100))
	return Summary{
		Remember:       s.remember,
		Forget:         s.forget,
		Total:          total,
		SuccessPercent: percent,
		Verdict:        VerdictFor(percent),
		Rounds:         s.rounds,
		Duration:       now.Sub(s.startedAt),
	}
}

// VerdictFor maps a success percentage to its tier
func VerdictFor(percent int) string {
	switch {
	case percent < 50:
		return VerdictNeedsWork
	case percent < 75:
		return VerdictGood
	default:
		return VerdictExcellent
	}
}
