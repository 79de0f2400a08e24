package flashcard_test

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/matcenter/internal/flashcard"
	"github.com/BradenHooton/matcenter/internal/models"
)

var start = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

func newSession(t *testing.T, n int) *flashcard.Session {
	t.Helper()
	s, err := flashcard.NewSession(makeItems(n), rand.New(rand.NewPCG(42, 42)), start)
	require.NoError(t, err)
	return s
}

func TestNewSession_NoItems(t *testing.T) {
	_, err := flashcard.NewSession(nil, rand.New(rand.NewPCG(1, 1)), start)
	assert.ErrorIs(t, err, models.ErrNoDefinitions)
}

func TestSession_CardStates(t *testing.T) {
	s := newSession(t, 2)

	card, err := s.Current()
	require.NoError(t, err)
	assert.Equal(t, flashcard.CardHidden, card.State)
	assert.Empty(t, card.Definition)
	assert.Equal(t, 1, card.Position)
	assert.Equal(t, 6, card.RoundLength)
	assert.Equal(t, 1, card.Round)

	_, err = s.Remember()
	assert.ErrorIs(t, err, models.ErrCardNotRevealed)
	_, err = s.Forget()
	assert.ErrorIs(t, err, models.ErrCardNotRevealed)

	card, err = s.Reveal()
	require.NoError(t, err)
	assert.Equal(t, flashcard.CardRevealed, card.State)
	assert.Equal(t, "def", card.Definition)

	again, err := s.Reveal()
	require.NoError(t, err)
	assert.Equal(t, card, again)

	first := card.ItemID
	next, err := s.Remember()
	require.NoError(t, err)
	assert.Equal(t, flashcard.CardHidden, next.State)
	assert.Equal(t, 2, next.Position)
	assert.Equal(t, 1, s.Stats()[first].Remember)
}

func TestSession_NewRoundOnExhaustion(t *testing.T) {
	s := newSession(t, 1)

	// forget every card of the first round
	for range 3 {
		_, err := s.Reveal()
		require.NoError(t, err)
		_, err = s.Forget()
		require.NoError(t, err)
	}

	card, err := s.Current()
	require.NoError(t, err)
	assert.Equal(t, 2, card.Round)
	assert.Equal(t, 1, card.Position)
	assert.Equal(t, flashcard.MaxRepeats, card.RoundLength)
	assert.Equal(t, flashcard.Stats{Forget: 3}, card.Stats)
}

func TestSession_Summary(t *testing.T) {
	tests := []struct {
		name     string
		remember int
		forget   int
		percent  int
		verdict  string
	}{
		{"no answers", 0, 0, 0, flashcard.VerdictNeedsWork},
		{"mostly forgotten", 1, 2, 33, flashcard.VerdictNeedsWork},
		{"half", 1, 1, 50, flashcard.VerdictGood},
		{"two thirds", 2, 1, 67, flashcard.VerdictGood},
		{"three quarters", 3, 1, 75, flashcard.VerdictExcellent},
		{"all remembered", 4, 0, 100, flashcard.VerdictExcellent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSession(t, 3)
			for range tt.remember {
				_, _ = s.Reveal()
				_, err := s.Remember()
				require.NoError(t, err)
			}
			for range tt.forget {
				_, _ = s.Reveal()
				_, err := s.Forget()
				require.NoError(t, err)
			}

			sum, err := s.Finish(start.Add(10 * time.Minute))
			require.NoError(t, err)
			assert.Equal(t, tt.remember, sum.Remember)
			assert.Equal(t, tt.forget, sum.Forget)
			assert.Equal(t, tt.remember+tt.forget, sum.Total)
			assert.Equal(t, tt.percent, sum.SuccessPercent)
			assert.Equal(t, tt.verdict, sum.Verdict)
			assert.Equal(t, 1, sum.Rounds)
			assert.Equal(t, 10*time.Minute, sum.Duration)
		})
	}
}

func TestSession_Finished(t *testing.T) {
	s := newSession(t, 1)

	_, err := s.Finish(start)
	require.NoError(t, err)

	_, err = s.Current()
	assert.ErrorIs(t, err, models.ErrSessionFinished)
	_, err = s.Reveal()
	assert.ErrorIs(t, err, models.ErrSessionFinished)
	_, err = s.Remember()
	assert.ErrorIs(t, err, models.ErrSessionFinished)
	_, err = s.Finish(start)
	assert.ErrorIs(t, err, models.ErrSessionFinished)
}

func TestVerdictFor(t *testing.T) {
	assert.Equal(t, flashcard.VerdictNeedsWork, flashcard.VerdictFor(49))
	assert.Equal(t, flashcard.VerdictGood, flashcard.VerdictFor(50))
	assert.Equal(t, flashcard.VerdictGood, flashcard.VerdictFor(74))
	assert.Equal(t, flashcard.VerdictExcellent, flashcard.VerdictFor(75))
}
