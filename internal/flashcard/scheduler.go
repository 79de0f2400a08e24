package flashcard

import "math/rand/v2"

// Repeat counts per round
const (
	MinRepeats    = 3
	MediumRepeats = 4
	MaxRepeats    = 5
)

// Stats are the per-item answers of the current session
type Stats struct {
	Remember int `json:"remember"`
	Forget   int `json:"forget"`
}

// Shown reports whether the item has been answered this session
func (s Stats) Shown() bool {
	return s.Remember+s.Forget > 0
}

// ForgetRatio is forget / (remember + forget), zero when never shown
func (s Stats) ForgetRatio() float64 {
	if !s.Shown() {
		return 0
	}
	return float64(s.Forget) / float64(s.Remember+s.Forget)
}

// RepeatCount is how many times the item appears in the next round
func RepeatCount(s Stats) int {
	if !s.Shown() {
		return MinRepeats
	}
	switch ratio := s.ForgetRatio(); {
	case ratio > 0.7:
		return MaxRepeats
	case ratio > 0.5:
		return MediumRepeats
	default:
		return MinRepeats
	}
}

// BuildRound expands items by their repeat counts and shuffles them with
// spacing. Adjacent duplicates are avoided where a later swap target exists;
// they can remain when none does.
func BuildRound(items []Item, stats map[string]Stats, rng *rand.Rand) []Item {
	var round []Item
	for _, item := range items {
		n := RepeatCount(stats[item.ID])
		for range n {
			round = append(round, item)
		}
	}
	return ShuffleWithSpacing(round, rng)
}

// ShuffleWithSpacing shuffles list in place, then swaps each item that
// repeats its predecessor with the first later item that differs.
func ShuffleWithSpacing(list []Item, rng *rand.Rand) []Item {
	rng.Shuffle(len(list), func(i, j int) {
		list[i], list[j] = list[j], list[i]
	})

	for i := 1; i < len(list); i++ {
		if list[i].ID != list[i-1].ID {
			continue
		}
		for j := i + 1; j < len(list); j++ {
			if list[j].ID != list[i].ID {
				list[i], list[j] = list[j], list[i]
				break
			}
		}
	}
	return list
}

// AdjacentDuplicates counts positions whose item equals the previous one
func AdjacentDuplicates(list []Item) int {
	n := 0
	for i := 1; i < len(list); i++ {
		if list[i].ID == list[i-1].ID {
			n++
		}
	}
	return n
}
