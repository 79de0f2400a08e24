// Package flashcard implements the knowledge-check deck, the repetition
// scheduler and the card session state machine.
package flashcard

import (
	_ "embed"
	"fmt"
	"html"
	"os"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"gopkg.in/yaml.v3"

	"github.com/BradenHooton/matcenter/internal/models"
)

//go:embed deck.yaml
var defaultDeck []byte

// FormulaPlaceholder replaces TeX formulas in the plain-text definition
const FormulaPlaceholder = "[formula]"

var (
	formulaPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\\\[[\s\S]*?\\\]`),
		regexp.MustCompile(`\\\([\s\S]*?\\\)`),
		regexp.MustCompile(`\$[^$]*\$`),
	}
	whitespace = regexp.MustCompile(`\s+`)
)

// Item is one study card
type Item struct {
	ID             string `json:"id"`
	TopicID        string `json:"topic_id"`
	TopicName      string `json:"topic_name"`
	Term           string `json:"term"`
	Definition     string `json:"definition"`
	DefinitionHTML string `json:"definition_html"`
}

// Topic groups items under a heading
type Topic struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Items []Item `json:"-"`
}

// TopicInfo is the listing entry for a topic
type TopicInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Deck is the loaded set of topics in file order
type Deck struct {
	topics []Topic
	byID   map[string]int
}

type deckFile struct {
	Topics []struct {
		ID          string `yaml:"id"`
		Name        string `yaml:"name"`
		Definitions []struct {
			Term           string `yaml:"term"`
			DefinitionHTML string `yaml:"definition_html"`
		} `yaml:"definitions"`
	} `yaml:"topics"`
}

// LoadDeck reads the deck at path, or the embedded deck when path is empty
func LoadDeck(path string) (*Deck, error) {
	data := defaultDeck
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read deck %s: %w", path, err)
		}
		data = raw
	}
	return ParseDeck(data)
}

// ParseDeck decodes a YAML deck. Definitions whose plain text is empty are
// skipped. Duplicate topic ids are rejected.
func ParseDeck(data []byte) (*Deck, error) {
	var file deckFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse deck: %w", err)
	}

	ugc := bluemonday.UGCPolicy()
	strict := bluemonday.StrictPolicy()

	deck := &Deck{byID: make(map[string]int, len(file.Topics))}
	for _, t := range file.Topics {
		if t.ID == "" {
			return nil, fmt.Errorf("topic %q has no id", t.Name)
		}
		if _, dup := deck.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate topic id %q", t.ID)
		}

		topic := Topic{ID: t.ID, Name: t.Name}
		for _, d := range t.Definitions {
			term := PlainText(strict, d.Term)
			text := PlainText(strict, d.DefinitionHTML)
			if term == "" || text == "" {
				continue
			}
			topic.Items = append(topic.Items, Item{
				ID:             t.ID + "_" + term,
				TopicID:        t.ID,
				TopicName:      t.Name,
				Term:           term,
				Definition:     text,
				DefinitionHTML: ugc.Sanitize(d.DefinitionHTML),
			})
		}

		deck.byID[t.ID] = len(deck.topics)
		deck.topics = append(deck.topics, topic)
	}
	return deck, nil
}

// PlainText strips markup, replaces formulas and collapses whitespace
func PlainText(policy *bluemonday.Policy, s string) string {
	text := html.UnescapeString(policy.Sanitize(s))
	for _, re := range formulaPatterns {
		text = re.ReplaceAllString(text, FormulaPlaceholder)
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

// Topics lists topics in deck order
func (d *Deck) Topics() []TopicInfo {
	out := make([]TopicInfo, 0, len(d.topics))
	for _, t := range d.topics {
		out = append(out, TopicInfo{ID: t.ID, Name: t.Name, Count: len(t.Items)})
	}
	return out
}

// Items collects the items of the selected topics. Repeated ids are
// collected once.
func (d *Deck) Items(topicIDs []string) ([]Item, error) {
	if len(topicIDs) == 0 {
		return nil, models.ErrNoTopicsSelected
	}

	seen := make(map[string]bool, len(topicIDs))
	var items []Item
	for _, id := range topicIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		idx, ok := d.byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown topic %q: %w", id, models.ErrBadRequest)
		}
		items = append(items, d.topics[idx].Items...)
	}

	if len(items) == 0 {
		return nil, models.ErrNoDefinitions
	}
	return items, nil
}
