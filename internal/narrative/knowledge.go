package narrative

import (
	"sort"
	"strings"
	"sync"
)

// KnowledgeBase is a lightweight in-memory lore index. Lookup is word-overlap
// scoring over stored narratives; good enough to surface related scenes
// without an embedding model.
type KnowledgeBase struct {
	mu    sync.RWMutex
	texts []string
}

// Match is one scored knowledge-base hit.
type Match struct {
	Text  string
	Score float64
}

// Add stores a narrative. Entries of the form "...\nN: narrative" keep only
// the narrative part.
func (kb *KnowledgeBase) Add(text string) {
	if idx := strings.Index(text, "\nN:"); idx >= 0 {
		text = strings.TrimSpace(text[idx+len("\nN:"):])
	}
	if text == "" {
		return
	}
	kb.mu.Lock()
	kb.texts = append(kb.texts, text)
	kb.mu.Unlock()
}

// Search returns the topK entries ranked by word overlap with the query.
func (kb *KnowledgeBase) Search(query string, topK int) []Match {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	if len(kb.texts) == 0 || topK <= 0 {
		return nil
	}

	queryWords := wordSet(query)
	matches := make([]Match, 0, len(kb.texts))
	for _, t := range kb.texts {
		matches = append(matches, Match{Text: t, Score: overlapScore(queryWords, wordSet(t))})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

// MostSimilar returns the best match at or above the threshold.
func (kb *KnowledgeBase) MostSimilar(query string, threshold float64) (string, float64, bool) {
	matches := kb.Search(query, 1)
	if len(matches) == 0 || matches[0].Score < threshold {
		return "", 0, false
	}
	return matches[0].Text, matches[0].Score, true
}

func wordSet(text string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		words[w] = struct{}{}
	}
	return words
}

// overlapScore is the Jaccard index of the two word sets.
func overlapScore(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	var shared int
	for w := range a {
		if _, ok := b[w]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}
