package rag

import (
	"sort"
	"strings"
	"sync"
)

const (
	chunkSize    = 1000
	chunkOverlap = 200
)

// Store indexes uploaded document text per user and retrieves a context
// string for a query. Chunks live in memory only; uploads rebuild the index
// for that user, mirroring how the original vector store was rebuilt on every
// upload.
type Store struct {
	mu     sync.RWMutex
	chunks map[uint64][]chunk
}

type chunk struct {
	doc   string
	text  string
	terms map[string]struct{}
}

func NewStore() *Store {
	return &Store{chunks: make(map[uint64][]chunk)}
}

// AddDocument splits content into overlapping chunks and indexes them for
// userID. Returns the number of chunks added.
func (s *Store) AddDocument(userID uint64, name, content string) int {
	parts := splitText(content)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range parts {
		s.chunks[userID] = append(s.chunks[userID], chunk{
			doc:   name,
			text:  p,
			terms: termSet(p),
		})
	}
	return len(parts)
}

// Clear drops all indexed chunks for userID.
func (s *Store) Clear(userID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, userID)
}

// Retrieve ranks the user's chunks by distinct-term overlap with the query
// and joins the topK best into a single context string. Empty when the user
// has no documents or nothing matches.
func (s *Store) Retrieve(userID uint64, query string, topK int) string {
	if topK <= 0 {
		topK = 3
	}
	qTerms := termSet(query)
	if len(qTerms) == 0 {
		return ""
	}

	s.mu.RLock()
	candidates := s.chunks[userID]
	s.mu.RUnlock()
	if len(candidates) == 0 {
		return ""
	}

	type scored struct {
		idx   int
		score int
	}
	ranked := make([]scored, 0, len(candidates))
	for i, c := range candidates {
		n := 0
		for t := range qTerms {
			if _, ok := c.terms[t]; ok {
				n++
			}
		}
		if n > 0 {
			ranked = append(ranked, scored{idx: i, score: n})
		}
	}
	if len(ranked) == 0 {
		return ""
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	out := make([]string, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, candidates[r.idx].text)
	}
	return strings.Join(out, "\n")
}

// splitText produces ~chunkSize rune chunks with chunkOverlap of trailing
// context carried into the next chunk, preferring paragraph boundaries.
func splitText(content string) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	runes := []rune(content)
	if len(runes) <= chunkSize {
		return []string{content}
	}

	var parts []string
	start := 0
	for start < len(runes) {
		end := start + chunkSize
		if end >= len(runes) {
			parts = append(parts, strings.TrimSpace(string(runes[start:])))
			break
		}
		// prefer to cut at a paragraph or line break inside the window
		cut := end
		for i := end; i > start+chunkSize/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, strings.TrimSpace(string(runes[start:cut])))
		start = cut - chunkOverlap
		if start < 0 {
			start = 0
		}
		if cut == len(runes) {
			break
		}
	}

	// drop empties produced by aggressive trimming
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func termSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, f := range strings.Fields(strings.ToLower(text)) {
		f = strings.Trim(f, ".,;:!?\"'()[]")
		if len(f) < 3 {
			continue
		}
		set[f] = struct{}{}
	}
	return set
}
