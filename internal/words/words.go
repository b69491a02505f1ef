// internal/words/words.go
//
// Provides word list management for the game.
//
// Responsibilities:
//   - Load candidate (solution) and allowed guess lists from configured files or
//     fall back to the embedded defaults in the assets package.
//   - Maintain a set for quick guess lookups (candidates ∪ allowed).
//   - Supply Pick (random solution for a reset), At (deterministic seed) and
//     IsValidWord (the guess validity check).
//
// Word Lists:
//   - "candidates": one solution per line, `WORD optional definition text`.
//   - "allowed": valid guesses, one word per line (always includes candidates).
//
// Constraints:
//   • Words must be alphabetic (A–Z); lines that aren't are skipped.
//   • Lists are normalized to uppercase.

package words

import (
	"bufio"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/robalobadob/wordly/assets"
)

// Candidate is a possible solution word with the definition revealed at game end.
type Candidate struct {
	Word       string
	Definition string
}

// fallback is used when no candidate survives loading.
var fallback = Candidate{Word: "CRATE", Definition: "A slatted wooden case used for transporting goods."}

// Checker decides whether a guess is an acceptable word of the given length.
type Checker interface {
	IsValidWord(ctx context.Context, text string, length int) bool
}

// List is a loaded, read-only word list. Safe for concurrent use.
type List struct {
	candidates []Candidate
	allowed    map[string]struct{}
}

// Files names optional word list files; empty paths use the embedded lists.
type Files struct {
	Candidates string
	Allowed    string
}

// Load reads word lists.
//
//  1. If Candidates is set, load solutions from it, else from the embedded list.
//  2. If Allowed is set, load guesses from it, else from the embedded list.
//
// Returns an error if a configured file can't be read.
func Load(f Files) (*List, error) {
	var (
		cands   []Candidate
		allowed []string
		err     error
	)

	if f.Candidates != "" {
		cands, err = readFile(f.Candidates, parseCandidates)
	} else {
		cands, err = withEmbedded(assets.Candidates, parseCandidates)
	}
	if err != nil {
		return nil, err
	}

	if f.Allowed != "" {
		allowed, err = readFile(f.Allowed, parseAllowed)
	} else {
		allowed, err = withEmbedded(assets.Allowed, parseAllowed)
	}
	if err != nil {
		return nil, err
	}

	return New(cands, allowed), nil
}

// New builds a List from already-parsed words. Words are uppercased; an
// empty candidate list falls back to CRATE.
func New(cands []Candidate, allowed []string) *List {
	l := &List{allowed: make(map[string]struct{}, len(allowed)+len(cands))}
	for _, c := range cands {
		w := strings.ToUpper(strings.TrimSpace(c.Word))
		if w == "" || !isAlpha(w) {
			continue
		}
		l.candidates = append(l.candidates, Candidate{Word: w, Definition: strings.TrimSpace(c.Definition)})
		l.allowed[w] = struct{}{}
	}
	if len(l.candidates) == 0 {
		l.candidates = []Candidate{fallback}
		l.allowed[fallback.Word] = struct{}{}
	}
	for _, w := range allowed {
		w = strings.ToUpper(strings.TrimSpace(w))
		if w != "" && isAlpha(w) {
			l.allowed[w] = struct{}{}
		}
	}
	return l
}

func readFile[T any](path string, parse func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parse(f)
}

func withEmbedded[T any](open func() (io.ReadCloser, error), parse func(io.Reader) ([]T, error)) ([]T, error) {
	rc, err := open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return parse(rc)
}

// ParseCandidateLine splits `WORD definition` into its parts.
func ParseCandidateLine(line string) (Candidate, error) {
	word, def, _ := strings.Cut(strings.TrimSpace(line), " ")
	word = SanitizeWord(word)
	if word == "" {
		return Candidate{}, errors.New("words: candidate has no letters")
	}
	return Candidate{Word: word, Definition: strings.TrimSpace(def)}, nil
}

// SanitizeWord uppercases and strips everything but letters.
func SanitizeWord(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(raw)) {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// parseCandidates reads candidate lines, skipping blanks, comments and bad lines.
func parseCandidates(r io.Reader) ([]Candidate, error) {
	var out []Candidate
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		c, err := ParseCandidateLine(line)
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, sc.Err()
}

// parseAllowed reads one word per line.
func parseAllowed(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		w := strings.ToUpper(strings.TrimSpace(sc.Text()))
		if w == "" || strings.HasPrefix(w, "#") || !isAlpha(w) {
			continue
		}
		out = append(out, w)
	}
	return out, sc.Err()
}

// isAlpha reports whether s is all uppercase ASCII letters.
func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// IsValidWord rejects wrong length, non-letters, and words not in the list.
func (l *List) IsValidWord(_ context.Context, text string, length int) bool {
	w := strings.ToUpper(strings.TrimSpace(text))
	if len(w) != length || !isAlpha(w) {
		return false
	}
	_, ok := l.allowed[w]
	return ok
}

// Len returns the number of candidate solutions.
func (l *List) Len() int { return len(l.candidates) }

// At returns candidate i modulo the list size.
func (l *List) At(i int) Candidate {
	n := len(l.candidates)
	return l.candidates[((i%n)+n)%n]
}

// Pick returns a cryptographically random candidate.
// The excluded word is skipped whenever another candidate exists.
func (l *List) Pick(exclude string) Candidate {
	exclude = strings.ToUpper(exclude)
	pool := l.candidates
	if len(pool) > 1 && exclude != "" {
		pool = make([]Candidate, 0, len(l.candidates))
		for _, c := range l.candidates {
			if c.Word != exclude {
				pool = append(pool, c)
			}
		}
		if len(pool) == 0 {
			pool = l.candidates
		}
	}
	nBig, err := rand.Int(rand.Reader, big.NewInt(int64(len(pool))))
	if err != nil {
		return pool[0]
	}
	return pool[nBig.Int64()]
}

// OfLength returns the sub-list of words with exactly n letters.
// Returns an error when no candidate has that length.
func (l *List) OfLength(n int) (*List, error) {
	out := &List{allowed: make(map[string]struct{}, len(l.allowed))}
	for _, c := range l.candidates {
		if len(c.Word) == n {
			out.candidates = append(out.candidates, c)
		}
	}
	if len(out.candidates) == 0 {
		return nil, fmt.Errorf("words: no %d-letter candidates", n)
	}
	for w := range l.allowed {
		if len(w) == n {
			out.allowed[w] = struct{}{}
		}
	}
	return out, nil
}

// Stats returns counts of loaded words: (candidates, allowed).
func (l *List) Stats() (candidateCount int, allowedCount int) {
	return len(l.candidates), len(l.allowed)
}

// AnyOf accepts a word when any of the checkers does.
func AnyOf(checkers ...Checker) Checker { return anyOf(checkers) }

type anyOf []Checker

func (a anyOf) IsValidWord(ctx context.Context, text string, length int) bool {
	for _, c := range a {
		if c.IsValidWord(ctx, text, length) {
			return true
		}
	}
	return false
}
