// Package analysis turns raw text into index terms. It splits on
// non-alphanumeric boundaries, optionally lower-cases, removes stop-words and
// applies the Snowball English stemmer. One Analyzer is shared by the indexer
// and the ranker so documents and queries are always normalised alike.
package analysis

import (
	"bufio"
	"crypto/sha256"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	snowballeng "github.com/kljensen/snowball/english"

	"github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/errors"
)

// Token represents a single normalised term and its position in the
// original text.
type Token struct {
	Term     string
	Position int
}

// Analyzer is immutable after construction and safe for concurrent use.
type Analyzer struct {
	cfg       config.AnalysisConfig
	stopwords map[string]struct{}
	extra     []string
}

// New builds an Analyzer from cfg, loading cfg.StopwordsFile when set.
// Stemming requires lowercasing because the Snowball stemmer always emits
// lower-case terms.
func New(cfg config.AnalysisConfig) (*Analyzer, error) {
	if cfg.Stemming && !cfg.Lowercase {
		return nil, apperrors.New(apperrors.ErrConfig, "analysis.stemming requires analysis.lowercase")
	}
	if cfg.MinTokenLength < 1 {
		cfg.MinTokenLength = 1
	}
	a := &Analyzer{
		cfg:       cfg,
		stopwords: englishStopwords,
	}
	if cfg.StopwordsFile != "" {
		extra, err := readStopwords(cfg.StopwordsFile)
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrConfig, "loading stopwords file %s: %v", cfg.StopwordsFile, err)
		}
		merged := make(map[string]struct{}, len(englishStopwords)+len(extra))
		for w := range englishStopwords {
			merged[w] = struct{}{}
		}
		for _, w := range extra {
			merged[w] = struct{}{}
		}
		a.stopwords = merged
		a.extra = extra
	}
	return a, nil
}

// Default returns an Analyzer with lowercasing, stop-word removal and
// stemming enabled.
func Default() *Analyzer {
	a, _ := New(config.Default().Analysis)
	return a
}

// Config returns the configuration the Analyzer was built with.
func (a *Analyzer) Config() config.AnalysisConfig {
	return a.cfg
}

// Analyze breaks text into normalised Tokens. Positions count emitted tokens
// only, so they are contiguous.
func (a *Analyzer) Analyze(text string) []Token {
	if a.cfg.Lowercase {
		text = strings.ToLower(text)
	}
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]Token, 0, len(words))
	pos := 0
	for _, word := range words {
		if a.cfg.RemoveStopwords {
			if _, isStop := a.stopwords[strings.ToLower(word)]; isStop {
				continue
			}
		}
		if len([]rune(word)) < a.cfg.MinTokenLength {
			continue
		}
		term := word
		if a.cfg.Stemming {
			term = snowballeng.Stem(word, false)
		}
		if term == "" {
			continue
		}
		tokens = append(tokens, Token{
			Term:     term,
			Position: pos,
		})
		pos++
	}
	return tokens
}

// Terms is Analyze without positions.
func (a *Analyzer) Terms(text string) []string {
	tokens := a.Analyze(text)
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t.Term
	}
	return terms
}

// Fingerprint identifies the normalisation pipeline. Two analyzers with the
// same fingerprint produce the same terms for any input.
func (a *Analyzer) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "lower=%t;stop=%t;stem=%t;min=%d;extra=%s",
		a.cfg.Lowercase, a.cfg.RemoveStopwords, a.cfg.Stemming,
		a.cfg.MinTokenLength, strings.Join(a.extra, ","))
	return fmt.Sprintf("%x", h.Sum(nil)[:8])
}

func readStopwords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		w := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if w == "" || strings.HasPrefix(w, "#") {
			continue
		}
		seen[w] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	words := make([]string, 0, len(seen))
	for w := range seen {
		words = append(words, w)
	}
	sort.Strings(words)
	return words, nil
}
