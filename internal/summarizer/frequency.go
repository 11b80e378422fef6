// Package summarizer produces short extractive digests of ingested filings.
package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// DefaultSentences is the digest length when none is given.
const DefaultSentences = 5

// figureBoost is added per numeric token; filing sentences that carry
// amounts are the ones an analyst scans for.
const figureBoost = 0.5

// FrequencySummarizer ranks sentences by normalised term frequency.
type FrequencySummarizer struct {
	wordPattern   *regexp.Regexp
	figurePattern *regexp.Regexp
	stopwords     map[string]struct{}
}

func NewFrequencySummarizer() *FrequencySummarizer {
	return &FrequencySummarizer{
		wordPattern:   regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		figurePattern: regexp.MustCompile(`[$€£]?\d[\d,]*(?:\.\d+)?%?`),
		stopwords:     defaultStopwords(),
	}
}

// Summarize returns up to maxSentences sentences of text in document order.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = DefaultSentences
	}
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return "", nil
	}

	freq := map[string]float64{}
	maxF := 0.0
	for _, sent := range sentences {
		for _, tok := range s.words(sent) {
			if _, stop := s.stopwords[tok]; stop {
				continue
			}
			freq[tok]++
			maxF = math.Max(maxF, freq[tok])
		}
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(sentences))
	for i, sent := range sentences {
		toks := s.words(sent)
		total := 0.0
		for _, tok := range toks {
			if v, ok := freq[tok]; ok && maxF > 0 {
				total += v / maxF
			}
		}
		if len(toks) > 0 {
			total /= math.Sqrt(float64(len(toks)))
		}
		total += figureBoost * float64(len(s.figurePattern.FindAllString(sent, -1)))
		scores[i] = scored{i, total}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	n := min(maxSentences, len(scores))
	picked := make([]int, n)
	for i := range picked {
		picked[i] = scores[i].idx
	}
	sort.Ints(picked)

	out := make([]string, n)
	for i, idx := range picked {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " "), nil
}

// SplitSentences splits at terminal punctuation followed by whitespace, so
// decimal amounts such as 12.5 stay inside their sentence.
func SplitSentences(text string) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(text)
	for i, r := range runes {
		if !strings.ContainsRune(".!?。！？", r) {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if sent := strings.TrimSpace(string(runes[start : i+1])); sent != "" {
			out = append(out, sent)
		}
		start = i + 1
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		out = append(out, tail)
	}
	return out
}

func (s *FrequencySummarizer) words(text string) []string {
	return s.wordPattern.FindAllString(strings.ToLower(text), -1)
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "its", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "should", "now", "our", "we", "has", "have", "had",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
