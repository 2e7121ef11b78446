package summary

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Extractive is the built-in summarizer. It scores words by frequency
// across the transcript and keeps the top lines in their original
// order, so the digest needs no external service.
type Extractive struct {
	MaxLines int
}

const defaultMaxLines = 3

func (p Extractive) Summarize(_ context.Context, m Minutes) (string, error) {
	maxLines := p.MaxLines
	if maxLines <= 0 {
		maxLines = defaultMaxLines
	}

	freq := map[string]int{}
	words := make([][]string, len(m.Lines))
	for i, line := range m.Lines {
		words[i] = tokenize(line.Text)
		for _, w := range words[i] {
			freq[w]++
		}
	}

	type scored struct {
		idx   int
		score float64
	}
	var ranked []scored
	for i := range m.Lines {
		if len(words[i]) == 0 {
			continue
		}
		sum := 0
		for _, w := range words[i] {
			sum += freq[w]
		}
		ranked = append(ranked, scored{idx: i, score: float64(sum) / float64(len(words[i]))})
	}
	if len(ranked) == 0 {
		return "", errors.New("nothing to summarize")
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })
	if len(ranked) > maxLines {
		ranked = ranked[:maxLines]
	}
	sort.Slice(ranked, func(a, b int) bool { return ranked[a].idx < ranked[b].idx })

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s, %d attendees", m.Meeting, len(m.Attendees))
	for _, r := range ranked {
		line := m.Lines[r.idx]
		sb.WriteString("\n- ")
		if line.Author != "" {
			sb.WriteString(line.Author + ": ")
		}
		sb.WriteString(line.Text)
	}
	return sb.String(), nil
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "that": {}, "this": {}, "with": {},
	"you": {}, "are": {}, "was": {}, "have": {}, "has": {}, "not": {},
	"but": {}, "can": {}, "will": {}, "our": {}, "your": {}, "then": {},
	"what": {}, "when": {}, "where": {}, "how": {}, "all": {}, "out": {},
	"just": {}, "like": {}, "okay": {}, "yeah": {}, "yes": {}, "well": {},
	"think": {}, "know": {}, "going": {}, "about": {}, "there": {},
	"here": {}, "they": {}, "them": {}, "its": {},
}

func tokenize(s string) (out []string) {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range fields {
		if len(w) < 3 {
			continue
		}
		if _, skip := stopWords[w]; skip {
			continue
		}
		out = append(out, w)
	}
	return
}
