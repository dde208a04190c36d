package detector

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	dErrors "piiguard/pkg/domain-errors"
)

// DefaultMaxBytes bounds the size of a single document.
const DefaultMaxBytes = 1 << 20

// Detector finds sensitive spans and replaces them with category tokens.
// A Detector is safe for concurrent use.
type Detector struct {
	matchers []Matcher
	maxBytes int
	logger   *slog.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithMatchers adds matchers on top of the built-in set.
func WithMatchers(m ...Matcher) Option {
	return func(d *Detector) {
		d.matchers = append(d.matchers, m...)
	}
}

// WithOnlyMatchers replaces the built-in set.
func WithOnlyMatchers(m ...Matcher) Option {
	return func(d *Detector) {
		d.matchers = append([]Matcher(nil), m...)
	}
}

// WithMaxBytes sets the maximum accepted document size.
func WithMaxBytes(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.maxBytes = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		d.logger = logger
	}
}

// New builds a Detector with the default matcher set.
func New(opts ...Option) *Detector {
	d := &Detector{
		matchers: DefaultMatchers(),
		maxBytes: DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect finds sensitive spans in text and returns them with the anonymized
// text. On error no part of the text is returned.
func (d *Detector) Detect(text string) (*Result, error) {
	if err := d.checkInput(text); err != nil {
		return nil, err
	}

	items := d.settle(text)
	result := &Result{
		Items:             items,
		AnonymizedText:    substitute(text, items),
		OverallConfidence: overallConfidence(items),
	}
	if d.logger != nil {
		d.logger.Debug("detection complete",
			"items", len(items),
			"categories", len(result.Categories()),
		)
	}
	return result, nil
}

// Validate re-runs detection over anonymized text and fails with
// CodeUnsafeOutput if anything is still found. The error never carries the
// offending values.
func (d *Detector) Validate(anonymized string) error {
	if err := d.checkInput(anonymized); err != nil {
		return err
	}
	leaked := d.scan(anonymized)
	if len(leaked) == 0 {
		return nil
	}
	cats := CategoriesOf(leaked)
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = string(c)
	}
	if d.logger != nil {
		d.logger.Warn("anonymized output failed validation",
			"items", len(leaked),
			"categories", strings.Join(names, ","),
		)
	}
	return dErrors.New(dErrors.CodeUnsafeOutput,
		fmt.Sprintf("anonymized output still contains %d sensitive span(s): %s", len(leaked), strings.Join(names, ", ")))
}

func (d *Detector) checkInput(text string) error {
	if len(text) > d.maxBytes {
		return dErrors.New(dErrors.CodeDetectionFailed, fmt.Sprintf("document exceeds %d bytes", d.maxBytes))
	}
	if !utf8.ValidString(text) {
		return dErrors.New(dErrors.CodeDetectionFailed, "document is not valid UTF-8")
	}
	if strings.IndexByte(text, 0) >= 0 {
		return dErrors.New(dErrors.CodeDetectionFailed, "document contains NUL bytes")
	}
	return nil
}

// scan pools every matcher's candidates, resolves overlaps and numbers the
// survivors per category in order of appearance.
func (d *Detector) scan(text string) []Item {
	return number(text, d.candidates(text))
}

func (d *Detector) candidates(text string) []Match {
	var pool []Match
	for _, m := range d.matchers {
		pool = append(pool, m.FindAll(text)...)
	}
	return resolveOverlaps(pool)
}

// settle scans text and then rescans the anonymized result until it comes
// back clean. A span that lost an overlap, or a name glued to a value that
// has since become a token, is only detectable once its neighbour is
// replaced. Every round covers at least one more byte of text, so the loop
// terminates.
func (d *Detector) settle(text string) []Item {
	kept := d.candidates(text)
	for {
		items := number(text, kept)
		anonymized := substitute(text, items)
		residual := d.candidates(anonymized)
		if len(residual) == 0 {
			return items
		}
		next, grew := fold(kept, tokenSpans(items), residual)
		if !grew {
			if d.logger != nil {
				d.logger.Warn("detection did not settle", "residual", len(residual))
			}
			return items
		}
		kept = next
	}
}

// tokenSpan maps one substituted token back to the text it replaced.
type tokenSpan struct {
	anonStart, anonEnd int
	origStart, origEnd int
}

func tokenSpans(items []Item) []tokenSpan {
	spans := make([]tokenSpan, len(items))
	shift := 0
	for i, it := range items {
		start := it.Start + shift
		spans[i] = tokenSpan{anonStart: start, anonEnd: start + len(it.Token), origStart: it.Start, origEnd: it.End}
		shift += len(it.Token) - (it.End - it.Start)
	}
	return spans
}

// toOriginal converts an anonymized-text offset to an offset in the original
// text. An offset inside a token snaps outward to cover the whole token.
func toOriginal(spans []tokenSpan, pos int, isEnd bool) int {
	shift := 0
	for _, sp := range spans {
		if isEnd && pos > sp.anonStart && pos <= sp.anonEnd {
			return sp.origEnd
		}
		if !isEnd && pos >= sp.anonStart && pos < sp.anonEnd {
			return sp.origStart
		}
		if pos < sp.anonStart || (isEnd && pos == sp.anonStart) {
			break
		}
		shift += (sp.anonEnd - sp.anonStart) - (sp.origEnd - sp.origStart)
	}
	return pos - shift
}

// fold maps residual matches found in anonymized text back onto the original
// text and merges them with kept. A residual that touches a token absorbs the
// item behind it. grew reports whether any byte of text became covered.
func fold(kept []Match, spans []tokenSpan, residual []Match) ([]Match, bool) {
	grew := false
	for _, r := range residual {
		merged := Match{
			Category:   r.Category,
			Start:      toOriginal(spans, r.Start, false),
			End:        toOriginal(spans, r.End, true),
			Confidence: r.Confidence,
		}
		covered := 0
		survivors := kept[:0:0]
		for _, k := range kept {
			if !k.overlaps(merged) {
				survivors = append(survivors, k)
				continue
			}
			covered += min(k.End, merged.End) - max(k.Start, merged.Start)
			merged.Start = min(merged.Start, k.Start)
			merged.End = max(merged.End, k.End)
		}
		if covered < merged.End-merged.Start {
			grew = true
		}
		kept = append(survivors, merged)
	}
	sort.Slice(kept, func(i, j int) bool {
		return kept[i].Start < kept[j].Start
	})
	return kept, grew
}

// number turns resolved matches into items, numbering tokens per category in
// order of appearance.
func number(text string, kept []Match) []Item {
	counters := make(map[Category]int)
	items := make([]Item, len(kept))
	for i, m := range kept {
		counters[m.Category]++
		items[i] = Item{
			Category:   m.Category,
			RawValue:   text[m.Start:m.End],
			Start:      m.Start,
			End:        m.End,
			Confidence: m.Confidence,
			Token:      Token(m.Category, counters[m.Category]),
		}
	}
	return items
}

// resolveOverlaps keeps the highest-confidence candidate of every overlapping
// group and returns the survivors sorted by start offset. Equal confidences
// prefer the longer span, then the earlier one.
func resolveOverlaps(pool []Match) []Match {
	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i], pool[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if la, lb := a.End-a.Start, b.End-b.Start; la != lb {
			return la > lb
		}
		return a.Start < b.Start
	})

	kept := make([]Match, 0, len(pool))
	for _, candidate := range pool {
		clash := false
		for _, k := range kept {
			if candidate.overlaps(k) {
				clash = true
				break
			}
		}
		if !clash {
			kept = append(kept, candidate)
		}
	}

	sort.Slice(kept, func(i, j int) bool {
		return kept[i].Start < kept[j].Start
	})
	return kept
}

// substitute replaces item spans with their tokens, walking from the highest
// start offset down so the offsets of earlier items stay valid.
func substitute(text string, items []Item) string {
	if len(items) == 0 {
		return text
	}
	pieces := make([]string, 0, 2*len(items)+1)
	tail := len(text)
	for i := len(items) - 1; i >= 0; i-- {
		it := items[i]
		pieces = append(pieces, text[it.End:tail], it.Token)
		tail = it.Start
	}
	pieces = append(pieces, text[:tail])

	var b strings.Builder
	b.Grow(len(text))
	for i := len(pieces) - 1; i >= 0; i-- {
		b.WriteString(pieces[i])
	}
	return b.String()
}
