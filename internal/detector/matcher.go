package detector

import (
	"regexp"
	"unicode"
	"unicode/utf8"
)

// Match is a candidate span reported by a Matcher, before overlap resolution.
type Match struct {
	Category   Category
	Start      int
	End        int
	Confidence float64
}

func (m Match) overlaps(o Match) bool {
	return m.Start < o.End && o.Start < m.End
}

// Matcher finds candidate spans of one category.
type Matcher interface {
	Category() Category
	FindAll(text string) []Match
}

// RegexOption configures a regex-backed matcher.
type RegexOption func(*regexMatcher)

// WithGroup reports the span of capture group n instead of the whole match.
func WithGroup(n int) RegexOption {
	return func(m *regexMatcher) {
		m.group = n
	}
}

// WithValidator discards candidates whose matched value fails fn.
func WithValidator(fn func(string) bool) RegexOption {
	return func(m *regexMatcher) {
		m.validate = fn
	}
}

type regexMatcher struct {
	category   Category
	re         *regexp.Regexp
	group      int
	confidence float64
	validate   func(string) bool
}

// NewRegexMatcher compiles expr into a Matcher with a fixed base confidence.
func NewRegexMatcher(category Category, expr string, confidence float64, opts ...RegexOption) (Matcher, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	return newRegexMatcher(category, re, confidence, opts...), nil
}

func mustRegexMatcher(category Category, expr string, confidence float64, opts ...RegexOption) Matcher {
	return newRegexMatcher(category, regexp.MustCompile(expr), confidence, opts...)
}

func newRegexMatcher(category Category, re *regexp.Regexp, confidence float64, opts ...RegexOption) *regexMatcher {
	m := &regexMatcher{category: category, re: re, confidence: confidence}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *regexMatcher) Category() Category {
	return m.category
}

func (m *regexMatcher) FindAll(text string) []Match {
	var out []Match
	for _, idx := range m.re.FindAllStringSubmatchIndex(text, -1) {
		if match, ok := m.accept(text, idx, 0); ok {
			out = append(out, match)
			continue
		}
		if m.validate != nil {
			out = append(out, m.retryInside(text, idx[0], idx[1])...)
		}
	}
	return out
}

// accept turns a submatch index, relative to text[offset:], into a Match if
// the reported span is non-empty and passes the validator.
func (m *regexMatcher) accept(text string, idx []int, offset int) (Match, bool) {
	if 2*m.group+1 >= len(idx) {
		return Match{}, false
	}
	start, end := idx[2*m.group], idx[2*m.group+1]
	if start < 0 || end <= start {
		return Match{}, false
	}
	start, end = start+offset, end+offset
	if m.validate != nil && !m.validate(text[start:end]) {
		return Match{}, false
	}
	return Match{Category: m.category, Start: start, End: end, Confidence: m.confidence}, true
}

// retryInside re-matches from every word start inside a span the validator
// rejected. The leftmost match can swallow a leading digit group and fail its
// checksum while a valid value starts one group later.
func (m *regexMatcher) retryInside(text string, start, end int) []Match {
	var out []Match
	for pos := start + 1; pos < end; pos++ {
		if !wordStart(text, pos) {
			continue
		}
		idx := m.re.FindStringSubmatchIndex(text[pos:])
		if idx == nil || idx[0] != 0 {
			continue
		}
		if match, ok := m.accept(text, idx, pos); ok {
			out = append(out, match)
			pos = match.End - 1
		}
	}
	return out
}

// wordStart reports whether a word rune begins at pos after a non-word rune,
// so slicing text at pos keeps \b semantics intact.
func wordStart(text string, pos int) bool {
	if !utf8.RuneStart(text[pos]) {
		return false
	}
	prev, _ := utf8.DecodeLastRuneInString(text[:pos])
	cur, _ := utf8.DecodeRuneInString(text[pos:])
	return !isWordRune(prev) && isWordRune(cur)
}

const nameWord = `\p{Lu}\p{Ll}+(?:\p{Lu}\p{Ll}+)?(?:['’\-]\p{L}\p{Ll}+)?`

var (
	nameRunRe  = regexp.MustCompile(nameWord + `(?:[ \t]+` + nameWord + `)+`)
	nameWordRe = regexp.MustCompile(nameWord)
)

// nameStopWords are capitalised words that commonly start or end a run of
// capitalised text without being part of a person's name.
var nameStopWords = toSet(
	// greetings and verbs
	"Contact", "Dear", "Hello", "Hi", "Hey", "Please", "Call", "Email", "Phone", "Ask",
	"Reach", "Thanks", "Thank", "Regards", "Best", "Kind", "Sincerely", "Cheers", "Attn",
	"From", "To", "Re", "Subject", "Cc", "Write", "Send", "Visit", "See", "Note",
	// determiners and pronouns
	"The", "This", "That", "These", "Those", "Our", "Your", "My", "We", "He", "She", "They",
	"It", "Its", "His", "Her", "Their", "An", "And", "Or", "But", "If", "When", "For", "With",
	// honorifics
	"Mr", "Mrs", "Ms", "Miss", "Mx", "Dr", "Prof", "Sir", "Madam", "Madame",
	// insurance vocabulary
	"Policy", "Premium", "Account", "Claim", "Customer", "Member", "Insurance", "Health",
	"Life", "Motor", "Home", "Travel", "Cover", "Coverage", "Plan", "Quote", "Renewal",
	"Reference", "Ref", "Number", "No", "Date", "Birth", "Name", "Address", "Bank", "Card",
	"Insured", "Policyholder", "Patient", "Applicant", "Total", "Monthly", "Annual",
	// calendar
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
	"January", "February", "March", "April", "May", "June", "July", "August",
	"September", "October", "November", "December",
	// street types
	"Street", "Avenue", "Road", "Lane", "Drive", "Court", "Way", "Place", "Terrace",
	"Close", "Crescent", "Square", "Boulevard",
)

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// nameMatcher flags runs of two to four capitalised words, splitting runs at
// stop words. It is the loosest matcher and carries a low confidence.
type nameMatcher struct {
	confidence float64
}

func (m *nameMatcher) Category() Category {
	return CategoryName
}

func (m *nameMatcher) FindAll(text string) []Match {
	var out []Match
	for _, run := range nameRunRe.FindAllStringIndex(text, -1) {
		if !wordBoundary(text, run[0], run[1]) {
			continue
		}
		words := nameWordRe.FindAllStringIndex(text[run[0]:run[1]], -1)
		var group [][]int
		flush := func() {
			if len(group) >= 2 && len(group) <= 4 {
				out = append(out, Match{
					Category:   CategoryName,
					Start:      run[0] + group[0][0],
					End:        run[0] + group[len(group)-1][1],
					Confidence: m.confidence,
				})
			}
			group = group[:0]
		}
		for _, w := range words {
			if _, stop := nameStopWords[text[run[0]+w[0]:run[0]+w[1]]]; stop {
				flush()
				continue
			}
			group = append(group, w)
		}
		flush()
	}
	return out
}

// wordBoundary reports whether text[start:end] is not glued to neighbouring
// letters or digits. regexp's \b only understands ASCII.
func wordBoundary(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// honorificNameMatcher wraps a regex matcher and trims trailing stop words
// from the captured name.
type honorificNameMatcher struct {
	inner *regexMatcher
}

func (m *honorificNameMatcher) Category() Category {
	return CategoryName
}

func (m *honorificNameMatcher) FindAll(text string) []Match {
	var out []Match
	for _, match := range m.inner.FindAll(text) {
		words := nameWordRe.FindAllStringIndex(text[match.Start:match.End], -1)
		end := match.Start
		for _, w := range words {
			if _, stop := nameStopWords[text[match.Start+w[0]:match.Start+w[1]]]; stop {
				break
			}
			end = match.Start + w[1]
		}
		if end == match.Start {
			continue
		}
		match.End = end
		out = append(out, match)
	}
	return out
}
