package detector

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var sensitiveFragments = []string{
	"Jane Smith",
	"jane@x.com",
	"555-123-4567",
	"$450",
	"DOB: 01/02/1980",
	"123-45-6789",
	"GB82 WEST 1234 5698 7654 32",
	"4111 1111 1111 1111",
	"Policy No: PX-884421",
	"221 Baker Street",
	"SW1A 1AA",
	"Mr Brown",
	"+44 20 7946 0958",
}

// fillers include glued joins so fragments can touch each other digit to
// digit or letter to letter.
var fillers = []string{" and ", " then ", ", see ", ". also ", " was sent to ", " with ", "", " ", "-", "1980 ", "Jane "}

func composeDocument(picks, seps []int) string {
	var b strings.Builder
	for i, p := range picks {
		if i > 0 {
			b.WriteString(fillers[seps[i%len(seps)]%len(fillers)])
		}
		b.WriteString(sensitiveFragments[p%len(sensitiveFragments)])
	}
	return b.String()
}

// genNoise produces short runs of printable ASCII and a few accented letters.
func genNoise() gopter.Gen {
	return gen.SliceOfN(12, gen.OneGenOf(
		gen.RuneRange(' ', '~'),
		gen.RuneRange('À', 'ÿ'),
	)).Map(func(rs []rune) string {
		return string(rs)
	})
}

type piece struct {
	Fragment int
	Noise    string
	Sep      int
}

func genPieces() gopter.Gen {
	return gen.SliceOf(gopter.CombineGens(
		gen.IntRange(0, len(sensitiveFragments)-1),
		genNoise(),
		gen.IntRange(0, len(fillers)-1),
	).Map(func(v []interface{}) piece {
		return piece{Fragment: v[0].(int), Noise: v[1].(string), Sep: v[2].(int)}
	}))
}

// composeNoisy interleaves fragments with random noise and joins, so values
// land glued to digits, letters and punctuation.
func composeNoisy(pieces []piece) string {
	var b strings.Builder
	for _, p := range pieces {
		b.WriteString(p.Noise)
		b.WriteString(fillers[p.Sep])
		b.WriteString(sensitiveFragments[p.Fragment])
	}
	return b.String()
}

func settlesClean(d *Detector, text string) bool {
	result, err := d.Detect(text)
	if err != nil {
		return false
	}
	for _, it := range result.Items {
		if text[it.Start:it.End] != it.RawValue {
			return false
		}
	}
	return d.Validate(result.AnonymizedText) == nil
}

// TestAnonymizedOutputHasNoResidualPII checks that re-running detection over
// anonymized output never finds anything.
func TestAnonymizedOutputHasNoResidualPII(t *testing.T) {
	d := New()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("validate(anonymize(text)) finds nothing", prop.ForAll(
		func(picks, seps []int) bool {
			if len(seps) == 0 {
				seps = []int{0}
			}
			return settlesClean(d, composeDocument(picks, seps))
		},
		gen.SliceOf(gen.IntRange(0, len(sensitiveFragments)-1)),
		gen.SliceOf(gen.IntRange(0, len(fillers)-1)),
	))

	properties.Property("glued fragments and noise settle clean", prop.ForAll(
		func(pieces []piece) bool {
			return settlesClean(d, composeNoisy(pieces))
		},
		genPieces(),
	))

	properties.Property("random printable text settles clean", prop.ForAll(
		func(noise []string) bool {
			return settlesClean(d, strings.Join(noise, ""))
		},
		gen.SliceOf(genNoise()),
	))

	properties.Property("raw values never survive anonymization", prop.ForAll(
		func(picks []int) bool {
			result, err := d.Detect(composeDocument(picks, []int{0}))
			if err != nil {
				return false
			}
			for _, it := range result.Items {
				if strings.Contains(result.AnonymizedText, it.RawValue) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(sensitiveFragments)-1)),
	))

	properties.TestingRun(t)
}

// TestTokenNumbering checks that tokens of one category are numbered 1..n in
// order of appearance and never repeat.
func TestTokenNumbering(t *testing.T) {
	d := New()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("per-category tokens are sequential and unique", prop.ForAll(
		func(picks []int) bool {
			result, err := d.Detect(composeDocument(picks, []int{1}))
			if err != nil {
				return false
			}
			next := make(map[Category]int)
			seen := make(map[string]bool)
			for i, it := range result.Items {
				next[it.Category]++
				if it.Token != Token(it.Category, next[it.Category]) || seen[it.Token] {
					return false
				}
				seen[it.Token] = true
				if i > 0 && result.Items[i-1].End > it.Start {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(sensitiveFragments)-1)),
	))

	properties.TestingRun(t)
}

// TestOverlapResolution checks that of two overlapping candidates with
// different confidences only the stronger survives.
func TestOverlapResolution(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("higher confidence wins", prop.ForAll(
		func(aStart, aLen, bShift, bLen int, aConf, bConf float64) bool {
			if aConf == bConf {
				return true
			}
			a := Match{Category: CategoryEmail, Start: aStart, End: aStart + aLen, Confidence: aConf}
			b := Match{Category: CategoryPhone, Start: aStart + bShift, End: aStart + bShift + bLen, Confidence: bConf}
			if !a.overlaps(b) {
				return len(resolveOverlaps([]Match{a, b})) == 2
			}
			kept := resolveOverlaps([]Match{a, b})
			if len(kept) != 1 {
				return false
			}
			if aConf > bConf {
				return kept[0] == a
			}
			return kept[0] == b
		},
		gen.IntRange(0, 100),
		gen.IntRange(1, 20),
		gen.IntRange(0, 25),
		gen.IntRange(1, 20),
		gen.Float64Range(0.5, 1.0),
		gen.Float64Range(0.5, 1.0),
	))

	properties.TestingRun(t)
}
