package sealer

import (
	"context"
	"reflect"
	"testing"
	"unicode"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"piiguard/internal/detector"
	dErrors "piiguard/pkg/domain-errors"
)

func genItem() gopter.Gen {
	return gopter.CombineGens(
		gen.OneConstOf(detector.CategoryName, detector.CategoryEmail, detector.CategoryBankDetails, detector.CategoryAddress),
		gen.UnicodeString(unicode.Latin),
		gen.IntRange(0, 4096),
		gen.IntRange(1, 64),
		gen.Float64Range(0.5, 1.0),
		gen.IntRange(1, 99),
	).Map(func(v []interface{}) detector.Item {
		category := v[0].(detector.Category)
		start := v[2].(int)
		return detector.Item{
			Category:   category,
			RawValue:   v[1].(string),
			Start:      start,
			End:        start + v[3].(int),
			Confidence: v[4].(float64),
			Token:      detector.Token(category, v[5].(int)),
		}
	})
}

func genSecret() gopter.Gen {
	return gen.AlphaString().SuchThat(func(s string) bool { return s != "" })
}

// Key derivation dominates the cost of every case, so the run count is kept
// small.
func sealerProperties() *gopter.Properties {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 15
	return gopter.NewProperties(parameters)
}

// TestSealOpenRoundTrip checks that any items sealed under any secret open
// back to the same items with that secret.
func TestSealOpenRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(WithIterations(MinIterations))
	properties := sealerProperties()

	properties.Property("open(seal(items, secret), secret) == items", prop.ForAll(
		func(items []detector.Item, secret, sessionID string) bool {
			rec, err := s.SealItems(ctx, items, secret, sessionID)
			if err != nil {
				return false
			}
			got, err := s.OpenItems(ctx, rec, secret, sessionID)
			if err != nil {
				return false
			}
			return reflect.DeepEqual(items, got)
		},
		gen.SliceOfN(3, genItem()),
		genSecret(),
		gen.Identifier(),
	))

	properties.TestingRun(t)
}

// TestOpenWithOtherSecretFails checks that a record never opens under a
// different secret.
func TestOpenWithOtherSecretFails(t *testing.T) {
	ctx := context.Background()
	s := New(WithIterations(MinIterations))
	properties := sealerProperties()

	properties.Property("open(seal(items, a), b) fails when a != b", prop.ForAll(
		func(items []detector.Item, secret, other string) bool {
			if secret == other {
				return true
			}
			rec, err := s.SealItems(ctx, items, secret, "sess")
			if err != nil {
				return false
			}
			_, err = s.OpenItems(ctx, rec, other, "sess")
			return dErrors.HasCode(err, dErrors.CodeDecryptionFailed)
		},
		gen.SliceOfN(2, genItem()),
		genSecret(),
		genSecret(),
	))

	properties.TestingRun(t)
}
