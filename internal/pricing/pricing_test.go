package pricing

import (
	"testing"

	"github.com/you/bulkops/internal/domain"
	"github.com/you/bulkops/internal/marketplace"
)

func f(v float64) *float64 { return &v }

func TestResolveDealPrice(t *testing.T) {
	it := marketplace.Item{ID: "a", OriginalPrice: 100, CurrentPrice: f(80)}
	res := Resolve(it, domain.PriceSuggested, DefaultConfig())
	if res.TargetPrice == nil || *res.TargetPrice != 80 {
		t.Fatalf("target = %v, want 80", res.TargetPrice)
	}
	if res.DerivedPercent == nil || *res.DerivedPercent != 20 {
		t.Fatalf("derived = %v, want 20", res.DerivedPercent)
	}
}

func TestResolveRejectsImplausibleDeal(t *testing.T) {
	// 95% off is above the 70% ceiling; with no other fields the item
	// must be unresolvable, not an error.
	it := marketplace.Item{ID: "a", OriginalPrice: 100, CurrentPrice: f(5)}
	res := Resolve(it, domain.PriceSuggested, DefaultConfig())
	if res.TargetPrice != nil {
		t.Fatalf("target = %v, want nil", *res.TargetPrice)
	}
}

func TestResolvePolicyOrder(t *testing.T) {
	it := marketplace.Item{
		OriginalPrice:  100,
		SuggestedPrice: f(90),
		MinPrice:       f(60),
		MaxPrice:       f(95),
	}
	cases := []struct {
		policy domain.PricePolicy
		want   float64
	}{
		{domain.PriceMin, 60},
		{domain.PriceSuggested, 90},
		{domain.PriceMax, 95},
	}
	for _, c := range cases {
		res := Resolve(it, c.policy, DefaultConfig())
		if res.TargetPrice == nil || *res.TargetPrice != c.want {
			t.Errorf("policy %s: target = %v, want %v", c.policy, res.TargetPrice, c.want)
		}
	}
}

func TestResolveSkipsImplausibleCandidate(t *testing.T) {
	// Min price of zero is not a usable value; resolution moves on to
	// the next candidate in order.
	it := marketplace.Item{OriginalPrice: 100, MinPrice: f(0), SuggestedPrice: f(90)}
	res := Resolve(it, domain.PriceMin, DefaultConfig())
	if res.TargetPrice == nil || *res.TargetPrice != 90 {
		t.Fatalf("target = %v, want 90", res.TargetPrice)
	}
}

func TestResolvePercentBand(t *testing.T) {
	it := marketplace.Item{OriginalPrice: 200, PercentHint: f(20)}
	res := Resolve(it, domain.PriceSuggested, DefaultConfig())
	if res.TargetPrice == nil || *res.TargetPrice != 160 {
		t.Fatalf("target = %v, want 160", res.TargetPrice)
	}
}

func TestResolvePercentOutsideBand(t *testing.T) {
	for _, hint := range []float64{4, 41, 90} {
		it := marketplace.Item{OriginalPrice: 200, PercentHint: f(hint)}
		if res := Resolve(it, domain.PriceSuggested, DefaultConfig()); res.TargetPrice != nil {
			t.Errorf("hint %v: target = %v, want nil", hint, *res.TargetPrice)
		}
	}
}

func TestResolveNoOriginalPrice(t *testing.T) {
	it := marketplace.Item{CurrentPrice: f(10), PercentHint: f(20)}
	if res := Resolve(it, domain.PriceSuggested, DefaultConfig()); res.TargetPrice != nil {
		t.Fatalf("target = %v, want nil", *res.TargetPrice)
	}
}

func TestResolveIdempotent(t *testing.T) {
	it := marketplace.Item{OriginalPrice: 100, SuggestedPrice: f(75)}
	a := Resolve(it, domain.PriceSuggested, DefaultConfig())
	b := Resolve(it, domain.PriceSuggested, DefaultConfig())
	if *a.TargetPrice != *b.TargetPrice || *a.DerivedPercent != *b.DerivedPercent {
		t.Fatalf("resolution not stable: %v/%v vs %v/%v",
			*a.TargetPrice, *a.DerivedPercent, *b.TargetPrice, *b.DerivedPercent)
	}
}

func TestEligiblePredicatesIndependent(t *testing.T) {
	it := marketplace.Item{ID: "a", Status: "candidate", OriginalPrice: 100, CurrentPrice: f(80)}
	res := Resolve(it, domain.PriceSuggested, DefaultConfig())
	str := func(s string) *string { return &s }

	if !Eligible(it, domain.FilterSpec{}, res) {
		t.Fatal("empty spec must include")
	}
	pass := domain.FilterSpec{Status: str("candidate"), ExactID: str("a"), MaxDerivedPercent: f(30)}
	if !Eligible(it, pass, res) {
		t.Fatal("all predicates true must include")
	}
	for name, spec := range map[string]domain.FilterSpec{
		"exactId": {Status: str("candidate"), ExactID: str("other"), MaxDerivedPercent: f(30)},
		"status":  {Status: str("ended"), ExactID: str("a"), MaxDerivedPercent: f(30)},
		"ceiling": {Status: str("candidate"), ExactID: str("a"), MaxDerivedPercent: f(10)},
	} {
		if Eligible(it, spec, res) {
			t.Errorf("%s: flipped predicate must exclude", name)
		}
	}
}

func TestEligibleCeilingNeedsResolution(t *testing.T) {
	it := marketplace.Item{ID: "a", Status: "candidate", OriginalPrice: 100}
	if Eligible(it, domain.FilterSpec{MaxDerivedPercent: f(50)}, Resolution{}) {
		t.Fatal("active ceiling with unresolvable percent must exclude")
	}
}
