package aggregate

import "testing"

func TestTierFor(t *testing.T) {
	cases := []struct {
		name     string
		avg      uint64
		feedback uint64
		want     Tier
	}{
		{"no feedback", 0, 0, TierUnranked},
		{"high rating but too few reviews", 95, 3, TierBronze},
		{"bronze floor", 50, 1, TierBronze},
		{"just under bronze", 49, 10, TierUnranked},
		{"silver floor", 60, 5, TierSilver},
		{"gold floor", 70, 10, TierGold},
		{"platinum floor", 80, 25, TierPlatinum},
		{"diamond floor", 90, 50, TierDiamond},
		{"diamond rating, platinum volume", 95, 30, TierPlatinum},
		{"rating gates despite volume", 65, 200, TierSilver},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := TierFor(tc.avg, tc.feedback); got != tc.want {
				t.Errorf("TierFor(%d, %d) = %v, want %v", tc.avg, tc.feedback, got, tc.want)
			}
		})
	}
}

func TestTierOrdering(t *testing.T) {
	order := []Tier{TierUnranked, TierBronze, TierSilver, TierGold, TierPlatinum, TierDiamond}
	for i := 1; i < len(order); i++ {
		if order[i-1] >= order[i] {
			t.Errorf("%v not below %v", order[i-1], order[i])
		}
	}
}

func TestParseTierRoundTrip(t *testing.T) {
	for _, name := range []string{"unranked", "bronze", "silver", "gold", "platinum", "diamond"} {
		tier, ok := ParseTier(name)
		if !ok {
			t.Errorf("ParseTier(%q) not ok", name)
			continue
		}
		if tier.String() != name {
			t.Errorf("round trip %q -> %v -> %q", name, tier, tier.String())
		}
	}

	if _, ok := ParseTier("obsidian"); ok {
		t.Errorf("ParseTier accepted unknown tier")
	}
	if _, ok := ParseTier("Gold"); ok {
		t.Errorf("tier names are case-sensitive")
	}
}
