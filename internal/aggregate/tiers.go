package aggregate

// Tier is a named reputation bracket. The ordering is fixed protocol-wide:
// unranked < bronze < silver < gold < platinum < diamond.
type Tier int

const (
	TierUnranked Tier = iota
	TierBronze
	TierSilver
	TierGold
	TierPlatinum
	TierDiamond
)

var tierNames = map[Tier]string{
	TierUnranked: "unranked",
	TierBronze:   "bronze",
	TierSilver:   "silver",
	TierGold:     "gold",
	TierPlatinum: "platinum",
	TierDiamond:  "diamond",
}

var tiersByName = map[string]Tier{
	"unranked": TierUnranked,
	"bronze":   TierBronze,
	"silver":   TierSilver,
	"gold":     TierGold,
	"platinum": TierPlatinum,
	"diamond":  TierDiamond,
}

// String returns the tier name.
func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "unranked"
}

// ParseTier maps a tier name back to its value. Unknown names parse as
// unranked, the weakest bracket (fail-closed for minimum-tier checks).
func ParseTier(name string) (Tier, bool) {
	t, ok := tiersByName[name]
	return t, ok
}

// reputationThresholds maps each tier to the minimum average rating and
// minimum feedback count required to hold it. Ordered strongest first; the
// first satisfied row wins. This table and minimumStakes (internal/insurance)
// share tier names but run in inverted orderings; keep each in its owning
// package and never inline the constants.
var reputationThresholds = []struct {
	tier        Tier
	minAvg      uint64
	minFeedback uint64
}{
	{TierDiamond, 90, 50},
	{TierPlatinum, 80, 25},
	{TierGold, 70, 10},
	{TierSilver, 60, 5},
	{TierBronze, 50, 1},
}

// TierFor returns the highest tier satisfied by an average rating and
// feedback volume.
func TierFor(avgRating, feedbackCount uint64) Tier {
	for _, row := range reputationThresholds {
		if avgRating >= row.minAvg && feedbackCount >= row.minFeedback {
			return row.tier
		}
	}
	return TierUnranked
}
