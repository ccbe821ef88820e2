package model

// BadgeRarity grades how hard a badge is to unlock.
type BadgeRarity string

const (
	RarityCommon    BadgeRarity = "common"
	RarityRare      BadgeRarity = "rare"
	RarityEpic      BadgeRarity = "epic"
	RarityLegendary BadgeRarity = "legendary"
)

// RequirementKind selects the DonorStats field a badge threshold applies to.
type RequirementKind string

const (
	RequireTotalDonations    RequirementKind = "total_donations"
	RequireTotalAmount       RequirementKind = "total_amount"
	RequireGoalsSupported    RequirementKind = "goals_supported"
	RequireConsecutiveMonths RequirementKind = "consecutive_months"
)

type BadgeRequirement struct {
	Kind      RequirementKind `json:"kind"`
	Threshold int64           `json:"threshold"`
}

// DonationBadge is a cosmetic unlock granted once a donor's aggregate stats cross a threshold.
type DonationBadge struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Rarity      BadgeRarity      `json:"rarity"`
	Requirement BadgeRequirement `json:"requirement"`
}

// DonorStats aggregates a donor's history.
type DonorStats struct {
	TotalDonations    int64 `json:"total_donations"`
	TotalAmount       int64 `json:"total_amount"`
	GoalsSupported    int64 `json:"goals_supported"`
	ConsecutiveMonths int64 `json:"consecutive_months"`
}

// Value returns the stat a requirement kind refers to.
func (s DonorStats) Value(kind RequirementKind) int64 {
	switch kind {
	case RequireTotalDonations:
		return s.TotalDonations
	case RequireTotalAmount:
		return s.TotalAmount
	case RequireGoalsSupported:
		return s.GoalsSupported
	case RequireConsecutiveMonths:
		return s.ConsecutiveMonths
	}
	return 0
}

// BadgeStatus is a badge evaluated against a donor's stats.
type BadgeStatus struct {
	Badge    DonationBadge `json:"badge"`
	Unlocked bool          `json:"unlocked"`
	Progress int64         `json:"progress"`
}

// DefaultBadges is the badge catalog shown on the donor profile.
var DefaultBadges = []DonationBadge{
	{ID: "first-donation", Name: "First Step", Description: "Made a first donation", Rarity: RarityCommon,
		Requirement: BadgeRequirement{Kind: RequireTotalDonations, Threshold: 1}},
	{ID: "regular-giver", Name: "Regular Giver", Description: "Made 10 donations", Rarity: RarityRare,
		Requirement: BadgeRequirement{Kind: RequireTotalDonations, Threshold: 10}},
	{ID: "generous-heart", Name: "Generous Heart", Description: "Donated 100.00 in total", Rarity: RarityRare,
		Requirement: BadgeRequirement{Kind: RequireTotalAmount, Threshold: 10000}},
	{ID: "patron", Name: "Patron", Description: "Donated 1,000.00 in total", Rarity: RarityEpic,
		Requirement: BadgeRequirement{Kind: RequireTotalAmount, Threshold: 100000}},
	{ID: "explorer", Name: "Explorer", Description: "Supported 5 different goals", Rarity: RarityEpic,
		Requirement: BadgeRequirement{Kind: RequireGoalsSupported, Threshold: 5}},
	{ID: "steadfast", Name: "Steadfast", Description: "Donated 12 months in a row", Rarity: RarityLegendary,
		Requirement: BadgeRequirement{Kind: RequireConsecutiveMonths, Threshold: 12}},
}
