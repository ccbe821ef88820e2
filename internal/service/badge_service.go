package service

import (
	"context"
	"time"

	"github.com/athena-pocket/backend/internal/model"
	"github.com/athena-pocket/backend/internal/repository"
)

// BadgeReport is a donor's stats with every catalog badge evaluated.
type BadgeReport struct {
	Stats  model.DonorStats    `json:"stats"`
	Badges []model.BadgeStatus `json:"badges"`
}

// BadgeService derives badges from a user's donation history. Nothing is
// stored; every call recomputes from the ledger.
type BadgeService interface {
	BadgesForUser(ctx context.Context, userID string) (*BadgeReport, error)
}

type badgeService struct {
	donations repository.DonationRepository
	catalog   []model.DonationBadge
	now       func() time.Time
}

// NewBadgeService creates a BadgeService over model.DefaultBadges.
func NewBadgeService(donations repository.DonationRepository) BadgeService {
	return &badgeService{donations: donations, catalog: model.DefaultBadges, now: time.Now}
}

func (s *badgeService) BadgesForUser(ctx context.Context, userID string) (*BadgeReport, error) {
	ds, err := s.donations.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats := ComputeDonorStats(ds, s.now())
	return &BadgeReport{Stats: stats, Badges: EvaluateBadges(stats, s.catalog)}, nil
}

// ComputeDonorStats aggregates completed donations made up to now.
// ConsecutiveMonths is the longest run of consecutive calendar months (UTC)
// with at least one donation.
func ComputeDonorStats(donations []*model.Donation, now time.Time) model.DonorStats {
	var stats model.DonorStats
	goals := make(map[string]struct{})
	months := make(map[int]struct{})
	for _, d := range donations {
		if d.Status == model.DonationRefunded || d.CreatedAt.After(now) {
			continue
		}
		stats.TotalDonations++
		stats.TotalAmount += d.Amount
		goals[d.GoalID] = struct{}{}
		t := d.CreatedAt.UTC()
		months[t.Year()*12+int(t.Month())-1] = struct{}{}
	}
	stats.GoalsSupported = int64(len(goals))

	var longest int64
	for m := range months {
		if _, ok := months[m-1]; ok {
			continue // not the start of a run
		}
		var run int64
		for {
			if _, ok := months[m+int(run)]; !ok {
				break
			}
			run++
		}
		longest = max(longest, run)
	}
	stats.ConsecutiveMonths = longest
	return stats
}

// EvaluateBadges reports each badge as unlocked iff its stat reaches the threshold.
func EvaluateBadges(stats model.DonorStats, badges []model.DonationBadge) []model.BadgeStatus {
	out := make([]model.BadgeStatus, 0, len(badges))
	for _, b := range badges {
		v := stats.Value(b.Requirement.Kind)
		out = append(out, model.BadgeStatus{
			Badge:    b,
			Unlocked: v >= b.Requirement.Threshold,
			Progress: min(v, b.Requirement.Threshold),
		})
	}
	return out
}
