package leaderboard

import (
	"context"
	"sort"
	"time"

	"gorm.io/gorm"
)

// Standing is a participant's derived rank and score snapshot. Never persisted.
type Standing struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	Score         int    `json:"current_score"`
	Rank          int    `json:"rank"`
}

// CurrentTier returns the highest tier whose threshold does not exceed the
// score, or nil when the score is below every threshold.
func CurrentTier(tiers []BonusTier, score int) *BonusTier {
	var best *BonusTier
	for i := range tiers {
		tier := &tiers[i]
		if tier.SignupThreshold > score {
			continue
		}
		if best == nil || tier.SignupThreshold > best.SignupThreshold {
			best = tier
		}
	}
	return best
}

// standingsOf ranks participants by score descending, breaking ties by the
// earliest join time. Re-running with identical inputs yields identical output.
func standingsOf(competition *Competition, scores map[string]int) []Standing {
	participants := append(ParticipantList(nil), competition.Participants...)
	sort.SliceStable(participants, func(i, j int) bool {
		left, right := participants[i], participants[j]
		leftScore, rightScore := scores[left.ID], scores[right.ID]
		if leftScore != rightScore {
			return leftScore > rightScore
		}
		if !left.JoinedAt.Equal(right.JoinedAt) {
			return left.JoinedAt.Before(right.JoinedAt)
		}
		return left.ID < right.ID
	})

	standings := make([]Standing, 0, len(participants))
	for position, participant := range participants {
		standings = append(standings, Standing{
			ParticipantID: participant.ID,
			Name:          participant.Name,
			Score:         scores[participant.ID],
			Rank:          position + 1,
		})
	}
	return standings
}

// resolveScores computes each participant's current score from the metric
// matching the competition type. Signup and revenue competitions aggregate
// reconciled records falling inside the competition window; lead and other
// competitions use the participant's accumulated counter.
func (s *Service) resolveScores(ctx context.Context, competition *Competition) (map[string]int, error) {
	scores := make(map[string]int, len(competition.Participants))

	switch competition.Type {
	case CompetitionTypeSignups, CompetitionTypeRevenue:
		for _, participant := range competition.Participants {
			total, err := s.aggregateRecords(ctx, competition, participant.Name)
			if err != nil {
				return nil, err
			}
			scores[participant.ID] = total
		}
	default:
		for _, participant := range competition.Participants {
			scores[participant.ID] = participant.Score
		}
	}
	return scores, nil
}

func (s *Service) aggregateRecords(ctx context.Context, competition *Competition, repName string) (int, error) {
	column := "signups"
	if competition.Type == CompetitionTypeRevenue {
		column = "revenue"
	}

	var total float64
	query := s.db.WithContext(ctx).
		Model(&SignupRecord{}).
		Select("COALESCE(SUM(" + column + "), 0)").
		Where("rep_name = ?", repName)
	query = wherePeriodWithin(query, competition.StartDate, competition.EndDate)
	if err := query.Scan(&total).Error; err != nil {
		return 0, err
	}
	return int(total), nil
}

// wherePeriodWithin restricts records to (month, year) periods overlapping the
// competition window, expressed as a comparable year*100+month ordinal.
func wherePeriodWithin(query *gorm.DB, start, end time.Time) *gorm.DB {
	startOrdinal := start.Year()*100 + int(start.Month())
	endOrdinal := end.Year()*100 + int(end.Month())
	return query.Where("year * 100 + month BETWEEN ? AND ?", startOrdinal, endOrdinal)
}
