package leaderboard

import (
	"errors"
	"time"
)

// LifecycleState is the computed position of a competition on the timeline.
type LifecycleState string

const (
	LifecycleUpcoming LifecycleState = "upcoming"
	LifecycleCurrent  LifecycleState = "current"
	LifecyclePast     LifecycleState = "past"
)

var (
	// ErrAlreadyJoined signals an idempotent duplicate join attempt.
	ErrAlreadyJoined = errors.New("leaderboard: participant already joined")
	// ErrContestEnded rejects joins after the competition's end time.
	ErrContestEnded = errors.New("leaderboard: contest has ended")
)

// StatusOf classifies the competition's lifecycle at the given instant.
// Both boundaries count as current.
func StatusOf(competition *Competition, now time.Time) LifecycleState {
	if now.Before(competition.StartDate) {
		return LifecycleUpcoming
	}
	if now.After(competition.EndDate) {
		return LifecyclePast
	}
	return LifecycleCurrent
}

// ProgressOf returns the integer percentage of the window elapsed at now:
// 0 while upcoming, 100 once past, floor interpolation in between.
func ProgressOf(competition *Competition, now time.Time) int {
	switch StatusOf(competition, now) {
	case LifecycleUpcoming:
		return 0
	case LifecyclePast:
		return 100
	}
	window := competition.EndDate.Sub(competition.StartDate).Seconds()
	if window <= 0 {
		return 100
	}
	elapsed := now.Sub(competition.StartDate).Seconds()
	return int(100 * elapsed / window)
}

// DaysRemaining counts whole days until start (upcoming) or end (current);
// 0 once the competition is past.
func DaysRemaining(competition *Competition, now time.Time) int {
	switch StatusOf(competition, now) {
	case LifecycleUpcoming:
		return int(competition.StartDate.Sub(now).Hours() / 24)
	case LifecycleCurrent:
		return int(competition.EndDate.Sub(now).Hours() / 24)
	default:
		return 0
	}
}

// Join appends the participant with a zero score and joined-at set to now.
// Duplicate ids and joins after the end time are rejected.
func Join(competition *Competition, participant Participant, now time.Time) error {
	if competition.HasParticipant(participant.ID) {
		return ErrAlreadyJoined
	}
	if now.After(competition.EndDate) {
		return ErrContestEnded
	}
	participant.Score = 0
	participant.JoinedAt = now.UTC()
	competition.Participants = append(competition.Participants, participant)
	return nil
}
