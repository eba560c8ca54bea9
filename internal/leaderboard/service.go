package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")

	// ErrCompetitionNotFound indicates the requested competition id is unknown.
	ErrCompetitionNotFound = errors.New("leaderboard: competition not found")
	// ErrInvalidCompetition rejects malformed competition input.
	ErrInvalidCompetition = errors.New("leaderboard: invalid competition")
	// ErrInvalidTier rejects a bonus tier that breaks the ascending-threshold invariant.
	ErrInvalidTier = errors.New("leaderboard: invalid bonus tier")
)

// ServiceConfig describes the dependencies for the leaderboard service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service manages competitions, bonus tiers and derived standings.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the leaderboard service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, clock: clock, idProvider: cfg.IDProvider, logger: logger}, nil
}

// CompetitionInput carries the author-supplied fields for a new competition.
type CompetitionInput struct {
	Name             string
	Description      string
	Type             CompetitionType
	StartDate        time.Time
	EndDate          time.Time
	PrizeDescription string
	Rules            string
	Status           CompetitionStatus
	Participants     []Participant
}

// CreateCompetition validates and persists a new competition.
func (s *Service) CreateCompetition(ctx context.Context, input CompetitionInput) (*Competition, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidCompetition)
	}
	if input.StartDate.IsZero() || input.EndDate.IsZero() {
		return nil, fmt.Errorf("%w: start and end dates are required", ErrInvalidCompetition)
	}
	if !input.EndDate.After(input.StartDate) {
		return nil, fmt.Errorf("%w: end date must follow start date", ErrInvalidCompetition)
	}
	switch input.Type {
	case CompetitionTypeSignups, CompetitionTypeRevenue, CompetitionTypeLeads, CompetitionTypeOther:
	default:
		return nil, fmt.Errorf("%w: unknown competition type %q", ErrInvalidCompetition, input.Type)
	}

	status := input.Status
	if status == "" {
		status = CompetitionStatusActive
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return nil, err
	}

	now := s.clock().UTC()
	participants := make(ParticipantList, 0, len(input.Participants))
	for _, participant := range input.Participants {
		if participant.ID == "" {
			continue
		}
		if participant.JoinedAt.IsZero() {
			participant.JoinedAt = now
		}
		participants = append(participants, participant)
	}

	competition := &Competition{
		ID:               id,
		Name:             strings.TrimSpace(input.Name),
		Description:      input.Description,
		Type:             input.Type,
		StartDate:        input.StartDate.UTC(),
		EndDate:          input.EndDate.UTC(),
		PrizeDescription: input.PrizeDescription,
		Rules:            input.Rules,
		Status:           status,
		Participants:     participants,
	}
	if err := s.db.WithContext(ctx).Create(competition).Error; err != nil {
		return nil, err
	}
	s.logger.Info("competition created",
		zap.String("competition_id", competition.ID),
		zap.String("competition_type", string(competition.Type)))
	return competition, nil
}

// ListCompetitions returns all competitions ordered by start date descending.
func (s *Service) ListCompetitions(ctx context.Context) ([]Competition, error) {
	var competitions []Competition
	err := s.db.WithContext(ctx).Order("start_date DESC").Find(&competitions).Error
	return competitions, err
}

// GetCompetition loads a single competition by id.
func (s *Service) GetCompetition(ctx context.Context, id string) (*Competition, error) {
	var competition Competition
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&competition).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCompetitionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &competition, nil
}

// JoinCompetition enrolls the participant. Duplicate joins and joins after
// the end date surface the engine's typed rejections.
func (s *Service) JoinCompetition(ctx context.Context, id string, participant Participant) (*Competition, error) {
	competition, err := s.GetCompetition(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Join(competition, participant, s.clock().UTC()); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).
		Model(&Competition{}).
		Where("id = ?", competition.ID).
		Update("participants", competition.Participants).Error; err != nil {
		return nil, err
	}
	return competition, nil
}

// Timeline is the computed lifecycle projection of one competition.
type Timeline struct {
	Status          LifecycleState `json:"status"`
	ProgressPercent int            `json:"progress_percent"`
	DaysRemaining   int            `json:"days_remaining"`
}

// TimelineFor computes the lifecycle projection at the current instant.
func (s *Service) TimelineFor(ctx context.Context, id string) (*Competition, Timeline, error) {
	competition, err := s.GetCompetition(ctx, id)
	if err != nil {
		return nil, Timeline{}, err
	}
	now := s.clock().UTC()
	return competition, Timeline{
		Status:          StatusOf(competition, now),
		ProgressPercent: ProgressOf(competition, now),
		DaysRemaining:   DaysRemaining(competition, now),
	}, nil
}

// StandingsFor derives the ranked standings for one competition.
func (s *Service) StandingsFor(ctx context.Context, id string) ([]Standing, error) {
	competition, err := s.GetCompetition(ctx, id)
	if err != nil {
		return nil, err
	}
	scores, err := s.resolveScores(ctx, competition)
	if err != nil {
		return nil, err
	}
	return standingsOf(competition, scores), nil
}

// ListBonusTiers returns the tier ladder ordered by tier number.
func (s *Service) ListBonusTiers(ctx context.Context) ([]BonusTier, error) {
	var tiers []BonusTier
	err := s.db.WithContext(ctx).Order("tier_number ASC").Find(&tiers).Error
	return tiers, err
}

// BonusTierInput carries the fields for a new bonus tier.
type BonusTierInput struct {
	TierNumber      int
	Name            string
	SignupThreshold int
	Description     string
}

// CreateBonusTier appends a tier, enforcing that thresholds stay strictly
// increasing with tier number across the whole ladder.
func (s *Service) CreateBonusTier(ctx context.Context, input BonusTierInput) (*BonusTier, error) {
	if input.TierNumber < 1 {
		return nil, fmt.Errorf("%w: tier number must be positive", ErrInvalidTier)
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("%w: tier name is required", ErrInvalidTier)
	}
	if input.SignupThreshold < 1 {
		return nil, fmt.Errorf("%w: signup threshold must be positive", ErrInvalidTier)
	}

	existing, err := s.ListBonusTiers(ctx)
	if err != nil {
		return nil, err
	}
	for _, tier := range existing {
		if tier.TierNumber == input.TierNumber {
			return nil, fmt.Errorf("%w: tier number %d already exists", ErrInvalidTier, input.TierNumber)
		}
		if tier.TierNumber < input.TierNumber && tier.SignupThreshold >= input.SignupThreshold {
			return nil, fmt.Errorf("%w: threshold must exceed tier %d", ErrInvalidTier, tier.TierNumber)
		}
		if tier.TierNumber > input.TierNumber && tier.SignupThreshold <= input.SignupThreshold {
			return nil, fmt.Errorf("%w: threshold must stay below tier %d", ErrInvalidTier, tier.TierNumber)
		}
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return nil, err
	}
	tier := &BonusTier{
		ID:              id,
		TierNumber:      input.TierNumber,
		Name:            strings.TrimSpace(input.Name),
		SignupThreshold: input.SignupThreshold,
		Description:     input.Description,
	}
	if err := s.db.WithContext(ctx).Create(tier).Error; err != nil {
		return nil, err
	}
	return tier, nil
}

// TierForScore resolves the current tier for a score against the stored ladder.
func (s *Service) TierForScore(ctx context.Context, score int) (*BonusTier, error) {
	tiers, err := s.ListBonusTiers(ctx)
	if err != nil {
		return nil, err
	}
	return CurrentTier(tiers, score), nil
}
