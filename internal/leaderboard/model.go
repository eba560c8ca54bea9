package leaderboard

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CompetitionType names the metric a competition ranks on.
type CompetitionType string

const (
	CompetitionTypeSignups CompetitionType = "signups"
	CompetitionTypeRevenue CompetitionType = "revenue"
	CompetitionTypeLeads   CompetitionType = "leads"
	CompetitionTypeOther   CompetitionType = "other"
)

// CompetitionStatus is the author-set record status, independent of the
// computed lifecycle state.
type CompetitionStatus string

const (
	CompetitionStatusActive    CompetitionStatus = "active"
	CompetitionStatusCompleted CompetitionStatus = "completed"
	CompetitionStatusCancelled CompetitionStatus = "cancelled"
)

// ErrInvalidParticipants indicates the stored participant column is not a
// JSON array of participant objects.
var ErrInvalidParticipants = errors.New("leaderboard: invalid participants payload")

// Participant is one entrant in a competition.
type Participant struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Role     string    `json:"role,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
	Score    int       `json:"score"`
}

// ParticipantList serializes as a JSON array in a text column. Legacy rows
// holding arrays of bare id strings are normalized by a startup migration,
// so scanning expects participant objects only.
type ParticipantList []Participant

// Value implements driver.Valuer.
func (l ParticipantList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	encoded, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(encoded), nil
}

// Scan implements sql.Scanner.
func (l *ParticipantList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	var raw []byte
	switch typed := value.(type) {
	case string:
		raw = []byte(typed)
	case []byte:
		raw = typed
	default:
		return fmt.Errorf("%w: unsupported column type %T", ErrInvalidParticipants, value)
	}
	if len(raw) == 0 {
		*l = nil
		return nil
	}
	var parsed []Participant
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParticipants, err)
	}
	*l = parsed
	return nil
}

// Competition models a time-boxed ranked challenge.
type Competition struct {
	ID               string            `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	Name             string            `gorm:"column:name;size:320;not null" json:"name"`
	Description      string            `gorm:"column:description;type:text" json:"description"`
	Type             CompetitionType   `gorm:"column:competition_type;size:32;not null" json:"competition_type"`
	StartDate        time.Time         `gorm:"column:start_date;not null;index" json:"start_date"`
	EndDate          time.Time         `gorm:"column:end_date;not null;index" json:"end_date"`
	PrizeDescription string            `gorm:"column:prize_description;type:text" json:"prize_description"`
	Rules            string            `gorm:"column:rules;type:text" json:"rules"`
	Status           CompetitionStatus `gorm:"column:status;size:32;not null;default:'active'" json:"status"`
	Participants     ParticipantList   `gorm:"column:participants;type:text" json:"participants"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName provides the explicit table binding for GORM.
func (Competition) TableName() string {
	return "competitions"
}

// HasParticipant reports whether the participant id is already enrolled.
func (c *Competition) HasParticipant(participantID string) bool {
	for _, participant := range c.Participants {
		if participant.ID == participantID {
			return true
		}
	}
	return false
}

// BonusTier is a named threshold level a participant's score can qualify for.
// Thresholds are strictly increasing with tier number.
type BonusTier struct {
	ID              string    `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	TierNumber      int       `gorm:"column:tier_number;uniqueIndex;not null" json:"tier_number"`
	Name            string    `gorm:"column:tier_name;size:190;not null" json:"tier_name"`
	SignupThreshold int       `gorm:"column:signup_threshold;not null" json:"signup_threshold"`
	Description     string    `gorm:"column:description;type:text" json:"description"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName provides the explicit table binding for GORM.
func (BonusTier) TableName() string {
	return "bonus_tiers"
}

// SignupRecord is one reconciled external row, upserted by (rep, month, year).
// Sync updates records in place and never deletes them.
type SignupRecord struct {
	ID          string    `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	RepName     string    `gorm:"column:rep_name;size:320;not null;uniqueIndex:idx_signup_rep_period,priority:1" json:"rep_name"`
	RepEmail    string    `gorm:"column:rep_email;size:320" json:"rep_email"`
	Month       int       `gorm:"column:month;not null;uniqueIndex:idx_signup_rep_period,priority:2" json:"month"`
	Year        int       `gorm:"column:year;not null;uniqueIndex:idx_signup_rep_period,priority:3" json:"year"`
	Signups     int       `gorm:"column:signups;not null;default:0" json:"signups"`
	Revenue     float64   `gorm:"column:revenue;not null;default:0" json:"revenue"`
	LastUpdated time.Time `gorm:"column:last_updated;not null" json:"last_updated"`
	Source      string    `gorm:"column:source;size:64;not null;default:''" json:"source"`
}

// TableName provides the explicit table binding for GORM.
func (SignupRecord) TableName() string {
	return "signup_records"
}
