package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sunridgelabs/fieldops/backend/internal/leaderboard"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationSeedBonusTiers         = "2025-03-01_seed_bonus_tiers"
	migrationNormalizeParticipants  = "2025-03-08_normalize_competition_participants"
	defaultBonusTierBottomThreshold = 15
	defaultBonusTierStep            = 5
	defaultBonusTierCount           = 6
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationSeedBonusTiers, apply: seedBonusTiers},
		{name: migrationNormalizeParticipants, apply: normalizeLegacyParticipants},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// seedBonusTiers installs the default six-tier ladder (tier 1 at 15 signups,
// tier 6 at 40) when the table is empty.
func seedBonusTiers(db *gorm.DB) error {
	var count int64
	if err := db.Model(&leaderboard.BonusTier{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	names := []string{"Bronze", "Silver", "Gold", "Platinum", "Diamond", "Elite"}
	for tierNumber := 1; tierNumber <= defaultBonusTierCount; tierNumber++ {
		threshold := defaultBonusTierBottomThreshold + (tierNumber-1)*defaultBonusTierStep
		tier := leaderboard.BonusTier{
			ID:              uuid.NewString(),
			TierNumber:      tierNumber,
			Name:            names[tierNumber-1],
			SignupThreshold: threshold,
			Description:     fmt.Sprintf("%s tier for %d+ signups", names[tierNumber-1], threshold),
		}
		if err := db.Create(&tier).Error; err != nil {
			return err
		}
	}
	return nil
}

// normalizeLegacyParticipants rewrites competition rows whose participants
// column still holds a bare array of id strings into participant objects.
// Runs once so reads never need an inline compatibility check.
func normalizeLegacyParticipants(db *gorm.DB) error {
	type competitionRow struct {
		ID           string
		Participants string
		CreatedAt    time.Time
	}
	var rows []competitionRow
	if err := db.Table("competitions").Select("id", "participants", "created_at").Scan(&rows).Error; err != nil {
		return err
	}

	for _, row := range rows {
		if row.Participants == "" {
			continue
		}
		var legacyIDs []string
		if err := json.Unmarshal([]byte(row.Participants), &legacyIDs); err != nil {
			// Already in object form.
			continue
		}
		normalized := make(leaderboard.ParticipantList, 0, len(legacyIDs))
		for _, id := range legacyIDs {
			normalized = append(normalized, leaderboard.Participant{
				ID:       id,
				Name:     id,
				JoinedAt: row.CreatedAt.UTC(),
			})
		}
		encoded, err := json.Marshal(normalized)
		if err != nil {
			return err
		}
		if err := db.Table("competitions").
			Where("id = ?", row.ID).
			Update("participants", string(encoded)).Error; err != nil {
			return err
		}
	}
	return nil
}
