package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sunridgelabs/fieldops/backend/internal/leaderboard"
	"github.com/sunridgelabs/fieldops/backend/internal/realtime"
	"go.uber.org/zap"
)

type createCompetitionPayload struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	Type             string `json:"competition_type"`
	StartDate        string `json:"start_date"`
	EndDate          string `json:"end_date"`
	PrizeDescription string `json:"prize_description"`
	Rules            string `json:"rules"`
}

func (h *httpHandler) handleListCompetitions(c *gin.Context) {
	competitions, err := h.leaderboard.ListCompetitions(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list competitions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "competitions_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"competitions": competitions})
}

func (h *httpHandler) handleCreateCompetition(c *gin.Context) {
	caller := h.currentCaller(c)
	if !caller.CanManageContests() {
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient_role"})
		return
	}
	var payload createCompetitionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	startDate, errStart := parseDate(payload.StartDate)
	endDate, errEnd := parseDate(payload.EndDate)
	if errStart != nil || errEnd != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_dates"})
		return
	}
	competition, err := h.leaderboard.CreateCompetition(c.Request.Context(), leaderboard.CompetitionInput{
		Name:             payload.Name,
		Description:      payload.Description,
		Type:             leaderboard.CompetitionType(payload.Type),
		StartDate:        startDate,
		EndDate:          endDate,
		PrizeDescription: payload.PrizeDescription,
		Rules:            payload.Rules,
	})
	if err != nil {
		if errors.Is(err, leaderboard.ErrInvalidCompetition) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("failed to create competition", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "competition_create_failed"})
		return
	}
	h.hub.Broadcast(realtime.EventContestCreated, map[string]any{
		"competition_id":   competition.ID,
		"name":             competition.Name,
		"competition_type": competition.Type,
	})
	c.JSON(http.StatusCreated, competition)
}

func (h *httpHandler) handleGetCompetition(c *gin.Context) {
	competition, err := h.leaderboard.GetCompetition(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondCompetitionError(c, err)
		return
	}
	c.JSON(http.StatusOK, competition)
}

type joinCompetitionPayload struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	Role          string `json:"role"`
}

func (h *httpHandler) handleJoinCompetition(c *gin.Context) {
	caller := h.currentCaller(c)
	var payload joinCompetitionPayload
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
	}
	participant := leaderboard.Participant{
		ID:   strings.TrimSpace(payload.ParticipantID),
		Name: payload.Name,
		Role: payload.Role,
	}
	if participant.ID == "" {
		participant.ID = caller.Subject
		participant.Name = caller.Name
		participant.Role = caller.Role
	}
	competition, err := h.leaderboard.JoinCompetition(c.Request.Context(), c.Param("id"), participant)
	if err != nil {
		switch {
		case errors.Is(err, leaderboard.ErrAlreadyJoined):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, leaderboard.ErrContestEnded):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			h.respondCompetitionError(c, err)
		}
		return
	}
	h.hub.Broadcast(realtime.EventContestJoined, map[string]any{
		"competition_id": competition.ID,
		"participant_id": participant.ID,
		"name":           participant.Name,
	})
	c.JSON(http.StatusOK, competition)
}

func (h *httpHandler) handleStandings(c *gin.Context) {
	standings, err := h.leaderboard.StandingsFor(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondCompetitionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"standings": standings})
}

func (h *httpHandler) handleCompetitionStatus(c *gin.Context) {
	competition, timeline, err := h.leaderboard.TimelineFor(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondCompetitionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"competition_id":   competition.ID,
		"status":           timeline.Status,
		"progress_percent": timeline.ProgressPercent,
		"days_remaining":   timeline.DaysRemaining,
	})
}

func (h *httpHandler) handleListBonusTiers(c *gin.Context) {
	tiers, err := h.leaderboard.ListBonusTiers(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list bonus tiers", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "bonus_tiers_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bonus_tiers": tiers})
}

type createTierPayload struct {
	TierNumber      int    `json:"tier_number"`
	Name            string `json:"name"`
	SignupThreshold int    `json:"signup_threshold"`
	Description     string `json:"description"`
}

func (h *httpHandler) handleCreateBonusTier(c *gin.Context) {
	caller := h.currentCaller(c)
	if !caller.CanManageContests() {
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient_role"})
		return
	}
	var payload createTierPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	tier, err := h.leaderboard.CreateBonusTier(c.Request.Context(), leaderboard.BonusTierInput{
		TierNumber:      payload.TierNumber,
		Name:            payload.Name,
		SignupThreshold: payload.SignupThreshold,
		Description:     payload.Description,
	})
	if err != nil {
		if errors.Is(err, leaderboard.ErrInvalidTier) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("failed to create bonus tier", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "bonus_tier_create_failed"})
		return
	}
	c.JSON(http.StatusCreated, tier)
}

func (h *httpHandler) respondCompetitionError(c *gin.Context, err error) {
	if errors.Is(err, leaderboard.ErrCompetitionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	h.logger.Error("competition lookup failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "competition_unavailable"})
}

func parseDate(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return parsed, nil
	}
	return time.Parse("2006-01-02", trimmed)
}
