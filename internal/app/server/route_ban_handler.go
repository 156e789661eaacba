package server

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"failguard/internal/api/dto"
	"failguard/internal/domain"
	"failguard/internal/engine"
)

func (s *Server) listBans(c *gin.Context) {
	now := s.now()
	bans := s.engine.ListBanned()
	out := make([]dto.BanInfo, 0, len(bans))
	for _, record := range bans {
		out = append(out, dto.NewBanInfo(record, now))
	}
	c.JSON(http.StatusOK, out)
}

// getBan answers from memory for active bans and falls back to the latest
// stored record otherwise.
func (s *Server) getBan(c *gin.Context) {
	address := c.Param("address")
	if record, ok := s.engine.GetBanInfo(address); ok {
		c.JSON(http.StatusOK, dto.NewBanInfo(record, s.now()))
		return
	}

	record, err := s.store.GetLatestFor(c.Request.Context(), address)
	if err != nil {
		log.Error("Ban lookup failed", "address", address, "error", err)
		writeError(c, "Failed to query ban history", http.StatusInternalServerError)
		return
	}
	if record == nil {
		writeError(c, "No ban recorded for address", http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, dto.NewBanInfo(*record, s.now()))
}

func (s *Server) blockAddress(c *gin.Context) {
	var req dto.BlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, "Invalid request", http.StatusBadRequest)
		return
	}
	if net.ParseIP(req.Address) == nil {
		writeError(c, "Invalid address", http.StatusBadRequest)
		return
	}
	if req.DurationSeconds < 0 {
		writeError(c, "Duration must not be negative", http.StatusBadRequest)
		return
	}

	duration := time.Duration(req.DurationSeconds) * time.Second
	decision := s.engine.BlockManually(c.Request.Context(), req.Address, duration, req.Reason)

	switch {
	case decision.Banned:
		c.JSON(http.StatusCreated, decision)
	case decision.Reason == domain.ReasonAlreadyBanned:
		c.JSON(http.StatusConflict, decision)
	case decision.Reason == domain.ReasonEnforcementFail:
		c.JSON(http.StatusBadGateway, decision)
	default:
		c.JSON(http.StatusBadRequest, decision)
	}
}

func (s *Server) unblockAddress(c *gin.Context) {
	address := c.Param("address")
	if net.ParseIP(address) == nil {
		writeError(c, "Invalid address", http.StatusBadRequest)
		return
	}

	if err := s.engine.UnblockManually(c.Request.Context(), address); err != nil {
		if errors.Is(err, engine.ErrPromotionPending) {
			writeError(c, "Ban is still being applied, retry shortly", http.StatusConflict)
			return
		}
		if errors.Is(err, engine.ErrReleasePending) {
			writeError(c, "Ban is already being lifted", http.StatusConflict)
			return
		}
		writeError(c, err.Error(), http.StatusBadGateway)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": address, "unbanned": true})
}

func (s *Server) listTracked(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.ListTracked())
}

func (s *Server) clearTracked(c *gin.Context) {
	address := c.Param("address")
	if !s.engine.ClearTracking(address) {
		writeError(c, "Address is not tracked", http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": address, "cleared": true})
}
