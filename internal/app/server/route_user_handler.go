package server

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"failguard/internal/api/dto"
	"failguard/internal/auth"
)

func (s *Server) loginUser(c *gin.Context) {
	if !s.loginLimiter.Allow() {
		writeError(c, "Too many login attempts", http.StatusTooManyRequests)
		return
	}

	var credentials dto.Credentials
	if err := c.ShouldBindJSON(&credentials); err != nil {
		writeError(c, "Invalid request", http.StatusBadRequest)
		return
	}

	if err := auth.CheckPassword(s.passwordHash, credentials.Password); err != nil {
		log.Warn("Admin login failed", "client", c.ClientIP())
		writeError(c, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, expires, err := s.issuer.GenerateJWT(auth.AdminSubject)
	if err != nil {
		log.Error("Could not issue token", "error", err)
		writeError(c, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, dto.Token{Token: token, ExpiresAt: expires.UTC().Format(time.RFC3339)})
}
