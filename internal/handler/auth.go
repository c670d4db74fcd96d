package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"classattend/internal/apperr"
	"classattend/internal/auth"
)

// issueToken hands out tokens without credentials. It is only mounted when
// dev tokens are enabled; production tokens come from the campus identity
// provider signing with the same key.
func (h *Handler) issueToken(c *gin.Context) {
	var req struct {
		Subject string    `json:"subject" binding:"required"`
		Role    auth.Role `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if !req.Role.Valid() {
		fail(c, apperr.Invalid("unknown role %q", req.Role))
		return
	}
	tokens, err := h.signer.Issue(req.Subject, req.Role)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, tokens)
}

func (h *Handler) refreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tokens, err := h.signer.Refresh(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token", "code": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, tokens)
}
