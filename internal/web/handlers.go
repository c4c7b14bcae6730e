package web

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/camuig/smartapi-proxy/internal/quotes"
	"github.com/camuig/smartapi-proxy/internal/service"
	"github.com/camuig/smartapi-proxy/internal/session"
)

type Service interface {
	Login(ctx context.Context, creds session.Credentials) (*session.Session, error)
	Quotes(ctx context.Context, accountID string, symbols []string) ([]quotes.Result, error)
	OptionChain(ctx context.Context, accountID, symbol string) error
	Health() service.Health
	Status(ctx context.Context, accountID string) (service.Status, error)
}

type loginRequest struct {
	APIKey   string `json:"apiKey" binding:"required"`
	ClientID string `json:"clientId" binding:"required"`
	Password string `json:"password" binding:"required"`
	TOTP     string `json:"totp" binding:"required"`
}

type loginResponse struct {
	Success   bool   `json:"success"`
	AuthToken string `json:"authToken"`
	FeedToken string `json:"feedToken"`
}

type quotesResponse struct {
	Success bool            `json:"success"`
	Data    []quotes.Result `json:"data"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type statusResponse struct {
	Success bool           `json:"success"`
	Data    service.Status `json:"data"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			c.Error(err)
			return
		}
		c.Error(ErrInvalidBody)
		return
	}

	sess, err := s.svc.Login(c.Request.Context(), session.Credentials{
		APIKey:     req.APIKey,
		ClientID:   strings.TrimSpace(req.ClientID),
		Password:   req.Password,
		TOTPSecret: req.TOTP,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, loginResponse{
		Success:   true,
		AuthToken: sess.AuthToken,
		FeedToken: sess.FeedToken,
	})
}

func (s *Server) handleQuotes(c *gin.Context) {
	results, err := s.svc.Quotes(c.Request.Context(), c.Query("clientId"), parseSymbols(c.Query("symbols")))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, quotesResponse{Success: true, Data: results})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Health())
}

func (s *Server) handleOptionChain(c *gin.Context) {
	err := s.svc.OptionChain(c.Request.Context(), c.Query("clientId"), c.Query("symbol"))
	if err != nil && !errors.Is(err, service.ErrNotImplemented) {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Success: true, Message: service.ErrNotImplemented.Error()})
}

func (s *Server) handleStatus(c *gin.Context) {
	st, err := s.svc.Status(c.Request.Context(), c.Query("clientId"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, statusResponse{Success: true, Data: st})
}

// parseSymbols splits a comma separated list, trimming blanks and dropping
// empty entries. Order and duplicates are kept.
func parseSymbols(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
