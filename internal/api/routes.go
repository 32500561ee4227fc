// Package api wires the HTTP surface: health, catalog endpoints, token
// issuance, transcript review and the websocket upgrade.
package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/jonasttaws/nova-sonic-training/domain/entities"
	"github.com/jonasttaws/nova-sonic-training/domain/repositories"
	"github.com/jonasttaws/nova-sonic-training/internal/auth"
	"github.com/jonasttaws/nova-sonic-training/internal/registry"
	ws "github.com/jonasttaws/nova-sonic-training/internal/websocket"
)

// Server bundles the dependencies the HTTP handlers need.
type Server struct {
	hub         *ws.Hub
	registry    *registry.Registry
	transcripts repositories.TranscriptRepository
	logger      *zap.Logger
}

// NewServer creates the handler set.
func NewServer(hub *ws.Hub, reg *registry.Registry, transcripts repositories.TranscriptRepository, logger *zap.Logger) *Server {
	return &Server{
		hub:         hub,
		registry:    reg,
		transcripts: transcripts,
		logger:      logger,
	}
}

// Register mounts all routes on the echo instance.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/health", s.handleHealth)
	e.GET("/ws", s.handleWebSocket)

	v1 := e.Group("/api/v1")
	v1.GET("/scenarios", s.handleScenarios)
	v1.GET("/voices", s.handleVoices)
	v1.POST("/sessions/token", s.handleSessionToken)
	v1.GET("/transcripts", s.handleTranscripts)
	v1.GET("/transcripts/:sessionID", s.handleTranscript)
}

type healthResponse struct {
	Status   string            `json:"status"`
	Clients  int               `json:"connected_clients"`
	Sessions registry.Snapshot `json:"sessions"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:   "healthy",
		Clients:  s.hub.ClientCount(),
		Sessions: s.registry.StatusSnapshot(),
	})
}

func (s *Server) handleScenarios(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"scenarios": entities.Scenarios(),
	})
}

func (s *Server) handleVoices(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"voices": entities.Voices(),
	})
}

type tokenResponse struct {
	Token    string `json:"token"`
	ClientID string `json:"client_id"`
}

// handleSessionToken issues the short-lived token that gates the websocket
// upgrade.
func (s *Server) handleSessionToken(c echo.Context) error {
	clientID := uuid.NewString()
	token, err := auth.GenerateSessionToken(clientID)
	if err != nil {
		s.logger.Error("Failed to issue session token", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to issue token")
	}
	return c.JSON(http.StatusOK, tokenResponse{Token: token, ClientID: clientID})
}

func (s *Server) handleTranscripts(c echo.Context) error {
	transcripts, err := s.transcripts.ListRecent(c.Request().Context(), 20)
	if err != nil {
		s.logger.Error("Failed to list transcripts", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list transcripts")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"transcripts": transcripts,
	})
}

func (s *Server) handleTranscript(c echo.Context) error {
	sessionID := c.Param("sessionID")
	transcript, err := s.transcripts.GetBySessionID(c.Request().Context(), sessionID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "transcript not found")
	}
	return c.JSON(http.StatusOK, transcript)
}

// handleWebSocket validates the session token, then hands the connection to
// the hub.
func (s *Server) handleWebSocket(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "token is required")
	}

	claims, err := auth.ValidateSessionToken(token)
	if err != nil {
		s.logger.Warn("Rejected websocket upgrade", zap.Error(err))
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	return ws.HandleWebSocket(s.hub, c, claims.ClientID, s.logger)
}
