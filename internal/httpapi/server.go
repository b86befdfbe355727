// Package httpapi exposes the game over a JSON REST API.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kiliankoe/royale/internal/auth"
	"github.com/kiliankoe/royale/internal/game"
)

// Game is the part of game.Machine served over HTTP.
type Game interface {
	CreateRoom(ctx context.Context, caller string, private bool) (string, error)
	JoinRoom(ctx context.Context, roomID, caller string) (string, error)
	ListPublicRooms(ctx context.Context) ([]game.PublicRoom, error)
	GetRoom(ctx context.Context, roomID string) (*game.Room, error)
	StartGame(ctx context.Context, roomID, caller string) (string, error)
	StartRound(ctx context.Context, roomID string) (game.RoundStart, error)
	SubmitAnswer(ctx context.Context, roomID, caller, answer string) (string, error)
	JudgeRound(ctx context.Context, roomID string) (game.Judgement, error)
	GetPlayerXP(ctx context.Context, player string) (int64, error)
	GetLeaderboard(ctx context.Context, limit int) ([]game.LeaderboardEntry, error)
	GetGameResults(ctx context.Context, roomID string) (*game.GameResults, error)
}

const callerKey = "caller"

type Server struct {
	game   Game
	signer *auth.Signer
}

func New(g Game, signer *auth.Signer) *Server {
	return &Server{game: g, signer: signer}
}

// RequestID tags every request with an X-Request-ID, reusing the client's if present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// Logger logs every request except socket.io polling.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/socket.io") {
			return
		}
		log.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("dur", time.Since(start)).
			Str("request_id", c.GetString("request_id")).
			Msg("http")
	}
}

func (s *Server) Mount(r gin.IRouter) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC()})
	})

	api := r.Group("/api")
	api.POST("/identity", s.issueIdentity)
	api.GET("/rooms", s.listRooms)
	api.GET("/rooms/:id", s.getRoom)
	api.GET("/rooms/:id/results", s.getResults)
	api.GET("/leaderboard", s.leaderboard)
	api.GET("/players/:address/xp", s.playerXP)

	authed := api.Group("", s.requireAuth)
	authed.POST("/rooms", s.createRoom)
	authed.POST("/rooms/:id/join", s.joinRoom)
	authed.POST("/rooms/:id/start", s.startGame)
	authed.POST("/rooms/:id/rounds", s.startRound)
	authed.POST("/rooms/:id/answers", s.submitAnswer)
	authed.POST("/rooms/:id/judge", s.judgeRound)
}

func (s *Server) requireAuth(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "missing bearer token"})
		return
	}
	caller, err := s.signer.Parse(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": err.Error()})
		return
	}
	c.Set(callerKey, caller)
	c.Next()
}

// statusFor maps a game error kind to an HTTP status.
func statusFor(err error) (int, string) {
	kind := game.Kind(err)
	switch kind {
	case "not_found":
		return http.StatusNotFound, kind
	case "forbidden":
		return http.StatusForbidden, kind
	case "invalid_state", "full", "duplicate_join", "duplicate_submission":
		return http.StatusConflict, kind
	case "insufficient_players", "no_submissions":
		return http.StatusUnprocessableEntity, kind
	case "invalid_answer":
		return http.StatusBadRequest, kind
	}
	return http.StatusInternalServerError, kind
}

func writeError(c *gin.Context, err error) {
	status, kind := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Str("request_id", c.GetString("request_id")).Msg("request failed")
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": kind, "message": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": msg})
}

func (s *Server) issueIdentity(c *gin.Context) {
	var req struct {
		Address string `json:"address"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	token, exp, err := s.signer.Issue(strings.TrimSpace(req.Address))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidAddress) {
			badRequest(c, err.Error())
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "address": strings.TrimSpace(req.Address), "expires_at": exp.UTC()})
}

func (s *Server) createRoom(c *gin.Context) {
	var req struct {
		Private bool `json:"is_private"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid body")
			return
		}
	}
	id, err := s.game.CreateRoom(c.Request.Context(), c.GetString(callerKey), req.Private)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"room_id": id})
}

func (s *Server) listRooms(c *gin.Context) {
	rooms, err := s.game.ListPublicRooms(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rooms)
}

func (s *Server) getRoom(c *gin.Context) {
	r, err := s.game.GetRoom(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if r == nil {
		c.JSON(http.StatusNotFound, nil)
		return
	}
	c.JSON(http.StatusOK, r.Public())
}

func (s *Server) getResults(c *gin.Context) {
	res, err := s.game.GetGameResults(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if res == nil {
		c.JSON(http.StatusNotFound, nil)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) joinRoom(c *gin.Context) {
	msg, err := s.game.JoinRoom(c.Request.Context(), c.Param("id"), c.GetString(callerKey))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (s *Server) startGame(c *gin.Context) {
	msg, err := s.game.StartGame(c.Request.Context(), c.Param("id"), c.GetString(callerKey))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (s *Server) startRound(c *gin.Context) {
	rs, err := s.game.StartRound(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rs)
}

func (s *Server) submitAnswer(c *gin.Context) {
	var req struct {
		Answer string `json:"answer"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	msg, err := s.game.SubmitAnswer(c.Request.Context(), c.Param("id"), c.GetString(callerKey), req.Answer)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (s *Server) judgeRound(c *gin.Context) {
	j, err := s.game.JudgeRound(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

func (s *Server) leaderboard(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			badRequest(c, "limit must be an integer")
			return
		}
		limit = n
	}
	rows, err := s.game.GetLeaderboard(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) playerXP(c *gin.Context) {
	player := c.Param("address")
	xp, err := s.game.GetPlayerXP(c.Request.Context(), player)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"player": player, "xp": xp})
}
