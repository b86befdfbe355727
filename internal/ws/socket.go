package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/rs/zerolog/log"

	"github.com/kiliankoe/royale/internal/auth"
	"github.com/kiliankoe/royale/internal/events"
	"github.com/kiliankoe/royale/internal/game"
)

const roomEvent = "room:event"

// ConnCtx is the per-connection state. Caller is empty until session:auth succeeds.
type ConnCtx struct {
	Caller string
}

// Game is the part of game.Machine driven over socket.io.
type Game interface {
	CreateRoom(ctx context.Context, caller string, private bool) (string, error)
	JoinRoom(ctx context.Context, roomID, caller string) (string, error)
	GetRoom(ctx context.Context, roomID string) (*game.Room, error)
	StartGame(ctx context.Context, roomID, caller string) (string, error)
	StartRound(ctx context.Context, roomID string) (game.RoundStart, error)
	SubmitAnswer(ctx context.Context, roomID, caller, answer string) (string, error)
	JudgeRound(ctx context.Context, roomID string) (game.Judgement, error)
}

type Server struct {
	game    Game
	signer  *auth.Signer
	timeout time.Duration

	mu sync.RWMutex
	io *socketio.Server
}

func New(g Game, signer *auth.Signer, timeout time.Duration) *Server {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Server{game: g, signer: signer, timeout: timeout}
}

type roomPayload struct {
	RoomID string `json:"room_id"`
}

// Mount attaches the Socket.IO server with handlers to the given Gin engine.
func (srv *Server) Mount(r *gin.Engine) *socketio.Server {
	io := socketio.NewServer(nil)

	io.OnConnect("/", func(s socketio.Conn) error {
		s.SetContext(&ConnCtx{})
		log.Info().Str("sid", s.ID()).Msg("socket connected")
		return nil
	})

	io.OnEvent("/", "session:auth", func(s socketio.Conn, payload struct {
		Token string `json:"token"`
	}) map[string]any {
		caller, err := srv.signer.Parse(payload.Token)
		if err != nil {
			return srv.fail(s, "unauthorized", err.Error())
		}
		s.SetContext(&ConnCtx{Caller: caller})
		log.Info().Str("sid", s.ID()).Str("caller", caller).Msg("session:auth")
		return map[string]any{"address": caller}
	})

	io.OnEvent("/", "room:create", func(s socketio.Conn, payload struct {
		Private bool `json:"is_private"`
	}) map[string]any {
		caller, ok := srv.caller(s)
		if !ok {
			return srv.fail(s, "unauthorized", "call session:auth first")
		}
		ctx, cancel := srv.ctx()
		defer cancel()
		id, err := srv.game.CreateRoom(ctx, caller, payload.Private)
		if err != nil {
			return srv.gameErr(s, err)
		}
		s.Join(id)
		return map[string]any{"room_id": id}
	})

	io.OnEvent("/", "room:join", func(s socketio.Conn, payload roomPayload) map[string]any {
		caller, ok := srv.caller(s)
		if !ok {
			return srv.fail(s, "unauthorized", "call session:auth first")
		}
		ctx, cancel := srv.ctx()
		defer cancel()
		msg, err := srv.game.JoinRoom(ctx, payload.RoomID, caller)
		if err != nil {
			return srv.gameErr(s, err)
		}
		s.Join(payload.RoomID)
		return map[string]any{"message": msg}
	})

	// room:watch subscribes a spectator or a reconnecting player without joining the game.
	io.OnEvent("/", "room:watch", func(s socketio.Conn, payload roomPayload) map[string]any {
		ctx, cancel := srv.ctx()
		defer cancel()
		room, err := srv.game.GetRoom(ctx, payload.RoomID)
		if err != nil {
			return srv.gameErr(s, err)
		}
		if room == nil {
			return srv.fail(s, "not_found", "room not found")
		}
		s.Join(room.ID)
		return map[string]any{"room": room.Public()}
	})

	io.OnEvent("/", "game:start", func(s socketio.Conn, payload roomPayload) map[string]any {
		caller, ok := srv.caller(s)
		if !ok {
			return srv.fail(s, "unauthorized", "call session:auth first")
		}
		ctx, cancel := srv.ctx()
		defer cancel()
		msg, err := srv.game.StartGame(ctx, payload.RoomID, caller)
		if err != nil {
			return srv.gameErr(s, err)
		}
		return map[string]any{"message": msg}
	})

	io.OnEvent("/", "round:start", func(s socketio.Conn, payload roomPayload) map[string]any {
		if _, ok := srv.caller(s); !ok {
			return srv.fail(s, "unauthorized", "call session:auth first")
		}
		ctx, cancel := srv.ctx()
		defer cancel()
		rs, err := srv.game.StartRound(ctx, payload.RoomID)
		if err != nil {
			return srv.gameErr(s, err)
		}
		return map[string]any{"round": rs}
	})

	io.OnEvent("/", "round:submit", func(s socketio.Conn, payload struct {
		RoomID string `json:"room_id"`
		Answer string `json:"answer"`
	}) map[string]any {
		caller, ok := srv.caller(s)
		if !ok {
			return srv.fail(s, "unauthorized", "call session:auth first")
		}
		ctx, cancel := srv.ctx()
		defer cancel()
		msg, err := srv.game.SubmitAnswer(ctx, payload.RoomID, caller, payload.Answer)
		if err != nil {
			return srv.gameErr(s, err)
		}
		return map[string]any{"message": msg}
	})

	io.OnEvent("/", "round:judge", func(s socketio.Conn, payload roomPayload) map[string]any {
		if _, ok := srv.caller(s); !ok {
			return srv.fail(s, "unauthorized", "call session:auth first")
		}
		ctx, cancel := srv.ctx()
		defer cancel()
		j, err := srv.game.JudgeRound(ctx, payload.RoomID)
		if err != nil {
			return srv.gameErr(s, err)
		}
		return map[string]any{"judgement": j}
	})

	io.OnError("/", func(s socketio.Conn, e error) {
		sid := ""
		if s != nil {
			sid = s.ID()
		}
		log.Error().Str("sid", sid).Err(e).Msg("socket error")
	})
	io.OnDisconnect("/", func(s socketio.Conn, reason string) {
		log.Info().Str("sid", s.ID()).Str("reason", reason).Msg("socket disconnected")
	})

	go func() {
		if err := io.Serve(); err != nil {
			log.Error().Err(err).Msg("socket.io server stopped")
		}
	}()

	r.GET("/socket.io/*any", gin.WrapH(io))
	r.POST("/socket.io/*any", gin.WrapH(io))

	// Basic CORS preflight for Socket.IO POST
	r.OPTIONS("/socket.io/*any", func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Status(http.StatusNoContent)
	})

	srv.mu.Lock()
	srv.io = io
	srv.mu.Unlock()
	return io
}

// Publish broadcasts ev to every connection in the event's room.
func (srv *Server) Publish(_ context.Context, ev events.Event) error {
	srv.mu.RLock()
	io := srv.io
	srv.mu.RUnlock()
	if io == nil || ev.RoomID == "" {
		return nil
	}
	io.BroadcastToRoom("/", ev.RoomID, roomEvent, ev)
	return nil
}

func (srv *Server) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), srv.timeout)
}

func (srv *Server) caller(s socketio.Conn) (string, bool) {
	ctx, ok := s.Context().(*ConnCtx)
	if !ok || ctx.Caller == "" {
		return "", false
	}
	return ctx.Caller, true
}

func (srv *Server) gameErr(s socketio.Conn, err error) map[string]any {
	kind := game.Kind(err)
	msg := err.Error()
	if kind == "internal" {
		log.Error().Err(err).Str("sid", s.ID()).Msg("socket request failed")
		msg = "internal error"
	}
	return srv.fail(s, kind, msg)
}

func (srv *Server) fail(s socketio.Conn, code, message string) map[string]any {
	s.Emit("error", map[string]any{"code": code, "message": message})
	return map[string]any{"error": code, "message": message}
}

var _ events.Publisher = (*Server)(nil)
