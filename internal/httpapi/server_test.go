package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiliankoe/royale/internal/auth"
	"github.com/kiliankoe/royale/internal/game"
	"github.com/kiliankoe/royale/internal/store"
)

type harness struct {
	t      *testing.T
	router *gin.Engine
	signer *auth.Signer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	signer, err := auth.NewSigner("test-secret-0123456789", time.Hour)
	require.NoError(t, err)
	m := game.NewMachine(store.NewMemory(), nil, game.WithMaxRounds(1))
	r := gin.New()
	r.Use(RequestID())
	New(m, signer).Mount(r)
	return &harness{t: t, router: r, signer: signer}
}

func (h *harness) do(method, path, caller, body string) *httptest.ResponseRecorder {
	h.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if caller != "" {
		tok, _, err := h.signer.Issue(caller)
		require.NoError(h.t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestGameOverHTTP(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/api/rooms", "alice", `{"is_private":false}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	roomID := decode[map[string]string](t, w)["room_id"]
	assert.Equal(t, "room_1", roomID)

	w = h.do(http.MethodPost, "/api/rooms/"+roomID+"/join", "bob", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Joined room room_1 (2/8)", decode[map[string]string](t, w)["message"])

	w = h.do(http.MethodGet, "/api/rooms", "", "")
	rooms := decode[[]game.PublicRoom](t, w)
	require.Len(t, rooms, 1)
	assert.Equal(t, 2, rooms[0].Players)

	w = h.do(http.MethodPost, "/api/rooms/"+roomID+"/start", "bob", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", decode[map[string]string](t, w)["error"])

	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/rooms/"+roomID+"/start", "alice", "").Code)

	w = h.do(http.MethodPost, "/api/rooms/"+roomID+"/rounds", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	rs := decode[game.RoundStart](t, w)
	assert.Equal(t, game.ModeWeather, rs.Mode)

	w = h.do(http.MethodGet, "/api/rooms/"+roomID, "", "")
	open := decode[map[string]any](t, w)
	assert.Equal(t, true, open["round_open"])
	assert.Equal(t, "", open["hidden_data"])

	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/rooms/"+roomID+"/answers", "alice", `{"answer":"21"}`).Code)
	w = h.do(http.MethodPost, "/api/rooms/"+roomID+"/answers", "alice", `{"answer":"22"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = h.do(http.MethodPost, "/api/rooms/"+roomID+"/answers", "bob", `{"answer":"  "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/rooms/"+roomID+"/answers", "bob", `{"answer":"35"}`).Code)

	w = h.do(http.MethodPost, "/api/rooms/"+roomID+"/judge", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	j := decode[game.Judgement](t, w)
	assert.True(t, j.GameFinished)
	assert.Equal(t, "20", j.ActualAnswer)
	assert.Equal(t, "alice", j.Rankings[0].Player)

	w = h.do(http.MethodGet, "/api/rooms/"+roomID, "", "")
	assert.Equal(t, "20", decode[map[string]any](t, w)["hidden_data"])

	w = h.do(http.MethodGet, "/api/rooms/"+roomID+"/results", "", "")
	res := decode[game.GameResults](t, w)
	assert.Equal(t, game.StatusFinished, res.Status)
	assert.Equal(t, 110, res.Scores["alice"])

	w = h.do(http.MethodGet, "/api/leaderboard?limit=1", "", "")
	board := decode[[]game.LeaderboardEntry](t, w)
	require.Len(t, board, 1)
	assert.Equal(t, game.LeaderboardEntry{Player: "alice", XP: 110}, board[0])

	w = h.do(http.MethodGet, "/api/players/bob/xp", "", "")
	assert.JSONEq(t, `{"player":"bob","xp":75}`, w.Body.String())
}

func TestUnknownRoomIsNull(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/api/rooms/room_9", "/api/rooms/room_9/results"} {
		w := h.do(http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "null", w.Body.String())
	}
	w := h.do(http.MethodPost, "/api/rooms/room_9/join", "alice", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode[map[string]string](t, w)["error"])
}

func TestAuthRequired(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodPost, "/api/rooms", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/rooms", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestIssueIdentity(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodPost, "/api/identity", "", `{"address":"0xCafe"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]string](t, w)
	addr, err := h.signer.Parse(body["token"])
	require.NoError(t, err)
	assert.Equal(t, "0xCafe", addr)

	w = h.do(http.MethodPost, "/api/identity", "", `{"address":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLeaderboardLimitValidation(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/leaderboard?limit=ten", "", "").Code)
	w := h.do(http.MethodGet, "/api/leaderboard", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		game.ErrNotFound:            http.StatusNotFound,
		game.ErrForbidden:           http.StatusForbidden,
		game.ErrInvalidState:        http.StatusConflict,
		game.ErrFull:                http.StatusConflict,
		game.ErrDuplicateJoin:       http.StatusConflict,
		game.ErrDuplicateSubmission: http.StatusConflict,
		game.ErrInsufficientPlayers: http.StatusUnprocessableEntity,
		game.ErrNoSubmissions:       http.StatusUnprocessableEntity,
		game.ErrInvalidAnswer:       http.StatusBadRequest,
		errors.New("disk on fire"):  http.StatusInternalServerError,
	}
	for err, want := range cases {
		got, _ := statusFor(fmt.Errorf("wrapped: %w", err))
		assert.Equal(t, want, got, err.Error())
	}
}
