package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/kiliankoe/royale/internal/events"
	"github.com/kiliankoe/royale/internal/store"
)

const DefaultLeaderboardLimit = 10

// Machine runs every room and round transition. Calls on the same room are
// serialized; different rooms proceed independently.
type Machine struct {
	store     store.Store
	oracle    Oracle
	pub       events.Publisher
	maxRounds int
	export    string
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

type Option func(*Machine)

func WithPublisher(p events.Publisher) Option { return func(m *Machine) { m.pub = p } }

// WithMaxRounds sets the round count for rooms created afterwards.
func WithMaxRounds(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.maxRounds = n
		}
	}
}

// WithExportFile appends a text summary of every judged round to filename.
func WithExportFile(filename string) Option { return func(m *Machine) { m.export = filename } }

func WithClock(now func() time.Time) Option { return func(m *Machine) { m.now = now } }

func NewMachine(st store.Store, o Oracle, opts ...Option) *Machine {
	m := &Machine{
		store:     st,
		oracle:    o,
		maxRounds: DefaultMaxRounds,
		now:       func() time.Time { return time.Now().UTC() },
		locks:     make(map[string]*roomLock),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) lock(id string) func() {
	m.mu.Lock()
	l := m.locks[id]
	if l == nil {
		l = &roomLock{}
		m.locks[id] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, id)
		}
		m.mu.Unlock()
	}
}

func (m *Machine) load(ctx context.Context, id string) (*Room, error) {
	rec, ok, err := m.store.GetRoom(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var r Room
	if err := json.Unmarshal(rec.Data, &r); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", id, err)
	}
	r.seq = rec.Seq
	if r.Submissions == nil {
		r.Submissions = make(map[string]Submission)
	}
	if r.Scores == nil {
		r.Scores = make(map[string]int)
	}
	return &r, nil
}

func (m *Machine) save(ctx context.Context, r *Room, credits ...store.XPEntry) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode room %s: %w", r.ID, err)
	}
	rec := store.RoomRecord{ID: r.ID, Seq: r.seq, Status: string(r.Status), Private: r.Private, Data: data}
	if err := m.store.SaveRoom(ctx, rec, credits...); err != nil {
		return fmt.Errorf("save room %s: %w", r.ID, err)
	}
	return nil
}

func (m *Machine) publish(ctx context.Context, typ events.Type, roomID, actor string, payload any) {
	if m.pub == nil {
		return
	}
	ev := events.Event{Type: typ, RoomID: roomID, Actor: actor, Payload: payload, At: m.now()}
	if err := m.pub.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("room", roomID).Str("event", string(typ)).Msg("failed to publish room event")
	}
}

// CreateRoom opens a waiting room with caller as host and sole player.
func (m *Machine) CreateRoom(ctx context.Context, caller string, private bool) (string, error) {
	seq, err := m.store.NextRoomSeq(ctx)
	if err != nil {
		return "", fmt.Errorf("allocate room id: %w", err)
	}
	r := &Room{
		ID:           fmt.Sprintf("room_%d", seq),
		Host:         caller,
		Players:      []string{caller},
		Status:       StatusWaiting,
		Private:      private,
		MaxRounds:    m.maxRounds,
		Submissions:  make(map[string]Submission),
		Scores:       make(map[string]int),
		RoundResults: []RoundResult{},
		CreatedAt:    m.now(),
		seq:          seq,
	}
	if err := m.save(ctx, r); err != nil {
		return "", err
	}
	log.Info().Str("room", r.ID).Str("host", caller).Bool("private", private).Msg("room created")
	m.publish(ctx, events.RoomCreated, r.ID, caller, map[string]any{"is_private": private})
	return r.ID, nil
}

func (m *Machine) JoinRoom(ctx context.Context, roomID, caller string) (string, error) {
	defer m.lock(roomID)()
	r, err := m.load(ctx, roomID)
	if err != nil {
		return "", err
	}
	if r.Status != StatusWaiting {
		return "", fmt.Errorf("%w: game already %s", ErrInvalidState, r.Status)
	}
	if len(r.Players) >= MaxPlayers {
		return "", fmt.Errorf("%w: %d/%d players", ErrFull, len(r.Players), MaxPlayers)
	}
	if r.hasPlayer(caller) {
		return "", fmt.Errorf("%w: %s", ErrDuplicateJoin, caller)
	}
	r.Players = append(r.Players, caller)
	if err := m.save(ctx, r); err != nil {
		return "", err
	}
	m.publish(ctx, events.RoomJoined, r.ID, caller, map[string]any{"players": r.Players})
	return fmt.Sprintf("Joined room %s (%d/%d)", r.ID, len(r.Players), MaxPlayers), nil
}

// ListPublicRooms returns public rooms that are still waiting, oldest first.
func (m *Machine) ListPublicRooms(ctx context.Context) ([]PublicRoom, error) {
	recs, err := m.store.ListRooms(ctx, store.RoomFilter{Status: string(StatusWaiting), PublicOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	out := make([]PublicRoom, 0, len(recs))
	for _, rec := range recs {
		var r Room
		if err := json.Unmarshal(rec.Data, &r); err != nil {
			log.Error().Err(err).Str("room", rec.ID).Msg("skipping undecodable room")
			continue
		}
		out = append(out, PublicRoom{RoomID: r.ID, Players: len(r.Players), Host: r.Host})
	}
	return out, nil
}

// GetRoom returns nil without error when the room does not exist.
func (m *Machine) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	r, err := m.load(ctx, roomID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

func (m *Machine) StartGame(ctx context.Context, roomID, caller string) (string, error) {
	defer m.lock(roomID)()
	r, err := m.load(ctx, roomID)
	if err != nil {
		return "", err
	}
	if caller != r.Host {
		return "", fmt.Errorf("%w: only the host can start the game", ErrForbidden)
	}
	if len(r.Players) < MinPlayers {
		return "", fmt.Errorf("%w: have %d", ErrInsufficientPlayers, len(r.Players))
	}
	if r.Status != StatusWaiting {
		return "", fmt.Errorf("%w: game already %s", ErrInvalidState, r.Status)
	}
	r.Scores = make(map[string]int, len(r.Players))
	for _, p := range r.Players {
		r.Scores[p] = 0
	}
	r.Status = StatusPlaying
	r.CurrentRound = 1
	if err := m.save(ctx, r); err != nil {
		return "", err
	}
	log.Info().Str("room", r.ID).Int("players", len(r.Players)).Msg("game started")
	m.publish(ctx, events.GameStarted, r.ID, caller, map[string]any{"players": r.Players, "max_rounds": r.MaxRounds})
	return "Game started", nil
}

// StartRound fetches a fresh challenge for the current round. Calling it again
// before judging replaces the challenge and clears submissions.
func (m *Machine) StartRound(ctx context.Context, roomID string) (RoundStart, error) {
	defer m.lock(roomID)()
	r, err := m.load(ctx, roomID)
	if err != nil {
		return RoundStart{}, err
	}
	if r.Status != StatusPlaying {
		return RoundStart{}, fmt.Errorf("%w: game is %s", ErrInvalidState, r.Status)
	}
	if r.CurrentRound > r.MaxRounds {
		return RoundStart{}, fmt.Errorf("%w: all %d rounds played", ErrInvalidState, r.MaxRounds)
	}

	mode := ModeForRound(r.CurrentRound)
	challenge, hidden := resolveChallenge(ctx, m.oracle, mode)

	r.Submissions = make(map[string]Submission)
	r.CurrentMode = mode
	r.CurrentChallenge = challenge
	r.HiddenData = hidden
	r.RoundOpen = true
	if err := m.save(ctx, r); err != nil {
		return RoundStart{}, err
	}
	out := RoundStart{Round: r.CurrentRound, Mode: mode, Challenge: challenge}
	log.Info().Str("room", r.ID).Int("round", out.Round).Str("mode", string(mode)).Msg("round started")
	m.publish(ctx, events.RoundStarted, r.ID, "", out)
	return out, nil
}

func (m *Machine) SubmitAnswer(ctx context.Context, roomID, caller, answer string) (string, error) {
	defer m.lock(roomID)()
	r, err := m.load(ctx, roomID)
	if err != nil {
		return "", err
	}
	if r.Status != StatusPlaying {
		return "", fmt.Errorf("%w: game is %s", ErrInvalidState, r.Status)
	}
	if !r.RoundOpen {
		return "", fmt.Errorf("%w: no round in progress", ErrInvalidState)
	}
	if !r.hasPlayer(caller) {
		return "", fmt.Errorf("%w: %s is not in this room", ErrForbidden, caller)
	}
	if _, ok := r.Submissions[caller]; ok {
		return "", fmt.Errorf("%w: %s", ErrDuplicateSubmission, caller)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("%w: answer is empty", ErrInvalidAnswer)
	}
	if n := utf8.RuneCountInString(answer); n > MaxAnswerLength {
		return "", fmt.Errorf("%w: answer is %d characters, limit is %d", ErrInvalidAnswer, n, MaxAnswerLength)
	}
	r.Submissions[caller] = Submission{Answer: answer, Timestamp: m.now(), Seq: len(r.Submissions) + 1}
	if err := m.save(ctx, r); err != nil {
		return "", err
	}
	m.publish(ctx, events.AnswerSubmitted, r.ID, caller, map[string]any{
		"round":       r.CurrentRound,
		"submissions": len(r.Submissions),
		"players":     len(r.Players),
	})
	return "Answer submitted", nil
}

// JudgeRound ranks and scores the open round. Finishing the last round credits
// every final score to the leaderboard in the same save.
func (m *Machine) JudgeRound(ctx context.Context, roomID string) (Judgement, error) {
	defer m.lock(roomID)()
	r, err := m.load(ctx, roomID)
	if err != nil {
		return Judgement{}, err
	}
	if r.Status != StatusPlaying {
		return Judgement{}, fmt.Errorf("%w: game is %s", ErrInvalidState, r.Status)
	}
	if !r.RoundOpen {
		return Judgement{}, fmt.Errorf("%w: no round in progress", ErrInvalidState)
	}
	if len(r.Submissions) == 0 {
		return Judgement{}, fmt.Errorf("%w: round %d", ErrNoSubmissions, r.CurrentRound)
	}

	var rankings []Ranking
	var reasoning string
	if r.CurrentMode.Objective() {
		rankings, reasoning = judgeObjective(r)
	} else {
		rankings, reasoning = judgeSubjective(ctx, m.oracle, r)
	}
	for i := range rankings {
		rankings[i].Points = PointsForRank(i)
		r.Scores[rankings[i].Player] += rankings[i].Points
	}

	result := RoundResult{
		Round:        r.CurrentRound,
		Mode:         r.CurrentMode,
		Challenge:    r.CurrentChallenge,
		HiddenAnswer: r.HiddenData,
		Rankings:     rankings,
		AIReasoning:  reasoning,
	}
	r.RoundResults = append(r.RoundResults, result)
	r.CurrentRound++
	r.RoundOpen = false

	var credits []store.XPEntry
	finished := r.CurrentRound > r.MaxRounds
	if finished {
		r.Status = StatusFinished
		credits = make([]store.XPEntry, 0, len(r.Players))
		for _, p := range r.Players {
			credits = append(credits, store.XPEntry{Player: p, XP: int64(r.Scores[p])})
		}
	}
	if err := m.save(ctx, r, credits...); err != nil {
		return Judgement{}, err
	}

	if m.export != "" {
		if err := exportRound(m.export, r, result, m.now()); err != nil {
			log.Error().Err(err).Str("room", r.ID).Str("file", m.export).Msg("round export failed")
		}
	}

	out := Judgement{Rankings: rankings, Reasoning: reasoning, ActualAnswer: result.HiddenAnswer, GameFinished: finished}
	log.Info().Str("room", r.ID).Int("round", result.Round).Str("mode", string(result.Mode)).Bool("finished", finished).Msg("round judged")
	m.publish(ctx, events.RoundJudged, r.ID, "", out)
	if finished {
		m.publish(ctx, events.GameFinished, r.ID, "", GameResults{Status: r.Status, Scores: r.Scores, RoundResults: r.RoundResults})
	}
	return out, nil
}

func (m *Machine) GetPlayerXP(ctx context.Context, player string) (int64, error) {
	xp, err := m.store.PlayerXP(ctx, player)
	if err != nil {
		return 0, fmt.Errorf("player xp: %w", err)
	}
	return xp, nil
}

// GetLeaderboard returns the top players by XP. A non-positive limit means DefaultLeaderboardLimit.
func (m *Machine) GetLeaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	rows, err := m.store.TopXP(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	out := make([]LeaderboardEntry, len(rows))
	for i, row := range rows {
		out[i] = LeaderboardEntry{Player: row.Player, XP: row.XP}
	}
	return out, nil
}

// GetGameResults returns nil without error when the room does not exist.
func (m *Machine) GetGameResults(ctx context.Context, roomID string) (*GameResults, error) {
	r, err := m.GetRoom(ctx, roomID)
	if err != nil || r == nil {
		return nil, err
	}
	return &GameResults{Status: r.Status, Scores: r.Scores, RoundResults: r.RoundResults}, nil
}
