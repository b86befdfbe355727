package game

import "errors"

var (
	ErrNotFound            = errors.New("room not found")
	ErrInvalidState        = errors.New("invalid state for action")
	ErrForbidden           = errors.New("forbidden")
	ErrFull                = errors.New("room is full")
	ErrDuplicateJoin       = errors.New("already in room")
	ErrDuplicateSubmission = errors.New("already submitted")
	ErrInsufficientPlayers = errors.New("need at least 2 players")
	ErrNoSubmissions       = errors.New("no submissions")
	ErrInvalidAnswer       = errors.New("invalid answer")
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrNotFound, "not_found"},
	{ErrInvalidState, "invalid_state"},
	{ErrForbidden, "forbidden"},
	{ErrFull, "full"},
	{ErrDuplicateJoin, "duplicate_join"},
	{ErrDuplicateSubmission, "duplicate_submission"},
	{ErrInsufficientPlayers, "insufficient_players"},
	{ErrNoSubmissions, "no_submissions"},
	{ErrInvalidAnswer, "invalid_answer"},
}

// Kind names the game error wrapped by err, or "internal" for anything else.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}
