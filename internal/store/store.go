// Package store is the persistence boundary for rooms and the leaderboard.
//
// Rooms cross this boundary as RoomRecord values: a few indexed columns plus the
// room document encoded by the caller. The store never interprets Data.
package store

import (
	"context"
	"errors"
)

var ErrNegativeCredit = errors.New("store: leaderboard credit must not be negative")

// RoomRecord is a persisted room.
type RoomRecord struct {
	ID      string
	Seq     int64
	Status  string
	Private bool
	Data    []byte
}

// RoomFilter narrows ListRooms. Zero value matches every room.
type RoomFilter struct {
	Status     string
	PublicOnly bool
}

func (f RoomFilter) match(r RoomRecord) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.PublicOnly && r.Private {
		return false
	}
	return true
}

// XPEntry is one leaderboard row, also used as a credit when saving a room.
type XPEntry struct {
	Player string `json:"player"`
	XP     int64  `json:"xp"`
}

type Store interface {
	// NextRoomSeq allocates the next room sequence number, starting at 1.
	// Allocated numbers are never handed out again, even if the room is never saved.
	NextRoomSeq(ctx context.Context) (int64, error)
	GetRoom(ctx context.Context, id string) (RoomRecord, bool, error)
	// ListRooms returns matching rooms ordered by Seq.
	ListRooms(ctx context.Context, f RoomFilter) ([]RoomRecord, error)
	// SaveRoom upserts rec and adds every credit to the leaderboard in one atomic step.
	SaveRoom(ctx context.Context, rec RoomRecord, credits ...XPEntry) error
	PlayerXP(ctx context.Context, player string) (int64, error)
	// TopXP returns up to limit entries by descending XP; ties keep first-credit order.
	TopXP(ctx context.Context, limit int) ([]XPEntry, error)
	Close() error
}

func checkCredits(credits []XPEntry) error {
	for _, c := range credits {
		if c.XP < 0 {
			return ErrNegativeCredit
		}
	}
	return nil
}
