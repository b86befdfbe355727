package store

import (
	"context"
	"sort"
	"sync"
)

// Memory keeps everything in process. Used by tests and by `-db memory`.
type Memory struct {
	mu      sync.RWMutex
	seq     int64
	rooms   map[string]RoomRecord
	xp      map[string]int64
	xpOrder []string // players in first-credit order
}

func NewMemory() *Memory {
	return &Memory{
		rooms: make(map[string]RoomRecord),
		xp:    make(map[string]int64),
	}
}

func (m *Memory) NextRoomSeq(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return m.seq, nil
}

func (m *Memory) GetRoom(ctx context.Context, id string) (RoomRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.rooms[id]
	if !ok {
		return RoomRecord{}, false, nil
	}
	return cloneRecord(rec), true, nil
}

func (m *Memory) ListRooms(ctx context.Context, f RoomFilter) ([]RoomRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RoomRecord, 0, len(m.rooms))
	for _, rec := range m.rooms {
		if f.match(rec) {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *Memory) SaveRoom(ctx context.Context, rec RoomRecord, credits ...XPEntry) error {
	if err := checkCredits(credits); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[rec.ID] = cloneRecord(rec)
	for _, c := range credits {
		if _, seen := m.xp[c.Player]; !seen {
			m.xpOrder = append(m.xpOrder, c.Player)
		}
		m.xp[c.Player] += c.XP
	}
	return nil
}

func (m *Memory) PlayerXP(ctx context.Context, player string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.xp[player], nil
}

func (m *Memory) TopXP(ctx context.Context, limit int) ([]XPEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]XPEntry, 0, len(m.xpOrder))
	for _, p := range m.xpOrder {
		out = append(out, XPEntry{Player: p, XP: m.xp[p]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].XP > out[j].XP })
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }

func cloneRecord(rec RoomRecord) RoomRecord {
	rec.Data = append([]byte(nil), rec.Data...)
	return rec
}
