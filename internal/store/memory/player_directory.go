package memory

import (
	"context"
	"sync"

	"github.com/lavirtualzone/transfers/internal/domain"
)

var _ domain.PlayerDirectory = (*PlayerDirectory)(nil)

// PlayerDirectory is a fixed map of players keyed by ID.
type PlayerDirectory struct {
	mu      sync.RWMutex
	players map[string]domain.Player
}

// NewPlayerDirectory builds a directory from the given players.
func NewPlayerDirectory(players ...domain.Player) *PlayerDirectory {
	d := &PlayerDirectory{players: make(map[string]domain.Player, len(players))}
	for _, p := range players {
		d.players[p.ID] = p
	}
	return d
}

// GetPlayer returns the player or domain.ErrNotFound.
func (d *PlayerDirectory) GetPlayer(_ context.Context, id string) (domain.Player, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.players[id]
	if !ok {
		return domain.Player{}, domain.ErrNotFound
	}
	return p, nil
}

// Upsert adds or replaces a player.
func (d *PlayerDirectory) Upsert(p domain.Player) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.players[p.ID] = p
}
