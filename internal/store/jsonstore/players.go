package jsonstore

import (
	"context"
	"encoding/json"

	"github.com/lavirtualzone/transfers/internal/domain"
)

// LoadPlayers reads the player seed document. A missing document yields an
// empty slice.
func LoadPlayers(ctx context.Context, doc Document) ([]domain.Player, error) {
	data, err := doc.Read(ctx)
	if err != nil {
		return nil, persistErr("read", doc.Location(), err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var players []domain.Player
	if err := json.Unmarshal(data, &players); err != nil {
		return nil, persistErr("decode", doc.Location(), err)
	}
	return players, nil
}
