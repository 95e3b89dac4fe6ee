// internal/database/game.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/skullparty/skull/internal/models"
)

// RecordGameResult persists the final outcome of a finished game: the
// game row is finalized and one result row is written per seat with the
// player's remaining disc count and win flag.
func RecordGameResult(ctx context.Context, gameID uuid.UUID, players []*models.Player, winnerID uuid.UUID, reason string) error {
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		finalizeGame := `
			INSERT INTO games (id, status, end_reason, end_time)
			VALUES ($1, 'completed', $2, NOW())
			ON CONFLICT (id)
			DO UPDATE SET status = 'completed', end_reason = $2, end_time = NOW()
		`
		if _, e := tx.Exec(ctx, finalizeGame, gameID, reason); e != nil {
			return e
		}

		for _, p := range players {
			q := `
				INSERT INTO game_results (game_id, player_id, player_name, wins, remaining_discs, did_win)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (game_id, player_id)
				DO UPDATE SET wins = $4, remaining_discs = $5, did_win = $6
			`
			if _, e := tx.Exec(ctx, q, gameID, p.ID, p.Name, p.Wins, p.Remaining(), p.ID == winnerID); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx record game result: %w", err)
	}
	return nil
}
