package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	liveSet    = "aucs:live"
	hashPrefix = "auc:"
)

// RunMirror copies every live auction's round hash into Postgres every 10 s.
// The hash is the WebSocket-facing hot state; the round_state table is the
// queryable view of it for dashboards and post-incident digging. Losing a
// tick costs nothing, the next one overwrites it.
func RunMirror(ctx context.Context, rdc *redis.Client, db *sql.DB) {
	tk := time.NewTicker(10 * time.Second)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				mirrorOnce(ctx, rdc, db)
			}
		}
	}()
}

func mirrorOnce(ctx context.Context, rdc *redis.Client, db *sql.DB) {
	keys, err := rdc.SMembers(ctx, liveSet).Result()
	if err != nil || len(keys) == 0 {
		return
	}

	// 1. fetch all hashes in one pipelined round-trip
	pipe := rdc.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.HGetAll(ctx, k)
	}
	if _, err = pipe.Exec(ctx); err != nil {
		zap.L().Error("mirror.pipeline", zap.Error(err))
		return
	}

	// 2. bulk-upsert into Postgres
	const upsert = `
	INSERT INTO round_state (auction_id, status, round, player_id, phase,
	                         current_bid, current_bid_team, version, updated_at)
	     VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''), $8, now())
	ON CONFLICT (auction_id) DO UPDATE
	       SET status = EXCLUDED.status,
	           round = EXCLUDED.round,
	           player_id = EXCLUDED.player_id,
	           phase = EXCLUDED.phase,
	           current_bid = EXCLUDED.current_bid,
	           current_bid_team = EXCLUDED.current_bid_team,
	           version = EXCLUDED.version,
	           updated_at = now()`

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		zap.L().Error("mirror.tx_begin", zap.Error(err))
		return
	}
	defer tx.Rollback()

	for i, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue // key disappeared between SMEMBERS and HGETALL
		}
		id := keys[i][len(hashPrefix):] // strip "auc:"
		if _, err := tx.ExecContext(ctx, upsert,
			id, data["status"], data["round"], data["pid"], data["phase"],
			data["bid"], data["team"], data["version"]); err != nil {
			zap.L().Error("mirror.upsert", zap.String("id", id), zap.Error(err))
		}
	}

	if err := tx.Commit(); err != nil {
		zap.L().Debug("mirror.commit", zap.Error(err))
	}
}
