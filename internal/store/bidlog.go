package store

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RunBidLog tails the bid stream and drains it into the bids table. The
// stream is the durable write on the bidding hot path; Postgres only has to
// keep up, never to keep pace.
func RunBidLog(ctx context.Context, rdc *redis.Client, db *sql.DB) {
	go func() {
		lastID := "0-0"
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			// block up to 2 s for new entries
			res, err := rdc.XRead(ctx, &redis.XReadArgs{
				Streams: []string{BidStream, lastID},
				Count:   100,
				Block:   2000 * time.Millisecond,
			}).Result()
			if err != nil && err != redis.Nil {
				if ctx.Err() != nil {
					return
				}
				zap.L().Warn("bidlog.xread", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}
			if len(res) == 0 {
				continue
			}
			entries := res[0].Messages
			if err := persistBids(ctx, db, entries); err != nil {
				zap.L().Error("bidlog.persist", zap.Error(err))
				continue // retry the same batch on the next read from lastID
			}
			lastID = entries[len(entries)-1].ID
		}
	}()
}

func persistBids(ctx context.Context, db *sql.DB, msgs []redis.XMessage) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	const ins = `INSERT INTO bids (auction_id, round, player_id, team_id, amount, placed_at)
	             VALUES ($1, $2, $3, $4, $5, to_timestamp($6))
	             ON CONFLICT DO NOTHING`
	for _, m := range msgs {
		aid := m.Values["aid"].(string)
		round := m.Values["round"].(string)
		pid := m.Values["pid"].(string)
		team := m.Values["team"].(string)
		amt := m.Values["amount"].(string)
		at := m.Values["at"].(string)

		amount, _ := strconv.ParseInt(amt, 10, 64)
		ts, _ := strconv.ParseInt(at, 10, 64)
		if _, err := tx.ExecContext(ctx, ins, aid, round, pid, team, amount, ts); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
