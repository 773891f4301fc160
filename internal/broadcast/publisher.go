package broadcast

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"cricketauction/internal/auction"
	"cricketauction/internal/registry"
)

const (
	keyPrefix     = "auc:"
	channelSuffix = ":events"
	liveSet       = "aucs:live"
)

// Channel is the pub/sub channel carrying one auction's event feed.
func Channel(id string) string { return keyPrefix + id + channelSuffix }

// Redis fans applied deltas out via pub/sub and keeps a per-auction hash with
// the current round state, so any instance can serve a snapshot hint without
// owning the actor.
type Redis struct {
	rdc *redis.Client
	log *zap.Logger
}

func NewRedis(rdc *redis.Client) *Redis {
	return &Redis{rdc: rdc, log: zap.L()}
}

func (r *Redis) Publish(ctx context.Context, a *auction.Auction, d registry.Delta) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}

	id := a.ID.String()
	pipe := r.rdc.Pipeline()
	pipe.Publish(ctx, Channel(id), payload)
	pipe.HSet(ctx, keyPrefix+id, liveHash(a, d.Version))
	if a.Status == auction.StatusLive || a.Status == auction.StatusPaused {
		pipe.SAdd(ctx, liveSet, keyPrefix+id)
	} else {
		pipe.SRem(ctx, liveSet, keyPrefix+id)
		if a.Status == auction.StatusFinalized {
			pipe.Del(ctx, keyPrefix+id)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		// The delta may still have reached subscribers; callers treat publish
		// errors as log-only because durable state is already committed.
		r.log.Warn("broadcast.pipeline", zap.String("auction_id", id), zap.Error(err))
		return err
	}
	return nil
}

func liveHash(a *auction.Auction, version int) map[string]string {
	h := map[string]string{
		"status":  string(a.Status),
		"version": strconv.Itoa(version),
	}
	if a.Round != nil {
		h["round"] = strconv.Itoa(a.Round.Number)
		h["pid"] = a.Round.PlayerID.String()
		h["phase"] = string(a.Round.Phase)
		h["bid"] = strconv.FormatInt(a.Round.CurrentBid, 10)
		if a.Round.CurrentBidTeam != nil {
			h["team"] = a.Round.CurrentBidTeam.String()
		} else {
			h["team"] = ""
		}
		h["expires"] = strconv.FormatInt(a.Round.TimerExpiresAt.UnixMilli(), 10)
	}
	return h
}
