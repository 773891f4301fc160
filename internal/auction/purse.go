package auction

// MaxBid is the most a team may bid right now: its remaining purse minus what
// it must hold back to still fill the minimum squad at base price after this
// purchase.
func MaxBid(t *Team, cfg Config) int64 {
	reserveSlots := cfg.MinSquadSize - t.SquadSize() - 1
	if reserveSlots < 0 {
		reserveSlots = 0
	}
	return t.PurseRemaining() - cfg.BasePrice*int64(reserveSlots)
}

// CanBid reports whether the team may place a bid of nextAmount.
func CanBid(t *Team, cfg Config, nextAmount int64) error {
	if t.SquadSize() >= cfg.MaxSquadSize {
		return ErrSquadFull
	}
	if MaxBid(t, cfg) < nextAmount {
		return ErrInsufficientPurse
	}
	return nil
}
