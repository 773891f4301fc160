package auction

// slab is one step of an increment preset: bids strictly below Upto rise by
// Step. Slabs are ordered ascending; the last slab's Step applies above every
// threshold.
type slab struct {
	Upto int64
	Step int64
}

// IncrementPreset maps a current bid to the next legal amount. The mapping is
// deterministic and non-decreasing; the server is the only place it runs for
// real, any client-side preview is advisory.
type IncrementPreset struct {
	Name  string
	Slabs []slab
}

// Presets available at configure time. Amounts are whole rupees.
var presets = map[string]IncrementPreset{
	"classic": {
		Name: "classic",
		Slabs: []slab{
			{Upto: 50_000, Step: 1_000},
			{Upto: 200_000, Step: 5_000},
			{Upto: 0, Step: 10_000},
		},
	},
	"aggressive": {
		Name: "aggressive",
		Slabs: []slab{
			{Upto: 50_000, Step: 2_000},
			{Upto: 200_000, Step: 10_000},
			{Upto: 0, Step: 25_000},
		},
	},
}

// PresetByName returns the named preset, or false if it does not exist.
func PresetByName(name string) (IncrementPreset, bool) {
	p, ok := presets[name]
	return p, ok
}

// Step returns the increment applied on top of current.
func (p IncrementPreset) Step(current int64) int64 {
	for _, s := range p.Slabs {
		if s.Upto > 0 && current < s.Upto {
			return s.Step
		}
	}
	return p.Slabs[len(p.Slabs)-1].Step
}

// Next computes the next legal bid. A round with no bid yet opens at the
// base price; after that the slab table applies.
func (p IncrementPreset) Next(cfg Config, r *BiddingRound) int64 {
	if r.CurrentBidTeam == nil {
		return cfg.BasePrice
	}
	return r.CurrentBid + p.Step(r.CurrentBid)
}
