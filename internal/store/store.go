package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"cricketauction/internal/auction"
)

// BidStream is the Redis stream every accepted bid is appended to before its
// broadcast goes out. The bidlog tailer drains it into Postgres.
const BidStream = "auction_bids"

var ErrNotFound = errors.New("auction not found")

// Store persists auction aggregates in Postgres and appends accepted bids to
// the Redis bid stream. One aggregate per transaction; there are no
// cross-auction writes.
type Store struct {
	db  *sql.DB
	rdc *redis.Client
}

func New(db *sql.DB, rdc *redis.Client) *Store {
	return &Store{db: db, rdc: rdc}
}

// AuctionSummary is the listing row, everything heavier lives in the snapshot.
type AuctionSummary struct {
	ID           uuid.UUID      `json:"id"`
	Slug         string         `json:"slug"`
	Status       auction.Status `json:"status"`
	CurrentRound int            `json:"current_round"`
	CreatedAt    time.Time      `json:"created_at"`
}

// CreateAuction writes a freshly drafted aggregate: the auction row plus its
// teams and players, in one transaction.
func (s *Store) CreateAuction(ctx context.Context, a *auction.Auction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	cfg, err := json.Marshal(a.Config)
	if err != nil {
		return err
	}
	order, err := json.Marshal(a.PoolOrder)
	if err != nil {
		return err
	}
	const insAuction = `INSERT INTO auctions (id, slug, status, config, current_round, pool_order, created_at)
	                    VALUES ($1, $2, $3, $4, $5, $6, now())`
	if _, err := tx.ExecContext(ctx, insAuction, a.ID, a.Slug, a.Status, cfg, a.CurrentRound, order); err != nil {
		return err
	}

	const insTeam = `INSERT INTO teams (id, auction_id, name, purse_value, spent, squad, token)
	                 VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for _, t := range a.Teams {
		squad, err := json.Marshal(t.Squad)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, insTeam, t.ID, a.ID, t.Name, t.PurseValue, t.Spent, squad, t.Token); err != nil {
			return err
		}
	}

	const insPlayer = `INSERT INTO players (id, auction_id, name, role, status, sold_to)
	                   VALUES ($1, $2, $3, $4, $5, $6)`
	for _, p := range a.Players {
		if _, err := tx.ExecContext(ctx, insPlayer, p.ID, a.ID, p.Name, p.Role, p.Status, p.SoldTo); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListAuctions(ctx context.Context) ([]AuctionSummary, error) {
	const q = `SELECT id, slug, status, current_round, created_at
	           FROM auctions ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuctionSummary
	for rows.Next() {
		var sum AuctionSummary
		if err := rows.Scan(&sum.ID, &sum.Slug, &sum.Status, &sum.CurrentRound, &sum.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// TeamByToken resolves a bidding credential to its team. Tokens are scoped to
// one auction; a token never grants anything across auctions.
func (s *Store) TeamByToken(ctx context.Context, auctionID uuid.UUID, token string) (uuid.UUID, error) {
	const q = `SELECT id FROM teams WHERE auction_id = $1 AND token = $2`
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx, q, auctionID, token).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.UUID{}, errors.New("unknown team token")
	}
	return id, err
}

// LoadAuction rebuilds the full aggregate for the registry.
func (s *Store) LoadAuction(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	const q = `SELECT slug, status, config, current_round, pool_order, trade_window_ends_at
	           FROM auctions WHERE id = $1`
	var (
		a        = auction.New(id, "")
		cfg      []byte
		order    []byte
		tradeEnd sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, q, id).Scan(&a.Slug, &a.Status, &cfg, &a.CurrentRound, &order, &tradeEnd)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(cfg, &a.Config); err != nil {
		return nil, fmt.Errorf("auction %s config: %w", id, err)
	}
	if err := json.Unmarshal(order, &a.PoolOrder); err != nil {
		return nil, fmt.Errorf("auction %s pool order: %w", id, err)
	}
	if tradeEnd.Valid {
		a.TradeWindowEndsAt = tradeEnd.Time
	}

	if err := s.loadTeams(ctx, a); err != nil {
		return nil, err
	}
	if err := s.loadPlayers(ctx, a); err != nil {
		return nil, err
	}
	if err := s.loadTrades(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Store) loadTeams(ctx context.Context, a *auction.Auction) error {
	const q = `SELECT id, name, purse_value, spent, squad, token FROM teams WHERE auction_id = $1`
	rows, err := s.db.QueryContext(ctx, q, a.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			t     auction.Team
			squad []byte
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.PurseValue, &t.Spent, &squad, &t.Token); err != nil {
			return err
		}
		if err := json.Unmarshal(squad, &t.Squad); err != nil {
			return fmt.Errorf("team %s squad: %w", t.ID, err)
		}
		a.Teams[t.ID] = &t
	}
	return rows.Err()
}

func (s *Store) loadPlayers(ctx context.Context, a *auction.Auction) error {
	const q = `SELECT id, name, role, status, sold_to, sold_amount, sold_in_round
	           FROM players WHERE auction_id = $1`
	rows, err := s.db.QueryContext(ctx, q, a.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			p      auction.Player
			soldTo uuid.NullUUID
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Role, &p.Status, &soldTo, &p.SoldAmount, &p.SoldInRound); err != nil {
			return err
		}
		if soldTo.Valid {
			id := soldTo.UUID
			p.SoldTo = &id
		}
		a.Players[p.ID] = &p
	}
	return rows.Err()
}

func (s *Store) loadTrades(ctx context.Context, a *auction.Auction) error {
	const q = `SELECT id, initiator_team, counterparty_team, initiator_players, counterparty_players,
	                  initiator_value, counterparty_value, settlement_amount, settlement_direction,
	                  status, message, admin_note, proposed_at, resolved_at
	           FROM trades WHERE auction_id = $1`
	rows, err := s.db.QueryContext(ctx, q, a.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			t          auction.Trade
			give       []byte
			want       []byte
			resolvedAt sql.NullTime
		)
		if err := rows.Scan(&t.ID, &t.InitiatorTeam, &t.CounterpartyTeam, &give, &want,
			&t.InitiatorValue, &t.CounterpartyValue, &t.SettlementAmount, &t.SettlementDirection,
			&t.Status, &t.Message, &t.AdminNote, &t.ProposedAt, &resolvedAt); err != nil {
			return err
		}
		if err := json.Unmarshal(give, &t.InitiatorPlayers); err != nil {
			return fmt.Errorf("trade %s initiator players: %w", t.ID, err)
		}
		if err := json.Unmarshal(want, &t.CounterpartyPlayers); err != nil {
			return fmt.Errorf("trade %s counterparty players: %w", t.ID, err)
		}
		if resolvedAt.Valid {
			t.ResolvedAt = resolvedAt.Time
		}
		a.Trades[t.ID] = &t
	}
	return rows.Err()
}

func (s *Store) SaveConfig(ctx context.Context, a *auction.Auction) error {
	cfg, err := json.Marshal(a.Config)
	if err != nil {
		return err
	}
	const q = `UPDATE auctions SET status = $2, config = $3 WHERE id = $1`
	_, err = s.db.ExecContext(ctx, q, a.ID, a.Status, cfg)
	return err
}

func (s *Store) SaveStatus(ctx context.Context, a *auction.Auction) error {
	const q = `UPDATE auctions
	           SET status = $2, current_round = $3, trade_window_ends_at = $4
	           WHERE id = $1`
	var tradeEnd sql.NullTime
	if !a.TradeWindowEndsAt.IsZero() {
		tradeEnd = sql.NullTime{Time: a.TradeWindowEndsAt, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, q, a.ID, a.Status, a.CurrentRound, tradeEnd)
	return err
}

func (s *Store) SavePoolOrder(ctx context.Context, a *auction.Auction) error {
	order, err := json.Marshal(a.PoolOrder)
	if err != nil {
		return err
	}
	const q = `UPDATE auctions SET pool_order = $2 WHERE id = $1`
	_, err = s.db.ExecContext(ctx, q, a.ID, order)
	return err
}

// AppendBid appends the accepted bid to the durable Redis stream. Postgres
// catches up through the bidlog tailer; the stream itself is the
// before-broadcast write the round arbiter waits on.
func (s *Store) AppendBid(ctx context.Context, auctionID uuid.UUID, round int, playerID uuid.UUID, b auction.Bid) error {
	return s.rdc.XAdd(ctx, &redis.XAddArgs{
		Stream: BidStream,
		Values: map[string]any{
			"aid":    auctionID.String(),
			"round":  strconv.Itoa(round),
			"pid":    playerID.String(),
			"team":   b.TeamID.String(),
			"amount": strconv.FormatInt(b.Amount, 10),
			"at":     strconv.FormatInt(b.At.Unix(), 10),
		},
	}).Err()
}

// SaveSale commits a resolved round: the player row, the buying team's purse
// and squad, and the auction's round counter move together.
func (s *Store) SaveSale(ctx context.Context, a *auction.Auction, p *auction.Player) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const updPlayer = `UPDATE players
	                   SET status = $2, sold_to = $3, sold_amount = $4, sold_in_round = $5
	                   WHERE id = $1`
	if _, err := tx.ExecContext(ctx, updPlayer, p.ID, p.Status, p.SoldTo, p.SoldAmount, p.SoldInRound); err != nil {
		return err
	}

	team := a.Teams[*p.SoldTo]
	if err := saveTeamTx(ctx, tx, team); err != nil {
		return err
	}

	const updAuction = `UPDATE auctions SET current_round = $2, pool_order = $3 WHERE id = $1`
	order, err := json.Marshal(a.PoolOrder)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, updAuction, a.ID, a.CurrentRound, order); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) SaveUnsold(ctx context.Context, a *auction.Auction, p *auction.Player) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const updPlayer = `UPDATE players SET status = $2 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, updPlayer, p.ID, p.Status); err != nil {
		return err
	}
	order, err := json.Marshal(a.PoolOrder)
	if err != nil {
		return err
	}
	const updAuction = `UPDATE auctions SET current_round = $2, pool_order = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, updAuction, a.ID, a.CurrentRound, order); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) SaveTrade(ctx context.Context, auctionID uuid.UUID, t *auction.Trade) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := saveTradeTx(ctx, tx, auctionID, t); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveTradeExecution writes the trade's terminal state and both reshaped
// rosters in the same transaction, so a half-applied trade is never durable.
func (s *Store) SaveTradeExecution(ctx context.Context, a *auction.Auction, t *auction.Trade) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := saveTradeTx(ctx, tx, a.ID, t); err != nil {
		return err
	}
	for _, teamID := range []uuid.UUID{t.InitiatorTeam, t.CounterpartyTeam} {
		if err := saveTeamTx(ctx, tx, a.Teams[teamID]); err != nil {
			return err
		}
	}
	const updPlayer = `UPDATE players SET sold_to = $2 WHERE id = $1`
	for _, pid := range append(append([]uuid.UUID(nil), t.InitiatorPlayers...), t.CounterpartyPlayers...) {
		p := a.Players[pid]
		if _, err := tx.ExecContext(ctx, updPlayer, p.ID, p.SoldTo); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func saveTeamTx(ctx context.Context, tx *sql.Tx, t *auction.Team) error {
	squad, err := json.Marshal(t.Squad)
	if err != nil {
		return err
	}
	const q = `UPDATE teams SET spent = $2, squad = $3 WHERE id = $1`
	_, err = tx.ExecContext(ctx, q, t.ID, t.Spent, squad)
	return err
}

func saveTradeTx(ctx context.Context, tx *sql.Tx, auctionID uuid.UUID, t *auction.Trade) error {
	give, err := json.Marshal(t.InitiatorPlayers)
	if err != nil {
		return err
	}
	want, err := json.Marshal(t.CounterpartyPlayers)
	if err != nil {
		return err
	}
	var resolvedAt sql.NullTime
	if !t.ResolvedAt.IsZero() {
		resolvedAt = sql.NullTime{Time: t.ResolvedAt, Valid: true}
	}
	const upsert = `INSERT INTO trades (id, auction_id, initiator_team, counterparty_team,
	                                    initiator_players, counterparty_players,
	                                    initiator_value, counterparty_value,
	                                    settlement_amount, settlement_direction,
	                                    status, message, admin_note, proposed_at, resolved_at)
	                VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	                ON CONFLICT (id) DO UPDATE
	                       SET status = EXCLUDED.status,
	                           admin_note = EXCLUDED.admin_note,
	                           resolved_at = EXCLUDED.resolved_at`
	_, err = tx.ExecContext(ctx, upsert, t.ID, auctionID, t.InitiatorTeam, t.CounterpartyTeam,
		give, want, t.InitiatorValue, t.CounterpartyValue, t.SettlementAmount, t.SettlementDirection,
		t.Status, t.Message, t.AdminNote, t.ProposedAt, resolvedAt)
	return err
}
