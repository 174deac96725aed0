package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"grimoire/internal/game"
)

// querier is the subset of pgx shared by a pool and a transaction, so
// the same repository code serves both paths.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is the production Store backed by a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Users() Users             { return pgUsers{q: p.pool} }
func (p *Postgres) Shops() Shops             { return pgShops{q: p.pool} }
func (p *Postgres) TradeOffers() TradeOffers { return pgOffers{q: p.pool} }

func (p *Postgres) WithTx(ctx context.Context, fn func(tx Store) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(pgTx{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// EnsureSchema creates the tables on first run.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			scrolls INT NOT NULL DEFAULT 0,
			last_daily_at TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS user_spells (
			user_id TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
			spell_id INT NOT NULL,
			amount INT NOT NULL,
			PRIMARY KEY (user_id, spell_id)
		);
		CREATE TABLE IF NOT EXISTS shops (
			channel_id TEXT PRIMARY KEY,
			message_id TEXT NOT NULL DEFAULT '',
			updates_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS shop_spells (
			channel_id TEXT NOT NULL REFERENCES shops (channel_id) ON DELETE CASCADE,
			spell_id INT NOT NULL,
			amount INT NOT NULL,
			PRIMARY KEY (channel_id, spell_id)
		);
		CREATE TABLE IF NOT EXISTS trade_offers (
			channel_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			give INT[] NOT NULL,
			receive INT[] NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (channel_id, message_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// pgTx is the Store view inside a transaction. Nested WithTx runs in the
// same transaction.
type pgTx struct {
	q querier
}

func (t pgTx) Users() Users             { return pgUsers{q: t.q} }
func (t pgTx) Shops() Shops             { return pgShops{q: t.q} }
func (t pgTx) TradeOffers() TradeOffers { return pgOffers{q: t.q} }

func (t pgTx) WithTx(_ context.Context, fn func(tx Store) error) error {
	return fn(t)
}

type pgUsers struct {
	q querier
}

func (r pgUsers) Get(ctx context.Context, id string) (*game.User, error) {
	u := game.NewUser(id)
	err := r.q.QueryRow(ctx, `
		SELECT scrolls, last_daily_at
		FROM users
		WHERE id = $1
	`, id).Scan(&u.Scrolls, &u.LastDailyAt)
	if err == pgx.ErrNoRows {
		return u, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %q: %w", id, err)
	}

	u.Spells, err = querySpells(ctx, r.q, `
		SELECT spell_id, amount
		FROM user_spells
		WHERE user_id = $1
		ORDER BY spell_id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get user %q spells: %w", id, err)
	}
	return u, nil
}

func (r pgUsers) Upsert(ctx context.Context, u *game.User) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO users (id, scrolls, last_daily_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET scrolls = EXCLUDED.scrolls, last_daily_at = EXCLUDED.last_daily_at
	`, u.ID, u.Scrolls, u.LastDailyAt)
	if err != nil {
		return fmt.Errorf("upsert user %q: %w", u.ID, err)
	}
	return replaceSpells(ctx, r.q, "user_spells", "user_id", u.ID, u.Spells)
}

type pgShops struct {
	q querier
}

func (r pgShops) Get(ctx context.Context, channelID string) (*game.Shop, error) {
	s := &game.Shop{ChannelID: channelID}
	err := r.q.QueryRow(ctx, `
		SELECT message_id, updates_at
		FROM shops
		WHERE channel_id = $1
	`, channelID).Scan(&s.MessageID, &s.UpdatesAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get shop %q: %w", channelID, err)
	}

	s.Spells, err = querySpells(ctx, r.q, `
		SELECT spell_id, amount
		FROM shop_spells
		WHERE channel_id = $1
		ORDER BY spell_id
	`, channelID)
	if err != nil {
		return nil, fmt.Errorf("get shop %q spells: %w", channelID, err)
	}
	return s, nil
}

func (r pgShops) GetAll(ctx context.Context) ([]*game.Shop, error) {
	rows, err := r.q.Query(ctx, `SELECT channel_id, message_id, updates_at FROM shops`)
	if err != nil {
		return nil, fmt.Errorf("list shops: %w", err)
	}
	var shops []*game.Shop
	for rows.Next() {
		s := &game.Shop{}
		if err := rows.Scan(&s.ChannelID, &s.MessageID, &s.UpdatesAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan shop: %w", err)
		}
		shops = append(shops, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list shops: %w", err)
	}

	for _, s := range shops {
		s.Spells, err = querySpells(ctx, r.q, `
			SELECT spell_id, amount
			FROM shop_spells
			WHERE channel_id = $1
			ORDER BY spell_id
		`, s.ChannelID)
		if err != nil {
			return nil, fmt.Errorf("get shop %q spells: %w", s.ChannelID, err)
		}
	}
	return shops, nil
}

func (r pgShops) Upsert(ctx context.Context, s *game.Shop) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO shops (channel_id, message_id, updates_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (channel_id) DO UPDATE
		SET message_id = EXCLUDED.message_id, updates_at = EXCLUDED.updates_at
	`, s.ChannelID, s.MessageID, s.UpdatesAt)
	if err != nil {
		return fmt.Errorf("upsert shop %q: %w", s.ChannelID, err)
	}
	return replaceSpells(ctx, r.q, "shop_spells", "channel_id", s.ChannelID, s.Spells)
}

func (r pgShops) Delete(ctx context.Context, channelID string) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM shops WHERE channel_id = $1`, channelID); err != nil {
		return fmt.Errorf("delete shop %q: %w", channelID, err)
	}
	return nil
}

type pgOffers struct {
	q querier
}

func (r pgOffers) Get(ctx context.Context, channelID, messageID string) (*game.TradeOffer, error) {
	o := &game.TradeOffer{ChannelID: channelID, MessageID: messageID}
	var give, receive []int32
	var expiresAt time.Time
	err := r.q.QueryRow(ctx, `
		SELECT user_id, give, receive, expires_at
		FROM trade_offers
		WHERE channel_id = $1 AND message_id = $2
	`, channelID, messageID).Scan(&o.UserID, &give, &receive, &expiresAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get offer %s/%s: %w", channelID, messageID, err)
	}
	o.Give = fromInt32(give)
	o.Receive = fromInt32(receive)
	o.ExpiresAt = expiresAt
	return o, nil
}

func (r pgOffers) GetAll(ctx context.Context) ([]*game.TradeOffer, error) {
	rows, err := r.q.Query(ctx, `
		SELECT channel_id, message_id, user_id, give, receive, expires_at
		FROM trade_offers
	`)
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	defer rows.Close()

	var offers []*game.TradeOffer
	for rows.Next() {
		o := &game.TradeOffer{}
		var give, receive []int32
		if err := rows.Scan(&o.ChannelID, &o.MessageID, &o.UserID, &give, &receive, &o.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		o.Give = fromInt32(give)
		o.Receive = fromInt32(receive)
		offers = append(offers, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	return offers, nil
}

func (r pgOffers) Create(ctx context.Context, o *game.TradeOffer) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO trade_offers (channel_id, message_id, user_id, give, receive, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, o.ChannelID, o.MessageID, o.UserID, toInt32(o.Give), toInt32(o.Receive), o.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create offer %s/%s: %w", o.ChannelID, o.MessageID, err)
	}
	return nil
}

func (r pgOffers) Delete(ctx context.Context, channelID, messageID string) error {
	_, err := r.q.Exec(ctx, `
		DELETE FROM trade_offers
		WHERE channel_id = $1 AND message_id = $2
	`, channelID, messageID)
	if err != nil {
		return fmt.Errorf("delete offer %s/%s: %w", channelID, messageID, err)
	}
	return nil
}

func querySpells(ctx context.Context, q querier, sql, key string) (game.SpellSet, error) {
	rows, err := q.Query(ctx, sql, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var set game.SpellSet
	for rows.Next() {
		var stack game.SpellStack
		if err := rows.Scan(&stack.ID, &stack.Amount); err != nil {
			return nil, err
		}
		set = append(set, stack)
	}
	return set, rows.Err()
}

// replaceSpells makes the stored spell rows match set exactly: stale
// rows go, the rest are upserted. Callers needing atomicity with other
// writes run this inside WithTx.
func replaceSpells(ctx context.Context, q querier, table, keyColumn, key string, set game.SpellSet) error {
	ids := make([]int32, len(set))
	amounts := make([]int32, len(set))
	for i, stack := range set {
		ids[i] = int32(stack.ID)
		amounts[i] = int32(stack.Amount)
	}

	_, err := q.Exec(ctx, fmt.Sprintf(`
		DELETE FROM %s
		WHERE %s = $1 AND spell_id <> ALL($2::int[])
	`, table, keyColumn), key, ids)
	if err != nil {
		return fmt.Errorf("trim %s for %q: %w", table, key, err)
	}
	if len(set) == 0 {
		return nil
	}

	_, err = q.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (%s, spell_id, amount)
		SELECT $1, t.spell_id, t.amount
		FROM unnest($2::int[], $3::int[]) AS t (spell_id, amount)
		ON CONFLICT (%s, spell_id) DO UPDATE SET amount = EXCLUDED.amount
	`, table, keyColumn, keyColumn), key, ids, amounts)
	if err != nil {
		return fmt.Errorf("write %s for %q: %w", table, key, err)
	}
	return nil
}

func toInt32(xs []int) []int32 {
	out := make([]int32, len(xs))
	for i, x := range xs {
		out[i] = int32(x)
	}
	return out
}

func fromInt32(xs []int32) []int {
	out := make([]int, len(xs))
	for i, x := range xs {
		out[i] = int(x)
	}
	return out
}
