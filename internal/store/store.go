// Package store persists the game aggregates. The interfaces are the
// contract the handlers program against; Postgres backs production and
// the in-memory adapter backs tests.
package store

import (
	"context"

	"grimoire/internal/game"
)

// Users holds player aggregates. Get never returns nil: an unknown id
// yields a fresh empty aggregate that exists once upserted.
type Users interface {
	Get(ctx context.Context, id string) (*game.User, error)
	Upsert(ctx context.Context, u *game.User) error
}

// Shops holds per-channel storefronts. Get returns nil when the channel
// has no shop.
type Shops interface {
	Get(ctx context.Context, channelID string) (*game.Shop, error)
	GetAll(ctx context.Context) ([]*game.Shop, error)
	Upsert(ctx context.Context, s *game.Shop) error
	Delete(ctx context.Context, channelID string) error
}

// TradeOffers holds pending offers keyed by (channel, message). Get
// returns nil when the offer is gone; callers treat that as the offer
// having already been resolved.
type TradeOffers interface {
	Get(ctx context.Context, channelID, messageID string) (*game.TradeOffer, error)
	GetAll(ctx context.Context) ([]*game.TradeOffer, error)
	Create(ctx context.Context, o *game.TradeOffer) error
	Delete(ctx context.Context, channelID, messageID string) error
}

// Store bundles the repositories with a transaction primitive. WithTx
// runs fn against a transactional view; every write inside fn commits as
// one unit or not at all.
type Store interface {
	Users() Users
	Shops() Shops
	TradeOffers() TradeOffers
	WithTx(ctx context.Context, fn func(tx Store) error) error
}
