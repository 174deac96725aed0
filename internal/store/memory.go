package store

import (
	"context"
	"sync"

	"grimoire/internal/game"
)

// Memory is an in-process Store used by tests and local development.
// Aggregates are deep-copied on every read and write so callers can
// mutate what they hold without leaking into the store.
type Memory struct {
	mu   sync.Mutex
	data *memData
}

type memData struct {
	users  map[string]*game.User
	shops  map[string]*game.Shop
	offers map[game.OfferKey]*game.TradeOffer
}

func NewMemory() *Memory {
	return &Memory{data: newMemData()}
}

func newMemData() *memData {
	return &memData{
		users:  make(map[string]*game.User),
		shops:  make(map[string]*game.Shop),
		offers: make(map[game.OfferKey]*game.TradeOffer),
	}
}

func (d *memData) clone() *memData {
	out := newMemData()
	for k, v := range d.users {
		out.users[k] = v.Clone()
	}
	for k, v := range d.shops {
		out.shops[k] = v.Clone()
	}
	for k, v := range d.offers {
		out.offers[k] = v.Clone()
	}
	return out
}

func (m *Memory) Users() Users             { return memUsers{m: m} }
func (m *Memory) Shops() Shops             { return memShops{m: m} }
func (m *Memory) TradeOffers() TradeOffers { return memOffers{m: m} }

// WithTx runs fn against the live data under the store mutex and rolls
// the whole data set back to a snapshot if fn fails.
func (m *Memory) WithTx(_ context.Context, fn func(tx Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	if err := fn(memTx{data: m.data}); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

// memTx is the unsynchronized view handed to WithTx closures.
type memTx struct {
	data *memData
}

func (t memTx) Users() Users             { return memUsers{data: t.data} }
func (t memTx) Shops() Shops             { return memShops{data: t.data} }
func (t memTx) TradeOffers() TradeOffers { return memOffers{data: t.data} }

func (t memTx) WithTx(_ context.Context, fn func(tx Store) error) error {
	return fn(t)
}

// The repository types work either through the owning Memory (locking)
// or directly on a memData inside a transaction.

type memUsers struct {
	m    *Memory
	data *memData
}

func (r memUsers) with(fn func(d *memData)) {
	if r.m != nil {
		r.m.mu.Lock()
		defer r.m.mu.Unlock()
		fn(r.m.data)
		return
	}
	fn(r.data)
}

func (r memUsers) Get(_ context.Context, id string) (*game.User, error) {
	var u *game.User
	r.with(func(d *memData) {
		if stored, ok := d.users[id]; ok {
			u = stored.Clone()
		}
	})
	if u == nil {
		u = game.NewUser(id)
	}
	return u, nil
}

func (r memUsers) Upsert(_ context.Context, u *game.User) error {
	r.with(func(d *memData) {
		d.users[u.ID] = u.Clone()
	})
	return nil
}

type memShops struct {
	m    *Memory
	data *memData
}

func (r memShops) with(fn func(d *memData)) {
	if r.m != nil {
		r.m.mu.Lock()
		defer r.m.mu.Unlock()
		fn(r.m.data)
		return
	}
	fn(r.data)
}

func (r memShops) Get(_ context.Context, channelID string) (*game.Shop, error) {
	var s *game.Shop
	r.with(func(d *memData) {
		if stored, ok := d.shops[channelID]; ok {
			s = stored.Clone()
		}
	})
	return s, nil
}

func (r memShops) GetAll(_ context.Context) ([]*game.Shop, error) {
	var shops []*game.Shop
	r.with(func(d *memData) {
		for _, s := range d.shops {
			shops = append(shops, s.Clone())
		}
	})
	return shops, nil
}

func (r memShops) Upsert(_ context.Context, s *game.Shop) error {
	r.with(func(d *memData) {
		d.shops[s.ChannelID] = s.Clone()
	})
	return nil
}

func (r memShops) Delete(_ context.Context, channelID string) error {
	r.with(func(d *memData) {
		delete(d.shops, channelID)
	})
	return nil
}

type memOffers struct {
	m    *Memory
	data *memData
}

func (r memOffers) with(fn func(d *memData)) {
	if r.m != nil {
		r.m.mu.Lock()
		defer r.m.mu.Unlock()
		fn(r.m.data)
		return
	}
	fn(r.data)
}

func (r memOffers) Get(_ context.Context, channelID, messageID string) (*game.TradeOffer, error) {
	var o *game.TradeOffer
	key := game.OfferKey{ChannelID: channelID, MessageID: messageID}
	r.with(func(d *memData) {
		if stored, ok := d.offers[key]; ok {
			o = stored.Clone()
		}
	})
	return o, nil
}

func (r memOffers) GetAll(_ context.Context) ([]*game.TradeOffer, error) {
	var offers []*game.TradeOffer
	r.with(func(d *memData) {
		for _, o := range d.offers {
			offers = append(offers, o.Clone())
		}
	})
	return offers, nil
}

func (r memOffers) Create(_ context.Context, o *game.TradeOffer) error {
	r.with(func(d *memData) {
		d.offers[o.Key()] = o.Clone()
	})
	return nil
}

func (r memOffers) Delete(_ context.Context, channelID, messageID string) error {
	r.with(func(d *memData) {
		delete(d.offers, game.OfferKey{ChannelID: channelID, MessageID: messageID})
	})
	return nil
}
