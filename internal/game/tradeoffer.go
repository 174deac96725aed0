package game

import "time"

// OfferKey identifies one trade offer: the channel it was posted in and
// the message carrying its buttons.
type OfferKey struct {
	ChannelID string
	MessageID string
}

// TradeOffer is a pending trade: the proposer offers every spell in Give
// and asks for every spell in Receive. Both lists are sorted and may
// hold duplicates, meaning that many copies. An offer is immutable once
// created and is deleted on accept, abort, or expiry, whichever comes
// first.
type TradeOffer struct {
	ChannelID string
	MessageID string
	UserID    string
	Give      []int
	Receive   []int
	ExpiresAt time.Time
}

func (o *TradeOffer) Key() OfferKey {
	return OfferKey{ChannelID: o.ChannelID, MessageID: o.MessageID}
}

func (o *TradeOffer) Clone() *TradeOffer {
	out := *o
	out.Give = append([]int(nil), o.Give...)
	out.Receive = append([]int(nil), o.Receive...)
	return &out
}
