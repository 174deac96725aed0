// Package game holds the domain model of the spell-collecting game:
// player and shop aggregates, trade offers, and the spell catalog.
package game

import "errors"

var (
	ErrInvalidDecrement    = errors.New("invalid decrement")
	ErrInsufficientScrolls = errors.New("insufficient scrolls")
)

// SpellStack is one inventory entry: a spell id and how many copies are
// held. Amounts are never negative.
type SpellStack struct {
	ID     int
	Amount int
}

// SpellSet is the inventory ledger shared by players and shops. Spell
// ids are unique within a set.
type SpellSet []SpellStack

// Add merges amount into the entry for id, inserting one if absent.
func (s *SpellSet) Add(id, amount int) {
	for i := range *s {
		if (*s)[i].ID == id {
			(*s)[i].Amount += amount
			return
		}
	}
	*s = append(*s, SpellStack{ID: id, Amount: amount})
}

// Remove subtracts amount from the entry for id. It fails without any
// effect if the entry is absent or holds fewer than amount copies. An
// entry that reaches zero is pruned; callers must not rely on its
// presence afterwards.
func (s *SpellSet) Remove(id, amount int) error {
	for i := range *s {
		if (*s)[i].ID != id {
			continue
		}
		if (*s)[i].Amount < amount {
			return ErrInvalidDecrement
		}
		(*s)[i].Amount -= amount
		if (*s)[i].Amount == 0 {
			*s = append((*s)[:i], (*s)[i+1:]...)
		}
		return nil
	}
	return ErrInvalidDecrement
}

// Amount reports how many copies of id the set holds.
func (s SpellSet) Amount(id int) int {
	for _, stack := range s {
		if stack.ID == id {
			return stack.Amount
		}
	}
	return 0
}

func (s SpellSet) Clone() SpellSet {
	if s == nil {
		return nil
	}
	out := make(SpellSet, len(s))
	copy(out, s)
	return out
}
