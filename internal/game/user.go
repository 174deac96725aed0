package game

import "time"

// User is a player's persisted aggregate: known spells, scroll balance,
// and the last daily claim. Users are created lazily on first access and
// never deleted.
type User struct {
	ID          string
	Spells      SpellSet
	Scrolls     int
	LastDailyAt *time.Time
}

func NewUser(id string) *User {
	return &User{ID: id}
}

// SpendScrolls deducts cost from the balance, or fails without effect
// when the balance is too low.
func (u *User) SpendScrolls(cost int) error {
	if u.Scrolls < cost {
		return ErrInsufficientScrolls
	}
	u.Scrolls -= cost
	return nil
}

func (u *User) Clone() *User {
	out := *u
	out.Spells = u.Spells.Clone()
	if u.LastDailyAt != nil {
		at := *u.LastDailyAt
		out.LastDailyAt = &at
	}
	return &out
}
