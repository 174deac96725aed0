package game

import "time"

// Shop is a per-channel storefront aggregate. MessageID is the last
// rendered storefront message, empty until the first restock. UpdatesAt
// is the next restock deadline and the source of truth for re-arming the
// restock timer after a restart.
type Shop struct {
	ChannelID string
	MessageID string
	Spells    SpellSet
	UpdatesAt time.Time
}

func (s *Shop) Clone() *Shop {
	out := *s
	out.Spells = s.Spells.Clone()
	return &out
}
