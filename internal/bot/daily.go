package bot

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/bwmarrin/discordgo"

	"grimoire/internal/game"
	"grimoire/internal/store"
)

var dailyFlavors = []string{
	"The winds of fate carry **%s** to you.",
	"An old tome falls open on the page of **%s**.",
	"A wandering spirit whispers the secret of **%s**.",
	"The stars align and reveal **%s**.",
	"You dream of **%s** and wake up knowing it.",
}

// DailyHandler grants one random level-1 spell per cooldown window.
type DailyHandler struct {
	msg     Messenger
	store   store.Store
	catalog *game.Catalog
	rng     *rand.Rand

	cooldown time.Duration
	now      func() time.Time
}

func NewDailyHandler(msg Messenger, st store.Store, catalog *game.Catalog, rng *rand.Rand, cooldown time.Duration) *DailyHandler {
	return &DailyHandler{
		msg:      msg,
		store:    st,
		catalog:  catalog,
		rng:      rng,
		cooldown: cooldown,
		now:      time.Now,
	}
}

func (h *DailyHandler) Setup(ctx context.Context) error { return nil }

func (h *DailyHandler) Dispose() {}

func (h *DailyHandler) Handle(ctx context.Context, ic *discordgo.InteractionCreate) (bool, error) {
	if !isCommand(ic, cmdDaily) {
		return false, nil
	}
	return true, h.execute(ctx, ic)
}

func (h *DailyHandler) execute(ctx context.Context, ic *discordgo.InteractionCreate) error {
	user, err := h.store.Users().Get(ctx, interactionUserID(ic))
	if err != nil {
		return err
	}

	now := h.now()
	if user.LastDailyAt != nil {
		next := user.LastDailyAt.Add(h.cooldown)
		if now.Before(next) {
			return replyEphemeral(h.msg, ic, fmt.Sprintf("Try again <t:%d:R>.", next.Unix()))
		}
	}

	id := h.catalog.RandomSpellID(h.rng, 1)
	user.Spells.Add(id, 1)
	user.LastDailyAt = &now
	if err := h.store.Users().Upsert(ctx, user); err != nil {
		return err
	}

	flavor := dailyFlavors[h.rng.Intn(len(dailyFlavors))]
	return replyEmbed(h.msg, ic, &discordgo.MessageEmbed{
		Color:       colorBlue,
		Description: fmt.Sprintf(flavor, h.catalog.SpellName(id)),
	})
}
