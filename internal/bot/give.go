package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"grimoire/internal/game"
	"grimoire/internal/store"
)

// GiveHandler adds a spell to another mage's grimoire.
type GiveHandler struct {
	msg     Messenger
	store   store.Store
	catalog *game.Catalog
}

func NewGiveHandler(msg Messenger, st store.Store, catalog *game.Catalog) *GiveHandler {
	return &GiveHandler{msg: msg, store: st, catalog: catalog}
}

func (h *GiveHandler) Setup(ctx context.Context) error { return nil }

func (h *GiveHandler) Dispose() {}

func (h *GiveHandler) Handle(ctx context.Context, ic *discordgo.InteractionCreate) (bool, error) {
	switch {
	case isCommand(ic, cmdGive):
		return true, h.execute(ctx, ic)
	case isAutocomplete(ic, cmdGive):
		return true, h.autocomplete(ctx, ic)
	}
	return false, nil
}

func (h *GiveHandler) execute(ctx context.Context, ic *discordgo.InteractionCreate) error {
	opts := commandOptions(ic)
	target := opts["mage"].UserValue(nil)

	name := opts["spell"].StringValue()
	id, ok := h.catalog.SpellID(name)
	if !ok {
		return replyUnknownSpell(h.msg, ic, h.catalog, name)
	}

	user, err := h.store.Users().Get(ctx, target.ID)
	if err != nil {
		return err
	}
	user.Spells.Add(id, 1)
	if err := h.store.Users().Upsert(ctx, user); err != nil {
		return err
	}

	return reply(h.msg, ic, fmt.Sprintf("**%s** was gifted to <@%s>.", h.catalog.SpellName(id), target.ID))
}

func (h *GiveHandler) autocomplete(ctx context.Context, ic *discordgo.InteractionCreate) error {
	input := strings.ToLower(commandOptions(ic)["spell"].StringValue())
	var choices []*discordgo.ApplicationCommandOptionChoice
	for id := 0; id < h.catalog.NumSpells(); id++ {
		name := h.catalog.SpellName(id)
		if !strings.HasPrefix(strings.ToLower(name), input) {
			continue
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: name, Value: name})
		if len(choices) == maxAutocompleteChoices {
			break
		}
	}
	return respondChoices(h.msg, ic, choices)
}
