package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"grimoire/internal/game"
	"grimoire/internal/store"
)

// MergeHandler converts two copies of a spell into scrolls.
type MergeHandler struct {
	msg     Messenger
	store   store.Store
	catalog *game.Catalog
}

func NewMergeHandler(msg Messenger, st store.Store, catalog *game.Catalog) *MergeHandler {
	return &MergeHandler{msg: msg, store: st, catalog: catalog}
}

func (h *MergeHandler) Setup(ctx context.Context) error { return nil }

func (h *MergeHandler) Dispose() {}

func (h *MergeHandler) Handle(ctx context.Context, ic *discordgo.InteractionCreate) (bool, error) {
	switch {
	case isCommand(ic, cmdMerge):
		return true, h.execute(ctx, ic)
	case isAutocomplete(ic, cmdMerge):
		return true, h.autocomplete(ctx, ic)
	}
	return false, nil
}

func (h *MergeHandler) execute(ctx context.Context, ic *discordgo.InteractionCreate) error {
	name := commandOptions(ic)["spell"].StringValue()
	id, ok := h.catalog.SpellID(name)
	if !ok {
		return replyUnknownSpell(h.msg, ic, h.catalog, name)
	}

	user, err := h.store.Users().Get(ctx, interactionUserID(ic))
	if err != nil {
		return err
	}
	if err := user.Spells.Remove(id, 2); err != nil {
		return replyEphemeral(h.msg, ic, fmt.Sprintf(
			"You must possess at least 2 **%s** to proceed.", h.catalog.SpellName(id),
		))
	}

	reward := h.catalog.MergeReward(id)
	user.Scrolls += reward
	if err := h.store.Users().Upsert(ctx, user); err != nil {
		return err
	}

	return replyEmbed(h.msg, ic, &discordgo.MessageEmbed{
		Color:       colorGold,
		Description: fmt.Sprintf("**%s** ×2 ⟹ :scroll: ×%d", h.catalog.SpellName(id), reward),
	})
}

// autocomplete offers the mergeable spells: everything the invoker owns
// at least two copies of.
func (h *MergeHandler) autocomplete(ctx context.Context, ic *discordgo.InteractionCreate) error {
	user, err := h.store.Users().Get(ctx, interactionUserID(ic))
	if err != nil {
		return err
	}

	input := strings.ToLower(commandOptions(ic)["spell"].StringValue())
	var choices []*discordgo.ApplicationCommandOptionChoice
	for id := 0; id < h.catalog.NumSpells(); id++ {
		if user.Spells.Amount(id) < 2 {
			continue
		}
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
