package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"grimoire/internal/game"
	"grimoire/internal/store"
)

// GrimoireHandler renders a mage's known spells, grouped by book.
type GrimoireHandler struct {
	msg     Messenger
	store   store.Store
	catalog *game.Catalog
}

func NewGrimoireHandler(msg Messenger, st store.Store, catalog *game.Catalog) *GrimoireHandler {
	return &GrimoireHandler{msg: msg, store: st, catalog: catalog}
}

func (h *GrimoireHandler) Setup(ctx context.Context) error { return nil }

func (h *GrimoireHandler) Dispose() {}

func (h *GrimoireHandler) Handle(ctx context.Context, ic *discordgo.InteractionCreate) (bool, error) {
	if !isCommand(ic, cmdGrimoire) {
		return false, nil
	}
	return true, h.execute(ctx, ic)
}

func (h *GrimoireHandler) execute(ctx context.Context, ic *discordgo.InteractionCreate) error {
	targetID := interactionUserID(ic)
	if opt, ok := commandOptions(ic)["mage"]; ok {
		targetID = opt.UserValue(nil).ID
	}

	target, err := h.msg.User(targetID)
	if err != nil {
		return fmt.Errorf("resolve mage %s: %w", targetID, err)
	}
	user, err := h.store.Users().Get(ctx, targetID)
	if err != nil {
		return err
	}

	embed := &discordgo.MessageEmbed{
		Color: colorPurple,
		Author: &discordgo.MessageEmbedAuthor{
			Name:    displayName(target),
			IconURL: target.AvatarURL(""),
		},
		Footer: &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("📜 ×%d", user.Scrolls)},
	}

	for i, book := range h.catalog.Books() {
		var lines []string
		for j := 0; j < game.SpellsPerBook; j++ {
			id := i*game.SpellsPerBook + j
			if amount := user.Spells.Amount(id); amount > 0 {
				lines = append(lines, fmt.Sprintf("%s ×%d", h.catalog.SpellName(id), amount))
			}
		}
		if len(lines) == 0 {
			continue
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   book.Icon + " " + book.Name,
			Value:  strings.Join(lines, "\n"),
			Inline: true,
		})
	}

	if len(embed.Fields) == 0 {
		embed.Description = "This mage knows no spells."
	}
	return replyEmbed(h.msg, ic, embed)
}
