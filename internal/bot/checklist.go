package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"grimoire/internal/game"
	"grimoire/internal/store"
)

// ChecklistHandler shows which spells of a book the invoker still lacks.
// The book select menu carries "userID bookIndex" in its option values so
// a later click can re-render for the same mage.
type ChecklistHandler struct {
	msg     Messenger
	store   store.Store
	catalog *game.Catalog
}

func NewChecklistHandler(msg Messenger, st store.Store, catalog *game.Catalog) *ChecklistHandler {
	return &ChecklistHandler{msg: msg, store: st, catalog: catalog}
}

func (h *ChecklistHandler) Setup(ctx context.Context) error { return nil }

func (h *ChecklistHandler) Dispose() {}

func (h *ChecklistHandler) Handle(ctx context.Context, ic *discordgo.InteractionCreate) (bool, error) {
	switch {
	case isCommand(ic, cmdChecklist):
		return true, h.execute(ctx, ic)
	case isComponent(ic, checklistMenuID):
		return true, h.selectBook(ctx, ic)
	}
	return false, nil
}

func (h *ChecklistHandler) execute(ctx context.Context, ic *discordgo.InteractionCreate) error {
	embed, components, err := h.buildReply(ctx, interactionUserID(ic), 0)
	if err != nil {
		return err
	}
	return h.msg.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: components,
		},
	})
}

func (h *ChecklistHandler) selectBook(ctx context.Context, ic *discordgo.InteractionCreate) error {
	parts := strings.Fields(ic.MessageComponentData().Values[0])
	if len(parts) != 2 {
		return fmt.Errorf("malformed checklist value %q", ic.MessageComponentData().Values[0])
	}
	bookIndex, err := strconv.Atoi(parts[1])
	if err != nil || bookIndex < 0 || bookIndex >= len(h.catalog.Books()) {
		return fmt.Errorf("malformed checklist book index %q", parts[1])
	}

	embed, components, err := h.buildReply(ctx, parts[0], bookIndex)
	if err != nil {
		return err
	}
	return h.msg.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: components,
		},
	})
}

func (h *ChecklistHandler) buildReply(ctx context.Context, userID string, bookIndex int) (*discordgo.MessageEmbed, []discordgo.MessageComponent, error) {
	user, err := h.store.Users().Get(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	book := h.catalog.Books()[bookIndex]
	embed := &discordgo.MessageEmbed{
		Color: colorBlue,
		Title: book.Icon + " " + book.Name,
	}

	unknown := 0
	levels := []struct {
		name     string
		from, to int
	}{
		{"Level 1", 0, 5},
		{"Level 2", 5, 10},
		{"Level 3", 10, 12},
	}
	for _, lv := range levels {
		var lines []string
		for j := lv.from; j < lv.to; j++ {
			id := bookIndex*game.SpellsPerBook + j
			name := h.catalog.SpellName(id)
			if user.Spells.Amount(id) > 0 {
				lines = append(lines, "~~"+name+"~~")
			} else {
				lines = append(lines, name)
				unknown++
			}
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   lv.name,
			Value:  strings.Join(lines, "\n"),
			Inline: true,
		})
	}

	embed.Description = progressLabel(unknown)

	options := make([]discordgo.SelectMenuOption, 0, len(h.catalog.Books()))
	for i, b := range h.catalog.Books() {
		options = append(options, discordgo.SelectMenuOption{
			Label:       b.Name,
			Description: progressLabel(h.unknownCount(user, i)),
			Value:       fmt.Sprintf("%s %d", userID, i),
			Emoji:       &discordgo.ComponentEmoji{Name: b.Icon},
			Default:     i == bookIndex,
		})
	}
	components := []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.SelectMenu{
					MenuType: discordgo.StringSelectMenu,
					CustomID: checklistMenuID,
					Options:  options,
				},
			},
		},
	}
	return embed, components, nil
}

func (h *ChecklistHandler) unknownCount(user *game.User, bookIndex int) int {
	unknown := 0
	for j := 0; j < game.SpellsPerBook; j++ {
		if user.Spells.Amount(bookIndex*game.SpellsPerBook+j) < 1 {
			unknown++
		}
	}
	return unknown
}

func progressLabel(unknown int) string {
	if unknown == 0 {
		return "Complete!"
	}
	return fmt.Sprintf("%d unknown spells", unknown)
}
