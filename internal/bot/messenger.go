// Package bot wires the game to the Discord gateway: a dispatch server,
// the shop and trade schedulers, and the foreground command handlers.
package bot

import (
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"grimoire/internal/game"
)

// Messenger is the slice of the Discord session the handlers use.
// *discordgo.Session satisfies it; tests substitute a fake.
type Messenger interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponse(interaction *discordgo.Interaction, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Embed colors, matching the palette of the rendered messages.
const (
	colorGold   = 0xF1C40F
	colorRed    = 0xED4245
	colorGreen  = 0x57F287
	colorBlue   = 0x3498DB
	colorPurple = 0x9B59B6
)

func interactionUserID(ic *discordgo.InteractionCreate) string {
	if ic.Member != nil && ic.Member.User != nil {
		return ic.Member.User.ID
	}
	if ic.User != nil {
		return ic.User.ID
	}
	return ""
}

func reply(m Messenger, ic *discordgo.InteractionCreate, content string) error {
	return m.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
}

func replyEphemeral(m Messenger, ic *discordgo.InteractionCreate, content string) error {
	return m.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

func replyEmbed(m Messenger, ic *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) error {
	return m.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	})
}

// replyUnknownSpell tells the user a spell name did not resolve,
// offering the closest catalog match when there is one.
func replyUnknownSpell(m Messenger, ic *discordgo.InteractionCreate, catalog *game.Catalog, name string) error {
	content := fmt.Sprintf("The spell \"**%s**\" is unknown to me.", name)
	if suggestion := catalog.Suggest(name); suggestion != "" {
		content += fmt.Sprintf(" Perhaps you mean **%s**?", suggestion)
	}
	return replyEphemeral(m, ic, content)
}

// updateMessage rewrites the interaction's own message, clearing its
// components.
func updateMessage(m Messenger, ic *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) error {
	return m.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: []discordgo.MessageComponent{},
		},
	})
}

func isTextChannel(ch *discordgo.Channel) bool {
	if ch == nil {
		return false
	}
	switch ch.Type {
	case discordgo.ChannelTypeGuildText,
		discordgo.ChannelTypeDM,
		discordgo.ChannelTypeGroupDM,
		discordgo.ChannelTypeGuildNews,
		discordgo.ChannelTypeGuildNewsThread,
		discordgo.ChannelTypeGuildPublicThread,
		discordgo.ChannelTypeGuildPrivateThread:
		return true
	}
	return false
}

// isErrCode reports whether err is a Discord REST error with the given
// API error code (e.g. unknown channel). These are the structural
// failures the schedulers treat as "the entity is gone" rather than
// transient.
func isErrCode(err error, code int) bool {
	var rerr *discordgo.RESTError
	if errors.As(err, &rerr) && rerr.Message != nil {
		return rerr.Message.Code == code
	}
	return false
}

func isUnknownChannel(err error) bool {
	return isErrCode(err, discordgo.ErrCodeUnknownChannel)
}

func isUnknownMessage(err error) bool {
	return isErrCode(err, discordgo.ErrCodeUnknownMessage)
}

func embedTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
