package bot

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
)

// fakeMessenger is an in-memory Messenger. Channels exist by default as
// guild text channels; per-channel errors simulate deleted channels.
type fakeMessenger struct {
	mu           sync.Mutex
	channels     map[string]*discordgo.Channel
	channelErr   map[string]error
	messages     map[string]map[string]*discordgo.Message
	users        map[string]*discordgo.User
	responses    []*discordgo.InteractionResponse
	responseMsgs map[string]*discordgo.Message
	nextID       int
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		channels:     make(map[string]*discordgo.Channel),
		channelErr:   make(map[string]error),
		messages:     make(map[string]map[string]*discordgo.Message),
		users:        make(map[string]*discordgo.User),
		responseMsgs: make(map[string]*discordgo.Message),
	}
}

func restErr(code int) error {
	return &discordgo.RESTError{Message: &discordgo.APIErrorMessage{Code: code}}
}

func (f *fakeMessenger) Channel(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.channelErr[channelID]; err != nil {
		return nil, err
	}
	if ch, ok := f.channels[channelID]; ok {
		return ch, nil
	}
	return &discordgo.Channel{ID: channelID, Type: discordgo.ChannelTypeGuildText}, nil
}

func (f *fakeMessenger) ChannelMessage(channelID, messageID string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := f.messages[channelID][messageID]; ok {
		return msg, nil
	}
	return nil, restErr(discordgo.ErrCodeUnknownMessage)
}

func (f *fakeMessenger) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.storeMessage(channelID, &discordgo.Message{
		ChannelID:  channelID,
		Content:    data.Content,
		Embeds:     data.Embeds,
		Components: data.Components,
	}), nil
}

func (f *fakeMessenger) ChannelMessageEditComplex(m *discordgo.MessageEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[m.Channel][m.ID]
	if !ok {
		return nil, restErr(discordgo.ErrCodeUnknownMessage)
	}
	if m.Embeds != nil {
		msg.Embeds = *m.Embeds
	}
	if m.Components != nil {
		msg.Components = *m.Components
	}
	return msg, nil
}

func (f *fakeMessenger) User(userID string, _ ...discordgo.RequestOption) (*discordgo.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[userID]; ok {
		return u, nil
	}
	return &discordgo.User{ID: userID, Username: "mage-" + userID}, nil
}

func (f *fakeMessenger) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, resp)

	switch resp.Type {
	case discordgo.InteractionResponseChannelMessageWithSource:
		msg := &discordgo.Message{ChannelID: interaction.ChannelID}
		if resp.Data != nil {
			msg.Content = resp.Data.Content
			msg.Embeds = resp.Data.Embeds
			msg.Components = resp.Data.Components
		}
		f.responseMsgs[interaction.ID] = f.storeMessage(interaction.ChannelID, msg)
	case discordgo.InteractionResponseUpdateMessage:
		if interaction.Message == nil || resp.Data == nil {
			return nil
		}
		msg, ok := f.messages[interaction.ChannelID][interaction.Message.ID]
		if !ok {
			msg = interaction.Message
			if f.messages[interaction.ChannelID] == nil {
				f.messages[interaction.ChannelID] = make(map[string]*discordgo.Message)
			}
			f.messages[interaction.ChannelID][msg.ID] = msg
		}
		msg.Embeds = resp.Data.Embeds
		msg.Components = resp.Data.Components
	}
	return nil
}

func (f *fakeMessenger) InteractionResponse(interaction *discordgo.Interaction, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := f.responseMsgs[interaction.ID]; ok {
		return msg, nil
	}
	return nil, restErr(discordgo.ErrCodeUnknownMessage)
}

// storeMessage must be called with f.mu held.
func (f *fakeMessenger) storeMessage(channelID string, msg *discordgo.Message) *discordgo.Message {
	f.nextID++
	if msg.ID == "" {
		msg.ID = fmt.Sprintf("msg-%d", f.nextID)
	}
	if f.messages[channelID] == nil {
		f.messages[channelID] = make(map[string]*discordgo.Message)
	}
	f.messages[channelID][msg.ID] = msg
	return msg
}

func (f *fakeMessenger) message(channelID, messageID string) *discordgo.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[channelID][messageID]
}

func (f *fakeMessenger) lastResponse() *discordgo.InteractionResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.responses) == 0 {
		return nil
	}
	return f.responses[len(f.responses)-1]
}

func (f *fakeMessenger) lastContent() string {
	resp := f.lastResponse()
	if resp == nil || resp.Data == nil {
		return ""
	}
	return resp.Data.Content
}

func (f *fakeMessenger) lastEmbed() *discordgo.MessageEmbed {
	resp := f.lastResponse()
	if resp == nil || resp.Data == nil || len(resp.Data.Embeds) == 0 {
		return nil
	}
	return resp.Data.Embeds[0]
}

var interactionSeq atomic.Int64

func nextInteractionID() string {
	return fmt.Sprintf("ix-%d", interactionSeq.Add(1))
}

func commandInteraction(name, channelID, userID string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:        nextInteractionID(),
		Type:      discordgo.InteractionApplicationCommand,
		ChannelID: channelID,
		Member:    &discordgo.Member{User: &discordgo.User{ID: userID, Username: "mage-" + userID}},
		Data:      discordgo.ApplicationCommandInteractionData{Name: name, Options: opts},
	}}
}

func autocompleteInteraction(name, channelID, userID string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	ic := commandInteraction(name, channelID, userID, opts...)
	ic.Type = discordgo.InteractionApplicationCommandAutocomplete
	return ic
}

func componentInteraction(customID, channelID, userID string, msg *discordgo.Message, values ...string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:        nextInteractionID(),
		Type:      discordgo.InteractionMessageComponent,
		ChannelID: channelID,
		Member:    &discordgo.Member{User: &discordgo.User{ID: userID, Username: "mage-" + userID}},
		Message:   msg,
		Data:      discordgo.MessageComponentInteractionData{CustomID: customID, Values: values},
	}}
}

func stringOption(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Type:  discordgo.ApplicationCommandOptionString,
		Name:  name,
		Value: value,
	}
}

func userOption(name, userID string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Type:  discordgo.ApplicationCommandOptionUser,
		Name:  name,
		Value: userID,
	}
}

func subCommand(name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Type:    discordgo.ApplicationCommandOptionSubCommand,
		Name:    name,
		Options: opts,
	}
}
