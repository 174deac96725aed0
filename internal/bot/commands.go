package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Command and component names. Component custom ids are derived from the
// owning command so the dispatcher can route button and menu clicks.
const (
	cmdShop      = "shop"
	cmdTrade     = "trade"
	cmdMerge     = "merge"
	cmdGive      = "give"
	cmdDaily     = "daily"
	cmdGrimoire  = "grimoire"
	cmdChecklist = "checklist"

	shopBuyMenuID    = cmdShop + " buy"
	tradeAcceptID    = cmdTrade + ".accept"
	tradeAbortID     = cmdTrade + ".abort"
	checklistMenuID  = cmdChecklist
	gachaLevel2Value = "gacha-2"
	gachaLevel3Value = "gacha-3"
)

// Commands returns the application command set the bot serves.
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        cmdShop,
			Description: "Configures a shop in this channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "open",
					Description: "Sets the time for the shop to open",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "time",
							Description: `Time of day in the format "2:30 pm -0300"`,
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "close",
					Description: "Closes the shop",
				},
			},
		},
		{
			Name:        cmdTrade,
			Description: "Make a trade offer to other players",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "give",
					Description: "Comma-separated names of the offered spells",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "receive",
					Description: "Comma-separated names of the desired spells",
					Required:    true,
				},
			},
		},
		{
			Name:        cmdMerge,
			Description: "Convert two copies of a spell into scrolls",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "spell",
					Description:  "The name of a spell you want to merge",
					Required:     true,
					Autocomplete: true,
				},
			},
		},
		{
			Name:        cmdGive,
			Description: "Adds a spell to a mage's grimoire",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "mage",
					Description: "The mage to whom give the spell",
					Required:    true,
				},
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "spell",
					Description:  "The name of the spell to give",
					Required:     true,
					Autocomplete: true,
				},
			},
		},
		{
			Name:        cmdDaily,
			Description: "Claims your daily spell",
		},
		{
			Name:        cmdGrimoire,
			Description: "Shows all known spells of a mage",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "mage",
					Description: "The mage whose grimoire you want to see",
				},
			},
		},
		{
			Name:        cmdChecklist,
			Description: "Shows which spells you are missing",
		},
	}
}

// RegisterCommands bulk-overwrites the application's global commands.
func RegisterCommands(session *discordgo.Session, applicationID string) ([]*discordgo.ApplicationCommand, error) {
	registered, err := session.ApplicationCommandBulkOverwrite(applicationID, "", Commands())
	if err != nil {
		return nil, fmt.Errorf("overwrite commands: %w", err)
	}
	return registered, nil
}

func isCommand(ic *discordgo.InteractionCreate, name string) bool {
	return ic.Type == discordgo.InteractionApplicationCommand &&
		ic.ApplicationCommandData().Name == name
}

func isAutocomplete(ic *discordgo.InteractionCreate, name string) bool {
	return ic.Type == discordgo.InteractionApplicationCommandAutocomplete &&
		ic.ApplicationCommandData().Name == name
}

func isComponent(ic *discordgo.InteractionCreate, customID string) bool {
	return ic.Type == discordgo.InteractionMessageComponent &&
		ic.MessageComponentData().CustomID == customID
}

// Discord caps autocomplete responses at 25 choices.
const maxAutocompleteChoices = 25

func respondChoices(m Messenger, ic *discordgo.InteractionCreate, choices []*discordgo.ApplicationCommandOptionChoice) error {
	return m.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
}

func commandOptions(ic *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	out := make(map[string]*discordgo.ApplicationCommandInteractionDataOption)
	for _, opt := range ic.ApplicationCommandData().Options {
		out[opt.Name] = opt
	}
	return out
}
