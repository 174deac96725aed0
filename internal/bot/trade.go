package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"grimoire/internal/game"
	"grimoire/internal/store"
	"grimoire/internal/task"
)

// TradeHandler runs one expiry waiter per pending offer. Accept, abort,
// and the waiter race to resolve an offer; whichever cancels the token
// first wins, and the losers find the offer gone and report "sealed".
type TradeHandler struct {
	msg     Messenger
	store   store.Store
	catalog *game.Catalog
	lock    *task.Lock
	log     *slog.Logger

	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	tasks map[game.OfferKey]*task.Token

	ctx context.Context
}

func NewTradeHandler(msg Messenger, st store.Store, catalog *game.Catalog, lock *task.Lock, logger *slog.Logger, ttl time.Duration) *TradeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TradeHandler{
		msg:     msg,
		store:   st,
		catalog: catalog,
		lock:    lock,
		log:     logger,
		ttl:     ttl,
		now:     time.Now,
		tasks:   make(map[game.OfferKey]*task.Token),
		ctx:     context.Background(),
	}
}

// Setup re-arms an expiry waiter for every persisted offer. Deadlines
// already in the past expire immediately.
func (h *TradeHandler) Setup(ctx context.Context) error {
	h.ctx = ctx
	offers, err := h.store.TradeOffers().GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load trade offers: %w", err)
	}
	for _, offer := range offers {
		tok := h.createTask(offer.Key())
		go h.expire(offer.Key(), offer.ExpiresAt, tok)
	}
	return nil
}

func (h *TradeHandler) Dispose() {
	h.mu.Lock()
	toks := make([]*task.Token, 0, len(h.tasks))
	for _, tok := range h.tasks {
		toks = append(toks, tok)
	}
	h.mu.Unlock()

	for _, tok := range toks {
		tok.Cancel()
	}
}

// PendingOffers reports how many expiry waiters are live.
func (h *TradeHandler) PendingOffers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.tasks)
}

func (h *TradeHandler) Handle(ctx context.Context, ic *discordgo.InteractionCreate) (bool, error) {
	switch {
	case isCommand(ic, cmdTrade):
		return true, h.execute(ctx, ic)
	case isComponent(ic, tradeAcceptID):
		return true, h.accept(ctx, ic)
	case isComponent(ic, tradeAbortID):
		return true, h.abort(ctx, ic)
	}
	return false, nil
}

func (h *TradeHandler) execute(ctx context.Context, ic *discordgo.InteractionCreate) error {
	opts := commandOptions(ic)
	give, err := h.parse(opts["give"].StringValue())
	if err == nil {
		var receive []int
		receive, err = h.parse(opts["receive"].StringValue())
		if err == nil {
			return h.createOffer(ctx, ic, give, receive)
		}
	}

	var unknown *unknownSpellError
	if !errors.As(err, &unknown) {
		return err
	}
	return replyUnknownSpell(h.msg, ic, h.catalog, unknown.name)
}

func (h *TradeHandler) createOffer(ctx context.Context, ic *discordgo.InteractionCreate, give, receive []int) error {
	embed := h.buildOfferEmbed(interactionDisplayName(ic), give, receive)
	err := h.msg.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: offerButtons(),
		},
	})
	if err != nil {
		return fmt.Errorf("render offer: %w", err)
	}
	msg, err := h.msg.InteractionResponse(ic.Interaction)
	if err != nil {
		return fmt.Errorf("fetch offer message: %w", err)
	}

	offer := &game.TradeOffer{
		ChannelID: ic.ChannelID,
		MessageID: msg.ID,
		UserID:    interactionUserID(ic),
		Give:      give,
		Receive:   receive,
		ExpiresAt: h.now().Add(h.ttl),
	}
	if err := h.store.TradeOffers().Create(ctx, offer); err != nil {
		return err
	}

	tok := h.createTask(offer.Key())
	go h.expire(offer.Key(), offer.ExpiresAt, tok)
	return nil
}

func (h *TradeHandler) accept(ctx context.Context, ic *discordgo.InteractionCreate) error {
	offer, err := h.store.TradeOffers().Get(ctx, ic.ChannelID, ic.Message.ID)
	if err != nil {
		return err
	}
	if offer == nil {
		// Lost the race against abort or expiry.
		return replyEphemeral(h.msg, ic, "Fate has already been sealed.")
	}

	uid := interactionUserID(ic)
	if uid == offer.UserID {
		return replyEphemeral(h.msg, ic, "One may not accept their own offer.")
	}

	giver, err := h.store.Users().Get(ctx, offer.UserID)
	if err != nil {
		return err
	}
	receiver, err := h.store.Users().Get(ctx, uid)
	if err != nil {
		return err
	}

	if err := transferAll(offer, giver, receiver); err != nil {
		var bad *transferError
		if !errors.As(err, &bad) {
			return err
		}
		name := bad.userID
		if u, uerr := h.msg.User(bad.userID); uerr == nil {
			name = displayName(u)
		}
		return replyEphemeral(h.msg, ic, fmt.Sprintf(
			"%s is unable to bestow the knowledge of **%s** upon you.",
			name, h.catalog.SpellName(bad.spellID),
		))
	}

	h.getTask(offer.Key()).Cancel()

	err = h.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.Users().Upsert(ctx, giver); err != nil {
			return err
		}
		return tx.Users().Upsert(ctx, receiver)
	})
	if err != nil {
		return err
	}

	embed := offerEmbedOf(ic)
	embed.Color = colorGreen
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "Accepted by " + interactionDisplayName(ic)}
	embed.Timestamp = embedTimestamp(h.now())
	if err := updateMessage(h.msg, ic, embed); err != nil {
		h.log.Error("render accepted offer failed", "channel_id", ic.ChannelID, "err", err)
	}

	return h.store.TradeOffers().Delete(ctx, offer.ChannelID, offer.MessageID)
}

func (h *TradeHandler) abort(ctx context.Context, ic *discordgo.InteractionCreate) error {
	offer, err := h.store.TradeOffers().Get(ctx, ic.ChannelID, ic.Message.ID)
	if err != nil {
		return err
	}
	if offer == nil {
		return replyEphemeral(h.msg, ic, "Fate has already been sealed.")
	}

	if interactionUserID(ic) != offer.UserID {
		return replyEphemeral(h.msg, ic, "You lack the privilege to do so.")
	}

	h.getTask(offer.Key()).Cancel()

	embed := offerEmbedOf(ic)
	embed.Color = colorRed
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "Aborted"}
	embed.Timestamp = embedTimestamp(h.now())
	if err := updateMessage(h.msg, ic, embed); err != nil {
		h.log.Error("render aborted offer failed", "channel_id", ic.ChannelID, "err", err)
	}

	return h.store.TradeOffers().Delete(ctx, offer.ChannelID, offer.MessageID)
}

// expire is the per-offer waiter. Waking via the deadline means the
// waiter won the race and owns cleanup; waking via cancellation means
// accept or abort already did it.
func (h *TradeHandler) expire(key game.OfferKey, expiresAt time.Time, tok *task.Token) {
	ctx := h.ctx
	if err := task.SleepUntil(ctx, expiresAt, tok); err != nil {
		return
	}
	if err := h.lock.Acquire(ctx); err != nil {
		return
	}
	defer h.lock.Release()

	if tok.IsCancelled() {
		return
	}
	tok.Cancel()

	if err := h.renderExpired(key); err != nil {
		h.log.Error("render expired offer failed", "channel_id", key.ChannelID, "message_id", key.MessageID, "err", err)
	}
	if err := h.store.TradeOffers().Delete(ctx, key.ChannelID, key.MessageID); err != nil {
		h.log.Error("delete expired offer failed", "channel_id", key.ChannelID, "message_id", key.MessageID, "err", err)
	}
}

func (h *TradeHandler) renderExpired(key game.OfferKey) error {
	msg, err := h.msg.ChannelMessage(key.ChannelID, key.MessageID)
	if err != nil {
		if isUnknownChannel(err) || isUnknownMessage(err) {
			return nil
		}
		return err
	}
	if len(msg.Embeds) == 0 {
		return nil
	}

	embed := msg.Embeds[0]
	embed.Color = colorRed
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "Expired"}
	embed.Timestamp = embedTimestamp(h.now())

	embeds := []*discordgo.MessageEmbed{embed}
	components := []discordgo.MessageComponent{}
	_, err = h.msg.ChannelMessageEditComplex(&discordgo.MessageEdit{
		Channel:    key.ChannelID,
		ID:         key.MessageID,
		Embeds:     &embeds,
		Components: &components,
	})
	return err
}

// parse resolves a comma-separated list of spell names, sorted by id.
// Duplicates are allowed and mean that many copies.
func (h *TradeHandler) parse(input string) ([]int, error) {
	var ids []int
	for _, name := range strings.Split(input, ",") {
		name = strings.TrimSpace(name)
		id, ok := h.catalog.SpellID(name)
		if !ok {
			return nil, &unknownSpellError{name: name}
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

func (h *TradeHandler) buildOfferEmbed(proposer string, give, receive []int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Color: colorGold,
		Title: "Trade Offer",
		Fields: []*discordgo.MessageEmbedField{
			{Name: proposer, Value: h.formatSpells(give), Inline: true},
			{Name: "⇄", Value: "​", Inline: true},
			{Name: "You", Value: h.formatSpells(receive), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "Expires in 1 hour"},
	}
}

func (h *TradeHandler) formatSpells(ids []int) string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = h.catalog.SpellName(id)
	}
	return strings.Join(names, "\n")
}

func offerButtons() []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					CustomID: tradeAcceptID,
					Label:    "Accept",
					Style:    discordgo.SuccessButton,
				},
				discordgo.Button{
					CustomID: tradeAbortID,
					Label:    "Abort",
					Style:    discordgo.DangerButton,
				},
			},
		},
	}
}

func offerEmbedOf(ic *discordgo.InteractionCreate) *discordgo.MessageEmbed {
	if ic.Message != nil && len(ic.Message.Embeds) > 0 {
		return ic.Message.Embeds[0]
	}
	return &discordgo.MessageEmbed{Title: "Trade Offer"}
}

func (h *TradeHandler) createTask(key game.OfferKey) *task.Token {
	tok := task.NewToken()
	h.mu.Lock()
	h.tasks[key] = tok
	h.mu.Unlock()

	tok.OnCancel(func() {
		h.mu.Lock()
		if h.tasks[key] == tok {
			delete(h.tasks, key)
		}
		h.mu.Unlock()
	})
	return tok
}

func (h *TradeHandler) getTask(key game.OfferKey) *task.Token {
	h.mu.Lock()
	defer h.mu.Unlock()
	if tok, ok := h.tasks[key]; ok {
		return tok
	}
	return task.Cancelled()
}

// transferAll moves every offered spell from giver to receiver and
// every requested spell back. Any single failure aborts the whole batch
// with both aggregates' persisted state untouched; the in-memory copies
// are discarded by the caller.
func transferAll(offer *game.TradeOffer, giver, receiver *game.User) error {
	for _, id := range offer.Give {
		if err := transferSpell(id, giver, receiver); err != nil {
			return err
		}
	}
	for _, id := range offer.Receive {
		if err := transferSpell(id, receiver, giver); err != nil {
			return err
		}
	}
	return nil
}

func transferSpell(id int, from, to *game.User) error {
	if err := from.Spells.Remove(id, 1); err != nil {
		return &transferError{userID: from.ID, spellID: id}
	}
	to.Spells.Add(id, 1)
	return nil
}

type unknownSpellError struct {
	name string
}

func (e *unknownSpellError) Error() string {
	return fmt.Sprintf("unknown spell %q", e.name)
}

type transferError struct {
	userID  string
	spellID int
}

func (e *transferError) Error() string {
	return fmt.Sprintf("user %q cannot transfer spell %d", e.userID, e.spellID)
}

func interactionDisplayName(ic *discordgo.InteractionCreate) string {
	if ic.Member != nil {
		if ic.Member.Nick != "" {
			return ic.Member.Nick
		}
		if ic.Member.User != nil {
			return displayName(ic.Member.User)
		}
	}
	if ic.User != nil {
		return displayName(ic.User)
	}
	return "Unknown mage"
}

func displayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}
