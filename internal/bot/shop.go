package bot

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"grimoire/internal/game"
	"grimoire/internal/store"
	"grimoire/internal/task"
)

const (
	gachaLevel2Price = 3
	gachaLevel3Price = 5
)

const shopTimeLayout = "3:04 pm -0700"

// ShopHandler runs one recurring restock loop per channel that has an
// open shop. Each loop owns a cancellation token; open, close, and
// shutdown cancel it. Loop bodies and foreground commands all run under
// the process lock, so conflicting mutations of one shop are serialized.
type ShopHandler struct {
	msg     Messenger
	store   store.Store
	catalog *game.Catalog
	lock    *task.Lock
	rng     *rand.Rand
	log     *slog.Logger

	restockEvery time.Duration
	retryBackoff time.Duration
	now          func() time.Time

	mu    sync.Mutex
	tasks map[string]*task.Token

	ctx context.Context
}

// NewShopHandler builds the scheduler. rng must only be touched while
// holding lock; both the restock body and the buy path satisfy that.
func NewShopHandler(msg Messenger, st store.Store, catalog *game.Catalog, lock *task.Lock, rng *rand.Rand, logger *slog.Logger, restockEvery, retryBackoff time.Duration) *ShopHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ShopHandler{
		msg:          msg,
		store:        st,
		catalog:      catalog,
		lock:         lock,
		rng:          rng,
		log:          logger,
		restockEvery: restockEvery,
		retryBackoff: retryBackoff,
		now:          time.Now,
		tasks:        make(map[string]*task.Token),
		ctx:          context.Background(),
	}
}

// Setup re-arms a restock loop for every persisted shop. Stored
// deadlines may be in the past, in which case the loop catches up with
// an immediate restock.
func (h *ShopHandler) Setup(ctx context.Context) error {
	h.ctx = ctx
	shops, err := h.store.Shops().GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load shops: %w", err)
	}
	for _, shop := range shops {
		tok := h.createTask(shop.ChannelID)
		go h.update(shop.ChannelID, shop.UpdatesAt, tok)
	}
	return nil
}

func (h *ShopHandler) Dispose() {
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

// OpenShops reports how many restock loops are live.
func (h *ShopHandler) OpenShops() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.tasks)
}

func (h *ShopHandler) Handle(ctx context.Context, ic *discordgo.InteractionCreate) (bool, error) {
	switch {
	case isCommand(ic, cmdShop):
		data := ic.ApplicationCommandData()
		if len(data.Options) == 0 {
			return true, fmt.Errorf("shop: missing subcommand")
		}
		sub := data.Options[0]
		switch sub.Name {
		case "open":
			return true, h.open(ctx, ic, sub)
		case "close":
			return true, h.close(ctx, ic)
		}
		return true, fmt.Errorf("shop: unknown subcommand %q", sub.Name)
	case isComponent(ic, shopBuyMenuID):
		return true, h.buy(ctx, ic)
	}
	return false, nil
}

func (h *ShopHandler) open(ctx context.Context, ic *discordgo.InteractionCreate, sub *discordgo.ApplicationCommandInteractionDataOption) error {
	var raw string
	for _, opt := range sub.Options {
		if opt.Name == "time" {
			raw = opt.StringValue()
		}
	}
	clock, err := time.Parse(shopTimeLayout, strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return replyEphemeral(h.msg, ic, "That moment in time eludes me.")
	}
	updatesAt := nextOccurrence(clock, h.now(), h.restockEvery)

	// Cancel-then-spawn: the old loop for this key is gone before the
	// new token is visible, so there is never more than one.
	h.getTask(ic.ChannelID).Cancel()
	tok := h.createTask(ic.ChannelID)

	shop, err := h.store.Shops().Get(ctx, ic.ChannelID)
	if err != nil {
		return err
	}
	if shop == nil {
		shop = &game.Shop{ChannelID: ic.ChannelID}
	}
	shop.UpdatesAt = updatesAt
	if err := h.store.Shops().Upsert(ctx, shop); err != nil {
		return err
	}

	if err := replyEphemeral(h.msg, ic, "I will prepare my wares."); err != nil {
		h.log.Error("shop open reply failed", "channel_id", ic.ChannelID, "err", err)
	}
	go h.update(ic.ChannelID, updatesAt, tok)
	return nil
}

func (h *ShopHandler) close(ctx context.Context, ic *discordgo.InteractionCreate) error {
	tok := h.getTask(ic.ChannelID)
	if tok.IsCancelled() {
		return replyEphemeral(h.msg, ic, "One cannot close that which is not open.")
	}
	tok.Cancel()

	shop, err := h.store.Shops().Get(ctx, ic.ChannelID)
	if err != nil {
		return err
	}
	if shop == nil {
		return replyEphemeral(h.msg, ic, "One cannot close that which is not open.")
	}

	if err := h.expireMessage(shop.ChannelID, shop.MessageID); err != nil {
		h.log.Error("expire storefront failed", "channel_id", shop.ChannelID, "err", err)
	}
	if err := h.store.Shops().Delete(ctx, ic.ChannelID); err != nil {
		return err
	}
	return replyEphemeral(h.msg, ic, "See you next time!")
}

func (h *ShopHandler) buy(ctx context.Context, ic *discordgo.InteractionCreate) error {
	tok := h.getTask(ic.ChannelID)
	if tok.IsCancelled() {
		return replyEphemeral(h.msg, ic, "I must apologize, for my wares are unavailable.")
	}

	shop, err := h.store.Shops().Get(ctx, ic.ChannelID)
	if err != nil {
		return err
	}
	if shop == nil {
		return replyEphemeral(h.msg, ic, "I must apologize, for my wares are unavailable.")
	}

	user, err := h.store.Users().Get(ctx, interactionUserID(ic))
	if err != nil {
		return err
	}

	values := ic.MessageComponentData().Values
	if len(values) == 0 {
		return fmt.Errorf("shop buy: empty selection")
	}

	var spellID, price int
	switch values[0] {
	case gachaLevel2Value:
		spellID = h.catalog.RandomSpellID(h.rng, 2)
		price = gachaLevel2Price
	case gachaLevel3Value:
		spellID = h.catalog.RandomSpellID(h.rng, 3)
		price = gachaLevel3Price
	default:
		spellID, err = strconv.Atoi(values[0])
		if err != nil {
			return fmt.Errorf("shop buy: bad selection %q", values[0])
		}
		price = h.catalog.SpellPrice(spellID)
		if err := shop.Spells.Remove(spellID, 1); err != nil {
			if rerr := replyEphemeral(h.msg, ic, "I cannot sell that which I do not possess."); rerr != nil {
				return rerr
			}
			return h.render(shop)
		}
	}

	if err := user.SpendScrolls(price); err != nil {
		return replyEphemeral(h.msg, ic, "The price of this item is beyond your reach.")
	}
	user.Spells.Add(spellID, 1)

	err = h.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.Users().Upsert(ctx, user); err != nil {
			return err
		}
		return tx.Shops().Upsert(ctx, shop)
	})
	if err != nil {
		return err
	}

	embed := &discordgo.MessageEmbed{
		Color:       colorBlue,
		Description: fmt.Sprintf(":scroll: ×%d ⟹ **%s** ×1", price, h.catalog.SpellName(spellID)),
	}
	if err := replyEmbed(h.msg, ic, embed); err != nil {
		h.log.Error("purchase reply failed", "channel_id", ic.ChannelID, "err", err)
	}
	return h.render(shop)
}

// update is the per-channel restock loop. It terminates on token cancel
// or when the channel or the shop aggregate is gone for good; transient
// failures are retried after a fixed backoff without losing the timer.
func (h *ShopHandler) update(channelID string, updatesAt time.Time, tok *task.Token) {
	ctx := h.ctx
	for {
		if err := task.SleepUntil(ctx, updatesAt, tok); err != nil {
			return
		}
		if err := h.lock.Acquire(ctx); err != nil {
			return
		}
		stop, next, err := h.restock(ctx, channelID, updatesAt, tok)
		h.lock.Release()

		if stop {
			return
		}
		if err != nil {
			h.log.Error("shop restock failed", "channel_id", channelID, "err", err)
			if serr := task.SleepFor(ctx, h.retryBackoff, tok); serr != nil {
				return
			}
			if tok.IsCancelled() {
				return
			}
			continue
		}
		updatesAt = next
	}
}

func (h *ShopHandler) restock(ctx context.Context, channelID string, updatesAt time.Time, tok *task.Token) (stop bool, next time.Time, err error) {
	if tok.IsCancelled() {
		return true, next, nil
	}

	channel, err := h.msg.Channel(channelID)
	if err != nil && !isUnknownChannel(err) {
		return false, next, fmt.Errorf("fetch channel: %w", err)
	}
	if err != nil || !isTextChannel(channel) {
		// The channel is gone for good; drop the orphaned shop.
		tok.Cancel()
		if derr := h.store.Shops().Delete(ctx, channelID); derr != nil {
			h.log.Error("delete orphaned shop failed", "channel_id", channelID, "err", derr)
		}
		h.log.Warn("deleted shop for invalid channel", "channel_id", channelID)
		return true, next, nil
	}

	shop, err := h.store.Shops().Get(ctx, channelID)
	if err != nil {
		return false, next, err
	}
	if shop == nil {
		tok.Cancel()
		h.log.Warn("cancelled restock loop, shop aggregate missing", "channel_id", channelID)
		return true, next, nil
	}

	if err := h.expireMessage(channelID, shop.MessageID); err != nil {
		return false, next, err
	}

	msg, err := h.msg.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{Content: "I bring wares!"})
	if err != nil {
		return false, next, err
	}

	next = updatesAt
	now := h.now()
	for !next.After(now) {
		next = next.Add(h.restockEvery)
	}

	shop.MessageID = msg.ID
	shop.UpdatesAt = next
	shop.Spells = h.catalog.RollStock(h.rng)
	if err := h.store.Shops().Upsert(ctx, shop); err != nil {
		return false, next, err
	}
	if err := h.render(shop); err != nil {
		return false, next, err
	}
	return false, next, nil
}

// expireMessage repaints an old storefront message as closed and strips
// its menu. A message already deleted by someone else is not an error.
func (h *ShopHandler) expireMessage(channelID, messageID string) error {
	if messageID == "" {
		return nil
	}
	msg, err := h.msg.ChannelMessage(channelID, messageID)
	if err != nil {
		if isUnknownMessage(err) {
			return nil
		}
		return err
	}
	if len(msg.Embeds) == 0 {
		return nil
	}

	embed := msg.Embeds[0]
	embed.Color = colorRed
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "Closed"}
	embed.Timestamp = embedTimestamp(h.now())

	embeds := []*discordgo.MessageEmbed{embed}
	components := []discordgo.MessageComponent{}
	_, err = h.msg.ChannelMessageEditComplex(&discordgo.MessageEdit{
		Channel:    channelID,
		ID:         messageID,
		Embeds:     &embeds,
		Components: &components,
	})
	return err
}

func (h *ShopHandler) render(shop *game.Shop) error {
	if shop.MessageID == "" {
		return nil
	}
	embeds := []*discordgo.MessageEmbed{h.buildEmbed(shop)}
	components := h.buildComponents(shop)
	_, err := h.msg.ChannelMessageEditComplex(&discordgo.MessageEdit{
		Channel:    shop.ChannelID,
		ID:         shop.MessageID,
		Embeds:     &embeds,
		Components: &components,
	})
	return err
}

func (h *ShopHandler) buildEmbed(shop *game.Shop) *discordgo.MessageEmbed {
	table := newTableBuilder(
		[]string{"Qty", "Spell", "📜"},
		[]tableAlign{alignRight, alignLeft, alignRight},
	)
	table.addRow("∞", "Random level 2", strconv.Itoa(gachaLevel2Price))
	table.addRow("∞", "Random level 3", strconv.Itoa(gachaLevel3Price))
	for _, stack := range shop.Spells {
		table.addRow(
			strconv.Itoa(stack.Amount),
			h.catalog.SpellName(stack.ID),
			strconv.Itoa(h.catalog.SpellPrice(stack.ID)),
		)
	}

	return &discordgo.MessageEmbed{
		Color:       colorGold,
		Title:       "Shop",
		Description: "```" + table.build() + "```",
		Footer:      &discordgo.MessageEmbedFooter{Text: "Closes in 24 hours"},
	}
}

func (h *ShopHandler) buildComponents(shop *game.Shop) []discordgo.MessageComponent {
	options := []discordgo.SelectMenuOption{
		{Label: "Random level 2", Value: gachaLevel2Value},
		{Label: "Random level 3", Value: gachaLevel3Value},
	}
	for _, stack := range shop.Spells {
		if stack.Amount <= 0 {
			continue
		}
		options = append(options, discordgo.SelectMenuOption{
			Label: h.catalog.SpellName(stack.ID),
			Value: strconv.Itoa(stack.ID),
		})
	}

	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.SelectMenu{
					MenuType:    discordgo.StringSelectMenu,
					CustomID:    shopBuyMenuID,
					Placeholder: "What does your heart desire?",
					Options:     options,
				},
			},
		},
	}
}

func (h *ShopHandler) createTask(channelID string) *task.Token {
	tok := task.NewToken()
	h.mu.Lock()
	h.tasks[channelID] = tok
	h.mu.Unlock()

	tok.OnCancel(func() {
		h.mu.Lock()
		if h.tasks[channelID] == tok {
			delete(h.tasks, channelID)
		}
		h.mu.Unlock()
	})
	return tok
}

func (h *ShopHandler) getTask(channelID string) *task.Token {
	h.mu.Lock()
	defer h.mu.Unlock()
	if tok, ok := h.tasks[channelID]; ok {
		return tok
	}
	return task.Cancelled()
}

// nextOccurrence projects clock's time of day (in clock's zone) onto the
// next strictly future occurrence after now.
func nextOccurrence(clock, now time.Time, step time.Duration) time.Time {
	loc := clock.Location()
	local := now.In(loc)
	t := time.Date(local.Year(), local.Month(), local.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)
	for !t.After(now) {
		t = t.Add(step)
	}
	return t
}
