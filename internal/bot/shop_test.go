package bot

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"grimoire/internal/game"
	"grimoire/internal/store"
	"grimoire/internal/task"
)

func newShopFixture(t *testing.T) (*ShopHandler, *fakeMessenger, *store.Memory) {
	t.Helper()
	fake := newFakeMessenger()
	mem := store.NewMemory()
	h := NewShopHandler(fake, mem, game.DefaultCatalog(), task.NewLock(), rand.New(rand.NewSource(1)), nil, 24*time.Hour, 5*time.Second)
	t.Cleanup(h.Dispose)
	return h, fake, mem
}

func TestNextOccurrence(t *testing.T) {
	clock, err := time.Parse(shopTimeLayout, "11:00 am +0000")
	if err != nil {
		t.Fatalf("parse clock: %v", err)
	}
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	got := nextOccurrence(clock, now, 24*time.Hour)
	want := time.Date(2026, 8, 29, 11, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("same-day occurrence = %v, want %v", got, want)
	}

	clock, err = time.Parse(shopTimeLayout, "9:00 am +0000")
	if err != nil {
		t.Fatalf("parse clock: %v", err)
	}
	got = nextOccurrence(clock, now, 24*time.Hour)
	want = time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("next-day occurrence = %v, want %v", got, want)
	}
}

func TestShopOpen(t *testing.T) {
	h, fake, mem := newShopFixture(t)
	ctx := context.Background()

	ic := commandInteraction(cmdShop, "c1", "alice", subCommand("open", stringOption("time", "2:30 pm -0300")))
	claimed, err := h.Handle(ctx, ic)
	if err != nil || !claimed {
		t.Fatalf("Handle = (%v, %v), want claimed without error", claimed, err)
	}

	if got := fake.lastContent(); got != "I will prepare my wares." {
		t.Fatalf("reply = %q", got)
	}
	if h.OpenShops() != 1 {
		t.Fatalf("OpenShops = %d, want 1", h.OpenShops())
	}

	shop, err := mem.Shops().Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get shop: %v", err)
	}
	if shop == nil {
		t.Fatal("shop not persisted")
	}
	if !shop.UpdatesAt.After(time.Now()) {
		t.Fatalf("UpdatesAt %v is not in the future", shop.UpdatesAt)
	}
}

func TestShopOpenBadTime(t *testing.T) {
	h, fake, _ := newShopFixture(t)

	ic := commandInteraction(cmdShop, "c1", "alice", subCommand("open", stringOption("time", "soonish")))
	if _, err := h.Handle(context.Background(), ic); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := fake.lastContent(); got != "That moment in time eludes me." {
		t.Fatalf("reply = %q", got)
	}
	if h.OpenShops() != 0 {
		t.Fatalf("OpenShops = %d, want 0", h.OpenShops())
	}
}

func TestShopCloseNotOpen(t *testing.T) {
	h, fake, _ := newShopFixture(t)

	ic := commandInteraction(cmdShop, "c1", "alice", subCommand("close"))
	if _, err := h.Handle(context.Background(), ic); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := fake.lastContent(); got != "One cannot close that which is not open." {
		t.Fatalf("reply = %q", got)
	}
}

func TestShopCloseCancelsAndDeletes(t *testing.T) {
	h, fake, mem := newShopFixture(t)
	ctx := context.Background()

	msg, _ := fake.ChannelMessageSendComplex("c1", &discordgo.MessageSend{
		Content: "I bring wares!",
		Embeds:  []*discordgo.MessageEmbed{{Title: "Shop"}},
	})
	shop := &game.Shop{ChannelID: "c1", MessageID: msg.ID, UpdatesAt: time.Now().Add(time.Hour)}
	if err := mem.Shops().Upsert(ctx, shop); err != nil {
		t.Fatalf("upsert shop: %v", err)
	}
	tok := h.createTask("c1")

	ic := commandInteraction(cmdShop, "c1", "alice", subCommand("close"))
	if _, err := h.Handle(ctx, ic); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if got := fake.lastContent(); got != "See you next time!" {
		t.Fatalf("reply = %q", got)
	}
	if !tok.IsCancelled() {
		t.Fatal("restock token not cancelled")
	}
	if stored, _ := mem.Shops().Get(ctx, "c1"); stored != nil {
		t.Fatal("shop aggregate not deleted")
	}
	if footer := fake.message("c1", msg.ID).Embeds[0].Footer; footer == nil || footer.Text != "Closed" {
		t.Fatalf("storefront footer = %+v, want Closed", footer)
	}
}

func TestRestock(t *testing.T) {
	h, fake, mem := newShopFixture(t)
	ctx := context.Background()

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }
	updatesAt := now.Add(-30 * time.Minute)

	if err := mem.Shops().Upsert(ctx, &game.Shop{ChannelID: "c1", UpdatesAt: updatesAt}); err != nil {
		t.Fatalf("upsert shop: %v", err)
	}
	tok := h.createTask("c1")

	stop, next, err := h.restock(ctx, "c1", updatesAt, tok)
	if err != nil {
		t.Fatalf("restock: %v", err)
	}
	if stop {
		t.Fatal("restock stopped")
	}
	if want := updatesAt.Add(24 * time.Hour); !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}

	shop, _ := mem.Shops().Get(ctx, "c1")
	if shop.MessageID == "" {
		t.Fatal("storefront message not recorded")
	}
	if len(shop.Spells) != game.ShopStockCount {
		t.Fatalf("stock has %d entries, want %d", len(shop.Spells), game.ShopStockCount)
	}
	levels := map[int]int{}
	for _, stack := range shop.Spells {
		if stack.Amount != 1 {
			t.Fatalf("stock entry %d has amount %d, want 1", stack.ID, stack.Amount)
		}
		levels[h.catalog.SpellLevel(stack.ID)]++
	}
	if levels[1] != 3 || levels[2] != 3 {
		t.Fatalf("stock levels = %v, want 3 level-1 and 3 level-2", levels)
	}

	storefront := fake.message("c1", shop.MessageID)
	if storefront.Content != "I bring wares!" {
		t.Fatalf("storefront content = %q", storefront.Content)
	}
	if len(storefront.Embeds) == 0 || storefront.Embeds[0].Title != "Shop" {
		t.Fatal("storefront embed not rendered")
	}
}

func TestRestockCatchesUpPastDeadline(t *testing.T) {
	h, _, mem := newShopFixture(t)
	ctx := context.Background()

	// Three missed cycles roll forward to the next future slot.
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }
	updatesAt := now.Add(-72*time.Hour - 30*time.Minute)

	if err := mem.Shops().Upsert(ctx, &game.Shop{ChannelID: "c1", UpdatesAt: updatesAt}); err != nil {
		t.Fatalf("upsert shop: %v", err)
	}
	tok := h.createTask("c1")

	_, next, err := h.restock(ctx, "c1", updatesAt, tok)
	if err != nil {
		t.Fatalf("restock: %v", err)
	}
	if want := updatesAt.Add(4 * 24 * time.Hour); !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestRestockUnknownChannelDeletesShop(t *testing.T) {
	h, fake, mem := newShopFixture(t)
	ctx := context.Background()

	fake.channelErr["c1"] = restErr(discordgo.ErrCodeUnknownChannel)
	if err := mem.Shops().Upsert(ctx, &game.Shop{ChannelID: "c1", UpdatesAt: time.Now()}); err != nil {
		t.Fatalf("upsert shop: %v", err)
	}
	tok := h.createTask("c1")

	stop, _, err := h.restock(ctx, "c1", time.Now(), tok)
	if err != nil {
		t.Fatalf("restock: %v", err)
	}
	if !stop {
		t.Fatal("restock did not stop")
	}
	if !tok.IsCancelled() {
		t.Fatal("token not cancelled")
	}
	if shop, _ := mem.Shops().Get(ctx, "c1"); shop != nil {
		t.Fatal("orphaned shop not deleted")
	}
}

func TestSetupRecoversPersistedShops(t *testing.T) {
	h, _, mem := newShopFixture(t)
	ctx := context.Background()

	if err := mem.Shops().Upsert(ctx, &game.Shop{ChannelID: "c1", UpdatesAt: time.Now().Add(-time.Minute)}); err != nil {
		t.Fatalf("upsert shop: %v", err)
	}
	if err := h.Setup(ctx); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		shop, _ := mem.Shops().Get(ctx, "c1")
		if shop != nil && shop.MessageID != "" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("recovered loop never restocked")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBuyFromStock(t *testing.T) {
	h, fake, mem := newShopFixture(t)
	ctx := context.Background()

	msg, _ := fake.ChannelMessageSendComplex("c1", &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{Title: "Shop"}},
	})
	shop := &game.Shop{
		ChannelID: "c1",
		MessageID: msg.ID,
		Spells:    game.SpellSet{{ID: 0, Amount: 1}},
		UpdatesAt: time.Now().Add(time.Hour),
	}
	if err := mem.Shops().Upsert(ctx, shop); err != nil {
		t.Fatalf("upsert shop: %v", err)
	}
	h.createTask("c1")

	alice := game.NewUser("alice")
	alice.Scrolls = 5
	if err := mem.Users().Upsert(ctx, alice); err != nil {
		t.Fatalf("upsert user: %v", err)
	}

	ic := componentInteraction(shopBuyMenuID, "c1", "alice", msg, "0")
	if _, err := h.Handle(ctx, ic); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	embed := fake.lastEmbed()
	if embed == nil || !strings.Contains(embed.Description, "Fire Bolt") {
		t.Fatalf("purchase embed = %+v", embed)
	}

	alice, _ = mem.Users().Get(ctx, "alice")
	if alice.Scrolls != 2 {
		t.Fatalf("scrolls = %d, want 2", alice.Scrolls)
	}
	if alice.Spells.Amount(0) != 1 {
		t.Fatalf("spell amount = %d, want 1", alice.Spells.Amount(0))
	}

	shop, _ = mem.Shops().Get(ctx, "c1")
	if shop.Spells.Amount(0) != 0 {
		t.Fatal("stock entry not consumed")
	}

	// Second attempt on the same entry finds it sold out.
	ic = componentInteraction(shopBuyMenuID, "c1", "alice", msg, "0")
	if _, err := h.Handle(ctx, ic); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := fake.lastContent(); got != "I cannot sell that which I do not possess." {
		t.Fatalf("reply = %q", got)
	}
}

func TestBuyInsufficientScrolls(t *testing.T) {
	h, fake, mem := newShopFixture(t)
	ctx := context.Background()

	shop := &game.Shop{
		ChannelID: "c1",
		Spells:    game.SpellSet{{ID: 0, Amount: 1}},
		UpdatesAt: time.Now().Add(time.Hour),
	}
	if err := mem.Shops().Upsert(ctx, shop); err != nil {
		t.Fatalf("upsert shop: %v", err)
	}
	h.createTask("c1")

	alice := game.NewUser("alice")
	alice.Scrolls = 2
	if err := mem.Users().Upsert(ctx, alice); err != nil {
		t.Fatalf("upsert user: %v", err)
	}

	ic := componentInteraction(shopBuyMenuID, "c1", "alice", nil, "0")
	if _, err := h.Handle(ctx, ic); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := fake.lastContent(); got != "The price of this item is beyond your reach." {
		t.Fatalf("reply = %q", got)
	}

	alice, _ = mem.Users().Get(ctx, "alice")
	if alice.Scrolls != 2 || alice.Spells.Amount(0) != 0 {
		t.Fatal("failed purchase mutated the user")
	}
	shop, _ = mem.Shops().Get(ctx, "c1")
	if shop.Spells.Amount(0) != 1 {
		t.Fatal("failed purchase mutated the stock")
	}
}

func TestBuyGacha(t *testing.T) {
	h, _, mem := newShopFixture(t)
	ctx := context.Background()

	if err := mem.Shops().Upsert(ctx, &game.Shop{ChannelID: "c1", UpdatesAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("upsert shop: %v", err)
	}
	h.createTask("c1")

	alice := game.NewUser("alice")
	alice.Scrolls = 3
	if err := mem.Users().Upsert(ctx, alice); err != nil {
		t.Fatalf("upsert user: %v", err)
	}

	ic := componentInteraction(shopBuyMenuID, "c1", "alice", nil, gachaLevel2Value)
	if _, err := h.Handle(ctx, ic); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	alice, _ = mem.Users().Get(ctx, "alice")
	if alice.Scrolls != 0 {
		t.Fatalf("scrolls = %d, want 0", alice.Scrolls)
	}
	won := -1
	for _, stack := range alice.Spells {
		won = stack.ID
	}
	if won < 0 || h.catalog.SpellLevel(won) != 2 {
		t.Fatalf("gacha granted spell %d, want a level-2 spell", won)
	}
}

func TestBuyWhileClosed(t *testing.T) {
	h, fake, _ := newShopFixture(t)

	ic := componentInteraction(shopBuyMenuID, "c1", "alice", nil, "0")
	if _, err := h.Handle(context.Background(), ic); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := fake.lastContent(); got != "I must apologize, for my wares are unavailable." {
		t.Fatalf("reply = %q", got)
	}
}
