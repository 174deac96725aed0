package game

import (
	_ "embed"
	"fmt"
	"math/rand"
	"strings"

	"github.com/sahilm/fuzzy"
	"gopkg.in/yaml.v3"
)

//go:embed books.yaml
var booksYAML []byte

// Spell ids are 12*bookIndex + offset. Within a book, offsets 0-4 are
// level 1, 5-9 level 2, 10-11 level 3.
const (
	SpellsPerBook  = 12
	level1PerBook  = 5
	level2PerBook  = 5
	level3PerBook  = 2
	ShopStockCount = 6 // 3 level-1 + 3 level-2 per restock
)

type Book struct {
	Name   string   `yaml:"name"`
	Icon   string   `yaml:"icon"`
	Spells []string `yaml:"spells"`
}

// Catalog is the static lookup table of spell ids to names and levels.
type Catalog struct {
	books  []Book
	names  []string
	byName map[string]int
}

func LoadCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Books []Book `yaml:"books"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(doc.Books) == 0 {
		return nil, fmt.Errorf("catalog has no books")
	}

	c := &Catalog{books: doc.Books, byName: make(map[string]int)}
	for i, book := range doc.Books {
		if len(book.Spells) != SpellsPerBook {
			return nil, fmt.Errorf("book %q has %d spells, want %d", book.Name, len(book.Spells), SpellsPerBook)
		}
		for j, name := range book.Spells {
			id := i*SpellsPerBook + j
			c.names = append(c.names, name)
			c.byName[strings.ToLower(name)] = id
		}
	}
	return c, nil
}

// DefaultCatalog loads the embedded book file. The file ships with the
// binary, so a parse failure is a build defect.
func DefaultCatalog() *Catalog {
	c, err := LoadCatalog(booksYAML)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Books() []Book {
	return c.books
}

func (c *Catalog) NumSpells() int {
	return len(c.names)
}

func (c *Catalog) SpellName(id int) string {
	if id < 0 || id >= len(c.names) {
		return ""
	}
	return c.names[id]
}

// SpellID resolves a spell name case-insensitively.
func (c *Catalog) SpellID(name string) (int, bool) {
	id, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	return id, ok
}

// Suggest returns the closest known spell name to input, or "" when
// nothing matches at all.
func (c *Catalog) Suggest(input string) string {
	matches := fuzzy.Find(input, c.names)
	if len(matches) == 0 {
		return ""
	}
	return matches[0].Str
}

func (c *Catalog) SpellLevel(id int) int {
	switch offset := id % SpellsPerBook; {
	case offset < level1PerBook:
		return 1
	case offset < level1PerBook+level2PerBook:
		return 2
	default:
		return 3
	}
}

// SpellPrice is the shop price in scrolls, by level.
func (c *Catalog) SpellPrice(id int) int {
	switch c.SpellLevel(id) {
	case 1:
		return 3
	case 2:
		return 5
	default:
		return 8
	}
}

// MergeReward is how many scrolls two merged copies of a spell yield.
func (c *Catalog) MergeReward(id int) int {
	switch c.SpellLevel(id) {
	case 1:
		return 3
	case 2:
		return 5
	default:
		return 8
	}
}

// RandomSpellID draws a spell of the given level: a uniformly random
// book, then a uniformly random spell from that book's level range.
func (c *Catalog) RandomSpellID(rng *rand.Rand, level int) int {
	base := rng.Intn(len(c.books)) * SpellsPerBook
	switch level {
	case 1:
		return base + rng.Intn(level1PerBook)
	case 2:
		return base + level1PerBook + rng.Intn(level2PerBook)
	default:
		return base + level1PerBook + level2PerBook + rng.Intn(level3PerBook)
	}
}

// RollStock draws a fresh storefront: 3 distinct level-1 and 3 distinct
// level-2 spells, one copy each.
func (c *Catalog) RollStock(rng *rand.Rand) SpellSet {
	stock := make(SpellSet, 0, ShopStockCount)
	for _, level := range []int{1, 2} {
		seen := make(map[int]bool, 3)
		for len(seen) < 3 {
			id := c.RandomSpellID(rng, level)
			if seen[id] {
				continue
			}
			seen[id] = true
			stock.Add(id, 1)
		}
	}
	return stock
}
