// Package catalog describes the target card catalog: release sets, rarity
// tiers and the condition tiers used to pick a listing price.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalog []byte

var ErrUnknownSet = errors.New("unknown set")

type Condition struct {
	Name   string `yaml:"name"`
	Marker string `yaml:"marker"`
}

type Set struct {
	Code    string   `yaml:"code"`
	Key     string   `yaml:"key"`
	Label   string   `yaml:"label"`
	Search  string   `yaml:"search"`
	Match   []string `yaml:"match"`
	Exclude []string `yaml:"exclude"`
	Crawl   bool     `yaml:"crawl"`
}

type Rarity struct {
	Code  string `yaml:"code"`
	Label string `yaml:"label"`
	Match string `yaml:"match"`
	Crawl bool   `yaml:"crawl"`
}

type Feed struct {
	Sets     []string `yaml:"sets"`
	Rarities []string `yaml:"rarities"`
}

type Catalog struct {
	Conditions []Condition `yaml:"conditions"`
	Sets       []Set       `yaml:"sets"`
	Rarities   []Rarity    `yaml:"rarities"`
	Feed       Feed        `yaml:"feed"`
}

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded default is invalid: %v", err))
	}
	return c
}

// Load reads a catalog file. An empty path yields the default catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

func (c *Catalog) Validate() error {
	if len(c.Conditions) == 0 {
		return fmt.Errorf("catalog needs at least one condition tier")
	}

	for _, cond := range c.Conditions {
		if cond.Name == "" || cond.Marker == "" {
			return fmt.Errorf("condition tier needs name and marker")
		}
	}

	if len(c.Sets) == 0 {
		return fmt.Errorf("catalog needs at least one set")
	}

	for _, s := range c.Sets {
		if s.Code == "" || s.Key == "" || len(s.Match) == 0 {
			return fmt.Errorf("set %q needs code, key and match rules", s.Code)
		}
	}

	if len(c.Rarities) == 0 {
		return fmt.Errorf("catalog needs at least one rarity")
	}

	for _, code := range c.Feed.Sets {
		if _, ok := c.SetByCode(code); !ok {
			return fmt.Errorf("feed references %w %q", ErrUnknownSet, code)
		}
	}

	for _, code := range c.Feed.Rarities {
		if _, ok := c.Rarity(code); !ok {
			return fmt.Errorf("feed references unknown rarity %q", code)
		}
	}

	return nil
}

// Matches reports whether a free-text set label belongs to s.
func (s Set) Matches(label string) bool {
	lower := strings.ToLower(label)

	for _, ex := range s.Exclude {
		if strings.Contains(lower, strings.ToLower(ex)) {
			return false
		}
	}

	for _, m := range s.Match {
		if strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}

	return false
}

// ResolveSetCode maps a free-text set label to a canonical set code. The
// first set in catalog order wins.
func (c *Catalog) ResolveSetCode(label string) (string, bool) {
	for _, s := range c.Sets {
		if s.Matches(label) {
			return s.Code, true
		}
	}
	return "", false
}

func (c *Catalog) SetByKey(key string) (Set, bool) {
	for _, s := range c.Sets {
		if strings.EqualFold(s.Key, key) {
			return s, true
		}
	}
	return Set{}, false
}

func (c *Catalog) SetByCode(code string) (Set, bool) {
	for _, s := range c.Sets {
		if strings.EqualFold(s.Code, code) {
			return s, true
		}
	}
	return Set{}, false
}

func (c *Catalog) Rarity(code string) (Rarity, bool) {
	for _, r := range c.Rarities {
		if strings.EqualFold(r.Code, code) {
			return r, true
		}
	}
	return Rarity{}, false
}

// CrawlSets returns the sets the retail crawlers target, in catalog order.
func (c *Catalog) CrawlSets() []Set {
	var out []Set
	for _, s := range c.Sets {
		if s.Crawl {
			out = append(out, s)
		}
	}
	return out
}

func (c *Catalog) CrawlRarities() []Rarity {
	var out []Rarity
	for _, r := range c.Rarities {
		if r.Crawl {
			out = append(out, r)
		}
	}
	return out
}

func (c *Catalog) BestCondition() Condition {
	return c.Conditions[0]
}

// ConditionFor returns the highest-priority tier whose marker occurs in text.
func (c *Catalog) ConditionFor(text string) (Condition, bool) {
	for _, cond := range c.Conditions {
		if strings.Contains(text, cond.Marker) {
			return cond, true
		}
	}
	return Condition{}, false
}

// SetCodes returns all set codes, longest first, so that alternations built
// from them prefer "M2A" over "M2".
func (c *Catalog) SetCodes() []string {
	codes := make([]string, 0, len(c.Sets))
	for _, s := range c.Sets {
		codes = append(codes, s.Code)
	}
	sortLongestFirst(codes)
	return codes
}

// RarityCodes returns all rarity codes, longest first.
func (c *Catalog) RarityCodes() []string {
	codes := make([]string, 0, len(c.Rarities))
	for _, r := range c.Rarities {
		codes = append(codes, r.Code)
	}
	sortLongestFirst(codes)
	return codes
}

func sortLongestFirst(s []string) {
	sort.SliceStable(s, func(i, j int) bool {
		return len(s[i]) > len(s[j])
	})
}
