package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	assert.Equal(t, "A-", c.BestCondition().Name)
	assert.Len(t, c.Conditions, 2)
	assert.Equal(t, []string{"SV11B", "SV11W"}, c.Feed.Sets)
	assert.Len(t, c.CrawlRarities(), 3)

	crawl := c.CrawlSets()
	require.Len(t, crawl, 2)
	assert.Equal(t, "SV11B", crawl[0].Code)
	assert.Equal(t, "SV11W", crawl[1].Code)
}

func TestResolveSetCode(t *testing.T) {
	c := Default()

	tests := []struct {
		label    string
		expected string
		found    bool
	}{
		{"SV11B: Black Bolt", "SV11B", true},
		{"black bolt", "SV11B", true},
		{"SV11W: White Flare", "SV11W", true},
		{"M2: Mega Set 2", "M2", true},
		{"M2a: High Class Pack MEGA Dream ex", "M2A", true},
		{"M1S: Mega Symphonia", "M1S", true},
		{"Scarlet & Violet 151", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			code, ok := c.ResolveSetCode(tt.label)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.expected, code)
		})
	}
}

func TestSetMatchesHonoursExclusions(t *testing.T) {
	c := Default()

	m2, ok := c.SetByKey("m2")
	require.True(t, ok)

	assert.True(t, m2.Matches("M2: Mega Set 2"))
	assert.False(t, m2.Matches("M2a: High Class Pack"))
}

func TestCodesLongestFirst(t *testing.T) {
	c := Default()

	codes := c.SetCodes()
	indexOf := func(code string) int {
		for i, c := range codes {
			if c == code {
				return i
			}
		}
		return -1
	}
	assert.Less(t, indexOf("M2A"), indexOf("M2"))

	rarities := c.RarityCodes()
	assert.Equal(t, "SAR", rarities[0])
}

func TestConditionFor(t *testing.T) {
	c := Default()

	cond, ok := c.ConditionFor("ドリュウズex SAR - 【状態B】")
	require.True(t, ok)
	assert.Equal(t, "B", cond.Name)

	_, ok = c.ConditionFor("ドリュウズex SAR")
	assert.False(t, ok)
}

func TestLoad(t *testing.T) {
	t.Run("empty path falls back to default", func(t *testing.T) {
		c, err := Load("")
		require.NoError(t, err)
		assert.NotEmpty(t, c.Sets)
	})

	t.Run("custom tiers from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "catalog.yaml")
		data := `
conditions:
  - {name: "S", marker: "【状態S】"}
  - {name: "A-", marker: "【状態A-】"}
sets:
  - {code: SV11B, key: blackbolt, label: Black Bolt, search: SV11B, match: ["black bolt"]}
rarities:
  - {code: SAR, label: Special Art Rare, match: Special Art, crawl: true}
`
		require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

		c, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "S", c.BestCondition().Name)
	})

	t.Run("feed referencing unknown set is rejected", func(t *testing.T) {
		_, err := Parse([]byte(`
conditions: [{name: "A-", marker: "x"}]
sets: [{code: SV11B, key: blackbolt, match: ["black bolt"]}]
rarities: [{code: SAR}]
feed: {sets: [SV9]}
`))
		assert.ErrorIs(t, err, ErrUnknownSet)
	})
}
