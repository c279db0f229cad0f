package scraper

import (
	"testing"

	"github.com/maltedev/toreca-arbitrage/internal/catalog"
	"github.com/maltedev/toreca-arbitrage/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJapanTorecaSite_Queries(t *testing.T) {
	site := NewJapanTorecaSite("", catalog.Default())

	queries := site.Queries()
	require.Len(t, queries, 2)
	assert.Equal(t, Query{SetCode: "SV11B", Term: "SV11B"}, queries[0])
	assert.Equal(t, Query{SetCode: "SV11W", Term: "SV11W"}, queries[1])

	assert.Equal(t, "https://shop.japan-toreca.com/search?q=SV11B&page=3", site.SearchURL(queries[0], 3))
	assert.Equal(t, models.SourceJapanToreca, site.Source())
}

func TestJapanTorecaSite_ParseSearch(t *testing.T) {
	site := NewJapanTorecaSite("", catalog.Default())
	q := Query{SetCode: "SV11B", Term: "SV11B"}

	html := `<html><body><ul>
		<li><a href="/products/a1">【状態A-】ドリュウズex SAR (171/086) [SV11B]</a></li>
		<li><a href="/products/a2?variant=9">【状態A-】ゼクロムex SR (104/086) [SV11B]</a></li>
		<li><a href="/products/b1">【状態B】ドリュウズex SAR (171/086) [SV11B]</a></li>
		<li><a href="/products/w1">【状態A-】レシラムex SAR (173/086) [SV11W]</a></li>
		<li><a href="/products/c1">【状態A-】ポケモン通信 (001/086) [SV11B]</a></li>
		<li><a href="/collections/all">【状態A-】一覧 SAR [SV11B]</a></li>
		<li><a href="/products/a3"><span>【状態A-】ナンジャモ AR</span> <span>(095/086) [sv11b]</span></a></li>
	</ul>
	<nav><a href="/search?q=SV11B&page=2">次へ</a></nav>
	</body></html>`

	links, hasNext, err := site.ParseSearch(html, q)
	require.NoError(t, err)

	assert.Equal(t, []string{"/products/a1", "/products/a2?variant=9", "/products/a3"}, links)
	assert.True(t, hasNext)
}

func TestJapanTorecaSite_LastPage(t *testing.T) {
	site := NewJapanTorecaSite("", catalog.Default())

	links, hasNext, err := site.ParseSearch(`<html><body><a href="/search?page=1">前へ</a></body></html>`, Query{SetCode: "SV11B"})
	require.NoError(t, err)
	assert.Empty(t, links)
	assert.False(t, hasNext)
}

func TestTorecacampSite_Queries(t *testing.T) {
	site := NewTorecacampSite("", catalog.Default())

	queries := site.Queries()
	require.Len(t, queries, 6)
	assert.Equal(t, Query{SetCode: "SV11B", Rarity: "SAR", Term: "SV11B SAR"}, queries[0])
	assert.Equal(t, "SV11W SR", queries[5].String())

	assert.Equal(t, "https://torecacamp-pokemon.com/search?q=SV11B+SAR&page=1", site.SearchURL(queries[0], 1))
}

func TestTorecacampSite_ParseSearch(t *testing.T) {
	site := NewTorecacampSite("", catalog.Default())
	q := Query{SetCode: "SV11B", Rarity: "SAR", Term: "SV11B SAR"}

	tests := []struct {
		name    string
		html    string
		links   []string
		hasNext bool
	}{
		{
			name: "listing links only",
			html: `<a href="/products/rc_abc">ドリュウズex</a>
				<a href="/products/gift-card">ギフト</a>
				<a href="https://torecacamp-pokemon.com/products/rc_def?_pos=2">ゼクロムex</a>`,
			links: []string{"/products/rc_abc", "https://torecacamp-pokemon.com/products/rc_def?_pos=2"},
		},
		{
			name:    "link rel next",
			html:    `<head><link rel="next" href="/search?page=2"></head><a href="/products/rc_abc">x</a>`,
			links:   []string{"/products/rc_abc"},
			hasNext: true,
		},
		{
			name:    "anchor rel next",
			html:    `<a rel="next" href="/search?page=2">›</a>`,
			hasNext: true,
		},
		{
			name:    "japanese next label",
			html:    `<a href="/search?page=2">次のページ</a>`,
			hasNext: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			links, hasNext, err := site.ParseSearch(tt.html, q)
			require.NoError(t, err)
			assert.Equal(t, tt.links, links)
			assert.Equal(t, tt.hasNext, hasNext)
		})
	}
}

func TestNewSiteAndExtractor(t *testing.T) {
	cat := catalog.Default()

	for _, source := range models.Sources() {
		site, err := NewSite(source, "", cat)
		require.NoError(t, err)
		assert.Equal(t, source, site.Source())

		extractor, err := NewExtractor(source, cat)
		require.NoError(t, err)
		assert.Equal(t, source, extractor.Source())
	}

	_, err := NewSite("mercari", "", cat)
	assert.ErrorIs(t, err, ErrUnknownSource)

	_, err = NewExtractor("mercari", cat)
	assert.ErrorIs(t, err, ErrUnknownSource)
}
