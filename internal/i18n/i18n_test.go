package i18n

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"ar", "en", "ru"}, c.Codes())
}

// Every catalog must translate every English key.
func TestCatalogsAreComplete(t *testing.T) {
	c := MustLoad()
	for _, code := range c.Codes() {
		for key := range c.messages[Fallback] {
			_, ok := c.messages[code][key]
			assert.True(t, ok, "%s.json is missing %q", code, key)
		}
	}
}

func TestText(t *testing.T) {
	c := MustLoad()

	got := c.Text("en", "limit.cooldown", map[string]string{"seconds": "12"})
	assert.Equal(t, "Please wait 12 seconds ⏳", got)

	t.Run("unknown language falls back to English", func(t *testing.T) {
		assert.Equal(t, "Choose your language", c.Text("xx", "lang.choose", nil))
	})
	t.Run("unknown key is returned as is", func(t *testing.T) {
		assert.Equal(t, "no.such.key", c.Text("ru", "no.such.key", nil))
	})
	t.Run("missing translation falls back to English", func(t *testing.T) {
		c := &Catalog{messages: map[string]map[string]string{
			"en": {"hello": "Hello {name}"},
			"ru": {},
		}}
		assert.Equal(t, "Hello Ann", c.Text("ru", "hello", map[string]string{"name": "Ann"}))
	})
}

func TestMatch(t *testing.T) {
	c := MustLoad()

	tests := []struct {
		tag    string
		want   string
		wantOK bool
	}{
		{"ru", "ru", true},
		{"ru-RU", "ru", true},
		{"en-US", "en", true},
		{"en-GB", "en", true},
		{"AR", "ar", true},
		{"ar-EG", "ar", true},
		{"de-DE", "", false},
		{"zh-Hans", "", false},
		{"not a tag", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := c.Match(tt.tag)
		assert.Equal(t, tt.want, got, tt.tag)
		assert.Equal(t, tt.wantOK, ok, tt.tag)
	}
}

func TestLocalizer(t *testing.T) {
	c := MustLoad()

	l := c.For("de")
	assert.Equal(t, Fallback, l.Lang())

	ru := c.For("ru")
	assert.Equal(t, "ru", ru.Lang())
	assert.True(t, strings.Contains(ru.Tf("admin.users_title", map[string]string{"total": "25"}), "25"))
}

func TestCatalogsAreValidJSON(t *testing.T) {
	for _, code := range []string{"ar", "en", "ru"} {
		data, err := localesFS.ReadFile("locales/" + code + ".json")
		require.NoError(t, err)
		assert.True(t, json.Valid(data), code)
	}
}
