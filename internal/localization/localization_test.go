package localization_test

import (
	"testing"
	"testing/fstest"

	"talentchat/backend/internal/localization"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBundled_HasEnglishFilterReasons(t *testing.T) {
	l, err := localization.Bundled()
	require.NoError(t, err)

	assert.Contains(t, l.GetString("en", "filter.booker.phone"), "phone numbers")
	assert.Contains(t, l.Languages(), "en")
}

func TestGetString_FallsBackToEnglishThenKey(t *testing.T) {
	fsys := fstest.MapFS{
		"i18n/en.json":    {Data: []byte(`{"greeting":"hello","only.en":"english"}`)},
		"i18n/uk.json":    {Data: []byte(`{"greeting":"привіт"}`)},
		"i18n/readme.txt": {Data: []byte("ignored")},
	}
	l, err := localization.NewLocalizer(fsys, "i18n")
	require.NoError(t, err)

	assert.Equal(t, "привіт", l.GetString("uk", "greeting"))
	assert.Equal(t, "english", l.GetString("uk", "only.en"))
	assert.Equal(t, "missing.key", l.GetString("uk", "missing.key"))
	assert.ElementsMatch(t, []string{"en", "uk"}, l.Languages())
}

func TestNewLocalizer_RejectsBadJSON(t *testing.T) {
	fsys := fstest.MapFS{"i18n/en.json": {Data: []byte(`{not json`)}}

	_, err := localization.NewLocalizer(fsys, "i18n")

	assert.ErrorContains(t, err, "failed to parse localization file en.json")
}
