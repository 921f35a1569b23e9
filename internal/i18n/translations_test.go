package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestTranslatePicksRequestedLanguage(t *testing.T) {
	tr := NewTranslator("en")

	assert.Equal(t, "Registration for this event is closed.", tr.T("", "error_event_closed", nil))
	assert.Equal(t, "La inscripción para este evento está cerrada.", tr.T("es", "error_event_closed", nil))
	assert.Equal(t, "La inscripción para este evento está cerrada.", tr.T("es-MX,es;q=0.9,en;q=0.5", "error_event_closed", nil))
}

func TestTranslateTemplateData(t *testing.T) {
	tr := NewTranslator("en")
	got := tr.T("en", "conflict_message", map[string]any{"ClassName": "Knot Tying"})
	assert.Equal(t, "You are already registered for Knot Tying at this time.", got)
}

func TestTranslateFallbacks(t *testing.T) {
	tr := NewTranslator("not a locale")
	assert.Equal(t, "This account is inactive.", tr.T("fr", "error_user_inactive", nil))
	assert.Equal(t, "missing_key", tr.T("en", "missing_key", nil))
	assert.Empty(t, tr.T("en", "", nil))
}

func TestEveryMessageHasSpanish(t *testing.T) {
	tr := NewTranslator("en")
	assert.ElementsMatch(t, []language.Tag{language.English, language.Spanish}, tr.Languages())

	keys := []string{
		"error_event_closed", "error_no_club", "error_level_too_low", "error_class_inactive",
		"error_already_registered", "error_user_inactive", "error_incomplete_session_group",
		"error_invalid_input", "error_bad_request", "error_not_found", "error_capacity_race",
		"error_partial_failure", "error_internal", "conflict_message",
	}
	for _, key := range keys {
		en := tr.T("en", key, map[string]any{"Detail": "x", "Kind": "class", "ClassName": "A"})
		es := tr.T("es", key, map[string]any{"Detail": "x", "Kind": "class", "ClassName": "A"})
		assert.NotEqual(t, key, en, key)
		assert.NotEqual(t, key, es, key)
		assert.NotEqual(t, en, es, key)
	}
}
