package locator

import (
	"testing"

	"github.com/ace221390/work.ink/internal/dom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func defaultSettings() Settings {
	return Settings{
		Label:      "AGREE",
		LabelTag:   "span",
		ControlTag: "button",
		Hints: []string{
			`button[mode="primary"][size="large"]`,
			`button[mode="primary"]`,
			`button[size="large"]`,
			`button`,
		},
	}
}

func newLocator(t *testing.T) *Locator {
	t.Helper()
	l, err := New(defaultSettings(), zap.NewNop())
	require.NoError(t, err)
	return l
}

func TestNew(t *testing.T) {
	t.Run("should reject an invalid hint", func(t *testing.T) {
		s := defaultSettings()
		s.Hints = append(s.Hints, "button[")
		_, err := New(s, zap.NewNop())
		assert.ErrorContains(t, err, `invalid hint "button["`)
	})

	t.Run("should reject an empty label", func(t *testing.T) {
		s := defaultSettings()
		s.Label = "  "
		_, err := New(s, zap.NewNop())
		assert.Error(t, err)
	})
}

func TestLocate(t *testing.T) {
	testCases := []struct {
		name   string
		markup string
		wantID string
	}{
		{
			name:   "nested label in mixed case with whitespace",
			markup: `<button id="c"><span>  agree  </span></button>`,
			wantID: "c",
		},
		{
			name:   "own text without a label element",
			markup: `<button id="c">Agree</button>`,
			wantID: "c",
		},
		{
			name: "most specific hint wins over document order",
			markup: `<button id="plain"><span>AGREE</span></button>
				<button id="primary" mode="primary"><span>AGREE</span></button>
				<button id="best" mode="primary" size="large"><span>AGREE</span></button>`,
			wantID: "best",
		},
		{
			name: "non-matching specific candidates fall through",
			markup: `<button mode="primary" size="large"><span>Cancel</span></button>
				<button id="c" size="large"><span>AGREE</span></button>`,
			wantID: "c",
		},
		{
			name:   "label scan finds a second label element",
			markup: `<button id="c"><span>icon</span><span>Agree</span></button>`,
			wantID: "c",
		},
		{
			name:   "label scan climbs through wrappers",
			markup: `<button id="c"><div><em>✓</em><div><span> AGREE </span></div></div></button>`,
			wantID: "c",
		},
	}

	for _, tc := range testCases {
		t.Run("should find "+tc.name, func(t *testing.T) {
			doc := dom.MustParse(tc.markup)
			el, ok := newLocator(t).Locate(doc)
			require.True(t, ok)
			id, _ := el.Attr("id")
			assert.Equal(t, tc.wantID, id)
			assert.Equal(t, "button", el.Tag())
		})
	}

	t.Run("should not find a label outside any control", func(t *testing.T) {
		doc := dom.MustParse(`<div><span>AGREE</span></div><button>Disagree</button>`)
		_, ok := newLocator(t).Locate(doc)
		assert.False(t, ok)
	})

	t.Run("should not match partial labels", func(t *testing.T) {
		doc := dom.MustParse(`<button><span>I agree</span></button>`)
		_, ok := newLocator(t).Locate(doc)
		assert.False(t, ok)
	})

	t.Run("should handle a nil document", func(t *testing.T) {
		_, ok := newLocator(t).Locate(nil)
		assert.False(t, ok)
	})
}
