package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveShortcut(t *testing.T) {
	tests := []struct {
		name  string
		ev    KeyEvent
		focus Focus
		dir   Direction
		ok    bool
	}{
		{"ctrl+z undoes", KeyEvent{Key: "z", Ctrl: true}, Focus{}, DirectionUndo, true},
		{"meta+z undoes", KeyEvent{Key: "Z", Meta: true}, Focus{Tag: "div"}, DirectionUndo, true},
		{"ctrl+shift+z redoes", KeyEvent{Key: "z", Ctrl: true, Shift: true}, Focus{}, DirectionRedo, true},
		{"plain z ignored", KeyEvent{Key: "z"}, Focus{}, "", false},
		{"alt chord ignored", KeyEvent{Key: "z", Ctrl: true, Alt: true}, Focus{}, "", false},
		{"other key ignored", KeyEvent{Key: "y", Ctrl: true}, Focus{}, "", false},
		{"text input keeps native undo", KeyEvent{Key: "z", Ctrl: true}, Focus{Tag: "INPUT"}, "", false},
		{"textarea keeps native undo", KeyEvent{Key: "z", Meta: true, Shift: true}, Focus{Tag: "textarea"}, "", false},
		{"contenteditable", KeyEvent{Key: "z", Ctrl: true}, Focus{ContentEditable: true}, "", false},
		{"code editor", KeyEvent{Key: "z", Ctrl: true}, Focus{CodeEditor: true}, "", false},
		{"listbox role", KeyEvent{Key: "z", Ctrl: true}, Focus{Role: "listbox"}, "", false},
		{"menu option role", KeyEvent{Key: "z", Ctrl: true}, Focus{Role: "option"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, ok := ResolveShortcut(tt.ev, tt.focus)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.dir, dir)
		})
	}
}

func TestParseChord(t *testing.T) {
	ev, ok := ParseChord("Ctrl+Shift+Z")
	require.True(t, ok)
	assert.Equal(t, KeyEvent{Key: "z", Ctrl: true, Shift: true}, ev)

	ev, ok = ParseChord("^Z")
	require.True(t, ok)
	assert.Equal(t, KeyEvent{Key: "z", Ctrl: true}, ev)

	ev, ok = ParseChord("cmd+z")
	require.True(t, ok)
	assert.True(t, ev.Meta)

	for _, bad := range []string{"", "z", "hyper+z", "ctrl+"} {
		_, ok := ParseChord(bad)
		assert.False(t, ok, bad)
	}
}
