package history

import "strings"

// KeyEvent is a keyboard chord.
type KeyEvent struct {
	Key   string
	Ctrl  bool
	Meta  bool
	Shift bool
	Alt   bool
}

// Focus describes the element that has input focus when a chord arrives.
type Focus struct {
	Tag             string // input, textarea, select, ...
	Role            string // ARIA role
	ContentEditable bool
	CodeEditor      bool
}

// typingFocus reports whether chords belong to the focused control rather than page history.
func (f Focus) typingFocus() bool {
	switch strings.ToLower(f.Tag) {
	case "input", "textarea":
		return true
	}
	switch strings.ToLower(f.Role) {
	case "textbox", "listbox", "menu", "menuitem", "option", "combobox":
		return true
	}
	return f.ContentEditable || f.CodeEditor
}

// ResolveShortcut maps ctrl/meta+Z to undo and ctrl/meta+shift+Z to redo.
// It returns ok=false for any other chord and whenever focus is inside a
// control that owns its own undo.
func ResolveShortcut(ev KeyEvent, focus Focus) (Direction, bool) {
	if !strings.EqualFold(ev.Key, "z") || ev.Alt || !(ev.Ctrl || ev.Meta) {
		return "", false
	}
	if focus.typingFocus() {
		return "", false
	}
	if ev.Shift {
		return DirectionRedo, true
	}
	return DirectionUndo, true
}

// ParseChord parses notation such as "ctrl+z", "Cmd+Shift+Z" or "^Z".
func ParseChord(s string) (KeyEvent, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "^") && len(s) == 2 {
		return KeyEvent{Key: strings.ToLower(s[1:]), Ctrl: true}, true
	}
	parts := strings.Split(strings.ToLower(s), "+")
	if len(parts) < 2 {
		return KeyEvent{}, false
	}
	var ev KeyEvent
	for _, p := range parts[:len(parts)-1] {
		switch p {
		case "ctrl", "control":
			ev.Ctrl = true
		case "cmd", "meta", "super":
			ev.Meta = true
		case "shift":
			ev.Shift = true
		case "alt", "option":
			ev.Alt = true
		default:
			return KeyEvent{}, false
		}
	}
	ev.Key = parts[len(parts)-1]
	return ev, ev.Key != ""
}
