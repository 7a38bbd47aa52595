package pinpad

// Key identifies a widget event.
type Key int

const (
	KeyChar Key = iota
	KeyInput
	KeyBackspace
	KeyArrowLeft
	KeyArrowRight
	KeyPaste
	KeyFocus
	KeyToggleReveal
)

// Event is a keyboard, clipboard or input event on box Index. Text carries
// the typed character, the input text or the pasted text.
type Event struct {
	Key   Key
	Index int
	Text  string
}

// OnKey applies an event and returns the resulting view.
func (p *Pad) OnKey(e Event) View {
	switch e.Key {
	case KeyChar:
		runes := []rune(e.Text)
		if len(runes) != 1 {
			return p.Input(e.Index, e.Text)
		}
		return p.Type(e.Index, runes[0])
	case KeyInput:
		return p.Input(e.Index, e.Text)
	case KeyBackspace:
		return p.Backspace(e.Index)
	case KeyArrowLeft:
		return p.ArrowLeft(e.Index)
	case KeyArrowRight:
		return p.ArrowRight(e.Index)
	case KeyPaste:
		return p.Paste(e.Text)
	case KeyFocus:
		return p.Focus(e.Index)
	case KeyToggleReveal:
		return p.ToggleReveal()
	default:
		return p.View()
	}
}

// OnPaste is shorthand for a KeyPaste event.
func (p *Pad) OnPaste(text string) View {
	return p.Paste(text)
}
