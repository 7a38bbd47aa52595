// Package pinpad is the state of a PIN entry widget: N single-digit boxes
// with keyboard navigation, paste support and a show/hide toggle.
//
// A Pad is driven by events and answers each one with the View to render.
// It holds no rendering logic and is not safe for concurrent use; one Pad
// belongs to one input surface.
package pinpad

import "strings"

const DefaultLength = 6

// Mask is shown in place of an entered digit while the PIN is hidden.
const Mask = "•"

// View describes the widget after an event.
type View struct {
	// Boxes holds what each box displays: the digit, Mask, or "" when empty.
	Boxes    []string
	Focus    int
	Revealed bool
	Value    string
	Complete bool
	// Fired is true when this event fired the completion callback.
	Fired bool
}

// Pad holds the digits entered so far.
type Pad struct {
	digits     []byte
	focus      int
	revealed   bool
	armed      bool
	onComplete func(string)
}

type Option func(*Pad)

// WithLength sets the number of boxes.
func WithLength(n int) Option {
	return func(p *Pad) {
		if n > 0 {
			p.digits = make([]byte, n)
		}
	}
}

// OnComplete registers fn to run when the last empty box is filled. It runs
// once per completed sequence.
func OnComplete(fn func(value string)) Option {
	return func(p *Pad) {
		p.onComplete = fn
	}
}

func New(opts ...Option) *Pad {
	p := &Pad{
		digits: make([]byte, DefaultLength),
		armed:  true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pad) Len() int {
	return len(p.digits)
}

// Value returns the entered digits in box order.
func (p *Pad) Value() string {
	var b strings.Builder
	for _, d := range p.digits {
		if d != 0 {
			b.WriteByte(d)
		}
	}
	return b.String()
}

// Complete reports whether every box holds a digit.
func (p *Pad) Complete() bool {
	for _, d := range p.digits {
		if d == 0 {
			return false
		}
	}
	return true
}

// Type enters ch at box i. Anything but an ASCII digit is ignored.
func (p *Pad) Type(i int, ch rune) View {
	if !p.valid(i) || !isDigit(ch) {
		return p.view(false)
	}
	p.digits[i] = byte(ch)
	p.focus = i
	if i < p.Len()-1 {
		p.focus = i + 1
	}
	return p.settle()
}

// Input handles the raw text an input box received. More than one character
// at once is treated as a paste; empty text clears the box.
func (p *Pad) Input(i int, s string) View {
	if !p.valid(i) {
		return p.view(false)
	}
	switch runes := []rune(s); len(runes) {
	case 0:
		p.digits[i] = 0
		p.focus = i
		return p.settle()
	case 1:
		return p.Type(i, runes[0])
	default:
		return p.Paste(s)
	}
}

// Backspace clears box i when it holds a digit. On an empty box it moves
// focus to the previous box without clearing it.
func (p *Pad) Backspace(i int) View {
	if !p.valid(i) {
		return p.view(false)
	}
	if p.digits[i] != 0 {
		p.digits[i] = 0
		p.focus = i
		return p.settle()
	}
	p.focus = i
	if i > 0 {
		p.focus = i - 1
	}
	return p.view(false)
}

func (p *Pad) ArrowLeft(i int) View {
	if p.valid(i) && i > 0 {
		p.focus = i - 1
	}
	return p.view(false)
}

func (p *Pad) ArrowRight(i int) View {
	if p.valid(i) && i < p.Len()-1 {
		p.focus = i + 1
	}
	return p.view(false)
}

// Focus moves focus to box i.
func (p *Pad) Focus(i int) View {
	if p.valid(i) {
		p.focus = i
	}
	return p.view(false)
}

// Paste replaces the whole value with the digits of s, whichever box it was
// pasted into. Non-digits are dropped and the rest is truncated to the pad
// length. Text without digits changes nothing.
func (p *Pad) Paste(s string) View {
	digits := make([]byte, 0, p.Len())
	for _, r := range s {
		if isDigit(r) && len(digits) < p.Len() {
			digits = append(digits, byte(r))
		}
	}
	if len(digits) == 0 {
		return p.view(false)
	}

	for i := range p.digits {
		p.digits[i] = 0
	}
	copy(p.digits, digits)
	p.focus = min(len(digits), p.Len()-1)
	return p.settle()
}

// ToggleReveal shows or hides the digits. The value is kept.
func (p *Pad) ToggleReveal() View {
	p.revealed = !p.revealed
	return p.view(false)
}

// Reset clears every box and re-arms the completion callback.
func (p *Pad) Reset() View {
	for i := range p.digits {
		p.digits[i] = 0
	}
	p.focus = 0
	p.armed = true
	return p.view(false)
}

// View returns the current view without changing anything.
func (p *Pad) View() View {
	return p.view(false)
}

// settle fires the completion callback when the value just became complete
// and re-arms it once the value is incomplete again.
func (p *Pad) settle() View {
	if !p.Complete() {
		p.armed = true
		return p.view(false)
	}
	if !p.armed {
		return p.view(false)
	}
	p.armed = false
	if p.onComplete != nil {
		p.onComplete(p.Value())
	}
	return p.view(true)
}

func (p *Pad) view(fired bool) View {
	boxes := make([]string, p.Len())
	for i, d := range p.digits {
		switch {
		case d == 0:
			boxes[i] = ""
		case p.revealed:
			boxes[i] = string(d)
		default:
			boxes[i] = Mask
		}
	}
	return View{
		Boxes:    boxes,
		Focus:    p.focus,
		Revealed: p.revealed,
		Value:    p.Value(),
		Complete: p.Complete(),
		Fired:    fired,
	}
}

func (p *Pad) valid(i int) bool {
	return i >= 0 && i < p.Len()
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
