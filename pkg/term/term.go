// Package term is the broker's collaborator onto the real terminal:
// raw-mode entry/exit, size/cursor queries, and translating raw stdin
// bytes into KeyPress/MouseEvent events the dispatch pipeline can
// route. Drawing, screen buffering, and rendering a component's own
// output belong to the hosted front-end component, not the broker;
// this package only owns the input half, since the broker is the one
// process holding the tty.
package term

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ccanvas/ccanvas/pkg/events"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// IsInteractive reports whether stdout is attached to a real terminal.
func IsInteractive() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// IsInputInteractive reports whether stdin is attached to a real
// terminal, i.e. whether raw-mode entry and input translation apply at
// all (piped/redirected stdin never produces key events).
func IsInputInteractive() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}

// RawSession holds the terminal state to restore on exit.
type RawSession struct {
	fd    int
	state *term.State
}

// EnterRaw puts stdin into raw mode, returning a session to restore it.
func EnterRaw() (*RawSession, error) {
	fd := int(os.Stdin.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("term: enter raw mode: %w", err)
	}
	return &RawSession{fd: fd, state: state}, nil
}

// Exit restores the terminal to its state before EnterRaw.
func (s *RawSession) Exit() error {
	return term.Restore(s.fd, s.state)
}

// Size is a terminal's column/row dimensions, matching the wire
// protocol's StateValue TerminalSize{x,y} shape.
type Size struct {
	X, Y uint32
}

// GetSize queries the current terminal size, answering GetState(TerminalSize).
func GetSize() (Size, error) {
	cols, rows, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return Size{}, fmt.Errorf("term: get size: %w", err)
	}
	return Size{X: uint32(cols), Y: uint32(rows)}, nil
}

// DisplayWidth returns s's terminal column width, counting wide (e.g.
// CJK) runes as two columns.
func DisplayWidth(s string) int {
	return runewidth.StringWidth(s)
}

// ReadEvents decodes raw terminal input from r into KeyPress and
// MouseEvent events on a background goroutine, covering the subset
// this broker needs to forward: printable runes, Enter/Tab/Backspace,
// ctrl+letter combinations, a bare Escape, arrow/Home/End/Delete keys,
// and SGR mouse reporting (`ESC [ < b ; x ; y M`/`m`). It does not
// attempt full terminfo coverage of every terminal's escape dialect.
// The returned channel closes once r returns an error or ctx is done.
func ReadEvents(ctx context.Context, r io.Reader) <-chan events.Event {
	out := make(chan events.Event)
	go func() {
		defer close(out)
		br := bufio.NewReader(r)
		for {
			if ctx.Err() != nil {
				return
			}
			b, err := br.ReadByte()
			if err != nil {
				return
			}
			var e events.Event
			var ok bool
			if b == 0x1b {
				e, ok = readEscape(br)
			} else {
				e, ok = translateByte(b)
			}
			if !ok {
				continue
			}
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// readEscape consumes whatever follows a lone ESC byte. A sequence
// assembled in the same read burst as the ESC (br.Buffered() > 0) is
// treated as a CSI/SS3 escape; otherwise this is a bare Escape key
// press. This is a heuristic, not a timeout-based disambiguation, and
// can misread a very slowly hand-typed escape sequence as a bare
// Escape followed by ordinary keys.
func readEscape(br *bufio.Reader) (events.Event, bool) {
	if br.Buffered() == 0 {
		return keyEvent("Escape", "none"), true
	}
	lead, err := br.ReadByte()
	if err != nil {
		return events.Event{}, false
	}
	if lead != '[' && lead != 'O' {
		return events.Event{}, false
	}
	var seq []byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			return events.Event{}, false
		}
		seq = append(seq, b)
		if (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b == '~' {
			break
		}
		if len(seq) > 32 {
			return events.Event{}, false
		}
	}
	return decodeCSI(seq)
}

// decodeCSI interprets the parameter bytes and final byte of a CSI
// sequence (everything after "ESC ["), covering arrow keys, a handful
// of navigation keys, and SGR mouse reporting.
func decodeCSI(seq []byte) (events.Event, bool) {
	final := seq[len(seq)-1]
	params := string(seq[:len(seq)-1])

	if strings.HasPrefix(params, "<") {
		parts := strings.Split(params[1:], ";")
		if len(parts) != 3 {
			return events.Event{}, false
		}
		btn, errB := strconv.Atoi(parts[0])
		x, errX := strconv.Atoi(parts[1])
		y, errY := strconv.Atoi(parts[2])
		if errB != nil || errX != nil || errY != nil {
			return events.Event{}, false
		}
		return events.Event{
			Kind:  events.KindMouse,
			Mouse: &events.MouseEvent{Type: mouseType(btn, final == 'M'), X: uint32(x), Y: uint32(y)},
		}, true
	}

	switch final {
	case 'A':
		return keyEvent("ArrowUp", "none"), true
	case 'B':
		return keyEvent("ArrowDown", "none"), true
	case 'C':
		return keyEvent("ArrowRight", "none"), true
	case 'D':
		return keyEvent("ArrowLeft", "none"), true
	case 'H':
		return keyEvent("Home", "none"), true
	case 'F':
		return keyEvent("End", "none"), true
	case '~':
		switch params {
		case "3":
			return keyEvent("Delete", "none"), true
		case "5":
			return keyEvent("PageUp", "none"), true
		case "6":
			return keyEvent("PageDown", "none"), true
		}
	}
	return events.Event{}, false
}

// mouseType decodes an SGR mouse report's button byte. Bit 6 (0x40)
// marks a scroll wheel event; otherwise the final byte ('M' vs 'm')
// distinguishes press from release, and bit 5 (0x20) marks a drag.
func mouseType(btn int, pressed bool) string {
	switch {
	case btn&0x40 != 0:
		if btn&1 != 0 {
			return "scroll_down"
		}
		return "scroll_up"
	case !pressed:
		return "up"
	case btn&0x20 != 0:
		return "drag"
	default:
		return "down"
	}
}

// translateByte decodes a single non-escape input byte into a KeyPress
// event, or reports false for bytes this decoder doesn't handle.
func translateByte(b byte) (events.Event, bool) {
	switch {
	case b == '\r' || b == '\n':
		return keyEvent("Enter", "none"), true
	case b == '\t':
		return keyEvent("Tab", "none"), true
	case b == 0x7f || b == 0x08:
		return keyEvent("Backspace", "none"), true
	case b > 0 && b < 0x20:
		letter := string(rune('a' + b - 1))
		return events.Event{
			Kind: events.KindKeyPress,
			Key:  &events.KeyPress{Char: letter, Code: "Key" + strings.ToUpper(letter), Modifier: "ctrl"},
		}, true
	case b >= 0x20 && b < 0x7f:
		ch := string(b)
		return events.Event{
			Kind: events.KindKeyPress,
			Key:  &events.KeyPress{Char: ch, Code: "Key" + strings.ToUpper(ch), Modifier: "none"},
		}, true
	default:
		return events.Event{}, false
	}
}

func keyEvent(code, modifier string) events.Event {
	return events.Event{Kind: events.KindKeyPress, Key: &events.KeyPress{Code: code, Modifier: modifier}}
}
