package trigger

import (
	"context"
	"io"
	"os"

	"go.uber.org/zap"
	"golang.org/x/term"
)

// toggleKey flips between pressed and released. Terminals do not report key
// release, so push-to-talk is emulated as a toggle.
const toggleKey = ' '

// Keyboard reads single keys from a terminal.
type Keyboard struct {
	logger *zap.Logger
	in     io.Reader
	fd     int
	raw    bool
}

// NewKeyboard reads from stdin, switching it to raw mode when it is a terminal.
func NewKeyboard(logger *zap.Logger) *Keyboard {
	fd := int(os.Stdin.Fd())
	return &Keyboard{logger: logger, in: os.Stdin, fd: fd, raw: term.IsTerminal(fd)}
}

// NewKeyboardReader reads keys from r without touching terminal state.
func NewKeyboardReader(logger *zap.Logger, r io.Reader) *Keyboard {
	return &Keyboard{logger: logger, in: r}
}

// Edges implements Source. Space toggles recording; Ctrl+C and EOF stop the
// source.
func (k *Keyboard) Edges(ctx context.Context) <-chan Edge {
	out := make(chan Edge)

	var restore func()
	if k.raw {
		if oldState, err := term.MakeRaw(k.fd); err == nil {
			restore = func() {
				if err := term.Restore(k.fd, oldState); err != nil {
					k.logger.Warn("Failed to restore terminal state", zap.Error(err))
				}
			}
		} else {
			k.logger.Warn("Failed to switch terminal to raw mode", zap.Error(err))
		}
	}

	keys := make(chan byte)
	stopped := make(chan struct{})
	go func() {
		defer close(keys)
		buf := make([]byte, 1)
		for {
			if _, err := k.in.Read(buf); err != nil {
				return
			}
			select {
			case keys <- buf[0]:
			case <-stopped:
				return
			}
		}
	}()

	go func() {
		defer close(out)
		defer close(stopped)
		if restore != nil {
			defer restore()
		}

		pressed := false
		for {
			select {
			case <-ctx.Done():
				return
			case key, ok := <-keys:
				if !ok || key == 3 { // EOF or Ctrl+C
					if pressed {
						k.send(ctx, out, Released)
					}
					return
				}
				if key != toggleKey {
					continue
				}

				pressed = !pressed
				edge := Released
				if pressed {
					edge = Pressed
				}
				if !k.send(ctx, out, edge) {
					return
				}
			}
		}
	}()

	return out
}

func (k *Keyboard) send(ctx context.Context, out chan<- Edge, edge Edge) bool {
	k.logger.Debug("Keyboard trigger edge", zap.Stringer("edge", edge))
	select {
	case out <- edge:
		return true
	case <-ctx.Done():
		return false
	}
}
