// Package input reads operator commands, one per line, and turns them into
// input events. It stands in for a touch screen on headless kiosks.
package input

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/stmh/gsc-brain-interface/internal/event"
	"github.com/stmh/gsc-brain-interface/internal/logging"
)

var log = logging.L("input")

var (
	ErrUnknownCommand = errors.New("input: unknown command")
	ErrBadArguments   = errors.New("input: bad arguments")
)

// Keys are the key codes bound to the next and home commands.
type Keys struct {
	Advance event.Key
	Reset   event.Key
}

// Parse converts one command line into events stamped at.
//
//	(empty) | next     advance key press
//	home | reset       reset key press
//	key <c>            press c, a single character or a number like 0xFF50
//	resize <W>x<H>     viewport change
//	click <X> <Y>      button 1 press and release
//	move <X> <Y>       pointer motion
//	user <name>        user event
func Parse(line string, keys Keys, at time.Time) ([]event.Input, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return press(keys.Advance, at), nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "next":
		return press(keys.Advance, at), nil
	case "home", "reset":
		return press(keys.Reset, at), nil
	case "key":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: key takes one argument", ErrBadArguments)
		}
		k, err := parseKey(args[0])
		if err != nil {
			return nil, err
		}
		return press(k, at), nil
	case "resize":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: resize takes WxH", ErrBadArguments)
		}
		w, h, err := parseSize(args[0])
		if err != nil {
			return nil, err
		}
		return []event.Input{event.ResizeTo(w, h, at)}, nil
	case "click", "move":
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: %s takes X Y", ErrBadArguments, cmd)
		}
		x, errX := strconv.ParseFloat(args[0], 32)
		y, errY := strconv.ParseFloat(args[1], 32)
		if errX != nil || errY != nil {
			return nil, fmt.Errorf("%w: %s %s %s", ErrBadArguments, cmd, args[0], args[1])
		}
		if cmd == "move" {
			return []event.Input{{Kind: event.PointerMove, X: float32(x), Y: float32(y), Time: at}}, nil
		}
		return []event.Input{
			{Kind: event.PointerDown, X: float32(x), Y: float32(y), Button: 1, Time: at},
			{Kind: event.PointerUp, X: float32(x), Y: float32(y), Button: 1, Time: at},
		}, nil
	case "user":
		if len(args) == 0 {
			return nil, fmt.Errorf("%w: user takes a name", ErrBadArguments)
		}
		return []event.Input{{Kind: event.User, Name: strings.Join(args, " "), Time: at}}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
}

func press(k event.Key, at time.Time) []event.Input {
	p := event.KeyPress(k, at)
	return p[:]
}

func parseKey(s string) (event.Key, error) {
	if utf8.RuneCountInString(s) == 1 {
		r, _ := utf8.DecodeRuneInString(s)
		return event.Key(r), nil
	}
	n, err := strconv.ParseInt(s, 0, 32)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: key %q", ErrBadArguments, s)
	}
	return event.Key(n), nil
}

func parseSize(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("%w: size %q", ErrBadArguments, s)
	}
	w, errW := strconv.Atoi(ws)
	h, errH := strconv.Atoi(hs)
	if errW != nil || errH != nil || w < 1 || h < 1 {
		return 0, 0, fmt.Errorf("%w: size %q", ErrBadArguments, s)
	}
	return w, h, nil
}

// Reader feeds parsed events from a line stream to emit.
type Reader struct {
	src  io.Reader
	keys Keys
	emit func(event.Input)
	now  func() time.Time
}

func NewReader(src io.Reader, keys Keys, emit func(event.Input)) *Reader {
	return &Reader{src: src, keys: keys, emit: emit, now: time.Now}
}

// Run reads until EOF or ctx is done. A blocked read is only noticed after
// the next line arrives.
func (r *Reader) Run(ctx context.Context) error {
	sc := bufio.NewScanner(r.src)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		evs, err := Parse(sc.Text(), r.keys, r.now())
		if err != nil {
			log.Warn("ignoring input line", "line", sc.Text(), logging.KeyError, err)
			continue
		}
		for _, ev := range evs {
			r.emit(ev)
		}
	}
	return sc.Err()
}
