package core

import (
	"fmt"

	"github.com/kpfaulkner/pixmap-go/pixelmap"
)

type StateKind int

const (
	StateUnresolved StateKind = iota
	StateSourceIncomplete
	StateHeaderParsed
	StateBodyReady
	StateFailed
)

var stateNames = []string{"Unresolved", "SourceIncomplete", "HeaderParsed", "BodyReady", "Failed"}

func (k StateKind) String() string {
	if k < 0 || int(k) >= len(stateNames) {
		return fmt.Sprintf("StateKind(%d)", int(k))
	}
	return stateNames[k]
}

// Terminal reports whether no further transition can happen.
func (k StateKind) Terminal() bool {
	return k == StateBodyReady || k == StateFailed
}

// DecodeState is a snapshot of a pipeline. Info is set once the header has
// been parsed and Err only when Kind is StateFailed.
type DecodeState struct {
	Kind StateKind
	Info *pixelmap.ImageInfo
	Err  error
}

func (s DecodeState) String() string {
	switch {
	case s.Err != nil:
		return fmt.Sprintf("%s (%v)", s.Kind, s.Err)
	case s.Info != nil:
		return fmt.Sprintf("%s %dx%d %s", s.Kind, s.Info.Width(), s.Info.Height(), s.Info.PixelFormat)
	}
	return s.Kind.String()
}
