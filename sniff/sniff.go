// Package sniff identifies an image format from the leading bytes of a source.
package sniff

import (
	"errors"

	"github.com/kpfaulkner/pixmap-go/imgerr"
	"github.com/kpfaulkner/pixmap-go/pxio"
)

const (
	MimePixmap = "image/x-pixmap"
	MimePNG    = "image/png"
	MimeJPEG   = "image/jpeg"
	MimeGIF    = "image/gif"
	MimeWEBP   = "image/webp"
	MimeBMP    = "image/bmp"
	MimeTIFF   = "image/tiff"
	MimeJXL    = "image/jxl"
	MimeHEIF   = "image/heif"
	MimeAVIF   = "image/avif"
	MimeICO    = "image/x-icon"
)

// Rule matches Magic against the start of the data. A '?' in Magic matches any byte.
type Rule struct {
	ID    string
	Magic string
}

// DefaultRules is ordered; the first full match wins. Every pattern must be
// unambiguous on its own length.
var DefaultRules = []Rule{
	{ID: MimePixmap, Magic: "\x89PXM\r\n\x1a\n"},
	{ID: MimePNG, Magic: "\x89PNG\r\n\x1a\n"},
	{ID: MimeJPEG, Magic: "\xff\xd8\xff"},
	{ID: MimeGIF, Magic: "GIF87a"},
	{ID: MimeGIF, Magic: "GIF89a"},
	{ID: MimeWEBP, Magic: "RIFF????WEBP"},
	{ID: MimeBMP, Magic: "BM????\x00\x00\x00\x00"},
	{ID: MimeTIFF, Magic: "II*\x00"},
	{ID: MimeTIFF, Magic: "MM\x00*"},
	{ID: MimeJXL, Magic: "\x00\x00\x00\x0cJXL \r\n\x87\n"},
	{ID: MimeJXL, Magic: "\xff\x0a"},
	{ID: MimeICO, Magic: "\x00\x00\x01\x00"},
	{ID: MimeHEIF, Magic: "????ftypheic"},
	{ID: MimeHEIF, Magic: "????ftypheix"},
	{ID: MimeHEIF, Magic: "????ftypmif1"},
	{ID: MimeAVIF, Magic: "????ftypavif"},
}

type Sniffer struct {
	rules  []Rule
	maxLen int
}

func NewSniffer(rules []Rule) *Sniffer {
	s := &Sniffer{}
	for _, r := range rules {
		s.AddRule(r)
	}
	return s
}

var defaultSniffer = NewSniffer(DefaultRules)

// Default returns the sniffer over DefaultRules.
func Default() *Sniffer {
	return defaultSniffer
}

// AddRule appends a rule after the existing ones.
func (s *Sniffer) AddRule(r Rule) {
	s.rules = append(s.rules, r)
	if len(r.Magic) > s.maxLen {
		s.maxLen = len(r.Magic)
	}
}

// PrefixLen is the number of bytes the sniffer may look at.
func (s *Sniffer) PrefixLen() int {
	return s.maxLen
}

type result int

const (
	noMatch result = iota
	partial
	full
)

func match(magic string, b []byte) result {
	n := len(magic)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if magic[i] != '?' && magic[i] != b[i] {
			return noMatch
		}
	}
	if len(b) < len(magic) {
		return partial
	}
	return full
}

// Sniff inspects the start of src without moving its read cursor and returns
// the format of the first matching rule. While an incomplete source is too
// short to decide between rules, the error is imgerr.SourceIncomplete.
func (s *Sniffer) Sniff(src pxio.ByteSource) (string, bool, error) {
	n := int64(s.maxLen)
	if src.Size() < n {
		n = src.Size()
	}
	data := make([]byte, n)
	read, err := src.ReadAt(data, 0)
	if err != nil && imgerr.KindOf(err) == imgerr.IoAbnormal {
		return "", false, err
	}
	return s.SniffBytes(data[:read], src.IsComplete())
}

// SniffBytes matches data directly. complete reports that no more bytes can follow.
func (s *Sniffer) SniffBytes(data []byte, complete bool) (string, bool, error) {
	for _, r := range s.rules {
		switch match(r.Magic, data) {
		case full:
			return r.ID, true, nil
		case partial:
			if !complete {
				// an earlier rule still decides once more bytes arrive
				return "", false, imgerr.New(imgerr.SourceIncomplete, "sniff", "need %d bytes to match %s, have %d", len(r.Magic), r.ID, len(data))
			}
		}
	}
	return "", false, nil
}

// IsIncomplete reports whether err only means more bytes are needed.
func IsIncomplete(err error) bool {
	return errors.Is(err, imgerr.ErrSourceIncomplete)
}
