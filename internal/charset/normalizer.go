// Package charset turns raw log bytes into valid UTF-8 text.
//
// Buffers starting with a UTF-16 byte-order mark go through the UTF-8 decoder
// with replacement characters. Anything that is not valid UTF-8 is decoded with
// a single configured legacy code page. Decoding never fails; invalid sequences
// become U+FFFD and are reported with a warning log line.
package charset

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// DefaultLegacyEncoding is used when bytes are not valid UTF-8
const DefaultLegacyEncoding = "windows-1251"

// Kind is the decoding path chosen for a buffer
type Kind int

const (
	KindUTF8 Kind = iota
	KindUTF16Fallback
	KindLegacy
)

func (k Kind) String() string {
	switch k {
	case KindUTF8:
		return "utf-8"
	case KindUTF16Fallback:
		return "utf-16-bom-as-utf-8"
	case KindLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

var (
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Normalizer decodes byte buffers into text
type Normalizer struct {
	legacy     encoding.Encoding
	legacyName string
}

// NewNormalizer creates a normalizer falling back to the named legacy encoding
// (any WHATWG label, e.g. "windows-1251", "cp1252", "koi8-r")
func NewNormalizer(legacyName string) (*Normalizer, error) {
	if legacyName == "" {
		legacyName = DefaultLegacyEncoding
	}
	enc, err := htmlindex.Get(legacyName)
	if err != nil {
		return nil, fmt.Errorf("unknown legacy encoding %q: %w", legacyName, err)
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		name = legacyName
	}
	return &Normalizer{legacy: enc, legacyName: name}, nil
}

// LegacyName returns the canonical name of the fallback encoding
func (n *Normalizer) LegacyName() string {
	return n.legacyName
}

// Detect picks the decoding path for buf
func (n *Normalizer) Detect(buf []byte) Kind {
	if bytes.HasPrefix(buf, bomUTF16LE) || bytes.HasPrefix(buf, bomUTF16BE) {
		return KindUTF16Fallback
	}
	if utf8.Valid(buf) {
		return KindUTF8
	}
	return KindLegacy
}

// Decode converts buf to a string. It never fails.
func (n *Normalizer) Decode(buf []byte) string {
	kind := n.Detect(buf)

	var dec *encoding.Decoder
	switch kind {
	case KindLegacy:
		dec = n.legacy.NewDecoder()
	default:
		// Strips a UTF-8 BOM and replaces invalid sequences with U+FFFD
		dec = unicode.UTF8BOM.NewDecoder()
	}

	out, err := dec.Bytes(buf)
	if err != nil {
		// x/text decoders replace rather than fail
		log.Warn().
			Err(err).
			Str("encoding", kind.String()).
			Msg("Decoder failed, replacing invalid sequences")
		return strings.ToValidUTF8(string(buf), string(utf8.RuneError))
	}

	text := string(out)
	if kind != KindUTF8 && strings.ContainsRune(text, utf8.RuneError) {
		log.Warn().
			Str("encoding", kind.String()).
			Str("legacy", n.legacyName).
			Int("bytes", len(buf)).
			Msg("Invalid characters replaced while decoding")
	}
	return text
}
