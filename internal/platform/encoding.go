package platform

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// DefaultLegacyVerbs are the built-in cmd.exe verbs that write the OEM code
// page instead of UTF-8.
var DefaultLegacyVerbs = []string{
	"dir", "copy", "move", "del", "erase", "ren", "rename",
	"type", "xcopy", "md", "mkdir", "rd", "rmdir", "tree",
}

var codePages = map[string]*charmap.Charmap{
	"cp437":        charmap.CodePage437,
	"cp850":        charmap.CodePage850,
	"cp852":        charmap.CodePage852,
	"cp855":        charmap.CodePage855,
	"cp866":        charmap.CodePage866,
	"windows-1250": charmap.Windows1250,
	"windows-1251": charmap.Windows1251,
	"windows-1252": charmap.Windows1252,
	"koi8-r":       charmap.KOI8R,
}

// LookupCodePage returns the charmap registered under name.
func LookupCodePage(name string) (*charmap.Charmap, bool) {
	cm, ok := codePages[strings.ToLower(name)]
	return cm, ok
}

// EncodingPolicy decides how raw process output becomes text.
//
// Stdout uses a static verb allowlist: only commands whose first word is a
// legacy verb are decoded with the legacy code page. Stderr uses a content
// heuristic: decode as UTF-8, and re-decode with the legacy code page only if
// that produced replacement characters and no runes of the target script.
// The heuristic is best effort and can misfire on short ASCII-only text.
type EncodingPolicy struct {
	Legacy encoding.Encoding // nil disables legacy decoding entirely
	Target *unicode.RangeTable
	verbs  map[string]bool
}

// NewEncodingPolicy builds a policy. A nil legacy encoding yields a plain
// UTF-8 policy.
func NewEncodingPolicy(legacy encoding.Encoding, target *unicode.RangeTable, verbs []string) *EncodingPolicy {
	if len(verbs) == 0 {
		verbs = DefaultLegacyVerbs
	}
	p := &EncodingPolicy{
		Legacy: legacy,
		Target: target,
		verbs:  make(map[string]bool, len(verbs)),
	}
	for _, v := range verbs {
		p.verbs[strings.ToLower(v)] = true
	}
	return p
}

// utf8Policy is used where the shell always emits UTF-8.
func utf8Policy() *EncodingPolicy {
	return NewEncodingPolicy(nil, nil, nil)
}

// IsLegacyVerb reports whether command starts with an allowlisted verb.
func (p *EncodingPolicy) IsLegacyVerb(command string) bool {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return false
	}
	verb := strings.ToLower(fields[0])
	verb = strings.TrimSuffix(verb, ".exe")
	verb = strings.TrimSuffix(verb, ".com")
	return p.verbs[verb]
}

// StdoutDecoder returns a decoder for the stdout of command.
func (p *EncodingPolicy) StdoutDecoder(command string) *Decoder {
	if p.Legacy != nil && p.IsLegacyVerb(command) {
		return &Decoder{mode: modeLegacy, policy: p}
	}
	return &Decoder{mode: modeUTF8, policy: p}
}

// StderrDecoder returns a decoder for stderr.
func (p *EncodingPolicy) StderrDecoder() *Decoder {
	if p.Legacy != nil {
		return &Decoder{mode: modeHeuristic, policy: p}
	}
	return &Decoder{mode: modeUTF8, policy: p}
}

type decodeMode int

const (
	modeUTF8 decodeMode = iota
	modeLegacy
	modeHeuristic
)

// Decoder turns successive chunks of one stream into text. A multi-byte
// UTF-8 sequence split across two chunks is held back and completed by the
// next chunk. A Decoder is not safe for concurrent use.
type Decoder struct {
	mode   decodeMode
	policy *EncodingPolicy
	carry  []byte
}

// Decode converts the next chunk.
func (d *Decoder) Decode(chunk []byte) string {
	if d.mode == modeLegacy {
		return d.legacy(chunk)
	}

	buf := chunk
	if len(d.carry) > 0 {
		buf = append(d.carry, chunk...)
		d.carry = nil
	}
	n := incompleteSuffix(buf)
	text := strings.ToValidUTF8(string(buf[:len(buf)-n]), string(utf8.RuneError))

	if d.mode == modeHeuristic && strings.ContainsRune(text, utf8.RuneError) && !d.hasTarget(text) {
		return d.legacy(buf)
	}
	if n > 0 {
		d.carry = append([]byte(nil), buf[len(buf)-n:]...)
	}
	return text
}

// Flush returns any bytes still held back, decoded as best as possible.
func (d *Decoder) Flush() string {
	if len(d.carry) == 0 {
		return ""
	}
	rest := d.carry
	d.carry = nil
	if d.mode == modeHeuristic {
		return d.legacy(rest)
	}
	return strings.ToValidUTF8(string(rest), string(utf8.RuneError))
}

func (d *Decoder) legacy(b []byte) string {
	if d.policy.Legacy == nil {
		return strings.ToValidUTF8(string(b), string(utf8.RuneError))
	}
	out, err := d.policy.Legacy.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), string(utf8.RuneError))
	}
	return string(out)
}

func (d *Decoder) hasTarget(s string) bool {
	if d.policy.Target == nil {
		return false
	}
	for _, r := range s {
		if unicode.Is(d.policy.Target, r) {
			return true
		}
	}
	return false
}

// incompleteSuffix returns the length of a truncated UTF-8 sequence at the
// end of b, or 0 if b ends on a rune boundary.
func incompleteSuffix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax+1; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return 0
		}
		return len(b) - i
	}
	return 0
}
