package artifact

import (
	"bytes"
	"regexp"
)

// MatchType describes how closely on-chain code matches the compiled artifact
type MatchType string

const (
	MatchFull    MatchType = "full"
	MatchPartial MatchType = "partial"
	MatchNone    MatchType = "none"
)

// VerifyResult is the outcome of a bytecode comparison
type VerifyResult struct {
	Match     bool
	MatchType MatchType
	Message   string
}

// Unlinked library references: truffle's __Name____ padding or solc's __$hash$__
var linkPlaceholder = regexp.MustCompile(`__[$A-Za-z0-9_]{36}__`)

// StripMetadata removes the CBOR metadata solc appends to runtime code.
// The last two bytes hold the big-endian length of the CBOR map before them.
func StripMetadata(code []byte) []byte {
	if len(code) < 2 {
		return code
	}
	n := int(code[len(code)-2])<<8 | int(code[len(code)-1])
	start := len(code) - 2 - n
	if n == 0 || start < 0 {
		return code
	}
	// CBOR map with 1 to 23 entries
	if head := code[start]; head < 0xa1 || head > 0xb7 {
		return code
	}
	return code[:start]
}

// CodeRange is a span of runtime code, as solc reports immutable references
type CodeRange struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// MaskRanges returns a copy of code with the given ranges zeroed. Ranges
// past the end of code are clipped.
func MaskRanges(code []byte, ranges []CodeRange) []byte {
	if len(ranges) == 0 {
		return code
	}
	out := bytes.Clone(code)
	for _, r := range ranges {
		if r.Start < 0 || r.Length <= 0 || r.Start >= len(out) {
			continue
		}
		clear(out[r.Start:min(r.Start+r.Length, len(out))])
	}
	return out
}

// CompareBytecode compares on-chain runtime code with the artifact's deployedBytecode
func CompareBytecode(onchain, compiled []byte) VerifyResult {
	if bytes.Equal(onchain, compiled) {
		return VerifyResult{
			Match:     true,
			MatchType: MatchFull,
			Message:   "Bytecode matches exactly including metadata",
		}
	}

	if bytes.Equal(StripMetadata(onchain), StripMetadata(compiled)) {
		return VerifyResult{
			Match:     true,
			MatchType: MatchPartial,
			Message:   "Executable code matches, metadata differs",
		}
	}

	return VerifyResult{
		Match:     false,
		MatchType: MatchNone,
		Message:   "Bytecode does not match",
	}
}

// HasLinkReferences reports whether hex-encoded bytecode still has library placeholders
func HasLinkReferences(hexCode string) bool {
	return linkPlaceholder.MatchString(hexCode)
}
