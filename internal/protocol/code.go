package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hifilink/hifilink/internal/device"
)

// ResolveCode turns a command into a numeric code of the given bit width.
//
// The command itself is tried first as a literal: for 6-bit codes a string
// of exactly six '0'/'1' characters is binary, then 0x hex, 0b binary and
// plain decimal are accepted. Otherwise the command is looked up in mapping,
// whose values may use any of the same literal forms. The result is masked to
// bits.
func ResolveCode(command string, mapping map[string]device.CodeLiteral, bits int) (int, error) {
	mask := uint64(1)<<bits - 1

	if v, ok := parseLiteral(command, bits); ok {
		return int(v & mask), nil
	}
	if lit, ok := mapping[command]; ok {
		if v, ok := parseLiteral(string(lit), bits); ok {
			return int(v & mask), nil
		}
		return 0, fmt.Errorf("%w: %q maps to unusable code %q", ErrUnknownCommand, command, string(lit))
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCommand, command)
}

func parseLiteral(s string, bits int) (uint64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if bits == 6 && isBinaryWord(s, 6) {
		v, err := strconv.ParseUint(s, 2, 64)
		return v, err == nil
	}

	var (
		v   uint64
		err error
	)
	switch {
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		v, err = strconv.ParseUint(s[2:], 16, 64)
	case strings.HasPrefix(s, "0b"), strings.HasPrefix(s, "0B"):
		v, err = strconv.ParseUint(s[2:], 2, 64)
	case isDigits(s):
		v, err = strconv.ParseUint(s, 10, 64)
	default:
		return 0, false
	}
	return v, err == nil
}

func isBinaryWord(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, c := range s {
		if c != '0' && c != '1' {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
