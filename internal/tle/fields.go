package tle

import (
	"strconv"
	"strings"

	"github.com/madddiyarn/regulus/internal/errors"
)

// LineLength is the fixed width of both element set lines.
const LineLength = 69

// Checksum returns the modulo-10 checksum of the first 68 columns of line.
// Digits count their value and minus signs count one.
func Checksum(line string) int {
	sum := 0
	for _, c := range line[:min(len(line), LineLength-1)] {
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

// field is one numeric column range read by the SGP4 initializer. text
// rebuilds the string exactly as the initializer does before parsing.
type field struct {
	name  string
	line  int
	isInt bool
	text  func(l string) string
}

// squeeze drops the first two blanks, the way SGP4 record parsing does.
func squeeze(s string) string { return strings.Replace(s, " ", "", 2) }

// exponent rebuilds an implied-decimal field such as " 10270-3".
func exponent(l string, sign, exp int) string {
	return squeeze(l[sign:sign+1] + "." + l[sign+1:exp] + "e" + l[exp:exp+2])
}

var sgp4Fields = []field{
	{"catalog number", 1, true, func(l string) string { return strings.TrimSpace(l[2:7]) }},
	{"epoch year", 1, true, func(l string) string { return l[18:20] }},
	{"epoch day", 1, false, func(l string) string { return l[20:32] }},
	{"mean motion derivative", 1, false, func(l string) string { return squeeze(l[33:43]) }},
	{"mean motion second derivative", 1, false, func(l string) string { return exponent(l, 44, 50) }},
	{"bstar", 1, false, func(l string) string { return exponent(l, 53, 59) }},
	{"inclination", 2, false, func(l string) string { return squeeze(l[8:16]) }},
	{"right ascension", 2, false, func(l string) string { return squeeze(l[17:25]) }},
	{"eccentricity", 2, false, func(l string) string { return "." + l[26:33] }},
	{"argument of perigee", 2, false, func(l string) string { return squeeze(l[34:42]) }},
	{"mean anomaly", 2, false, func(l string) string { return squeeze(l[43:51]) }},
	{"mean motion", 2, false, func(l string) string { return squeeze(l[52:63]) }},
}

// ValidateLines checks that line1 and line2 form a well-formed element set:
// fixed width, line numbers, checksums, and every numeric field the SGP4
// initializer parses. The initializer exits the process on a field it cannot
// parse, so nothing may reach it without passing here.
func ValidateLines(line1, line2 string) error {
	for i, l := range []string{line1, line2} {
		n := i + 1
		if len(l) != LineLength {
			return errors.InvalidArgumentf("line %d is %d columns, want %d", n, len(l), LineLength)
		}
		if l[0] != byte('0'+n) || l[1] != ' ' {
			return errors.InvalidArgumentf("line %d does not start with %q", n, string(rune('0'+n))+" ")
		}
		want := l[LineLength-1]
		if want < '0' || want > '9' {
			return errors.InvalidArgumentf("line %d checksum %q is not a digit", n, want)
		}
		if got := Checksum(l); got != int(want-'0') {
			return errors.InvalidArgumentf("line %d checksum %d, computed %d", n, want-'0', got)
		}
	}

	for _, f := range sgp4Fields {
		l := line1
		if f.line == 2 {
			l = line2
		}
		s := f.text(l)
		var err error
		if f.isInt {
			_, err = strconv.ParseInt(s, 10, 0)
		} else {
			_, err = strconv.ParseFloat(s, 64)
		}
		if err != nil {
			return errors.InvalidArgumentf("line %d %s %q is not a number", f.line, f.name, s)
		}
	}
	return nil
}
