package capture

import (
	"regexp"
	"strings"
)

// pager residue left in the stream after the continuation key was sent,
// including the backspace or ANSI erase sequences some firmware emits.
var (
	pagerResidue = regexp.MustCompile(`(?i)[ \t]*(-- ?more ?--(,[^\n\x1b]*?control-c)?|---\(more[^)]*\)---)[ \t]*`)
	eraseSeq     = regexp.MustCompile(`\x08+|\x1b\[[0-9;]*[A-Za-z]`)
)

// normalize converts CRLF and lone CR line endings to LF and removes pager
// residue.
func normalize(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = eraseSeq.ReplaceAllString(s, "")

	return pagerResidue.ReplaceAllString(s, "")
}

// countLines counts lines the way the validation thresholds expect: a
// trailing newline does not open a new line.
func countLines(s string) int {
	if s == "" {
		return 0
	}

	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}

	return n
}

// stripEchoes drops lines that echo commands sent to the device.
func stripEchoes(s string, prefixes []string) string {
	lines := strings.Split(s, "\n")
	kept := make([]string, 0, len(lines))

	for _, line := range lines {
		if hasAnyPrefix(line, prefixes) {
			continue
		}

		kept = append(kept, line)
	}

	return strings.Join(kept, "\n")
}

func hasAnyPrefix(line string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}

	return false
}

// lastLine returns the final non blank line of raw device output.
func lastLine(s string) string {
	lines := strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == '\r' })
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return lines[i]
		}
	}

	return ""
}
