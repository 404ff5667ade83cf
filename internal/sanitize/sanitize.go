// Package sanitize cleans raw model output before it is displayed or fed
// back into a character's memory.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// quoteRunes are stripped in matching outer layers.
var quoteRunes = map[rune]bool{
	'"': true, '\'': true,
	'“': true, '”': true, '„': true,
	'‘': true, '’': true,
	'«': true, '»': true,
}

var (
	// "<word>: " at the very start of the text.
	speakerTag = regexp.MustCompile(`^\s*[\p{L}\p{N}_'-]+:[ \t]+`)
	// A line carrying nothing but "<word>:".
	speakerTagLine = regexp.MustCompile(`^\s*[\p{L}\p{N}_'-]+:\s*$`)
)

// Clean strips wrapping quotes, leading lines that only repeat the speaker's
// name, repeated "Name:" prefixes and leading blank lines. An empty name skips
// the name rules. Clean(Clean(x, n), n) == Clean(x, n).
func Clean(raw, name string) string {
	name = strings.TrimSpace(name)
	var nameLine, namePrefix *regexp.Regexp
	if name != "" {
		quoted := regexp.QuoteMeta(name)
		nameLine = regexp.MustCompile(`(?i)^\s*` + quoted + `\s*:?\s*$`)
		namePrefix = regexp.MustCompile(`(?i)^\s*(?:` + quoted + `\s*:\s*)+`)
	}

	s := raw
	for {
		next := cleanOnce(s, nameLine, namePrefix)
		// Every pass only removes text, so this terminates.
		if next == s {
			return next
		}
		s = next
	}
}

// ForMemory is the name-agnostic variant used before text enters a memory
// list: it also removes any leading "<word>: " speaker tag.
func ForMemory(text string) string {
	s := text
	for {
		next := dropLeadingLines(s, speakerTagLine)
		next = speakerTag.ReplaceAllString(next, "")
		next = Clean(next, "")
		if next == s {
			return next
		}
		s = next
	}
}

// WordCount returns the number of whitespace-separated tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

func cleanOnce(s string, nameLine, namePrefix *regexp.Regexp) string {
	s = stripQuotes(strings.TrimSpace(s))
	if nameLine != nil {
		s = dropLeadingLines(s, nameLine)
		s = namePrefix.ReplaceAllString(s, "")
	}
	s = dropLeadingLines(s, nil)
	return strings.TrimSpace(s)
}

func stripQuotes(s string) string {
	for {
		first, fw := utf8.DecodeRuneInString(s)
		last, lw := utf8.DecodeLastRuneInString(s)
		if len(s) < fw+lw || !quoteRunes[first] || !quoteRunes[last] {
			return s
		}
		s = strings.TrimSpace(s[fw : len(s)-lw])
	}
}

// dropLeadingLines removes leading blank lines and, when match is set,
// leading lines it matches.
func dropLeadingLines(s string, match *regexp.Regexp) string {
	for s != "" {
		line, rest, found := strings.Cut(s, "\n")
		blank := strings.TrimSpace(line) == ""
		if !blank && (match == nil || !match.MatchString(line)) {
			return s
		}
		if !found {
			return ""
		}
		s = rest
	}
	return s
}
