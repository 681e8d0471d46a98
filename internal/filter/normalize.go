package filter

import (
	"regexp"
	"strings"
)

// Views are the normalized renderings every detector chooses from.
type Views struct {
	// Plain is lowercased with whitespace collapsed.
	Plain string
	// Deobfuscated turns spelled digits into digits, joins single-digit
	// runs and rewrites at/dot tokens into @ and '.'. A literal '.' only
	// loses its spacing when whitespace precedes it.
	Deobfuscated string
	// Leet undoes common character substitutions for keyword matching.
	Leet string
	// Squashed is Leet with everything but letters removed.
	Squashed string
}

// Rewritten at/dot tokens are marked with private-use runes until spacing
// is collapsed, so a literal sentence break such as "good. me" survives.
const (
	atMark  = "\uE000"
	dotMark = "\uE001"
)

var (
	numberWords = map[string]string{
		"zero": "0", "one": "1", "two": "2", "three": "3", "four": "4",
		"five": "5", "six": "6", "seven": "7", "eight": "8", "nine": "9",
	}

	numberWordPattern   = regexp.MustCompile(`\b(?:zero|one|two|three|four|five|six|seven|eight|nine)\b`)
	singleDigitRun      = regexp.MustCompile(`\b\d(?:[\s-]+\d\b)+`)
	bracketedAt         = regexp.MustCompile(`[(\[{<]\s*(?:at|@)\s*[)\]}>]`)
	bracketedDot        = regexp.MustCompile(`[(\[{<]\s*(?:dot|\.)\s*[)\]}>]`)
	wordAt              = regexp.MustCompile(`\bat\b`)
	wordDot             = regexp.MustCompile(`\bdot\b`)
	rewrittenSymbol     = regexp.MustCompile(`\s*([\x{E000}\x{E001}])\s*`)
	spacedSymbol        = regexp.MustCompile(`\s+([@.])\s*`)
	symbolRestorer      = strings.NewReplacer(atMark, "@", dotMark, ".")
	digitSeparators     = regexp.MustCompile(`[\s-]+`)
	leetReplacer        = strings.NewReplacer("0", "o", "1", "i", "3", "e", "4", "a", "5", "s", "7", "t", "$", "s", "@", "a", "|", "l")
	nonLetterSequence   = regexp.MustCompile(`[^a-z]+`)
	whitespaceCollapser = regexp.MustCompile(`\s+`)
)

// Normalize builds every view of text.
func Normalize(text string) Views {
	plain := strings.TrimSpace(whitespaceCollapser.ReplaceAllString(strings.ToLower(text), " "))
	leet := leetReplacer.Replace(plain)
	return Views{
		Plain:        plain,
		Deobfuscated: deobfuscate(plain),
		Leet:         leet,
		Squashed:     nonLetterSequence.ReplaceAllString(leet, ""),
	}
}

func deobfuscate(plain string) string {
	out := numberWordPattern.ReplaceAllStringFunc(plain, func(word string) string {
		return numberWords[word]
	})
	out = singleDigitRun.ReplaceAllStringFunc(out, func(run string) string {
		return digitSeparators.ReplaceAllString(run, "")
	})
	out = bracketedAt.ReplaceAllString(out, atMark)
	out = bracketedDot.ReplaceAllString(out, dotMark)
	out = wordAt.ReplaceAllString(out, atMark)
	out = wordDot.ReplaceAllString(out, dotMark)
	out = rewrittenSymbol.ReplaceAllString(out, "$1")
	out = spacedSymbol.ReplaceAllString(out, "$1")
	return symbolRestorer.Replace(out)
}

// countNumberWords reports how many spelled-out digits appear in plain.
func countNumberWords(plain string) int {
	return len(numberWordPattern.FindAllStringIndex(plain, -1))
}

// digitRatio is the share of digits among non-space characters.
func digitRatio(s string) (digits int, ratio float64) {
	var total int
	for _, r := range s {
		if r == ' ' {
			continue
		}
		total++
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if total == 0 {
		return 0, 0
	}
	return digits, float64(digits) / float64(total)
}
