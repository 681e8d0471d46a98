package filter

import (
	"regexp"
	"strings"

	"talentchat/backend/internal/config"
)

const tlds = `com|net|org|io|co|uk|me|edu|gov|app|dev|info|biz|us|ca|ly|link|site`

var (
	emailPlain  = regexp.MustCompile(`[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}\b`)
	emailSpaced = regexp.MustCompile(`[a-z0-9._%+-]+\s*@\s*[a-z0-9-]+(?:\s*\.\s*[a-z0-9-]+)*\s*\.\s*(?:` + tlds + `)\b`)
	emailDeob   = regexp.MustCompile(`[a-z0-9._%+-]+@[a-z0-9-]+(?:\.[a-z0-9-]+)*\.(?:` + tlds + `)\b`)

	phonePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`),
		regexp.MustCompile(`\(\d{3}\)\s?\d{3}[-.\s]?\d{4}`),
		regexp.MustCompile(`\+\d{1,3}[-.\s]?\d{3,}`),
		regexp.MustCompile(`\b\d{7,15}\b`),
		regexp.MustCompile(`\b(?:phone|number|cell|mobile|whatsapp|call me at|text me at)\s*(?:is\s*)?:?\s*\d{3,}`),
	}

	urlPatterns = []*regexp.Regexp{
		regexp.MustCompile(`https?://\S+`),
		regexp.MustCompile(`\bwww\.\S+`),
		regexp.MustCompile(`\b[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.(?:` + tlds + `)\b`),
	}
	urlSpacedScheme = regexp.MustCompile(`h\s*t\s*t\s*p\s*s?\s*:\s*/\s*/`)

	handlePattern       = regexp.MustCompile(`(?:^|[^a-z0-9._%+-])@[a-z0-9._]{2,}`)
	handleSpacedPattern = regexp.MustCompile(`(?:^|[^a-z0-9._%+-])@\s+[a-z0-9._]{3,}`)
	handleLabelPattern  = regexp.MustCompile(`\bhandle\s*(?:is\s*)?[:@]\s*[a-z0-9._]{2,}`)

	platformPattern = regexp.MustCompile(`\b(?:instagram|insta|ig|facebook|fb|twitter|whatsapp|whats app|telegram|snapchat|tiktok|tik tok|linkedin|linked in|youtube|discord|wechat|viber|kik|x\.com)\b`)
	// Long platform names are also matched in the squashed view, which
	// defeats separators such as "w.h.a.t.s.a.p.p".
	squashedPlatforms = []string{"whatsapp", "instagram", "telegram", "snapchat", "facebook", "linkedin", "discord", "youtube"}

	offPlatformPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:talk|chat|meet|contact|text|message|speak)\s+(?:me\s+)?(?:outside|off)\s+(?:of\s+)?(?:the\s+)?(?:platform|app|site|here)\b`),
		regexp.MustCompile(`\blet'?s\s+(?:talk|chat|meet|continue)\s+(?:outside|off|elsewhere|privately)\b`),
		regexp.MustCompile(`\b(?:give|send)\s+me\s+your\s+(?:number|phone|email|contact|digits|socials?)\b`),
		regexp.MustCompile(`\bwhat(?:'?s|\s+is)\s+your\s+(?:number|phone|email|contact|insta|ig|whatsapp|snap|snapchat)\b`),
		regexp.MustCompile(`\bcan\s+(?:i|you)\s+(?:have|get)\s+your\s+(?:number|phone|email|contact)\b`),
		regexp.MustCompile(`\b(?:follow|add|find)\s+me\s+on\b`),
		regexp.MustCompile(`\bdm\s+me\b`),
		regexp.MustCompile(`\b(?:call|text|reach|email|message)\s+me\s+(?:at|on)\b`),
		regexp.MustCompile(`\breach\s+out\s+to\s+me\s+(?:at|on)\b`),
		regexp.MustCompile(`\bcheck\s+out\s+my\s+(?:website|site|page)\b`),
		regexp.MustCompile(`\bmy\s+(?:website|site)\s+is\b`),
	}

	contactIntentPattern = regexp.MustCompile(`\b(?:number|phone|cell|mobile|email|e-mail|handle|website|contact|digits|socials?|whatsapp|reach me|call me|text me)\b`)
	fragmentPattern      = regexp.MustCompile(`\b\d{3,6}\b`)
	suspiciousSpacing    = []*regexp.Regexp{
		regexp.MustCompile(`\d\s+\d\s+\d`),
		regexp.MustCompile(`[(\[{<]\s*(?:at|dot)\s*[)\]}>]`),
		regexp.MustCompile(`\b[a-z0-9]+\s+dot\s+[a-z]{2,}\b`),
		regexp.MustCompile(`\b[a-z0-9._]+\s+at\s+[a-z0-9]+\s+dot\b`),
		regexp.MustCompile(`\b(?:[a-z]\s){4,}[a-z]\b`),
	}
	signalTokens = regexp.MustCompile(`\b(?:dot|com|net|org|gmail|yahoo|hotmail|outlook|icloud|proton|www|http|https)\b`)
)

func anyMatch(patterns []*regexp.Regexp, texts ...string) bool {
	for _, text := range texts {
		for _, p := range patterns {
			if p.MatchString(text) {
				return true
			}
		}
	}
	return false
}

func hasEmail(v Views) bool {
	return emailPlain.MatchString(v.Plain) || emailSpaced.MatchString(v.Plain) || emailDeob.MatchString(v.Deobfuscated)
}

func hasPhone(v Views) bool {
	return anyMatch(phonePatterns, v.Plain, v.Deobfuscated)
}

// hasURL ignores domains that are part of an email address.
func hasURL(v Views) bool {
	plain := emailSpaced.ReplaceAllString(emailPlain.ReplaceAllString(v.Plain, " "), " ")
	deob := emailDeob.ReplaceAllString(v.Deobfuscated, " ")
	return anyMatch(urlPatterns, plain, deob) || urlSpacedScheme.MatchString(v.Plain)
}

func hasHandle(v Views) bool {
	plain := emailPlain.ReplaceAllString(v.Plain, " ")
	return handlePattern.MatchString(plain) || handleLabelPattern.MatchString(plain)
}

// hasSpacedHandle only applies to text joined across messages, where an
// "@" may end one message and the name start the next.
func hasSpacedHandle(v Views) bool {
	return hasHandle(v) || handleSpacedPattern.MatchString(emailPlain.ReplaceAllString(v.Plain, " "))
}

func hasPlatform(v Views) bool {
	if platformPattern.MatchString(v.Leet) {
		return true
	}
	for _, name := range squashedPlatforms {
		if strings.Contains(v.Squashed, name) {
			return true
		}
	}
	return false
}

func hasOffPlatform(v Views) bool {
	return anyMatch(offPlatformPatterns, v.Plain, v.Leet)
}

func hasContactIntent(v Views) bool {
	return contactIntentPattern.MatchString(v.Leet)
}

func hasSuspiciousSpacing(v Views) bool {
	return anyMatch(suspiciousSpacing, v.Plain)
}

// mostlyDigits flags short numeric fragments such as "555" or "12 34".
func mostlyDigits(v Views) bool {
	digits, ratio := digitRatio(v.Deobfuscated)
	return digits >= 3 && ratio >= 0.5
}

// hasSignal reports whether a candidate could be part of a split contact
// detail; only then is the rolling buffer consulted.
func hasSignal(v Views, labels []string) bool {
	if len(labels) > 0 {
		return true
	}
	if strings.ContainsAny(v.Deobfuscated, "0123456789@") {
		return true
	}
	return signalTokens.MatchString(v.Plain)
}

// detectCandidate runs the single-message battery. intentNearby reports
// contact intent in the surrounding conversation.
func detectCandidate(v Views, intentNearby bool) []string {
	var labels []string
	add := func(ok bool, label string) {
		if ok {
			labels = append(labels, label)
		}
	}

	add(hasEmail(v), config.PatternEmail)
	add(hasPhone(v), config.PatternPhone)
	add(hasURL(v), config.PatternURL)
	add(hasHandle(v), config.PatternSocialHandle)
	add(hasPlatform(v), config.PatternSocialPlatform)
	add(hasOffPlatform(v), config.PatternOffPlatform)

	intent := hasContactIntent(v)
	add(intent, config.PatternContactIntent)
	add(!contains(labels, config.PatternPhone) &&
		fragmentPattern.MatchString(v.Deobfuscated) &&
		(intent || intentNearby || mostlyDigits(v)), config.PatternNumberFragment)
	add(countNumberWords(v.Plain) >= 3, config.PatternSpelledDigits)
	add(hasSuspiciousSpacing(v), config.PatternSuspiciousSpacing)
	return labels
}

// detectSplit reports shapes completed by the candidate: present in the
// joined conversation, absent from the candidate alone and from the
// earlier messages alone.
func detectSplit(candidate, earlier, joined Views, candidateLabels []string) []string {
	checks := []struct {
		label  string
		strong string
		match  func(Views) bool
	}{
		{config.PatternSplitEmail, config.PatternEmail, hasEmail},
		{config.PatternSplitPhone, config.PatternPhone, hasPhone},
		{config.PatternSplitURL, config.PatternURL, hasURL},
		{config.PatternSplitHandle, config.PatternSocialHandle, hasSpacedHandle},
	}

	var labels []string
	for _, check := range checks {
		if contains(candidateLabels, check.strong) {
			continue
		}
		if check.match(joined) && !check.match(earlier) && !check.match(candidate) {
			labels = append(labels, check.label)
		}
	}
	return labels
}

func contains(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}
