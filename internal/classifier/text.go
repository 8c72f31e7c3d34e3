package classifier

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/nexus-chat/moderation-service/internal/domain"
)

var (
	nonTokenChars = regexp.MustCompile(`[^\pL\pN\s]+`)
	wordChars     = regexp.MustCompile(`[\pL\pN]+`)

	emailPattern   = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phonePattern   = regexp.MustCompile(`(?:\+?\d{1,3}[\s.\-]?)?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}\b`)
	addressPattern = regexp.MustCompile(`(?i)\b\d{1,5}\s+(?:[a-z0-9]+\s+){1,3}(?:street|st|avenue|ave|road|rd|boulevard|blvd|lane|ln|drive|dr|court|ct|way)\b`)

	leetFolder = strings.NewReplacer("0", "o", "1", "i", "3", "e", "4", "a", "5", "s", "7", "t")
)

// Lists holds the word and phrase lists per category. Entries are
// normalized the same way as the input, so accents and case do not matter.
type Lists struct {
	Profanity []string
	Politics  []string
	Dangerous []string
	Adult     []string
}

// DefaultLists returns the built-in rule set.
func DefaultLists() Lists {
	return Lists{
		Profanity: []string{
			"fuck", "fucking", "fucker", "shit", "bullshit", "bitch", "bastard",
			"asshole", "damn", "crap", "dick", "piss", "wtf",
		},
		Politics: []string{
			"politics", "political", "election", "elections", "democrat", "democrats",
			"republican", "republicans", "liberal", "liberals", "conservative",
			"president", "senator", "congress", "parliament", "vote for",
			"left wing", "right wing", "campaign rally",
		},
		Dangerous: []string{
			"bypass", "jailbreak", "make a bomb", "build a bomb", "kill yourself", "kys",
			"self harm", "hack into", "ddos", "steal password", "skip the filter",
			"disable the filter",
		},
		Adult: []string{
			"porn", "porno", "nude", "nudes", "naked", "sex", "sexy", "nsfw", "xxx",
			"onlyfans", "hentai",
		},
	}
}

type rule struct {
	category domain.Category
	phrases  []string
}

func (r rule) matches(padded ...string) bool {
	for _, text := range padded {
		for _, phrase := range r.phrases {
			if strings.Contains(text, phrase) {
				return true
			}
		}
	}
	return false
}

// TextClassifier is the deterministic local rule engine for chat text.
type TextClassifier struct {
	rules     []rule
	profanity map[string]struct{}
}

// NewTextClassifier compiles the lists. Rules are evaluated in the order
// personal info, dangerous, adult, politics; profanity is masked last.
func NewTextClassifier(lists Lists) *TextClassifier {
	c := &TextClassifier{profanity: make(map[string]struct{}, len(lists.Profanity))}
	for _, word := range lists.Profanity {
		c.profanity[normalize(word)] = struct{}{}
	}
	c.rules = []rule{
		{category: domain.CategoryDangerous, phrases: compilePhrases(lists.Dangerous)},
		{category: domain.CategoryAdult, phrases: compilePhrases(lists.Adult)},
		{category: domain.CategoryPolitics, phrases: compilePhrases(lists.Politics)},
	}
	return c
}

// ClassifyText returns a verdict for the message. Profanity alone is safe
// and comes back masked in Sanitized; any other category rejects the message.
func (c *TextClassifier) ClassifyText(text string) domain.Verdict {
	if strings.TrimSpace(text) == "" {
		return domain.Verdict{Safe: true, Category: domain.CategoryNone, Sanitized: text}
	}
	if containsPersonalInfo(text) {
		return domain.UnsafeVerdict(domain.CategoryPersonalInfo)
	}

	tokens := tokenize(text)
	folded := make([]string, len(tokens))
	for i, tok := range tokens {
		folded[i] = leetFolder.Replace(tok)
	}
	plain, leet := pad(tokens), pad(folded)
	for _, r := range c.rules {
		if r.matches(plain, leet) {
			return domain.UnsafeVerdict(r.category)
		}
	}

	if masked, hit := c.mask(text); hit {
		return domain.Verdict{Safe: true, Category: domain.CategoryProfanity, Sanitized: masked}
	}
	return domain.Verdict{Safe: true, Category: domain.CategoryNone, Sanitized: text}
}

// CheckUsername applies the text rules to a display name. Names are not
// masked, so profanity is unsafe here.
func (c *TextClassifier) CheckUsername(name string) domain.Verdict {
	verdict := c.ClassifyText(name)
	if verdict.Category == domain.CategoryProfanity {
		return domain.UnsafeVerdict(domain.CategoryProfanity)
	}
	return verdict
}

func (c *TextClassifier) mask(text string) (string, bool) {
	hit := false
	out := wordChars.ReplaceAllStringFunc(text, func(word string) string {
		if !c.isProfane(word) {
			return word
		}
		hit = true
		return maskWord(word)
	})
	return out, hit
}

func (c *TextClassifier) isProfane(word string) bool {
	n := normalize(word)
	if _, ok := c.profanity[n]; ok {
		return true
	}
	_, ok := c.profanity[leetFolder.Replace(n)]
	return ok
}

// maskWord keeps the first and last rune and stars out the rest.
func maskWord(word string) string {
	r := []rune(word)
	if len(r) <= 2 {
		return string(r[0]) + strings.Repeat("*", len(r)-1)
	}
	return string(r[0]) + strings.Repeat("*", len(r)-2) + string(r[len(r)-1])
}

func containsPersonalInfo(text string) bool {
	return emailPattern.MatchString(text) ||
		phonePattern.MatchString(text) ||
		addressPattern.MatchString(text)
}

func compilePhrases(entries []string) []string {
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		if toks := tokenize(entry); len(toks) > 0 {
			out = append(out, pad(toks))
		}
	}
	return out
}

// pad joins tokens with single spaces and surrounds them with spaces so
// substring checks only match on token boundaries.
func pad(tokens []string) string {
	return " " + strings.Join(tokens, " ") + " "
}

func tokenize(text string) []string {
	return strings.Fields(normalize(nonTokenChars.ReplaceAllString(text, " ")))
}

// normalize lowercases and folds diacritics. The transformer is stateful,
// so a fresh chain is built on every call.
func normalize(s string) string {
	lower := strings.ToLower(s)
	chain := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(chain, lower)
	if err != nil {
		return lower
	}
	return out
}
