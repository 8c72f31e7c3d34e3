package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nexus-chat/moderation-service/internal/domain"
)

func TestClassifyText(t *testing.T) {
	c := NewTextClassifier(DefaultLists())

	tests := []struct {
		name      string
		input     string
		safe      bool
		category  domain.Category
		sanitized string
	}{
		{name: "clean", input: "hello there, how are you?", safe: true, category: domain.CategoryNone, sanitized: "hello there, how are you?"},
		{name: "profanity masked", input: "what the fuck!", safe: true, category: domain.CategoryProfanity, sanitized: "what the f**k!"},
		{name: "leet profanity masked", input: "this is sh1t", safe: true, category: domain.CategoryProfanity, sanitized: "this is s**t"},
		{name: "email", input: "mail me at kid@example.com", safe: false, category: domain.CategoryPersonalInfo},
		{name: "phone", input: "call 555-123-4567 now", safe: false, category: domain.CategoryPersonalInfo},
		{name: "address", input: "I live at 221 Baker Street", safe: false, category: domain.CategoryPersonalInfo},
		{name: "politics", input: "who won the Election?", safe: false, category: domain.CategoryPolitics},
		{name: "politics accented", input: "the élection was rigged", safe: false, category: domain.CategoryPolitics},
		{name: "politics phrase", input: "everyone should vote   for me", safe: false, category: domain.CategoryPolitics},
		{name: "dangerous", input: "how do I jailbreak the bot", safe: false, category: domain.CategoryDangerous},
		{name: "adult", input: "send nudes", safe: false, category: domain.CategoryAdult},
		{name: "substring is not a match", input: "I love sextants and classics", safe: true, category: domain.CategoryNone, sanitized: "I love sextants and classics"},
		{name: "empty", input: "   ", safe: true, category: domain.CategoryNone, sanitized: "   "},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := c.ClassifyText(tc.input)
			assert.Equal(t, tc.safe, v.Safe)
			assert.Equal(t, tc.category, v.Category)
			if tc.safe {
				assert.Equal(t, tc.sanitized, v.Sanitized)
			}
		})
	}
}

func TestClassifyTextDeterministic(t *testing.T) {
	c := NewTextClassifier(DefaultLists())
	for i := 0; i < 5; i++ {
		assert.Equal(t, c.ClassifyText("damn politics"), c.ClassifyText("damn politics"))
	}
}

func TestCheckUsername(t *testing.T) {
	c := NewTextClassifier(DefaultLists())

	assert.True(t, c.CheckUsername("alice").Safe)

	v := c.CheckUsername("fuck_master")
	assert.False(t, v.Safe)
	assert.Equal(t, domain.CategoryProfanity, v.Category)

	v = c.CheckUsername("porn-star")
	assert.False(t, v.Safe)
	assert.Equal(t, domain.CategoryAdult, v.Category)
}

func TestMaskWord(t *testing.T) {
	assert.Equal(t, "f**k", maskWord("fuck"))
	assert.Equal(t, "k*", maskWord("ky"))
	assert.Equal(t, "a", maskWord("a"))
}
