package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeywords_CapsAtTenInFirstSeenOrder(t *testing.T) {
	words := []string{
		"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel", "india", "juliet",
		"kilo", "lima", "mike", "november", "oscar", "papa", "quebec", "romeo", "sierra", "tango",
		"uniform", "victor", "whiskey", "xray", "yankee", "zulu", "anchor", "bridge", "castle", "dragon",
	}
	text := "The and " + strings.Join(words[:15], " ") + " the and of " + strings.Join(words[15:], " ")

	got := Keywords(text)
	assert.Equal(t, words[:10], got)
}

func TestKeywords_Filters(t *testing.T) {
	got := Keywords("The Senate and the House WERE debating; senate votes, votes! Tax cut for all would pass")
	assert.Equal(t, []string{"senate", "house", "debating", "votes", "pass"}, got)
}

func TestKeywords_KeepsCommonLongWords(t *testing.T) {
	got := Keywords("This deal came from their side, said the minister")
	assert.Equal(t, []string{"this", "deal", "came", "from", "their", "side", "said", "minister"}, got)
}

func TestKeywords_Empty(t *testing.T) {
	assert.Empty(t, Keywords("   "))
	assert.Empty(t, Keywords("a an the of"))
}
