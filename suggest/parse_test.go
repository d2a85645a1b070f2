package suggest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStripsMarkers(t *testing.T) {
	text := `Here are some follow-up questions:
1. What's the best time to visit Rome?
2) How much is a train pass?
- Are there **cheap** hostels in Florence?
(4) "Which museums need booking?"`

	assert.Equal(t, []string{
		"What's the best time to visit Rome?",
		"How much is a train pass?",
		"Are there cheap hostels in Florence?",
		"Which museums need booking?",
	}, Parse(text, MaxSuggestions))
}

func TestParseCapsAndDedups(t *testing.T) {
	text := "• Visa rules?\n* visa rules?\n\nWeather in May?\nQ3: Local food?\nTipping customs?\nSIM cards?"

	assert.Equal(t, []string{"Visa rules?", "Weather in May?", "Local food?", "Tipping customs?"}, Parse(text, 4))
	assert.Equal(t, []string{"Visa rules?"}, Parse(text, 1))
}

func TestParseKeepsLeadingNumbersThatAreContent(t *testing.T) {
	assert.Equal(t, []string{"10 days in Japan: too short?"}, Parse("10 days in Japan: too short?", 4))
}

func TestParseKeepsTimesAndDecimals(t *testing.T) {
	text := "1. 10:30 flights to Rome?\n2) 1.5 days in Pisa enough?\n3: Day trips from Naples?"

	assert.Equal(t, []string{
		"10:30 flights to Rome?",
		"1.5 days in Pisa enough?",
		"Day trips from Naples?",
	}, Parse(text, MaxSuggestions))
	assert.Equal(t, []string{"10:30 flights to Rome?"}, Parse("10:30 flights to Rome?", 4))
}

func TestParseDropsPreambleWithoutColon(t *testing.T) {
	text := "Here are some questions you might ask\n- Best beaches near Lisbon?\n- Is Sintra a day trip?"

	assert.Equal(t, []string{"Best beaches near Lisbon?", "Is Sintra a day trip?"}, Parse(text, 4))
	assert.Equal(t, []string{"Tell me about Porto"}, Parse("Tell me about Porto", 4))
}

func TestParseNothingUsable(t *testing.T) {
	assert.Equal(t, []string{}, Parse("", 4))
	assert.Equal(t, []string{}, Parse("\n  \n-\n1.\nSuggestions:", 4))
}
