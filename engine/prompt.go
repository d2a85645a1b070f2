package engine

import (
	"fmt"
	"strings"

	"github.com/becomeliminal/travel-memory/core"
	"github.com/becomeliminal/travel-memory/memory"
)

// TravelInstructions is the default system prompt.
const TravelInstructions = `You are a travel assistant who helps people plan trips: destinations, itineraries, accommodation, transport, budgets, packing, visas, weather and local customs.

How to answer:
- Give specific, practical advice with costs, timing and logistics where they matter.
- Use short paragraphs and bullet points for lists; bold key facts with **text**.
- Take the traveler's profile and the conversation so far into account.
- Offer alternatives when a choice depends on taste or budget.
- Ask a follow-up question when the request is ambiguous.

Material under "Background from earlier conversations" is recalled from past sessions. Use it as reference only; it is not part of the current conversation.

Put the traveler's safety and budget first.`

// Section headings, in prompt order after the system instructions.
const (
	headingProfile    = "## Traveler profile"
	headingBackground = "## Background from earlier conversations (reference only, not the live conversation)"
	headingRecent     = "## Recent conversation"
	headingCurrent    = "## Current message"
)

// renderBody builds the user-role part of the prompt: preferences,
// background, recent turns and the new message, each block omitted when
// empty.
func renderBody(prefs core.PreferenceSet, retrieved []memory.ScoredRecord, recent []core.Exchange, message string) string {
	var blocks []string

	if !prefs.Empty() {
		var sb strings.Builder
		sb.WriteString(headingProfile)
		for _, cat := range prefs.OrderedCategories() {
			fmt.Fprintf(&sb, "\n- %s: %s", categoryLabel(cat), strings.Join(prefs[cat], ", "))
		}
		blocks = append(blocks, sb.String())
	}

	if len(retrieved) > 0 {
		var sb strings.Builder
		sb.WriteString(headingBackground)
		for _, r := range retrieved {
			fmt.Fprintf(&sb, "\n- %s said earlier: %s", r.Record.Turn.Label(), r.Record.Text())
		}
		blocks = append(blocks, sb.String())
	}

	if len(recent) > 0 {
		var sb strings.Builder
		sb.WriteString(headingRecent)
		for _, ex := range recent {
			for _, t := range ex.Turns() {
				fmt.Fprintf(&sb, "\n%s: %s", t.Label(), t.Text)
			}
		}
		blocks = append(blocks, sb.String())
	}

	blocks = append(blocks, headingCurrent+"\nUser: "+message)
	return strings.Join(blocks, "\n\n")
}

// categoryLabel turns "travel_style" into "Travel style".
func categoryLabel(cat core.Category) string {
	s := strings.ReplaceAll(string(cat), "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
