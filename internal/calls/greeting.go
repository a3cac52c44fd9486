package calls

import (
	"fmt"
	"time"

	"calling-center/internal/telephony"
)

// Greeting is the opening script spoken when the callee answers.
type Greeting struct {
	AgentName   string
	CompanyName string
}

func (g Greeting) withDefaults() Greeting {
	if g.AgentName == "" {
		g.AgentName = "AI Assistant"
	}
	if g.CompanyName == "" {
		g.CompanyName = "Our Company"
	}
	return g
}

// PartOfDay returns morning, afternoon or evening for the local hour of t.
func PartOfDay(t time.Time) string {
	switch h := t.Hour(); {
	case h >= 5 && h < 12:
		return "morning"
	case h >= 12 && h < 18:
		return "afternoon"
	default:
		return "evening"
	}
}

// Text is the spoken introduction.
func (g Greeting) Text(now time.Time) string {
	g = g.withDefaults()
	return fmt.Sprintf(
		"Good %s, this is %s calling from %s. I hope you're doing well today. "+
			"I'm reaching out regarding your recent interaction with us. "+
			"Do you have a quick minute to share your feedback?",
		PartOfDay(now), g.AgentName, g.CompanyName,
	)
}

// Script is the markup executed on answer: introduction, pause, prompt,
// then the first speech window.
func (g Greeting) Script(now time.Time, speechURL string) *telephony.Response {
	return telephony.NewResponse().
		SayAs(telephony.VoiceMan, g.Text(now)).
		Pause(2).
		Say(telephony.PromptRespondNow).
		Gather(telephony.SpeechGather(speechURL))
}
