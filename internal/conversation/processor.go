package conversation

import (
	"context"
	"errors"
	"strings"
)

// DefaultPersona is the fixed system instruction sent with every utterance.
const DefaultPersona = "You are a professional customer service representative. Keep responses concise and professional."

// Message is one chat message sent to the generation service.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generator produces the first completion for a list of chat messages.
type Generator interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// Processor turns a caller utterance into the assistant's reply.
// Each turn is generated from the latest utterance only; no history is forwarded.
type Processor struct {
	gen     Generator
	persona string
}

type Option func(*Processor)

func WithPersona(persona string) Option {
	return func(p *Processor) {
		if strings.TrimSpace(persona) != "" {
			p.persona = persona
		}
	}
}

func NewProcessor(gen Generator, opts ...Option) *Processor {
	p := &Processor{gen: gen, persona: DefaultPersona}
	for _, o := range opts {
		o(p)
	}
	return p
}

// GenerateReply returns the reply text or an *UpstreamError.
func (p *Processor) GenerateReply(ctx context.Context, prompt string) (string, error) {
	if p.gen == nil {
		return "", &UpstreamError{Kind: KindGeneric, Err: errors.New("generator not configured")}
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", &UpstreamError{Kind: KindGeneric, Err: errors.New("empty prompt")}
	}

	reply, err := p.gen.Generate(ctx, []Message{
		{Role: "system", Content: p.persona},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return "", generic(err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", &UpstreamError{Kind: KindGeneric, Err: errors.New("empty reply")}
	}
	return reply, nil
}
