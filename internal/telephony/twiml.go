package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// Response is a minimal TwiML document builder.
// Only the verbs a speech conversation needs are supported: Say, Pause, Gather, Hangup.
type Response struct {
	verbs []any
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type twimlPause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr,omitempty"`
}

type twimlGather struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr,omitempty"`
	Action        string   `xml:"action,attr,omitempty"`
	Method        string   `xml:"method,attr,omitempty"`
	SpeechTimeout string   `xml:"speechTimeout,attr,omitempty"`
	Timeout       int      `xml:"timeout,attr,omitempty"`
	Language      string   `xml:"language,attr,omitempty"`
	Prompt        *twimlSay
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// Gather describes a speech-gathering window.
type Gather struct {
	Action        string
	Method        string
	SpeechTimeout string
	Timeout       int
	Language      string
	// Prompt is spoken inside the window while the carrier listens.
	Prompt string
}

// SpeechGather returns the gather used for every conversational turn.
func SpeechGather(action string) Gather {
	return Gather{
		Action:        action,
		Method:        "POST",
		SpeechTimeout: "auto",
		Timeout:       10,
		Language:      "en-US",
		Prompt:        PromptRespondNow,
	}
}

// PromptRespondNow is spoken before and inside every gather window.
const PromptRespondNow = "Please respond now."

// VoiceMan is the carrier voice used for assistant speech.
const VoiceMan = "man"

func NewResponse() *Response { return &Response{} }

func (r *Response) Say(text string) *Response {
	r.verbs = append(r.verbs, twimlSay{Text: strings.TrimSpace(text)})
	return r
}

func (r *Response) SayAs(voice, text string) *Response {
	r.verbs = append(r.verbs, twimlSay{Voice: voice, Text: strings.TrimSpace(text)})
	return r
}

func (r *Response) Pause(seconds int) *Response {
	r.verbs = append(r.verbs, twimlPause{Length: seconds})
	return r
}

func (r *Response) Gather(g Gather) *Response {
	v := twimlGather{
		Input:         "speech",
		Action:        g.Action,
		Method:        g.Method,
		SpeechTimeout: g.SpeechTimeout,
		Timeout:       g.Timeout,
		Language:      g.Language,
	}
	if g.Prompt != "" {
		v.Prompt = &twimlSay{Text: g.Prompt}
	}
	r.verbs = append(r.verbs, v)
	return r
}

func (r *Response) Hangup() *Response {
	r.verbs = append(r.verbs, twimlHangup{})
	return r
}

// Gathers reports whether the response re-opens a listening window.
func (r *Response) Gathers() bool {
	for _, v := range r.verbs {
		if _, ok := v.(twimlGather); ok {
			return true
		}
	}
	return false
}

// Render encodes the response as a TwiML document.
func (r *Response) Render() (string, error) {
	if r == nil {
		return "", errors.New("telephony: nil response")
	}
	for _, v := range r.verbs {
		if g, ok := v.(twimlGather); ok && strings.TrimSpace(g.Action) == "" {
			return "", errors.New("telephony: gather action required")
		}
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(twimlResponse{Verbs: r.verbs}); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// MustRender renders a response built from constants; it is only used for fixed documents.
func (r *Response) MustRender() string {
	s, err := r.Render()
	if err != nil {
		panic(err)
	}
	return s
}

// EmptyResponse acknowledges a callback without instructing the carrier.
func EmptyResponse() string {
	return NewResponse().MustRender()
}
