package ui

import (
	"art-chat/internal/conversation"
)

// Sink is the unified interface every chat surface must satisfy. The
// controller pushes a fresh conversation snapshot after every state
// change; each sink decides how to render it.
type Sink interface {
	RenderConversation(view conversation.View)
	ShowSystem(text string)
}

type multiSink struct {
	sinks []Sink
}

// NewMultiSink fans conversation updates out to each registered sink.
func NewMultiSink(sinks ...Sink) Sink {
	return &multiSink{sinks: sinks}
}

func (m *multiSink) RenderConversation(view conversation.View) {
	for _, sink := range m.sinks {
		if sink != nil {
			sink.RenderConversation(view)
		}
	}
}

func (m *multiSink) ShowSystem(text string) {
	for _, sink := range m.sinks {
		if sink != nil {
			sink.ShowSystem(text)
		}
	}
}
