package models

import (
	"context"
	"strings"
	"sync"
)

// DummyModel is an offline Model for tests and local runs. Replies are
// consumed in order; once exhausted it echoes the last user message.
type DummyModel struct {
	mu      sync.Mutex
	Replies []Reply
	// Calls records every conversation passed to Chat or ChatStream.
	Calls [][]Message
}

// NewDummyModel builds a model that plays back the given replies.
func NewDummyModel(replies ...Reply) *DummyModel {
	return &DummyModel{Replies: replies}
}

func (d *DummyModel) next(msgs []Message) *Reply {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = append(d.Calls, append([]Message(nil), msgs...))
	if len(d.Replies) > 0 {
		r := d.Replies[0]
		d.Replies = d.Replies[1:]
		return &r
	}
	var last string
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser && msgs[i].Content != "" {
			last = msgs[i].Content
			break
		}
	}
	if last == "" {
		last = "<empty prompt>"
	}
	return &Reply{Content: "Dummy response: " + last}
}

func (d *DummyModel) Chat(_ context.Context, msgs []Message, _ []ToolSpec) (*Reply, error) {
	return d.next(msgs), nil
}

// ChatStream emits the reply word by word so consumers exercise real
// incremental behavior.
func (d *DummyModel) ChatStream(_ context.Context, msgs []Message, _ []ToolSpec) (<-chan StreamChunk, error) {
	reply := d.next(msgs)
	ch := make(chan StreamChunk, 16)
	go func() {
		defer close(ch)
		var sb strings.Builder
		for i, word := range strings.Fields(reply.Content) {
			if i > 0 {
				sb.WriteString(" ")
				ch <- StreamChunk{Delta: " "}
			}
			sb.WriteString(word)
			ch <- StreamChunk{Delta: word}
		}
		ch <- StreamChunk{Done: true, FullText: sb.String()}
	}()
	return ch, nil
}

var _ Model = (*DummyModel)(nil)
