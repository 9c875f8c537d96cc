package translator

import (
	"context"
	"regexp"
	"time"

	"github.com/GriffinCanCode/chatgate/internal/domain/chat"
)

var fragmentPattern = regexp.MustCompile(`\S+\s*`)

// StreamMeta identifies the completion a stream belongs to
type StreamMeta struct {
	ID      string
	Model   string
	Created int64
}

// Fragments splits content into word-sized pieces that concatenate back to
// content exactly. Each piece keeps its trailing whitespace; leading
// whitespace rides on the first piece.
func Fragments(content string) []string {
	locs := fragmentPattern.FindAllStringIndex(content, -1)
	if len(locs) == 0 {
		if content == "" {
			return nil
		}
		return []string{content}
	}

	out := make([]string, len(locs))
	for i, loc := range locs {
		start := loc[0]
		if i == 0 {
			start = 0
		}
		out[i] = content[start:loc[1]]
	}
	return out
}

// EmulateStream delivers already-complete content as a paced sequence of
// delta chunks: an opening role chunk, one chunk per fragment and a terminal
// chunk with Done set. The channel is closed after the terminal chunk, or
// early without one when ctx ends.
func (t *Translator) EmulateStream(ctx context.Context, meta StreamMeta, content string) <-chan chat.ChatChunk {
	ch := make(chan chat.ChatChunk)

	go func() {
		defer close(ch)

		var tick <-chan time.Time
		if t.interval > 0 {
			ticker := time.NewTicker(t.interval)
			defer ticker.Stop()
			tick = ticker.C
		}

		send := func(c chat.ChatChunk) bool {
			c.EmittedAt = t.now()
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !send(t.chunk(meta, chat.Delta{Role: chat.RoleAssistant}, nil)) {
			return
		}
		for _, frag := range Fragments(content) {
			if tick != nil {
				select {
				case <-tick:
				case <-ctx.Done():
					return
				}
			}
			if !send(t.chunk(meta, chat.Delta{Content: frag}, nil)) {
				return
			}
		}

		stop := chat.FinishStop
		final := t.chunk(meta, chat.Delta{}, &stop)
		final.Done = true
		send(final)
	}()

	return ch
}

func (t *Translator) chunk(meta StreamMeta, delta chat.Delta, finish *chat.FinishReason) chat.ChatChunk {
	return chat.ChatChunk{
		ID:      meta.ID,
		Object:  chat.ObjectChunk,
		Created: meta.Created,
		Model:   meta.Model,
		Choices: []chat.ChunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
	}
}

// Collect drains a stream and returns the concatenated content and whether
// the terminal chunk arrived.
func Collect(stream <-chan chat.ChatChunk) (string, bool) {
	var (
		content []byte
		done    bool
	)
	for c := range stream {
		content = append(content, c.Text()...)
		if c.Done {
			done = true
		}
	}
	return string(content), done
}
