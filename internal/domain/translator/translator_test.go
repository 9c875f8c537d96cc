package translator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/GriffinCanCode/chatgate/internal/domain/chat"
)

func newTestTranslator(t *testing.T, opts Options) *Translator {
	t.Helper()
	tr, err := New(opts)
	require.NoError(t, err)
	return tr
}

func TestNewRejectsBadStripPattern(t *testing.T) {
	_, err := New(Options{Strip: []string{"("}})
	assert.Error(t, err)
}

func TestBuildInteraction(t *testing.T) {
	tr := newTestTranslator(t, Options{})

	tests := []struct {
		name     string
		messages []chat.Message
		want     string
	}{
		{
			name:     "single user message is verbatim",
			messages: []chat.Message{{Role: chat.RoleUser, Content: "hello"}},
			want:     "hello",
		},
		{
			name: "conversation uses role prefixes",
			messages: []chat.Message{
				{Role: chat.RoleSystem, Content: "be brief"},
				{Role: chat.RoleUser, Content: "hi"},
				{Role: chat.RoleAssistant, Content: "hello!"},
				{Role: chat.RoleUser, Content: "how are you?"},
			},
			want: "system: be brief\n\nuser: hi\n\nassistant: hello!\n\nuser: how are you?\n\nassistant:",
		},
		{
			name:     "lone system message still gets a cue",
			messages: []chat.Message{{Role: chat.RoleSystem, Content: "rules"}},
			want:     "system: rules\n\nassistant:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script := tr.BuildInteraction(chat.ChatRequest{Model: "gpt-5", Messages: tt.messages})
			assert.Equal(t, tt.want, script.Prompt)
			assert.Equal(t, "gpt-5", script.Model)
		})
	}
}

func TestParseTranscriptRoundTrip(t *testing.T) {
	msgs := []chat.Message{
		{Role: chat.RoleSystem, Content: "be brief"},
		{Role: chat.RoleUser, Content: "line one\nline two"},
		{Role: chat.RoleAssistant, Content: "ok"},
		{Role: chat.RoleUser, Content: "next"},
	}

	assert.Equal(t, msgs, ParseTranscript(FormatPrompt(msgs)))
	assert.Equal(t, []chat.Message{{Role: chat.RoleUser, Content: "just text"}}, ParseTranscript("just text"))
	assert.Equal(t, []chat.Message{{Role: chat.RoleUser, Content: "user:name"}}, ParseTranscript("user:name"))
}

func TestParseReplyHTML(t *testing.T) {
	tr := newTestTranslator(t, Options{
		Region: "#answer",
		Chrome: []string{".ad", "button"},
		Strip:  []string{`\[model:[^\]]*\]`},
	})

	body := `<html><body>
		<nav>menu</nav>
		<div id="answer">
			<p>Hello <b>there</b>!</p>
			<div class="ad">buy now</div>
			<p>Second line<br>third line [model:gpt-5]</p>
			<button>copy</button>
			<script>track()</script>
		</div>
	</body></html>`

	got, err := tr.ParseReply(chat.RawReply{Body: []byte(body), ContentType: "text/html; charset=utf-8", Status: 200})
	require.NoError(t, err)
	assert.Equal(t, "Hello there!\n\nSecond line\nthird line", got)
}

func TestParseReplyXPath(t *testing.T) {
	tr := newTestTranslator(t, Options{Region: "//div[@class='reply']"})

	body := `<html><body><div class="other">x</div><div class="reply"><p>from xpath</p></div></body></html>`
	got, err := tr.ParseReply(chat.RawReply{Body: []byte(body), ContentType: "text/html"})
	require.NoError(t, err)
	assert.Equal(t, "from xpath", got)
}

func TestParseReplyMissingRegion(t *testing.T) {
	tests := []struct {
		name   string
		region string
	}{
		{"css", "#answer"},
		{"xpath", "//section[@id='answer']"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTranslator(t, Options{Region: tt.region})
			_, err := tr.ParseReply(chat.RawReply{Body: []byte("<html><body><p>nope</p></body></html>"), ContentType: "text/html"})
			require.Error(t, err)
			assert.True(t, chat.IsKind(err, chat.KindParse))
			assert.ErrorIs(t, err, ErrRegionNotFound)
		})
	}
}

func TestParseReplyEmpty(t *testing.T) {
	tr := newTestTranslator(t, Options{Region: "#answer", Chrome: []string{".spinner"}})

	for _, body := range []string{"", "   ", `<html><body><div id="answer"><span class="spinner">...</span></div></body></html>`} {
		_, err := tr.ParseReply(chat.RawReply{Body: []byte(body), ContentType: "text/html"})
		require.Error(t, err, "body %q", body)
		assert.True(t, chat.IsKind(err, chat.KindParse))
		assert.ErrorIs(t, err, ErrEmptyReply)
	}
}

func TestParseReplyJSON(t *testing.T) {
	tests := []struct {
		name  string
		field string
		body  string
		want  string
	}{
		{"configured path", "data.choices.0.text", `{"data":{"choices":[{"text":"deep value"}]}}`, "deep value"},
		{"default field", "", `{"status":"ok","response":"plain answer"}`, "plain answer"},
		{"html inside json", "reply", `{"reply":"<p>one</p><p>two</p>"}`, "one\n\ntwo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTranslator(t, Options{JSONField: tt.field})
			got, err := tr.ParseReply(chat.RawReply{Body: []byte(tt.body), ContentType: "application/json"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	tr := newTestTranslator(t, Options{JSONField: "missing"})
	_, err := tr.ParseReply(chat.RawReply{Body: []byte(`{"other":1}`), ContentType: "application/json"})
	assert.True(t, chat.IsKind(err, chat.KindParse))
}

func TestParseReplySniffsContentType(t *testing.T) {
	tr := newTestTranslator(t, Options{Strip: []string{`(?i)powered by \w+`}})

	got, err := tr.ParseReply(chat.RawReply{Body: []byte("<html><body><p>sniffed</p></body></html>")})
	require.NoError(t, err)
	assert.Equal(t, "sniffed", got)

	got, err = tr.ParseReply(chat.RawReply{Body: []byte(`{"text":"json sniffed"}`)})
	require.NoError(t, err)
	assert.Equal(t, "json sniffed", got)

	got, err = tr.ParseReply(chat.RawReply{Body: []byte("  just words  \nPowered by Toolbaz")})
	require.NoError(t, err)
	assert.Equal(t, "just words", got)
}

func TestParseReplyDecodesCharset(t *testing.T) {
	tr := newTestTranslator(t, Options{})

	encoded, err := charmap.ISO8859_1.NewEncoder().String("<html><body><p>café crème</p></body></html>")
	require.NoError(t, err)

	got, err := tr.ParseReply(chat.RawReply{Body: []byte(encoded), ContentType: "text/html; charset=iso-8859-1"})
	require.NoError(t, err)
	assert.Equal(t, "café crème", got)
}

func TestFragments(t *testing.T) {
	tests := []struct {
		content string
		want    []string
	}{
		{"a b c", []string{"a ", "b ", "c"}},
		{"  lead  and trail  ", []string{"  lead  ", "and ", "trail  "}},
		{"line\nbreak", []string{"line\n", "break"}},
		{"", nil},
		{"   ", []string{"   "}},
	}

	for _, tt := range tests {
		got := Fragments(tt.content)
		assert.Equal(t, tt.want, got, "content %q", tt.content)
		assert.Equal(t, tt.content, strings.Join(got, ""))
	}
}

func TestEmulateStream(t *testing.T) {
	tr := newTestTranslator(t, Options{StreamInterval: 5 * time.Millisecond})
	meta := StreamMeta{ID: "chatcmpl-1", Model: "gpt-5", Created: 1700000000}

	var chunks []chat.ChatChunk
	for c := range tr.EmulateStream(context.Background(), meta, "a b c") {
		chunks = append(chunks, c)
	}

	require.Len(t, chunks, 5)
	assert.Equal(t, chat.RoleAssistant, chunks[0].Choices[0].Delta.Role)
	assert.Empty(t, chunks[0].Text())

	var content strings.Builder
	for i, c := range chunks {
		assert.Equal(t, "chatcmpl-1", c.ID)
		assert.Equal(t, chat.ObjectChunk, c.Object)
		assert.Equal(t, "gpt-5", c.Model)
		content.WriteString(c.Text())
		if i > 0 {
			assert.False(t, c.EmittedAt.Before(chunks[i-1].EmittedAt), "timestamps must be non-decreasing")
		}
		assert.Equal(t, i == len(chunks)-1, c.Done)
	}
	assert.Equal(t, "a b c", content.String())

	last := chunks[len(chunks)-1]
	require.NotNil(t, last.Choices[0].FinishReason)
	assert.Equal(t, chat.FinishStop, *last.Choices[0].FinishReason)
	assert.GreaterOrEqual(t, last.EmittedAt.Sub(chunks[0].EmittedAt), 10*time.Millisecond)
}

func TestEmulateStreamEmptyContent(t *testing.T) {
	tr := newTestTranslator(t, Options{StreamInterval: -1})

	content, done := Collect(tr.EmulateStream(context.Background(), StreamMeta{ID: "x"}, ""))
	assert.Empty(t, content)
	assert.True(t, done)
}

func TestEmulateStreamCancellation(t *testing.T) {
	tr := newTestTranslator(t, Options{StreamInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	stream := tr.EmulateStream(ctx, StreamMeta{ID: "x"}, strings.Repeat("word ", 100))
	<-stream
	first := <-stream
	assert.Equal(t, "word ", first.Text())
	cancel()

	var rest []chat.ChatChunk
	for c := range stream {
		rest = append(rest, c)
	}
	for _, c := range rest {
		assert.False(t, c.Done, "no terminal chunk after cancellation")
	}
	assert.LessOrEqual(t, len(rest), 1)
}

func TestEstimateUsage(t *testing.T) {
	usage := EstimateUsage("hello there", "hi")
	assert.Equal(t, chat.Usage{PromptTokens: 4, CompletionTokens: 2, TotalTokens: 6}, usage)
	assert.Equal(t, chat.Usage{}, EstimateUsage("", "  "))
}
