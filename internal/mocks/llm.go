// Package mocks holds deterministic stand-ins for the model and embedding
// providers, for tests that must not reach the network.
package mocks

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/tmc/langchaingo/llms"
)

// CallRecord is one request seen by MockLLM.
type CallRecord struct {
	Messages []llms.MessageContent
	Options  llms.CallOptions
	Output   string
}

// MockLLM implements llms.Model. Replies come from ResponseQueue in order, then
// from the first ResponseMap pattern found in the prompt, then DefaultResponse.
type MockLLM struct {
	ResponseQueue   []string
	ResponseMap     map[string]string
	DefaultResponse string
	Tokens          int
	Err             error

	mu    sync.Mutex
	calls []CallRecord
}

func NewMockLLM() *MockLLM {
	return &MockLLM{
		ResponseMap:     make(map[string]string),
		DefaultResponse: "Mock response",
		Tokens:          42,
	}
}

// WithResponseQueue sets replies returned in order before any other rule applies.
func (m *MockLLM) WithResponseQueue(responses ...string) *MockLLM {
	m.ResponseQueue = responses
	return m
}

func (m *MockLLM) WithError(err error) *MockLLM {
	m.Err = err
	return m
}

func (m *MockLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *MockLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}

	m.mu.Lock()
	record := CallRecord{Messages: messages, Options: opts}
	if m.Err != nil {
		m.calls = append(m.calls, record)
		m.mu.Unlock()
		return nil, m.Err
	}
	reply := m.reply(Prompt(messages))
	record.Output = reply
	m.calls = append(m.calls, record)
	m.mu.Unlock()

	if opts.StreamingFunc != nil {
		for _, part := range strings.SplitAfter(reply, " ") {
			if err := opts.StreamingFunc(ctx, []byte(part)); err != nil {
				return nil, err
			}
		}
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:        reply,
			GenerationInfo: map[string]any{"TotalTokens": m.Tokens},
		}},
	}, nil
}

func (m *MockLLM) reply(prompt string) string {
	if len(m.ResponseQueue) > 0 {
		r := m.ResponseQueue[0]
		m.ResponseQueue = m.ResponseQueue[1:]
		return r
	}
	for pattern, response := range m.ResponseMap {
		if strings.Contains(prompt, pattern) {
			return response
		}
	}
	return m.DefaultResponse
}

// Calls returns a copy of the recorded requests.
func (m *MockLLM) Calls() []CallRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CallRecord(nil), m.calls...)
}

// LastCall returns the most recent request.
func (m *MockLLM) LastCall() (CallRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return CallRecord{}, false
	}
	return m.calls[len(m.calls)-1], true
}

// Prompt flattens the text parts of messages, one message per line.
func Prompt(messages []llms.MessageContent) string {
	var b strings.Builder
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if t, ok := part.(llms.TextContent); ok {
				b.WriteString(t.Text)
				b.WriteByte('\n')
			}
		}
	}
	return b.String()
}

// Text returns the text of a single message.
func Text(msg llms.MessageContent) string {
	var parts []string
	for _, part := range msg.Parts {
		if t, ok := part.(llms.TextContent); ok {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, "")
}

// MockEmbedder hashes words into a fixed number of buckets, so texts sharing
// words get similar vectors. It serves both as embeddings.EmbedderClient and as
// a types.Embedder.
type MockEmbedder struct {
	Dim int
	Err error

	mu    sync.Mutex
	texts int
	calls int
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{Dim: 256}
}

func (e *MockEmbedder) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.texts += len(texts)
	e.mu.Unlock()

	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *MockEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return e.CreateEmbedding(ctx, texts)
}

func (e *MockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := e.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(v) == 0 {
		return nil, errors.New("no embedding")
	}
	return v[0], nil
}

// Calls returns how many requests were made and how many texts they carried.
func (e *MockEmbedder) Calls() (requests, texts int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls, e.texts
}

func (e *MockEmbedder) vector(text string) []float32 {
	dim := e.Dim
	if dim <= 0 {
		dim = 256
	}
	v := make([]float32, dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%uint32(dim)]++
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}
