package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/xhad/pai/internal/models"
)

// ErrEmptyResponse is returned when the model produced no choices.
var ErrEmptyResponse = errors.New("no response from LLM")

const maxTitleLength = 60

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Model               string
	Temperature         float64
	MaxTokens           int
	AnalysisTemperature float64
}

// ChatEngine is an engine that uses an LLM to generate chat responses.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
	logger *zap.Logger
	now    func() time.Time
}

// Completion is the text of a model reply and the tokens it consumed.
type Completion struct {
	Content     string
	TotalTokens int
}

// NewWithModel creates a ChatEngine around an already constructed model.
func NewWithModel(model llms.Model, config ChatConfig, logger *zap.Logger) (*ChatEngine, error) {
	if model == nil {
		return nil, errors.New("llm model is required")
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.AnalysisTemperature == 0 {
		config.AnalysisTemperature = 0.3
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ChatEngine{
		config: config,
		llm:    model,
		logger: logger,
		now:    time.Now,
	}, nil
}

// NewWithConfig creates a ChatEngine for the configured provider.
func NewWithConfig(provider ProviderConfig, config ChatConfig, logger *zap.Logger) (*ChatEngine, error) {
	model, err := NewModel(provider)
	if err != nil {
		return nil, err
	}
	if config.Model == "" {
		config.Model = provider.Model
	}
	return NewWithModel(model, config, logger)
}

// Model is the name of the model answering requests.
func (ce *ChatEngine) Model() string {
	return ce.config.Model
}

func toMessageContent(messages []Message) []llms.MessageContent {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		role := llms.ChatMessageTypeHuman
		switch m.Role {
		case models.RoleSystem:
			role = llms.ChatMessageTypeSystem
		case models.RoleAssistant:
			role = llms.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, m.Content))
	}
	return content
}

// Complete sends messages to the model. Options override the engine's temperature
// and token limit.
func (ce *ChatEngine) Complete(ctx context.Context, messages []Message, opts ...llms.CallOption) (*Completion, error) {
	options := append([]llms.CallOption{
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	}, opts...)

	start := time.Now()
	response, err := ce.llm.GenerateContent(ctx, toMessageContent(messages), options...)
	if err != nil {
		return nil, fmt.Errorf("chat error: %w", err)
	}
	if response == nil || len(response.Choices) == 0 || response.Choices[0] == nil {
		return nil, ErrEmptyResponse
	}

	choice := response.Choices[0]
	completion := &Completion{
		Content:     choice.Content,
		TotalTokens: totalTokens(choice.GenerationInfo),
	}
	ce.logger.Debug("completion finished",
		zap.Int("messages", len(messages)),
		zap.Int("tokens", completion.TotalTokens),
		zap.Duration("elapsed", time.Since(start)))
	return completion, nil
}

// Stream is Complete with every generated fragment handed to onChunk as it arrives.
func (ce *ChatEngine) Stream(ctx context.Context, messages []Message, onChunk func(chunk string) error, opts ...llms.CallOption) (*Completion, error) {
	opts = append(opts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		return onChunk(string(chunk))
	}))
	return ce.Complete(ctx, messages, opts...)
}

// Analyze runs a document analysis prompt at the analysis temperature.
func (ce *ChatEngine) Analyze(ctx context.Context, kind, content string) (*Completion, string, error) {
	messages, kind := AnalysisMessages(kind, content)
	completion, err := ce.Complete(ctx, messages, llms.WithTemperature(ce.config.AnalysisTemperature))
	return completion, kind, err
}

// Title names a conversation after its first message. It never fails: when the
// model is unavailable the title is the creation time.
func (ce *ChatEngine) Title(ctx context.Context, first string) string {
	fallback := DefaultTitle(ce.now())
	if strings.TrimSpace(first) == "" {
		return fallback
	}

	completion, err := ce.Complete(ctx, TitleMessages(first),
		llms.WithTemperature(0.3),
		llms.WithMaxTokens(20),
	)
	if err != nil {
		ce.logger.Warn("title generation failed", zap.Error(err))
		return fallback
	}

	title := strings.Join(strings.Fields(strings.Trim(completion.Content, " \t\n\"'`")), " ")
	if title == "" {
		return fallback
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		title = strings.TrimSpace(string([]rune(title)[:maxTitleLength]))
	}
	return title
}

// DefaultTitle is the title of a chat created without one.
func DefaultTitle(t time.Time) string {
	return "Chat " + t.Format("2006-01-02 15:04")
}

// FormatSources lists the distinct documents behind a set of search hits.
func FormatSources(hits []models.SearchHit) string {
	var sources []string
	seen := make(map[string]bool)

	for _, hit := range hits {
		source := hit.Metadata[models.MetaFilename]
		if source == "" {
			source = hit.DocumentID
		}
		if source != "" && !seen[source] {
			sources = append(sources, source)
			seen[source] = true
		}
	}

	if len(sources) == 0 {
		return ""
	}

	return fmt.Sprintf("\nSources:\n%s", strings.Join(sources, "\n"))
}

func totalTokens(info map[string]any) int {
	switch v := info["TotalTokens"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
