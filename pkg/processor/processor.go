package processor

import (
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"

	"github.com/xhad/pai/internal/models"
)

const (
	StrategyWindow    = "window"
	StrategyRecursive = "recursive"
)

type ProcessorConfig struct {
	ChunkSize    int
	ChunkOverlap int
	// SentenceLookback is how far back from a window end to look for a '.' to break on.
	SentenceLookback   int
	Strategy           string
	AllowedExtensions  []string
	SampleRows         int
	PreserveLineBreaks bool
}

type Processor struct {
	config   ProcessorConfig
	splitter textsplitter.TextSplitter
	logger   *zap.Logger
}

func NewWithConfig(config ProcessorConfig, logger *zap.Logger) *Processor {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap < 0 {
		config.ChunkOverlap = 0
	}
	if config.SentenceLookback == 0 {
		config.SentenceLookback = 100
	}
	if config.Strategy == "" {
		config.Strategy = StrategyWindow
	}
	if config.SampleRows == 0 {
		config.SampleRows = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Processor{config: config, logger: logger}
	if config.Strategy == StrategyRecursive {
		p.splitter = textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(config.ChunkSize),
			textsplitter.WithChunkOverlap(config.ChunkOverlap),
		)
	}
	return p
}

// Process cleans and chunks documents that arrive already extracted, such as scraped pages.
func (p *Processor) Process(docs []models.Document) ([]models.ProcessedDocument, error) {
	processed := make([]models.ProcessedDocument, 0, len(docs))

	for _, doc := range docs {
		doc.Content = p.cleanText(doc.Content)
		processed = append(processed, models.ProcessedDocument{
			Document: doc,
			Chunks:   p.Chunk(doc.Content),
		})
	}

	return processed, nil
}

func (p *Processor) cleanText(text string) string {
	if !p.config.PreserveLineBreaks {
		return strings.Join(strings.Fields(text), " ")
	}

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// Chunk splits content into overlapping windows. Blank content yields no chunks.
func (p *Processor) Chunk(content string) []string {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	if p.splitter != nil {
		chunks, err := p.splitter.SplitText(content)
		if err == nil {
			return chunks
		}
		p.logger.Warn("recursive split failed, falling back to windows", zap.Error(err))
	}

	return splitIntoWindows([]rune(content), p.config.ChunkSize, p.config.ChunkOverlap, p.config.SentenceLookback)
}

// splitIntoWindows cuts text into windows of size runes that overlap by overlap runes.
// A window that does not reach the end of the text is shortened to end just after the
// last '.' found within its final lookback runes, when there is one.
func splitIntoWindows(text []rune, size, overlap, lookback int) []string {
	if len(text) <= size {
		return []string{string(text)}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + size
		if end < len(text) {
			searchFrom := end - lookback
			if searchFrom < start {
				searchFrom = start
			}
			if dot := lastIndexRune(text[searchFrom:end], '.'); dot >= 0 && searchFrom+dot > start {
				end = searchFrom + dot + 1
			}
		} else {
			end = len(text)
		}

		if chunk := strings.TrimSpace(string(text[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(text) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

func lastIndexRune(text []rune, r rune) int {
	for i := len(text) - 1; i >= 0; i-- {
		if text[i] == r {
			return i
		}
	}
	return -1
}
