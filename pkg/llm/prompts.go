package llm

import (
	"fmt"
	"strings"

	"github.com/xhad/pai/internal/models"
)

const BaseSystemPrompt = `You are a highly capable personal AI assistant specializing in:

1. **Document Analysis**: Process and analyze XLS, Word, PDF files
2. **Business Support**: Expense tracking, forecasting, planning, marketing analysis
3. **Academic Research**: Help with grad school preparation, research papers, analysis
4. **Personal Organization**: Diary organization, note-taking, idea structuring
5. **Writing Assistance**: Essays, reports, creative writing, homework help

**Your Capabilities:**
- Analyze uploaded documents and answer questions about their content
- Provide business insights from financial data
- Help organize and structure ideas and plans
- Assist with research and academic writing
- Track expenses and create forecasts
- Maintain context across conversations

**Communication Style:**
- Be helpful, professional, and thorough
- Provide actionable insights and recommendations
- Ask clarifying questions when needed
- Offer multiple perspectives on complex issues
- Structure responses clearly with headers and bullet points

**Context Awareness:**
- Remember previous conversations and uploaded documents
- Reference specific data points from user's files
- Build on previous discussions and analyses
- Maintain continuity in ongoing projects

Always be ready to help with any aspect of the user's business, academic, or personal needs.`

const DocumentContextPrompt = `**DOCUMENT CONTEXT AVAILABLE:**
You have access to relevant content from the user's uploaded documents. When answering questions:

1. **Prioritize document content** - If the answer exists in the provided document context, use it as your primary source
2. **Reference specific information** - Quote or paraphrase relevant sections from the documents
3. **Combine with general knowledge** - Supplement document information with your general knowledge when helpful
4. **Indicate sources** - Clearly distinguish between information from documents vs. your general knowledge
5. **Be accurate** - Don't make up information that isn't in the documents

If a question cannot be answered from the document context, provide a helpful general response and suggest what information might be found in the documents.`

// Analysis kinds accepted by AnalysisMessages.
const (
	AnalysisSummary   = "summary"
	AnalysisKeyPoints = "key_points"
	AnalysisInsights  = "insights"
	AnalysisQuestions = "questions"
)

var analysisPrompts = map[string]string{
	AnalysisSummary:   "Provide a comprehensive summary of this document, highlighting the main points, key findings, and important details.",
	AnalysisKeyPoints: "Extract and list the key points, main arguments, and important information from this document.",
	AnalysisInsights:  "Analyze this document and provide insights, implications, and potential applications of the information.",
	AnalysisQuestions: "Based on this document content, suggest important questions that should be explored further.",
}

// Message is one entry of a prompt handed to the chat model.
type Message struct {
	Role    models.Role
	Content string
}

// ContextAwareMessages builds the session prompt: the system prompt carrying any
// document excerpts, the most recent user and assistant messages, then the query.
func ContextAwareMessages(query string, excerpts []string, history []models.ChatMessage, historyLimit int) []Message {
	var system strings.Builder
	system.WriteString(BaseSystemPrompt)
	if len(excerpts) > 0 {
		system.WriteString("\n\n" + DocumentContextPrompt)
		system.WriteString("\n\n**RELEVANT DOCUMENT CONTENT:**\n")
		for i, excerpt := range excerpts {
			fmt.Fprintf(&system, "\n--- Document Excerpt %d ---\n%s\n", i+1, excerpt)
		}
	}

	messages := []Message{{Role: models.RoleSystem, Content: system.String()}}

	if historyLimit > 0 && len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	for _, m := range history {
		if m.Role == models.RoleUser || m.Role == models.RoleAssistant {
			messages = append(messages, Message{Role: m.Role, Content: m.Content})
		}
	}

	return append(messages, Message{Role: models.RoleUser, Content: query})
}

// ConversationMessages builds the prompt of the stateless assistant: recent turns,
// up to three document excerpts and optional business data as extra system messages.
func ConversationMessages(message string, turns []models.Turn, turnLimit int, docs []string, businessContext string) []Message {
	messages := []Message{{Role: models.RoleSystem, Content: BaseSystemPrompt}}

	if turnLimit > 0 && len(turns) > turnLimit {
		turns = turns[len(turns)-turnLimit:]
	}
	for _, t := range turns {
		messages = append(messages,
			Message{Role: models.RoleUser, Content: t.User},
			Message{Role: models.RoleAssistant, Content: t.Assistant},
		)
	}

	if len(docs) > 0 {
		if len(docs) > 3 {
			docs = docs[:3]
		}
		var b strings.Builder
		b.WriteString("**Relevant Document Context:**\n\n")
		for i, doc := range docs {
			fmt.Fprintf(&b, "Document %d:\n%s\n\n", i+1, doc)
		}
		messages = append(messages, Message{Role: models.RoleSystem, Content: b.String()})
	}

	if businessContext != "" {
		messages = append(messages, Message{
			Role:    models.RoleSystem,
			Content: "**Business Data Context:**\n" + businessContext,
		})
	}

	return append(messages, Message{Role: models.RoleUser, Content: message})
}

// AnalysisMessages returns the prompt for one analysis kind over the given document
// text together with the kind actually used. Unknown kinds fall back to a summary.
func AnalysisMessages(kind, content string) ([]Message, string) {
	prompt, ok := analysisPrompts[kind]
	if !ok {
		kind = AnalysisSummary
		prompt = analysisPrompts[kind]
	}
	return []Message{
		{Role: models.RoleSystem, Content: BaseSystemPrompt},
		{Role: models.RoleUser, Content: prompt + "\n\nDocument Content:\n" + content},
	}, kind
}

// TitleMessages asks for a short title describing a conversation's opening message.
func TitleMessages(first string) []Message {
	return []Message{
		{Role: models.RoleSystem, Content: "You write short titles for conversations. Reply with a title of at most six words and nothing else."},
		{Role: models.RoleUser, Content: first},
	}
}
