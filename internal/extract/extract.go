package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"go.uber.org/zap"

	"github.com/animus-coder/codesmith/internal/config"
	"github.com/animus-coder/codesmith/internal/llm"
	"github.com/animus-coder/codesmith/internal/logging"
	"github.com/animus-coder/codesmith/internal/observability"
	"github.com/animus-coder/codesmith/internal/tools"
)

// DefaultMaxAttempts bounds extraction when no limit is configured.
const DefaultMaxAttempts = 3

// DefaultStripPrefix is the role label some models put in front of their output.
const DefaultStripPrefix = "assistant: "

// TerminalMessage is what the user sees once every attempt has failed.
const TerminalMessage = "Unable to process request, try again..."

// CodeOutput is the structured result of a generation.
type CodeOutput struct {
	Code        string `json:"code" jsonschema:"required,description=The generated source code"`
	Description string `json:"description" jsonschema:"required,description=A short human readable summary of the code"`
	Filename    string `json:"filename" jsonschema:"required,description=A file name for the code without special characters"`
}

const codeParserTemplate = `Parse the response from a previous LLM into a description and a string of valid code, also come up with a valid filename this could be saved as that doesnt contain special characters. Here is the response: {response}. You should parse this in the following JSON Format: `

const formatTemplate = "Here's a JSON schema to follow:\n%s\n\nOutput a valid JSON object but do not repeat the schema."

// SchemaFor renders the JSON schema of v's type.
func SchemaFor(v interface{}) (string, error) {
	reflector := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	schema := reflector.Reflect(v)
	raw, err := json.Marshal(schema)
	if err != nil {
		return "", fmt.Errorf("marshal schema: %w", err)
	}
	return string(raw), nil
}

// BuildPrompt renders the reformatting prompt for one raw answer.
func BuildPrompt(raw string) (string, error) {
	schema, err := SchemaFor(new(CodeOutput))
	if err != nil {
		return "", err
	}
	return strings.Replace(codeParserTemplate, "{response}", raw, 1) + "\n" + fmt.Sprintf(formatTemplate, schema), nil
}

// ErrExtraction matches every terminal extraction failure.
var ErrExtraction = errors.New("extraction failed")

// ExtractionError is returned after the last attempt fails.
type ExtractionError struct {
	Attempts int
	Failures []string
}

func (e *ExtractionError) Error() string { return TerminalMessage }

func (e *ExtractionError) Is(target error) bool { return target == ErrExtraction }

// Notice reports one failed attempt.
type Notice struct {
	Attempt int    `json:"attempt"`
	Err     string `json:"error"`
}

func (n Notice) String() string {
	return fmt.Sprintf("Error occured, retry #%d: %s", n.Attempt, n.Err)
}

// Retry runs fn up to maxAttempts times in sequence and stops at the first
// success. Every failure is passed to onRetry before the next attempt.
func Retry(ctx context.Context, maxAttempts int, fn func(ctx context.Context) (CodeOutput, error), onRetry func(Notice)) (CodeOutput, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	failures := make([]string, 0, maxAttempts)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return CodeOutput{}, err
		}
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		failures = append(failures, err.Error())
		if onRetry != nil {
			onRetry(Notice{Attempt: attempt, Err: err.Error()})
		}
	}
	return CodeOutput{}, &ExtractionError{Attempts: maxAttempts, Failures: failures}
}

// Extractor reformats free-text answers into CodeOutput records through the
// general model.
type Extractor struct {
	Models  tools.ModelResolver
	Config  config.ExtractionConfig
	Logger  *zap.Logger
	Metrics *observability.Metrics
}

// MaxAttempts returns the configured attempt bound.
func (e *Extractor) MaxAttempts() int {
	if e.Config.MaxAttempts > 0 {
		return e.Config.MaxAttempts
	}
	return DefaultMaxAttempts
}

// Extract retries ExtractOnce until it succeeds or attempts run out.
func (e *Extractor) Extract(ctx context.Context, raw string, onRetry func(Notice)) (CodeOutput, error) {
	return Retry(ctx, e.MaxAttempts(), func(ctx context.Context) (CodeOutput, error) {
		return e.ExtractOnce(ctx, raw)
	}, onRetry)
}

// ExtractOnce makes a single reformatting call and validates the result.
func (e *Extractor) ExtractOnce(ctx context.Context, raw string) (out CodeOutput, err error) {
	logger := logging.Component(e.Logger, "extract")
	defer func() {
		e.Metrics.RecordExtractionAttempt(err)
		if err != nil {
			logger.Debug("extraction attempt failed", zap.Error(err))
		}
	}()

	provider, route, err := e.Models.ResolveModel(config.RoleGeneral, "")
	if err != nil {
		return CodeOutput{}, err
	}
	prompt, err := BuildPrompt(raw)
	if err != nil {
		return CodeOutput{}, err
	}

	resp, err := provider.Chat(ctx, llm.ChatRequest{
		Model:       route.Model,
		Messages:    []llm.ChatMessage{{Role: llm.RoleUser, Content: prompt}},
		MaxTokens:   route.MaxTokens,
		Temperature: route.Temperature,
	})
	if err != nil {
		return CodeOutput{}, err
	}
	return Decode(resp.Message.Content, e.stripPrefix())
}

func (e *Extractor) stripPrefix() string {
	if e.Config.StripPrefix != "" {
		return e.Config.StripPrefix
	}
	return DefaultStripPrefix
}

// Decode parses model output into a CodeOutput. A leading prefix and a
// surrounding markdown fence are removed first.
func Decode(text, prefix string) (CodeOutput, error) {
	text = strings.TrimSpace(text)
	if prefix != "" {
		text = strings.TrimSpace(strings.TrimPrefix(text, prefix))
	}
	text = stripFence(text)

	v, err := ParseLiteral(text)
	if err != nil {
		return CodeOutput{}, err
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return CodeOutput{}, fmt.Errorf("expected a dict, got %T", v)
	}

	var out CodeOutput
	fields := []struct {
		key string
		dst *string
	}{
		{"code", &out.Code},
		{"description", &out.Description},
		{"filename", &out.Filename},
	}
	for _, f := range fields {
		raw, present := m[f.key]
		if !present {
			return CodeOutput{}, fmt.Errorf("missing field %q", f.key)
		}
		s, ok := raw.(string)
		if !ok {
			return CodeOutput{}, fmt.Errorf("field %q must be a string, got %T", f.key, raw)
		}
		*f.dst = s
	}
	return out, nil
}

func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") || !strings.HasSuffix(text, "```") || len(text) < 6 {
		return text
	}
	body := strings.TrimSuffix(text[3:], "```")
	// drop the language tag line
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[('\"") {
		body = body[nl+1:]
	}
	return strings.TrimSpace(body)
}
