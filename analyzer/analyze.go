package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/use-agent/prisma/cleaner"
	"github.com/use-agent/prisma/llm"
	"github.com/use-agent/prisma/models"
)

const systemPrompt = `You are PRISMA, a professional research assistant. Your task is to analyze web content and produce clear, useful reports.

INSTRUCTIONS:
1. Analyze the provided content objectively
2. Identify the key points and main findings
3. Synthesize the information into an executive summary
4. Provide actionable insights where possible
5. Keep a professional and concise tone

RESPONSE FORMAT:
- Use Markdown to structure your answer
- Include clear sections: Summary, Key Points, Conclusions
- Cite specific sources when relevant
- Do not invent information that is not in the content`

const defaultInstruction = "Analyze the following research content and produce a structured report:"

const reportInstruction = `You are a professional researcher. Analyze the %d sources provided about "%s" and produce a complete research report.

THE REPORT MUST INCLUDE:
1. **Executive Summary**: 2-3 paragraphs synthesizing the main findings
2. **Key Points**: a numbered list of the 7-10 most important points
3. **Comparative Analysis**: compare the perspectives when sources differ
4. **Conclusions**: final synthesis and observations
5. **Recommendations**: suggested actions based on the research

Use Markdown. Be objective and cite the sources where appropriate.`

const overflowMessage = "content is too long for the model context even after truncation; " +
	"shorten the input or raise analysis.context_size if the model supports it"

// AnalyzeContent runs one inference pass over content. customPrompt
// replaces the default instruction when non-empty. Failures are reported
// in the result, never returned or panicked.
func (a *Analyzer) AnalyzeContent(ctx context.Context, content, customPrompt string) models.AnalysisResult {
	a.inferMu.Lock()
	defer a.inferMu.Unlock()

	a.mu.RLock()
	model, state := a.model, a.state
	a.mu.RUnlock()
	if state != StateLoaded || model == nil {
		a.logger.Error("analysis requested without a loaded model")
		return a.fail(models.ErrCodeModelNotLoaded, "model not loaded; call LoadModel first")
	}

	budget := ComputeBudget(a.cfg.ContextSize, a.cfg.MaxTokens, a.budget)
	if budget.Rebalanced {
		a.logger.Warn("prompt budget rebalanced",
			"context_size", a.cfg.ContextSize,
			"configured_max_tokens", a.cfg.MaxTokens,
			"max_tokens", budget.MaxOutput,
			"input_tokens", budget.AvailableInput)
		a.metrics.IncRebalanced()
	}

	content, truncated := TruncateContent(content, budget.MaxChars)
	if truncated {
		a.logger.Warn("content truncated to fit the context window", "max_chars", budget.MaxChars)
	}

	instruction := customPrompt
	if instruction == "" {
		instruction = defaultInstruction
	}
	req := llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(instruction, content)},
		},
		MaxTokens:     budget.MaxOutput,
		Temperature:   a.cfg.Temperature,
		TopP:          a.cfg.TopP,
		TopK:          a.cfg.TopK,
		RepeatPenalty: a.cfg.RepeatPenalty,
	}

	a.logger.Info("analysis started",
		"input_chars", len(content),
		"input_tokens_est", cleaner.EstimateTokensRatio(content, a.budget.CharsPerToken),
		"max_tokens", budget.MaxOutput)
	a.events.Publish("Generating analysis...")

	start := time.Now()
	resp, err := a.infer(ctx, model, req)
	a.metrics.ObserveInference(time.Since(start))
	if err != nil {
		return a.classifyInferenceError(ctx, err)
	}

	a.logger.Info("analysis complete", "tokens", resp.TotalTokens, "elapsed", time.Since(start).Round(time.Millisecond))
	a.events.Publish("Analysis complete")
	a.metrics.ObserveAnalysis("success", resp.TotalTokens)
	return models.AnalysisResult{
		Success:    true,
		Summary:    resp.Text,
		TokensUsed: resp.TotalTokens,
	}
}

// GenerateResearchReport combines documents under a topic header, each
// capped at the per-source limit, and analyzes them with the report
// instruction. An empty document list fails with NO_CONTENT without
// touching the model.
func (a *Analyzer) GenerateResearchReport(ctx context.Context, documents []string, topic string) models.AnalysisResult {
	if len(documents) == 0 {
		return a.fail(models.ErrCodeNoContent, "No content provided for analysis")
	}
	if topic == "" {
		topic = "Research"
	}

	combined := CombineDocuments(documents, topic, a.budget.PerSourceChars)
	instruction := fmt.Sprintf(reportInstruction, len(documents), topic)
	if lang := a.languageHint(combined); lang != "" {
		instruction += fmt.Sprintf("\n\nWrite the report in %s.", lang)
	}

	a.logger.Info("generating research report", "topic", topic, "sources", len(documents))
	return a.AnalyzeContent(ctx, combined, instruction)
}

// CombineDocuments joins documents under "## Source N" headings after a
// "# Research: {topic}" header. Each document is cut to perSource
// characters first.
func CombineDocuments(documents []string, topic string, perSource int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Research: %s\n\n", topic)
	for i, doc := range documents {
		fmt.Fprintf(&b, "\n## Source %d\n%s\n", i+1, prefix(doc, perSource))
	}
	return b.String()
}

func userPrompt(instruction, content string) string {
	return instruction + "\n\n---\nCONTENT TO ANALYZE:\n" + content + "\n---"
}

// infer calls the model, turning a panic into an error.
func (a *Analyzer) infer(ctx context.Context, model llm.Model, req llm.ChatRequest) (resp *llm.ChatResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during inference: %v", r)
		}
	}()
	return model.ChatCompletion(ctx, req)
}

func (a *Analyzer) classifyInferenceError(ctx context.Context, err error) models.AnalysisResult {
	switch {
	case errors.Is(err, llm.ErrContextOverflow) || llm.IsOverflowMessage(err.Error()):
		a.logger.Error("context window exceeded", "error", err)
		return a.fail(models.ErrCodeContextOverflow, overflowMessage)
	case errors.Is(err, llm.ErrUnavailable):
		a.logger.Error("inference runtime unavailable", "error", err)
		return a.fail(models.ErrCodeDependencyMissing, "inference runtime unavailable: "+err.Error())
	case ctx.Err() != nil:
		a.logger.Warn("analysis canceled", "error", err)
		return a.fail(models.ErrCodeCanceled, "analysis canceled")
	default:
		a.logger.Error("analysis failed", "error", err)
		return a.fail(models.ErrCodeInference, err.Error())
	}
}

func (a *Analyzer) fail(code, msg string) models.AnalysisResult {
	a.metrics.ObserveAnalysis(code, 0)
	return models.NewAnalysisFailure(code, msg)
}
