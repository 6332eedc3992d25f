package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/opencouncil/meeting-search/internal/core/domain"
	"github.com/opencouncil/meeting-search/internal/core/ports"
)

type AnswerLimits struct {
	MaxToolCalls     int
	Timeout          time.Duration
	StepTimeout      time.Duration
	StreamChunkChars int
	CacheTTL         time.Duration
}

// AnswerUseCase runs the question path: a bounded tool-calling loop against
// the generation model, citation normalization over the accumulated source
// set, follow-up synthesis, and cache persistence. Events are emitted on
// the caller's channel in the strict stream order and the channel is closed
// after the terminal event.
type AnswerUseCase struct {
	generator  ports.Generator
	tools      *ToolRegistry
	cache      ports.AnswerCache
	publisher  ports.EventPublisher
	limits     AnswerLimits
	newCacheID func() (string, error)
	now        func() time.Time
}

func NewAnswerUseCase(
	generator ports.Generator,
	tools *ToolRegistry,
	cache ports.AnswerCache,
	publisher ports.EventPublisher,
	newCacheID func() (string, error),
	limits AnswerLimits,
) *AnswerUseCase {
	if limits.MaxToolCalls <= 0 {
		limits.MaxToolCalls = 6
	}
	if limits.Timeout <= 0 {
		limits.Timeout = 45 * time.Second
	}
	if limits.StepTimeout <= 0 {
		limits.StepTimeout = 20 * time.Second
	}
	if limits.StreamChunkChars <= 0 {
		limits.StreamChunkChars = 120
	}
	if limits.CacheTTL <= 0 {
		limits.CacheTTL = 30 * 24 * time.Hour
	}
	return &AnswerUseCase{
		generator:  generator,
		tools:      tools,
		cache:      cache,
		publisher:  publisher,
		limits:     limits,
		newCacheID: newCacheID,
		now:        time.Now,
	}
}

type plannerStep struct {
	Type   string         `json:"type"`
	Tool   string         `json:"tool"`
	Input  map[string]any `json:"input"`
	Answer string         `json:"answer"`
}

// Stream executes one question turn. It always closes the events channel,
// and always ends the emitted sequence with exactly one done or error event
// unless the client context is gone.
func (uc *AnswerUseCase) Stream(ctx context.Context, question string, history []domain.ConversationTurn, events chan<- domain.StreamEvent) {
	defer close(events)

	question = strings.TrimSpace(question)
	if question == "" {
		uc.emit(ctx, events, domain.StreamEvent{Type: domain.StreamEventError, Error: "question is required"})
		return
	}

	loopCtx, cancel := context.WithTimeout(ctx, uc.limits.Timeout)
	defer cancel()

	scratchpad := make([]string, 0, uc.limits.MaxToolCalls)
	sources := make(map[string]domain.SearchResult)
	finalAnswer := ""
	toolCalls := 0

	for i := 0; i <= uc.limits.MaxToolCalls; i++ {
		if loopCtx.Err() != nil {
			break
		}

		step, err := uc.nextStep(loopCtx, question, history, scratchpad)
		if err != nil {
			if isTimeoutError(err) || loopCtx.Err() != nil {
				break
			}
			uc.emit(ctx, events, domain.StreamEvent{Type: domain.StreamEventError, Error: "answer generation failed"})
			slog.Error("planner_step_failed", "error", err)
			return
		}

		if step.Type == "final" {
			finalAnswer = strings.TrimSpace(step.Answer)
			break
		}

		if toolCalls >= uc.limits.MaxToolCalls {
			break
		}
		toolCalls++

		if !uc.emit(ctx, events, domain.StreamEvent{
			Type:         domain.StreamEventResearchStep,
			Tool:         step.Tool,
			InputSummary: summarizeToolInput(step.Input),
		}) {
			return
		}

		toolCtx, toolCancel := context.WithTimeout(loopCtx, uc.limits.StepTimeout)
		outcome, execErr := uc.tools.Execute(toolCtx, step.Tool, step.Input, question)
		toolCancel()
		if execErr != nil {
			// Reported back to the model so it can adapt; not fatal for
			// the turn.
			errorPayload, _ := json.Marshal(map[string]string{"error": execErr.Error()})
			scratchpad = append(scratchpad, fmt.Sprintf("%s -> %s", step.Tool, errorPayload))
			continue
		}

		for _, source := range outcome.Sources {
			sources[source.Key()] = source
		}
		scratchpad = append(scratchpad, fmt.Sprintf("%s -> %s", outcome.Tool, outcome.Output))
	}

	if finalAnswer == "" {
		finalAnswer = uc.finalizeFromScratchpad(ctx, question, scratchpad)
	}
	if finalAnswer == "" {
		uc.emit(ctx, events, domain.StreamEvent{
			Type:  domain.StreamEventError,
			Error: domain.ErrGenerationTimeout.Error(),
		})
		return
	}

	answerText, citations := normalizeCitations(finalAnswer, sources)

	for _, chunk := range splitAnswerChunks(answerText, uc.limits.StreamChunkChars) {
		if !uc.emit(ctx, events, domain.StreamEvent{Type: domain.StreamEventAnswerChunk, Text: chunk}) {
			return
		}
	}

	if followups := uc.suggestFollowups(ctx, question, answerText); len(followups) > 0 {
		if !uc.emit(ctx, events, domain.StreamEvent{Type: domain.StreamEventFollowups, Followups: followups}) {
			return
		}
	}

	if ctx.Err() != nil {
		// Aborted turn: no cache write.
		return
	}

	if cacheID := uc.persist(ctx, question, answerText, citations); cacheID != "" {
		if !uc.emit(ctx, events, domain.StreamEvent{Type: domain.StreamEventCacheID, CacheID: cacheID}) {
			return
		}
	}

	uc.emit(ctx, events, domain.StreamEvent{Type: domain.StreamEventDone, Citations: citations})
}

func (uc *AnswerUseCase) emit(ctx context.Context, events chan<- domain.StreamEvent, event domain.StreamEvent) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

func (uc *AnswerUseCase) nextStep(ctx context.Context, question string, history []domain.ConversationTurn, scratchpad []string) (plannerStep, error) {
	stepCtx, cancel := context.WithTimeout(ctx, uc.limits.StepTimeout)
	defer cancel()

	raw, err := uc.generator.GenerateJSONFromPrompt(stepCtx, buildPlannerPrompt(question, history, scratchpad, uc.tools.Catalog()))
	if err != nil {
		return plannerStep{}, err
	}

	step, err := parsePlannerStep(raw)
	if err == nil {
		return step, nil
	}

	repairCtx, repairCancel := context.WithTimeout(ctx, uc.limits.StepTimeout)
	defer repairCancel()
	repaired, repairErr := uc.generator.GenerateJSONFromPrompt(repairCtx, buildPlannerRepairPrompt(raw))
	if repairErr != nil {
		return plannerStep{}, repairErr
	}
	return parsePlannerStep(repaired)
}

// finalizeFromScratchpad asks for a direct answer when the loop ended
// without a final step (iteration cap or per-step timeout).
func (uc *AnswerUseCase) finalizeFromScratchpad(ctx context.Context, question string, scratchpad []string) string {
	if len(scratchpad) == 0 {
		return ""
	}

	finalCtx, cancel := context.WithTimeout(ctx, uc.limits.StepTimeout)
	defer cancel()

	answer, err := uc.generator.GenerateFromPrompt(finalCtx, buildForcedAnswerPrompt(question, scratchpad))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(answer)
}

func (uc *AnswerUseCase) suggestFollowups(ctx context.Context, question, answer string) []string {
	followupCtx, cancel := context.WithTimeout(ctx, uc.limits.StepTimeout)
	defer cancel()

	raw, err := uc.generator.GenerateJSONFromPrompt(followupCtx, buildFollowupPrompt(question, answer))
	if err != nil {
		// Non-fatal: the event is simply omitted.
		return nil
	}

	var parsed struct {
		Followups []string `json:"followups"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil
	}

	out := make([]string, 0, 3)
	for _, followup := range parsed.Followups {
		followup = strings.TrimSpace(followup)
		if followup == "" {
			continue
		}
		out = append(out, followup)
		if len(out) == 3 {
			break
		}
	}
	if len(out) < 2 {
		return nil
	}
	return out
}

func (uc *AnswerUseCase) persist(ctx context.Context, question, answer string, citations []domain.Citation) string {
	const maxIDAttempts = 3

	var cacheID string
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := uc.newCacheID()
		if err != nil {
			slog.Error("cache_id_generation_failed", "error", err)
			return ""
		}

		now := uc.now().UTC()
		cached := domain.CachedAnswer{
			CacheID:   id,
			Query:     question,
			Answer:    answer,
			Citations: citations,
			CreatedAt: now,
			ExpiresAt: now.Add(uc.limits.CacheTTL),
		}
		err = uc.cache.Put(ctx, cached)
		if err == nil {
			cacheID = id
			break
		}
		// Id collisions come back as temporary; regenerate and retry.
		if !domain.IsKind(err, domain.ErrTemporary) || attempt == maxIDAttempts-1 {
			slog.Error("answer_cache_put_failed", "error", err)
			return ""
		}
	}
	if cacheID == "" {
		return ""
	}

	if uc.publisher != nil {
		if err := uc.publisher.PublishAnswerCached(ctx, cacheID, question); err != nil {
			slog.Warn("answer_cached_publish_failed", "cache_id", cacheID, "error", err)
		}
	}
	return cacheID
}

func parsePlannerStep(raw string) (plannerStep, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return plannerStep{}, fmt.Errorf("empty planner response")
	}
	var step plannerStep
	if err := json.Unmarshal([]byte(raw), &step); err != nil {
		return plannerStep{}, fmt.Errorf("unmarshal planner json: %w", err)
	}
	step.Type = strings.ToLower(strings.TrimSpace(step.Type))
	step.Tool = strings.ToLower(strings.TrimSpace(step.Tool))
	switch step.Type {
	case "tool", "final":
		return step, nil
	default:
		return plannerStep{}, fmt.Errorf("unsupported step type: %q", step.Type)
	}
}

func isTimeoutError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

var citationMarkerRe = regexp.MustCompile(`\[([a-z_]+):([^\[\]\s]+)\]`)

// normalizeCitations rewrites inline [content_type:source_id] markers to
// numbered [n] markers in first-use order. Markers that don't resolve
// against the accumulated source set are dropped, never fabricated.
func normalizeCitations(answer string, sources map[string]domain.SearchResult) (string, []domain.Citation) {
	citations := make([]domain.Citation, 0, 4)
	indexByKey := make(map[string]int)

	text := citationMarkerRe.ReplaceAllStringFunc(answer, func(marker string) string {
		groups := citationMarkerRe.FindStringSubmatch(marker)
		key := groups[1] + ":" + groups[2]

		if index, ok := indexByKey[key]; ok {
			return fmt.Sprintf("[%d]", index)
		}

		source, ok := sources[key]
		if !ok {
			return ""
		}

		index := len(citations) + 1
		indexByKey[key] = index
		citations = append(citations, domain.Citation{
			Index:       index,
			ContentType: source.ContentType,
			SourceID:    source.SourceID,
			Snippet:     source.Snippet,
			Metadata:    source.Metadata,
		})
		return fmt.Sprintf("[%d]", index)
	})

	text = strings.TrimSpace(strings.ReplaceAll(text, "  ", " "))
	return text, citations
}

func summarizeToolInput(input map[string]any) string {
	if len(input) == 0 {
		return ""
	}
	payload, err := json.Marshal(input)
	if err != nil {
		return ""
	}
	summary := string(payload)
	if utf8.RuneCountInString(summary) > 120 {
		summary = string([]rune(summary)[:120]) + "…"
	}
	return summary
}

func splitAnswerChunks(text string, chunkChars int) []string {
	if strings.TrimSpace(text) == "" {
		return []string{""}
	}
	if chunkChars <= 0 || utf8.RuneCountInString(text) <= chunkChars {
		return []string{text}
	}

	parts := make([]string, 0, utf8.RuneCountInString(text)/chunkChars+1)
	runes := []rune(text)
	for start := 0; start < len(runes); start += chunkChars {
		end := start + chunkChars
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}

func buildPlannerPrompt(question string, history []domain.ConversationTurn, scratchpad []string, catalog []string) string {
	historyLines := make([]string, 0, len(history)*2)
	for _, turn := range history {
		if q := strings.TrimSpace(turn.Question); q != "" {
			historyLines = append(historyLines, "user: "+q)
		}
		if a := strings.TrimSpace(turn.Answer); a != "" {
			historyLines = append(historyLines, "assistant: "+a)
		}
	}
	if len(historyLines) == 0 {
		historyLines = append(historyLines, "(empty)")
	}
	if len(scratchpad) == 0 {
		scratchpad = append(scratchpad, "(no tool outputs yet)")
	}

	return fmt.Sprintf(`You are the research planner of a civic-meeting search assistant.
Return ONLY a valid JSON object with one step.
Schema:
{"type":"tool","tool":"<tool name>","input":{...}}
or
{"type":"final","answer":"..."}

Available tools:
%s

When writing the final answer, cite every claim drawn from a retrieved
source by appending its ref marker inline, e.g. "Council approved the
bylaw [motion:m-123]." Only use refs that appear in tool outputs.

Prior conversation turns:
%s

Tool outputs so far:
%s

Current user question:
%s
`, strings.Join(catalog, "\n"), strings.Join(historyLines, "\n"), strings.Join(scratchpad, "\n"), question)
}

func buildPlannerRepairPrompt(raw string) string {
	return fmt.Sprintf(`Convert the following text into a valid JSON object for this schema:
{"type":"tool","tool":"<tool name>","input":{...}}
or {"type":"final","answer":"..."}
Return only JSON.
Text:
%s`, raw)
}

func buildForcedAnswerPrompt(question string, scratchpad []string) string {
	return fmt.Sprintf(`Answer the user's question directly from the research
notes below. Cite sources inline with their ref markers, e.g. [motion:m-123].
If the notes are insufficient, say so plainly.

Research notes:
%s

Question:
%s
`, strings.Join(scratchpad, "\n"), question)
}

func buildFollowupPrompt(question, answer string) string {
	return fmt.Sprintf(`Given this question and answer about civic-meeting
records, suggest 2-3 short follow-up questions a resident might ask next.
Return ONLY JSON: {"followups":["...","..."]}

Question:
%s

Answer:
%s
`, question, answer)
}
