package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"rosterforge/internal/bus"
	"rosterforge/internal/config"
)

const llmTimeout = 30 * time.Second

// Explainer renders a finished run as a plain-language summary for store
// managers. With a language model configured it asks for a narrative; without
// one, or when the model call fails, it falls back to a deterministic
// template. A run never fails because of the explainer.
type Explainer struct {
	BaseAgent
	cfg   config.LLM
	model llms.Model
}

// NewExplainer builds the explainer and subscribes it to schedule messages
// addressed to it. The model client is optional.
func NewExplainer(b *bus.Bus, log *zap.SugaredLogger, cfg config.LLM) *Explainer {
	ex := &Explainer{BaseAgent: NewBaseAgent(NameExplainer, b, log), cfg: cfg}
	if cfg.Enabled {
		model, err := openai.New(
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
			openai.WithBaseURL(cfg.BaseURL),
		)
		if err != nil {
			log.Warnw("llm client unavailable, using template explanations", "error", err)
		} else {
			ex.model = model
		}
	}
	b.Subscribe(bus.TypeSchedule, ex.handleSchedule)
	return ex
}

func (ex *Explainer) handleSchedule(msg bus.Message) {
	if msg.Recipient != NameExplainer {
		return
	}
	p, ok := msg.Payload.(bus.SchedulePayload)
	if !ok {
		return
	}
	text, generated := ex.Explain(context.Background(), p)
	ex.Reply(msg, bus.TypeExplanation, bus.ExplanationPayload{
		StoreID:   p.Schedule.StoreID,
		Text:      text,
		Generated: generated,
	})
}

// Explain produces the summary text. The second return value reports whether
// a language model generated it.
func (ex *Explainer) Explain(ctx context.Context, p bus.SchedulePayload) (string, bool) {
	facts := ex.factSheet(p)
	if ex.model == nil {
		return facts, false
	}

	ctx, cancel := context.WithTimeout(ctx, llmTimeout)
	defer cancel()
	prompt := "You are summarising a retail shift schedule for a store manager. " +
		"Rewrite the following facts as a short, friendly briefing. Do not invent numbers.\n\n" + facts
	text, err := llms.GenerateFromSinglePrompt(ctx, ex.model, prompt,
		llms.WithMaxTokens(ex.cfg.MaxTokens),
		llms.WithTemperature(ex.cfg.Temperature),
	)
	if err != nil {
		ex.log.Warnw("llm generation failed, using template", "error", err)
		return facts, false
	}
	return strings.TrimSpace(text), true
}

// factSheet is the deterministic fallback and the grounding for the model
// prompt: coverage, hours per employee, remaining violations and the fixes
// applied.
func (ex *Explainer) factSheet(p bus.SchedulePayload) string {
	var b strings.Builder
	committed := p.Schedule.Committed()
	fmt.Fprintf(&b, "Schedule for store %s: %d assignments across %d shifts.\n",
		p.Schedule.StoreID, len(committed), len(p.Schedule.Shifts))

	if len(p.HourTotals) > 0 {
		ids := make([]string, 0, len(p.HourTotals))
		for id := range p.HourTotals {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		b.WriteString("Hours per employee:\n")
		for _, id := range ids {
			fmt.Fprintf(&b, "  %s: %.1fh\n", id, p.HourTotals[id])
		}
	}

	if p.Compliance != nil {
		fmt.Fprintf(&b, "Compliance score %.0f/100: %d hard and %d soft issues remaining.\n",
			p.Compliance.Score, len(p.Compliance.Hard()), len(p.Compliance.Soft()))
		for _, v := range p.Compliance.Violations {
			fmt.Fprintf(&b, "  [%s] %s\n", v.Rule, v.Description)
		}
	}

	if len(p.Resolutions) > 0 {
		fmt.Fprintf(&b, "Adjustments made during refinement (%d):\n", len(p.Resolutions))
		for _, res := range p.Resolutions {
			fmt.Fprintf(&b, "  %s\n", res.Describe())
		}
	}

	if unfilled := p.Schedule.Unfilled(); len(unfilled) > 0 {
		fmt.Fprintf(&b, "Unfilled seats: %d.\n", len(unfilled))
	}
	return b.String()
}
