package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/roamline/trip-cli/internal/cost"
	"github.com/roamline/trip-cli/internal/model"
	"github.com/roamline/trip-cli/internal/resilience"
	"github.com/roamline/trip-cli/pkg/anthropic"
)

const (
	narrativeWorkerID   = "narrative"
	narrativeMaxResults = 12
	narrativeTimeout    = 90 * time.Second

	// DefaultNarrativeModel is the LLM used for narrative suggestions.
	DefaultNarrativeModel = "claude-haiku-4-5-20251001"
)

const narrativeSystemPrompt = `You suggest travel recommendations. Respond with a JSON array only, no prose. Each element: {"title": string, "type": "place"|"activity"|"food"|"lodging"|"event", "summary": string, "location": string, "tags": [string]}.`

// NarrativeWorker sources candidates from an LLM, useful for experiential
// recommendations structured APIs miss. Its output is always provisional
// until cross-source validation confirms it.
type NarrativeWorker struct {
	client  anthropic.Client
	tracker *cost.Tracker
	llm     string
	retry   resilience.RetryConfig
}

// NewNarrativeWorker creates a narrative worker. tracker may be nil.
func NewNarrativeWorker(client anthropic.Client, llm string, tracker *cost.Tracker) *NarrativeWorker {
	if llm == "" {
		llm = DefaultNarrativeModel
	}
	return &NarrativeWorker{
		client:  client,
		tracker: tracker,
		llm:     llm,
		retry:   resilience.DefaultRetryConfig(),
	}
}

func (w *NarrativeWorker) ID() string       { return narrativeWorkerID }
func (w *NarrativeWorker) Provider() string { return "anthropic" }

// Plan builds a single prompt covering the whole intent; the LLM handles the
// breadth in one call.
func (w *NarrativeWorker) Plan(intent model.SessionIntent) model.WorkerAssignment {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Suggest up to %d recommendations for a trip to %s", narrativeMaxResults, intent.Destination)
	if intent.DurationDays > 0 {
		fmt.Fprintf(&sb, " lasting %d days", intent.DurationDays)
	}
	if intent.Season != "" {
		fmt.Fprintf(&sb, " in %s", intent.Season)
	}
	if len(intent.Interests) > 0 {
		fmt.Fprintf(&sb, ", focused on %s", strings.Join(intent.Interests, ", "))
	}
	sb.WriteString(".")

	return model.WorkerAssignment{
		WorkerID:   narrativeWorkerID,
		Queries:    []string{sb.String()},
		MaxResults: narrativeMaxResults,
		TimeoutMS:  narrativeTimeout.Milliseconds(),
	}
}

// Execute sends each prompt and parses the JSON suggestions. Token usage is
// accumulated across calls for cost attribution.
func (w *NarrativeWorker) Execute(ctx context.Context, assignment model.WorkerAssignment) model.WorkerOutput {
	log := zap.L().With(zap.String("worker", narrativeWorkerID))
	var candidates []model.Candidate
	var failed []string
	usage := &model.TokenUsage{}

	for _, prompt := range assignment.Queries {
		resp, err := resilience.DoVal(ctx, w.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return w.client.CreateMessage(ctx, anthropic.MessageRequest{
				Model:     w.llm,
				MaxTokens: 4096,
				System:    narrativeSystemPrompt,
				Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
			})
		})
		if err != nil {
			log.Warn("narrative: completion failed", zap.Error(err))
			failed = append(failed, prompt)
			continue
		}

		usage.Add(model.TokenUsage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		})
		if w.tracker != nil {
			w.tracker.RecordTokens(narrativeWorkerID, w.llm, model.TokenUsage{
				InputTokens:  resp.Usage.InputTokens,
				OutputTokens: resp.Usage.OutputTokens,
			})
		}

		parsed, err := parseSuggestions(resp.Text())
		if err != nil {
			log.Warn("narrative: unparseable response", zap.Error(err))
			failed = append(failed, prompt)
			continue
		}
		for _, c := range parsed {
			if assignment.MaxResults > 0 && len(candidates) >= assignment.MaxResults {
				break
			}
			candidates = append(candidates, c)
		}
	}

	return settle(narrativeWorkerID, candidates, failed, len(assignment.Queries), usage)
}

type suggestion struct {
	Title    string   `json:"title"`
	Type     string   `json:"type"`
	Summary  string   `json:"summary"`
	Location string   `json:"location"`
	Tags     []string `json:"tags"`
}

// parseSuggestions extracts the JSON array from a completion, tolerating
// surrounding prose or a markdown fence.
func parseSuggestions(text string) ([]model.Candidate, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, eris.New("narrative: no JSON array in response")
	}

	var suggestions []suggestion
	if err := json.Unmarshal([]byte(text[start:end+1]), &suggestions); err != nil {
		return nil, eris.Wrap(err, "narrative: parse suggestions")
	}

	observed := time.Now().UTC()
	candidates := make([]model.Candidate, 0, len(suggestions))
	for _, s := range suggestions {
		if s.Title == "" {
			continue
		}
		candidates = append(candidates, model.Candidate{
			ID:           uuid.NewString(),
			Type:         suggestionType(s.Type),
			Title:        s.Title,
			Summary:      s.Summary,
			LocationText: s.Location,
			Origin:       narrativeWorkerID,
			Confidence:   model.ConfidenceProvisional,
			Tags:         s.Tags,
			ObservedAt:   &observed,
		})
	}
	return candidates, nil
}

func suggestionType(s string) model.CandidateType {
	switch model.CandidateType(s) {
	case model.TypeActivity, model.TypeFood, model.TypeLodging, model.TypeEvent:
		return model.CandidateType(s)
	default:
		return model.TypePlace
	}
}
