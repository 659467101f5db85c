package report

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"pipeline-integrity/catalog"
	"pipeline-integrity/defect"
)

const systemPrompt = `You are an integrity engineering assistant for a pipeline defect management system.
You receive aggregate statistics from an in-line-inspection defect catalog and write a short
condition summary for an integrity engineer: overall defect population, severity distribution,
segments that concentrate high-severity defects, and a recommended next step.
Be factual and concise (under 250 words). Do not invent numbers that are not in the input.`

// GeminiClient generates natural-language integrity summaries from catalog
// statistics.
type GeminiClient struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiClient builds a client from the GEMINI_API_KEY environment
// variable.
func NewGeminiClient(ctx context.Context) (*GeminiClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %v", err)
	}

	model := client.GenerativeModel("gemini-1.5-flash")
	model.SetTemperature(0.4)
	model.SetMaxOutputTokens(400)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}

	return &GeminiClient{client: client, model: model}, nil
}

// Summarize produces an integrity condition summary for the given catalog
// statistics.
func (g *GeminiClient) Summarize(ctx context.Context, stats catalog.Stats) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(StatsPrompt(stats)))
	if err != nil {
		return "", fmt.Errorf("failed to generate report: %v", err)
	}

	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		break
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("empty report from model")
	}
	return text, nil
}

func (g *GeminiClient) Close() error {
	return g.client.Close()
}

// StatsPrompt renders catalog statistics as the deterministic plain-text
// block fed to the model. Keys are sorted so the same catalog always yields
// the same prompt.
func StatsPrompt(stats catalog.Stats) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Total catalogued defects: %d\n", stats.Total)

	sb.WriteString("Severity distribution:\n")
	for _, severity := range defect.Severities {
		count := stats.BySeverity[severity]
		fmt.Fprintf(&sb, "  %s: %d (%.1f%%)\n", severity, count, stats.SeverityShare[severity])
	}

	sb.WriteString("Defect types:\n")
	types := make([]string, 0, len(stats.ByType))
	for defectType := range stats.ByType {
		types = append(types, string(defectType))
	}
	sort.Strings(types)
	for _, defectType := range types {
		fmt.Fprintf(&sb, "  %s: %d\n", defectType, stats.ByType[defect.DefectType(defectType)])
	}

	sb.WriteString("Defects per segment:\n")
	segments := make([]int, 0, len(stats.BySegment))
	for segment := range stats.BySegment {
		segments = append(segments, segment)
	}
	sort.Ints(segments)
	for _, segment := range segments {
		fmt.Fprintf(&sb, "  segment %d: %d\n", segment, stats.BySegment[segment])
	}

	return sb.String()
}
