package chat

import (
	"context"
	"fmt"
	"strings"

	"speech-emotion/audio"
	"speech-emotion/classifier"

	"google.golang.org/genai"
)

const (
	defaultModel = "gemini-2.5-flash"

	systemPrompt = `You explain the output of a speech emotion classifier to the person who uploaded a short voice clip.
The classifier listens to the first three seconds only and picks one of: neutral, happy, sad, angry, fearful, disgust.
Write one short paragraph in plain language. Mention the top emotion and how sure the model is.
If the second emotion is close, say the clip is ambiguous. If the recording is quiet or noisy, say the result may be unreliable.
Never claim to know how the speaker actually feels. Keep it under 80 words.`

	fallbackNarration = "No explanation is available for this clip."
)

// Narrator writes a short explanation of a prediction using Gemini.
type Narrator struct {
	client *genai.Client
	model  string
}

// NewNarrator creates a Gemini-backed narrator. An empty apiKey is an error so
// callers can leave narration disabled.
func NewNarrator(ctx context.Context, apiKey string) (*Narrator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Narrator{client: client, model: defaultModel}, nil
}

// Narrate asks the model for a one-paragraph explanation.
func (n *Narrator) Narrate(ctx context.Context, prediction classifier.PredictionResult, diag audio.Diagnostics) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleModel),
		Temperature:       genai.Ptr(float32(0.4)),
		TopP:              genai.Ptr(float32(0.8)),
		MaxOutputTokens:   int32(160),
	}

	resp, err := n.client.Models.GenerateContent(
		ctx,
		n.model,
		[]*genai.Content{genai.NewContentFromText(BuildPrompt(prediction, diag), genai.RoleUser)},
		config,
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	return cleanResponse(resp.Text()), nil
}

// BuildPrompt renders the classifier output as the user turn.
func BuildPrompt(prediction classifier.PredictionResult, diag audio.Diagnostics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Top emotion: %s (%.1f%%)\n", prediction.Label, prediction.Confidence*100)
	b.WriteString("All emotions:\n")
	for _, lp := range prediction.Ranked {
		fmt.Fprintf(&b, "- %s: %.1f%%\n", lp.Label, lp.Probability*100)
	}
	fmt.Fprintf(&b, "Recording: peak %.2f, RMS %.3f, estimated SNR %.1f dB, %.0f%% silent, %.1f%% clipped\n",
		diag.Peak, diag.RMS, diag.SNRDb, diag.SilentProportion*100, diag.ClippedProportion*100)
	return b.String()
}

func cleanResponse(text string) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "*", ""))
	if text == "" {
		return fallbackNarration
	}
	return text
}
