package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// --- Vision Model Prompts ---
const VisionSystemPrompt = "You are a document OCR engine. Your task is to read the provided document image or PDF page and return every piece of text it contains, preserving reading order. Accuracy and completeness are of utmost importance."
const VisionUserPrompt = `Transcribe all text visible in the provided document.

Follow these instructions:

Text: Return all text content as plain text, line by line, in natural reading order.
Tables: Flatten tables row by row, separating cells with a single space.
Stamps and seals: Transcribe any legible text inside stamps, seals or signatures.
Noise: Ignore purely decorative elements, logos without text, and page furniture such as page numbers.

Return ONLY the transcribed text. Do not add commentary, headers, or markdown fences.`

// --- Arbiter Model Prompt ---
const ArbiterSystemPrompt = "You are an expert document analyst for a verification service. You classify documents, extract structured data against a schema, evaluate business rules, and judge whether differences between two renditions of the same document are substantive. You must output your response as a single valid JSON object."

// VertexClient holds all pre-configured generative models for the pipeline.
type VertexClient struct {
	// VisionModel transcribes document pages (OCR).
	VisionModel *genai.GenerativeModel
	// ArbiterModel answers classification, extraction, rule-evaluation and
	// comparison-arbitration calls in JSON mode.
	ArbiterModel *genai.GenerativeModel
	baseClient   *genai.Client
}

// NewVertexClient creates a new client holding all necessary models.
func NewVertexClient(ctx context.Context, projectID, region string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	modelName := GetEnv("VERTEX_AI_MODEL", "gemini-1.5-pro")

	// --- Configure the vision model ---
	visionModel := baseClient.GenerativeModel(modelName)
	visionModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(VisionSystemPrompt)},
	}
	visionModel.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.0),
	}

	// --- Configure the arbiter model ---
	arbiterModel := baseClient.GenerativeModel(modelName)
	arbiterModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(ArbiterSystemPrompt)},
	}
	arbiterModel.GenerationConfig = genai.GenerationConfig{
		// Force JSON output. This is a critical setting for this model.
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}
	arbiterModel.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	return &VertexClient{
		VisionModel:  visionModel,
		ArbiterModel: arbiterModel,
		baseClient:   baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

// ResponseText concatenates the text parts of a model response. Multiple text
// parts are rare but legal, so they are joined in order.
func ResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var out string
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			out += string(txt)
		}
	}
	return out
}
