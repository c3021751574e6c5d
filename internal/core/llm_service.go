package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/plantae-ai/plantae-server/internal/config"
	"github.com/plantae-ai/plantae-server/internal/store"
)

const (
	defaultChatModelName   = "gemini-2.0-flash"
	defaultVisionModelName = "gemini-2.0-flash"

	chatSystemInstruction = "You are Plantae, a friendly and knowledgeable plant care assistant. " +
		"Answer questions about plant identification, care, watering, light, soil, pests and diseases. " +
		"Keep responses brief and engaging, break complex topics into digestible points, " +
		"and end with a follow-up question to maintain the conversation flow. " +
		"If a question is not about plants, gently steer the conversation back to plant care."

	identificationPrompt = `Analyze this plant image and provide a detailed identification.

Please format your response with the following sections:
OVERVIEW:
- Brief description of the plant
- Common name and scientific name
- Growth habit and size

CHARACTERISTICS:
- Leaf shape, arrangement, and texture
- Flower or fruit characteristics (if visible)
- Stem or trunk features

ECOLOGY:
- Native habitat and preferred growing conditions
- Climate adaptability
- Growth pattern and lifecycle

VALUE:
- Common uses (ornamental, medicinal, edible, etc.)
- Benefits to the environment or garden

Each section should have 2-3 bullet points with specific, accurate information. If you cannot determine certain information from the image, use "Information not available based on the image provided" for that bullet point.`

	healthPrompt = `Analyze this plant image for health issues and provide an assessment.

Please format your response with the following sections:
HEALTH STATUS:
- Overall condition assessment (healthy, stressed, diseased, etc.)
- Visible symptoms summary
- Estimated severity level

DISEASES:
- Potential diseases based on visible symptoms
- Confidence level of diagnosis

PESTS:
- Signs of pest infestation (if any)
- Impact on plant health

TREATMENT:
- Recommended interventions
- Specific products or solutions to consider

PREVENTION:
- Future care recommendations
- Preventative measures

Each section should have 2-3 bullet points with specific, actionable information. If you cannot determine certain information from the image, use "Information not available" for that bullet point.`
)

type AnalysisKind string

const (
	AnalysisIdentification AnalysisKind = "identification"
	AnalysisHealth         AnalysisKind = "health"
)

var expectedSections = map[AnalysisKind][]string{
	AnalysisIdentification: {"OVERVIEW:", "CHARACTERISTICS:", "ECOLOGY:", "VALUE:"},
	AnalysisHealth:         {"HEALTH STATUS:", "DISEASES:", "PESTS:", "TREATMENT:", "PREVENTION:"},
}

type LLMService struct {
	client *genai.Client
}

func NewLLMService() *LLMService {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(config.AppConfig.GeminiAPIKey))
	if err != nil {
		log.Fatalf("Failed to create GenAI client: %v", err)
	}

	return &LLMService{
		client: client,
	}
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			log.Printf("Error closing GenAI client: %v", err)
		} else {
			log.Println("GenAI client closed.")
		}
	}
}

// GetChatResponse sends the user's new message to Gemini along with the prior
// conversation and returns the assistant's reply. It has no store side
// effects; the caller decides what gets recorded.
func (s *LLMService) GetChatResponse(ctx context.Context, priorMessages []store.Message, userText string) (string, error) {
	model := s.client.GenerativeModel(defaultChatModelName)

	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(chatSystemInstruction)},
	}

	temp := float32(0.8)
	maxTokens := int32(1024)
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: &maxTokens,
		Temperature:     &temp,
	}

	chatSession := model.StartChat()
	chatSession.History = make([]*genai.Content, 0, len(priorMessages))
	for _, m := range priorMessages {
		role := "user"
		if m.Role == store.RoleAssistant {
			role = "model"
		}
		chatSession.History = append(chatSession.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}

	resp, err := chatSession.SendMessage(ctx, genai.Text(userText))
	if err != nil {
		return "", fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}

	text := collectText(resp)
	if text == "" {
		return "", fmt.Errorf("empty or non-text response from gemini")
	}
	return text, nil
}

// AnalyzeImage runs one of the two image analyses on a base64-encoded photo.
// Data URL prefixes ("data:image/jpeg;base64,...") are accepted and stripped.
func (s *LLMService) AnalyzeImage(ctx context.Context, imageBase64 string, kind AnalysisKind) (string, error) {
	prompt := identificationPrompt
	if kind == AnalysisHealth {
		prompt = healthPrompt
	}

	if idx := strings.Index(imageBase64, ","); idx != -1 && strings.HasPrefix(imageBase64, "data:") {
		imageBase64 = imageBase64[idx+1:]
	}
	imageData, err := base64.StdEncoding.DecodeString(imageBase64)
	if err != nil {
		return "", fmt.Errorf("invalid base64 image data: %w", err)
	}

	model := s.client.GenerativeModel(defaultVisionModelName)
	resp, err := model.GenerateContent(ctx,
		genai.Text(prompt),
		genai.ImageData("jpeg", imageData))
	if err != nil {
		return "", fmt.Errorf("gemini image analysis failed: %w", err)
	}

	text := collectText(resp)
	if text == "" {
		return "", fmt.Errorf("empty or non-text response from gemini")
	}

	for _, section := range expectedSections[kind] {
		if !strings.Contains(text, section) {
			log.Printf("Warning: %s analysis response is missing the %q section", kind, section)
		}
	}
	return text, nil
}

func collectText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			out.WriteString(string(txt))
		} else {
			log.Printf("Gemini response part was not text: %T", part)
		}
	}
	return strings.TrimSpace(out.String())
}
