package advisory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultModel is used when no model is configured
const DefaultModel = "gemini-2.5-flash"

const systemInstruction = `Role: You are the Naya Sahai Navigation Engine.
Output: JSON format only.
Task:
1. Provide a calm, 2-sentence empathetic summary.
2. Provide exactly 3 clear actionable steps in the following order:
   - Step 1: WHAT TO DO NOW (Immediate protective/financial action).
   - Step 2: WHAT TO DO IF BLOCKED (If authorities/company refuse to help).
   - Step 3: WHERE TO ESCALATE (Final official authority).

CRITICAL ROUTING RULES:
- PATH A: CONSUMER DISPUTES (E-commerce, Defects, Mis-selling, Services):
  - Use 1915 (National Consumer Helpline), NCH, and e-Daakhil.
  - NEVER suggest Police, FIR, or Cyber Cell (1930) for these.
- PATH B: CRIMINAL/CYBER CRIMES (Loan App Harassment, SIM Swap, UPI Fraud, Harassment, Extortion):
  - Use 1930, Cyber Cell, and National Cyber Crime Reporting Portal.
  - FOR LOAN APPS: Prioritize Bank Freeze and Cyber Cell over RBI Sachet. RBI Sachet is regulatory ONLY.
  - NEVER suggest NCH (1915) for these.

No legal jargon. Keep it mobile-friendly.`

// GeminiOracle generates guidance with the Gemini API
type GeminiOracle struct {
	client *genai.Client
	model  string
}

// NewGeminiOracle creates a Gemini-backed oracle
func NewGeminiOracle(ctx context.Context, apiKey, model string) (*GeminiOracle, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiOracle{
		client: client,
		model:  model,
	}, nil
}

// Generate implements Oracle
func (o *GeminiOracle) Generate(ctx context.Context, req Request) (*Payload, error) {
	situation := req.Situation()
	if situation == "" {
		return nil, errors.New("empty incident description")
	}

	contents := []*genai.Content{
		genai.NewContentFromText(fmt.Sprintf("Situation: %q.", situation), genai.RoleUser),
	}

	resp, err := o.client.Models.GenerateContent(ctx, o.model, contents, generateConfig())
	if err != nil {
		return nil, fmt.Errorf("Gemini generate failed: %w", err)
	}

	return decodePayload(resp.Text())
}

func generateConfig() *genai.GenerateContentConfig {
	steps := int64(StepCount)
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"summary": {Type: genai.TypeString},
				"steps": {
					Type:     genai.TypeArray,
					Items:    &genai.Schema{Type: genai.TypeString},
					MinItems: &steps,
					MaxItems: &steps,
				},
			},
			Required: []string{"summary", "steps"},
		},
	}
}

// decodePayload parses the oracle's JSON text. Shape checks are left to
// Reconcile.
func decodePayload(text string) (*Payload, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("empty response from Gemini API")
	}

	var p Payload
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return nil, fmt.Errorf("failed to decode advisory payload: %w", err)
	}
	p.Source = SourceOracle
	return &p, nil
}
