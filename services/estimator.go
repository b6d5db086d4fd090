package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

var (
	ErrEstimatorUnavailable = errors.New("estimator not configured")
	ErrEstimateRejected     = errors.New("estimator returned an error")
	ErrEstimateMalformed    = errors.New("estimator reply is not valid JSON")
)

// Estimator is the external best-effort source of per-100g nutrients.
type Estimator interface {
	Estimate(ctx context.Context, name string) (*Estimate, error)
}

// Estimate is the estimator's reply. Every field may be missing.
type Estimate struct {
	Name     *string `json:"alimento"`
	Category *string `json:"categoria"`

	EnergyKcal100g   optFloat `json:"energia_kcal_100g"`
	Protein100g      optFloat `json:"proteina_g_100g"`
	Carbohydrate100g optFloat `json:"carboidrato_g_100g"`
	Fat100g          optFloat `json:"lipidios_g_100g"`
	Fiber100g        optFloat `json:"fibra_g_100g"`

	SodiumMg100g        optFloat `json:"sodio_mg_100g"`
	PotassiumMg100g     optFloat `json:"potassio_mg_100g"`
	CalciumMg100g       optFloat `json:"calcio_mg_100g"`
	IronMg100g          optFloat `json:"ferro_mg_100g"`
	MagnesiumMg100g     optFloat `json:"magnesio_mg_100g"`
	CholesterolMg100g   optFloat `json:"colesterol_mg_100g"`
	SaturatedFatG       optFloat `json:"ac_graxos_saturados_g"`
	MonounsaturatedFatG optFloat `json:"ac_graxos_monoinsaturados_g"`
	PolyunsaturatedFatG optFloat `json:"ac_graxos_poliinsaturados_g"`

	Units            optFloat `json:"unidades"`
	HouseholdMeasure *string  `json:"un_medida_caseira"`
	ApproxWeightG    optFloat `json:"peso_aproximado_g"`

	Error string `json:"erro,omitempty"`
}

const estimatorSystemPrompt = "Você é um nutricionista especialista. Responda apenas com JSON."

const estimatorPromptTemplate = `Forneça uma estimativa dos valores nutricionais para 100g de '%s'.
A resposta DEVE ser um único objeto JSON com as chaves:
"alimento" (nome canônico do alimento), "categoria",
"energia_kcal_100g", "proteina_g_100g", "carboidrato_g_100g", "lipidios_g_100g", "fibra_g_100g",
"sodio_mg_100g", "potassio_mg_100g", "calcio_mg_100g", "ferro_mg_100g", "magnesio_mg_100g",
"colesterol_mg_100g", "ac_graxos_saturados_g", "ac_graxos_monoinsaturados_g", "ac_graxos_poliinsaturados_g",
"unidades", "un_medida_caseira", "peso_aproximado_g".
Se não souber o que é o alimento, responda {"erro": "<motivo>"}. Apenas o JSON.`

// LLMEstimator asks an OpenAI-compatible chat endpoint (OpenAI, Gemini's
// compatibility layer, a local server) for the estimate.
type LLMEstimator struct {
	client *openai.Client
	model  string
	log    *zap.Logger
}

func NewLLMEstimator(apiKey, baseURL, model string, log *zap.Logger) *LLMEstimator {
	if log == nil {
		log = zap.NewNop()
	}
	if apiKey == "" {
		return &LLMEstimator{model: model, log: log}
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &LLMEstimator{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		log:    log,
	}
}

func (e *LLMEstimator) Estimate(ctx context.Context, name string) (*Estimate, error) {
	if e.client == nil {
		return nil, ErrEstimatorUnavailable
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: estimatorSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(estimatorPromptTemplate, name)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("estimator request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrEstimateMalformed)
	}

	raw := resp.Choices[0].Message.Content
	e.log.Debug("estimator reply", zap.String("food", name), zap.String("raw", raw))
	return ParseEstimate(raw)
}

var (
	fencePattern  = regexp.MustCompile("(?is)^```(?:json)?\\s*|\\s*```$")
	objectPattern = regexp.MustCompile(`(?s)\{.*\}`)
)

// ParseEstimate extracts the JSON object from a model reply, tolerating
// markdown fences and chatter around the object.
func ParseEstimate(raw string) (*Estimate, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrEstimateMalformed)
	}
	text = fencePattern.ReplaceAllString(text, "")

	var est Estimate
	if err := json.Unmarshal([]byte(text), &est); err != nil {
		obj := objectPattern.FindString(text)
		if obj == "" {
			return nil, fmt.Errorf("%w: %v", ErrEstimateMalformed, err)
		}
		est = Estimate{}
		if err := json.Unmarshal([]byte(obj), &est); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEstimateMalformed, err)
		}
	}
	if est.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrEstimateRejected, est.Error)
	}
	return &est, nil
}
