// Package openai interprets free-text grower messages with an OpenAI model
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Intent names returned by the agent
const (
	IntentPlantStatus    = "PlantStatus"
	IntentRecordWatering = "RecordWatering"
	IntentGeneralQuery   = "GeneralQuery"
)

// AgentResponse defines the structured output from the OpenAI agent.
type AgentResponse struct {
	Intent      string `json:"intent" jsonschema_description:"One of PlantStatus, RecordWatering or GeneralQuery"`
	PlantName   string `json:"plant_name" jsonschema_description:"The plant the user refers to, exactly as listed, or empty"`
	AmountML    int    `json:"amount_ml" jsonschema_description:"Milliliters of water given when recording a watering, 0 if not stated"`
	UserMessage string `json:"user_message" jsonschema_description:"A short reply to show back to the user in their original language"`
}

// OpenAIService defines the interface for interacting with the OpenAI agent.
type OpenAIService interface {
	InterpretUserMessage(ctx context.Context, userMessage string, plantNames []string) (*AgentResponse, error)
}

// openAIServiceImpl implements the OpenAIService interface.
type openAIServiceImpl struct {
	client openai.Client
	schema interface{}
	model  openai.ChatModel
}

// GenerateSchema generates a JSON schema for a given type.
func GenerateSchema[T any]() interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	return schema
}

// NewOpenAIService creates and initializes a new OpenAIService.
func NewOpenAIService(apiKey, model string) (OpenAIService, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key not set")
	}
	chatModel := openai.ChatModel(model)
	if model == "" {
		chatModel = openai.ChatModelGPT4o
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	schema := GenerateSchema[AgentResponse]()

	return &openAIServiceImpl{
		client: client,
		schema: schema,
		model:  chatModel,
	}, nil
}

// SystemPrompt builds the instructions sent with every message
func SystemPrompt(plantNames []string) string {
	return fmt.Sprintf(`Sos un asistente de cultivo que ayuda a recordar los riegos de las plantas del usuario.

Plantas del usuario: %s

Comportamiento:
1. Si el usuario pregunta cuándo regar o cómo está una planta de la lista:
   - intent = "PlantStatus"
   - plant_name = el nombre exacto de la lista, o vacío si no queda claro.
2. Si el usuario cuenta que regó una planta:
   - intent = "RecordWatering"
   - plant_name = el nombre exacto de la lista.
   - amount_ml = mililitros si los menciona (convertí litros a ml), si no 0.
3. Cualquier otra cosa:
   - intent = "GeneralQuery"
   - plant_name = "", amount_ml = 0.
user_message: una respuesta breve en el idioma del usuario.

Respondé **estrictamente** en JSON.`, strings.Join(plantNames, ", "))
}

// InterpretUserMessage sends a message to the OpenAI agent and returns the structured response.
func (s *openAIServiceImpl) InterpretUserMessage(ctx context.Context, userMessage string, plantNames []string) (*AgentResponse, error) {
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "agent_response",
		Description: openai.String("Structured response containing intent, plant name, amount and user message"),
		Schema:      s.schema,
		Strict:      openai.Bool(true),
	}

	respFormat := openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: schemaParam},
	}

	chat, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt(plantNames)),
			openai.UserMessage(userMessage),
		},
		ResponseFormat: respFormat,
		Model:          s.model,
	})

	if err != nil {
		return nil, fmt.Errorf("error calling OpenAI API: %w", err)
	}

	if len(chat.Choices) == 0 || chat.Choices[0].Message.Content == "" {
		return nil, errors.New("received empty response from OpenAI")
	}

	return ParseAgentResponse(chat.Choices[0].Message.Content)
}

// ParseAgentResponse decodes and normalizes the model output
func ParseAgentResponse(content string) (*AgentResponse, error) {
	var agentResp AgentResponse
	if err := json.Unmarshal([]byte(content), &agentResp); err != nil {
		log.Printf("Failed to unmarshal OpenAI response: %s\nRaw response: %s", err, content)
		return nil, fmt.Errorf("error unmarshalling OpenAI response: %w", err)
	}

	switch agentResp.Intent {
	case IntentPlantStatus, IntentRecordWatering, IntentGeneralQuery:
	default:
		log.Printf("Agent returned unexpected intent: %s", agentResp.Intent)
		agentResp.Intent = IntentGeneralQuery
	}
	if agentResp.AmountML < 0 {
		agentResp.AmountML = 0
	}
	agentResp.PlantName = strings.TrimSpace(agentResp.PlantName)
	return &agentResp, nil
}
