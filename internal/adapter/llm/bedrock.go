// Package llm executes personas against an LLM backend. The Bedrock
// implementation speaks the Converse API and surfaces the inter-persona
// request capability to the model as the request_from_agent tool.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"agentorg/internal/domain"
	"agentorg/internal/infra/config"
	"agentorg/internal/infra/tracer"
)

const (
	requestTool    = "request_from_agent"
	defaultMaxIter = 8
	maxTokens      = 4096
)

// bedrockConverseAPI abstracts the Bedrock runtime methods for testability.
type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockExecutor implements domain.Executor via the AWS Bedrock Converse API.
type BedrockExecutor struct {
	client  bedrockConverseAPI
	model   string // fallback for personas without an explicit model
	maxIter int
	logger  *slog.Logger
}

// NewBedrockExecutor creates an executor using the default AWS credential chain.
func NewBedrockExecutor(cfg config.LLMConfig, logger *slog.Logger) (*BedrockExecutor, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	maxIter := cfg.MaxIter
	if maxIter <= 0 {
		maxIter = defaultMaxIter
	}

	return &BedrockExecutor{
		client:  bedrockruntime.NewFromConfig(awsCfg),
		model:   cfg.Model,
		maxIter: maxIter,
		logger:  logger,
	}, nil
}

// newBedrockExecutorWithClient creates a BedrockExecutor with an injected client (for testing).
func newBedrockExecutorWithClient(client bedrockConverseAPI, model string, logger *slog.Logger) *BedrockExecutor {
	return &BedrockExecutor{client: client, model: model, maxIter: defaultMaxIter, logger: logger}
}

// Execute runs the persona's Converse loop. When the model calls
// request_from_agent the dispatcher resolves it and the outcome is fed back
// as the tool result; the loop ends on the first response without tool calls
// or when the iteration budget runs out.
func (e *BedrockExecutor) Execute(ctx context.Context, spec *domain.PersonaSpec, message string, dispatcher domain.RequestDispatcher) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "persona.execute",
		trace.WithAttributes(attribute.String("persona", spec.Slug)),
	)
	defer span.End()

	model := spec.Model
	if model == "" {
		model = e.model
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(model),
		System: []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: spec.SystemPrompt},
		},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens: aws.Int32(maxTokens),
		},
		Messages: []types.Message{{
			Role: types.ConversationRoleUser,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: message},
			},
		}},
	}
	if dispatcher != nil && hasTool(spec, requestTool) {
		input.ToolConfig = requestToolConfig()
	}

	for i := 0; i < e.maxIter; i++ {
		output, err := e.client.Converse(ctx, input)
		if err != nil {
			tracer.RecordError(span, err)
			return "", mapBedrockError(err)
		}

		text, toolUses := splitOutput(output)
		if len(toolUses) == 0 {
			tracer.SetOK(span)
			return text, nil
		}

		// Echo the assistant turn, then answer each tool call.
		outMsg, _ := output.Output.(*types.ConverseOutputMemberMessage)
		input.Messages = append(input.Messages, outMsg.Value)

		var results []types.ContentBlock
		for _, use := range toolUses {
			results = append(results, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: use.ToolUseId,
					Content: []types.ToolResultContentBlock{
						&types.ToolResultContentBlockMemberText{
							Value: e.runTool(ctx, spec, use, dispatcher),
						},
					},
				},
			})
		}
		input.Messages = append(input.Messages, types.Message{
			Role:    types.ConversationRoleUser,
			Content: results,
		})
	}

	err := domain.NewDomainError("BedrockExecutor.Execute", domain.ErrExecutionFailed,
		fmt.Sprintf("persona %s exceeded %d tool iterations", spec.Slug, e.maxIter))
	tracer.RecordError(span, err)
	return "", err
}

// requestArgs is the tool input shape the model fills in.
type requestArgs struct {
	TargetAgent string `json:"target_agent"`
	DataType    string `json:"data_type"`
	Ask         string `json:"ask"`
}

func (e *BedrockExecutor) runTool(ctx context.Context, spec *domain.PersonaSpec, use types.ToolUseBlock, dispatcher domain.RequestDispatcher) string {
	name := aws.ToString(use.Name)
	if name != requestTool || dispatcher == nil {
		return marshalOutcome(domain.RequestOutcome{
			Status:  domain.RequestError,
			Message: fmt.Sprintf("tool %q is not available", name),
		})
	}

	var args requestArgs
	if raw := marshalDocument(use.Input); raw != nil {
		if err := json.Unmarshal(raw, &args); err != nil {
			return marshalOutcome(domain.RequestOutcome{
				Status:  domain.RequestError,
				Message: "malformed request_from_agent arguments",
			})
		}
	}

	e.logger.Debug("persona issued nested request",
		"source", spec.Slug,
		"target", args.TargetAgent,
		"data_type", args.DataType,
	)
	return marshalOutcome(dispatcher.RouteNestedRequest(ctx, args.TargetAgent, args.DataType, args.Ask))
}

func marshalOutcome(outcome domain.RequestOutcome) string {
	data, err := json.Marshal(outcome)
	if err != nil {
		return `{"status":"error","message":"internal marshalling failure"}`
	}
	return string(data)
}

func hasTool(spec *domain.PersonaSpec, name string) bool {
	for _, t := range spec.Tools {
		if t == name {
			return true
		}
	}
	return false
}

func requestToolConfig() *types.ToolConfiguration {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"target_agent": map[string]interface{}{
				"type":        "string",
				"description": "Slug of the persona to request from (e.g. 'accountant').",
			},
			"data_type": map[string]interface{}{
				"type":        "string",
				"description": "The type of data being requested (e.g. 'pnl', 'invoices').",
			},
			"ask": map[string]interface{}{
				"type":        "string",
				"description": "Natural language description of what is needed.",
			},
		},
		"required": []string{"target_agent", "data_type", "ask"},
	}

	return &types.ToolConfiguration{
		Tools: []types.Tool{
			&types.ToolMemberToolSpec{
				Value: types.ToolSpecification{
					Name:        aws.String(requestTool),
					Description: aws.String("Route a data request to another persona in the organization."),
					InputSchema: &types.ToolInputSchemaMemberJson{
						Value: document.NewLazyDocument(schema),
					},
				},
			},
		},
	}
}

func splitOutput(output *bedrockruntime.ConverseOutput) (string, []types.ToolUseBlock) {
	var text strings.Builder
	var toolUses []types.ToolUseBlock

	if outMsg, ok := output.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range outMsg.Value.Content {
			switch b := block.(type) {
			case *types.ContentBlockMemberText:
				text.WriteString(b.Value)
			case *types.ContentBlockMemberToolUse:
				toolUses = append(toolUses, b.Value)
			}
		}
	}
	return text.String(), toolUses
}

// marshalDocument converts a Bedrock document.Interface to json.RawMessage.
func marshalDocument(doc document.Interface) json.RawMessage {
	if doc == nil {
		return nil
	}
	var v interface{}
	if err := doc.UnmarshalSmithyDocument(&v); err != nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func mapBedrockError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return fmt.Errorf("%w: %s", domain.ErrRateLimit, msg)
		case "AccessDeniedException", "UnrecognizedClientException":
			return fmt.Errorf("%w: %s", domain.ErrAuthInvalid, msg)
		case "ModelNotReadyException", "ServiceUnavailableException", "InternalServerException":
			return fmt.Errorf("%w: %s", domain.ErrExecutionFailed, msg)
		}
	}

	return domain.WrapOp("bedrock", err)
}

var _ domain.Executor = (*BedrockExecutor)(nil)
