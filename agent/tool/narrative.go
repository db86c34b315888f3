package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"

	contractx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/contract"
)

const narrativeSystemPrompt = `You are a call-center business analyst.
Write a short narrative (3-5 sentences) answering the question using only
the findings provided. Never invent numbers; if a finding is missing, say
that data point is unavailable. Amounts are in RM.`

// NewNarrativeTool wraps a chat-completion client as an insight.narrative
// tool. The model is an opaque capability behind the same Invoke contract
// as the warehouse tools; callers get its timeout and error semantics
// through the ToolCall failure marker like any other tool.
func NewNarrativeTool(client *openaisdk.Client, model string, maxTokens int64, temperature float64) Tool {
	return Tool{
		Name: ToolInsightNarrative,
		Desc: "Narrative synthesis of retrieved findings for a business question.",
		Params: map[string]Param{
			"question": {Type: ParamString, Desc: "The user's question", Required: true},
			"findings": {Type: ParamString, Desc: "JSON-encoded findings to narrate", Required: true},
		},
		Invoker: InvokerFunc(func(ctx context.Context, args map[string]any) (any, error) {
			question, err := stringArg(args, "question")
			if err != nil {
				return nil, err
			}
			findings, err := stringArg(args, "findings")
			if err != nil {
				return nil, err
			}

			payload, err := json.Marshal(map[string]string{
				"question": question,
				"findings": findings,
			})
			if err != nil {
				return nil, fmt.Errorf("%w: marshal narrative payload: %v", contractx.ErrValidation, err)
			}

			resp, err := client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
				Model: openaisdk.ChatModel(model),
				Messages: []openaisdk.ChatCompletionMessageParamUnion{
					openaisdk.SystemMessage(narrativeSystemPrompt),
					openaisdk.UserMessage(string(payload)),
				},
				MaxCompletionTokens: openaisdk.Int(maxTokens),
				Temperature:         openaisdk.Float(temperature),
			})
			if err != nil {
				return nil, fmt.Errorf("%w: narrative completion: %v", contractx.ErrModelInvoke, err)
			}
			if len(resp.Choices) == 0 {
				return nil, fmt.Errorf("%w: narrative completion returned no choices", contractx.ErrSchemaViolation)
			}

			content := strings.TrimSpace(resp.Choices[0].Message.Content)
			if content == "" {
				return nil, fmt.Errorf("%w: narrative completion is empty", contractx.ErrSchemaViolation)
			}
			return content, nil
		}),
	}
}
