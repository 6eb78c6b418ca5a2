package openaichat

import (
	"encoding/json"

	"github.com/openai/openai-go"

	"github.com/rhuss/converser/pkg/api"
	"github.com/rhuss/converser/pkg/provider"
)

// buildParams nativizes the neutral request into Chat Completions parameters.
func (p *ChatProvider) buildParams(req *provider.Request) (openai.ChatCompletionNewParams, error) {
	messages, err := p.nativizeHistory(req.Messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    req.Model,
		Messages: messages,
	}

	c := req.Controls
	if c.Temperature != nil {
		params.Temperature = openai.Float(*c.Temperature)
	}
	if c.TopP != nil {
		params.TopP = openai.Float(*c.TopP)
	}
	if c.MaxTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*c.MaxTokens))
	}
	if c.FrequencyPenalty != nil {
		params.FrequencyPenalty = openai.Float(*c.FrequencyPenalty)
	}
	if c.PresencePenalty != nil {
		params.PresencePenalty = openai.Float(*c.PresencePenalty)
	}
	if len(c.StopSequences) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{
			OfStringArray: c.StopSequences,
		}
	}

	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  openai.FunctionParameters(tool.Schema),
			},
		})
	}

	return params, nil
}

// nativizeHistory converts the neutral history into chat messages. Invocation
// messages are folded into the preceding assistant message's tool_calls;
// result messages become tool-role messages keyed by invocation ID.
// Invocations with no matching result anywhere in the history are dropped
// with a warning, since the backend rejects tool_calls left unanswered.
func (p *ChatProvider) nativizeHistory(history []api.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	answered := resultIDs(history)

	var messages []openai.ChatCompletionMessageParamUnion

	// Pending assistant turn being assembled: text plus any tool calls that
	// follow it in the neutral history.
	var pendingText string
	var pendingCalls []openai.ChatCompletionMessageToolCallParam
	havePending := false

	flush := func() {
		if !havePending {
			return
		}
		if len(pendingCalls) == 0 {
			messages = append(messages, openai.AssistantMessage(pendingText))
		} else {
			asst := &openai.ChatCompletionAssistantMessageParam{
				Role:      "assistant",
				ToolCalls: pendingCalls,
			}
			if pendingText != "" {
				asst.Content.OfString = openai.String(pendingText)
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: asst})
		}
		pendingText, pendingCalls, havePending = "", nil, false
	}

	for _, m := range history {
		switch m.Role {
		case api.RoleSupervisor:
			flush()
			messages = append(messages, openai.SystemMessage(p.textOf(m)))

		case api.RoleUser:
			flush()
			messages = append(messages, openai.UserMessage(p.textOf(m)))

		case api.RoleDocument:
			flush()
			messages = append(messages, openai.UserMessage(documentText(m)))

		case api.RoleAssistant:
			flush()
			pendingText = p.textOf(m)
			havePending = true

		case api.RoleInvocation:
			if m.Invocation == nil {
				continue
			}
			if !answered[m.Invocation.InvocationID] {
				p.logger.Warn("dropping invocation without result",
					"invocation_id", m.Invocation.InvocationID, "name", m.Invocation.Name)
				continue
			}
			args, err := json.Marshal(m.Invocation.Arguments)
			if err != nil {
				return nil, api.NewNativizationError("openai-chat",
					"invocation arguments not serializable: "+err.Error())
			}
			if !havePending {
				// A tool call with no preceding assistant turn still needs
				// an assistant carrier message.
				havePending = true
			}
			pendingCalls = append(pendingCalls, openai.ChatCompletionMessageToolCallParam{
				ID:   m.Invocation.InvocationID,
				Type: "function",
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      m.Invocation.Name,
					Arguments: string(args),
				},
			})

		case api.RoleResult:
			flush()
			if m.Result == nil {
				continue
			}
			body := m.Result.Error
			if body == "" {
				body = api.JoinText(m.Result.Content)
			}
			messages = append(messages, openai.ToolMessage(body, m.Result.InvocationID))

		default:
			return nil, api.NewNativizationError("openai-chat", "unknown role "+string(m.Role))
		}
	}
	flush()

	return messages, nil
}

// resultIDs collects the invocation IDs that have a result message in the
// history.
func resultIDs(history []api.Message) map[string]bool {
	ids := make(map[string]bool)
	for _, m := range history {
		if m.Role == api.RoleResult && m.Result != nil {
			ids[m.Result.InvocationID] = true
		}
	}
	return ids
}

// textOf extracts the textual content of a message, warn-dropping image parts
// the backend adapter does not carry.
func (p *ChatProvider) textOf(m api.Message) string {
	var parts []api.Content
	switch m.Role {
	case api.RoleUser:
		parts = m.User.Content
	case api.RoleAssistant:
		parts = m.Assistant.Content
	case api.RoleSupervisor:
		parts = m.Supervisor.Content
	}
	for _, part := range parts {
		if part.Type != api.ContentTypeText {
			p.logger.Warn("dropping non-text content part", "type", part.Type, "message_id", m.ID)
		}
	}
	return api.JoinText(parts)
}

func documentText(m api.Message) string {
	if m.Document == nil {
		return ""
	}
	return "[document " + m.Document.DocumentID + "]\n" + api.JoinText(m.Document.Content)
}

// normalizeChoice converts one completion choice into neutral messages: an
// assistant message when text is present, then one invocation message per
// tool call in order.
func normalizeChoice(choice openai.ChatCompletionChoice) ([]api.Message, error) {
	var messages []api.Message

	if choice.Message.Content != "" {
		messages = append(messages, api.NewAssistantMessage(api.TextContent(choice.Message.Content)))
	}

	for _, tc := range choice.Message.ToolCalls {
		args, err := parseArguments(tc.Function.Arguments)
		if err != nil {
			return nil, api.NewNormalizationError("openai-chat",
				tc.Function.Arguments, "tool call arguments are not valid JSON")
		}
		messages = append(messages, api.NewInvocationMessage(tc.ID, tc.Function.Name, args))
	}

	return messages, nil
}

// parseArguments decodes a tool call argument string. Empty input yields an
// empty map since some backends send "" for zero-argument calls.
func parseArguments(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}

func normalizeFinishReason(reason string) provider.FinishReason {
	switch reason {
	case "tool_calls", "function_call":
		return provider.FinishToolCalls
	case "length":
		return provider.FinishLength
	default:
		return provider.FinishStop
	}
}
