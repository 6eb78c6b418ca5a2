package anthropic

import (
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/rhuss/converser/pkg/api"
	"github.com/rhuss/converser/pkg/provider"
)

// buildParams nativizes the neutral request into Messages API parameters.
func (p *MessagesProvider) buildParams(req *provider.Request) (anthropic.MessageNewParams, error) {
	system := p.extractSystem(req.Messages)
	turns, err := p.nativizeTurns(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	maxTokens := int64(defaultMaxTokens)
	if req.Controls.MaxTokens != nil {
		maxTokens = int64(*req.Controls.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  turns,
		MaxTokens: maxTokens,
	}
	if len(system) > 0 {
		params.System = system
	}

	c := req.Controls
	if c.Temperature != nil {
		params.Temperature = anthropic.Float(*c.Temperature)
	}
	if c.TopP != nil {
		params.TopP = anthropic.Float(*c.TopP)
	}
	if len(c.StopSequences) > 0 {
		params.StopSequences = c.StopSequences
	}
	if c.FrequencyPenalty != nil || c.PresencePenalty != nil {
		p.logger.Warn("dropping penalty controls unsupported by the messages API")
	}

	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, buildTool(tool))
	}

	return params, nil
}

// extractSystem promotes supervisor messages to system prompt blocks. An
// ephemeral cache_control hint on the supervisor message is forwarded.
func (p *MessagesProvider) extractSystem(history []api.Message) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	for _, m := range history {
		if m.Role != api.RoleSupervisor || m.Supervisor == nil {
			continue
		}
		block := anthropic.TextBlockParam{Text: api.JoinText(m.Supervisor.Content)}
		if hint, ok := m.Supervisor.CacheControl["type"]; ok && hint == "ephemeral" {
			block.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		blocks = append(blocks, block)
	}
	return blocks
}

// nativizeTurns converts the non-supervisor history into alternating
// user/assistant turns. Invocations become tool_use blocks on the assistant
// side, results become tool_result blocks on the user side, and consecutive
// same-role turns are merged. Invocations with no matching result anywhere
// in the history are dropped with a warning, since the API rejects tool_use
// blocks left unanswered.
func (p *MessagesProvider) nativizeTurns(history []api.Message) ([]anthropic.MessageParam, error) {
	answered := resultIDs(history)

	type turn struct {
		role   anthropic.MessageParamRole
		blocks []anthropic.ContentBlockParamUnion
	}
	var turns []turn

	add := func(role anthropic.MessageParamRole, blocks ...anthropic.ContentBlockParamUnion) {
		if len(blocks) == 0 {
			return
		}
		if n := len(turns); n > 0 && turns[n-1].role == role {
			turns[n-1].blocks = append(turns[n-1].blocks, blocks...)
			return
		}
		turns = append(turns, turn{role: role, blocks: blocks})
	}

	for _, m := range history {
		switch m.Role {
		case api.RoleSupervisor:
			// Promoted to the system prompt by extractSystem.

		case api.RoleUser:
			add(anthropic.MessageParamRoleUser, p.textBlocks(m.User.Content, m.ID)...)

		case api.RoleDocument:
			if m.Document == nil {
				continue
			}
			text := "[document " + m.Document.DocumentID + "]\n" + api.JoinText(m.Document.Content)
			add(anthropic.MessageParamRoleUser, anthropic.NewTextBlock(text))

		case api.RoleAssistant:
			add(anthropic.MessageParamRoleAssistant, p.textBlocks(m.Assistant.Content, m.ID)...)

		case api.RoleInvocation:
			if m.Invocation == nil {
				continue
			}
			if !answered[m.Invocation.InvocationID] {
				p.logger.Warn("dropping invocation without result",
					"invocation_id", m.Invocation.InvocationID, "name", m.Invocation.Name)
				continue
			}
			input := m.Invocation.Arguments
			if input == nil {
				input = map[string]any{}
			}
			add(anthropic.MessageParamRoleAssistant,
				anthropic.NewToolUseBlock(m.Invocation.InvocationID, input, m.Invocation.Name))

		case api.RoleResult:
			if m.Result == nil {
				continue
			}
			body := api.JoinText(m.Result.Content)
			isError := m.Result.Error != ""
			if isError {
				body = m.Result.Error
			}
			add(anthropic.MessageParamRoleUser,
				anthropic.NewToolResultBlock(m.Result.InvocationID, body, isError))

		default:
			return nil, api.NewNativizationError("anthropic", "unknown role "+string(m.Role))
		}
	}

	out := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		out = append(out, anthropic.MessageParam{Role: t.role, Content: t.blocks})
	}
	return out, nil
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

func (p *MessagesProvider) textBlocks(parts []api.Content, messageID string) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	for _, part := range parts {
		if part.Type != api.ContentTypeText {
			p.logger.Warn("dropping non-text content part", "type", part.Type, "message_id", messageID)
			continue
		}
		if part.Text == "" {
			continue
		}
		blocks = append(blocks, anthropic.NewTextBlock(part.Text))
	}
	return blocks
}

// buildTool converts a neutral tool definition into the Messages API shape.
func buildTool(tool provider.ToolDefinition) anthropic.ToolUnionParam {
	schema := anthropic.ToolInputSchemaParam{
		Type: constant.Object("object"),
	}
	if tool.Schema != nil {
		if properties, ok := tool.Schema["properties"]; ok {
			schema.Properties = properties
		}
		if required, ok := tool.Schema["required"]; ok {
			switch req := required.(type) {
			case []string:
				schema.Required = req
			case []any:
				for _, r := range req {
					if s, ok := r.(string); ok {
						schema.Required = append(schema.Required, s)
					}
				}
			}
		}
	}

	out := anthropic.ToolUnionParamOfTool(schema, tool.Name)
	if tool.Description != "" && out.OfTool != nil {
		out.OfTool.Description = anthropic.String(tool.Description)
	}
	return out
}

// normalizeContent converts response content blocks into neutral messages:
// text blocks coalesce into one assistant message, each tool_use block
// becomes an invocation message.
func normalizeContent(blocks []anthropic.ContentBlockUnion) ([]api.Message, error) {
	var text string
	var invocations []api.Message

	for _, block := range blocks {
		switch block.Type {
		case "text":
			text += block.AsText().Text
		case "tool_use":
			tu := block.AsToolUse()
			var args map[string]any
			if len(tu.Input) > 0 {
				if err := json.Unmarshal(tu.Input, &args); err != nil {
					return nil, api.NewNormalizationError("anthropic",
						string(tu.Input), "tool_use input is not a JSON object")
				}
			}
			if args == nil {
				args = map[string]any{}
			}
			invocations = append(invocations, api.NewInvocationMessage(tu.ID, tu.Name, args))
		}
	}

	var messages []api.Message
	if text != "" {
		messages = append(messages, api.NewAssistantMessage(api.TextContent(text)))
	}
	messages = append(messages, invocations...)
	return messages, nil
}

func normalizeStopReason(reason string) provider.FinishReason {
	switch reason {
	case "tool_use":
		return provider.FinishToolCalls
	case "max_tokens":
		return provider.FinishLength
	default:
		return provider.FinishStop
	}
}
