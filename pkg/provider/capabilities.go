package provider

import (
	"fmt"

	"github.com/rhuss/converser/pkg/api"
)

// ValidateCapabilities checks whether the given request is compatible with
// the provider's declared capabilities. Returns an error identifying the
// first unsupported feature, or nil if the request is compatible.
func ValidateCapabilities(caps Capabilities, req *Request) error {
	if req.Stream && !caps.Streaming {
		return fmt.Errorf("provider does not support streaming responses")
	}

	if len(req.Tools) > 0 && !caps.ToolCalling {
		return fmt.Errorf("provider does not support tool calling")
	}

	if !caps.Vision {
		for _, m := range req.Messages {
			for _, part := range contentParts(m) {
				if part.Type == api.ContentTypeImage {
					return fmt.Errorf("provider does not support image inputs")
				}
			}
		}
	}

	return nil
}

func contentParts(m api.Message) []api.Content {
	switch m.Role {
	case api.RoleUser:
		if m.User != nil {
			return m.User.Content
		}
	case api.RoleAssistant:
		if m.Assistant != nil {
			return m.Assistant.Content
		}
	case api.RoleSupervisor:
		if m.Supervisor != nil {
			return m.Supervisor.Content
		}
	case api.RoleDocument:
		if m.Document != nil {
			return m.Document.Content
		}
	case api.RoleResult:
		if m.Result != nil {
			return m.Result.Content
		}
	}
	return nil
}
