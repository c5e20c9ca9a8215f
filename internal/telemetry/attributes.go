package telemetry

import "go.opentelemetry.io/otel/attribute"

// Span and event attribute keys for the Telemetry Bridge (§4.8).
var (
	AttrToolName   = attribute.Key("tool.name")
	AttrCallID     = attribute.Key("tool.call_id")
	AttrToolType   = attribute.Key("tool.type")
	AttrInputArgs  = attribute.Key("tool.input")
	AttrResultType = attribute.Key("tool.result_type")
	AttrResult     = attribute.Key("tool.result_preview")
	AttrErrorText  = attribute.Key("tool.error")
)

// ToolType distinguishes a built-in tool from one routed through an
// external MCP provider, mirroring cursor-agent's mcpToolCall envelope.
type ToolType string

const (
	ToolBuiltin ToolType = "builtin"
	ToolMCP     ToolType = "mcp"
)
