package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"pkt.systems/mediad/api"
)

type toolErrorEnvelope struct {
	ErrorCode         string `json:"error_code"`
	Detail            string `json:"detail,omitempty"`
	Retryable         bool   `json:"retryable"`
	HTTPStatus        int    `json:"http_status,omitempty"`
	RetryAfterSeconds int64  `json:"retry_after_seconds,omitempty"`
}

func withStructuredToolErrors[In, Out any](h mcpsdk.ToolHandlerFor[In, Out]) mcpsdk.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input In) (*mcpsdk.CallToolResult, Out, error) {
		res, out, err := h(ctx, req, input)
		if err == nil {
			return res, out, nil
		}
		var zero Out
		return nil, zero, toolError{Envelope: classifyToolError(err)}
	}
}

type toolError struct {
	Envelope toolErrorEnvelope
}

func (e toolError) Error() string {
	envelope := map[string]any{"error": e.Envelope}
	encoded, err := json.Marshal(envelope)
	if err != nil {
		return `{"error":{"error_code":"tool_error","detail":"failed to encode error envelope"}}`
	}
	return string(encoded)
}

// classifyToolError maps the failure taxonomy onto wire error codes. The
// security rejections keep their own codes so a caller can distinguish a
// traversal attempt from a plain missing file, and none of them are
// retryable.
func classifyToolError(err error) toolErrorEnvelope {
	env := toolErrorEnvelope{ErrorCode: "tool_error", Detail: strings.TrimSpace(err.Error())}

	var remote *api.RemoteError
	if errors.As(err, &remote) {
		env.ErrorCode = "remote_error"
		if code := strings.TrimSpace(remote.Code); code != "" {
			env.ErrorCode = code
		}
		env.HTTPStatus = remote.Status
		env.Retryable = remote.Retryable()
		if remote.RetryAfter > 0 {
			env.RetryAfterSeconds = int64(remote.RetryAfter.Seconds())
		}
		return env
	}

	switch {
	case errors.Is(err, api.ErrInvalidParameter):
		env.ErrorCode = "invalid_parameter"
	case errors.Is(err, api.ErrPathTraversal):
		env.ErrorCode = "path_traversal"
	case errors.Is(err, api.ErrSymlinkRejected):
		env.ErrorCode = "symlink_rejected"
	case errors.Is(err, api.ErrNotFound):
		env.ErrorCode = "not_found"
	case errors.Is(err, api.ErrNotReady):
		env.ErrorCode = "not_ready"
		env.Retryable = true
	case errors.Is(err, api.ErrOutOfRange):
		env.ErrorCode = "out_of_range"
	case errors.Is(err, api.ErrIntegrity):
		env.ErrorCode = "integrity_error"
		env.Retryable = true
	case errors.Is(err, context.DeadlineExceeded):
		env.ErrorCode = "timeout"
		env.Retryable = true
	}
	return env
}
