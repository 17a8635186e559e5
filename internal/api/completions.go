package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/samcharles93/rollout/internal/inference"
)

func (s *Server) handleCompletions(c *echo.Context) error {
	if s.service == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "inference service not configured", "", "")
	}
	req, err := decodeJSON[CompletionRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if req.MaxTokens != nil && *req.MaxTokens < 0 {
		return writeBadRequest(c, "max_tokens must not be negative")
	}
	if err := s.service.Validate(req.RequestOptions); err != nil {
		return writeEngineError(c, err)
	}

	model := req.Model
	if model == "" {
		model = s.service.Info().ID
	}
	head := CompletionResponse{
		ID:      newCompletionID(),
		Object:  "text_completion",
		Created: s.clock().Unix(),
		Model:   model,
	}
	if req.Stream {
		return s.streamCompletion(c, req, head)
	}

	result, err := s.service.Generate(c.Request().Context(), req.RequestOptions, nil)
	if err != nil {
		s.log.Warn("completion failed", "id", head.ID, "error", err)
		return writeEngineError(c, err)
	}
	head.Choices = []CompletionChoice{{
		Index:        0,
		Text:         result.Text,
		FinishReason: finishReason(result.StopReason),
	}}
	head.Usage = usageOf(result.Stats)
	return c.JSON(http.StatusOK, head)
}

func (s *Server) streamCompletion(c *echo.Context, req CompletionRequest, head CompletionResponse) error {
	res := c.Response()
	flusher, ok := res.(interface{ Flush() })
	if !ok {
		return writeBadRequest(c, "streaming unsupported")
	}
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	chunk := func(text string, reason *string, usage *Usage) CompletionResponse {
		out := head
		out.Choices = []CompletionChoice{{Index: 0, Text: text, FinishReason: reason}}
		out.Usage = usage
		return out
	}

	var writeErr error
	result, err := s.service.Generate(c.Request().Context(), req.RequestOptions, func(text string) {
		if writeErr != nil {
			return
		}
		writeErr = sendSSEChunk(res, chunk(text, nil, nil))
		flusher.Flush()
	})
	if err != nil {
		s.log.Warn("streamed completion failed", "id", head.ID, "error", err)
		status, errType := statusFor(err)
		_ = sendSSEChunk(res, map[string]any{"error": ResponseError{
			Message: err.Error(),
			Type:    errType,
			Code:    fmt.Sprint(status),
		}})
	} else {
		_ = sendSSEChunk(res, chunk("", finishReason(result.StopReason), usageOf(result.Stats)))
	}
	_, _ = fmt.Fprint(res, "data: [DONE]\n\n")
	flusher.Flush()
	return nil
}

func usageOf(st inference.Stats) *Usage {
	return &Usage{
		PromptTokens:     st.PromptTokens,
		CompletionTokens: st.TokensGenerated,
		TotalTokens:      st.PromptTokens + st.TokensGenerated,
	}
}
