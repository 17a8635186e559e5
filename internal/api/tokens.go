package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v5"
)

func (s *Server) handleTokenize(c *echo.Context) error {
	req, err := decodeJSON[TokenizeRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	addBOS := req.AddBOS == nil || *req.AddBOS
	ids, err := s.service.Tokenize(c.Request().Context(), req.Text, addBOS)
	if err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusOK, TokenizeResponse{Tokens: ids, Count: len(ids)})
}

func (s *Server) handleDetokenize(c *echo.Context) error {
	req, err := decodeJSON[DetokenizeRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	text, ok, err := s.service.Detokenize(c.Request().Context(), req.Tokens)
	if err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusOK, DetokenizeResponse{Text: text, Complete: ok})
}

func (s *Server) handleEmbeddings(c *echo.Context) error {
	req, err := decodeJSON[EmbeddingRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	inputs, err := embeddingInputs(req.Input)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	model := req.Model
	if model == "" {
		model = s.service.Info().ID
	}
	resp := EmbeddingResponse{Object: "list", Model: model, Data: make([]EmbeddingData, 0, len(inputs))}
	for i, text := range inputs {
		emb, err := s.service.Embed(c.Request().Context(), text)
		if err != nil {
			return writeEngineError(c, err)
		}
		resp.Data = append(resp.Data, EmbeddingData{Object: "embedding", Index: i, Embedding: emb})
	}
	return c.JSON(http.StatusOK, resp)
}

func embeddingInputs(input any) ([]string, error) {
	switch v := input.(type) {
	case string:
		return []string{v}, nil
	case []any:
		if len(v) == 0 {
			return nil, fmt.Errorf("input must not be empty")
		}
		out := make([]string, 0, len(v))
		for i, raw := range v {
			s, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("input[%d] must be a string", i)
			}
			out = append(out, s)
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("input is required")
	default:
		return nil, fmt.Errorf("input must be a string or an array of strings")
	}
}
