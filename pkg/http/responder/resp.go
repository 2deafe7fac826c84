package responder

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

type errorResponse struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	if err := json.NewEncoder(ctx).Encode(v); err != nil {
		log.Error().Err(err).Msg("[responder] error while writing data into *fasthttp.RequestCtx")
	}
}

// Error writes a JSON error body.
func Error(ctx *fasthttp.RequestCtx, status int, err error) {
	WriteJSON(ctx, status, errorResponse{
		Status:  status,
		Error:   fasthttp.StatusMessage(status),
		Message: err.Error(),
	})
}
