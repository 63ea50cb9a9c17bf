package node

import (
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/conftimeout/internal/middleware"
	"github.com/nfrund/conftimeout/internal/pubsub"
	"github.com/nfrund/conftimeout/internal/watch"
)

// maxBodyBytes caps POST /messages bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard format for API error responses.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MessageRequest holds the fields of POST /messages that are checked before
// the body is put on the bus.
type MessageRequest struct {
	Topic string `validate:"max=256"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	ActiveCount int          `json:"activeCount"`
	State       watch.State  `json:"state"`
	Text        string       `json:"text"`
	Watches     []watch.Info `json:"watches"`
}

// AcceptedResponse is returned once a message is on the bus.
type AcceptedResponse struct {
	Topic string `json:"topic"`
}

type handler struct {
	node *Node
}

func (h *handler) status(c echo.Context) error {
	st := h.node.registry.Status()
	return c.JSON(http.StatusOK, StatusResponse{
		ActiveCount: st.ActiveCount,
		State:       st.State,
		Text:        st.Text(),
		Watches:     h.node.registry.Active(),
	})
}

// postMessage publishes the request body unchanged on the input topic, so it
// is handled exactly like any other bus message.
func (h *handler) postMessage(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes+1))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Code: "read_failed", Message: err.Error()})
	}
	if len(body) > maxBodyBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Code: "too_large", Message: "request body exceeds 1MiB"})
	}
	if len(body) == 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Code: "empty_body", Message: "request body is required"})
	}

	in := ParseInbound(body)
	if err := c.Validate(&MessageRequest{Topic: in.Topic}); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Code: "validation_failed", Message: err.Error()})
	}

	if err := h.node.publisher.Publish(context.WithoutCancel(c.Request().Context()), pubsub.Message{
		Topic:    TopicInput.Name(),
		Payload:  body,
		Metadata: map[string]string{"origin": "http"},
	}); err != nil {
		middleware.FromContext(c.Request().Context()).Error("Failed to publish inbound message", "error", err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "publish_failed", Message: "could not publish message"})
	}

	return c.JSON(http.StatusAccepted, AcceptedResponse{Topic: in.Topic})
}
