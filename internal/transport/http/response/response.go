package response

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/asepsopiyan/keris-lite/internal/apperr"
)

const (
	CodeOK                 = 0
	CodeBadRequest         = 40000
	CodeUnauthorized       = 40100
	CodeInvalidCredentials = 40101
	CodeAdminDisabled      = 40300
	CodeNotFound           = 40400
	CodeDimensionMismatch  = 40900
	CodeInternalServer     = 50000
	CodeUpstreamFailed     = 50200
	CodeUnavailable        = 50300
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Kind    string      `json:"kind,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Accepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, APIResponse{
		Code:    CodeOK,
		Message: "accepted",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}

// FromError answers with the status and code for err's kind. Client errors
// echo the error text; server side failures are logged and summarised.
func FromError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	message := err.Error()
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", c.FullPath(), "kind", kind, "error", err)
		message = serverMessages[kind]
		if message == "" {
			message = "internal server error"
		}
	}

	c.JSON(status, APIResponse{
		Code:    codeFor(status),
		Message: message,
		Kind:    string(kind),
	})
}

var serverMessages = map[apperr.Kind]string{
	apperr.KindProviderUnavailable: "language model provider unavailable",
	apperr.KindEmbeddingFailed:     "embedding failed",
	apperr.KindGenerationFailed:    "answer generation failed",
	apperr.KindStoreUnavailable:    "vector store unavailable",
}

func codeFor(status int) int {
	switch status {
	case http.StatusBadRequest:
		return CodeBadRequest
	case http.StatusConflict:
		return CodeDimensionMismatch
	case http.StatusBadGateway:
		return CodeUpstreamFailed
	case http.StatusServiceUnavailable:
		return CodeUnavailable
	default:
		return CodeInternalServer
	}
}
