package response

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
)

// Envelope is the JSON shape of every API response.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// OK writes a 200 envelope carrying data.
func OK(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// Message writes a 200 envelope carrying only a message.
func Message(c echo.Context, msg string) error {
	return c.JSON(http.StatusOK, Envelope{Success: true, Message: msg})
}

// ErrorHandler returns an echo.HTTPErrorHandler that renders errors as
// envelopes. Raw causes are logged, and only sent to the client when
// exposeDetails is set.
func ErrorHandler(logger zerolog.Logger, exposeDetails bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		env := Envelope{Success: false, Message: "internal server error"}

		var he *echo.HTTPError
		if ae, ok := apperr.As(err); ok {
			status = ae.Status()
			env.Message = ae.Message
			if ae.Err != nil {
				evt := logger.Error()
				if status < http.StatusInternalServerError {
					evt = logger.Warn()
				}
				evt.Err(ae.Err).
					Str("request_id", requestID(c)).
					Str("kind", string(ae.Kind)).
					Msg(ae.Message)
				if exposeDetails {
					env.Error = ae.Err.Error()
				}
			}
		} else if errors.As(err, &he) {
			status = he.Code
			if msg, ok := he.Message.(string); ok {
				env.Message = msg
			} else {
				env.Message = http.StatusText(he.Code)
			}
			if he.Internal != nil && exposeDetails {
				env.Error = he.Internal.Error()
			}
		} else {
			logger.Error().Err(err).Str("request_id", requestID(c)).Msg("unhandled error")
			if exposeDetails {
				env.Error = err.Error()
			}
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, env)
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("failed to write error response")
		}
	}
}

func requestID(c echo.Context) string {
	rid, _ := c.Get("request_id").(string)
	return rid
}
