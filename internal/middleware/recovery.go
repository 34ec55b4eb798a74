package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/staffdesk/internal/pkg"
)

const panicToastMessage = "Something went wrong, please try again later"

// Recovery recovers from panics, logs them with the stack, and answers 500
// in the shape the caller expects:
//   - htmx requests get an empty body, HX-Reswap: none and a showToast
//     trigger so the current page stays in place;
//   - requests accepting text/html get the errors/500.html page;
//   - everything else gets the JSON envelope.
func Recovery(log *slog.Logger) gin.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}

	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			log.ErrorContext(c.Request.Context(), "panic recovered",
				slog.Any("panic", rec),
				slog.String("method", c.Request.Method),
				slog.String("path", c.Request.URL.Path),
				slog.String("stack", string(debug.Stack())),
			)

			c.Abort()
			switch {
			case c.GetHeader("HX-Request") == "true":
				trigger, _ := json.Marshal(map[string]any{
					"showToast": map[string]string{"message": panicToastMessage, "type": "error"},
				})
				c.Header("HX-Reswap", "none")
				c.Header("HX-Trigger", string(trigger))
				c.Status(http.StatusInternalServerError)
			case acceptsHTML(c):
				renderHTMLError(c)
			default:
				c.JSON(http.StatusInternalServerError, pkg.Response{
					Code:    http.StatusInternalServerError,
					Message: "internal server error",
				})
			}
		}()
		c.Next()
	}
}

// renderHTMLError renders errors/500.html, or plain text when no HTML
// renderer is configured.
func renderHTMLError(c *gin.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.Data(http.StatusInternalServerError, "text/plain; charset=utf-8", []byte("500 Internal Server Error"))
		}
	}()
	c.HTML(http.StatusInternalServerError, "errors/500.html", gin.H{})
}

func acceptsHTML(c *gin.Context) bool {
	return strings.Contains(strings.ToLower(c.GetHeader("Accept")), "text/html")
}
