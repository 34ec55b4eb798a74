package app

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/staffdesk/internal/pkg"
)

// errorTemplates maps status codes to their error pages. Unmapped codes
// use the 500 page.
var errorTemplates = map[int]string{
	http.StatusBadRequest:          "errors/400.html",
	http.StatusNotFound:            "errors/404.html",
	http.StatusInternalServerError: "errors/500.html",
}

// renderError answers JSON to clients that ask only for JSON and an error
// page to browsers.
func renderError(c *gin.Context, code int, message string) {
	if !prefersHTML(c) {
		c.JSON(code, pkg.Response{Code: code, Message: message})
		return
	}
	renderHTMLErrorPage(c, code)
}

// renderHTMLErrorPage falls back to plain text when the template panics.
func renderHTMLErrorPage(c *gin.Context, code int) {
	defer func() {
		if r := recover(); r != nil {
			c.Data(code, "text/plain; charset=utf-8", []byte(fmt.Sprintf("%d %s", code, defaultStatusText(code))))
		}
	}()

	tmpl, ok := errorTemplates[code]
	if !ok {
		tmpl = errorTemplates[http.StatusInternalServerError]
	}
	c.HTML(code, tmpl, gin.H{
		"Title": defaultStatusText(code),
		"Code":  code,
	})
}

// prefersHTML matches text/html, */* and an empty Accept header, unless the
// client explicitly asks for JSON without HTML.
func prefersHTML(c *gin.Context) bool {
	accept := strings.ToLower(c.GetHeader("Accept"))
	if strings.Contains(accept, "text/html") {
		return true
	}
	if strings.Contains(accept, "application/json") {
		return false
	}
	return strings.Contains(accept, "*/*") || strings.TrimSpace(accept) == ""
}

func defaultStatusText(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "Bad Request"
	case http.StatusNotFound:
		return "Page Not Found"
	case http.StatusForbidden:
		return "Forbidden"
	case http.StatusInternalServerError:
		return "Something Went Wrong"
	default:
		if text := http.StatusText(code); text != "" {
			return text
		}
		return "Error"
	}
}
