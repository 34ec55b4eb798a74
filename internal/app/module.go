package app

import "github.com/gin-gonic/gin"

// Module registers its JSON routes on api (mounted at /api/v1) and its
// htmx page routes on pages (mounted at / behind CSRF).
type Module interface {
	RegisterRoutes(api *gin.RouterGroup, pages *gin.RouterGroup)
}
