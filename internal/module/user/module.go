package user

import (
	"github.com/gin-gonic/gin"

	"github.com/simp-lee/staffdesk/internal/domain"
)

// roles are served under their plural path segment, e.g. /employees.
var roles = []domain.Role{domain.RoleEmployee, domain.RoleClient}

// UserModule implements the app.Module interface for employees and clients.
type UserModule struct {
	handler     *UserHandler
	pageHandler *UserPageHandler
}

// NewModule creates a new UserModule with the given handlers.
// Panics if h or ph is nil.
func NewModule(h *UserHandler, ph *UserPageHandler) *UserModule {
	if h == nil {
		panic("user.NewModule: handler must not be nil")
	}
	if ph == nil {
		panic("user.NewModule: pageHandler must not be nil")
	}
	return &UserModule{handler: h, pageHandler: ph}
}

// RegisterRoutes registers the API and page routes of both roles.
func (m *UserModule) RegisterRoutes(api *gin.RouterGroup, pages *gin.RouterGroup) {
	for _, role := range roles {
		segment := "/" + role.Plural()

		g := api.Group(segment)
		g.POST("", m.handler.Create)
		g.POST("/validate", m.handler.Validate)
		g.GET("", m.handler.List)
		g.GET("/:id", m.handler.Get)
		g.PUT("/:id", m.handler.Update)
		g.DELETE("/:id", m.handler.Delete)

		p := pages.Group(segment)
		p.GET("", m.pageHandler.ListPage)
		p.GET("/new", m.pageHandler.NewPage)
		p.GET("/:id/edit", m.pageHandler.EditPage)
		p.POST("", m.pageHandler.CreateHTMX)
		p.POST("/fields/:field", m.pageHandler.FieldChange)
		p.PUT("/:id", m.pageHandler.UpdateHTMX)
		p.DELETE("/:id", m.pageHandler.DeleteHTMX)
	}
}
