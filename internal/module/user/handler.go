package user

import (
	"github.com/gin-gonic/gin"

	"github.com/simp-lee/staffdesk/internal/domain"
	"github.com/simp-lee/staffdesk/internal/form"
	"github.com/simp-lee/staffdesk/internal/pkg"
)

// UserHandler serves the JSON API of both roles. Which role a request
// addresses is read from its route, so one handler backs /employees and
// /clients alike.
type UserHandler struct {
	svc      domain.UserService
	pageSize int
}

// NewUserHandler returns a handler listing pageSize records per page unless
// the request asks otherwise.
func NewUserHandler(svc domain.UserService, pageSize int) *UserHandler {
	return &UserHandler{svc: svc, pageSize: pageSize}
}

// Create handles POST /api/v1/{employees|clients}.
func (h *UserHandler) Create(c *gin.Context) {
	var req UserRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}

	user, err := h.svc.CreateUser(c.Request.Context(), roleOf(c), req.Values())
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Created(c, user)
}

// Validate handles POST /api/v1/{employees|clients}/validate. It runs the
// create rules, or the edit rules when the query has mode=edit, and never
// persists anything.
func (h *UserHandler) Validate(c *gin.Context) {
	var req UserRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}

	opts := form.Options{IncludePassword: c.Query("mode") != "edit"}
	errs := h.svc.ValidateUser(c.Request.Context(), req.Values(), opts)

	pkg.Success(c, ValidationResult{Valid: len(errs) == 0, Errors: errs})
}

// Get handles GET /api/v1/{employees|clients}/:id.
func (h *UserHandler) Get(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	user, err := h.svc.GetUser(c.Request.Context(), roleOf(c), id)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Success(c, user)
}

// List handles GET /api/v1/{employees|clients}.
func (h *UserHandler) List(c *gin.Context) {
	req := pkg.ParsePageRequest(c, h.pageSize)

	result, err := h.svc.ListUsers(c.Request.Context(), roleOf(c), req)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.List(c, result)
}

// Update handles PUT /api/v1/{employees|clients}/:id. Username and
// password in the body are ignored.
func (h *UserHandler) Update(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req UserRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}

	user, err := h.svc.UpdateUser(c.Request.Context(), roleOf(c), id, req.Values())
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Success(c, user)
}

// Delete handles DELETE /api/v1/{employees|clients}/:id.
func (h *UserHandler) Delete(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	if err := h.svc.DeleteUser(c.Request.Context(), roleOf(c), id); err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Success(c, nil)
}

// idParam reads the :id path parameter and answers 400 when it is not a
// positive integer.
func idParam(c *gin.Context) (uint, bool) {
	id, err := parseID(c)
	if err != nil {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, err.Error(), nil))
		return 0, false
	}
	return id, true
}

// roleOf infers the role from the matched route, falling back to the raw
// request path for unmatched requests.
func roleOf(c *gin.Context) domain.Role {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	return domain.RoleFromPath(path)
}
