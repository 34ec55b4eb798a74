package user

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/staffdesk/internal/domain"
	"github.com/simp-lee/staffdesk/internal/form"
	"github.com/simp-lee/staffdesk/internal/middleware"
	"github.com/simp-lee/staffdesk/internal/pkg"
)

const (
	formTemplate     = "user/form.html"
	fieldsTemplate   = "user/fields.html"
	listTemplate     = "user/list.html"
	modeCreate       = "create"
	modeEdit         = "edit"
	msgCheckInput    = "Please check the highlighted fields"
	msgTryAgainLater = "Something went wrong, please try again later"
)

// fieldOrder is the display order of the form inputs.
var fieldOrder = []string{
	form.FieldFirstName,
	form.FieldLastName,
	form.FieldUsername,
	form.FieldPassword,
	form.FieldEmail,
	form.FieldPhone,
}

// FieldView is one rendered form input.
type FieldView struct {
	Name     string
	Label    string
	Type     string
	Value    string
	Error    string
	ReadOnly bool
}

// FormView is the template data of the create and edit forms.
type FormView struct {
	Title     string
	Role      domain.Role
	Mode      string
	ID        uint
	Action    string
	Method    string
	Fields    []FieldView
	Error     string
	CSRFToken string
}

// UserPageHandler handles page rendering and htmx endpoints for employees
// and clients.
type UserPageHandler struct {
	svc      domain.UserService
	pageSize int
}

// NewUserPageHandler creates a new UserPageHandler with the given service.
func NewUserPageHandler(svc domain.UserService, pageSize int) *UserPageHandler {
	return &UserPageHandler{svc: svc, pageSize: pageSize}
}

// ListPage renders the list page of the role.
// GET /{employees|clients}
func (h *UserPageHandler) ListPage(c *gin.Context) {
	role := roleOf(c)
	req := pkg.ParsePageRequest(c, h.pageSize)

	result, err := h.svc.ListUsers(c.Request.Context(), role, req)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "list users failed", "role", role, "error", err)
		c.HTML(http.StatusInternalServerError, "errors/500.html", gin.H{})
		return
	}

	c.HTML(http.StatusOK, listTemplate, gin.H{
		"Title":      role.Title() + "s",
		"Role":       role,
		"Users":      result.Items,
		"Pagination": result,
		"BaseURL":    "/" + role.Plural(),
		"CSRFToken":  middleware.GetCSRFToken(c),
	})
}

// NewPage renders an empty create form.
// GET /{employees|clients}/new
func (h *UserPageHandler) NewPage(c *gin.Context) {
	f := form.New(form.EmptyCreateValues(), form.Options{IncludePassword: true})
	c.HTML(http.StatusOK, formTemplate, h.formView(c, roleOf(c), 0, f, ""))
}

// EditPage renders the edit form seeded with the stored record.
// GET /{employees|clients}/:id/edit
func (h *UserPageHandler) EditPage(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.HTML(http.StatusBadRequest, "errors/400.html", gin.H{})
		return
	}

	role := roleOf(c)
	user, err := h.svc.GetUser(c.Request.Context(), role, id)
	if err != nil {
		h.renderLoadError(c, err)
		return
	}

	f := form.New(form.EmptyEditValues(), form.Options{})
	f.SetFieldValues(user.FormValues())
	c.HTML(http.StatusOK, formTemplate, h.formView(c, role, id, f, ""))
}

// CreateHTMX handles the create form submission.
// POST /{employees|clients}
func (h *UserPageHandler) CreateHTMX(c *gin.Context) {
	role := roleOf(c)
	f := form.New(form.EmptyCreateValues(), form.Options{IncludePassword: true})

	var req UserRequest
	capErrs, err := bindForm(c, &req)
	if err != nil {
		slog.DebugContext(c.Request.Context(), "create user: bind error", "error", err)
		c.HTML(http.StatusOK, formTemplate, h.formView(c, role, 0, f, msgCheckInput))
		return
	}
	f.SetFieldValues(req.Values())
	if len(capErrs) > 0 {
		f.SetErrors(capErrs)
		c.HTML(http.StatusOK, formTemplate, h.formView(c, role, 0, f, msgCheckInput))
		return
	}

	if _, err := h.svc.CreateUser(c.Request.Context(), role, req.Values()); err != nil {
		msg := applySubmitError(f, err)
		c.HTML(http.StatusOK, formTemplate, h.formView(c, role, 0, f, msg))
		return
	}

	setShowToastHeader(c, role.Title()+" created", "success")
	c.Header("HX-Redirect", "/"+role.Plural())
	c.Status(http.StatusOK)
}

// UpdateHTMX handles the edit form submission.
// PUT /{employees|clients}/:id
func (h *UserPageHandler) UpdateHTMX(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.HTML(http.StatusBadRequest, "errors/400.html", gin.H{})
		return
	}

	role := roleOf(c)
	user, err := h.svc.GetUser(c.Request.Context(), role, id)
	if err != nil {
		h.renderLoadError(c, err)
		return
	}

	f := form.New(form.EmptyEditValues(), form.Options{})
	f.SetFieldValues(user.FormValues())

	var req UserRequest
	capErrs, err := bindForm(c, &req)
	if err != nil {
		slog.DebugContext(c.Request.Context(), "update user: bind error", "error", err, "id", id)
		c.HTML(http.StatusOK, formTemplate, h.formView(c, role, id, f, msgCheckInput))
		return
	}
	values := req.Values()
	for _, field := range editableFields {
		f.SetFieldValue(field, values[field])
	}
	// Username and password are ignored on edit, so are their caps.
	maps.DeleteFunc(capErrs, func(name, _ string) bool { return !slices.Contains(editableFields, name) })
	if len(capErrs) > 0 {
		f.SetErrors(capErrs)
		c.HTML(http.StatusOK, formTemplate, h.formView(c, role, id, f, msgCheckInput))
		return
	}

	if _, err := h.svc.UpdateUser(c.Request.Context(), role, id, values); err != nil {
		if domain.IsNotFound(err) {
			c.HTML(http.StatusNotFound, "errors/404.html", gin.H{})
			return
		}
		msg := applySubmitError(f, err)
		c.HTML(http.StatusOK, formTemplate, h.formView(c, role, id, f, msg))
		return
	}

	setShowToastHeader(c, role.Title()+" updated", "success")
	c.Header("HX-Redirect", "/"+role.Plural())
	c.Status(http.StatusOK)
}

// DeleteHTMX handles deletion from the list page.
// DELETE /{employees|clients}/:id
func (h *UserPageHandler) DeleteHTMX(c *gin.Context) {
	role := roleOf(c)
	id, err := parseID(c)
	if err != nil {
		c.Header("HX-Reswap", "none")
		setShowToastHeader(c, "Invalid "+string(role)+" id", "error")
		c.Status(http.StatusOK)
		return
	}

	if err := h.svc.DeleteUser(c.Request.Context(), role, id); err != nil {
		c.Header("HX-Reswap", "none")
		if domain.IsNotFound(err) {
			setShowToastHeader(c, role.Title()+" not found or already deleted", "error")
		} else {
			setShowToastHeader(c, "Delete failed, please try again later", "error")
		}
		c.Status(http.StatusOK)
		return
	}

	setShowToastHeader(c, role.Title()+" deleted", "success")
	c.Status(http.StatusOK)
}

// FieldChange re-renders the form fields after one input changed. The
// posted body carries the whole form state: the values, the errors shown so
// far as errors[<field>], and the form mode. Only the changed field's error
// is dropped; nothing is re-validated.
// POST /{employees|clients}/fields/:field
func (h *UserPageHandler) FieldChange(c *gin.Context) {
	role := roleOf(c)
	field := c.Param("field")

	initial, opts := form.EmptyCreateValues(), form.Options{IncludePassword: true}
	var id uint
	if c.PostForm("_mode") == modeEdit {
		initial, opts = form.EmptyEditValues(), form.Options{}
		if n, err := strconv.ParseUint(c.PostForm("_id"), 10, 0); err == nil {
			id = uint(n)
		}
	}
	if _, ok := initial[field]; !ok {
		c.HTML(http.StatusBadRequest, "errors/400.html", gin.H{})
		return
	}

	var req UserRequest
	capErrs, err := bindForm(c, &req)
	if err != nil {
		c.HTML(http.StatusBadRequest, "errors/400.html", gin.H{})
		return
	}

	f := form.New(initial, opts)
	values := req.Values()
	for name := range initial {
		f.SetFieldValue(name, values[name])
	}
	f.SetErrors(c.PostFormMap("errors"))
	f.HandleChange(field, values[field])
	if len(capErrs) > 0 {
		shown := f.Errors()
		for name, msg := range capErrs {
			if _, ok := initial[name]; ok {
				shown[name] = msg
			}
		}
		f.SetErrors(shown)
	}

	c.HTML(http.StatusOK, fieldsTemplate, h.formView(c, role, id, f, ""))
}

func (h *UserPageHandler) renderLoadError(c *gin.Context, err error) {
	if domain.IsNotFound(err) {
		c.HTML(http.StatusNotFound, "errors/404.html", gin.H{})
		return
	}
	slog.ErrorContext(c.Request.Context(), "load user failed", "error", err)
	c.HTML(http.StatusInternalServerError, "errors/500.html", gin.H{})
}

// formView builds the template data of f. id is zero for a create form.
func (h *UserPageHandler) formView(c *gin.Context, role domain.Role, id uint, f *form.Form, errMsg string) FormView {
	v := FormView{
		Role:      role,
		ID:        id,
		Error:     errMsg,
		CSRFToken: middleware.GetCSRFToken(c),
	}
	edit := !f.Options().IncludePassword
	if edit {
		v.Title = "Edit " + role.Title()
		v.Mode = modeEdit
		v.Action = fmt.Sprintf("/%s/%d", role.Plural(), id)
		v.Method = "put"
	} else {
		v.Title = "Add New " + role.Title()
		v.Mode = modeCreate
		v.Action = "/" + role.Plural()
		v.Method = "post"
	}

	labels := form.Labels()
	values := f.Values()
	for _, name := range fieldOrder {
		value, ok := values[name]
		if !ok {
			continue
		}
		fv := FieldView{
			Name:  name,
			Label: labels[name],
			Type:  "text",
			Value: value,
			Error: f.Error(name),
		}
		switch name {
		case form.FieldPassword:
			fv.Type = "password"
			fv.Value = ""
		case form.FieldEmail:
			fv.Type = "email"
		case form.FieldPhone:
			fv.Type = "tel"
		case form.FieldUsername:
			fv.ReadOnly = edit
		}
		v.Fields = append(v.Fields, fv)
	}
	return v
}

// applySubmitError copies what a failed submit reported onto f and returns
// the general message to show above the form.
func applySubmitError(f *form.Form, err error) string {
	if fields := domain.FieldErrors(err); len(fields) > 0 {
		f.SetErrors(fields)
		return msgCheckInput
	}
	if domain.IsAlreadyExists(err) {
		f.SetErrors(form.Errors{form.FieldUsername: safePageErrorMessage(err, msgTryAgainLater)})
		return msgCheckInput
	}
	return safePageErrorMessage(err, msgTryAgainLater)
}

// bindForm binds the submitted form into req. Length-cap failures do not
// fail the bind: req keeps every submitted value and the failures come back
// as field errors. err is set only for a body that cannot be decoded.
func bindForm(c *gin.Context, req *UserRequest) (form.Errors, error) {
	err := c.ShouldBind(req)
	if err == nil {
		return nil, nil
	}
	if fields, ok := pkg.BindingErrors(err, req); ok {
		return fields, nil
	}
	return nil, err
}

// parseID extracts and validates the "id" URL parameter.
func parseID(c *gin.Context) (uint, error) {
	idStr := c.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id: %s", idStr)
	}
	if id > uint64(^uint(0)) {
		return 0, fmt.Errorf("invalid id: %s", idStr)
	}
	return uint(id), nil
}

// setShowToastHeader sets the HX-Trigger response header with a showToast event.
func setShowToastHeader(c *gin.Context, message, toastType string) {
	trigger, _ := json.Marshal(map[string]any{
		"showToast": map[string]string{
			"message": message,
			"type":    toastType,
		},
	})
	c.Header("HX-Trigger", string(trigger))
}

// safePageErrorMessage extracts a user-safe error message from an AppError.
// Only messages of user-facing codes (NotFound, AlreadyExists, Validation)
// are returned; anything else yields fallback.
func safePageErrorMessage(err error, fallback string) string {
	var appErr *domain.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		switch appErr.Code {
		case domain.CodeNotFound, domain.CodeAlreadyExists, domain.CodeValidation:
			return appErr.Message
		}
	}
	return fallback
}
