package pkg

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/simp-lee/pagination"

	"github.com/simp-lee/staffdesk/internal/domain"
	"github.com/simp-lee/staffdesk/internal/form"
)

const (
	msgSuccess    = "success"
	msgBadRequest = "bad request"
	msgValidation = "validation error"
	msgInternal   = "internal error"
)

// Response is the JSON envelope of every API answer.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// ValidationErrorResponse is the envelope of a 400 carrying field errors,
// keyed by form field name.
type ValidationErrorResponse struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
}

func Success(c *gin.Context, data any) {
	respond(c, http.StatusOK, msgSuccess, data)
}

func Created(c *gin.Context, data any) {
	respond(c, http.StatusCreated, msgSuccess, data)
}

// List sends one page of a list query.
func List[T any](c *gin.Context, result *pagination.Pagination[T]) {
	respond(c, http.StatusOK, msgSuccess, result)
}

// MiddlewareError is the ginx error formatter: middleware answers such as
// the request timeout use the same envelope as handlers,
// {"code":408,"message":"request timeout","data":null}.
func MiddlewareError(status int, message string) any {
	return Response{Code: status, Message: message}
}

// Error maps err to its status. Field errors of a rejected form are sent as
// a ValidationErrorResponse; errors that are not *domain.AppError never leak
// their text.
func Error(c *gin.Context, err error) {
	status := domain.HTTPStatusCode(err)

	var appErr *domain.AppError
	if !errors.As(err, &appErr) {
		respond(c, status, msgInternal, nil)
		return
	}
	if len(appErr.Fields) > 0 {
		c.JSON(status, ValidationErrorResponse{Code: status, Message: appErr.Message, Errors: appErr.Fields})
		return
	}
	respond(c, status, appErr.Message, nil)
}

// BindAndValidate binds the request into obj. On failure it answers 400
// and returns false:
//
//	if !pkg.BindAndValidate(c, &req) { return }
func BindAndValidate(c *gin.Context, obj any) bool {
	err := c.ShouldBind(obj)
	if err == nil {
		return true
	}

	fields, ok := BindingErrors(err, obj)
	if !ok {
		respond(c, http.StatusBadRequest, msgBadRequest, nil)
		return false
	}
	c.JSON(http.StatusBadRequest, ValidationErrorResponse{
		Code:    http.StatusBadRequest,
		Message: msgValidation,
		Errors:  fields,
	})
	return false
}

// BindingErrors turns the validator failures in err, returned by binding
// obj, into labelled messages keyed by obj's JSON field names. ok is false
// when err is not a validation failure, e.g. a malformed body.
func BindingErrors(err error, obj any) (fields map[string]string, ok bool) {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil, false
	}
	return bindingErrors(ve, obj), true
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Response{Code: status, Message: message, Data: data})
}

// bindingErrors names fields by their JSON tag and labels messages of known
// form fields, e.g. "First name must be at most 100 characters".
func bindingErrors(ve validator.ValidationErrors, obj any) map[string]string {
	tags := jsonTagNames(obj)
	labels := form.Labels()

	out := make(map[string]string, len(ve))
	for _, fe := range ve {
		name, ok := tags[fe.StructField()]
		if !ok {
			name = strings.ToLower(fe.Field())
		}
		subject := labels[name]
		if subject == "" {
			subject = "This field"
		}
		out[name] = bindingMessage(subject, fe)
	}
	return out
}

func bindingMessage(subject string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return subject + " is required"
	case "email":
		return form.MsgInvalidEmail
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", subject, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", subject, fe.Param())
	default:
		return subject + " is invalid"
	}
}

// jsonTagNames maps struct field names of obj to their JSON names.
func jsonTagNames(obj any) map[string]string {
	if obj == nil {
		return nil
	}
	t := reflect.TypeOf(obj)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	m := make(map[string]string, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name != "" && name != "-" {
			m[f.Name] = name
		}
	}
	return m
}
