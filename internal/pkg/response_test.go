package pkg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/pagination"

	"github.com/simp-lee/staffdesk/internal/domain"
	"github.com/simp-lee/staffdesk/internal/form"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// bindInput mirrors the user request DTO: form field names as JSON tags.
type bindInput struct {
	FirstName string `json:"firstName" binding:"required,max=5"`
	Email     string `json:"email" binding:"omitempty,email"`
	Nickname  string `json:"nickname" binding:"omitempty,min=3"`
	Secret    string `json:"-" binding:"omitempty,oneof=a b"`
}

func newResponseTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func newBindContext(body string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return c, w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("invalid JSON %q: %v", w.Body.String(), err)
	}
	return v
}

func TestSuccessAndCreated(t *testing.T) {
	tests := []struct {
		name   string
		send   func(*gin.Context, any)
		data   any
		status int
	}{
		{"success with data", Success, map[string]string{"username": "ada"}, http.StatusOK},
		{"success nil data", Success, nil, http.StatusOK},
		{"created", Created, map[string]int{"id": 7}, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newResponseTestContext()
			tt.send(c, tt.data)

			if w.Code != tt.status {
				t.Fatalf("status = %d; want %d", w.Code, tt.status)
			}
			resp := decode[Response](t, w)
			if resp.Code != tt.status || resp.Message != "success" {
				t.Errorf("resp = %+v", resp)
			}
			if (resp.Data == nil) != (tt.data == nil) {
				t.Errorf("Data = %v; want %v", resp.Data, tt.data)
			}
		})
	}
}

func TestList(t *testing.T) {
	c, w := newResponseTestContext()
	result, err := pagination.NewPaginator(
		pagination.WithItemsPerPage[domain.User](10),
		pagination.WithKnownTotal[domain.User](21),
		pagination.WithSliceCallback(func(context.Context, int, int) ([]domain.User, error) {
			return []domain.User{{Username: "ada"}}, nil
		}),
	).Paginate(context.Background(), 2)
	if err != nil {
		t.Fatalf("Paginate: %v", err)
	}

	List(c, result)

	resp := decode[struct {
		Code int `json:"code"`
		Data struct {
			Items        []map[string]any `json:"items"`
			TotalItems   int64            `json:"total_items"`
			CurrentPage  int              `json:"current_page"`
			ItemsPerPage int              `json:"items_per_page"`
			TotalPages   int              `json:"total_pages"`
		} `json:"data"`
	}](t, w)
	if resp.Code != http.StatusOK || len(resp.Data.Items) != 1 || resp.Data.TotalItems != 21 {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Data.CurrentPage != 2 || resp.Data.ItemsPerPage != 10 || resp.Data.TotalPages != 3 {
		t.Errorf("paging = %+v", resp.Data)
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"not found", domain.NewAppError(domain.CodeNotFound, "employee not found", nil), http.StatusNotFound, "employee not found"},
		{"already exists", domain.NewAppError(domain.CodeAlreadyExists, "username already exists", nil), http.StatusConflict, "username already exists"},
		{"validation without fields", domain.NewAppError(domain.CodeValidation, "bad input", nil), http.StatusBadRequest, "bad input"},
		{"wrapped", fmt.Errorf("get: %w", domain.ErrNotFound), http.StatusNotFound, "not found"},
		{"internal hides cause", domain.NewAppError(domain.CodeInternal, "database error", errors.New("dial tcp")), http.StatusInternalServerError, "database error"},
		{"plain error", errors.New("something broke"), http.StatusInternalServerError, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newResponseTestContext()
			Error(c, tt.err)

			if w.Code != tt.status {
				t.Fatalf("status = %d; want %d", w.Code, tt.status)
			}
			resp := decode[Response](t, w)
			if resp.Code != tt.status || resp.Message != tt.message || resp.Data != nil {
				t.Errorf("resp = %+v; want code %d message %q", resp, tt.status, tt.message)
			}
			if strings.Contains(w.Body.String(), "dial tcp") {
				t.Error("cause must not leak into the response")
			}
		})
	}
}

func TestError_FieldErrors(t *testing.T) {
	c, w := newResponseTestContext()
	Error(c, domain.NewFieldErrors(map[string]string{
		form.FieldFirstName: "First name is required",
		form.FieldEmail:     form.MsgInvalidEmail,
	}))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d; want 400", w.Code)
	}
	resp := decode[ValidationErrorResponse](t, w)
	if resp.Message != "validation error" || len(resp.Errors) != 2 {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Errors[form.FieldEmail] != form.MsgInvalidEmail {
		t.Errorf("Errors[email] = %q", resp.Errors[form.FieldEmail])
	}
}

func TestBindAndValidate(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantOK     bool
		wantMsg    string
		wantErrors map[string]string
	}{
		{"valid", `{"firstName":"Ada","email":"ada@example.com"}`, true, "", nil},
		{"malformed JSON", `{"firstName":`, false, "bad request", nil},
		{"wrong type", `{"firstName":42}`, false, "bad request", nil},
		{
			"required form field", `{}`, false, "validation error",
			map[string]string{"firstName": "First name is required"},
		},
		{
			"labelled max", `{"firstName":"Adelaide"}`, false, "validation error",
			map[string]string{"firstName": "First name must be at most 5 characters"},
		},
		{
			"email uses form message", `{"firstName":"Ada","email":"nope"}`, false, "validation error",
			map[string]string{"email": form.MsgInvalidEmail},
		},
		{
			"unlabelled field", `{"firstName":"Ada","nickname":"x"}`, false, "validation error",
			map[string]string{"nickname": "This field must be at least 3 characters"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newBindContext(tt.body)
			var in bindInput

			ok := BindAndValidate(c, &in)
			if ok != tt.wantOK {
				t.Fatalf("BindAndValidate() = %v; want %v (body %s)", ok, tt.wantOK, w.Body.String())
			}
			if tt.wantOK {
				if w.Body.Len() != 0 {
					t.Errorf("success must not write a response, got %q", w.Body.String())
				}
				return
			}
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d; want 400", w.Code)
			}

			resp := decode[ValidationErrorResponse](t, w)
			if resp.Message != tt.wantMsg {
				t.Errorf("Message = %q; want %q", resp.Message, tt.wantMsg)
			}
			if len(resp.Errors) != len(tt.wantErrors) {
				t.Errorf("Errors = %v; want %v", resp.Errors, tt.wantErrors)
			}
			for k, v := range tt.wantErrors {
				if resp.Errors[k] != v {
					t.Errorf("Errors[%q] = %q; want %q", k, resp.Errors[k], v)
				}
			}
		})
	}
}

func TestBindingErrors(t *testing.T) {
	c, _ := newBindContext(`{"firstName":"Adelaide"}`)
	var in bindInput
	fields, ok := BindingErrors(c.ShouldBind(&in), &in)
	if !ok || fields["firstName"] != "First name must be at most 5 characters" {
		t.Errorf("BindingErrors() = %v, %v", fields, ok)
	}
	if in.FirstName != "Adelaide" {
		t.Errorf("bound value = %q; want it kept after the failed check", in.FirstName)
	}

	if fields, ok := BindingErrors(errors.New("unexpected EOF"), &in); ok || fields != nil {
		t.Errorf("decode error reported as field errors: %v", fields)
	}
}

func TestMiddlewareError(t *testing.T) {
	c, w := newResponseTestContext()
	c.JSON(http.StatusRequestTimeout, MiddlewareError(http.StatusRequestTimeout, "request timeout"))

	if got := w.Body.String(); got != `{"code":408,"message":"request timeout","data":null}` {
		t.Errorf("body = %s", got)
	}
}

func TestJSONTagNames(t *testing.T) {
	got := jsonTagNames(&bindInput{})
	want := map[string]string{"FirstName": "firstName", "Email": "email", "Nickname": "nickname"}
	if len(got) != len(want) {
		t.Fatalf("jsonTagNames() = %v; want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("jsonTagNames()[%q] = %q; want %q", k, got[k], v)
		}
	}
	if jsonTagNames(nil) != nil || jsonTagNames(42) != nil {
		t.Error("non-struct input should yield nil")
	}
}
