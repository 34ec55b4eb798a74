package app

import (
	"context"
	"errors"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/simp-lee/pagination"

	"github.com/simp-lee/staffdesk/internal/domain"
	"github.com/simp-lee/staffdesk/web"
)

// testFS mirrors web/templates: a layout, the shared form partial, a full
// form page and the fields-only fragment built from the same partial.
func testFS() fstest.MapFS {
	return fstest.MapFS{
		"templates/layouts/base.html": {Data: []byte(
			`{{ define "base" }}<!DOCTYPE html><html>` +
				`<head><title>{{ block "title" . }}Staff Desk{{ end }}</title></head>` +
				`<body>{{ block "content" . }}{{ end }}</body></html>{{ end }}`)},
		"templates/partials/user_form.html": {Data: []byte(
			`{{ define "user_form" }}<div id="user-fields">{{ range .Fields }}[{{ .Name }}]{{ end }}</div>{{ end }}`)},
		"templates/user/form.html": {Data: []byte(
			`{{ template "base" . }}` +
				`{{ define "title" }}{{ .Title }}{{ end }}` +
				`{{ define "content" }}<h1>{{ .Title }}</h1>{{ template "user_form" . }}{{ end }}`)},
		"templates/user/fields.html": {Data: []byte(`{{ template "user_form" . }}`)},
		"templates/errors/404.html": {Data: []byte(
			`{{ template "base" . }}{{ define "content" }}<h1>Page Not Found</h1>{{ end }}`)},
	}
}

type testField struct{ Name string }

func testFormData() map[string]any {
	return map[string]any{
		"Title":  "Add New Employee",
		"Fields": []testField{{"firstName"}, {"lastName"}},
	}
}

func render(t *testing.T, r *TemplateRenderer, name string, data any) string {
	t.Helper()
	w := httptest.NewRecorder()
	if err := r.Instance(name, data).Render(w); err != nil {
		t.Fatalf("Render(%s) error: %v", name, err)
	}
	return w.Body.String()
}

func TestTemplateFuncMap(t *testing.T) {
	fm := templateFuncMap()

	if got := fm["formatDate"].(func(time.Time) string)(time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)); got != "2024-06-15 10:30" {
		t.Errorf("formatDate = %q", got)
	}
	if got := fm["add"].(func(int, int) int)(2, 3); got != 5 {
		t.Errorf("add = %d", got)
	}
	if got := fm["sub"].(func(int, int) int)(5, 3); got != 2 {
		t.Errorf("sub = %d", got)
	}

	pageURL := fm["pageURL"].(func(string, int, int) string)
	tests := []struct {
		base       string
		page, size int
		want       string
	}{
		{"/employees", 2, 10, "/employees?page=2&page_size=10"},
		{"/clients", 1, 0, "/clients?page=1"},
	}
	for _, tt := range tests {
		if got := pageURL(tt.base, tt.page, tt.size); got != tt.want {
			t.Errorf("pageURL(%q,%d,%d) = %q; want %q", tt.base, tt.page, tt.size, got, tt.want)
		}
	}

	if got := fm["fieldID"].(func(string) string)("email"); got != "field-email" {
		t.Errorf("fieldID = %q", got)
	}
}

func TestNewTemplateRenderer_Release(t *testing.T) {
	r, err := NewTemplateRenderer(testFS(), false)
	if err != nil {
		t.Fatalf("NewTemplateRenderer() error: %v", err)
	}
	for _, name := range []string{"user/form.html", "user/fields.html", "errors/404.html"} {
		if _, ok := r.templates[name]; !ok {
			t.Errorf("expected %q to be compiled", name)
		}
	}
	if _, ok := r.templates["partials/user_form.html"]; ok {
		t.Error("partials must not be compiled as pages")
	}
}

func TestNewTemplateRenderer_DebugParsesLazily(t *testing.T) {
	fsys := testFS()
	r, err := NewTemplateRenderer(fsys, true)
	if err != nil {
		t.Fatalf("NewTemplateRenderer() error: %v", err)
	}
	if r.templates != nil {
		t.Error("debug renderer should not cache templates")
	}

	// Edits are visible on the next render.
	fsys["templates/user/fields.html"] = &fstest.MapFile{Data: []byte(`changed`)}
	if got := render(t, r, "user/fields.html", nil); got != "changed" {
		t.Errorf("body = %q; want hot-reloaded content", got)
	}
}

func TestNewTemplateRenderer_InvalidTemplate(t *testing.T) {
	tests := map[string]fstest.MapFS{
		"bad page": {
			"templates/user/form.html": {Data: []byte(`{{ invalid_syntax `)},
		},
		"bad partial": {
			"templates/partials/user_form.html": {Data: []byte(`{{ define "user_form" }}`)},
			"templates/user/form.html":          {Data: []byte(`ok`)},
		},
		"unknown function": {
			"templates/user/form.html": {Data: []byte(`{{ nope . }}`)},
		},
	}
	for name, fsys := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := NewTemplateRenderer(fsys, false); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}

func TestTemplateRenderer_FormAndFieldsShareThePartial(t *testing.T) {
	for _, debug := range []bool{false, true} {
		r, err := NewTemplateRenderer(testFS(), debug)
		if err != nil {
			t.Fatalf("NewTemplateRenderer(debug=%v) error: %v", debug, err)
		}

		page := render(t, r, "user/form.html", testFormData())
		for _, want := range []string{"<!DOCTYPE html>", "<title>Add New Employee</title>", `<div id="user-fields">[firstName][lastName]</div>`} {
			if !strings.Contains(page, want) {
				t.Errorf("debug=%v form page missing %q:\n%s", debug, want, page)
			}
		}

		fragment := render(t, r, "user/fields.html", testFormData())
		if fragment != `<div id="user-fields">[firstName][lastName]</div>` {
			t.Errorf("debug=%v fragment = %q", debug, fragment)
		}
	}
}

func TestListTemplate_PageNavigation(t *testing.T) {
	r, err := NewTemplateRenderer(web.EmbeddedFS, false)
	if err != nil {
		t.Fatalf("NewTemplateRenderer() error: %v", err)
	}
	page, err := pagination.NewPaginator(
		pagination.WithItemsPerPage[domain.User](10),
		pagination.WithKnownTotal[domain.User](25),
		pagination.WithSliceCallback(func(context.Context, int, int) ([]domain.User, error) {
			return []domain.User{{FirstName: "Ada", LastName: "Lovelace", Username: "ada"}}, nil
		}),
	).Paginate(context.Background(), 2)
	if err != nil {
		t.Fatalf("Paginate: %v", err)
	}

	body := render(t, r, "user/list.html", map[string]any{
		"Title":      "Employees",
		"Role":       domain.RoleEmployee,
		"Users":      page.Items,
		"Pagination": page,
		"BaseURL":    "/employees",
		"CSRFToken":  "tok",
	})
	for _, want := range []string{
		`href="/employees?page=1&amp;page_size=10">&laquo; Prev`,
		`<span class="current">2</span>`,
		`href="/employees?page=3&amp;page_size=10">Next &raquo;`,
		"25 total",
		"Ada Lovelace",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("list page missing %q:\n%s", want, body)
		}
	}
}

func TestTemplateRenderer_Instance_NotFound(t *testing.T) {
	r, err := NewTemplateRenderer(testFS(), false)
	if err != nil {
		t.Fatalf("NewTemplateRenderer() error: %v", err)
	}
	if err := r.Instance("user/missing.html", nil).Render(httptest.NewRecorder()); err == nil {
		t.Error("Render() should fail for an unknown page")
	}
}

func TestTemplateRenderer_DebugParseErrorOnRender(t *testing.T) {
	fsys := testFS()
	r, err := NewTemplateRenderer(fsys, true)
	if err != nil {
		t.Fatalf("NewTemplateRenderer() error: %v", err)
	}
	fsys["templates/user/form.html"] = &fstest.MapFile{Data: []byte(`{{ broken `)}

	if err := r.Instance("user/form.html", nil).Render(httptest.NewRecorder()); err == nil {
		t.Error("Render() should surface the parse error")
	}
}

func TestHTMLInstance_WriteContentType(t *testing.T) {
	w := httptest.NewRecorder()
	(&HTMLInstance{}).WriteContentType(w)
	if got := w.Header().Get("Content-Type"); got != htmlContentType {
		t.Errorf("Content-Type = %q; want %q", got, htmlContentType)
	}

	w = httptest.NewRecorder()
	w.Header().Set("Content-Type", "application/json")
	(&HTMLInstance{}).WriteContentType(w)
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type overwritten: %q", got)
	}
}

func TestHTMLInstance_Render_StoredError(t *testing.T) {
	want := errors.New("parse error")
	if err := (&HTMLInstance{err: want}).Render(httptest.NewRecorder()); !errors.Is(err, want) {
		t.Errorf("Render() = %v; want %v", err, want)
	}
}

func TestDiscoverPageTemplates(t *testing.T) {
	r := &TemplateRenderer{fs: testFS()}
	pages, err := r.discoverPageTemplates()
	if err != nil {
		t.Fatalf("discoverPageTemplates() error: %v", err)
	}
	slices.Sort(pages)
	want := []string{"templates/errors/404.html", "templates/user/fields.html", "templates/user/form.html"}
	if !slices.Equal(pages, want) {
		t.Errorf("pages = %v; want %v", pages, want)
	}
}
