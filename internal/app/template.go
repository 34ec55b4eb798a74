package app

import (
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin/render"
)

// TemplateRenderer is the gin HTML renderer of the staff pages.
//
// Every page under templates/ (except layouts/ and partials/) is compiled on
// top of a clone of the shared layouts and partials, so a page invokes
// {{ template "base" . }} and fills the "title" and "content" blocks. The
// user form partial is shared by the full form page and the fields fragment
// returned to htmx.
//
// Debug mode re-parses on every request; release mode parses once.
type TemplateRenderer struct {
	templates map[string]*template.Template // release mode only
	fs        fs.FS
	funcMap   template.FuncMap
	debug     bool
}

var _ render.HTMLRender = (*TemplateRenderer)(nil)

// NewTemplateRenderer creates a renderer over fsys, which must contain a
// templates/ directory. Parse errors surface here in release mode and on
// each render in debug mode.
func NewTemplateRenderer(fsys fs.FS, debug bool) (*TemplateRenderer, error) {
	r := &TemplateRenderer{
		fs:      fsys,
		funcMap: templateFuncMap(),
		debug:   debug,
	}

	if !debug {
		templates, err := r.parseAllTemplates()
		if err != nil {
			return nil, fmt.Errorf("parse templates: %w", err)
		}
		r.templates = templates
	}

	return r, nil
}

// Instance implements render.HTMLRender. name is relative to templates/,
// e.g. "user/list.html".
func (r *TemplateRenderer) Instance(name string, data any) render.Render {
	templates := r.templates
	if r.debug {
		var err error
		if templates, err = r.parseAllTemplates(); err != nil {
			return &HTMLInstance{Name: name, err: err}
		}
	}
	return &HTMLInstance{Template: templates[name], Name: name, Data: data}
}

// parseAllTemplates returns the compiled template of every page, keyed by
// its name relative to templates/.
func (r *TemplateRenderer) parseAllTemplates() (map[string]*template.Template, error) {
	base, err := r.parseBase()
	if err != nil {
		return nil, err
	}

	pageFiles, err := r.discoverPageTemplates()
	if err != nil {
		return nil, fmt.Errorf("discover pages: %w", err)
	}

	templates := make(map[string]*template.Template, len(pageFiles))
	for _, path := range pageFiles {
		name := strings.TrimPrefix(path, "templates/")
		page, err := r.parsePage(base, path, name)
		if err != nil {
			return nil, err
		}
		templates[name] = page
	}
	return templates, nil
}

// parseBase parses layouts and partials into one shared set.
func (r *TemplateRenderer) parseBase() (*template.Template, error) {
	base := template.New("").Funcs(r.funcMap)
	for _, pattern := range []string{"templates/layouts/*.html", "templates/partials/*.html"} {
		files, err := fs.Glob(r.fs, pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", pattern, err)
		}
		for _, f := range files {
			if err := parseFileInto(base.New(f), r.fs, f); err != nil {
				return nil, err
			}
		}
	}
	return base, nil
}

func (r *TemplateRenderer) parsePage(base *template.Template, path, name string) (*template.Template, error) {
	page, err := base.Clone()
	if err != nil {
		return nil, fmt.Errorf("clone base for %s: %w", path, err)
	}
	if err := parseFileInto(page.New(name), r.fs, path); err != nil {
		return nil, err
	}
	return page, nil
}

func parseFileInto(t *template.Template, fsys fs.FS, path string) error {
	content, err := fs.ReadFile(fsys, path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if _, err := t.Parse(string(content)); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// sharedDirs hold templates compiled into every page rather than served.
var sharedDirs = []string{"layouts", "partials"}

// discoverPageTemplates lists the .html files under templates/ outside the
// shared directories.
func (r *TemplateRenderer) discoverPageTemplates() ([]string, error) {
	var pages []string
	err := fs.WalkDir(r.fs, "templates", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || path.Ext(p) != ".html" {
			return err
		}
		top, _, _ := strings.Cut(strings.TrimPrefix(p, "templates/"), "/")
		if !slices.Contains(sharedDirs, top) {
			pages = append(pages, p)
		}
		return nil
	})
	return pages, err
}

func templateFuncMap() template.FuncMap {
	return template.FuncMap{
		"formatDate": formatDate,
		"add":        func(a, b int) int { return a + b },
		"sub":        func(a, b int) int { return a - b },
		"pageURL":    pageURL,
		"fieldID":    func(name string) string { return "field-" + name },
	}
}

func formatDate(t time.Time) string { return t.Format("2006-01-02 15:04") }

// pageURL links to page of the list at base, keeping a non-zero page size.
func pageURL(base string, page, pageSize int) string {
	q := url.Values{"page": {strconv.Itoa(page)}}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
	return base + "?" + q.Encode()
}

// HTMLInstance is one pending execution of a page template.
type HTMLInstance struct {
	Template *template.Template
	Name     string
	Data     any
	err      error // debug-mode parse failure
}

const htmlContentType = "text/html; charset=utf-8"

func (h *HTMLInstance) Render(w http.ResponseWriter) error {
	h.WriteContentType(w)
	if h.err != nil {
		return h.err
	}
	if h.Template == nil {
		return fmt.Errorf("template %q not found", h.Name)
	}
	return h.Template.ExecuteTemplate(w, h.Name, h.Data)
}

func (h *HTMLInstance) WriteContentType(w http.ResponseWriter) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", htmlContentType)
	}
}
