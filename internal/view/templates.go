package view

import (
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/bloodbridge/bloodbridge/internal/api"
	"github.com/bloodbridge/bloodbridge/internal/listctl"
	"github.com/bloodbridge/bloodbridge/internal/rbac"
	"github.com/bloodbridge/bloodbridge/internal/shared"
	"github.com/bloodbridge/bloodbridge/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// Nav describes the signed-in user for the layout.
type Nav struct {
	SignedIn bool
	Name     string
	Email    string
	PhotoURL string
	Role     rbac.Role
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	Nav         Nav
	Data        any
}

var amountPrinter = message.NewPrinter(language.English)

// Taka formats an amount in Bangladeshi taka.
func Taka(amount float64) string {
	return amountPrinter.Sprintf("৳%.2f", amount)
}

func statusClass(s api.Status) string {
	switch s {
	case api.StatusPending:
		return "badge-pending"
	case api.StatusInProgress:
		return "badge-progress"
	case api.StatusDone, api.StatusApproved:
		return "badge-done"
	case api.StatusCanceled:
		return "badge-canceled"
	}
	return "badge-unknown"
}

// dict builds a map from key/value pairs so partials can take several
// arguments.
func dict(pairs ...any) (map[string]any, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("dict: odd number of arguments")
	}
	out := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict: key %v is not a string", pairs[i])
		}
		out[key] = pairs[i+1]
	}
	return out, nil
}

// NewEngine parses templates at build-time.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
		"formatDay": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006")
		},
		"taka":        Taka,
		"statusClass": statusClass,
		"pageURL": func(path string, q listctl.Query, page int) string {
			return q.PageURL(path, page)
		},
		"withFilter": func(path string, q listctl.Query, name, value string) string {
			next := q.Clone()
			next.Filters[name] = value
			next.Page = listctl.DefaultPage
			return next.URL(path)
		},
		"join": func(parts ...string) string {
			return strings.Join(parts, "")
		},
		"dict":   dict,
		"itoa":   strconv.Itoa,
		"inc":    func(i int) int { return i + 1 },
		"escape": url.PathEscape,
		"eqStatus": func(s api.Status, raw string) bool {
			return string(s) == raw
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return e.templates.ExecuteTemplate(w, name, data)
}
