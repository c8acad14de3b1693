package web

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/iudanet/taskhub/internal/server/auth"
	"github.com/iudanet/taskhub/internal/server/authctx"
	"github.com/iudanet/taskhub/internal/server/cookies"
)

// Accounts is the subset of the auth service used by page handlers
type Accounts interface {
	Logout(ctx context.Context, raw string) error
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
}

const layout = `{{define "layout"}}<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}} · taskhub</title></head>
<body>
{{if .Name}}<p>Signed in as {{.Name}} ({{.Role}})</p>{{end}}
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
{{if .Notice}}<p class="notice">{{.Notice}}</p>{{end}}
{{template "content" .}}
</body>
</html>{{end}}`

var pageContent = map[string]string{
	"login": `{{define "content"}}<h1>Sign in</h1>
<form id="login" data-endpoint="/api/auth/login">
<input type="email" name="email" required>
<input type="password" name="password" required>
<button type="submit">Sign in</button>
</form>{{end}}`,
	"change-password": `{{define "content"}}<h1>Change password</h1>
{{if .MustChange}}<p>You must change your password before continuing.</p>{{end}}
<form method="post" action="/profile/change-password">
<input type="password" name="oldPassword" required>
<input type="password" name="newPassword" required>
<input type="password" name="confirmPassword" required>
<button type="submit">Update password</button>
</form>{{end}}`,
	"dashboard": `{{define "content"}}<h1>Dashboard</h1>
<p><a href="/logout">Log out</a></p>{{end}}`,
	"forbidden": `{{define "content"}}<h1>403</h1><p>You do not have access to this page.</p>{{end}}`,
}

var templates = parseTemplates()

func parseTemplates() map[string]*template.Template {
	base := template.Must(template.New("layout").Parse(layout))
	out := make(map[string]*template.Template, len(pageContent))
	for name, content := range pageContent {
		out[name] = template.Must(template.Must(base.Clone()).Parse(content))
	}
	return out
}

// pageData is the view model shared by every page
type pageData struct {
	Title      string
	Name       string
	Role       string
	Error      string
	Notice     string
	MustChange bool
}

// Pages serves the placeholder server-rendered pages
type Pages struct {
	accounts Accounts
	jar      *cookies.Jar
	logger   *slog.Logger
}

// NewPages creates the page handlers
func NewPages(accounts Accounts, jar *cookies.Jar, logger *slog.Logger) *Pages {
	return &Pages{accounts: accounts, jar: jar, logger: logger}
}

// Login обрабатывает GET /login
func (p *Pages) Login(w http.ResponseWriter, r *http.Request) {
	data := pageData{Title: "Sign in"}
	if r.URL.Query().Get("changed") != "" {
		data.Notice = "Password updated. Please sign in again."
	}
	render(w, p.logger, http.StatusOK, "login", data)
}

// Logout обрабатывает GET /logout: revokes the current session and clears both cookies
func (p *Pages) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if raw := p.jar.Refresh(r); raw != "" {
		if err := p.accounts.Logout(ctx, raw); err != nil {
			p.logger.WarnContext(ctx, "Page logout revoke failed", slog.Any("error", err))
		}
	}
	p.jar.ClearAccess(w)
	p.jar.ClearRefresh(w)
	http.Redirect(w, r, DefaultLoginPath, http.StatusFound)
}

// ChangePasswordForm обрабатывает GET /profile/change-password
func (p *Pages) ChangePasswordForm(w http.ResponseWriter, r *http.Request) {
	data := p.userData(r, "Change password")
	data.Error = r.URL.Query().Get("error")
	render(w, p.logger, http.StatusOK, "change-password", data)
}

// ChangePassword обрабатывает POST /profile/change-password.
// On success every session ends and the user signs in again.
func (p *Pages) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := authctx.IdentityFrom(ctx)
	if !ok {
		http.Redirect(w, r, DefaultLoginPath, http.StatusFound)
		return
	}

	if err := r.ParseForm(); err != nil {
		p.formError(w, r, "Invalid form")
		return
	}
	oldPassword := r.PostForm.Get("oldPassword")
	newPassword := r.PostForm.Get("newPassword")
	confirm := r.PostForm.Get("confirmPassword")

	switch {
	case oldPassword == "" || newPassword == "" || confirm == "":
		p.formError(w, r, "Please fill all fields")
		return
	case newPassword != confirm:
		p.formError(w, r, "New password and confirm password do not match")
		return
	}

	if err := p.accounts.ChangePassword(ctx, id.UserID, oldPassword, newPassword); err != nil {
		msg := "Failed to change password"
		switch {
		case errors.Is(err, auth.ErrWrongPassword):
			msg = "Old password incorrect"
		case errors.Is(err, auth.ErrInvalidInput):
			msg = err.Error()
		default:
			p.logger.ErrorContext(ctx, "Page password change failed", slog.Any("error", err))
		}
		p.formError(w, r, msg)
		return
	}

	p.jar.ClearAccess(w)
	p.jar.ClearRefresh(w)
	http.Redirect(w, r, DefaultLoginPath+"?changed=1", http.StatusFound)
}

// Dashboard обрабатывает GET /
func (p *Pages) Dashboard(w http.ResponseWriter, r *http.Request) {
	render(w, p.logger, http.StatusOK, "dashboard", p.userData(r, "Dashboard"))
}

func (p *Pages) formError(w http.ResponseWriter, r *http.Request, msg string) {
	http.Redirect(w, r, DefaultChangePasswordPath+"?error="+url.QueryEscape(msg), http.StatusFound)
}

func (p *Pages) userData(r *http.Request, title string) pageData {
	data := pageData{Title: title}
	if id, ok := authctx.IdentityFrom(r.Context()); ok {
		data.Name = id.Name
		data.Role = id.Role.String()
	}
	if profile, ok := ProfileFrom(r.Context()); ok {
		data.Name = profile.Name
		data.Role = profile.Role.String()
		data.MustChange = profile.MustChangePassword
	}
	return data
}

func renderForbidden(w http.ResponseWriter, logger *slog.Logger) {
	render(w, logger, http.StatusForbidden, "forbidden", pageData{Title: "Forbidden"})
}

func render(w http.ResponseWriter, logger *slog.Logger, status int, name string, data pageData) {
	var buf bytes.Buffer
	if err := templates[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		logger.Error("failed to render page", slog.String("page", name), slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		logger.Error("failed to write page", slog.String("page", name), slog.Any("error", err))
	}
}
