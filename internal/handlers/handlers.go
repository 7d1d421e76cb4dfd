package handlers

import (
	"bytes"
	"encoding/base64"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bookkeeper/internal/auth"
	"bookkeeper/internal/expense"
)

const (
	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "session"
	// FlashCookieName carries one message across a redirect.
	FlashCookieName = "flash"
)

// Deps holds everything the handlers need.
type Deps struct {
	Store        expense.Store
	Service      *expense.Service
	Aggregator   *expense.Aggregator
	Exporter     *expense.Exporter
	Credentials  *auth.Credentials
	Sessions     *auth.SessionManager
	Templates    fs.FS
	Logger       *slog.Logger
	SecureCookie bool
	MaxUpload    int64
	Now          func() time.Time
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Deps
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(d Deps) *Handlers {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Handlers{Deps: d}
}

// Page is the layout data shared by every view.
type Page struct {
	Title string
	Flash string
	User  string
}

func (h *Handlers) page(w http.ResponseWriter, r *http.Request, title string) Page {
	return Page{
		Title: title,
		Flash: h.popFlash(w, r),
		User:  auth.SessionFromContext(r.Context()).User,
	}
}

// AuthMiddleware wraps handlers to require a valid session.
// Sessions past half their lifetime are re-issued so active users stay logged in.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			h.redirectToLogin(w, r)
			return
		}

		session, err := h.Sessions.Parse(cookie.Value)
		if err != nil {
			h.clearSessionCookie(w)
			h.redirectToLogin(w, r)
			return
		}

		if h.Sessions.NeedsRenewal(session) {
			if token, renewed, err := h.Sessions.Issue(session.User); err == nil {
				h.setSessionCookie(w, token)
				session = renewed
			} else {
				h.Logger.WarnContext(r.Context(), "failed to renew session", "error", err)
			}
		}

		next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), session)))
	})
}

func (h *Handlers) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	target := "/login"
	if r.Method == http.MethodGet && r.URL.RequestURI() != "/" {
		target += "?next=" + url.QueryEscape(r.URL.RequestURI())
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// LoginViewModel holds data for the login page.
type LoginViewModel struct {
	Page
	Error string
	Next  string
}

// LoginForm renders the login page.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	next := safeNext(r.URL.Query().Get("next"))
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		if _, err := h.Sessions.Parse(cookie.Value); err == nil {
			http.Redirect(w, r, next, http.StatusFound)
			return
		}
	}
	h.render(w, r, "login.html", LoginViewModel{Page: h.page(w, r, "Sign in"), Next: next})
}

// Login handles the login form submission.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderStatus(w, r, http.StatusBadRequest, "login.html", LoginViewModel{Page: Page{Title: "Sign in"}, Error: "Invalid form submission"})
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	next := safeNext(r.FormValue("next"))

	if username == "" || password == "" {
		h.renderStatus(w, r, http.StatusBadRequest, "login.html", LoginViewModel{Page: Page{Title: "Sign in"}, Error: "Username and password are required", Next: next})
		return
	}

	if !h.Credentials.Verify(username, password) {
		h.Logger.WarnContext(r.Context(), "failed login", "username", username)
		h.renderStatus(w, r, http.StatusUnauthorized, "login.html", LoginViewModel{Page: Page{Title: "Sign in"}, Error: "Invalid username or password", Next: next})
		return
	}

	token, _, err := h.Sessions.Issue(username)
	if err != nil {
		h.Logger.ErrorContext(r.Context(), "failed to issue session", "error", err)
		h.renderStatus(w, r, http.StatusInternalServerError, "login.html", LoginViewModel{Page: Page{Title: "Sign in"}, Error: "An error occurred. Please try again."})
		return
	}

	h.setSessionCookie(w, token)
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// Logout clears the session.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearSessionCookie(w)
	h.setFlash(w, "Signed out.")
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, `/\`) {
		return "/"
	}
	return next
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.Sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) setFlash(w http.ResponseWriter, msg string) {
	http.SetCookie(w, h.flashCookie(base64.RawURLEncoding.EncodeToString([]byte(msg)), 60))
}

// flashCookie builds the flash cookie; setting and clearing share attributes.
func (h *Handlers) flashCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     FlashCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
}

// popFlash returns the pending message and clears it.
func (h *Handlers) popFlash(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(FlashCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	http.SetCookie(w, h.flashCookie("", -1))
	msg, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return ""
	}
	return string(msg)
}

var funcs = template.FuncMap{
	"money": func(d decimal.Decimal) string { return expense.FormatAmount(d) },
	"pct":   func(f float64) string { return decimal.NewFromFloat(f).StringFixed(0) },
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, viewName string, data any) {
	h.renderStatus(w, r, http.StatusOK, viewName, data)
}

// renderStatus executes base.html with the view's content block, or only the
// content block for htmx requests.
func (h *Handlers) renderStatus(w http.ResponseWriter, r *http.Request, status int, viewName string, data any) {
	tmpl, err := template.New("base.html").Funcs(funcs).ParseFS(h.Templates, "templates/base.html", "templates/"+viewName)
	if err != nil {
		h.Logger.ErrorContext(r.Context(), "template parse failed", "view", viewName, "error", err)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	target := "base.html"
	if r.Header.Get("HX-Request") == "true" {
		target = "content"
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, target, data); err != nil {
		h.Logger.ErrorContext(r.Context(), "template execution failed", "view", viewName, "error", err)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// Healthz reports liveness.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Readyz reports whether the expense store answers.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		h.Logger.WarnContext(r.Context(), "readiness check failed", "error", err)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
