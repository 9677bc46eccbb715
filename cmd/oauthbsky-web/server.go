package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/PIPOGit/OAuthBluesky-sub000/atproto/syntax"
	"github.com/PIPOGit/OAuthBluesky-sub000/oauth"

	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

//go:embed templates/*.html
var templateFS embed.FS

const cookieName = "oauthbsky-web"

type WebServer struct {
	app       *oauth.ClientApp
	cookies   *sessions.CookieStore
	templates *template.Template
}

func serve(cctx *cli.Context) error {
	configureLogger(cctx.String("log-level"))

	config, err := buildClientConfig(cctx)
	if err != nil {
		return err
	}

	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return err
	}

	srv := &WebServer{
		app:       oauth.NewClientApp(&config, oauth.NewMemStore()),
		cookies:   sessions.NewCookieStore([]byte(cctx.String("cookie-secret"))),
		templates: templates,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", srv.handleHome)
	mux.HandleFunc("GET /oauth/client-metadata.json", srv.handleClientMetadata)
	mux.HandleFunc("POST /oauth/login", srv.handleLogin)
	mux.HandleFunc("GET /oauth/callback", srv.handleCallback)
	mux.HandleFunc("POST /oauth/logout", srv.handleLogout)
	mux.HandleFunc("GET /profile", srv.handleProfile)
	mux.Handle("GET /metrics", promhttp.Handler())

	bind := cctx.String("bind")
	slog.Info("starting web server", "bind", bind, "client_id", config.ClientID)
	httpServer := &http.Server{
		Addr:         bind,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return httpServer.ListenAndServe()
}

// currentSession loads the logged-in account from the cookie, or nil.
func (srv *WebServer) currentSession(r *http.Request) (*oauth.ClientSession, error) {
	cookie, _ := srv.cookies.Get(r, cookieName)
	didVal, ok := cookie.Values["did"].(string)
	if !ok {
		return nil, nil
	}
	sessionID, ok := cookie.Values["session_id"].(string)
	if !ok {
		return nil, nil
	}
	did, err := syntax.ParseDID(didVal)
	if err != nil {
		return nil, err
	}
	sess, err := srv.app.ResumeSession(r.Context(), did, sessionID)
	if errors.Is(err, oauth.ErrSessionNotFound) {
		return nil, nil
	}
	var terr *oauth.TokenError
	if errors.As(err, &terr) {
		// the stored token set is unusable; make the user log in again
		slog.Info("stored session invalid", "did", did, "err", err)
		return nil, nil
	}
	return sess, err
}

func (srv *WebServer) render(w http.ResponseWriter, name string, data any) {
	if err := srv.templates.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("template render failed", "template", name, "err", err)
	}
}

func (srv *WebServer) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	sess, err := srv.currentSession(r)
	if err != nil {
		srv.renderError(w, err)
		return
	}
	data := map[string]any{}
	if sess != nil {
		data["DID"] = sess.Data.AccountDID.String()
	}
	srv.render(w, "home.html", data)
}

func (srv *WebServer) handleClientMetadata(w http.ResponseWriter, r *http.Request) {
	meta, err := srv.app.Config.ClientMetadata()
	if err != nil {
		srv.renderError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(meta)
}

func (srv *WebServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	identifier := r.PostFormValue("identifier")
	if identifier == "" {
		srv.renderError(w, fmt.Errorf("missing account identifier"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	redirectURL, err := srv.app.StartAuthFlow(ctx, identifier)
	if err != nil {
		srv.renderError(w, err)
		return
	}
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

func (srv *WebServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	sessData, err := srv.app.ProcessCallback(ctx, r.URL.Query())
	if err != nil {
		srv.renderError(w, err)
		return
	}
	cookie, _ := srv.cookies.Get(r, cookieName)
	cookie.Values["did"] = sessData.AccountDID.String()
	cookie.Values["session_id"] = sessData.SessionID
	if err := cookie.Save(r, w); err != nil {
		srv.renderError(w, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (srv *WebServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess, err := srv.currentSession(r)
	if err == nil && sess != nil {
		if err := srv.app.Logout(r.Context(), sess.Data.AccountDID, sess.Data.SessionID); err != nil {
			slog.Warn("logout failed", "err", err)
		}
	}
	cookie, _ := srv.cookies.Get(r, cookieName)
	cookie.Options.MaxAge = -1
	cookie.Save(r, w)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (srv *WebServer) handleProfile(w http.ResponseWriter, r *http.Request) {
	sess, err := srv.currentSession(r)
	if err != nil {
		srv.renderError(w, err)
		return
	}
	if sess == nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	var profile struct {
		Handle      string `json:"handle"`
		DisplayName string `json:"displayName"`
		Description string `json:"description"`
	}
	err = sess.APIClient().Get(r.Context(), "app.bsky.actor.getProfile",
		map[string]string{"actor": sess.Data.AccountDID.String()}, &profile)
	if err != nil {
		srv.renderError(w, err)
		return
	}
	srv.render(w, "profile.html", map[string]any{
		"DID":         sess.Data.AccountDID.String(),
		"Handle":      profile.Handle,
		"DisplayName": profile.DisplayName,
		"Description": profile.Description,
	})
}

func (srv *WebServer) renderError(w http.ResponseWriter, err error) {
	slog.Warn("request failed", "err", err)
	w.WriteHeader(http.StatusInternalServerError)
	srv.render(w, "error.html", map[string]any{"Error": err.Error()})
}
