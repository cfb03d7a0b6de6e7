package routes

import (
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/render"
	"github.com/mbolis/quick-forms/app"
	"github.com/mbolis/quick-forms/httpx"
	"github.com/mbolis/quick-forms/log"
	"github.com/mbolis/quick-forms/users"
)

var reRefresh = regexp.MustCompile(`(?i)^refresh\s+(.*)`)

func Register(app app.App) http.HandlerFunc {
	store := users.NewStore(app.DB)
	return func(w http.ResponseWriter, r *http.Request) {
		var reg users.Registration
		err := render.DecodeJSON(r.Body, &reg)
		if err != nil {
			httpx.LogStatus(w, r, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		id, err := store.Register(r.Context(), reg)
		if err != nil {
			httpx.LogError(w, r, "users.register", err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id":      id,
			"message": "registration successful",
		})
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges an email and a password, sent as JSON or with basic
// authentication, for a token pair.
func Login(app app.App) http.HandlerFunc {
	store := users.NewStore(app.DB)
	return func(w http.ResponseWriter, r *http.Request) {
		var login loginRequest
		if user, pass, ok := r.BasicAuth(); ok {
			login = loginRequest{user, pass}
		} else if err := render.DecodeJSON(r.Body, &login); err != nil {
			httpx.LogStatus(w, r, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		tokens, ok := issueTokens(app, w, r, url.Values{
			"grant_type": {"password"},
			"username":   {strings.ToLower(strings.TrimSpace(login.Email))},
			"password":   {login.Password},
		})
		if !ok {
			return
		}

		user, err := store.FindByEmail(r.Context(), login.Email)
		if err != nil {
			httpx.LogError(w, r, "login.find_user", err)
			return
		}
		tokens["user"] = user
		render.JSON(w, r, tokens)
	}
}

func Refresh(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		match := reRefresh.FindStringSubmatch(r.Header.Get("Authorization"))
		if len(match) == 0 {
			httpx.LogStatus(w, r, http.StatusUnauthorized, log.DebugLevel, "refresh.token")
			return
		}

		tokens, ok := issueTokens(app, w, r, url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {strings.TrimSpace(match[1])},
		})
		if ok {
			render.JSON(w, r, tokens)
		}
	}
}

// issueTokens runs a grant through the bearer server, which only speaks
// form-encoded requests, and reshapes its answer for the API clients.
func issueTokens(app app.App, w http.ResponseWriter, r *http.Request, grant url.Values) (map[string]any, bool) {
	body := grant.Encode()
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, "/", strings.NewReader(body))
	if err != nil {
		httpx.LogInternalError(w, r, "token.new_request", err)
		return nil, false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Content-Length", strconv.Itoa(len(body)))

	resp := httpx.NewResponseBuffer()
	app.UserCredentials(resp, req)
	if resp.Status() != http.StatusOK {
		httpx.LogStatusMsg(w, r, http.StatusUnauthorized, log.DebugLevel, "token."+grant.Get("grant_type"), "invalid credentials")
		return nil, false
	}

	var issued struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	err = json.Unmarshal(resp.Body(), &issued)
	if err != nil {
		httpx.LogInternalError(w, r, "token.parse_response", err)
		return nil, false
	}

	return map[string]any{
		"token":         issued.AccessToken,
		"refresh_token": issued.RefreshToken,
		"token_type":    issued.TokenType,
		"expires_in":    issued.ExpiresIn,
	}, true
}
