package routes

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/go-chi/render"
	"github.com/mbolis/quick-forms/access"
	"github.com/mbolis/quick-forms/app"
	"github.com/mbolis/quick-forms/forms"
	"github.com/mbolis/quick-forms/httpx"
	"github.com/mbolis/quick-forms/routes/middlewares"
	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 256

// shareLink is the public filling URL of a form the user may share.
func shareLink(ctx context.Context, app app.App, formID, userID int64) (string, error) {
	_, err := access.Require(ctx, access.NewResolver(app.DB), formID, userID, access.ShareForm)
	if err != nil {
		return "", err
	}
	form, err := forms.NewRepository(app.DB).Get(ctx, formID)
	if err != nil {
		return "", err
	}
	return app.BaseURL + "/shared/" + form.ShareToken, nil
}

func ShareForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formID, ok := urlID(w, r, "id")
		if !ok {
			return
		}

		link, err := shareLink(r.Context(), app, formID, middlewares.Identity(r).ID)
		if err != nil {
			httpx.LogError(w, r, "share.link", err)
			return
		}
		png, err := qrcode.Encode(link, qrcode.Medium, qrSize)
		if err != nil {
			httpx.LogInternalError(w, r, "share.qr_code", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"link":    link,
			"qr_code": "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		})
	}
}

func ShareQRCode(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		formID, ok := urlID(w, r, "id")
		if !ok {
			return
		}

		link, err := shareLink(r.Context(), app, formID, middlewares.Identity(r).ID)
		if err != nil {
			httpx.LogError(w, r, "share.link", err)
			return
		}
		png, err := qrcode.Encode(link, qrcode.Medium, qrSize)
		if err != nil {
			httpx.LogInternalError(w, r, "share.qr_code", err)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	}
}
