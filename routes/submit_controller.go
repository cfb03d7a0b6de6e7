package routes

import (
	"net/http"

	"github.com/go-chi/render"
	"github.com/mbolis/quick-forms/app"
	"github.com/mbolis/quick-forms/httpx"
	"github.com/mbolis/quick-forms/model"
	"github.com/mbolis/quick-forms/routes/middlewares"
	"github.com/mbolis/quick-forms/submission"
)

// SubmitForm records a response. Guests may submit to forms that allow them.
func SubmitForm(app app.App) http.HandlerFunc {
	svc := submission.NewService(app.DB)
	return func(w http.ResponseWriter, r *http.Request) {
		formID, ok := urlID(w, r, "id")
		if !ok {
			return
		}

		var sub submission.Submission
		mf, err := httpx.DecodePayload(r, &sub)
		if err != nil {
			httpx.LogError(w, r, "submit.decode", err)
			return
		}
		uploads, err := httpx.ReadFiles(mf, "answerImages")
		if err != nil {
			httpx.LogError(w, r, "submit.read_uploads", model.Invalid("unreadable image upload: %s", err))
			return
		}
		err = sub.AttachUploads(uploads)
		if err != nil {
			httpx.LogError(w, r, "submit.attach_uploads", err)
			return
		}

		receipt, err := svc.Submit(r.Context(), formID, middlewares.Identity(r), sub.All())
		if err != nil {
			httpx.LogError(w, r, "submit.form", err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, receipt)
	}
}
