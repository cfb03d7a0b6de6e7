package routes

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/mbolis/quick-forms/access"
	"github.com/mbolis/quick-forms/app"
	"github.com/mbolis/quick-forms/forms"
	"github.com/mbolis/quick-forms/httpx"
	"github.com/mbolis/quick-forms/log"
	"github.com/mbolis/quick-forms/model"
	"github.com/mbolis/quick-forms/routes/middlewares"
)

func urlID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		httpx.LogStatus(w, r, http.StatusBadRequest, log.DebugLevel, "request.get_url_param."+name)
		return 0, false
	}
	return id, true
}

// decodeDraft reads a form draft, as JSON or multipart with its question images.
func decodeDraft(r *http.Request) (*forms.Draft, error) {
	var d forms.Draft
	mf, err := httpx.DecodePayload(r, &d)
	if err != nil {
		return nil, err
	}
	images, err := httpx.ReadFiles(mf, "images")
	if err != nil {
		return nil, model.Invalid("unreadable image upload: %s", err)
	}
	return &d, d.Prepare(images)
}

func CreateForm(app app.App) http.HandlerFunc {
	repo := forms.NewRepository(app.DB)
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := decodeDraft(r)
		if err != nil {
			httpx.LogError(w, r, "forms.create.decode", err)
			return
		}

		formID, err := repo.Create(r.Context(), middlewares.Identity(r).ID, d)
		if err != nil {
			httpx.LogError(w, r, "db.insert_form", err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"success": true,
			"message": "form created",
			"formId":  formID,
		})
	}
}

func MyForms(app app.App) http.HandlerFunc {
	repo := forms.NewRepository(app.DB)
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := repo.ListAccessible(r.Context(), middlewares.Identity(r).ID, r.URL.Query().Get("q"))
		if err != nil {
			httpx.LogError(w, r, "db.get_forms", err)
			return
		}
		render.JSON(w, r, list)
	}
}

func PublicForms(app app.App) http.HandlerFunc {
	repo := forms.NewRepository(app.DB)
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := repo.ListPublic(r.Context())
		if err != nil {
			httpx.LogError(w, r, "db.get_public_forms", err)
			return
		}
		render.JSON(w, r, list)
	}
}

func renderForm(w http.ResponseWriter, r *http.Request, form *model.Form) {
	render.JSON(w, r, map[string]any{
		"form":      form,
		"questions": form.Questions,
	})
}

func GetForm(app app.App) http.HandlerFunc {
	repo := forms.NewRepository(app.DB)
	return func(w http.ResponseWriter, r *http.Request) {
		formID, ok := urlID(w, r, "id")
		if !ok {
			return
		}

		form, err := repo.Get(r.Context(), formID)
		if err != nil {
			httpx.LogError(w, r, "db.get_form", err)
			return
		}
		renderForm(w, r, form)
	}
}

func GetSharedForm(app app.App) http.HandlerFunc {
	repo := forms.NewRepository(app.DB)
	return func(w http.ResponseWriter, r *http.Request) {
		form, err := repo.GetByShareToken(r.Context(), chi.URLParam(r, "token"))
		if err != nil {
			httpx.LogError(w, r, "db.get_shared_form", err)
			return
		}
		renderForm(w, r, form)
	}
}

func EditForm(app app.App) http.HandlerFunc {
	repo := forms.NewRepository(app.DB)
	resolver := access.NewResolver(app.DB)
	return func(w http.ResponseWriter, r *http.Request) {
		formID, ok := urlID(w, r, "id")
		if !ok {
			return
		}
		_, err := access.Require(r.Context(), resolver, formID, middlewares.Identity(r).ID, access.EditForm)
		if err != nil {
			httpx.LogError(w, r, "forms.edit.access", err)
			return
		}

		d, err := decodeDraft(r)
		if err != nil {
			httpx.LogError(w, r, "forms.edit.decode", err)
			return
		}

		version, err := repo.Update(r.Context(), formID, d)
		if err != nil {
			httpx.LogError(w, r, "db.update_form", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"success": true,
			"message": "form updated",
			"version": version,
		})
	}
}

type reorderRequest struct {
	QuestionOrder []int64 `json:"questionOrder"`
	Version       *int    `json:"version,omitempty"`
}

func ReorderQuestions(app app.App) http.HandlerFunc {
	repo := forms.NewRepository(app.DB)
	resolver := access.NewResolver(app.DB)
	return func(w http.ResponseWriter, r *http.Request) {
		formID, ok := urlID(w, r, "id")
		if !ok {
			return
		}
		_, err := access.Require(r.Context(), resolver, formID, middlewares.Identity(r).ID, access.EditForm)
		if err != nil {
			httpx.LogError(w, r, "forms.reorder.access", err)
			return
		}

		var req reorderRequest
		err = render.DecodeJSON(r.Body, &req)
		if err != nil || req.QuestionOrder == nil {
			httpx.LogStatusMsg(w, r, http.StatusBadRequest, log.DebugLevel, "request.parse_body", "questionOrder must be a list of question ids")
			return
		}

		version, err := repo.Reorder(r.Context(), formID, req.QuestionOrder, req.Version)
		if err != nil {
			httpx.LogError(w, r, "db.reorder_questions", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"success": true,
			"message": "questions reordered",
			"version": version,
		})
	}
}

func DeleteForm(app app.App) http.HandlerFunc {
	repo := forms.NewRepository(app.DB)
	resolver := access.NewResolver(app.DB)
	return func(w http.ResponseWriter, r *http.Request) {
		formID, ok := urlID(w, r, "id")
		if !ok {
			return
		}
		_, err := access.Require(r.Context(), resolver, formID, middlewares.Identity(r).ID, access.DeleteForm)
		if err != nil {
			httpx.LogError(w, r, "forms.delete.access", err)
			return
		}

		err = repo.Delete(r.Context(), formID)
		if err != nil {
			httpx.LogError(w, r, "db.delete_form", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"success": true,
			"message": "form deleted",
		})
	}
}

type lockRequest struct {
	IsLocked *bool `json:"isLocked"`
}

func LockForm(app app.App) http.HandlerFunc {
	repo := forms.NewRepository(app.DB)
	resolver := access.NewResolver(app.DB)
	return func(w http.ResponseWriter, r *http.Request) {
		formID, ok := urlID(w, r, "id")
		if !ok {
			return
		}
		_, err := access.Require(r.Context(), resolver, formID, middlewares.Identity(r).ID, access.LockForm)
		if err != nil {
			httpx.LogError(w, r, "forms.lock.access", err)
			return
		}

		var req lockRequest
		err = render.DecodeJSON(r.Body, &req)
		if err != nil || req.IsLocked == nil {
			httpx.LogStatusMsg(w, r, http.StatusBadRequest, log.DebugLevel, "request.parse_body", "isLocked must be true or false")
			return
		}

		err = repo.SetLocked(r.Context(), formID, *req.IsLocked)
		if err != nil {
			httpx.LogError(w, r, "db.lock_form", err)
			return
		}

		message := "form unlocked"
		if *req.IsLocked {
			message = "form locked"
		}
		render.JSON(w, r, map[string]any{
			"success":   true,
			"message":   message,
			"is_locked": *req.IsLocked,
		})
	}
}
