package routes

import (
	"net/http"

	"github.com/go-chi/render"
	"github.com/mbolis/quick-forms/access"
	"github.com/mbolis/quick-forms/app"
	"github.com/mbolis/quick-forms/forms"
	"github.com/mbolis/quick-forms/httpx"
	"github.com/mbolis/quick-forms/log"
	"github.com/mbolis/quick-forms/routes/middlewares"
)

type collaboratorRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func AddCollaborator(app app.App) http.HandlerFunc {
	repo := forms.NewRepository(app.DB)
	resolver := access.NewResolver(app.DB)
	return func(w http.ResponseWriter, r *http.Request) {
		formID, ok := urlID(w, r, "id")
		if !ok {
			return
		}
		_, err := access.Require(r.Context(), resolver, formID, middlewares.Identity(r).ID, access.ManageCollaborators)
		if err != nil {
			httpx.LogError(w, r, "collaborators.add.access", err)
			return
		}

		var req collaboratorRequest
		err = render.DecodeJSON(r.Body, &req)
		if err != nil {
			httpx.LogStatus(w, r, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		c, err := repo.AddCollaborator(r.Context(), formID, req.Email, req.Role)
		if err != nil {
			httpx.LogError(w, r, "db.insert_collaborator", err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"success":      true,
			"message":      "collaborator added",
			"collaborator": c,
		})
	}
}

func ListCollaborators(app app.App) http.HandlerFunc {
	repo := forms.NewRepository(app.DB)
	resolver := access.NewResolver(app.DB)
	return func(w http.ResponseWriter, r *http.Request) {
		formID, ok := urlID(w, r, "id")
		if !ok {
			return
		}
		role, err := access.Require(r.Context(), resolver, formID, middlewares.Identity(r).ID, access.ListCollaborators)
		if err != nil {
			httpx.LogError(w, r, "collaborators.list.access", err)
			return
		}

		collaborators, err := repo.ListCollaborators(r.Context(), formID)
		if err != nil {
			httpx.LogError(w, r, "db.get_collaborators", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"collaborators": collaborators,
			"isOwner":       role == access.Owner,
			"userRole":      role.String(),
		})
	}
}

func RemoveCollaborator(app app.App) http.HandlerFunc {
	repo := forms.NewRepository(app.DB)
	resolver := access.NewResolver(app.DB)
	return func(w http.ResponseWriter, r *http.Request) {
		formID, ok := urlID(w, r, "id")
		if !ok {
			return
		}
		collaboratorID, ok := urlID(w, r, "collabId")
		if !ok {
			return
		}
		_, err := access.Require(r.Context(), resolver, formID, middlewares.Identity(r).ID, access.ManageCollaborators)
		if err != nil {
			httpx.LogError(w, r, "collaborators.remove.access", err)
			return
		}

		err = repo.RemoveCollaborator(r.Context(), formID, collaboratorID)
		if err != nil {
			httpx.LogError(w, r, "db.delete_collaborator", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"success": true,
			"message": "collaborator removed",
		})
	}
}
