package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mbolis/quick-forms/app"
	"github.com/mbolis/quick-forms/routes/middlewares"
)

func Wire(app app.App) http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.RequestID, middleware.Logger, middleware.Recoverer)

	root.Mount("/api", apiRouter(app))
	root.Mount("/", servePublicFiles())

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()

	api.Get("/health", Health(app))
	api.Post("/register", Register(app))
	api.Post("/login", Login(app))
	api.Post("/refresh", Refresh(app))
	api.Get("/public-forms", PublicForms(app))

	api.Group(func(r chi.Router) {
		r.Use(middlewares.OptionalAuth(app.TokenSecret))

		r.Get(`/form/{id:^\d+$}`, GetForm(app))
		r.Get("/shared/{token}", GetSharedForm(app))
		r.Post(`/form/{id:^\d+$}/submit`, SubmitForm(app))
	})

	api.Group(func(r chi.Router) {
		r.Use(middlewares.RequireAuth(app.TokenSecret))

		// forms
		r.Post("/create-form", CreateForm(app))
		r.Get("/my-forms", MyForms(app))
		r.Put(`/edit-form/{id:^\d+$}`, EditForm(app))
		r.Post(`/form/{id:^\d+$}/reorder`, ReorderQuestions(app))
		r.Delete(`/forms/{id:^\d+$}`, DeleteForm(app))
		r.Patch(`/forms/{id:^\d+$}/lock`, LockForm(app))
		r.Get(`/forms/{id:^\d+$}/share`, ShareForm(app))
		r.Get(`/forms/{id:^\d+$}/share/qr.png`, ShareQRCode(app))

		// collaborators
		r.Post(`/forms/{id:^\d+$}/collaborators`, AddCollaborator(app))
		r.Get(`/forms/{id:^\d+$}/collaborators`, ListCollaborators(app))
		r.Delete(`/forms/{id:^\d+$}/collaborators/{collabId:^\d+$}`, RemoveCollaborator(app))

		// results
		r.Get("/my-results", MyResults(app))
		r.Get(`/response/{id:^\d+$}`, GetResponse(app))
		r.Get(`/response/{id:^\d+$}/export`, ExportResponse(app))
		// older clients download a single response here, keyed by response id
		r.Get(`/form/{id:^\d+$}/export`, ExportResponse(app))
		r.Get(`/form/{id:^\d+$}/grouped-answers`, GroupedAnswers(app))
		r.Get(`/forms/{id:^\d+$}/export`, ExportForm(app))
	})

	return api
}

func servePublicFiles() http.Handler {
	return http.FileServer(http.Dir("public"))
}
