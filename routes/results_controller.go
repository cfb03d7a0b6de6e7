package routes

import (
	"fmt"
	"net/http"

	"github.com/go-chi/render"
	"github.com/mbolis/quick-forms/app"
	"github.com/mbolis/quick-forms/httpx"
	"github.com/mbolis/quick-forms/log"
	"github.com/mbolis/quick-forms/results"
	"github.com/mbolis/quick-forms/routes/middlewares"
)

func MyResults(app app.App) http.HandlerFunc {
	rd := results.NewReader(app.DB)
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := rd.ListResults(r.Context(), middlewares.Identity(r).ID)
		if err != nil {
			httpx.LogError(w, r, "db.get_results", err)
			return
		}
		render.JSON(w, r, list)
	}
}

func GetResponse(app app.App) http.HandlerFunc {
	rd := results.NewReader(app.DB)
	return func(w http.ResponseWriter, r *http.Request) {
		responseID, ok := urlID(w, r, "id")
		if !ok {
			return
		}

		detail, err := rd.ResponseDetail(r.Context(), responseID, middlewares.Identity(r).ID)
		if err != nil {
			httpx.LogError(w, r, "db.get_response", err)
			return
		}
		render.JSON(w, r, detail)
	}
}

func GroupedAnswers(app app.App) http.HandlerFunc {
	rd := results.NewReader(app.DB)
	return func(w http.ResponseWriter, r *http.Request) {
		formID, ok := urlID(w, r, "id")
		if !ok {
			return
		}

		grouped, err := rd.GroupedAnswers(r.Context(), formID, middlewares.Identity(r).ID)
		if err != nil {
			httpx.LogError(w, r, "db.get_grouped_answers", err)
			return
		}
		render.JSON(w, r, grouped)
	}
}

func ExportResponse(app app.App) http.HandlerFunc {
	rd := results.NewReader(app.DB)
	return func(w http.ResponseWriter, r *http.Request) {
		responseID, ok := urlID(w, r, "id")
		if !ok {
			return
		}

		wb, err := rd.ExportResponse(r.Context(), responseID, middlewares.Identity(r).ID)
		if err != nil {
			httpx.LogError(w, r, "export.response", err)
			return
		}
		sendWorkbook(w, wb)
	}
}

func ExportForm(app app.App) http.HandlerFunc {
	rd := results.NewReader(app.DB)
	return func(w http.ResponseWriter, r *http.Request) {
		formID, ok := urlID(w, r, "id")
		if !ok {
			return
		}

		wb, err := rd.ExportForm(r.Context(), formID, middlewares.Identity(r).ID)
		if err != nil {
			httpx.LogError(w, r, "export.form", err)
			return
		}
		sendWorkbook(w, wb)
	}
}

func sendWorkbook(w http.ResponseWriter, wb *results.Workbook) {
	defer wb.Close()

	w.Header().Set("Content-Type", results.XLSXContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", wb.Filename))
	_, err := wb.WriteTo(w)
	if err != nil {
		log.Errorf("export.write: %s", err)
	}
}

func Health(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := app.PingContext(r.Context())
		if err != nil {
			httpx.LogInternalError(w, r, "db.ping", err)
			return
		}
		render.JSON(w, r, map[string]any{"status": "ok"})
	}
}
