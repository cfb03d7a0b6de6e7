package httpx

import (
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/render"
	"github.com/mbolis/quick-forms/model"
)

const maxMultipartMemory = 16 << 20

// DecodePayload decodes a JSON request body into v. Multipart requests carry
// the JSON in their "data" field; their parsed form is returned so the caller
// can pick up uploaded files.
func DecodePayload(r *http.Request, v any) (*multipart.Form, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		err := render.DecodeJSON(r.Body, v)
		if err != nil {
			return nil, model.Invalid("malformed JSON body: %s", err)
		}
		return nil, nil
	}

	err := r.ParseMultipartForm(maxMultipartMemory)
	if err != nil {
		return nil, model.Invalid("malformed multipart body: %s", err)
	}
	data := r.MultipartForm.Value["data"]
	if len(data) == 0 {
		return nil, model.Invalid("missing data field")
	}
	err = json.Unmarshal([]byte(data[0]), v)
	if err != nil {
		return nil, model.Invalid("malformed data field: %s", err)
	}
	return r.MultipartForm, nil
}

// ReadFiles loads every file uploaded under field, in upload order.
func ReadFiles(form *multipart.Form, field string) ([][]byte, error) {
	if form == nil {
		return nil, nil
	}
	var contents [][]byte
	for _, fh := range form.File[field] {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		contents = append(contents, content)
	}
	return contents, nil
}
