package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/felixgeelhaar/switchboard/internal/errors"
)

// File is one part of a multipart upload.
type File struct {
	Field   string
	Name    string
	Content io.Reader
}

// Upload posts files and form fields as multipart/form-data to endpoint.
// The multipart writer supplies the Content-Type with its boundary; auth
// and error classification match Execute.
func (c *Client) Upload(ctx context.Context, endpoint string, files []File, fields map[string]string) (json.RawMessage, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, errors.Wrap(errors.ErrCodeRequestInvalid, "failed to write form field "+k, err)
		}
	}
	for _, f := range files {
		field := f.Field
		if field == "" {
			field = "file"
		}
		part, err := w.CreateFormFile(field, f.Name)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeRequestInvalid, "failed to create form file "+f.Name, err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, errors.Wrap(errors.ErrCodeRequestInvalid, "failed to read "+f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeRequestInvalid, "failed to finish multipart body", err)
	}

	return c.send(ctx, call{
		method:      http.MethodPost,
		endpoint:    endpoint,
		body:        &buf,
		contentType: w.FormDataContentType(),
	})
}
