package api

import (
	"context"
	"io"
	"mime"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/switchboard/internal/errors"
)

func TestUpload(t *testing.T) {
	var (
		auth      string
		mediaType string
		boundary  string
		file      string
		fileName  string
		campaign  string
	)
	c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		var params map[string]string
		mediaType, params, _ = mime.ParseMediaType(r.Header.Get("Content-Type"))
		boundary = params["boundary"]

		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		campaign = r.FormValue("campaign_id")
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		file = string(data)
		fileName = hdr.Filename

		writeJSON(w, http.StatusCreated, `{"imported":2}`)
	})
	require.NoError(t, store.Set("t1"))

	raw, err := c.Upload(context.Background(), "/leads/import",
		[]File{{Name: "leads.csv", Content: strings.NewReader("phone\n+15550100\n+15550101\n")}},
		map[string]string{"campaign_id": "7"},
	)
	require.NoError(t, err)

	assert.JSONEq(t, `{"imported":2}`, string(raw))
	assert.Equal(t, "Bearer t1", auth)
	assert.Equal(t, "multipart/form-data", mediaType)
	assert.NotEmpty(t, boundary)
	assert.Equal(t, "7", campaign)
	assert.Equal(t, "leads.csv", fileName)
	assert.Equal(t, "phone\n+15550100\n+15550101\n", file)
}

func TestUpload_401ClearsCredential(t *testing.T) {
	c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"error":{"message":"Token has expired"}}`)
	})
	require.NoError(t, store.Set("t1"))

	var fired int
	c.OnAuthExpired(func(AuthExpiredEvent) { fired++ })

	_, err := c.Upload(context.Background(), "/leads/import", []File{{Name: "a.csv", Content: strings.NewReader("x")}}, nil)
	assert.True(t, errors.IsAuthExpired(err))
	assert.Equal(t, 1, fired)
	_, ok := store.Get()
	assert.False(t, ok)
}

func TestUpload_APIError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"error":{"code":"INVALID_FILE","message":"Only CSV files are supported"}}`)
	})

	_, err := c.Upload(context.Background(), "/leads/import", []File{{Field: "upload", Name: "a.xls", Content: strings.NewReader("x")}}, nil)
	require.Error(t, err)
	assert.Equal(t, "Only CSV files are supported", errors.UserMessage(err))
}
