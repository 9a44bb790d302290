package request

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreparePayload(t *testing.T) {
	tests := []struct {
		name        string
		desc        Descriptor
		body        string
		form        string
		contentType string
	}{
		{"json object", Descriptor{Body: map[string]any{"a": 1}}, `{"a":1}`, "", contentTypeJSON},
		{"json string passthrough", Descriptor{Body: `{"raw":true}`}, `{"raw":true}`, "", contentTypeJSON},
		{"json bytes passthrough", Descriptor{Body: []byte(`[1,2]`)}, `[1,2]`, "", contentTypeJSON},
		{"json scalar", Descriptor{Body: 5}, `5`, "", contentTypeJSON},
		{"json nil", Descriptor{}, "", "", contentTypeJSON},
		{"url map", Descriptor{Encoding: EncodingURL, Body: map[string]string{"b": "2", "a": "x y"}}, "", "a=x+y&b=2", contentTypeForm},
		{"url values", Descriptor{Encoding: EncodingURL, Body: url.Values{"k": {"v"}}}, "", "k=v", contentTypeForm},
		{"url any", Descriptor{Encoding: EncodingURL, Body: map[string]any{"n": 3, "s": "t"}}, "", "n=3&s=t", contentTypeForm},
		{"url string", Descriptor{Encoding: EncodingURL, Body: "a=1"}, "a=1", "", contentTypeForm},
		{"raw string", Descriptor{Encoding: EncodingRaw, Body: "hello"}, "hello", "", contentTypeJSON},
		{"raw reader", Descriptor{Encoding: EncodingRaw, Body: strings.NewReader("stream")}, "stream", "", contentTypeJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := preparePayload(tt.desc)
			require.NoError(t, err)
			assert.Equal(t, tt.body, string(p.body))
			assert.Equal(t, tt.form, p.form.Encode())
			assert.Equal(t, tt.contentType, p.contentType)
		})
	}
}

func TestPreparePayloadMultipart(t *testing.T) {
	p, err := preparePayload(Descriptor{
		Body: map[string]any{
			"title": "nightly",
			"count": 2,
			"icon":  &File{Content: []byte("png")},
		},
		Files: map[string]File{"archive": {Filename: "backup.tar"}},
	})
	require.NoError(t, err)

	assert.Equal(t, EncodingMultipart, p.encoding)
	assert.Empty(t, p.contentType, "resty sets the boundary")
	assert.Equal(t, map[string]string{"title": `"nightly"`, "count": "2"}, p.fields)
	assert.Equal(t, File{Filename: "icon", ContentType: "application/octet-stream", Content: []byte("png")}, p.files["icon"])
	assert.Equal(t, "backup.tar", p.files["archive"].Filename)
}

func TestPreparePayloadUnsupported(t *testing.T) {
	_, err := preparePayload(Descriptor{Encoding: EncodingRaw, Body: map[string]any{}})
	assert.ErrorIs(t, err, ErrUnsupportedBody)

	_, err = preparePayload(Descriptor{Encoding: EncodingURL, Body: 42})
	assert.ErrorIs(t, err, ErrUnsupportedBody)

	_, err = preparePayload(Descriptor{Encoding: EncodingMultipart, Body: "text"})
	assert.ErrorIs(t, err, ErrUnsupportedBody)

	_, err = preparePayload(Descriptor{Encoding: "xml"})
	assert.Error(t, err)
}

func TestFormRequest(t *testing.T) {
	var contentType string
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		if assert.NoError(t, r.ParseForm()) {
			form = r.PostForm
		}
	}))
	defer srv.Close()

	h := newHarness(t, srv.URL+"/", nil)

	resp, err := h.client.Execute(context.Background(), Descriptor{
		Method:   http.MethodPost,
		Path:     "/api/token",
		Encoding: EncodingURL,
		Body:     map[string]string{"user": "admin", "scope": "a b"},
	})
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, contentTypeForm, contentType)
	assert.Equal(t, url.Values{"user": {"admin"}, "scope": {"a b"}}, form)
}

func TestMultipartRejectsGet(t *testing.T) {
	hc := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("should not be called")
	})}
	h := newHarness(t, "http://home.local/", hc)

	_, err := h.client.Execute(context.Background(), Descriptor{
		Path:  "/api/backups",
		Files: map[string]File{"archive": {Content: []byte("x")}},
	})
	assert.ErrorIs(t, err, ErrUnsupportedBody)
	assert.Equal(t, 0, h.queue.Len())
}

func TestMultipartUpload(t *testing.T) {
	type part struct {
		value    string
		filename string
		content  string
	}
	got := map[string]part{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		for k, v := range r.MultipartForm.Value {
			got[k] = part{value: v[0]}
		}
		for k, fhs := range r.MultipartForm.File {
			f, err := fhs[0].Open()
			if !assert.NoError(t, err) {
				return
			}
			data, _ := io.ReadAll(f)
			f.Close()
			got[k] = part{filename: fhs[0].Filename, content: string(data)}
		}
	}))
	defer srv.Close()

	h := newHarness(t, srv.URL+"/", nil)

	resp, err := h.client.Execute(context.Background(), Descriptor{
		Method: http.MethodPost,
		Path:   "/api/backups",
		Body: map[string]any{
			"meta":  map[string]any{"a": 1},
			"title": "nightly",
			"icon":  File{Filename: "icon.png", ContentType: "image/png", Content: []byte("png")},
		},
		Files: map[string]File{
			"archive": {Filename: "backup.tar", Content: []byte("tar-bytes")},
		},
	})
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, `{"a":1}`, got["meta"].value)
	assert.Equal(t, `"nightly"`, got["title"].value)
	assert.Equal(t, part{filename: "icon.png", content: "png"}, got["icon"])
	assert.Equal(t, part{filename: "backup.tar", content: "tar-bytes"}, got["archive"])
}
