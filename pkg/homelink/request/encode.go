package request

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/go-resty/resty/v2"
)

// Encoding selects how a Descriptor body is serialized.
type Encoding string

const (
	EncodingJSON      Encoding = "json"
	EncodingURL       Encoding = "url"
	EncodingRaw       Encoding = "raw"
	EncodingMultipart Encoding = "multipart"
)

const (
	contentTypeJSON = "application/json; charset=utf-8"
	contentTypeForm = "application/x-www-form-urlencoded"
)

// ErrUnsupportedBody is returned when a body cannot be serialized with the
// selected encoding.
var ErrUnsupportedBody = errors.New("unsupported body for encoding")

// File is an uploaded file part of a multipart body.
type File struct {
	Filename    string
	ContentType string
	Content     []byte
}

// payload is a Descriptor body resolved once, so that every attempt builds
// an identical request from it.
type payload struct {
	encoding    Encoding
	contentType string
	body        []byte
	form        url.Values
	fields      map[string]string
	files       map[string]File
}

func preparePayload(d Descriptor) (*payload, error) {
	encoding := d.Encoding
	if encoding == "" {
		encoding = EncodingJSON
	}
	if len(d.Files) > 0 {
		encoding = EncodingMultipart
	}

	p := &payload{encoding: encoding}
	var err error

	switch encoding {
	case EncodingMultipart:
		err = p.multipart(d.Body, d.Files)
	case EncodingURL:
		p.contentType = contentTypeForm
		err = p.urlencoded(d.Body)
	case EncodingRaw:
		p.contentType = contentTypeJSON
		p.body, err = rawBody(d.Body)
	case EncodingJSON:
		p.contentType = contentTypeJSON
		p.body, err = jsonBody(d.Body)
	default:
		return nil, fmt.Errorf("unknown encoding %q", encoding)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// apply sets the body on a fresh request. resty writes the form and
// multipart encodings itself.
func (p *payload) apply(req *resty.Request) {
	switch {
	case p.encoding == EncodingMultipart:
		req.SetMultipartFormData(p.fields)
		for name, f := range p.files {
			req.SetMultipartField(name, f.Filename, f.ContentType, bytes.NewReader(f.Content))
		}
	case p.form != nil:
		req.SetFormDataFromValues(p.form)
	case p.body != nil:
		req.SetBody(p.body)
	}
}

func jsonBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(b), nil
	case []byte:
		return b, nil
	}
	return json.Marshal(body)
}

func rawBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(b), nil
	case []byte:
		return b, nil
	case io.Reader:
		return io.ReadAll(b)
	}
	return nil, fmt.Errorf("%w: raw body of type %T", ErrUnsupportedBody, body)
}

func (p *payload) urlencoded(body any) error {
	switch b := body.(type) {
	case nil:
	case string:
		p.body = []byte(b)
	case []byte:
		p.body = b
	case url.Values:
		p.form = b
	case map[string]string:
		p.form = url.Values{}
		for k, v := range b {
			p.form.Set(k, v)
		}
	case map[string]any:
		p.form = url.Values{}
		for k, v := range b {
			p.form.Set(k, formValue(v))
		}
	default:
		return fmt.Errorf("%w: form body of type %T", ErrUnsupportedBody, body)
	}
	return nil
}

func formValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}

// multipart splits the body into data fields and file parts. Values other
// than files are JSON encoded, strings included, so the server decodes every
// field the same way.
func (p *payload) multipart(body any, files map[string]File) error {
	values := map[string]any{}
	switch b := body.(type) {
	case nil:
	case map[string]any:
		for k, v := range b {
			values[k] = v
		}
	case map[string]string:
		for k, v := range b {
			values[k] = v
		}
	default:
		return fmt.Errorf("%w: multipart body of type %T", ErrUnsupportedBody, body)
	}

	p.fields = make(map[string]string, len(values))
	p.files = make(map[string]File, len(files))

	for name, v := range values {
		switch f := v.(type) {
		case File:
			p.addFile(name, f)
			continue
		case *File:
			p.addFile(name, *f)
			continue
		}

		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode field %q: %w", name, err)
		}
		p.fields[name] = string(data)
	}
	for name, f := range files {
		p.addFile(name, f)
	}
	return nil
}

func (p *payload) addFile(name string, f File) {
	if f.Filename == "" {
		f.Filename = name
	}
	if f.ContentType == "" {
		f.ContentType = "application/octet-stream"
	}
	p.files[name] = f
}

// allowsMultipart reports whether resty will send a multipart body with
// method.
func allowsMultipart(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}
