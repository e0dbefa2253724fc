package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

const (
	maxBodyBytes      = 1 << 20
	maxAdminBodyBytes = 4 << 20
)

// decodeJSON reads exactly one JSON value. Unknown fields are ignored since
// the browser forms post extra client-side metadata.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, limit int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)

	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("multiple json values")
		}
		return err
	}
	return nil
}

// decodeJSONAllowEmpty is decodeJSON that treats an empty body as a zero value.
func decodeJSONAllowEmpty(w http.ResponseWriter, r *http.Request, dst any, limit int64) (bool, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		return false, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return false, errors.New("multiple json values")
		}
		return false, err
	}
	return false, nil
}

// readParams collects string parameters from the query string (GET) or from a
// JSON or form-encoded body (POST).
func readParams(w http.ResponseWriter, r *http.Request, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		for _, k := range keys {
			out[k] = q.Get(k)
		}
		return out, nil
	}

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("parse form: %w", err)
		}
		for _, k := range keys {
			out[k] = r.PostForm.Get(k)
		}
		return out, nil
	}

	var body map[string]any
	if _, err := decodeJSONAllowEmpty(w, r, &body, maxBodyBytes); err != nil {
		return nil, err
	}
	for _, k := range keys {
		switch v := body[k].(type) {
		case string:
			out[k] = v
		case nil:
		default:
			out[k] = strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return out, nil
}
