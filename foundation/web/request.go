package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dimfeld/httptreemux/v5"
)

// Param returns the web call parameters from the request.
func Param(r *http.Request, key string) string {
	m := httptreemux.ContextParams(r.Context())
	return m[key]
}

// ParamInt64 returns the named route parameter as an integer.
func ParamInt64(r *http.Request, key string) (int64, error) {
	v := Param(r, key)

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter %q: %w", key, v, err)
	}

	return n, nil
}

// Page is the window of a list asked for with the offset and limit query
// values. A zero limit means everything after the offset.
type Page struct {
	Offset int `json:"offset" validate:"gte=0"`
	Limit  int `json:"limit" validate:"gte=0,lte=1000"`
}

// ParsePage reads the offset and limit query values.
func ParsePage(r *http.Request) (Page, error) {
	var page Page

	q := r.URL.Query()
	for name, dst := range map[string]*int{"offset": &page.Offset, "limit": &page.Limit} {
		v := q.Get(name)
		if v == "" {
			continue
		}

		n, err := strconv.Atoi(v)
		if err != nil {
			return Page{}, FieldErrors{{Field: name, Error: fmt.Sprintf("%s must be a number", name)}}
		}
		*dst = n
	}

	if err := Check(page); err != nil {
		return Page{}, err
	}

	return page, nil
}

// Decode reads the body of an HTTP request looking for a JSON document. The
// body is decoded into the provided value.
//
// If the provided value is a struct then it is checked for validation tags.
func Decode(r *http.Request, val any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(val); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	if err := Check(val); err != nil {
		return err
	}

	return nil
}
