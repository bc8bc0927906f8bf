package web

import (
	"context"
	"encoding/json"
	"net/http"
)

// Respond converts a Go value to JSON and sends it to the client.
func Respond(ctx context.Context, w http.ResponseWriter, data any, statusCode int) error {
	SetStatusCode(ctx, statusCode)

	if statusCode == http.StatusNoContent || data == nil {
		w.WriteHeader(statusCode)
		return nil
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if _, err := w.Write(jsonData); err != nil {
		return err
	}

	return nil
}

// RespondPage sends a page of values along with the total the page was
// cut from.
func RespondPage[T any](ctx context.Context, w http.ResponseWriter, items []T, page Page, statusCode int) error {
	total := len(items)

	from := min(page.Offset, total)
	to := total
	if page.Limit > 0 {
		to = min(from+page.Limit, total)
	}

	resp := struct {
		Items  []T `json:"items"`
		Total  int `json:"total"`
		Offset int `json:"offset"`
		Limit  int `json:"limit"`
	}{
		Items:  items[from:to],
		Total:  total,
		Offset: page.Offset,
		Limit:  page.Limit,
	}
	if resp.Items == nil {
		resp.Items = []T{}
	}

	return Respond(ctx, w, resp, statusCode)
}
