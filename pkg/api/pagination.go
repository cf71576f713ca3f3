package api

import (
	"net/http"
	"strconv"

	"github.com/labtrail/protocol-registry/pkg/document"
)

// pageParams is the optional ?page/?per_page pair. Pages are 1-indexed.
type pageParams struct {
	page    int
	perPage int
	active  bool
}

func parsePageParams(r *http.Request) pageParams {
	query := r.URL.Query()
	if query.Get("page") == "" && query.Get("per_page") == "" {
		return pageParams{}
	}
	params := pageParams{page: 1, perPage: 20, active: true}
	if v, err := strconv.Atoi(query.Get("page")); err == nil && v > 0 {
		params.page = v
	}
	if v, err := strconv.Atoi(query.Get("per_page")); err == nil && v > 0 {
		params.perPage = v
	}
	return params
}

// paginate wraps rendered items under label. Without paging params the
// whole list is returned; with them, the page slice plus page and
// pageCount. A page past the end yields an empty item list.
func paginate(items []document.Document, label string, params pageParams) map[string]any {
	if items == nil {
		items = []document.Document{}
	}
	if !params.active {
		return map[string]any{label: items}
	}

	total := len(items)
	pageCount := (total + params.perPage - 1) / params.perPage
	start := (params.page - 1) * params.perPage
	end := start + params.perPage
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	return map[string]any{
		label:       items[start:end],
		"page":      params.page,
		"pageCount": pageCount,
	}
}
