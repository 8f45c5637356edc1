package api

import (
	"net/http"
	"sort"
	"strings"
)

// route documents one endpoint in the OpenAPI document.
type route struct {
	Method  string
	Path    string
	Summary string
	Scope   string
	Body    map[string]any
}

func jsonObject(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

var (
	strSchema   = map[string]any{"type": "string"}
	boolSchema  = map[string]any{"type": "boolean"}
	outSchema   = map[string]any{"type": "string", "enum": []string{"full", "pages"}}
	intsSchema  = map[string]any{"type": "array", "items": map[string]any{"type": "integer", "minimum": 1}}
	namesSchema = map[string]any{"type": "array", "items": strSchema, "minItems": 2}
)

var routes = []route{
	{Method: http.MethodGet, Path: "/healthz", Summary: "Service health"},
	{Method: http.MethodPost, Path: "/auth/token", Summary: "Exchange client credentials for a bearer token",
		Body: jsonObject(map[string]any{"client_id": strSchema, "client_secret": strSchema}, "client_id", "client_secret")},
	{Method: http.MethodPost, Path: "/sessions", Summary: "Create a session", Scope: "sessions:rw",
		Body: jsonObject(map[string]any{"input_dir": strSchema, "output_dir": strSchema})},
	{Method: http.MethodGet, Path: "/sessions", Summary: "List active sessions", Scope: "sessions:ro"},
	{Method: http.MethodGet, Path: "/sessions/{id}", Summary: "Session status", Scope: "sessions:ro"},
	{Method: http.MethodDelete, Path: "/sessions/{id}", Summary: "Delete a session", Scope: "sessions:rw"},
	{Method: http.MethodGet, Path: "/sessions/{id}/files", Summary: "List input PDFs", Scope: "sessions:ro"},
	{Method: http.MethodPost, Path: "/sessions/{id}/files", Summary: "Upload PDFs (multipart field \"file\")", Scope: "sessions:rw"},
	{Method: http.MethodPost, Path: "/sessions/{id}/ocr", Summary: "OCR a PDF", Scope: "sessions:rw",
		Body: jsonObject(map[string]any{"filename": strSchema, "output": outSchema, "preprocess": boolSchema})},
	{Method: http.MethodPost, Path: "/sessions/{id}/markdown", Summary: "Convert a PDF to markdown", Scope: "sessions:rw",
		Body: jsonObject(map[string]any{"filename": strSchema, "output": outSchema, "force_ocr": boolSchema})},
	{Method: http.MethodPost, Path: "/sessions/{id}/split", Summary: "Split pages out of a PDF", Scope: "sessions:rw",
		Body: jsonObject(map[string]any{"filename": strSchema, "page_range": strSchema, "pages": intsSchema, "combined": boolSchema})},
	{Method: http.MethodPost, Path: "/sessions/{id}/merge", Summary: "Merge PDFs in order", Scope: "sessions:rw",
		Body: jsonObject(map[string]any{"filenames": namesSchema, "out_name": strSchema}, "filenames")},
	{Method: http.MethodGet, Path: "/sessions/{id}/artifacts", Summary: "List artifacts (?kind=)", Scope: "sessions:ro"},
	{Method: http.MethodGet, Path: "/sessions/{id}/download", Summary: "Download an artifact (?name=) or all as outputs.zip", Scope: "sessions:ro"},
	{Method: http.MethodGet, Path: "/sessions/{id}/history", Summary: "Journaled operations", Scope: "sessions:ro"},
	{Method: http.MethodPost, Path: "/sessions/{id}/export", Summary: "Export outputs.zip to object storage", Scope: "sessions:rw"},
	{Method: http.MethodGet, Path: "/events", Summary: "Server-sent lifecycle events", Scope: "events:ro"},
}

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the given routes.
func buildOpenAPIDoc(rs []route) map[string]any {
	paths := map[string]any{}

	sorted := append([]route(nil), rs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	for _, rt := range sorted {
		op := map[string]any{
			"operationId": operationID(rt),
			"summary":     rt.Summary,
			"responses": map[string]any{
				"200": map[string]any{"description": "OK"},
				"400": map[string]any{"description": "Bad request"},
				"404": map[string]any{"description": "Not found"},
			},
		}
		if rt.Scope != "" {
			op["security"] = []any{map[string]any{"BearerAuth": []string{rt.Scope}}}
			op["responses"].(map[string]any)["403"] = map[string]any{"description": "Insufficient scope"}
		}
		if rt.Body != nil {
			op["requestBody"] = map[string]any{
				"required": false,
				"content": map[string]any{
					"application/json": map[string]any{"schema": rt.Body},
				},
			}
		}

		item, _ := paths[rt.Path].(map[string]any)
		if item == nil {
			item = map[string]any{}
			paths[rt.Path] = item
		}
		item[strings.ToLower(rt.Method)] = op
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "Folio PDF service",
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}

func operationID(rt route) string {
	p := strings.NewReplacer("{", "", "}", "", "/", "_").Replace(strings.Trim(rt.Path, "/"))
	return strings.ToLower(rt.Method) + "_" + p
}

// handleOpenAPI handles GET /openapi.json (no auth).
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(routes))
}
