// Package openapi builds an OpenAPI 3.0 document from the echo route
// table. The document is intentionally schema-light: paths, methods and
// the session-token security scheme, enough for client generation.
package openapi

import (
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
)

// Generator builds an OpenAPI 3.0 spec from registered routes.
type Generator struct {
	title   string
	version string
	baseURL string
}

func NewGenerator(title, version, baseURL string) *Generator {
	return &Generator{title: title, version: version, baseURL: baseURL}
}

// GenerateSpec produces the OpenAPI 3.0 spec as a map.
func (g *Generator) GenerateSpec(e *echo.Echo) map[string]interface{} {
	paths := make(map[string]interface{})

	routes := e.Routes()
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path == routes[j].Path {
			return routes[i].Method < routes[j].Method
		}
		return routes[i].Path < routes[j].Path
	})

	for _, route := range routes {
		if route.Method == echo.RouteNotFound || strings.HasSuffix(route.Path, "/*") {
			continue
		}
		path, params := convertPath(route.Path)
		item, ok := paths[path].(map[string]interface{})
		if !ok {
			item = make(map[string]interface{})
			paths[path] = item
		}
		op := map[string]interface{}{
			"operationId": operationID(route.Method, path),
			"tags":        []string{tagFor(path)},
			"responses": map[string]interface{}{
				"default": map[string]interface{}{"description": "Response"},
			},
		}
		if len(params) > 0 {
			op["parameters"] = pathParameters(params)
		}
		item[strings.ToLower(route.Method)] = op
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":   g.title,
			"version": g.version,
		},
		"servers": []map[string]interface{}{
			{"url": g.baseURL},
		},
		"paths": paths,
		"components": map[string]interface{}{
			"securitySchemes": map[string]interface{}{
				"sessionToken": map[string]interface{}{
					"type": "apiKey",
					"in":   "header",
					"name": "X-SESSION-TOKEN",
				},
			},
		},
		"security": []map[string]interface{}{
			{"sessionToken": []string{}},
		},
	}
}

// convertPath rewrites echo's :param segments into OpenAPI {param}
// placeholders and returns the parameter names.
func convertPath(path string) (string, []string) {
	segments := strings.Split(path, "/")
	var params []string
	for i, seg := range segments {
		if strings.HasPrefix(seg, ":") {
			name := seg[1:]
			params = append(params, name)
			segments[i] = "{" + name + "}"
		}
	}
	return strings.Join(segments, "/"), params
}

func pathParameters(names []string) []map[string]interface{} {
	params := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		params = append(params, map[string]interface{}{
			"name":     name,
			"in":       "path",
			"required": true,
			"schema":   map[string]string{"type": "string"},
		})
	}
	return params
}

// tagFor derives the operation tag from the first meaningful path
// segment after the API prefix.
func tagFor(path string) string {
	for _, seg := range strings.Split(strings.TrimPrefix(path, "/api/v1"), "/") {
		if seg != "" && !strings.HasPrefix(seg, "{") {
			return seg
		}
	}
	return "root"
}

func operationID(method, path string) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(method))
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "api" || seg == "v1" {
			continue
		}
		seg = strings.Trim(seg, "{}")
		for _, part := range strings.Split(seg, "-") {
			if part == "" {
				continue
			}
			b.WriteString(strings.ToUpper(part[:1]))
			b.WriteString(part[1:])
		}
	}
	return b.String()
}
