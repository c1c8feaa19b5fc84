// Package docs registers the generated OpenAPI document with swag so the
// Swagger UI route can serve it. Regenerate with:
//
//	swag init -g cmd/server/main.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/handles/availability": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Handles"],
                "summary": "Check handle availability",
                "operationId": "checkHandleAvailability",
                "parameters": [
                    {"type": "string", "name": "handle", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request"}
                }
            }
        },
        "/handles/search": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Handles"],
                "summary": "Search handles",
                "operationId": "searchHandles",
                "parameters": [
                    {"type": "string", "name": "q", "in": "query", "required": true},
                    {"type": "integer", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request"}
                }
            }
        },
        "/handles/resolve/{handle}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Handles"],
                "summary": "Resolve a handle to its owner",
                "operationId": "resolveHandle",
                "parameters": [
                    {"type": "string", "name": "handle", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/profiles/handle": {
            "put": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Handles"],
                "summary": "Change the caller's handle",
                "operationId": "updateHandle",
                "parameters": [
                    {"type": "string", "name": "X-Profile-ID", "in": "header", "required": true},
                    {"type": "string", "name": "Idempotency-Key", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request"},
                    "404": {"description": "Not Found"},
                    "409": {"description": "Conflict"},
                    "429": {"description": "Too Many Requests"}
                }
            }
        },
        "/profiles/handle/history": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Handles"],
                "summary": "The caller's rename history",
                "operationId": "handleHistory",
                "parameters": [
                    {"type": "string", "name": "X-Profile-ID", "in": "header", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/admin/handles/backfill": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Assign handles to profiles missing one",
                "operationId": "runHandleBackfill",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Handle Backend API",
	Description:      "Handle availability, rename, search, history, and resolution endpoints.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
