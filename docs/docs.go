// Package docs holds the OpenAPI document served at /swagger.
// Regenerate with: swag init -g cmd/server/main.go
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
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["ops"],
                "summary": "Service health",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "503": {"description": "Service Unavailable", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/api/titles": {
            "get": {
                "produces": ["application/json"],
                "tags": ["titles"],
                "summary": "List titles with scores",
                "parameters": [
                    {"type": "string", "description": "movie or tv", "name": "media_type", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/types.TitleScore"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/api/titles/search": {
            "get": {
                "produces": ["application/json"],
                "tags": ["titles"],
                "summary": "Search titles by name",
                "parameters": [
                    {"type": "string", "description": "search text", "name": "q", "in": "query", "required": true},
                    {"type": "string", "description": "movie or tv", "name": "media_type", "in": "query"},
                    {"type": "integer", "description": "max results", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/types.TitleScore"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/api/titles/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["titles"],
                "summary": "Title detail",
                "parameters": [
                    {"type": "string", "description": "title id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.TitleScore"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/api/scores/compute": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["scores"],
                "summary": "Compute scores live",
                "parameters": [
                    {"description": "computation", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.ComputeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ComputeResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/api/criteria": {
            "get": {
                "produces": ["application/json"],
                "tags": ["criteria"],
                "summary": "Criteria tree",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/api/best/{mediaType}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["best"],
                "summary": "Best-of ranking",
                "parameters": [
                    {"type": "string", "description": "movie, tv or all", "name": "mediaType", "in": "path", "required": true},
                    {"type": "integer", "description": "page size", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/api/auth/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Admin login",
                "parameters": [
                    {"description": "credentials", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.LoginResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/api/admin/evaluations": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Record an evaluation pass",
                "parameters": [
                    {"description": "ratings", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.SubmitEvaluationRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"type": "object", "additionalProperties": true}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/api/admin/recompute": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Rebuild every cached score",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.RecomputeResponse"}}
                }
            }
        }
    },
    "definitions": {
        "errors.Response": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "code": {"type": "string"},
                "category": {"type": "string"},
                "fields": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "scoring.CategoryScore": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "value": {"type": "number"}
            }
        },
        "types.TitleScore": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "media_type": {"type": "string"},
                "year": {"type": "integer"},
                "poster_url": {"type": "string"},
                "score": {"type": "number"},
                "breakdown": {"type": "array", "items": {"$ref": "#/definitions/scoring.CategoryScore"}}
            }
        },
        "types.ComputeRequest": {
            "type": "object",
            "properties": {
                "entity_ids": {"type": "array", "items": {"type": "string"}},
                "include_breakdown": {"type": "boolean"},
                "preset_id": {"type": "string"}
            }
        },
        "types.ComputeResponse": {
            "type": "object",
            "properties": {
                "weighted": {"type": "object", "additionalProperties": {"type": "number"}},
                "breakdown": {"type": "object", "additionalProperties": {"type": "array", "items": {"$ref": "#/definitions/scoring.CategoryScore"}}}
            }
        },
        "types.ScoreValue": {
            "type": "object",
            "required": ["criteria_id", "value"],
            "properties": {
                "criteria_id": {"type": "string"},
                "value": {"type": "number", "maximum": 5, "minimum": 0}
            }
        },
        "types.SubmitEvaluationRequest": {
            "type": "object",
            "required": ["entity_id", "scores"],
            "properties": {
                "entity_id": {"type": "string"},
                "notes": {"type": "string", "maxLength": 10000},
                "scores": {"type": "array", "items": {"$ref": "#/definitions/types.ScoreValue"}}
            }
        },
        "types.LoginRequest": {
            "type": "object",
            "required": ["password"],
            "properties": {
                "password": {"type": "string"}
            }
        },
        "types.LoginResponse": {
            "type": "object",
            "properties": {
                "token": {"type": "string"},
                "expires_in": {"type": "integer"}
            }
        },
        "types.RecomputeResponse": {
            "type": "object",
            "properties": {
                "scored": {"type": "integer"},
                "duration_ms": {"type": "integer"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "CineCritic API",
	Description:      "Weighted movie and TV reviews: criteria, evaluations, scores and best-of rankings.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
