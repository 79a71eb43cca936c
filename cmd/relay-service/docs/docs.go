// Package docs holds the swagger document served under /swagger.
// Regenerate with: swag init -g cmd/relay-service/main.go -o cmd/relay-service/docs
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
                "description": "Runs every registered dependency check. Optional checks degrade the status without failing it",
                "produces": ["application/json"],
                "tags": ["ops"],
                "summary": "Service health",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/health.Health"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/health.Health"}}
                }
            }
        },
        "/webhook": {
            "get": {
                "description": "Echoes hub.challenge when hub.verify_token matches the configured token",
                "produces": ["text/plain"],
                "tags": ["webhook"],
                "summary": "Verify webhook subscription",
                "parameters": [
                    {"type": "string", "description": "Must be subscribe", "name": "hub.mode", "in": "query", "required": true},
                    {"type": "string", "description": "Shared verify token", "name": "hub.verify_token", "in": "query", "required": true},
                    {"type": "string", "description": "Value to echo back", "name": "hub.challenge", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "string"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/errorResponse"}}
                }
            },
            "post": {
                "description": "Admits every message in the notification before answering. A 503 asks the platform to redeliver",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["webhook"],
                "summary": "Receive WhatsApp notification",
                "parameters": [
                    {"type": "string", "description": "HMAC-SHA256 of the body, required when an app secret is configured", "name": "X-Hub-Signature-256", "in": "header"},
                    {"description": "WhatsApp Cloud API notification", "name": "notification", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/errorResponse"}},
                    "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/errorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/errorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/errorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "errorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "error_code": {"type": "string"},
                "details": {"type": "object"}
            }
        },
        "health.CheckResult": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "message": {"type": "string"},
                "critical": {"type": "boolean"},
                "timestamp": {"type": "string"}
            }
        },
        "health.Health": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "timestamp": {"type": "string"},
                "checks": {
                    "type": "object",
                    "additionalProperties": {"$ref": "#/definitions/health.CheckResult"}
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Veritas Relay Service API",
	Description:      "WhatsApp webhook that relays forwarded content to analyzers and replies with a verdict",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
