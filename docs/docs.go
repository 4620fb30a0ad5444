// Package docs registers the swagger spec of the whiteboard API.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/auth/login-link": {
            "post": {
                "tags": ["Auth"],
                "summary": "Request a single-use login link",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/handler.LoginLinkRequest"}}],
                "responses": {"202": {"description": "Accepted"}}
            }
        },
        "/auth/verify": {
            "post": {
                "tags": ["Auth"],
                "summary": "Exchange a login link token for a session",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/handler.VerifyRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.AuthResponse"}},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/me": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Auth"],
                "summary": "Current user",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.UserResponse"}}}
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "tags": ["Auth"],
                "summary": "Update the current user's profile",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/handler.UpdateProfileRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.UserResponse"}}}
            }
        },
        "/boards": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Boards"],
                "summary": "Owned and shared boards",
                "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/handler.BoardResponse"}}}}
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["Boards"],
                "summary": "Create a board",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/handler.CreateBoardRequest"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handler.BoardResponse"}},
                    "409": {"description": "Conflict"}
                }
            }
        },
        "/boards/{slug}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Boards"],
                "summary": "Get a board with its scene",
                "parameters": [{"in": "path", "name": "slug", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.BoardDetailResponse"}},
                    "401": {"description": "Unauthorized"},
                    "403": {"description": "Forbidden"},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/boards/{slug}/scene": {
            "put": {
                "security": [{"BearerAuth": []}],
                "tags": ["Boards"],
                "summary": "Replace the board scene",
                "parameters": [
                    {"in": "path", "name": "slug", "type": "string", "required": true},
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/handler.SaveSceneRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.SceneVersionResponse"}},
                    "400": {"description": "Bad Request"},
                    "403": {"description": "Forbidden"}
                }
            }
        },
        "/realtime/{board_id}": {
            "get": {
                "tags": ["Realtime"],
                "summary": "Join the realtime channel of a board",
                "parameters": [
                    {"in": "path", "name": "board_id", "type": "string", "required": true},
                    {"in": "query", "name": "token", "type": "string"}
                ],
                "responses": {"101": {"description": "Switching Protocols"}}
            }
        }
    },
    "definitions": {
        "handler.LoginLinkRequest": {"type": "object", "required": ["email"], "properties": {"email": {"type": "string"}}},
        "handler.VerifyRequest": {"type": "object", "required": ["token"], "properties": {"token": {"type": "string"}}},
        "handler.UpdateProfileRequest": {"type": "object", "required": ["display_name"], "properties": {"display_name": {"type": "string"}, "avatar_url": {"type": "string"}}},
        "handler.UserResponse": {"type": "object", "properties": {"id": {"type": "string"}, "email": {"type": "string"}, "display_name": {"type": "string"}, "avatar_url": {"type": "string"}}},
        "handler.AuthResponse": {"type": "object", "properties": {"token": {"type": "string"}, "user": {"$ref": "#/definitions/handler.UserResponse"}}},
        "handler.CreateBoardRequest": {"type": "object", "required": ["name", "slug"], "properties": {"name": {"type": "string"}, "slug": {"type": "string"}, "is_public": {"type": "boolean"}}},
        "handler.BoardResponse": {"type": "object", "properties": {"id": {"type": "string"}, "slug": {"type": "string"}, "name": {"type": "string"}, "owner_id": {"type": "string"}, "is_public": {"type": "boolean"}, "version": {"type": "integer"}, "role": {"type": "string"}, "updated_at": {"type": "string"}}},
        "handler.BoardDetailResponse": {"type": "object", "properties": {"id": {"type": "string"}, "slug": {"type": "string"}, "name": {"type": "string"}, "version": {"type": "integer"}, "role": {"type": "string"}, "elements": {"type": "array", "items": {"type": "object"}}, "view_state": {"type": "object"}}},
        "handler.SaveSceneRequest": {"type": "object", "required": ["elements"], "properties": {"elements": {"type": "array", "items": {"type": "object"}}, "view_state": {"type": "object"}}},
        "handler.SceneVersionResponse": {"type": "object", "properties": {"version": {"type": "integer"}, "updated_at": {"type": "string"}}}
    },
    "securityDefinitions": {
        "BearerAuth": {"description": "Type \"Bearer\" followed by a space and JWT token.", "type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "Whiteboard API",
	Description:      "Boards, scenes, sharing and realtime channels for the collaborative whiteboard.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
