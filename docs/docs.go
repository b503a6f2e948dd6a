// Package docs holds the OpenAPI description served by the swagger UI.
// Regenerate with: swag init -g cmd/api/main.go
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
            "get": {"tags": ["health"], "summary": "Health check", "produces": ["application/json"],
                "responses": {"200": {"description": "OK"}}}
        },
        "/auth/otp/send": {
            "post": {"tags": ["auth"], "summary": "Request a one-time code", "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/auth.SendOTPRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/auth.SendOTPResponse"}},
                    "400": {"description": "Validation error or email already registered", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}},
                    "429": {"description": "Code requested too recently", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}},
                    "500": {"description": "Delivery failed", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}}
                }}
        },
        "/auth/otp/verify": {
            "post": {"tags": ["auth"], "summary": "Verify a one-time code", "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/auth.VerifyOTPRequest"}}],
                "responses": {
                    "200": {"description": "Session, or a password reset verification token", "schema": {"$ref": "#/definitions/auth.AuthResponse"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}},
                    "401": {"description": "Invalid or expired code", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}},
                    "429": {"description": "Too many attempts", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}}
                }}
        },
        "/auth/login": {
            "post": {"tags": ["auth"], "summary": "User login", "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/auth.LoginRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/auth.AuthResponse"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}}
                }}
        },
        "/auth/password/reset": {
            "post": {"tags": ["auth"], "summary": "Set a new password", "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/auth.ResetPasswordRequest"}}],
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Invalid verification token", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}}
                }}
        },
        "/auth/refresh": {
            "post": {"tags": ["auth"], "summary": "Rotate the refresh token", "consumes": ["application/json"], "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/auth.AuthResponse"}},
                    "401": {"description": "Invalid refresh token", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}}
                }}
        },
        "/auth/logout": {
            "post": {"tags": ["auth"], "summary": "Revoke the refresh token", "responses": {"200": {"description": "OK"}}}
        },
        "/auth/google/login": {
            "get": {"tags": ["auth"], "summary": "Start Google sign-in", "responses": {"302": {"description": "Redirect to Google"}, "404": {"description": "Google sign-in disabled"}}}
        },
        "/auth/google/callback": {
            "get": {"tags": ["auth"], "summary": "Finish Google sign-in", "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/auth.AuthResponse"}}, "400": {"description": "State mismatch"}}}
        },
        "/users/me": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["users"], "summary": "Current user", "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/user.User"}}, "401": {"description": "Unauthorized"}}},
            "patch": {"security": [{"BearerAuth": []}], "tags": ["users"], "summary": "Update current user", "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/auth.UpdateProfileRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/user.User"}}, "400": {"description": "Validation error"}}}
        }
    },
    "definitions": {
        "auth.SendOTPRequest": {"type": "object", "properties": {
            "email": {"type": "string"},
            "purpose": {"type": "string", "enum": ["registration", "login", "password_reset"]}}},
        "auth.SendOTPResponse": {"type": "object", "properties": {
            "message": {"type": "string"}, "email": {"type": "string"}, "expiresIn": {"type": "integer"}}},
        "auth.VerifyOTPRequest": {"type": "object", "properties": {
            "email": {"type": "string"}, "otp": {"type": "string"},
            "purpose": {"type": "string", "enum": ["registration", "login", "password_reset"]},
            "name": {"type": "string"}, "password": {"type": "string"}, "mobile": {"type": "string"}}},
        "auth.LoginRequest": {"type": "object", "properties": {
            "email": {"type": "string"}, "password": {"type": "string"},
            "loginMethod": {"type": "string", "enum": ["password", "otp"]}, "otp": {"type": "string"}}},
        "auth.ResetPasswordRequest": {"type": "object", "properties": {
            "email": {"type": "string"}, "newPassword": {"type": "string"}, "verificationToken": {"type": "string"}}},
        "auth.UpdateProfileRequest": {"type": "object", "properties": {
            "name": {"type": "string"}, "mobile": {"type": "string"}}},
        "auth.AuthResponse": {"type": "object", "properties": {
            "message": {"type": "string"}, "user": {"$ref": "#/definitions/user.User"},
            "token": {"type": "string"}, "refresh_token": {"type": "string"},
            "token_type": {"type": "string"}, "expires_in": {"type": "integer"}}},
        "user.User": {"type": "object", "properties": {
            "id": {"type": "string"}, "email": {"type": "string"}, "name": {"type": "string"},
            "mobile": {"type": "string"}, "is_email_verified": {"type": "boolean"},
            "provider": {"type": "string"}, "image": {"type": "string"}, "role": {"type": "string"},
            "created_at": {"type": "string"}, "updated_at": {"type": "string"}, "last_login": {"type": "string"}}},
        "httputil.ErrorResponse": {"type": "object", "properties": {
            "error": {"type": "string"}, "code": {"type": "string"}}}
    },
    "securityDefinitions": {
        "BearerAuth": {"description": "Type \"Bearer\" followed by a space and the access token.", "type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "BharatGPT Identity API",
	Description:      "Email OTP, password and Google sign-in for BharatGPT.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
