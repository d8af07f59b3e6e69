// Package docs registers the OpenAPI description served at /swagger.
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
        "/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Log in",
                "parameters": [
                    {"description": "Credentials", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/dto.LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.LoginResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/middleware.ErrorResponse"}}
                }
            }
        },
        "/quiz/get-quizzes": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["quiz"],
                "summary": "List quizzes",
                "parameters": [
                    {"type": "string", "description": "Subject", "name": "subject", "in": "query"},
                    {"type": "string", "description": "Level", "name": "level", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/dto.QuizResponse"}}}
                }
            }
        },
        "/quiz/quiz/{quizId}": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["quiz"],
                "summary": "Get a quiz",
                "parameters": [
                    {"type": "string", "description": "Quiz ID", "name": "quizId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.QuizResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/middleware.ErrorResponse"}}
                }
            }
        },
        "/quiz/submit-quiz": {
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["quiz"],
                "summary": "Submit a quiz attempt",
                "parameters": [
                    {"description": "Quiz attempt", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/dto.SubmitQuizRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/dto.QuizResultResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/middleware.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/middleware.ErrorResponse"}}
                }
            }
        },
        "/quiz/feedback-status/{taskId}": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["quiz"],
                "summary": "Get feedback task status",
                "parameters": [
                    {"type": "string", "description": "Feedback task ID", "name": "taskId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.FeedbackStatusResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/middleware.ErrorResponse"}}
                }
            }
        },
        "/quiz/user-results/{username}": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["quiz"],
                "summary": "List a user's quiz results",
                "parameters": [
                    {"type": "string", "description": "Username", "name": "username", "in": "path", "required": true},
                    {"type": "string", "description": "Cache buster", "name": "t", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/dto.QuizResultResponse"}}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/middleware.ErrorResponse"}}
                }
            }
        },
        "/quiz/clear-quiz-cache": {
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["quiz"],
                "summary": "Clear quiz caches",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.ClearCacheResponse"}}
                }
            }
        }
    },
    "definitions": {
        "dto.LoginRequest": {
            "type": "object",
            "properties": {"username": {"type": "string"}, "password": {"type": "string"}}
        },
        "dto.LoginResponse": {
            "type": "object",
            "properties": {"token": {"type": "string"}}
        },
        "dto.QuestionResponse": {
            "type": "object",
            "properties": {
                "question": {"type": "string"},
                "choices": {"type": "array", "items": {"type": "string"}},
                "correctAnswer": {"type": "integer"}
            }
        },
        "dto.QuizResponse": {
            "type": "object",
            "properties": {
                "_id": {"type": "string"},
                "title": {"type": "string"},
                "subject": {"type": "string"},
                "level": {"type": "string"},
                "questions": {"type": "array", "items": {"$ref": "#/definitions/dto.QuestionResponse"}}
            }
        },
        "dto.SubmitQuizRequest": {
            "type": "object",
            "properties": {
                "quizId": {"type": "string"},
                "userId": {"type": "string"},
                "username": {"type": "string"},
                "answers": {"type": "array", "items": {"type": "integer"}}
            }
        },
        "dto.WrongQuestionResponse": {
            "type": "object",
            "properties": {
                "question": {"type": "string"},
                "choices": {"type": "array", "items": {"type": "string"}},
                "userAnswer": {"type": "integer"},
                "correctAnswer": {"type": "integer"}
            }
        },
        "dto.QuizResultResponse": {
            "type": "object",
            "properties": {
                "_id": {"type": "string"},
                "quizId": {"type": "string"},
                "userId": {"type": "string"},
                "username": {"type": "string"},
                "answers": {"type": "array", "items": {"type": "integer"}},
                "score": {"type": "number"},
                "correctCount": {"type": "integer"},
                "totalQuestions": {"type": "integer"},
                "completedAt": {"type": "string"},
                "wrongQuestions": {"type": "array", "items": {"$ref": "#/definitions/dto.WrongQuestionResponse"}},
                "feedbackTaskId": {"type": "string"},
                "aiFeedback": {"type": "string"}
            }
        },
        "dto.FeedbackStatusResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "enum": ["processing", "completed", "error"]},
                "feedback": {"type": "string"},
                "state": {"type": "string"},
                "error": {"type": "string"}
            }
        },
        "dto.ClearCacheResponse": {
            "type": "object",
            "properties": {"message": {"type": "string"}, "deletedKeys": {"type": "integer"}}
        },
        "middleware.ErrorResponse": {
            "type": "object",
            "properties": {"code": {"type": "string"}, "message": {"type": "string"}, "status": {"type": "integer"}}
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {
            "description": "Type 'Bearer YOUR_JWT_TOKEN' to authorize.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8090",
	BasePath:         "/api",
	Schemes:          []string{"http", "https"},
	Title:            "Adaptive Learning Quiz API",
	Description:      "Stub of the quiz service used by the quiz submission and feedback flow.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
