// Package docs registers the API description served under /swagger/.
// Regenerate with: swag init -g cmd/statements-service/main.go
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
        "/uploads": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["uploads"],
                "summary": "Initiate a chunked upload",
                "parameters": [{"description": "Upload description", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/media.InitiateUploadRequest"}}],
                "responses": {
                    "201": {"description": "Session created", "schema": {"$ref": "#/definitions/media.InitiateUploadResponse"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/response.Response"}},
                    "429": {"description": "Quota exceeded", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/uploads/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["uploads"],
                "summary": "Get upload status",
                "parameters": [{"type": "string", "description": "Session ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Upload status", "schema": {"$ref": "#/definitions/upload.StatusView"}},
                    "404": {"description": "Session not found", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["uploads"],
                "summary": "Cancel an upload",
                "parameters": [{"type": "string", "description": "Session ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Upload cancelled", "schema": {"$ref": "#/definitions/response.Response"}},
                    "404": {"description": "Session not found", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/uploads/{id}/chunks/{n}": {
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/octet-stream"],
                "produces": ["application/json"],
                "tags": ["uploads"],
                "summary": "Upload a chunk",
                "parameters": [
                    {"type": "string", "description": "Session ID", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "description": "Chunk index", "name": "n", "in": "path", "required": true},
                    {"type": "string", "description": "sha256 hex, or algo:hex (sha256, md5, blake2b)", "name": "X-Chunk-Hash", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "Chunk stored", "schema": {"$ref": "#/definitions/media.ChunkUploadResponse"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/response.Response"}},
                    "410": {"description": "Session expired", "schema": {"$ref": "#/definitions/response.Response"}},
                    "422": {"description": "Hash mismatch", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/uploads/{id}/complete": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["uploads"],
                "summary": "Complete an upload",
                "parameters": [
                    {"type": "string", "description": "Session ID", "name": "id", "in": "path", "required": true},
                    {"description": "Optional final hash", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/media.CompleteUploadRequest"}}
                ],
                "responses": {
                    "200": {"description": "Upload completed", "schema": {"$ref": "#/definitions/media.CompleteUploadResponse"}},
                    "409": {"description": "Chunks missing", "schema": {"$ref": "#/definitions/response.Response"}},
                    "422": {"description": "Hash mismatch", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/merges/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["merges"],
                "summary": "Get merge status",
                "parameters": [{"type": "string", "description": "Merge session ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Merge status", "schema": {"$ref": "#/definitions/media.MergeStatusResponse"}},
                    "404": {"description": "Merge not found", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["merges"],
                "summary": "Initiate a merge",
                "parameters": [
                    {"type": "string", "description": "Merge session ID", "name": "id", "in": "path", "required": true},
                    {"description": "Quality preset", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/media.InitiateMergeRequest"}}
                ],
                "responses": {
                    "202": {"description": "Merge accepted", "schema": {"$ref": "#/definitions/media.MergeStatusResponse"}},
                    "409": {"description": "Group not ready", "schema": {"$ref": "#/definitions/response.Response"}},
                    "503": {"description": "Transcoder unavailable", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["merges"],
                "summary": "Cancel a merge",
                "parameters": [{"type": "string", "description": "Merge session ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Merge cancelled", "schema": {"$ref": "#/definitions/response.Response"}},
                    "409": {"description": "Merge already finished", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/merges/{id}/readiness": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["merges"],
                "summary": "Check merge readiness",
                "parameters": [{"type": "string", "description": "Merge session ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Readiness report", "schema": {"$ref": "#/definitions/merge.ReadinessReport"}}
                }
            }
        }
    },
    "definitions": {
        "media.InitiateUploadRequest": {
            "type": "object",
            "required": ["filename", "file_size", "mime_type"],
            "properties": {
                "filename": {"type": "string"},
                "file_size": {"type": "integer"},
                "mime_type": {"type": "string"},
                "merge_session_id": {"type": "string"},
                "video_index": {"type": "integer"},
                "video_count": {"type": "integer"},
                "duration_seconds": {"type": "number"}
            }
        },
        "media.InitiateUploadResponse": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "chunk_size": {"type": "integer"},
                "total_chunks": {"type": "integer"},
                "expires_at": {"type": "string"}
            }
        },
        "media.ChunkUploadResponse": {
            "type": "object",
            "properties": {
                "written": {"type": "boolean"},
                "already_exists": {"type": "boolean"},
                "uploaded_chunks": {"type": "array", "items": {"type": "integer"}},
                "remaining_chunks": {"type": "array", "items": {"type": "integer"}},
                "progress_percent": {"type": "number"}
            }
        },
        "media.CompleteUploadRequest": {
            "type": "object",
            "properties": {"final_hash": {"type": "string"}}
        },
        "media.CompleteUploadResponse": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "status": {"type": "string"},
                "file_path": {"type": "string"},
                "file_size": {"type": "integer"},
                "completed_at": {"type": "string"}
            }
        },
        "media.InitiateMergeRequest": {
            "type": "object",
            "properties": {"quality_preset": {"type": "string"}}
        },
        "media.MergeStatusResponse": {
            "type": "object",
            "properties": {
                "merge_session_id": {"type": "string"},
                "status": {"type": "string"},
                "stage": {"type": "string"},
                "progress_percent": {"type": "number"},
                "quality_preset": {"type": "string"},
                "merged_artifact_ref": {"type": "string"},
                "artifact_url": {"type": "string"},
                "merged_metadata": {"type": "object"},
                "error_message": {"type": "string"},
                "retryable": {"type": "boolean"},
                "updated_at": {"type": "string"}
            }
        },
        "merge.ReadinessReport": {
            "type": "object",
            "properties": {
                "ready": {"type": "boolean"},
                "completed_count": {"type": "integer"},
                "expected_count": {"type": "integer"},
                "missing_indices": {"type": "array", "items": {"type": "integer"}}
            }
        },
        "upload.StatusView": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "status": {"type": "string"},
                "progress_percent": {"type": "number"},
                "total_chunks": {"type": "integer"},
                "uploaded_chunks": {"type": "array", "items": {"type": "integer"}},
                "remaining_chunks": {"type": "array", "items": {"type": "integer"}}
            }
        },
        "response.Response": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "error": {"type": "string"},
                "data": {},
                "message": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Statements Service API",
	Description:      "Chunked video uploads and merge pipeline for statement sets.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
