// Package docs registers the relay's OpenAPI document with swag.
// Keep it in step with the annotations on the forward http handlers.
package docs

import "github.com/swaggo/swag/v2"

// InstanceName is the swag registry key for the relay document
const InstanceName = "relay"

const docTemplate = `{
    "openapi": "3.0.3",
    "info": {
        "title": "{{.Title}}",
        "description": "{{.Description}}",
        "version": "{{.Version}}"
    },
    "servers": [{"url": "/"}],
    "paths": {
        "/v1/notifications": {
            "post": {
                "tags": ["Forward"],
                "summary": "Forward the objects named by an S3 event notification",
                "requestBody": {
                    "required": true,
                    "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Notification"}}}
                },
                "responses": {
                    "200": {"description": "every record forwarded", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/ReportEnvelope"}}}},
                    "207": {"description": "at least one record failed", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/ReportEnvelope"}}}},
                    "400": {"description": "not a notification", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/ErrorResponse"}}}}
                }
            }
        },
        "/v1/events": {
            "post": {
                "tags": ["Forward"],
                "summary": "Forward NDJSON events from the request body",
                "parameters": [
                    {"name": "Content-Encoding", "in": "header", "required": false, "schema": {"type": "string", "enum": ["gzip", "deflate", "identity"]}}
                ],
                "requestBody": {
                    "required": true,
                    "content": {"application/x-ndjson": {"schema": {"type": "string"}}}
                },
                "responses": {
                    "200": {"description": "run stats", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/StatsEnvelope"}}}},
                    "400": {"description": "invalid event with on_invalid=abort", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/ErrorResponse"}}}},
                    "422": {"description": "unsupported encoding or corrupt compressed body", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/ErrorResponse"}}}},
                    "502": {"description": "ingestion endpoint rejected a batch", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/ErrorResponse"}}}}
                }
            }
        },
        "/healthz": {
            "get": {
                "tags": ["Meta"],
                "summary": "Liveness probe",
                "responses": {"200": {"description": "ok", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Health"}}}}}
            }
        },
        "/version": {
            "get": {
                "tags": ["Meta"],
                "summary": "Build and version info",
                "responses": {"200": {"description": "ok", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/BuildInfo"}}}}}
            }
        }
    },
    "components": {
        "schemas": {
            "Notification": {
                "type": "object",
                "required": ["Records"],
                "properties": {
                    "Records": {
                        "type": "array",
                        "items": {
                            "type": "object",
                            "properties": {
                                "eventSource": {"type": "string", "example": "aws:s3"},
                                "eventName": {"type": "string", "example": "ObjectCreated:Put"},
                                "awsRegion": {"type": "string", "example": "us-west-2"},
                                "s3": {
                                    "type": "object",
                                    "properties": {
                                        "bucket": {"type": "object", "properties": {"name": {"type": "string"}}},
                                        "object": {"type": "object", "properties": {"key": {"type": "string"}, "size": {"type": "integer"}}}
                                    }
                                }
                            }
                        }
                    }
                }
            },
            "Stats": {
                "type": "object",
                "properties": {
                    "lines": {"type": "integer"},
                    "events": {"type": "integer"},
                    "identifies": {"type": "integer"},
                    "skipped": {"type": "integer"},
                    "batches": {"type": "integer"},
                    "bytes_in": {"type": "integer", "format": "int64"},
                    "bytes_out": {"type": "integer", "format": "int64"},
                    "elapsed_ms": {"type": "integer", "format": "int64"}
                }
            },
            "RecordResult": {
                "type": "object",
                "properties": {
                    "run_id": {"type": "string", "format": "uuid"},
                    "object": {"type": "object", "properties": {"region": {"type": "string"}, "bucket": {"type": "string"}, "key": {"type": "string"}}},
                    "stats": {"$ref": "#/components/schemas/Stats"},
                    "code": {"type": "string", "example": "transmission"},
                    "error": {"type": "string"}
                }
            },
            "Report": {
                "type": "object",
                "properties": {
                    "records": {"type": "integer"},
                    "ignored": {"type": "integer"},
                    "results": {"type": "array", "items": {"$ref": "#/components/schemas/RecordResult"}}
                }
            },
            "ReportEnvelope": {
                "type": "object",
                "properties": {
                    "status_code": {"type": "integer"},
                    "status": {"type": "string"},
                    "request_id": {"type": "string"},
                    "data": {"$ref": "#/components/schemas/Report"}
                }
            },
            "StatsEnvelope": {
                "type": "object",
                "properties": {
                    "status_code": {"type": "integer"},
                    "status": {"type": "string"},
                    "request_id": {"type": "string"},
                    "data": {"$ref": "#/components/schemas/Stats"}
                }
            },
            "Health": {
                "type": "object",
                "properties": {
                    "ok": {"type": "boolean"},
                    "service": {"type": "string"},
                    "started": {"type": "string", "format": "date-time"},
                    "uptime": {"type": "integer"}
                }
            },
            "BuildInfo": {
                "type": "object",
                "properties": {
                    "service": {"type": "string"},
                    "version": {"type": "string"},
                    "commit": {"type": "string"},
                    "date": {"type": "string"},
                    "go_version": {"type": "string"}
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Title:            "amplisend relay",
	Description:      "Forwards NDJSON analytics events from S3 notifications or request bodies to Amplitude",
	InfoInstanceName: InstanceName,
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
