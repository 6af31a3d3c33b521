package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Attendo API",
        "description": "Rotating attendance codes with an optional on-chain ledger.",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Rotation", "description": "Teacher code display and batch commitment"},
        {"name": "Attendance", "description": "Student redemption and attendance history"},
        {"name": "Ops", "description": "Health, readiness and metrics"}
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": ["Ops"],
                "summary": "Health check",
                "security": [],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/ready": {
            "get": {
                "tags": ["Ops"],
                "summary": "Readiness check (database ping, ledger availability)",
                "security": [],
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "Database unreachable"}
                }
            }
        },
        "/metrics": {
            "get": {
                "tags": ["Ops"],
                "summary": "Prometheus metrics",
                "security": [],
                "produces": ["text/plain"],
                "responses": {"200": {"description": "Metrics"}}
            }
        },
        "/api/v1/rotation": {
            "get": {
                "tags": ["Rotation"],
                "summary": "Current code, countdown and batch progress",
                "responses": {"200": {"description": "Snapshot", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/rotation/start": {
            "post": {
                "tags": ["Rotation"],
                "summary": "Start rotating attendance codes for a course",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/StartRotationRequest"}}
                ],
                "responses": {
                    "200": {"description": "Snapshot", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not the course teacher"},
                    "404": {"description": "Course not found"},
                    "409": {"description": "Session already active"}
                }
            }
        },
        "/api/v1/rotation/stop": {
            "post": {
                "tags": ["Rotation"],
                "summary": "Stop rotating attendance codes",
                "responses": {"200": {"description": "Idle snapshot"}}
            }
        },
        "/api/v1/rotation/batch-size": {
            "put": {
                "tags": ["Rotation"],
                "summary": "Change the batch size while idle",
                "description": "Under the per_code commitment policy the size is kept but each code is still committed alone.",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BatchSizeRequest"}}
                ],
                "responses": {
                    "200": {"description": "Snapshot"},
                    "400": {"description": "Size outside 1-50"},
                    "409": {"description": "Session active"}
                }
            }
        },
        "/api/v1/rotation/stream": {
            "get": {
                "tags": ["Rotation"],
                "summary": "Websocket of rotation snapshots",
                "description": "Browsers may pass the bearer token as the access_token query parameter.",
                "parameters": [
                    {"name": "access_token", "in": "query", "type": "string"}
                ],
                "responses": {"101": {"description": "Switching protocols"}}
            }
        },
        "/api/v1/attendance/redeem": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Submit an attendance code",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RedeemRequest"}}
                ],
                "responses": {
                    "201": {"description": "Recorded", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "INVALID_OR_EXPIRED_CODE or GEOLOCATION_UNAVAILABLE"},
                    "403": {"description": "OUTSIDE_GEOFENCE or not enrolled"},
                    "409": {"description": "ALREADY_REDEEMED"},
                    "429": {"description": "RATE_LIMITED"}
                }
            }
        },
        "/api/v1/attendance/me": {
            "get": {
                "tags": ["Attendance"],
                "summary": "List the caller's attendance",
                "parameters": [
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "Attendance page"}}
            }
        },
        "/api/v1/courses/{id}/attendance": {
            "get": {
                "tags": ["Attendance"],
                "summary": "List attendance for a course",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Attendance page"},
                    "403": {"description": "Not the course teacher"}
                }
            }
        },
        "/api/v1/courses/{id}/attendance/export": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Download a course attendance sheet",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "Attachment"}}
            }
        }
    },
    "definitions": {
        "StartRotationRequest": {
            "type": "object",
            "required": ["course_id"],
            "properties": {"course_id": {"type": "string"}}
        },
        "BatchSizeRequest": {
            "type": "object",
            "required": ["size"],
            "properties": {"size": {"type": "integer", "minimum": 1, "maximum": 50}}
        },
        "RedeemRequest": {
            "type": "object",
            "required": ["code"],
            "properties": {
                "code": {"type": "string"},
                "latitude": {"type": "number"},
                "longitude": {"type": "number"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
