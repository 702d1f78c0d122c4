package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Season Scheduler API",
        "description": "Builds and optimizes sports season schedules with simulated annealing.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Season Schedules", "description": "Optimization jobs, results and exports"},
        {"name": "Observability", "description": "Health and metrics"}
    ],
    "paths": {
        "/season-schedules/runs": {
            "post": {
                "tags": ["Season Schedules"],
                "summary": "Submit a season configuration for optimization",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SeasonScheduleRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid configuration", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Queue unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "get": {
                "tags": ["Season Schedules"],
                "summary": "List optimization jobs held by this instance",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/season-schedules/runs/{id}": {
            "get": {
                "tags": ["Season Schedules"],
                "summary": "Get optimization job status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/season-schedules/runs/{id}/result": {
            "get": {
                "tags": ["Season Schedules"],
                "summary": "Get the best schedule of a finished job",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK; meta.warning is set when hard constraints remain violated", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Job still running", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Matchups could not be generated", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/season-schedules/runs/{id}/commands": {
            "post": {
                "tags": ["Season Schedules"],
                "summary": "Pause, resume, abort or retune a running job",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SeasonJobCommandRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Command not allowed in the current state", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/season-schedules/runs/{id}/events": {
            "get": {
                "tags": ["Season Schedules"],
                "summary": "Stream job progress as server-sent events",
                "produces": ["text/event-stream"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Event stream named by job stage"}
                }
            }
        },
        "/season-schedules/runs/{id}/export": {
            "get": {
                "tags": ["Season Schedules"],
                "summary": "Export the best schedule as CSV or PDF",
                "produces": ["text/csv", "application/pdf", "application/json"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"], "default": "csv"},
                    {"name": "store", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "File download"},
                    "201": {"description": "Stored export with signed link", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/season-schedules/exports/{token}": {
            "get": {
                "tags": ["Season Schedules"],
                "summary": "Download a stored export through its signed token",
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File download"},
                    "404": {"description": "Unknown token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "410": {"description": "Link expired", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/season-schedules/history": {
            "get": {
                "tags": ["Season Schedules"],
                "summary": "List persisted optimization runs",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "sport", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": ["Observability"],
                "summary": "Aggregated runtime metrics",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "TeamRequest": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "location": {
                    "type": "object",
                    "properties": {"lat": {"type": "number"}, "lng": {"type": "number"}}
                },
                "venue": {"type": "string"},
                "conference": {"type": "string"},
                "division": {"type": "string"},
                "constraints": {"type": "array", "items": {"$ref": "#/definitions/ConstraintRequest"}}
            }
        },
        "ConstraintRequest": {
            "type": "object",
            "properties": {
                "type": {"type": "string", "enum": ["no_play_day_of_week", "no_play_date_range"]},
                "teamId": {"type": "string"},
                "dayOfWeek": {"type": "string"},
                "start": {"type": "string", "format": "date"},
                "end": {"type": "string", "format": "date"}
            },
            "required": ["type"]
        },
        "SeasonScheduleRequest": {
            "type": "object",
            "properties": {
                "sport": {"type": "string"},
                "seasonStart": {"type": "string", "format": "date"},
                "seasonEnd": {"type": "string", "format": "date"},
                "championshipDate": {"type": "string", "format": "date"},
                "format": {"type": "string", "enum": ["single_round_robin", "double_round_robin", "partial_round_robin", "divisional", "three_game_series", "dual_meet"]},
                "gamesPerTeam": {"type": "integer"},
                "teams": {"type": "array", "items": {"$ref": "#/definitions/TeamRequest"}},
                "rivalries": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {"teamA": {"type": "string"}, "teamB": {"type": "string"}, "priority": {"type": "integer"}}
                    }
                },
                "constraints": {"type": "array", "items": {"$ref": "#/definitions/ConstraintRequest"}},
                "venueUnavailability": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {"venue": {"type": "string"}, "start": {"type": "string"}, "end": {"type": "string"}, "reason": {"type": "string"}}
                    }
                },
                "lockedGames": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {"home": {"type": "string"}, "away": {"type": "string"}, "date": {"type": "string"}, "type": {"type": "string"}}
                    }
                },
                "optimizationWeights": {
                    "type": "object",
                    "properties": {
                        "travelEfficiency": {"type": "number"},
                        "competitiveBalance": {"type": "number"},
                        "tvRevenue": {"type": "number"},
                        "studentWellbeing": {"type": "number"}
                    }
                },
                "simulatedAnnealingIterations": {"type": "integer"},
                "seed": {"type": "integer"},
                "gameDays": {"type": "array", "items": {"type": "string"}},
                "seriesLength": {"type": "integer"},
                "minRestDays": {"type": "integer"},
                "timeoutSeconds": {"type": "integer"}
            },
            "required": ["sport", "seasonStart", "seasonEnd", "teams"]
        },
        "SeasonJobCommandRequest": {
            "type": "object",
            "properties": {
                "type": {"type": "string", "enum": ["pause", "resume", "abort", "adjust_parameters"]},
                "parameters": {
                    "type": "object",
                    "properties": {"iterations": {"type": "integer"}, "progressEvery": {"type": "integer"}}
                }
            },
            "required": ["type"]
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
