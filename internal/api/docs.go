package api

import "github.com/swaggo/swag"

// docTemplate is the OpenAPI 2.0 document served at /swagger/doc.json.
const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": {{marshal .Title}},
        "description": "{{escape .Description}}",
        "version": {{marshal .Version}}
    },
    "basePath": "{{.BasePath}}",
    "consumes": ["application/json"],
    "produces": ["application/json"],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header",
            "description": "Bearer token signed with ADMIN_TOKEN_SECRET"
        }
    },
    "paths": {
        "/health": {
            "get": {
                "summary": "Service health and prediction mode",
                "tags": ["system"],
                "responses": {
                    "200": {"description": "healthy or degraded"},
                    "503": {"description": "unhealthy"}
                }
            }
        },
        "/predict": {
            "post": {
                "summary": "Predict the viral probability of one post",
                "tags": ["prediction"],
                "parameters": [
                    {
                        "in": "body",
                        "name": "post",
                        "required": true,
                        "schema": {"$ref": "#/definitions/PostSignal"}
                    }
                ],
                "responses": {
                    "200": {
                        "description": "prediction",
                        "headers": {"X-Cache": {"type": "string", "description": "HIT or MISS"}},
                        "schema": {"$ref": "#/definitions/PredictionResult"}
                    },
                    "400": {"description": "invalid post", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "429": {"description": "rate limited", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/predict/batch": {
            "post": {
                "summary": "Predict up to 50 posts concurrently",
                "tags": ["prediction"],
                "parameters": [
                    {
                        "in": "body",
                        "name": "batch",
                        "required": true,
                        "schema": {"$ref": "#/definitions/BatchRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "per-item results in request order", "schema": {"$ref": "#/definitions/BatchResponse"}},
                    "400": {"description": "empty or oversized batch", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/timing/windows": {
            "get": {
                "summary": "Best upcoming posting windows",
                "tags": ["timing"],
                "parameters": [
                    {"in": "query", "name": "from", "type": "string", "format": "date-time"},
                    {"in": "query", "name": "hours", "type": "integer", "minimum": 1, "maximum": 336},
                    {"in": "query", "name": "limit", "type": "integer", "minimum": 1, "maximum": 24},
                    {"in": "query", "name": "timezone", "type": "string"}
                ],
                "responses": {
                    "200": {
                        "description": "windows ranked by score",
                        "schema": {
                            "type": "object",
                            "properties": {
                                "from": {"type": "string", "format": "date-time"},
                                "windows": {"type": "array", "items": {"$ref": "#/definitions/TimeSlot"}}
                            }
                        }
                    },
                    "400": {"description": "bad query", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/model": {
            "get": {
                "summary": "Serving model architecture, performance and history",
                "tags": ["model"],
                "responses": {
                    "200": {"description": "model info; loaded is false in rule-based mode"}
                }
            }
        },
        "/model/reload": {
            "post": {
                "summary": "Reload the model snapshot from MODEL_PATH",
                "tags": ["model"],
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "reloaded"},
                    "401": {"description": "missing or invalid token", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "503": {"description": "snapshot unreadable; previous model kept", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "InteractionPoint": {
            "type": "object",
            "properties": {
                "timestamp": {"type": "string", "format": "date-time"},
                "count": {"type": "number"}
            }
        },
        "RecentPost": {
            "type": "object",
            "properties": {
                "timestamp": {"type": "string", "format": "date-time"},
                "interactions": {"type": "number"}
            }
        },
        "CreatorProfile": {
            "type": "object",
            "properties": {
                "follower_count": {"type": "number"},
                "following_count": {"type": "number"},
                "post_count": {"type": "number"},
                "avg_interactions": {"type": "number"},
                "viral_posts_count": {"type": "number"},
                "account_age_days": {"type": "number"},
                "verified": {"type": "boolean"},
                "bio_keywords": {"type": "array", "items": {"type": "string"}},
                "recent_posts": {"type": "array", "items": {"$ref": "#/definitions/RecentPost"}}
            }
        },
        "PostSignal": {
            "type": "object",
            "properties": {
                "text": {"type": "string", "maxLength": 10000},
                "media_count": {"type": "integer"},
                "hashtags": {"type": "array", "items": {"type": "string"}},
                "mentions": {"type": "array", "items": {"type": "string"}},
                "urls": {"type": "array", "items": {"type": "string"}},
                "created_time": {"type": "string", "format": "date-time"},
                "current_time": {"type": "string", "format": "date-time"},
                "target_time": {"type": "string", "format": "date-time"},
                "interactions": {"type": "number"},
                "interaction_history": {"type": "array", "items": {"$ref": "#/definitions/InteractionPoint"}},
                "creator": {"$ref": "#/definitions/CreatorProfile"},
                "target_timezone": {"type": "string"},
                "audience_type": {"type": "string"}
            }
        },
        "BatchRequest": {
            "type": "object",
            "required": ["posts"],
            "properties": {
                "posts": {"type": "array", "minItems": 1, "maxItems": 50, "items": {"$ref": "#/definitions/PostSignal"}}
            }
        },
        "ScoreComponent": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "raw_metrics": {"type": "object", "additionalProperties": {"type": "number"}},
                "labels": {"type": "object", "additionalProperties": {"type": "string"}},
                "normalized_score": {"type": "number"}
            }
        },
        "TimeSlot": {
            "type": "object",
            "properties": {
                "start": {"type": "string", "format": "date-time"},
                "multiplier": {"type": "number"},
                "score": {"type": "number"},
                "local_times": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "PredictionResult": {
            "type": "object",
            "properties": {
                "viral_probability": {"type": "number", "minimum": 0, "maximum": 1},
                "category": {"type": "string", "enum": ["minimal", "low", "moderate", "high", "ultra_high"]},
                "confidence_score": {"type": "number"},
                "component_scores": {"type": "object", "additionalProperties": {"$ref": "#/definitions/ScoreComponent"}},
                "expected_engagement": {
                    "type": "object",
                    "properties": {
                        "low": {"type": "number"},
                        "expected": {"type": "number"},
                        "high": {"type": "number"}
                    }
                },
                "recommendations": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "type": {"type": "string"},
                            "priority": {"type": "string"},
                            "text": {"type": "string"},
                            "impact": {"type": "string"}
                        }
                    }
                },
                "insights": {"type": "array", "items": {"type": "string"}},
                "prediction_method": {"type": "string", "enum": ["rule-based", "hybrid"]},
                "breakdown": {
                    "type": "object",
                    "properties": {
                        "rule_based": {"type": "number"},
                        "machine_learning": {"type": "number"},
                        "ml_confidence": {"type": "number"},
                        "external": {"type": "number"},
                        "weights": {"type": "object", "additionalProperties": {"type": "number"}},
                        "weighted_sum": {"type": "number"},
                        "agreement_boost": {"type": "number"}
                    }
                },
                "metadata": {
                    "type": "object",
                    "properties": {
                        "prediction_id": {"type": "string"},
                        "generated_at": {"type": "string", "format": "date-time"},
                        "base_probability": {"type": "number"},
                        "applied_boosts": {"type": "array", "items": {"type": "string"}},
                        "post_age_hours": {"type": "number"},
                        "optimal_windows": {"type": "array", "items": {"$ref": "#/definitions/TimeSlot"}},
                        "model_run_id": {"type": "string"},
                        "feature_vector": {"type": "array", "items": {"type": "number"}}
                    }
                }
            }
        },
        "ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "code": {"type": "string"},
                "category": {"type": "string"},
                "timestamp": {"type": "string", "format": "date-time"},
                "request_id": {"type": "string"},
                "fields": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "BatchResponse": {
            "type": "object",
            "properties": {
                "items": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "index": {"type": "integer"},
                            "result": {"$ref": "#/definitions/PredictionResult"},
                            "error": {"$ref": "#/definitions/ErrorResponse"}
                        }
                    }
                },
                "summary": {
                    "type": "object",
                    "properties": {
                        "total": {"type": "integer"},
                        "succeeded": {"type": "integer"},
                        "failed": {"type": "integer"},
                        "mean_probability": {"type": "number"},
                        "categories": {"type": "object", "additionalProperties": {"type": "integer"}},
                        "duration_ns": {"type": "integer"}
                    }
                }
            }
        }
    }
}`

// SwaggerInfo holds the exported document metadata.
var SwaggerInfo = &swag.Spec{
	Version:          Version,
	BasePath:         "/",
	Title:            "Viral-o-meter API",
	Description:      "Viral probability prediction for social posts.",
	InfoInstanceName: swag.Name,
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
