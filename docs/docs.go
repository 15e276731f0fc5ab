// Package docs provides Swagger documentation for the parametric cover API.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "{{.Title}}",
        "description": "{{escape .Description}}",
        "contact": {
            "name": "API Support",
            "url": "https://github.com/MrKriegler/go-parametric"
        },
        "license": {
            "name": "MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "schemes": {{ marshal .Schemes }},
    "consumes": ["application/json"],
    "produces": ["application/json"],
    "securityDefinitions": {
        "ApiKeyAuth": {"type": "apiKey", "in": "header", "name": "X-API-Key"}
    },
    "security": [{"ApiKeyAuth": []}],
    "paths": {
        "/quotes:estimate": {
            "get": {
                "tags": ["Quotes"],
                "summary": "Estimate a premium",
                "description": "Scores the risk factors and prices the requested cover. Unknown codes fall back to default scores.",
                "operationId": "estimateQuote",
                "parameters": [
                    {"name": "carrier", "in": "query", "type": "string"},
                    {"name": "origin", "in": "query", "type": "string"},
                    {"name": "destination", "in": "query", "type": "string"},
                    {"name": "time", "in": "query", "type": "string", "description": "HH:MM, defaults to 09:00"},
                    {"name": "date", "in": "query", "type": "string", "required": true, "description": "YYYY-MM-DD"},
                    {"name": "origin_region", "in": "query", "type": "string"},
                    {"name": "dest_region", "in": "query", "type": "string"},
                    {"name": "coverage", "in": "query", "type": "number", "required": true},
                    {"name": "units", "in": "query", "type": "integer", "default": 1}
                ],
                "responses": {
                    "200": {"description": "Quote", "schema": {"$ref": "#/definitions/Quote"}},
                    "400": {"description": "Invalid parameters", "schema": {"$ref": "#/definitions/ProblemDetails"}}
                }
            }
        },
        "/coverage-tiers": {
            "get": {
                "tags": ["Quotes"],
                "summary": "List coverage tiers",
                "operationId": "listCoverageTiers",
                "responses": {
                    "200": {"description": "Tiers", "schema": {"type": "object", "properties": {"tiers": {"type": "array", "items": {"type": "number"}}}}}
                }
            }
        },
        "/policies": {
            "post": {
                "tags": ["Policies"],
                "summary": "Submit an application",
                "description": "Creates a policy in pending_payment.",
                "operationId": "submitPolicy",
                "parameters": [{"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PolicyApplication"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/Policy"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ProblemDetails"}}
                }
            },
            "get": {
                "tags": ["Policies"],
                "summary": "List policies",
                "operationId": "listPolicies",
                "parameters": [
                    {"name": "owner", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string", "enum": ["pending_payment", "active", "expired", "claimed"]},
                    {"name": "limit", "in": "query", "type": "integer", "default": 20},
                    {"name": "offset", "in": "query", "type": "integer", "default": 0}
                ],
                "responses": {
                    "200": {"description": "Page of policies", "schema": {"$ref": "#/definitions/PolicyList"}}
                }
            }
        },
        "/policies/{policy_id}": {
            "get": {
                "tags": ["Policies"],
                "summary": "Get a policy",
                "operationId": "getPolicy",
                "parameters": [{"name": "policy_id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Policy", "schema": {"$ref": "#/definitions/Policy"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ProblemDetails"}}
                }
            }
        },
        "/policies/{policy_id}:confirm-payment": {
            "post": {
                "tags": ["Policies"],
                "summary": "Confirm settlement payment",
                "description": "Moves a pending policy to active. Repeating the call on an active policy succeeds without change.",
                "operationId": "confirmPayment",
                "parameters": [
                    {"name": "policy_id", "in": "path", "required": true, "type": "string"},
                    {"name": "body", "in": "body", "required": true, "schema": {"type": "object", "properties": {"settlement_tx_hash": {"type": "string"}}}}
                ],
                "responses": {
                    "200": {"description": "Confirmed"},
                    "400": {"description": "Invalid or unverifiable transaction", "schema": {"$ref": "#/definitions/ProblemDetails"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ProblemDetails"}},
                    "409": {"description": "Policy already closed or settlement tx used by another policy", "schema": {"$ref": "#/definitions/ProblemDetails"}}
                }
            }
        },
        "/policies/{policy_id}/claims": {
            "get": {
                "tags": ["Claims"],
                "summary": "List claims on a policy",
                "operationId": "listPolicyClaims",
                "parameters": [{"name": "policy_id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Claims"},
                    "404": {"description": "Policy not found", "schema": {"$ref": "#/definitions/ProblemDetails"}}
                }
            }
        },
        "/claims": {
            "post": {
                "tags": ["Claims"],
                "summary": "File a claim",
                "operationId": "fileClaim",
                "parameters": [{"name": "body", "in": "body", "required": true, "schema": {"type": "object", "properties": {"policy_id": {"type": "string"}, "amount": {"type": "number"}}}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/Claim"}},
                    "404": {"description": "Policy not found", "schema": {"$ref": "#/definitions/ProblemDetails"}},
                    "409": {"description": "Policy not active", "schema": {"$ref": "#/definitions/ProblemDetails"}}
                }
            }
        },
        "/claims/{claim_id}": {
            "get": {
                "tags": ["Claims"],
                "summary": "Get a claim",
                "operationId": "getClaim",
                "parameters": [{"name": "claim_id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Claim", "schema": {"$ref": "#/definitions/Claim"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ProblemDetails"}}
                }
            },
            "put": {
                "tags": ["Claims"],
                "summary": "Resolve a claim",
                "description": "Approving marks the policy claimed. A claim can be resolved once.",
                "operationId": "resolveClaim",
                "parameters": [
                    {"name": "claim_id", "in": "path", "required": true, "type": "string"},
                    {"name": "body", "in": "body", "required": true, "schema": {"type": "object", "properties": {"decision": {"type": "string", "enum": ["approve", "reject"]}}}}
                ],
                "responses": {
                    "200": {"description": "Resolved", "schema": {"$ref": "#/definitions/Claim"}},
                    "409": {"description": "Already resolved", "schema": {"$ref": "#/definitions/ProblemDetails"}}
                }
            }
        },
        "/attestations": {
            "post": {
                "tags": ["Attestations"],
                "summary": "Sign a premium attestation",
                "operationId": "generateAttestation",
                "parameters": [{"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AttestationRequest"}}],
                "responses": {
                    "200": {"description": "Signed", "schema": {"$ref": "#/definitions/Attestation"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ProblemDetails"}}
                }
            }
        },
        "/attestations:verify": {
            "post": {
                "tags": ["Attestations"],
                "summary": "Verify an attestation signature",
                "operationId": "verifyAttestation",
                "parameters": [{"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/Attestation"}}],
                "responses": {
                    "200": {"description": "Check result"}
                }
            }
        },
        "/documents": {
            "post": {
                "tags": ["Documents"],
                "summary": "Upload a policy document",
                "operationId": "uploadDocument",
                "consumes": ["multipart/form-data"],
                "parameters": [{"name": "file", "in": "formData", "required": true, "type": "file"}],
                "responses": {
                    "201": {"description": "Stored", "schema": {"type": "object", "properties": {"url": {"type": "string"}}}},
                    "501": {"description": "Storage not configured", "schema": {"$ref": "#/definitions/ProblemDetails"}}
                }
            }
        }
    },
    "definitions": {
        "Quote": {
            "type": "object",
            "properties": {
                "probability": {"type": "number", "example": 0.248},
                "premium_per_unit": {"type": "number", "example": 0.07},
                "total_premium": {"type": "number", "example": 0.15},
                "total_premium_minor": {"type": "integer", "example": 15},
                "coverage_amount": {"type": "number", "example": 0.25},
                "unit_count": {"type": "integer", "example": 2},
                "breakdown": {"type": "object", "additionalProperties": {"type": "number"}},
                "tables_version": {"type": "string"}
            }
        },
        "PolicyApplication": {
            "type": "object",
            "required": ["owner_address", "plan_type", "identifier", "coverage_amount", "unit_count", "coverage_start_date", "coverage_end_date"],
            "properties": {
                "owner_address": {"type": "string", "example": "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"},
                "plan_type": {"type": "string", "enum": ["flight_delay", "manual"]},
                "identifier": {"type": "string", "example": "6E-2134"},
                "coverage_amount": {"type": "number"},
                "unit_count": {"type": "integer"},
                "premium": {"type": "number"},
                "total_premium": {"type": "number"},
                "coverage_start_date": {"type": "string", "example": "2026-12-01"},
                "coverage_end_date": {"type": "string", "example": "2026-12-02"},
                "document_url": {"type": "string"}
            }
        },
        "Policy": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "owner_address": {"type": "string"},
                "plan_type": {"type": "string"},
                "identifier": {"type": "string"},
                "coverage_amount": {"type": "number"},
                "unit_count": {"type": "integer"},
                "premium": {"type": "number"},
                "total_premium": {"type": "number"},
                "status": {"type": "string", "enum": ["pending_payment", "active", "expired", "claimed"]},
                "coverage_start_date": {"type": "string", "format": "date-time"},
                "coverage_end_date": {"type": "string", "format": "date-time"},
                "submitted_at": {"type": "string", "format": "date-time"},
                "updated_at": {"type": "string", "format": "date-time"},
                "document_url": {"type": "string"},
                "settlement_tx_hash": {"type": "string"},
                "paid_at": {"type": "string", "format": "date-time"},
                "closed_at": {"type": "string", "format": "date-time"}
            }
        },
        "PolicyList": {
            "type": "object",
            "properties": {
                "items": {"type": "array", "items": {"$ref": "#/definitions/Policy"}},
                "total": {"type": "integer"},
                "limit": {"type": "integer"},
                "offset": {"type": "integer"}
            }
        },
        "Claim": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "policy_id": {"type": "string"},
                "claim_amount": {"type": "number"},
                "status": {"type": "string", "enum": ["pending", "approved", "rejected"]},
                "created_at": {"type": "string", "format": "date-time"},
                "resolved_at": {"type": "string", "format": "date-time"}
            }
        },
        "AttestationRequest": {
            "type": "object",
            "properties": {
                "identifier": {"type": "string"},
                "per_unit_amount": {"type": "integer", "description": "contract integer unit, signed as given", "example": 25},
                "unit_count": {"type": "integer", "example": 2},
                "total_premium": {"type": "number", "description": "rounded half away from zero to an integer", "example": 15}
            }
        },
        "Attestation": {
            "type": "object",
            "properties": {
                "identifier": {"type": "string"},
                "per_unit_amount": {"type": "integer", "example": 25},
                "unit_count": {"type": "integer"},
                "scaled_premium": {"type": "integer", "example": 15},
                "hash": {"type": "string"},
                "signature": {"type": "string"},
                "signer": {"type": "string"}
            }
        },
        "ProblemDetails": {
            "type": "object",
            "description": "RFC 7807 Problem Details",
            "properties": {
                "type": {"type": "string", "example": "about:blank"},
                "title": {"type": "string", "example": "Not Found"},
                "status": {"type": "integer", "example": 404},
                "detail": {"type": "string", "example": "Resource not found"}
            }
        }
    },
    "tags": [
        {"name": "Quotes", "description": "Risk scoring and premium estimates"},
        {"name": "Policies", "description": "Policy submission and payment"},
        {"name": "Claims", "description": "Claim filing and adjudication"},
        {"name": "Attestations", "description": "Signed premium commitments for settlement"},
        {"name": "Documents", "description": "Policy document uploads"}
    ]
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Parametric Cover API",
	Description:      "Risk-priced parametric cover with signed premium attestations.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
