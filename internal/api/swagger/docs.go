// Package swagger holds the OpenAPI document for the bill API, kept in step
// with the handler annotations in package api.
package swagger

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
        "/api/v1/bills": {
            "get": {
                "produces": ["application/json"],
                "tags": ["bills"],
                "summary": "List bills",
                "parameters": [
                    {"type": "integer", "description": "Maximum number of bills", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/bills.Record"}}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["bills"],
                "summary": "Create a bill",
                "parameters": [
                    {"description": "Calculation request", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/bills.Request"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/bills.Record"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/api/v1/bills/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["bills"],
                "summary": "Get a bill",
                "parameters": [
                    {"type": "string", "description": "Bill ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/bills.Record"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/api/v1/bills/{id}/email": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["bills"],
                "summary": "Email a bill",
                "parameters": [
                    {"type": "string", "description": "Bill ID", "name": "id", "in": "path", "required": true},
                    {"description": "Recipient", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/api.emailBillRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/api/v1/bills/{id}/pdf": {
            "get": {
                "produces": ["application/pdf"],
                "tags": ["bills"],
                "summary": "Download the bill document",
                "parameters": [
                    {"type": "string", "description": "Bill ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/api/v1/calculate": {
            "post": {
                "description": "Compute a bill from an inline series or a backend source file. Nothing is stored.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["bills"],
                "summary": "Calculate a bill",
                "parameters": [
                    {"description": "Calculation request", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/bills.Request"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/billing.BillSummary"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/api/v1/settings/email": {
            "get": {
                "description": "Secrets are masked.",
                "produces": ["application/json"],
                "tags": ["settings"],
                "summary": "Get the email configuration",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/storage.EmailConfig"}}
                }
            },
            "put": {
                "description": "A masked secret keeps the stored value.",
                "consumes": ["application/json"],
                "tags": ["settings"],
                "summary": "Save the email configuration",
                "parameters": [
                    {"description": "Email configuration", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/storage.EmailConfig"}}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/api/v1/settings/email/test": {
            "post": {
                "description": "Sends a short message with the given configuration without saving it.",
                "consumes": ["application/json"],
                "tags": ["settings"],
                "summary": "Send a test email",
                "parameters": [
                    {"description": "Configuration and recipient", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/api.testEmailRequest"}}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/api/v1/settings/refresh_interval": {
            "get": {
                "description": "Empty when the worker uses its configured interval.",
                "produces": ["application/json"],
                "tags": ["settings"],
                "summary": "Get the billing run interval",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.SettingResponse"}}
                }
            },
            "put": {
                "description": "Seconds or a five field cron expression. Running workers pick it up on their next poll.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["settings"],
                "summary": "Set the billing run interval",
                "parameters": [
                    {"description": "New interval; key is ignored", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/api.SettingResponse"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.SettingResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/api/v1/tariffs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["tariffs"],
                "summary": "List tariff presets",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/tariffs.Preset"}}}
                }
            }
        },
        "/api/v1/tariffs/{key}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["tariffs"],
                "summary": "Get a tariff preset",
                "parameters": [
                    {"type": "string", "description": "Preset key", "name": "key", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/tariffs.Preset"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "api.ErrorResponse": {
            "type": "object",
            "properties": {
                "constraint": {"type": "string"},
                "error": {"type": "string"},
                "field": {"type": "string"},
                "kind": {"type": "string"}
            }
        },
        "api.SettingResponse": {
            "type": "object",
            "properties": {
                "key": {"type": "string"},
                "value": {"type": "string"}
            }
        },
        "api.emailBillRequest": {
            "type": "object",
            "properties": {
                "to": {"type": "string"}
            }
        },
        "api.testEmailRequest": {
            "type": "object",
            "properties": {
                "config": {"$ref": "#/definitions/storage.EmailConfig"},
                "to": {"type": "string"}
            }
        },
        "billing.BillSummary": {
            "type": "object",
            "properties": {
                "average_daily_consumption": {"type": "string"},
                "billing_days": {"type": "integer"},
                "billing_period": {"type": "string"},
                "energy_charge": {"type": "string"},
                "fixed_charge": {"type": "string"},
                "segments": {"type": "array", "items": {"$ref": "#/definitions/billing.Segment"}},
                "tariff_type": {"type": "string", "enum": ["flat", "timeOfUse", "slab"]},
                "total_consumption": {"type": "string"},
                "total_cost": {"type": "string"}
            }
        },
        "billing.ConsumptionSeries": {
            "type": "object",
            "properties": {
                "timestamps": {"type": "array", "items": {"type": "string"}},
                "values": {"type": "array", "items": {"type": "number"}}
            }
        },
        "billing.Segment": {
            "type": "object",
            "properties": {
                "consumption": {"type": "string"},
                "cost": {"type": "string"},
                "label": {"type": "string"},
                "name": {"type": "string"},
                "rate": {"type": "string"},
                "tiers": {"type": "array", "items": {"$ref": "#/definitions/billing.Segment"}}
            }
        },
        "billing.Slab": {
            "type": "object",
            "properties": {
                "rate": {"type": "number"},
                "upTo": {"type": "number"}
            }
        },
        "billing.TariffConfig": {
            "type": "object",
            "properties": {
                "baseRate": {"type": "number"},
                "fixedCharge": {"type": "number"},
                "mode": {"type": "string", "enum": ["flat", "timeOfUse", "slab"]},
                "offPeakRate": {"type": "number"},
                "peakEndHour": {"type": "integer"},
                "peakRate": {"type": "number"},
                "peakStartHour": {"type": "integer"},
                "slabs": {"type": "array", "items": {"$ref": "#/definitions/billing.Slab"}}
            }
        },
        "bills.Record": {
            "type": "object",
            "properties": {
                "created_at": {"type": "string"},
                "id": {"type": "string"},
                "source": {"type": "string"},
                "summary": {"$ref": "#/definitions/billing.BillSummary"},
                "tariff_key": {"type": "string"}
            }
        },
        "bills.Request": {
            "type": "object",
            "properties": {
                "billing_days": {"type": "integer"},
                "billing_period": {"type": "string"},
                "series": {"$ref": "#/definitions/billing.ConsumptionSeries"},
                "source": {"type": "string"},
                "tariff": {"$ref": "#/definitions/billing.TariffConfig"},
                "tariff_key": {"type": "string"},
                "x_column": {"type": "string"},
                "y_column": {"type": "string"}
            }
        },
        "storage.EmailConfig": {
            "type": "object",
            "properties": {
                "api_key": {"type": "string"},
                "enabled": {"type": "boolean"},
                "encryption": {"type": "string"},
                "from_address": {"type": "string"},
                "from_name": {"type": "string"},
                "host": {"type": "string"},
                "password": {"type": "string"},
                "port": {"type": "integer"},
                "provider": {"type": "string"},
                "username": {"type": "string"}
            }
        },
        "tariffs.Preset": {
            "type": "object",
            "properties": {
                "description": {"type": "string"},
                "key": {"type": "string"},
                "name": {"type": "string"},
                "tariff": {"$ref": "#/definitions/billing.TariffConfig"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "eBillManager API",
	Description:      "Electricity bill calculation from consumption series and tariff presets.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
