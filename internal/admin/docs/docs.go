// Package docs holds the hand-maintained swagger spec for the admin status
// surface. It is written in the shape `swag init` produces so gin-swagger
// can serve it without a codegen step wired into the build.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "resolver admin API",
        "description": "Read-only status and metrics surface for the resolver.",
        "version": "1.0"
    },
    "basePath": "/",
    "paths": {
        "/healthz": {
            "get": {
                "summary": "Liveness probe",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/stats": {
            "get": {
                "summary": "Runtime statistics",
                "description": "CPU, memory, cache occupancy, upstream health, DNS counters",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        }
    }
}`

// SwaggerInfo holds exported swagger spec, matching the shape swag's
// generated docs.go exposes so gin-swagger can resolve it by instance name.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "resolver admin API",
	Description:      "Read-only status and metrics surface for the resolver.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
