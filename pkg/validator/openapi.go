// Package validator checks API requests against the OpenAPI document.
package validator

import (
	"errors"
	"fmt"
	"strings"

	apperrors "chatmallu/client/pkg/errors"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"
)

// Violation is one reason a request was rejected. Field is a dotted path
// such as "body.temperature" or "path.id".
type Violation struct {
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}

// OpenAPIValidator rejects API requests that do not match the document.
type OpenAPIValidator struct {
	doc    *openapi3.T
	router routers.Router
}

func NewOpenAPIValidator(schemaPath string) (*OpenAPIValidator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("load OpenAPI document %s: %w", schemaPath, err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI document: %w", err)
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build OpenAPI router: %w", err)
	}
	return &OpenAPIValidator{doc: doc, router: router}, nil
}

// Middleware validates path parameters and JSON bodies. Requests for
// undocumented routes pass untouched; the router answers those.
func (v *OpenAPIValidator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route, pathParams, err := v.router.FindRoute(c.Request)
		if err != nil {
			c.Next()
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: pathParams,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
				MultiError:         true,
			},
		}
		if err := openapi3filter.ValidateRequest(c.Request.Context(), input); err != nil {
			_ = c.Error(apperrors.BadRequestWithDetails(apperrors.CodeInvalidRequest,
				"Request does not match the API schema", Violations(err)))
			c.Abort()
			return
		}

		c.Next()
	}
}

// Violations flattens a kin-openapi validation error.
func Violations(err error) []Violation {
	var out []Violation
	collect(err, "", &out)
	return out
}

// collect walks the error tree by concrete type. errors.As would follow
// RequestError.Unwrap into a nested MultiError and lose the field prefix.
func collect(err error, field string, out *[]Violation) {
	switch e := err.(type) {
	case openapi3.MultiError:
		for _, inner := range e {
			collect(inner, field, out)
		}
	case *openapi3filter.RequestError:
		switch {
		case e.Parameter != nil:
			field = e.Parameter.In + "." + e.Parameter.Name
		case e.RequestBody != nil:
			field = "body"
		}
		if e.Err == nil || errors.Is(e.Err, openapi3filter.ErrInvalidRequired) {
			*out = append(*out, Violation{Field: field, Reason: e.Error()})
			return
		}
		collect(e.Err, field, out)
	case *openapi3.SchemaError:
		if ptr := e.JSONPointer(); len(ptr) > 0 {
			field = joinField(field, strings.Join(ptr, "."))
		}
		*out = append(*out, Violation{Field: field, Reason: e.Reason})
	default:
		*out = append(*out, Violation{Field: field, Reason: err.Error()})
	}
}

func joinField(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
