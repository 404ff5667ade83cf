package router

import (
	"os"
	"path/filepath"

	"chatmallu/client/pkg/validator"

	"github.com/gin-gonic/gin"
)

// AddOpenAPIValidation validates requests to group against the schema and
// serves the schema under /api/docs. It must run before routes are added.
func (r *Router) AddOpenAPIValidation(group *gin.RouterGroup, schemaPath string) {
	if !fileExists(schemaPath) {
		r.Logger.Warn("OpenAPI schema file not found, skipping validation", "path", schemaPath)
		return
	}

	v, err := validator.NewOpenAPIValidator(schemaPath)
	if err != nil {
		r.Logger.Error("Failed to initialize OpenAPI validator", "error", err)
		return
	}

	group.Use(v.Middleware())
	r.Logger.Info("OpenAPI validation enabled", "schema", schemaPath)

	schemaFile := filepath.Base(schemaPath)
	r.Engine.StaticFile("/api/docs/"+schemaFile, schemaPath)
	r.Logger.Info("OpenAPI schema available at", "url", "/api/docs/"+schemaFile)
}

// fileExists checks if a file exists and is not a directory
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
