package validation

import (
	"fmt"
	"strings"
	"sync"

	"gigflow/internal/common/errors"

	"github.com/xeipuuv/gojsonschema"
)

// Request schema names.
const (
	SchemaCreateTask     = "create-task"
	SchemaSubmitProposal = "submit-proposal"
)

var requestSchemas = map[string]string{
	SchemaCreateTask: `{
		"type": "object",
		"required": ["title", "description", "budget"],
		"properties": {
			"title":       {"type": "string", "minLength": 1, "maxLength": 200},
			"description": {"type": "string", "minLength": 1, "maxLength": 10000},
			"budget":      {"type": "integer", "minimum": 0}
		}
	}`,
	SchemaSubmitProposal: `{
		"type": "object",
		"required": ["gigId", "message", "price"],
		"properties": {
			"gigId":   {"type": "string", "minLength": 1},
			"message": {"type": "string", "minLength": 1, "maxLength": 5000},
			"price":   {"type": "integer", "minimum": 1}
		}
	}`,
}

var (
	compileOnce sync.Once
	compiled    map[string]*gojsonschema.Schema
	compileErr  error
)

func schemas() (map[string]*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiled = make(map[string]*gojsonschema.Schema, len(requestSchemas))
		for name, raw := range requestSchemas {
			s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
			if err != nil {
				compileErr = fmt.Errorf("schema %s: %w", name, err)
				return
			}
			compiled[name] = s
		}
	})
	return compiled, compileErr
}

// ValidateRequest checks a raw JSON body against the named schema. Any
// violation becomes a VALIDATION_FAILED error listing every failing field.
func ValidateRequest(schemaName string, body []byte) error {
	all, err := schemas()
	if err != nil {
		return errors.NewInternalError(err)
	}
	schema, ok := all[schemaName]
	if !ok {
		return errors.NewInternalError(fmt.Errorf("unknown schema %q", schemaName))
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return errors.NewValidationFailedError("body is not valid JSON")
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, len(result.Errors()))
	for i, desc := range result.Errors() {
		msgs[i] = desc.String()
	}
	return errors.NewValidationFailedError(strings.Join(msgs, "; "))
}

// ValidateVariables checks workflow job variables against the named schema.
func ValidateVariables(schemaName string, vars map[string]interface{}) error {
	all, err := schemas()
	if err != nil {
		return errors.NewInternalError(err)
	}
	schema, ok := all[schemaName]
	if !ok {
		return errors.NewInternalError(fmt.Errorf("unknown schema %q", schemaName))
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(vars))
	if err != nil {
		return errors.NewValidationFailedError(err.Error())
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, len(result.Errors()))
	for i, desc := range result.Errors() {
		msgs[i] = desc.String()
	}
	return errors.NewValidationFailedError(strings.Join(msgs, "; "))
}
