package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/lakeforge/lakeforge/internal/diag"
)

// EnvVarPrefix is the prefix for environment variable overrides:
// LAKEFORGE_VAR_region=eu-west-1 sets var.region.
const EnvVarPrefix = "LAKEFORGE_VAR_"

// Variable is a declared input variable.
type Variable struct {
	Name        string
	Default     any
	Description string
	Sensitive   bool
	HasDefault  bool
}

// resolveVariables computes the final value of every declared variable.
// Precedence, lowest to highest: block default, variable files in the order
// given, environment overrides.
func resolveVariables(decls map[string]*Variable, varFiles []string, environ []string) (map[string]any, error) {
	values := make(map[string]any, len(decls))
	for name, v := range decls {
		if v.HasDefault {
			values[name] = v.Default
		}
	}

	for _, path := range varFiles {
		fileVals, err := loadVarFile(path)
		if err != nil {
			return nil, err
		}
		for name, val := range fileVals {
			if _, declared := decls[name]; !declared {
				return nil, &diag.ParseError{Subject: path, Detail: fmt.Sprintf("value provided for undeclared variable %q", name)}
			}
			values[name] = val
		}
	}

	for _, entry := range environ {
		if !strings.HasPrefix(entry, EnvVarPrefix) {
			continue
		}
		kv := strings.SplitN(strings.TrimPrefix(entry, EnvVarPrefix), "=", 2)
		if len(kv) != 2 {
			continue
		}
		name := kv[0]
		if _, declared := decls[name]; !declared {
			continue
		}
		values[name] = coerceScalar(kv[1])
	}

	for name := range decls {
		if _, ok := values[name]; !ok {
			return nil, &diag.ParseError{Detail: fmt.Sprintf("variable %q has no default and no value was supplied", name)}
		}
	}

	return values, nil
}

// loadVarFile reads an HCL file of plain name = value assignments.
func loadVarFile(path string) (map[string]any, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &diag.ParseError{Subject: path, Detail: "cannot read variable file", Err: err}
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, path)
	if diags.HasErrors() {
		return nil, &diag.ParseError{Subject: path, Detail: diags.Error()}
	}

	attrs, diags := file.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, &diag.ParseError{Subject: path, Detail: diags.Error()}
	}

	values := make(map[string]any, len(attrs))
	for name, attr := range attrs {
		val, evalDiags := attr.Expr.Value(&hcl.EvalContext{})
		if evalDiags.HasErrors() {
			return nil, &diag.ParseError{Subject: path, Detail: evalDiags.Error()}
		}
		gv, err := ctyToGo(val)
		if err != nil {
			return nil, &diag.ParseError{Subject: path, Detail: err.Error()}
		}
		values[name] = gv
	}
	return values, nil
}

// coerceScalar turns an environment string into a number or bool when it
// parses cleanly as one, so numeric variables can be overridden from the
// environment.
func coerceScalar(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
