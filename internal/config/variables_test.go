package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakeforge/lakeforge/internal/diag"
	"github.com/lakeforge/lakeforge/internal/schema"
)

const varDeclarations = `
variable "environment" {
  default = "dev"
}

variable "retention_days" {
  default = 365
}

variable "db_password" {
  sensitive = true
}

resource "aws_s3_bucket" "raw" {
  bucket = "datalake-${var.environment}-raw"
}
`

func TestVariables_Precedence(t *testing.T) {
	dir := writeFiles(t, map[string]string{"main.hcl": varDeclarations})
	varFile := filepath.Join(dir, "staging.hclvars")
	require.NoError(t, os.WriteFile(varFile, []byte(`
environment = "staging"
db_password = "hunter2"
`), 0o600))

	// File overrides the default, environment overrides the file.
	result, err := NewLoader(schema.DefaultRegistry()).LoadFiles(
		[]string{filepath.Join(dir, "main.hcl")},
		&Options{
			VarFiles: []string{varFile},
			Environ:  []string{"LAKEFORGE_VAR_environment=prod"},
		})
	require.NoError(t, err)

	res := resourceByAddr(result.Config, "aws_s3_bucket.raw")
	assert.Equal(t, "datalake-prod-raw", res.Attributes["bucket"])
	assert.True(t, result.Variables["db_password"].Sensitive)
}

func TestVariables_VarFileOverridesDefault(t *testing.T) {
	dir := writeFiles(t, map[string]string{"main.hcl": varDeclarations})
	varFile := filepath.Join(dir, "staging.hclvars")
	require.NoError(t, os.WriteFile(varFile, []byte(`
environment = "staging"
db_password = "hunter2"
`), 0o600))

	result, err := NewLoader(schema.DefaultRegistry()).LoadFiles(
		[]string{filepath.Join(dir, "main.hcl")},
		&Options{VarFiles: []string{varFile}, Environ: []string{}})
	require.NoError(t, err)

	res := resourceByAddr(result.Config, "aws_s3_bucket.raw")
	assert.Equal(t, "datalake-staging-raw", res.Attributes["bucket"])
}

func TestVariables_MissingRequired(t *testing.T) {
	_, err := loadDir(t, map[string]string{"main.hcl": varDeclarations}, &Options{Environ: []string{}})

	var pe *diag.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Detail, "db_password")
}

func TestVariables_UndeclaredInVarFile(t *testing.T) {
	dir := writeFiles(t, map[string]string{"main.hcl": varDeclarations})
	varFile := filepath.Join(dir, "bad.hclvars")
	require.NoError(t, os.WriteFile(varFile, []byte(`
db_password = "x"
no_such_variable = "y"
`), 0o600))

	_, err := NewLoader(schema.DefaultRegistry()).LoadFiles(
		[]string{filepath.Join(dir, "main.hcl")},
		&Options{VarFiles: []string{varFile}, Environ: []string{}})

	var pe *diag.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Detail, "no_such_variable")
}

func TestVariables_UndeclaredEnvIgnored(t *testing.T) {
	result, err := loadDir(t, map[string]string{"main.hcl": varDeclarations}, &Options{
		Environ: []string{
			"LAKEFORGE_VAR_db_password=secret",
			"LAKEFORGE_VAR_unrelated=ignored",
			"PATH=/usr/bin",
		},
	})
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestCoerceScalar(t *testing.T) {
	assert.Equal(t, int64(90), coerceScalar("90"))
	assert.Equal(t, 1.5, coerceScalar("1.5"))
	assert.Equal(t, true, coerceScalar("true"))
	assert.Equal(t, "eu-west-1", coerceScalar("eu-west-1"))
}
