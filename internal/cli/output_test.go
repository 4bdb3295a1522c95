package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulesql/internal/ir"
)

func TestFormatter_JSON(t *testing.T) {
	tests := []struct {
		name       string
		emit       func(f *OutputFormatter) error
		wantStatus string
		wantCode   string
		wantDetail bool
	}{
		{
			name:       "success carries data",
			emit:       func(f *OutputFormatter) error { return f.Success(RenderResult{Entity: "users", SQL: "SELECT * FROM users"}) },
			wantStatus: "ok",
		},
		{
			name:       "error without details",
			emit:       func(f *OutputFormatter) error { return f.Error(ErrCodeUnknownEntity, `unknown entity "orders"`, nil) },
			wantStatus: "error",
			wantCode:   ErrCodeUnknownEntity,
		},
		{
			name: "error with details",
			emit: func(f *OutputFormatter) error {
				return f.Error("MISSING_REQUIRED_ATTRIBUTE", "create users", map[string]string{"attribute": "email"})
			},
			wantStatus: "error",
			wantCode:   "MISSING_REQUIRED_ATTRIBUTE",
			wantDetail: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			require.NoError(t, tt.emit(&OutputFormatter{Format: "json", Writer: buf}))

			var resp CLIResponse
			require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			if tt.wantCode == "" {
				assert.Nil(t, resp.Error)
				assert.NotNil(t, resp.Data)
				return
			}
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.wantDetail, resp.Error.Details != nil)
		})
	}
}

func TestFormatter_Text(t *testing.T) {
	buf := &bytes.Buffer{}
	quiet := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, quiet.Success("✓ All specs valid (2 entities)"))
	require.NoError(t, quiet.Error(ErrCodeNotFound, "path not found: ./specs", []string{"checked ./specs"}))
	assert.Equal(t, "✓ All specs valid (2 entities)\nError [E005]: path not found: ./specs\n", buf.String())

	buf.Reset()
	verbose := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}
	require.NoError(t, verbose.Error(ErrCodeNotFound, "path not found: ./specs", []string{"checked ./specs"}))
	assert.Contains(t, buf.String(), "Details: [checked ./specs]")
}

func TestFormatter_WriteIndentsFullResponse(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, f.write(CLIResponse{
		Status: "error",
		Data:   ValidationResult{Valid: false},
		Error:  &CLIError{Code: "E105", Message: "users: unsafe table name"},
	}))
	assert.Contains(t, buf.String(), "\n  \"status\": \"error\"")

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "E105", resp.Error.Code)
	assert.NotNil(t, resp.Data)
}

func TestFormatter_VerboseLogTarget(t *testing.T) {
	tests := []struct {
		name      string
		verbose   bool
		errWriter bool
		wantOut   string
		wantErr   string
	}{
		{name: "quiet", verbose: false, errWriter: true},
		{name: "falls back to stdout", verbose: true, wantOut: "Validating entity: users\n"},
		{name: "prefers stderr", verbose: true, errWriter: true, wantErr: "Validating entity: users\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
			f := &OutputFormatter{Format: "json", Writer: out, Verbose: tt.verbose}
			if tt.errWriter {
				f.ErrWriter = errOut
			}

			f.VerboseLog("Validating entity: %s", "users")
			assert.Equal(t, tt.wantOut, out.String())
			assert.Equal(t, tt.wantErr, errOut.String())
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad path")))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))

	wrapped := WrapExitError(ExitFailure, "E022", assert.AnError)
	assert.ErrorIs(t, wrapped, assert.AnError)
	assert.Equal(t, "E022: "+assert.AnError.Error(), wrapped.Error())
}

func TestRenderRows(t *testing.T) {
	buf := &bytes.Buffer{}
	rows := []ir.IRObject{
		{"id": ir.IRInt(1), "name": ir.IRString("Ann"), "note": ir.IRNull{}},
		{"id": ir.IRInt(2), "name": ir.IRString("Bob"), "note": ir.IRString("admin"), "active": ir.IRBool(true)},
	}

	renderRows(buf, nil, rows)

	out := buf.String()
	assert.Contains(t, out, "active")
	assert.Contains(t, out, "NULL")
	assert.Contains(t, out, "admin")
	assert.Contains(t, out, "true")
	assert.Contains(t, out, "(2 rows)")
}

func TestRenderRows_ExplicitColumns(t *testing.T) {
	buf := &bytes.Buffer{}
	rows := []ir.IRObject{{"id": ir.IRInt(1), "name": ir.IRString("Ann")}}

	renderRows(buf, []string{"name"}, rows)

	out := buf.String()
	assert.Contains(t, out, "Ann")
	assert.NotContains(t, out, " id ")
	assert.Contains(t, out, "(1 rows)")
}

func TestRenderRows_Empty(t *testing.T) {
	buf := &bytes.Buffer{}
	renderRows(buf, []string{"name"}, nil)
	assert.Equal(t, "(0 rows)\n", buf.String())
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "NULL", formatValue(nil))
	assert.Equal(t, "NULL", formatValue(ir.IRNull{}))
	assert.Equal(t, "42", formatValue(ir.IRInt(42)))
	assert.Equal(t, "false", formatValue(ir.IRBool(false)))
	assert.Equal(t, `["a",1]`, formatValue(ir.IRArray{ir.IRString("a"), ir.IRInt(1)}))
}
