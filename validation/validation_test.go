package validation

import (
	"strings"
	"testing"

	"github.com/kbukum/chainkit/errors"
)

func TestValidatorRequired(t *testing.T) {
	tests := []struct {
		value   string
		wantErr bool
	}{
		{"A", false},
		{"", true},
		{"   ", true},
	}
	for _, tt := range tests {
		v := New().Required("name", tt.value)
		if v.HasErrors() != tt.wantErr {
			t.Errorf("Required(%q) errors = %v, want %v", tt.value, v.HasErrors(), tt.wantErr)
		}
	}
}

func TestValidatorIdentifier(t *testing.T) {
	tests := []struct {
		value   string
		wantErr bool
	}{
		{"A", false},
		{"load_users", false},
		{"step-2.v1", false},
		{"", true},
		{"has space", true},
		{".hidden", true},
		{"a/b", true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			v := New().Identifier("task", tt.value)
			if v.HasErrors() != tt.wantErr {
				t.Errorf("Identifier(%q) errors = %v, want %v", tt.value, v.Errors(), tt.wantErr)
			}
		})
	}
}

func TestValidatorNumbers(t *testing.T) {
	v := New().Positive("max_parallel", 0).Positive("ok", 3)
	if len(v.Errors()) != 1 || v.Errors()[0].Field != "max_parallel" {
		t.Errorf("Positive errors = %v", v.Errors())
	}

	v = New().NonNegative("inp_ms", -1).NonNegative("zero", 0)
	if len(v.Errors()) != 1 {
		t.Errorf("NonNegative errors = %v", v.Errors())
	}

	v = New().Range("attempts", 11, 1, 10).Range("ok", 5, 1, 10)
	if len(v.Errors()) != 1 {
		t.Errorf("Range errors = %v", v.Errors())
	}
}

func TestValidatorCollections(t *testing.T) {
	v := New().MinItems("parallel", 0, 1)
	if !v.HasErrors() {
		t.Error("expected error for empty list")
	}

	v = New().Unique("tasks", []string{"A", "B", "A", "B"})
	if len(v.Errors()) != 1 || !strings.Contains(v.Errors()[0].Message, `"A"`) {
		t.Errorf("Unique errors = %v", v.Errors())
	}

	if New().Unique("tasks", []string{"A", "B"}).HasErrors() {
		t.Error("distinct values should pass")
	}
}

func TestValidatorOneOf(t *testing.T) {
	allowed := []string{"local", "s3"}
	if New().OneOf("provider", "local", allowed).HasErrors() {
		t.Error("local should be allowed")
	}
	if New().OneOf("provider", "", allowed).HasErrors() {
		t.Error("empty value is skipped")
	}
	if !New().OneOf("provider", "ftp", allowed).HasErrors() {
		t.Error("ftp should be rejected")
	}
}

func TestValidatorValidate(t *testing.T) {
	if New().Validate() != nil {
		t.Fatal("no errors should produce nil")
	}

	appErr := New().
		Required("name", "").
		Check(false, "steps", "must not be empty").
		Validate()
	if appErr == nil {
		t.Fatal("expected error")
	}
	if appErr.Code != errors.ErrCodeInvalidConfig {
		t.Errorf("code = %s", appErr.Code)
	}
	if !strings.Contains(appErr.Message, "name: is required") || !strings.Contains(appErr.Message, "steps: must not be empty") {
		t.Errorf("message = %q", appErr.Message)
	}
	fields, ok := appErr.Details["fields"].([]FieldError)
	if !ok || len(fields) != 2 {
		t.Errorf("details = %v", appErr.Details)
	}
}

func TestValidatorErrorNilInterface(t *testing.T) {
	if err := New().Required("name", "ok").Error(); err != nil {
		t.Fatalf("Error() = %v, want nil", err)
	}
	if err := New().Required("name", "").Error(); err == nil {
		t.Fatal("expected error")
	}
}

func TestRequiredFunc(t *testing.T) {
	if err := Required("name", "x"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := Required("name", ""); err == nil {
		t.Error("expected error")
	}
}

type retrySettings struct {
	MaxAttempts int `mapstructure:"max_attempts" validate:"gte=1,lte=10"`
}

type schedulerSettings struct {
	MaxParallel int           `mapstructure:"max_parallel" validate:"gt=0"`
	Mode        string        `mapstructure:"mode" validate:"omitempty,oneof=fifo lifo"`
	Retry       retrySettings `mapstructure:"retry"`
}

func TestValidateValid(t *testing.T) {
	s := schedulerSettings{MaxParallel: 4, Retry: retrySettings{MaxAttempts: 1}}
	if err := Validate(s); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateUsesConfigKeys(t *testing.T) {
	s := schedulerSettings{MaxParallel: 0, Mode: "random", Retry: retrySettings{MaxAttempts: 0}}
	err := Validate(s)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.IsCode(err, errors.ErrCodeInvalidConfig) {
		t.Fatalf("code mismatch: %v", err)
	}
	msg := err.Error()
	for _, want := range []string{
		"max_parallel: must be greater than 0",
		"mode: must be one of: fifo lifo",
		"retry.max_attempts: must be at least 1",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestToSnakeCase(t *testing.T) {
	if got := toSnakeCase("MaxParallel"); got != "max_parallel" {
		t.Errorf("toSnakeCase = %q", got)
	}
}
