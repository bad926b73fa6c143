package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifiedError(t *testing.T) {
	t.Run("Basic error creation", func(t *testing.T) {
		err := NewError(CategoryConfig, "invalid configuration").
			WithSeverity(SeverityFatal).
			WithContext("file", "config.yaml").
			Build()

		if err.Category() != CategoryConfig {
			t.Errorf("expected category %s, got %s", CategoryConfig, err.Category())
		}
		if err.Severity() != SeverityFatal {
			t.Errorf("expected severity %s, got %s", SeverityFatal, err.Severity())
		}
		file, exists := err.Context().GetString("file")
		if !exists || file != "config.yaml" {
			t.Errorf("expected context file=config.yaml, got %v", file)
		}
	})

	t.Run("Detection through wrapping", func(t *testing.T) {
		base := ConflictError("stale write").Build()
		wrapped := fmt.Errorf("commit page: %w", base)

		if !IsClassified(wrapped) {
			t.Fatal("expected wrapped error to be classified")
		}
		if !HasCategory(wrapped, CategoryConflict) {
			t.Error("expected conflict category")
		}
		if GetRetryStrategy(wrapped) != RetryUserAction {
			t.Errorf("expected user action retry, got %s", GetRetryStrategy(wrapped))
		}
		if !errors.Is(wrapped, base) {
			t.Error("expected errors.Is to match sentinel")
		}
	})

	t.Run("Sentinel copies stay independent", func(t *testing.T) {
		sentinel := ForgeError("not configured").Build()
		derived := sentinel.WithContext("path", "content/a.yml").WithCause(errors.New("boom"))

		if _, ok := sentinel.Context().Get("path"); ok {
			t.Error("sentinel context was mutated")
		}
		if sentinel.Cause() != nil {
			t.Error("sentinel cause was mutated")
		}
		if !errors.Is(derived, sentinel) {
			t.Error("derived error should still match sentinel")
		}
	})
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name     string
		builder  *ErrorBuilder
		category ErrorCategory
		retry    RetryStrategy
	}{
		{"ConfigError", ConfigError("x"), CategoryConfig, RetryNever},
		{"ValidationError", ValidationError("x"), CategoryValidation, RetryNever},
		{"AuthError", AuthError("x"), CategoryAuth, RetryUserAction},
		{"ConflictError", ConflictError("x"), CategoryConflict, RetryUserAction},
		{"SyncError", SyncError("x"), CategorySync, RetryUserAction},
		{"NetworkError", NetworkError("x"), CategoryNetwork, RetryBackoff},
		{"GitError", GitError("x"), CategoryGit, RetryBackoff},
		{"ForgeError", ForgeError("x"), CategoryForge, RetryBackoff},
		{"InternalError", InternalError("x"), CategoryInternal, RetryNever},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.builder.Build()
			if err.Category() != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category())
			}
			if err.RetryStrategy() != tt.retry {
				t.Errorf("expected retry strategy %s, got %s", tt.retry, err.RetryStrategy())
			}
		})
	}
}

func TestWithCategoryOverride(t *testing.T) {
	err := ForgeError("sha mismatch").WithCategory(CategoryConflict).UserAction().Build()
	if err.Category() != CategoryConflict || err.CanRetry() {
		t.Fatalf("unexpected classification: %s", err)
	}
}

func TestErrorContextMerge(t *testing.T) {
	a := ErrorContext{}.Set("key1", "value1").Set("shared", "original")
	b := ErrorContext{}.Set("key2", "value2").Set("shared", "overridden")

	merged := a.Merge(b)
	if v, _ := merged.GetString("shared"); v != "overridden" {
		t.Errorf("expected shared=overridden, got %s", v)
	}
	if v, _ := merged.GetString("key1"); v != "value1" {
		t.Errorf("expected key1=value1, got %s", v)
	}
}
