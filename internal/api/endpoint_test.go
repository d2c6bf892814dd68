package api

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestMutabilityMethod(t *testing.T) {
	if got := Immutable.Method(); got != "GET" {
		t.Errorf("Immutable.Method() = %q, want GET", got)
	}
	if got := Mutable.Method(); got != "POST" {
		t.Errorf("Mutable.Method() = %q, want POST", got)
	}
}

func TestActualityWarningText(t *testing.T) {
	handler := func(ctx context.Context, q struct{}) (struct{}, error) {
		return struct{}{}, nil
	}
	date := time.Date(2027, time.March, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		actuality    Actuality
		wantContains []string
		wantSuffix   string
	}{
		{
			name:      "date and description",
			actuality: NewDeprecated(handler).WithDate(date).WithDescription("use v2").actuality(),
			wantContains: []string{
				"Deprecated API: this endpoint is deprecated",
				"The old API is maintained until Mon, 15 Mar 2027 12:00:00 GMT.",
			},
			wantSuffix: "Additional information: use v2.",
		},
		{
			name:      "no date",
			actuality: NewDeprecated(handler).actuality(),
			wantContains: []string{
				"Currently there is no specific date for disabling this endpoint.",
			},
		},
		{
			name:       "description without date",
			actuality:  NewDeprecated(handler).WithDescription("gone soon").actuality(),
			wantSuffix: "Additional information: gone soon.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.actuality.warningText()
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("warningText() = %q, missing %q", got, want)
				}
			}
			if tt.wantSuffix != "" && !strings.HasSuffix(got, tt.wantSuffix) {
				t.Errorf("warningText() = %q, want suffix %q", got, tt.wantSuffix)
			}
		})
	}
}

func TestActualDefault(t *testing.T) {
	if Actual().IsDeprecated() {
		t.Error("Actual().IsDeprecated() = true, want false")
	}
	handler := func(ctx context.Context, q struct{}) (struct{}, error) {
		return struct{}{}, nil
	}
	if !NewDeprecated(handler).actuality().IsDeprecated() {
		t.Error("Deprecated actuality should report deprecated")
	}
}
