// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package validation

import (
	"strings"
	"testing"
)

type testRequest struct {
	SiteID    int64  `json:"site_id" validate:"required,gt=0"`
	DateFor   string `json:"date_for" validate:"omitempty,datefor"`
	ErrorType string `json:"type" validate:"omitempty,errortype"`
	Limit     int    `json:"limit" validate:"min=0,max=1000"`
}

func TestValidateStruct(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		req       testRequest
		wantField string
		wantTag   string
	}{
		{name: "valid", req: testRequest{SiteID: 1, DateFor: "2020-03-02", ErrorType: "GRADES"}},
		{name: "valid without optional fields", req: testRequest{SiteID: 7}},
		{name: "missing site", req: testRequest{}, wantField: "site_id", wantTag: "required"},
		{name: "bad date", req: testRequest{SiteID: 1, DateFor: "03/02/2020"}, wantField: "date_for", wantTag: "datefor"},
		{name: "bad error type", req: testRequest{SiteID: 1, ErrorType: "NETWORK"}, wantField: "type", wantTag: "errortype"},
		{name: "limit too large", req: testRequest{SiteID: 1, Limit: 5000}, wantField: "limit", wantTag: "max"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateStruct(&tt.req)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("ValidateStruct() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("ValidateStruct() = nil, want error")
			}
			got := err.Errors()
			if len(got) != 1 {
				t.Fatalf("got %d errors, want 1: %v", len(got), err)
			}
			if got[0].Field() != tt.wantField || got[0].Tag() != tt.wantTag {
				t.Errorf("error = %s/%s, want %s/%s", got[0].Field(), got[0].Tag(), tt.wantField, tt.wantTag)
			}
		})
	}
}

func TestToAPIError(t *testing.T) {
	t.Parallel()

	single := ValidateStruct(&testRequest{SiteID: 1, DateFor: "yesterday"})
	apiErr := single.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q", apiErr.Code)
	}
	if apiErr.Message != "date_for must be a date in YYYY-MM-DD format" {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if apiErr.Details["field"] != "date_for" {
		t.Errorf("Details = %v", apiErr.Details)
	}

	multi := ValidateStruct(&testRequest{Limit: -1}).ToAPIError()
	if !strings.Contains(multi.Message, "site_id: site_id is required") ||
		!strings.Contains(multi.Message, "limit: limit must be at least 0") {
		t.Errorf("Message = %q", multi.Message)
	}
	fields, ok := multi.Details["fields"].([]map[string]interface{})
	if !ok || len(fields) != 2 {
		t.Errorf("Details = %v", multi.Details)
	}

	empty := (&RequestValidationError{}).ToAPIError()
	if empty.Message != "Validation failed" {
		t.Errorf("empty Message = %q", empty.Message)
	}
}

func TestGetValidatorSingleton(t *testing.T) {
	t.Parallel()

	if GetValidator() != GetValidator() {
		t.Error("GetValidator must return the same instance")
	}
}
