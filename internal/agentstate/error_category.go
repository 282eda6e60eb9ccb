// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package agentstate

import "strings"

// ErrorCategory classifies an agent-reported error by substring match
// against a fixed vocabulary, checked in priority order.
type ErrorCategory string

const (
	CategoryUnauthorized ErrorCategory = "unauthorized"
	CategoryOutOfCredits ErrorCategory = "out_of_credits"
	CategoryRateLimited  ErrorCategory = "rate_limited"
	CategoryNoInternet   ErrorCategory = "no_internet"
	CategoryServerError  ErrorCategory = "server_error"
	CategoryOther        ErrorCategory = "other"
)

var unauthorizedMarkers = []string{
	"authentication_error", "invalid api key", "invalid_api_key", "permission_error",
}

var outOfCreditsMarkers = []string{
	"billing", "insufficient_credits", "insufficient credits", "out of credits", "credit", "payment_required",
}

var rateLimitedMarkers = []string{
	"rate_limit_error", "rate limit", "rate_limit", "too many requests", "429",
}

var noInternetMarkers = []string{
	"connection refused", "connection reset", "dns", "timeout", "timed out",
	"no internet", "network", "econnrefused", "enotfound",
}

var serverErrorMarkers = []string{
	"api_error", "overloaded_error", "overloaded", "internal_error",
	"internal server error", "server_error", "500", "502", "503",
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// ClassifyErrorDetail classifies a raw error detail string into an
// ErrorCategory, checking the vocabulary in fixed priority order.
func ClassifyErrorDetail(detail string) ErrorCategory {
	lower := strings.ToLower(detail)
	switch {
	case containsAny(lower, unauthorizedMarkers):
		return CategoryUnauthorized
	case containsAny(lower, outOfCreditsMarkers):
		return CategoryOutOfCredits
	case containsAny(lower, rateLimitedMarkers):
		return CategoryRateLimited
	case containsAny(lower, noInternetMarkers):
		return CategoryNoInternet
	case containsAny(lower, serverErrorMarkers):
		return CategoryServerError
	default:
		return CategoryOther
	}
}

// String returns the canonical snake_case string for the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// ParseErrorCategory parses the canonical string back into an ErrorCategory.
// Every String() output parses back to the same category.
func ParseErrorCategory(s string) (ErrorCategory, bool) {
	switch ErrorCategory(s) {
	case CategoryUnauthorized, CategoryOutOfCredits, CategoryRateLimited,
		CategoryNoInternet, CategoryServerError, CategoryOther:
		return ErrorCategory(s), true
	default:
		return "", false
	}
}
