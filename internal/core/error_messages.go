// Package core provides the merge and incremental-publish logic.
//
// # Error Codes Reference
//
// This file defines user-facing error messages with codes for the admin API.
// Operators can quote a code when reporting a failed run.
//
// # Input Errors (IN001-IN099)
//
//	IN001 - Invalid year: year must be four digits
//	        Patterns: "invalid year"
//
//	IN002 - Invalid region: region must be a state FIPS code or All
//	        Patterns: "invalid region"
//
//	IN003 - Invalid target: project, dataset and table must be set and plain identifiers
//	        Patterns: "invalid target"
//
//	IN004 - Target override refused: admin runs may only name another table
//	        when REQUIRE_API_KEY is on
//	        Patterns: "target override not allowed"
//
// # Key Errors (KEY001-KEY099)
//
//	KEY001 - Missing key column: a source lacks the column the merge keys on
//	         Action: Check the source URL or query returns the expected columns
//	         Patterns: "missing key column"
//
// # Source Errors (SRC001-SRC099)
//
//	SRC001 - Source download failed
//	         Patterns: "fetch csv"
//
//	SRC002 - Source returned an unexpected HTTP status
//	         Patterns: "unexpected status"
//
//	SRC003 - Source is not a valid CSV
//	         Patterns: "parse csv"
//
// # Warehouse Errors (WH001-WH099)
//
//	WH001 - Warehouse query or load failed
//	        Patterns: "bigquery", "postgres"
//
//	WH002 - Target table not found
//	        Patterns: "table not found"
//
//	WH003 - Database unreachable
//	        Patterns: "connection refused"
//
// # Update Errors (UPD001-UPD099)
//
//	UPD001 - Another load or update is running
//	         Patterns: "update already in progress"
//
//	UPD002 - Some years failed to publish
//	         Patterns: "years failed"
//
//	UPD003 - Request cancelled
//	         Patterns: "context canceled"
//
//	UPD004 - Request timed out
//	         Patterns: "context deadline exceeded"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches. Check the logs for the run_id.
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns are defined
// before general ones. A partial-update error embeds its per-year causes,
// which is why "years failed" is checked first.
package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// =========================================================================
	// Update Errors (UPD001-UPD004)
	// =========================================================================
	{
		pattern: "years failed",
		msg: UserMessage{
			Message: "Some years could not be published",
			Action:  "Review the failed years in the report and run the update again",
			Code:    "UPD002",
		},
	},
	{
		pattern: "update already in progress",
		msg: UserMessage{
			Message: "Another load or update is running",
			Action:  "Wait for the current run to finish and try again",
			Code:    "UPD001",
		},
	},

	// =========================================================================
	// Input Errors (IN001-IN004)
	// =========================================================================
	{
		pattern: "invalid year",
		msg: UserMessage{
			Message: "Invalid year",
			Action:  "Use a four-digit year such as 2021",
			Code:    "IN001",
		},
	},
	{
		pattern: "invalid region",
		msg: UserMessage{
			Message: "Invalid region",
			Action:  "Use a state FIPS code such as 06, or All",
			Code:    "IN002",
		},
	},
	{
		pattern: "invalid target",
		msg: UserMessage{
			Message: "Invalid target table",
			Action:  "Provide project, dataset and table using letters, digits, - and _",
			Code:    "IN003",
		},
	},
	{
		pattern: "target override not allowed",
		msg: UserMessage{
			Message: "Admin runs may only write to the configured table",
			Action:  "Drop the project, dataset and table parameters or enable REQUIRE_API_KEY",
			Code:    "IN004",
		},
	},

	// =========================================================================
	// Key Errors (KEY001)
	// =========================================================================
	{
		pattern: "missing key column",
		msg: UserMessage{
			Message: "A source is missing the column the merge keys on",
			Action:  "Check the source URL or query returns the expected columns",
			Code:    "KEY001",
		},
	},

	// =========================================================================
	// Source Errors (SRC001-SRC003)
	// =========================================================================
	{
		pattern: "unexpected status",
		msg: UserMessage{
			Message: "Source returned an unexpected HTTP status",
			Action:  "Verify the source URL is still published",
			Code:    "SRC002",
		},
	},
	{
		pattern: "parse csv",
		msg: UserMessage{
			Message: "Source is not a valid CSV",
			Action:  "Verify the source URL points at a CSV file",
			Code:    "SRC003",
		},
	},
	{
		pattern: "fetch csv",
		msg: UserMessage{
			Message: "Source download failed",
			Action:  "Please try again in a few moments",
			Code:    "SRC001",
		},
	},

	// =========================================================================
	// Request Errors (UPD003-UPD004)
	// =========================================================================
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPD003",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try again or run the update from the CLI",
			Code:    "UPD004",
		},
	},

	// =========================================================================
	// Warehouse Errors (WH001-WH003)
	// =========================================================================
	{
		pattern: "table not found",
		msg: UserMessage{
			Message: "Target table not found",
			Action:  "Run a full load to create the table",
			Code:    "WH002",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the warehouse",
			Action:  "Please try again in a few moments",
			Code:    "WH003",
		},
	},
	{
		pattern: "bigquery",
		msg: UserMessage{
			Message: "Warehouse operation failed",
			Action:  "Check the logs for the run and the warehouse job history",
			Code:    "WH001",
		},
	},
	{
		pattern: "postgres",
		msg: UserMessage{
			Message: "Warehouse operation failed",
			Action:  "Check the logs for the run and the database server log",
			Code:    "WH001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or check the logs",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches through known error patterns (case-insensitive) and returns
// the first match. If no pattern matches, a generic fallback message with
// code ERR000 is returned.
//
// Example:
//
//	err := &KeyColumnError{Table: "adi", Column: "county_fips_code"}
//	msg := MapError(err)
//	// msg.Code == "KEY001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern, as opposed to
// the generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	msg := MapError(err)
	return msg.Code != defaultMessage.Code
}
