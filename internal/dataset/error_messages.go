package dataset

// error_messages.go maps load, filter and export failures to short messages
// with a code users can quote when reporting a problem.
//
// # Schema Errors (SCH001)
//
//	SCH001 - Schema key missing: data_format.yaml lacks a section or field
//	         Action: Add the missing key to the schema file
//
// # Table Errors (CSV001-CSV099)
//
//	CSV001 - File not found: a dataset file or directory does not exist
//	         Action: Check the dataset directory path
//	CSV002 - Missing column: the index column is not in the CSV header
//	         Action: Check the CSV header against the schema
//	CSV003 - Duplicate index: an identifier appears twice
//	         Action: Remove the repeated rows
//	CSV004 - Invalid CSV: rows do not parse as comma-separated values
//	         Patterns: "invalid csv"
//	CSV005 - Empty file: the CSV has no header row
//	         Patterns: "empty file"
//
// # Literal Errors (LIT001)
//
//	LIT001 - Invalid literal: a cell or defects value is not literal syntax
//	         Action: Fix the value in descriptors.csv
//
// # Archive Errors (ARC001-ARC099)
//
//	ARC001 - Bad entry name: an archive member does not end in .cif
//	ARC002 - Incomplete archive: requested structures are missing
//	ARC003 - Not ASCII: a structure file holds non-ASCII bytes
//	ARC004 - No structure: a CIF file has no cell or atom sites
//	ARC005 - Unsupported entry: a structure member is not a file or link
//	ARC006 - Unresolved link: a link member points at no earlier structure
//
// # Assembly Errors (ASM001)
//
//	ASM001 - Missing structure: a described structure has no CIF file
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Connection refused
//	        Patterns: "connection refused"
//	DB002 - Authentication failed
//	        Patterns: "password authentication failed"
//	DB003 - Table missing
//	        Patterns: "does not exist" (SQLSTATE 42P01)
//	DB004 - Duplicate key
//	        Patterns: "duplicate key"
//	DB005 - Timeout
//	        Patterns: "timeout"
//
// # Other (ERR000-ERR001)
//
//	ERR001 - Cancelled: the run was interrupted
//	ERR000 - Unknown error: check the log for the technical error
//
// Sentinel errors are matched with errors.Is first, in table order. Errors
// without a sentinel fall back to case-insensitive substring patterns.

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/JonMunkholm/defectdata/internal/archive"
	"github.com/JonMunkholm/defectdata/internal/crystal"
	"github.com/JonMunkholm/defectdata/internal/literal"
	"github.com/JonMunkholm/defectdata/internal/schema"
	"github.com/JonMunkholm/defectdata/internal/table"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorSentinel struct {
	target error
	msg    UserMessage
}

// errorSentinels is checked before errorPatterns, in order. fs.ErrNotExist
// stays near the end so wrapped domain errors are reported first.
var errorSentinels = []errorSentinel{
	{schema.ErrMissingKey, UserMessage{
		Message: "The schema does not define a required column",
		Action:  "Add the missing section or field to data_format.yaml",
		Code:    "SCH001",
	}},
	{ErrMissingStructure, UserMessage{
		Message: "A described structure has no CIF file",
		Action:  "Add the structure to initial.tar.gz or remove its row from defects.csv",
		Code:    "ASM001",
	}},
	{archive.ErrBadEntryName, UserMessage{
		Message: "The archive contains a file that is not a .cif structure",
		Action:  "Remove non-CIF members from the archive",
		Code:    "ARC001",
	}},
	{archive.ErrIncomplete, UserMessage{
		Message: "Not all requested structures were found in the archive",
		Action:  "Check the index against the archive contents",
		Code:    "ARC002",
	}},
	{archive.ErrNotASCII, UserMessage{
		Message: "A structure file contains non-ASCII characters",
		Action:  "Re-export the CIF files as plain ASCII",
		Code:    "ARC003",
	}},
	{crystal.ErrNoStructure, UserMessage{
		Message: "A CIF file does not describe a crystal structure",
		Action:  "Check the file has cell parameters and atom sites",
		Code:    "ARC004",
	}},
	{archive.ErrUnsupportedEntry, UserMessage{
		Message: "The archive contains a structure entry that is not a file",
		Action:  "Rebuild the archive from regular .cif files",
		Code:    "ARC005",
	}},
	{archive.ErrUnresolvedLink, UserMessage{
		Message: "A linked structure in the archive points at a missing file",
		Action:  "Rebuild the archive without links, or place link targets first",
		Code:    "ARC006",
	}},
	{literal.ErrSyntax, UserMessage{
		Message: "A descriptor value is not a valid literal",
		Action:  "Fix the cell or defects value in descriptors.csv",
		Code:    "LIT001",
	}},
	{table.ErrDuplicateIndex, UserMessage{
		Message: "An identifier appears more than once",
		Action:  "Remove the repeated rows",
		Code:    "CSV003",
	}},
	{table.ErrMissingColumn, UserMessage{
		Message: "A required column is missing from the CSV header",
		Action:  "Check the CSV header against the schema",
		Code:    "CSV002",
	}},
	{fs.ErrNotExist, UserMessage{
		Message: "A dataset file was not found",
		Action:  "Check the dataset directory contains defects.csv, descriptors.csv and initial.tar.gz",
		Code:    "CSV001",
	}},
	{context.Canceled, UserMessage{
		Message: "The run was cancelled",
		Action:  "Run the command again",
		Code:    "ERR001",
	}},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user
// messages. The first match wins.
var errorPatterns = []errorPattern{
	{"invalid csv", UserMessage{
		Message: "The file is not a valid CSV",
		Action:  "Ensure every row has the same number of comma-separated fields",
		Code:    "CSV004",
	}},
	{"empty file", UserMessage{
		Message: "The CSV file is empty",
		Action:  "Provide a file with a header row",
		Code:    "CSV005",
	}},
	{"connection refused", UserMessage{
		Message: "Unable to connect to database",
		Action:  "Check DATABASE_URL and that the server is running",
		Code:    "DB001",
	}},
	{"password authentication failed", UserMessage{
		Message: "The database rejected the credentials",
		Action:  "Check the user and password in DATABASE_URL",
		Code:    "DB002",
	}},
	{"does not exist", UserMessage{
		Message: "The export table does not exist",
		Action:  "Create the table or set EXPORT_STRUCTURES_TABLE and EXPORT_DEFECTS_TABLE",
		Code:    "DB003",
	}},
	{"duplicate key", UserMessage{
		Message: "A record with this ID already exists",
		Action:  "Clear the export table before exporting again",
		Code:    "DB004",
	}},
	{"timeout", UserMessage{
		Message: "Operation timed out",
		Action:  "Please try again later",
		Code:    "DB005",
	}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the log for details",
	Code:    "ERR000",
}

// MapError converts an error chain to a user-facing message. A nil error
// maps to the zero UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, es := range errorSentinels {
		if errors.Is(err, es.target) {
			return es.msg
		}
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
