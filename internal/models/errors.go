// Package models defines the data structures for lender policy review.
package models

import (
	"errors"
)

// Common errors
var (
	ErrUnknownField           = errors.New("unknown field")
	ErrInvalidFieldValue      = errors.New("invalid field value")
	ErrProgramIndexOutOfRange = errors.New("program index out of range")
	ErrRuleIndexOutOfRange    = errors.New("rule index out of range")
	ErrProgramNotFound        = errors.New("program not found")
	ErrRuleNotFound           = errors.New("rule not found")
	ErrCriteriaNotObject      = errors.New("criteria must be a key/value object")
	ErrCriteriaEmpty          = errors.New("criteria must not be empty")
	ErrNotPDF                 = errors.New("File must be a PDF")
	ErrFileTooLarge           = errors.New("File size must be less than 10MB")
	ErrEmptyFile              = errors.New("file is empty")
)

// MaxUploadBytes is the largest policy PDF the extraction service accepts.
const MaxUploadBytes = 10 * 1024 * 1024
