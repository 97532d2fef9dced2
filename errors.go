package main

// errors module
//
// Copyright (c) 2023 - Valentin Kuznetsov <vkuznet@gmail.com>
//

import (
	"errors"
	"fmt"
	"time"
)

const (
	GenericError      = iota + 100 // generic MLBoard error
	StorageError                   // 101 storage error
	BadRequest                     // 102 bad request
	JsonMarshal                    // 103 json.Marshal error
	ModelRecordError               // 104 model record error
	PresetRecordError              // 105 preset record error
	FileIOError                    // 106 file IO error
	NotFoundError                  // 107 record not found
	BusyError                      // 108 prediction in progress
	UpstreamError                  // 109 ML endpoint error
	RateLimitError                 // 110 too many requests
)

// helper function to return human error message for given MLBoard error code
func errorMessage(code int) string {
	switch code {
	case 0:
		return ""
	case GenericError:
		return "generic error"
	case StorageError:
		return "storage error"
	case BadRequest:
		return "bad request"
	case JsonMarshal:
		return "JSON marshal error"
	case ModelRecordError:
		return "model record error"
	case PresetRecordError:
		return "preset record error"
	case FileIOError:
		return "file IO error"
	case NotFoundError:
		return "record not found"
	case BusyError:
		return "prediction in progress"
	case UpstreamError:
		return "ML endpoint error"
	case RateLimitError:
		return "too many requests"
	}
	return fmt.Sprintf("Not Implemented error for code %d", code)
}

// ErrNotFound is returned by registries for unknown record ids
var ErrNotFound = errors.New("record not found")

// InvalidURLError represents malformed or empty endpoint URL
type InvalidURLError struct {
	URL string
	Err error
}

func (e *InvalidURLError) Error() string {
	if e.URL == "" {
		return "API URL is required"
	}
	return fmt.Sprintf("Invalid URL format: %s", e.URL)
}

func (e *InvalidURLError) Unwrap() error { return e.Err }

// NetworkError represents request which could not be sent or timed out
type NetworkError struct {
	URL     string
	Timeout bool          // request deadline has been exceeded
	After   time.Duration // request timeout
	Err     error
}

func (e *NetworkError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("request to %s timed out after %v", e.URL, e.After)
	}
	return fmt.Sprintf("unable to reach %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPStatusError represents non-success status code of remote service
type HTTPStatusError struct {
	StatusCode int
	StatusText string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("API error: %d %s - %s", e.StatusCode, e.StatusText, e.Body)
}

// ParseError represents response body which is not valid JSON
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unable to parse API response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
