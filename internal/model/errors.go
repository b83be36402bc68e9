package model

import "encoding/json"

// ErrorInfo holds structured failure information for a Job.
type ErrorInfo struct {
	FailedStep string `json:"failed_step"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
	FailedAt   string `json:"failed_at"`
}

// ToJSON serializes ErrorInfo to a JSON string.
func (e ErrorInfo) ToJSON() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// ParseErrorInfo decodes the error_info column of a job. It returns the zero
// value for empty or malformed input.
func ParseErrorInfo(s *string) ErrorInfo {
	var info ErrorInfo
	if s == nil || *s == "" {
		return info
	}
	_ = json.Unmarshal([]byte(*s), &info)
	return info
}
