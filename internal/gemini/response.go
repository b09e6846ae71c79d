package gemini

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	FallbackReply    = "Sorry, I couldn't understand that."
	NetworkErrorText = "⚠️ Network error. Try again later."

	quotaSignature = "Quota exceeded"
)

type ResultKind int

const (
	// Malformed is valid JSON carrying neither candidate text nor an error.
	Malformed ResultKind = iota
	Success
	ProviderError
)

func (k ResultKind) String() string {
	switch k {
	case Success:
		return "success"
	case ProviderError:
		return "provider_error"
	default:
		return "malformed"
	}
}

// Result is a parsed generateContent response. Message holds the provider
// error message even when candidate text takes precedence.
type Result struct {
	Kind    ResultKind
	Text    string
	Message string
}

// Reply resolves the text shown to the user.
func (r Result) Reply() string {
	switch r.Kind {
	case Success:
		return r.Text
	case ProviderError:
		return r.Message
	default:
		return FallbackReply
	}
}

func (r Result) QuotaExceeded() bool {
	return strings.Contains(r.Message, quotaSignature)
}

type candidate struct {
	Content *struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"content"`
}

type providerError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

var errNotJSON = errors.New("body is not valid JSON")

// ParseResponse classifies a response body. It only fails when the body is
// not JSON at all; valid JSON of any other shape is Malformed. The error and
// candidates fields are decoded independently so one bad field does not hide
// the other.
func ParseResponse(body []byte) (Result, error) {
	if !json.Valid(body) {
		return Result{}, fmt.Errorf("parse response: %w", errNotJSON)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return Result{Kind: Malformed}, nil
	}

	var res Result
	var perr providerError
	if raw, ok := fields["error"]; ok && json.Unmarshal(raw, &perr) == nil {
		res.Message = perr.Message
	}
	var candidates []candidate
	if raw, ok := fields["candidates"]; ok && json.Unmarshal(raw, &candidates) == nil && len(candidates) > 0 {
		if c := candidates[0].Content; c != nil && len(c.Parts) > 0 {
			res.Text = c.Parts[0].Text
		}
	}

	switch {
	case res.Text != "":
		res.Kind = Success
	case res.Message != "":
		res.Kind = ProviderError
	default:
		res.Kind = Malformed
	}
	return res, nil
}
