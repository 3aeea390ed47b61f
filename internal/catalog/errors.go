package catalog

import (
	"fmt"
	"net/http"
)

type FetchStage string

const (
	StageFetch FetchStage = "fetch"
	StageParse FetchStage = "parse"
	StageShape FetchStage = "shape"
)

// FetchError reports a failed orphan listing. It is fatal for a run.
type FetchError struct {
	Stage      FetchStage
	URL        string
	StatusCode int
	Reason     string
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Stage == StageFetch && e.StatusCode != 0:
		return fmt.Sprintf("Failed to fetch orphans (%d): %s", e.StatusCode, e.Reason)
	case e.Stage == StageFetch:
		return fmt.Sprintf("Failed to reach %s: %s", e.URL, e.Reason)
	case e.Stage == StageParse:
		return fmt.Sprintf("Invalid JSON from %s: %s", e.URL, e.Reason)
	default:
		return fmt.Sprintf("Unexpected response format (%s)", e.Reason)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// DeleteError reports a failed delete of a single entity.
type DeleteError struct {
	UID        string
	URL        string
	StatusCode int
	Reason     string
	Err        error
}

func (e *DeleteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("Delete failed for uid %s (%d): %s", e.UID, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("Failed to reach %s: %s", e.URL, e.Reason)
}

func (e *DeleteError) Unwrap() error {
	return e.Err
}

func reasonPhrase(resp *http.Response) string {
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return resp.Status
}
