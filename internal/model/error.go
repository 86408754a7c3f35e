package model

import "fmt"

type NotFoundError struct{}

func (e NotFoundError) Error() string {
	return "not found"
}

type MalformedRequestError struct {
	Param string
}

func (e MalformedRequestError) Error() string {
	return "malformed request param: " + e.Param
}

// StartupFailureError reports that the server under test exited before
// reaching READY. This is the expected outcome for invalid-fixture tests and
// a defect otherwise.
type StartupFailureError struct {
	ExitCode int
	Output   string
}

func (e StartupFailureError) Error() string {
	return fmt.Sprintf("server exited with code %d before becoming ready", e.ExitCode)
}

// InspectionUnavailableError reports that the platform lacks the requested
// process introspection capability. Sections downgrade to inconclusive on it,
// never to failed.
type InspectionUnavailableError struct {
	Reason string
}

func (e InspectionUnavailableError) Error() string {
	return "process inspection unavailable: " + e.Reason
}
