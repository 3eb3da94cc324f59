package portal

import (
	"errors"
	"fmt"
)

var ErrMissingCredentials = errors.New("portal credentials are incomplete")

// AuthError means the session never reached the authenticated landing state.
type AuthError struct {
	Stage string
	Err   error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("login failed at %s: %v", e.Stage, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Stage names the import-modal wait that failed.
type Stage string

const (
	StageOpen    Stage = "open"
	StageText    Stage = "text"
	StagePresent Stage = "present"
	StageVisible Stage = "visible"
)

type NavigationTimeout struct {
	Stage Stage
	Err   error
}

func (e *NavigationTimeout) Error() string {
	return fmt.Sprintf("import modal not ready (stage %s): %v", e.Stage, e.Err)
}

func (e *NavigationTimeout) Unwrap() error { return e.Err }

// Step names a bounded wait inside Executor.Submit.
type Step string

const (
	StepAttach       Step = "attach"
	StepCheckEnabled Step = "check-enabled"
	StepCheck        Step = "check"
	StepClassify     Step = "classify"
	StepCollect      Step = "collect"
	StepDismiss      Step = "dismiss"
	StepCommit       Step = "commit"
)

// UploadStepTimeout is a per-file failure: the batch records the file as
// failed and moves on.
type UploadStepTimeout struct {
	Step Step
	File string
	Err  error
}

func (e *UploadStepTimeout) Error() string {
	return fmt.Sprintf("upload %s: step %s: %v", e.File, e.Step, e.Err)
}

func (e *UploadStepTimeout) Unwrap() error { return e.Err }
