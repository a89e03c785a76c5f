package deploy

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/artpar/panelship/internal/core/compose"
	"github.com/artpar/panelship/internal/shell/docker"
	"github.com/artpar/panelship/internal/shell/onepanel"
	"github.com/artpar/panelship/internal/shell/store"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrConfiguration is returned before any side effect when a project
	// lacks a base name, a target host or a target stack path.
	ErrConfiguration = errors.New("deployment is not configured")

	// ErrStackNotFound is returned when no remote stack has the configured path.
	ErrStackNotFound = errors.New("no stack matches the configured path")

	// ErrArtifact is returned when the local image archive cannot be created.
	ErrArtifact = errors.New("build artifact failure")

	// ErrEngineUnavailable is returned when no container engine is wired.
	ErrEngineUnavailable = errors.New("container engine is not configured")
)

// Stage names one step of the pipeline.
type Stage string

const (
	StageConfigure       Stage = "configure"
	StageInferVersion    Stage = "infer_version"
	StageBuild           Stage = "build"
	StagePackage         Stage = "package"
	StageTransfer        Stage = "transfer"
	StageActivate        Stage = "activate"
	StageResolveStack    Stage = "resolve_stack"
	StageFetchDefinition Stage = "fetch_definition"
	StagePatch           Stage = "patch"
	StageWriteBack       Stage = "write_back"
	StageRestart         Stage = "restart"
)

// Stages lists the ten pipeline stages in execution order.
var Stages = []Stage{
	StageInferVersion,
	StageBuild,
	StagePackage,
	StageTransfer,
	StageActivate,
	StageResolveStack,
	StageFetchDefinition,
	StagePatch,
	StageWriteBack,
	StageRestart,
}

// StageError tags a failure with the stage it happened in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("deploy stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the stage err failed in, or "" when err carries none.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// =============================================================================
// Classification
// =============================================================================

// ErrorKind is the coarse class of a deploy failure.
type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration"
	KindTransport     ErrorKind = "transport"
	KindAuth          ErrorKind = "auth"
	KindAPI           ErrorKind = "api"
	KindNotFound      ErrorKind = "not_found"
	KindPatch         ErrorKind = "patch"
	KindIO            ErrorKind = "io"
	KindEngine        ErrorKind = "engine"
	KindInternal      ErrorKind = "internal"
)

// Kind classifies err. It returns "" for nil.
func Kind(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var apiErr *onepanel.APIError
	var patchErr *compose.PatchError
	var pathErr *fs.PathError
	var dockerErr *docker.DockerError

	switch {
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrStackNotFound), errors.Is(err, store.ErrNotFound):
		return KindNotFound
	case errors.Is(err, onepanel.ErrUnauthorized):
		return KindAuth
	case errors.Is(err, onepanel.ErrTransport),
		errors.Is(err, docker.ErrConnectionFailed),
		errors.Is(err, ErrEngineUnavailable):
		return KindTransport
	case errors.As(err, &apiErr),
		errors.Is(err, onepanel.ErrMalformedEnvelope),
		errors.Is(err, onepanel.ErrHTTPStatus),
		errors.Is(err, onepanel.ErrUnexpectedPayload):
		return KindAPI
	case errors.As(err, &patchErr), errors.Is(err, compose.ErrPatchBrokeDocument):
		return KindPatch
	case errors.Is(err, ErrArtifact), errors.As(err, &pathErr):
		return KindIO
	case errors.As(err, &dockerErr):
		return KindEngine
	default:
		return KindInternal
	}
}
