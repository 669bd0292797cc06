package docker

import "go.trai.ch/pkgd/internal/core/ports"

// NewRuntimeForTest builds a Runtime over a fake engine API.
func NewRuntimeForTest(api engineAPI, logger ports.Logger, opts ...Option) *Runtime {
	return newRuntime(api, logger, opts...)
}

// EngineAPI exposes the engine interface to external tests.
type EngineAPI = engineAPI
