// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/pkgd/internal/adapters/compose"
	_ "go.trai.ch/pkgd/internal/adapters/config"
	_ "go.trai.ch/pkgd/internal/adapters/contentstore"
	_ "go.trai.ch/pkgd/internal/adapters/docker"
	_ "go.trai.ch/pkgd/internal/adapters/fs"
	_ "go.trai.ch/pkgd/internal/adapters/kvstore"
	_ "go.trai.ch/pkgd/internal/adapters/logger"
	_ "go.trai.ch/pkgd/internal/adapters/registry"
	_ "go.trai.ch/pkgd/internal/adapters/release"
	_ "go.trai.ch/pkgd/internal/adapters/telemetry/progrock"
	// Register app and engine nodes.
	_ "go.trai.ch/pkgd/internal/app"
	_ "go.trai.ch/pkgd/internal/engine/acquirer"
	_ "go.trai.ch/pkgd/internal/engine/network"
	_ "go.trai.ch/pkgd/internal/engine/pipeline"
	_ "go.trai.ch/pkgd/internal/engine/resolver"
)
