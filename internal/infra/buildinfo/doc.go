// Package buildinfo exposes build-time version information.
//
// Values are injected with ldflags:
//
//	go build -ldflags "-X github.com/yndnr/diagsave-go/internal/infra/buildinfo.Version=v1.0.0 \
//	  -X github.com/yndnr/diagsave-go/internal/infra/buildinfo.Commit=$(git rev-parse --short HEAD)"
//
// When Commit is not injected the VCS revision recorded by the Go
// toolchain is used.
package buildinfo
