//go:build !windows

package power

import (
	"log/slog"

	"github.com/Code4neverCompany/Code4never-AutoLauncher-AlphaVersion/internal/core"
)

// New returns the platform power controller. Only Windows has a real
// implementation; elsewhere scheduling runs without power integration.
func New(logger *slog.Logger) core.PowerController {
	return &Noop{Logger: logger}
}
