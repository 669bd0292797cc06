package app

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/pkgd/internal/ui/output"
	"go.trai.ch/pkgd/internal/ui/style"
)

func (a *App) renderer() *lipgloss.Renderer {
	return lipgloss.NewRenderer(a.out, termenv.WithProfile(output.ColorProfile()))
}

func (a *App) println(line string) {
	_, _ = fmt.Fprintln(a.out, line)
}

func (a *App) printInstall(res *domain.InstallResult) {
	r := a.renderer()
	ok := r.NewStyle().Foreground(style.Green).Render(style.Check)
	skip := r.NewStyle().Foreground(style.Yellow).Render(style.Warning)
	dim := r.NewStyle().Foreground(style.Slate)

	for _, name := range res.Resolved.Names() {
		if err, skipped := res.Skipped[name]; skipped {
			a.println(fmt.Sprintf("%s %s %s", skip, name, dim.Render("skipped: "+err.Error())))
			continue
		}
		art, acquired := res.Artifacts[name]
		if !acquired {
			continue
		}
		line := fmt.Sprintf("%s %s %s", ok, name, res.Resolved[name].Version)
		if art.Cached {
			line += " " + dim.Render("(cached)")
		}
		a.println(line)
	}
	if res.Network != nil {
		a.printReport(res.Network)
	}
}

func (a *App) printResolved(set domain.ResolvedDependencySet) {
	dim := a.renderer().NewStyle().Foreground(style.Slate)
	for _, name := range set.Names() {
		rec := set[name]
		a.println(fmt.Sprintf("%s %s %s", name, rec.Version, dim.Render(rec.ContentLocator)))
	}
}

func (a *App) printReport(report *domain.ReconcileReport) {
	r := a.renderer()
	summary := fmt.Sprintf("network %s: %d connected, %d unchanged", report.State,
		len(report.Connected), len(report.Unchanged))
	if len(report.Disconnected) > 0 {
		summary += fmt.Sprintf(", %d disconnected", len(report.Disconnected))
	}
	if report.OK() {
		a.println(r.NewStyle().Foreground(style.Green).Render(style.Check) + " " + summary)
		return
	}

	fail := r.NewStyle().Foreground(style.Red).Render(style.Cross)
	a.println(fmt.Sprintf("%s %s, %d failed", fail, summary, len(report.Failed)))
	for _, name := range slices.Sorted(maps.Keys(report.Failed)) {
		msg := strings.SplitN(report.Failed[name].Error(), "\n", 2)[0]
		a.println(fmt.Sprintf("  %s %s", name, r.NewStyle().Foreground(style.Slate).Render(msg)))
	}
}

func (a *App) printState(name string, st domain.InstallState) {
	r := a.renderer()
	icon := style.Dot
	if st == domain.StateUninstalled {
		icon = style.Circle
	}
	color := style.StateColor(st.String())
	a.println(fmt.Sprintf("%s %s %s",
		r.NewStyle().Foreground(color).Render(icon),
		name,
		r.NewStyle().Foreground(color).Render(st.String()),
	))
}
