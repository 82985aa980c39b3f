// Package instruments wires every supported instrument's rule set into a
// single rules.Registry. Kept separate from package rules itself so that
// each rules/<instrument> package can import rules without an import
// cycle.
package instruments

import (
	"github.com/GeminiDRSoftware/GeminiCalMgr/rules"
	"github.com/GeminiDRSoftware/GeminiCalMgr/rules/f2"
	"github.com/GeminiDRSoftware/GeminiCalMgr/rules/ghost"
	"github.com/GeminiDRSoftware/GeminiCalMgr/rules/gmos"
	"github.com/GeminiDRSoftware/GeminiCalMgr/rules/gnirs"
	"github.com/GeminiDRSoftware/GeminiCalMgr/rules/gpi"
	"github.com/GeminiDRSoftware/GeminiCalMgr/rules/gsaoi"
	"github.com/GeminiDRSoftware/GeminiCalMgr/rules/michelle"
	"github.com/GeminiDRSoftware/GeminiCalMgr/rules/nici"
	"github.com/GeminiDRSoftware/GeminiCalMgr/rules/nifs"
	"github.com/GeminiDRSoftware/GeminiCalMgr/rules/niri"
)

// NewRegistry builds the rules.Registry wiring every supported instrument's
// RuleSet under every header instrument name it is known by (GMOS's two
// site variants, MICHELLE's two historical capitalizations).
func NewRegistry() *rules.Registry {
	r := rules.NewRegistry()
	r.Register([]string{"GMOS-N", "GMOS-S"}, gmos.New())
	r.Register([]string{"GHOST"}, ghost.New())
	r.Register([]string{"GNIRS"}, gnirs.New())
	r.Register([]string{"NIRI"}, niri.New())
	r.Register([]string{"GSAOI"}, gsaoi.New())
	r.Register([]string{"michelle", "Michelle"}, michelle.New())
	r.Register([]string{"NICI"}, nici.New())
	r.Register([]string{"NIFS"}, nifs.New())
	r.Register([]string{"F2"}, f2.New())
	r.Register([]string{"GPI"}, gpi.New())
	return r
}
