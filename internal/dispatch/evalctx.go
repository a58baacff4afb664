package dispatch

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/scengridgo/internal/plan"
	"github.com/vk/scengridgo/internal/project"
	"github.com/vk/scengridgo/internal/workspace"
)

// buildEvalContext creates the HCL evaluation context for a unit's argument
// block. Step arguments can reference the sandbox paths, the scenario's
// identity, its materialized variables, and the project.
func buildEvalContext(unit *plan.RunUnit, sb workspace.Sandbox, proj *project.Project) *hcl.EvalContext {
	sc := unit.Scenario
	vars := map[string]cty.Value{
		"workdir": cty.StringVal(sb.Dir),
		"exedir":  cty.StringVal(sb.ExeDir),
		"logdir":  cty.StringVal(sb.LogDir),
		"outdir":  cty.StringVal(sb.OutDir),
		"scenario": cty.ObjectVal(map[string]cty.Value{
			"name":      cty.StringVal(sc.Name),
			"subdir":    cty.StringVal(sc.Subdir),
			"type":      cty.StringVal(string(sc.Type)),
			"generator": cty.StringVal(sc.Generator),
		}),
		"project": cty.ObjectVal(map[string]cty.Value{
			"name":          cty.StringVal(proj.Name),
			"dir":           cty.StringVal(proj.Dir),
			"workspace":     cty.StringVal(proj.Workspace),
			"reference_dir": cty.StringVal(proj.ReferenceDir),
		}),
		"vars": configVars(unit),
	}
	return &hcl.EvalContext{Variables: vars}
}

func configVars(unit *plan.RunUnit) cty.Value {
	if unit.Config == nil || len(unit.Config.Vars) == 0 {
		return cty.MapValEmpty(cty.String)
	}
	m := make(map[string]cty.Value, len(unit.Config.Vars))
	for _, v := range unit.Config.Vars {
		m[v.Name] = cty.StringVal(v.Value)
	}
	return cty.MapVal(m)
}
