// Package registry provides the central "glue" between project files and
// compiled action code.
//
// The Registry maps the action type named by a step block's first label
// (e.g., `step "modelrun" "policy"`) to the Go handler implementing it.
// During application startup the registry is populated by the core action
// modules and then checked against the loaded project, so a step naming an
// unknown action fails before anything is dispatched.
package registry
