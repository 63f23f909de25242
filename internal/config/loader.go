// Package config loads HCL declaration sets into the engine's IR.
//
// A configuration is a directory of .hcl files holding resource, variable,
// output and provider blocks. Attribute expressions may interpolate variables
// and other resources' attributes; cross-resource references are deferred as
// ref:// markers and resolved against state at apply time.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/lakeforge/lakeforge/internal/diag"
	"github.com/lakeforge/lakeforge/internal/ir"
	"github.com/lakeforge/lakeforge/internal/schema"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Loader parses declaration files against a schema registry.
type Loader struct {
	registry *schema.Registry
}

func NewLoader(registry *schema.Registry) *Loader {
	return &Loader{registry: registry}
}

// Options control variable resolution during a load.
type Options struct {
	VarFiles []string
	// Environ defaults to os.Environ(); tests inject their own.
	Environ []string
}

// Result is a fully loaded and validated configuration.
type Result struct {
	Config           *ir.Config
	ProviderSettings map[string]map[string]any
	Variables        map[string]*Variable
}

var topLevelSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "resource", LabelNames: []string{"kind", "name"}},
		{Type: "variable", LabelNames: []string{"name"}},
		{Type: "output", LabelNames: []string{"name"}},
		{Type: "provider", LabelNames: []string{"name"}},
	},
}

// LoadDir parses every .hcl file in dir, in lexical order.
func (l *Loader) LoadDir(dir string, opts *Options) (*Result, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.hcl"))
	if err != nil {
		return nil, &diag.ParseError{Subject: dir, Detail: "cannot list configuration files", Err: err}
	}
	if len(paths) == 0 {
		return nil, &diag.ParseError{Subject: dir, Detail: "no .hcl configuration files found"}
	}
	sort.Strings(paths)
	return l.LoadFiles(paths, opts)
}

// LoadFiles parses the given declaration files in order.
func (l *Loader) LoadFiles(paths []string, opts *Options) (*Result, error) {
	if opts == nil {
		opts = &Options{}
	}
	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}

	parser := hclparse.NewParser()
	var blocks hcl.Blocks
	for _, path := range paths {
		file, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return nil, &diag.ParseError{Subject: path, Detail: diags.Error()}
		}
		content, diags := file.Body.Content(topLevelSchema)
		if diags.HasErrors() {
			return nil, &diag.ParseError{Subject: path, Detail: diags.Error()}
		}
		blocks = append(blocks, content.Blocks...)
	}

	// First pass: declarations only, so references can be checked before
	// anything is evaluated.
	varDecls := make(map[string]*Variable)
	declared := make(map[string]bool) // resource addresses
	byKind := make(map[string][]string)
	var resourceBlocks, outputBlocks, providerBlocks hcl.Blocks

	for _, block := range blocks {
		switch block.Type {
		case "variable":
			v, err := parseVariableBlock(block)
			if err != nil {
				return nil, err
			}
			if _, dup := varDecls[v.Name]; dup {
				return nil, &diag.ParseError{Subject: block.DefRange.Filename, Detail: fmt.Sprintf("variable %q declared twice", v.Name)}
			}
			varDecls[v.Name] = v
		case "resource":
			kind, name := block.Labels[0], block.Labels[1]
			if _, err := l.registry.Kind(kind); err != nil {
				return nil, &diag.SchemaViolationError{Address: kind + "." + name, Err: err}
			}
			addr := kind + "." + name
			if declared[addr] {
				return nil, &diag.ParseError{Subject: block.DefRange.Filename, Detail: fmt.Sprintf("resource %s declared twice", addr)}
			}
			declared[addr] = true
			byKind[kind] = append(byKind[kind], name)
			resourceBlocks = append(resourceBlocks, block)
		case "output":
			outputBlocks = append(outputBlocks, block)
		case "provider":
			providerBlocks = append(providerBlocks, block)
		}
	}

	varValues, err := resolveVariables(varDecls, opts.VarFiles, environ)
	if err != nil {
		return nil, err
	}

	evalCtx := l.buildEvalContext(varValues, byKind)

	cfg := &ir.Config{Outputs: make(map[string]*ir.Output)}
	for _, block := range resourceBlocks {
		res, err := l.parseResourceBlock(block, declared, varDecls, evalCtx)
		if err != nil {
			return nil, err
		}
		cfg.Resources = append(cfg.Resources, res)
	}

	for _, block := range outputBlocks {
		name := block.Labels[0]
		if _, dup := cfg.Outputs[name]; dup {
			return nil, &diag.ParseError{Subject: block.DefRange.Filename, Detail: fmt.Sprintf("output %q declared twice", name)}
		}
		out, err := l.parseOutputBlock(block, declared, varDecls, evalCtx)
		if err != nil {
			return nil, err
		}
		cfg.Outputs[name] = out
	}

	settings := make(map[string]map[string]any)
	for _, block := range providerBlocks {
		name := block.Labels[0]
		attrs, err := evalAttributes(block.Body, evalCtx)
		if err != nil {
			return nil, &diag.ParseError{Subject: block.DefRange.Filename, Detail: fmt.Sprintf("provider %q: %v", name, err)}
		}
		settings[name] = attrs
	}

	return &Result{Config: cfg, ProviderSettings: settings, Variables: varDecls}, nil
}

// buildEvalContext exposes var.* plus one object per declared resource whose
// attributes all evaluate to ref:// markers. The markers survive string
// interpolation and are resolved against live state during apply.
func (l *Loader) buildEvalContext(varValues map[string]any, byKind map[string][]string) *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(varValues)+len(byKind))

	varAttrs := make(map[string]cty.Value, len(varValues))
	for name, val := range varValues {
		varAttrs[name] = goToCty(val)
	}
	vars["var"] = cty.ObjectVal(varAttrs)

	for kind, names := range byKind {
		kindSchema, _ := l.registry.Kind(kind)
		instances := make(map[string]cty.Value, len(names))
		for _, name := range names {
			addr := kind + "." + name
			attrs := make(map[string]cty.Value)
			for _, attrName := range kindSchema.AttributeNames() {
				attrs[attrName] = cty.StringVal(ir.Ref(addr, attrName))
			}
			instances[name] = cty.ObjectVal(attrs)
		}
		vars[kind] = cty.ObjectVal(instances)
	}

	return &hcl.EvalContext{
		Variables: vars,
		Functions: map[string]function.Function{
			"jsonencode": stdlib.JSONEncodeFunc,
			"format":     stdlib.FormatFunc,
			"pending":    pendingFunc,
		},
	}
}

var pendingFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "label", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		return cty.StringVal(ir.Pending(args[0].AsString())), nil
	},
})

func parseVariableBlock(block *hcl.Block) (*Variable, error) {
	v := &Variable{Name: block.Labels[0]}
	attrs, diags := block.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, &diag.ParseError{Subject: block.DefRange.Filename, Detail: diags.Error()}
	}

	for name, attr := range attrs {
		val, evalDiags := attr.Expr.Value(&hcl.EvalContext{})
		if evalDiags.HasErrors() {
			return nil, &diag.ParseError{Subject: block.DefRange.Filename, Detail: evalDiags.Error()}
		}
		switch name {
		case "default":
			gv, err := ctyToGo(val)
			if err != nil {
				return nil, &diag.ParseError{Subject: block.DefRange.Filename, Detail: err.Error()}
			}
			v.Default = gv
			v.HasDefault = true
		case "description":
			v.Description = val.AsString()
		case "sensitive":
			v.Sensitive = val.True()
		default:
			return nil, &diag.ParseError{Subject: block.DefRange.Filename, Detail: fmt.Sprintf("variable %q: unsupported argument %q", v.Name, name)}
		}
	}
	return v, nil
}

func (l *Loader) parseResourceBlock(block *hcl.Block, declared map[string]bool, varDecls map[string]*Variable, evalCtx *hcl.EvalContext) (*ir.Resource, error) {
	kind, name := block.Labels[0], block.Labels[1]
	addr := kind + "." + name
	kindSchema, _ := l.registry.Kind(kind)

	attrs, diags := block.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, &diag.ParseError{Subject: block.DefRange.Filename, Detail: diags.Error()}
	}

	res := &ir.Resource{
		Kind:       kind,
		Name:       name,
		Provider:   kindSchema.Provider,
		Attributes: make(map[string]any),
	}

	if feAttr, ok := attrs["for_each"]; ok {
		fe, err := parseForEach(feAttr, addr, evalCtx)
		if err != nil {
			return nil, err
		}
		res.ForEach = fe
		delete(attrs, "for_each")

		// Expose each.key / each.value as placeholders; the expansion
		// substitutes per-instance values before planning.
		evalCtx = evalCtx.NewChild()
		evalCtx.Variables = map[string]cty.Value{
			"each": cty.ObjectVal(map[string]cty.Value{
				"key":   cty.StringVal("${each.key}"),
				"value": cty.StringVal("${each.value}"),
			}),
		}
	}

	for attrName, attr := range attrs {
		if attrName == "depends_on" {
			deps, err := parseDependsOn(attr, addr, declared)
			if err != nil {
				return nil, err
			}
			res.DependsOn = deps
			continue
		}

		if err := l.checkReferences(attr.Expr, addr, declared, varDecls, res.ForEach != nil); err != nil {
			return nil, err
		}

		val, evalDiags := attr.Expr.Value(evalCtx)
		if evalDiags.HasErrors() {
			return nil, &diag.ParseError{Subject: block.DefRange.Filename, Detail: fmt.Sprintf("resource %s: %s", addr, evalDiags.Error())}
		}
		gv, err := ctyToGo(val)
		if err != nil {
			return nil, &diag.ParseError{Subject: block.DefRange.Filename, Detail: fmt.Sprintf("resource %s: %v", addr, err)}
		}
		res.Attributes[attrName] = gv
	}

	// Expanded instances are validated after for_each substitution, when
	// their attributes carry the real per-instance values.
	if res.ForEach == nil {
		if err := l.registry.Validate(kind, res.Attributes, isDeferred); err != nil {
			return nil, &diag.SchemaViolationError{Address: addr, Err: err}
		}
	}

	return res, nil
}

// parseForEach evaluates a for_each expression into the expansion map.
// The expression must be statically resolvable: a literal map or a variable.
func parseForEach(attr *hcl.Attribute, addr string, evalCtx *hcl.EvalContext) (map[string]any, error) {
	val, evalDiags := attr.Expr.Value(evalCtx)
	if evalDiags.HasErrors() {
		return nil, &diag.ParseError{Detail: fmt.Sprintf("resource %s: for_each: %s", addr, evalDiags.Error())}
	}
	gv, err := ctyToGo(val)
	if err != nil {
		return nil, &diag.ParseError{Detail: fmt.Sprintf("resource %s: for_each: %v", addr, err)}
	}
	m, ok := gv.(map[string]any)
	if !ok {
		return nil, &diag.ParseError{Detail: fmt.Sprintf("resource %s: for_each must be a map", addr)}
	}
	if len(m) == 0 {
		return nil, &diag.ParseError{Detail: fmt.Sprintf("resource %s: for_each map is empty", addr)}
	}
	return m, nil
}

func (l *Loader) parseOutputBlock(block *hcl.Block, declared map[string]bool, varDecls map[string]*Variable, evalCtx *hcl.EvalContext) (*ir.Output, error) {
	name := block.Labels[0]
	attrs, diags := block.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, &diag.ParseError{Subject: block.DefRange.Filename, Detail: diags.Error()}
	}

	out := &ir.Output{}
	seenValue := false
	for attrName, attr := range attrs {
		switch attrName {
		case "value":
			if err := l.checkReferences(attr.Expr, "output."+name, declared, varDecls, false); err != nil {
				return nil, err
			}
			val, evalDiags := attr.Expr.Value(evalCtx)
			if evalDiags.HasErrors() {
				return nil, &diag.ParseError{Subject: block.DefRange.Filename, Detail: fmt.Sprintf("output %q: %s", name, evalDiags.Error())}
			}
			gv, err := ctyToGo(val)
			if err != nil {
				return nil, &diag.ParseError{Subject: block.DefRange.Filename, Detail: fmt.Sprintf("output %q: %v", name, err)}
			}
			out.Value = gv
			seenValue = true
		case "sensitive":
			val, evalDiags := attr.Expr.Value(&hcl.EvalContext{})
			if evalDiags.HasErrors() {
				return nil, &diag.ParseError{Subject: block.DefRange.Filename, Detail: evalDiags.Error()}
			}
			out.Sensitive = val.True()
		default:
			return nil, &diag.ParseError{Subject: block.DefRange.Filename, Detail: fmt.Sprintf("output %q: unsupported argument %q", name, attrName)}
		}
	}
	if !seenValue {
		return nil, &diag.ParseError{Subject: block.DefRange.Filename, Detail: fmt.Sprintf("output %q has no value", name)}
	}
	return out, nil
}

// checkReferences walks the variables used by an expression and rejects
// anything that cannot resolve: unknown symbols, undeclared variables, and
// references to undeclared resources.
func (l *Loader) checkReferences(expr hcl.Expression, addr string, declared map[string]bool, varDecls map[string]*Variable, hasForEach bool) error {
	for _, traversal := range expr.Variables() {
		root := traversal.RootName()
		if root == "each" {
			if !hasForEach {
				return &diag.ParseError{Detail: fmt.Sprintf("%s references 'each' without a for_each argument", addr)}
			}
			continue
		}
		if root == "var" {
			if len(traversal) < 2 {
				return &diag.ParseError{Detail: fmt.Sprintf("%s: bare 'var' reference", addr)}
			}
			step, ok := traversal[1].(hcl.TraverseAttr)
			if !ok {
				return &diag.ParseError{Detail: fmt.Sprintf("%s: malformed variable reference", addr)}
			}
			if _, declaredVar := varDecls[step.Name]; !declaredVar {
				return &diag.ParseError{Detail: fmt.Sprintf("%s references undeclared variable %q", addr, step.Name)}
			}
			continue
		}

		if _, err := l.registry.Kind(root); err != nil {
			return &diag.ParseError{Detail: fmt.Sprintf("%s references unknown symbol %q", addr, root)}
		}
		if len(traversal) < 2 {
			return &diag.ParseError{Detail: fmt.Sprintf("%s: reference to %q is missing a resource name", addr, root)}
		}
		step, ok := traversal[1].(hcl.TraverseAttr)
		if !ok {
			return &diag.ParseError{Detail: fmt.Sprintf("%s: malformed resource reference", addr)}
		}
		target := root + "." + step.Name
		if !declared[target] {
			return &diag.UnresolvedReferenceError{Address: addr, Target: target}
		}
	}
	return nil
}

// parseDependsOn reads a depends_on list of bare resource addresses.
func parseDependsOn(attr *hcl.Attribute, addr string, declared map[string]bool) ([]string, error) {
	exprs, diags := hcl.ExprList(attr.Expr)
	if diags.HasErrors() {
		return nil, &diag.ParseError{Detail: fmt.Sprintf("%s: depends_on must be a list of resource addresses", addr)}
	}

	var deps []string
	for _, expr := range exprs {
		traversal, diags := hcl.AbsTraversalForExpr(expr)
		if diags.HasErrors() || len(traversal) < 2 {
			return nil, &diag.ParseError{Detail: fmt.Sprintf("%s: depends_on entries must be resource addresses like kind.name", addr)}
		}
		step, ok := traversal[1].(hcl.TraverseAttr)
		if !ok {
			return nil, &diag.ParseError{Detail: fmt.Sprintf("%s: depends_on entries must be resource addresses like kind.name", addr)}
		}
		target := traversal.RootName() + "." + step.Name
		if !declared[target] {
			return nil, &diag.UnresolvedReferenceError{Address: addr, Target: target}
		}
		deps = append(deps, target)
	}
	return deps, nil
}

// evalAttributes evaluates every attribute of a body into plain Go values.
func evalAttributes(body hcl.Body, evalCtx *hcl.EvalContext) (map[string]any, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("%s", diags.Error())
	}
	out := make(map[string]any, len(attrs))
	for name, attr := range attrs {
		val, evalDiags := attr.Expr.Value(evalCtx)
		if evalDiags.HasErrors() {
			return nil, fmt.Errorf("%s", evalDiags.Error())
		}
		gv, err := ctyToGo(val)
		if err != nil {
			return nil, err
		}
		out[name] = gv
	}
	return out, nil
}
