// SPDX-License-Identifier: LGPL-3.0-or-later

package expansion

import (
	"bytes"
	"regexp"
	"strings"
	"text/template"

	"sbatchman/sbmerr"
)

// scriptVarToken matches the evaluator's $var binding-reference convention
// inside an expression body, mirroring dag.go's scriptVarRef.
var scriptVarToken = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)

// EvalResult is the result of evaluating a ScriptExpr: either a single
// scalar or a list. A map result is illegal (§9 open question, resolved).
type EvalResult struct {
	IsList bool
	Scalar string
	List   []string
}

// Evaluator is the pluggable external collaborator described in §4.1's
// "Embedded expression evaluator" contract. Implementations must be pure
// with respect to (headerSource, exprSource, bindings).
type Evaluator interface {
	Eval(headerSource, exprSource string, bindings map[string]string) (EvalResult, error)
}

// TemplateEvaluator is the default built-in Evaluator, grounded on the
// standard library's text/template as a minimal expression language: the
// expression source is a template body, bindings are exposed as fields of a
// map passed to Execute, and a literal comma-separated output is treated as
// a list. Callers needing a richer embedded language supply their own
// Evaluator; this one exists so the engine is usable standalone.
type TemplateEvaluator struct{}

func (TemplateEvaluator) Eval(headerSource, exprSource string, bindings map[string]string) (EvalResult, error) {
	rendered := scriptVarToken.ReplaceAllString(exprSource, `{{.$1}}`)
	tmpl, err := template.New("expr").Parse(rendered)
	if err != nil {
		return EvalResult{}, sbmerr.Wrap(sbmerr.ScriptEval, err, "parse script expression %q", exprSource)
	}

	data := make(map[string]string, len(bindings))
	for k, v := range bindings {
		data[k] = v
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return EvalResult{}, sbmerr.Wrap(sbmerr.ScriptEval, err, "execute script expression %q", exprSource)
	}

	out := strings.TrimSpace(buf.String())
	if strings.Contains(out, ",") {
		parts := strings.Split(out, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return EvalResult{IsList: true, List: parts}, nil
	}
	return EvalResult{Scalar: out}, nil
}
