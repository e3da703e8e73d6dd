package policy

import (
	"strings"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/types"

	"github.com/josephgoksu/quill/internal/llm"
)

// Builtins returns the custom functions available to admission rules. They
// are attached per query rather than registered globally.
//
//	quill.known_model(model) -> boolean
//	quill.provider(model)    -> string, "" when unknown
func Builtins() []func(*rego.Rego) {
	knownModel := rego.Function1(&rego.Function{
		Name:    "quill.known_model",
		Decl:    types.NewFunction(types.Args(types.S), types.B),
		Memoize: true,
	}, func(_ rego.BuiltinContext, a *ast.Term) (*ast.Term, error) {
		id, ok := a.Value.(ast.String)
		if !ok {
			return ast.BooleanTerm(false), nil
		}
		return ast.BooleanTerm(knownModel(string(id))), nil
	})

	provider := rego.Function1(&rego.Function{
		Name:    "quill.provider",
		Decl:    types.NewFunction(types.Args(types.S), types.S),
		Memoize: true,
	}, func(_ rego.BuiltinContext, a *ast.Term) (*ast.Term, error) {
		id, ok := a.Value.(ast.String)
		if !ok {
			return ast.StringTerm(""), nil
		}
		p, _ := llm.InferProvider(string(id))
		return ast.StringTerm(string(p)), nil
	})

	return []func(*rego.Rego){knownModel, provider}
}

// knownModel reports whether the model is listed in the registry. Local
// Ollama models are always accepted.
func knownModel(id string) bool {
	if strings.HasPrefix(id, llm.OllamaPrefix) {
		return true
	}
	return llm.GetModel(id) != nil
}
