package goja

import (
	"context"
	"fmt"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
)

// MaxRequireDepth limits how deeply libraries can require other
// libraries.
var MaxRequireDepth = 8

// InlineRequires generates new source code that replaces top-level
// require("name") statements with the code that those names
// reference.
//
// Libraries are plain top-level code, so a library can require other
// libraries this way.  Goja can't (easily) modify ASTs or Programs;
// therefore, this function rewrites the given source based on the
// positions in its AST.
func InlineRequires(ctx context.Context, src string, provider LibraryProvider) (string, error) {
	return inlineRequires(ctx, src, provider, 0)
}

type required struct {
	idx0, idx1 int
	name       string
}

func inlineRequires(ctx context.Context, src string, provider LibraryProvider, depth int) (string, error) {
	if MaxRequireDepth < depth {
		return "", fmt.Errorf("requires nested more than %d deep", MaxRequireDepth)
	}

	p, err := parser.ParseFile(nil, "", src, 0)
	if err != nil {
		return "", err
	}

	requires := make([]required, 0, 8)

	for _, s := range p.Body {
		exps, is := s.(*ast.ExpressionStatement)
		if !is {
			continue
		}

		call, is := exps.Expression.(*ast.CallExpression)
		if !is {
			continue
		}

		id, is := call.Callee.(*ast.Identifier)
		if !is || id.Name != "require" {
			continue
		}
		if len(call.ArgumentList) != 1 {
			return "", fmt.Errorf("bad require args: %#v", call.ArgumentList)
		}

		lit, is := call.ArgumentList[0].(*ast.StringLiteral)
		if !is {
			return "", fmt.Errorf("bad require arg: %#v", call.ArgumentList[0])
		}

		// Idx0 and Idx1 are 1-based.
		requires = append(requires, required{
			idx0: int(exps.Idx0()) - 1,
			idx1: int(exps.Idx1()) - 1,
			name: lit.Value.String(),
		})
	}

	if len(requires) == 0 {
		return src, nil
	}

	var (
		inlined string
		from    int
	)
	for _, r := range requires {
		lib, err := provider(ctx, r.name)
		if err != nil {
			return "", err
		}
		if lib, err = inlineRequires(ctx, lib, provider, depth+1); err != nil {
			return "", err
		}
		inlined += src[from:r.idx0] + lib + "\n"
		from = r.idx1
		// Swallow the statement's semicolon, if any.
		if from < len(src) && src[from] == ';' {
			from++
		}
	}
	inlined += src[from:]

	return inlined, nil
}
