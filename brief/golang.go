package brief

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
	"strings"

	"github.com/WhitenWhiten/CodeTeam/core"
)

// Go extracts package-level functions, types and their methods from Go
// source. Methods are attached to the type named by their receiver.
type Go struct{}

// Extract implements Extractor. Source that does not parse is an error.
func (Go) Extract(path, source string) (core.InterfaceBrief, error) {
	fset := token.NewFileSet()

	file, err := parser.ParseFile(fset, path, source, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return core.InterfaceBrief{}, fmt.Errorf("parse %s: %w", path, err)
	}

	b := Empty(path)
	classes := map[string]int{}

	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}

		for _, spec := range gd.Specs {
			ts := spec.(*ast.TypeSpec)
			doc := ts.Doc
			if doc == nil {
				doc = gd.Doc
			}

			classes[ts.Name.Name] = len(b.Classes)
			b.Classes = append(b.Classes, core.ClassBrief{
				Name:    ts.Name.Name,
				Methods: []core.FuncBrief{},
				Doc:     firstParagraph(doc.Text()),
			})
		}
	}

	for _, decl := range file.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok {
			continue
		}

		fn := core.FuncBrief{
			Name:      fd.Name.Name,
			Signature: signature(fset, fd),
			Doc:       firstParagraph(fd.Doc.Text()),
		}

		if fd.Recv == nil || len(fd.Recv.List) == 0 {
			b.Functions = append(b.Functions, fn)

			// NewT constructors stand in for an init signature.
			if idx, ok := classes[strings.TrimPrefix(fd.Name.Name, "New")]; ok && strings.HasPrefix(fd.Name.Name, "New") {
				b.Classes[idx].InitSignature = fn.Signature
			}

			continue
		}

		if idx, ok := classes[receiverType(fd.Recv.List[0].Type)]; ok {
			b.Classes[idx].Methods = append(b.Classes[idx].Methods, fn)
		} else {
			b.Functions = append(b.Functions, fn)
		}
	}

	return b, nil
}

func signature(fset *token.FileSet, fd *ast.FuncDecl) string {
	stripped := *fd
	stripped.Body = nil
	stripped.Doc = nil

	var buf bytes.Buffer
	if err := printer.Fprint(&buf, fset, &stripped); err != nil {
		return "func " + fd.Name.Name
	}

	return strings.Join(strings.Fields(buf.String()), " ")
}

func receiverType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverType(t.X)
	case *ast.IndexExpr:
		return receiverType(t.X)
	case *ast.IndexListExpr:
		return receiverType(t.X)
	case *ast.Ident:
		return t.Name
	default:
		return ""
	}
}
