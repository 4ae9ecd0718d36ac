package orderer

import (
	"context"
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// ModuleInfo is the dependency-relevant surface of one Python file.
type ModuleInfo struct {
	Path      string
	Module    string   // file stem: pkg/util.py -> util
	Imports   []string // imported module paths, dotted, relative dots stripped
	Functions []string // top-level function names
	Classes   []string // top-level class names
	Calls     []string // called names, dotted for attribute calls
	ParseErr  bool
}

const maxWalkDepth = 512

// Inspect parses one file and extracts its ModuleInfo. Content that does not
// parse cleanly yields ParseErr with no imports; the file still queues.
func Inspect(ctx context.Context, filePath, content string) ModuleInfo {
	info := ModuleInfo{Path: filePath, Module: moduleStem(filePath)}
	src := []byte(content)

	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil || tree == nil {
		info.ParseErr = true
		return info
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || root.HasError() {
		info.ParseErr = true
		return info
	}

	collectTopLevelDefs(root, src, &info)
	walkImportsAndCalls(root, src, &info, 0)
	return info
}

func moduleStem(filePath string) string {
	base := path.Base(filePath)
	return strings.TrimSuffix(base, path.Ext(base))
}

func collectTopLevelDefs(root *sitter.Node, src []byte, info *ModuleInfo) {
	for i := 0; i < int(root.ChildCount()); i++ {
		node := root.Child(i)
		if node.Type() == "decorated_definition" {
			if def := node.ChildByFieldName("definition"); def != nil {
				node = def
			}
		}
		switch node.Type() {
		case "function_definition":
			if name := fieldText(node, "name", src); name != "" {
				info.Functions = append(info.Functions, name)
			}
		case "class_definition":
			if name := fieldText(node, "name", src); name != "" {
				info.Classes = append(info.Classes, name)
			}
		}
	}
}

func walkImportsAndCalls(node *sitter.Node, src []byte, info *ModuleInfo, depth int) {
	if depth > maxWalkDepth {
		return
	}
	switch node.Type() {
	case "import_statement":
		info.Imports = append(info.Imports, importedModules(node, src)...)
	case "import_from_statement":
		if mod := fromModule(node, src); mod != "" {
			info.Imports = append(info.Imports, mod)
		}
	case "call":
		if name := callName(node, src); name != "" {
			info.Calls = append(info.Calls, name)
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		walkImportsAndCalls(node.Child(i), src, info, depth+1)
	}
}

// importedModules handles "import a.b, c as d".
func importedModules(node *sitter.Node, src []byte) []string {
	var mods []string
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "dotted_name":
			if t := nodeText(child, src); t != "" {
				mods = append(mods, t)
			}
		case "aliased_import":
			for j := 0; j < int(child.ChildCount()); j++ {
				if gc := child.Child(j); gc.Type() == "dotted_name" {
					if t := nodeText(gc, src); t != "" {
						mods = append(mods, t)
					}
					break
				}
			}
		}
	}
	return mods
}

// fromModule returns the module of a from-import with relative dots
// stripped; "from . import x" has no module and returns "".
func fromModule(node *sitter.Node, src []byte) string {
	mod := node.ChildByFieldName("module_name")
	if mod == nil {
		return ""
	}
	return strings.TrimLeft(nodeText(mod, src), ".")
}

func callName(node *sitter.Node, src []byte) string {
	fn := node.ChildByFieldName("function")
	if fn == nil {
		return ""
	}
	switch fn.Type() {
	case "identifier":
		return nodeText(fn, src)
	case "attribute":
		return attributeName(fn, src)
	}
	return ""
}

func attributeName(node *sitter.Node, src []byte) string {
	attr := node.ChildByFieldName("attribute")
	if attr == nil {
		return ""
	}
	attrText := nodeText(attr, src)
	obj := node.ChildByFieldName("object")
	if obj == nil {
		return attrText
	}
	switch obj.Type() {
	case "identifier":
		return nodeText(obj, src) + "." + attrText
	case "attribute":
		if base := attributeName(obj, src); base != "" {
			return base + "." + attrText
		}
	}
	return attrText
}

func fieldText(node *sitter.Node, field string, src []byte) string {
	child := node.ChildByFieldName(field)
	if child == nil {
		return ""
	}
	return nodeText(child, src)
}

func nodeText(node *sitter.Node, src []byte) string {
	start, end := node.StartByte(), node.EndByte()
	if int(end) > len(src) {
		end = uint32(len(src))
	}
	if start >= end {
		return ""
	}
	return string(src[start:end])
}
