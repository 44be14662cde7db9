// Package dispatchgen generates static dispatch registration for actor
// packages. It scans a package for actor structs following the handler
// convention, pointer-receiver methods of the form
//
//	func (a *Actor) Handle<Msg>(m *<Msg>) error
//
// and emits a registration file binding each (actor type, message tag) pair
// to a decoding thunk. Tags are FNV-32a hashes of the message type name,
// computed at generation time; colliding tags and malformed handler methods
// are reported as generation errors rather than surfacing at runtime.
package dispatchgen

import (
	"bytes"
	"errors"
	"fmt"
	"go/ast"
	"go/format"
	"go/token"
	"go/types"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/tools/go/packages"

	serr "github.com/metrosim/substrate/internal/errors"
)

const handlerPrefix = "Handle"

// messageMarker tags a type declaration as a message that must have a
// handler somewhere in the package. A marked type without one aborts
// generation instead of surfacing as a dropped message at runtime.
const messageMarker = "//substrate:message"

// GeneratedFileName is the conventional output name inside the scanned
// package.
const GeneratedFileName = "zz_generated_dispatch.go"

// GenOptions controls dispatch code generation.
type GenOptions struct {
	// Source patterns passed to go/packages (e.g. []string{"./internal/pingpong"}).
	SourcePatterns []string
	// Destination path for writing the generated file. If empty, only
	// return the string.
	Destination string
	// Build tags. Empty means none.
	BuildTags []string
}

// Model is the scanned dispatch surface of one package.
type Model struct {
	PackageName string
	Actors      []ActorModel
}

// ActorModel is one actor struct and its handled messages.
type ActorModel struct {
	Name     string
	Handlers []HandlerModel
}

// HandlerModel is one handler method binding.
type HandlerModel struct {
	MessageName string
	Tag         uint32
}

// Generate scans the source patterns and produces the registration file.
func Generate(opts GenOptions) (string, error) {
	if len(opts.SourcePatterns) == 0 {
		return "", errors.New("SourcePatterns is required")
	}

	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedFiles | packages.NeedTypes | packages.NeedTypesInfo | packages.NeedSyntax}
	if len(opts.BuildTags) > 0 {
		cfg.BuildFlags = append(cfg.BuildFlags, fmt.Sprintf("-tags=%s", strings.Join(opts.BuildTags, ",")))
	}
	pkgs, err := packages.Load(cfg, opts.SourcePatterns...)
	if err != nil {
		return "", err
	}
	if packages.PrintErrors(pkgs) > 0 {
		return "", errors.New("failed to load packages")
	}
	if len(pkgs) != 1 {
		return "", fmt.Errorf("expected exactly one package, got %d", len(pkgs))
	}

	model, err := Scan(pkgs[0])
	if err != nil {
		return "", err
	}
	code, err := Render(model)
	if err != nil {
		return "", err
	}

	if opts.Destination != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Destination), 0o755); err != nil {
			return "", err
		}
		if err := os.WriteFile(opts.Destination, []byte(code), 0o644); err != nil {
			return "", err
		}
	}
	return code, nil
}

// Tag derives the dispatch tag for a message type name. Must stay in step
// with the runtime's TagOf.
func Tag(name string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(name))
	return h.Sum32()
}

// Scan extracts the dispatch model from a loaded package.
func Scan(pkg *packages.Package) (Model, error) {
	if pkg.Types == nil || pkg.Types.Scope() == nil {
		return Model{}, errors.New("package has no type information")
	}

	model := Model{PackageName: pkg.Name}
	scope := pkg.Types.Scope()

	names := scope.Names()
	sort.Strings(names)

	tagOwners := map[uint32]string{}

	for _, name := range names {
		obj := scope.Lookup(name)
		named, ok := obj.Type().(*types.Named)
		if !ok {
			continue
		}
		if _, ok := named.Underlying().(*types.Struct); !ok {
			continue
		}
		if named.TypeParams().Len() > 0 {
			continue
		}

		actor := ActorModel{Name: name}
		mset := types.NewMethodSet(types.NewPointer(named))
		for i := 0; i < mset.Len(); i++ {
			fn, ok := mset.At(i).Obj().(*types.Func)
			if !ok || !strings.HasPrefix(fn.Name(), handlerPrefix) {
				continue
			}
			msgName, err := checkHandler(pkg.Types, fn)
			if err != nil {
				return Model{}, err
			}

			tag := Tag(msgName)
			if owner, exists := tagOwners[tag]; exists && owner != msgName {
				return Model{}, serr.DuplicateDispatchEntry(name, tag)
			}
			tagOwners[tag] = msgName

			actor.Handlers = append(actor.Handlers, HandlerModel{MessageName: msgName, Tag: tag})
		}

		if len(actor.Handlers) == 0 {
			continue
		}
		sort.Slice(actor.Handlers, func(i, j int) bool {
			return actor.Handlers[i].MessageName < actor.Handlers[j].MessageName
		})
		model.Actors = append(model.Actors, actor)
	}

	if len(model.Actors) == 0 {
		return Model{}, fmt.Errorf("no actor types with %s methods in package %s", handlerPrefix, pkg.Name)
	}

	handled := map[string]bool{}
	for _, actor := range model.Actors {
		for _, h := range actor.Handlers {
			handled[h.MessageName] = true
		}
	}
	for _, name := range markedMessages(pkg) {
		if !handled[name] {
			return Model{}, fmt.Errorf("marked message %s has no handler in package %s: %w",
				name, pkg.Name, serr.MissingHandler(name, Tag(name)))
		}
	}
	return model, nil
}

// markedMessages returns the names of types annotated with messageMarker.
func markedMessages(pkg *packages.Package) []string {
	var out []string
	for _, file := range pkg.Syntax {
		for _, decl := range file.Decls {
			gen, ok := decl.(*ast.GenDecl)
			if !ok || gen.Tok != token.TYPE {
				continue
			}
			for _, spec := range gen.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				if hasMarker(gen.Doc) || hasMarker(ts.Doc) {
					out = append(out, ts.Name.Name)
				}
			}
		}
	}
	sort.Strings(out)
	return out
}

func hasMarker(doc *ast.CommentGroup) bool {
	if doc == nil {
		return false
	}
	for _, c := range doc.List {
		if strings.HasPrefix(strings.TrimSpace(c.Text), messageMarker) {
			return true
		}
	}
	return false
}

// checkHandler validates a Handle method against the convention and returns
// the message type name.
func checkHandler(pkg *types.Package, fn *types.Func) (string, error) {
	sig := fn.Type().(*types.Signature)
	wanted := strings.TrimPrefix(fn.Name(), handlerPrefix)

	fail := func(detail string) (string, error) {
		recv := sig.Recv().Type().String()
		return "", fmt.Errorf("%s.%s: %s: %w", recv, fn.Name(), detail,
			serr.MissingHandler(recv, Tag(wanted)))
	}

	if sig.Params().Len() != 1 {
		return fail("handler must take exactly one pointer argument")
	}
	ptr, ok := sig.Params().At(0).Type().(*types.Pointer)
	if !ok {
		return fail("handler argument must be a pointer to a message struct")
	}
	named, ok := ptr.Elem().(*types.Named)
	if !ok {
		return fail("handler argument must point to a named struct")
	}
	if _, ok := named.Underlying().(*types.Struct); !ok {
		return fail("handler argument must point to a struct")
	}
	if named.Obj().Pkg() != pkg {
		return fail("message type must live in the same package as the actor")
	}
	if named.Obj().Name() != wanted {
		return fail(fmt.Sprintf("method name suffix %q must match message type %q", wanted, named.Obj().Name()))
	}
	if sig.Results().Len() != 1 || sig.Results().At(0).Type().String() != "error" {
		return fail("handler must return exactly error")
	}
	return named.Obj().Name(), nil
}

// Render emits the registration file for a model. Output is deterministic
// for a given model.
func Render(model Model) (string, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "// Code generated by substrate-gen. DO NOT EDIT.\n\n")
	fmt.Fprintf(&buf, "package %s\n\n", model.PackageName)
	buf.WriteString("import (\n")
	buf.WriteString("\t\"github.com/metrosim/substrate/internal/compact\"\n")
	buf.WriteString("\t\"github.com/metrosim/substrate/internal/kay\"\n")
	buf.WriteString(")\n\n")

	buf.WriteString("// Message tags, FNV-32a of the message type name.\nconst (\n")
	seen := map[string]bool{}
	for _, actor := range model.Actors {
		for _, h := range actor.Handlers {
			if seen[h.MessageName] {
				continue
			}
			seen[h.MessageName] = true
			fmt.Fprintf(&buf, "\tTag%s kay.MessageTag = 0x%08x\n", h.MessageName, h.Tag)
		}
	}
	buf.WriteString(")\n\n")

	buf.WriteString("// RegisterDispatch installs every handler in this package into table and\n")
	buf.WriteString("// returns the assigned actor type identifiers by name.\n")
	buf.WriteString("func RegisterDispatch(table *kay.DispatchTable) (map[string]kay.ActorTypeID, error) {\n")
	buf.WriteString("\tids := make(map[string]kay.ActorTypeID)\n\n")

	for _, actor := range model.Actors {
		fmt.Fprintf(&buf, "\t%sID, err := table.RegisterActorType(%q)\n", lowerFirst(actor.Name), actor.Name)
		buf.WriteString("\tif err != nil {\n\t\treturn nil, err\n\t}\n")
		fmt.Fprintf(&buf, "\tids[%q] = %sID\n", actor.Name, lowerFirst(actor.Name))
		for _, h := range actor.Handlers {
			fmt.Fprintf(&buf, "\tif err := table.Register(%sID, Tag%s, func(recipient interface{}, msg kay.Message) error {\n", lowerFirst(actor.Name), h.MessageName)
			fmt.Fprintf(&buf, "\t\tm, err := compact.FromImageOf[%s](msg.Image)\n", h.MessageName)
			buf.WriteString("\t\tif err != nil {\n\t\t\treturn err\n\t\t}\n")
			fmt.Fprintf(&buf, "\t\treturn recipient.(*%s).%s%s(&m)\n", actor.Name, handlerPrefix, h.MessageName)
			buf.WriteString("\t}); err != nil {\n\t\treturn nil, err\n\t}\n")
		}
		buf.WriteString("\n")
	}

	buf.WriteString("\treturn ids, nil\n}\n")

	fmted, err := format.Source(buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("generated code does not format: %w", err)
	}
	return string(fmted), nil
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
