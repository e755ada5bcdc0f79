package server

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/machina/compiler"
	"github.com/chazu/machina/vm"
)

const lspName = "machina-lsp"

// LspServer provides editor features for the assembly dialect: compile
// diagnostics, keyword and label completion, hover docs, and label
// definition/references within a document.
type LspServer struct {
	problem *vm.Problem // optional, narrows completion and adds validation diagnostics

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server. A nil problem disables the
// availability checks and offers every instruction.
func NewLSP(prob *vm.Problem) *LspServer {
	s := &LspServer{
		problem: prob,
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
		TextDocumentReferences: s.textDocumentReferences,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	commonlog.NewInfoMessage(0, "Machina LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			text := whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}

	return s.complete(text, prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	return s.hover(text, word), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	for _, decl := range declaredLabels(text) {
		if decl.name == word {
			return []protocol.Location{{
				URI:   uri,
				Range: decl.rng,
			}}, nil
		}
	}
	return nil, nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	var locations []protocol.Location
	for _, ref := range labelReferences(text, word) {
		locations = append(locations, protocol.Location{URI: uri, Range: ref})
	}
	return locations, nil
}

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// --- Completion and hover logic ---

func (s *LspServer) complete(text, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem

	// Instruction keywords
	keywords := vm.Keywords()
	if s.problem != nil {
		keywords = s.problem.EnabledKeywords()
	}
	upperPrefix := strings.ToUpper(prefix)
	for _, kw := range keywords {
		if !strings.HasPrefix(kw, upperPrefix) {
			continue
		}
		op, _ := vm.OpcodeForKeyword(kw)
		kind := protocol.CompletionItemKindKeyword
		detail := op.Doc()
		kwCopy := kw
		items = append(items, protocol.CompletionItem{
			Label:      kw,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &kwCopy,
		})
	}

	// Labels declared in the document
	for _, decl := range declaredLabels(text) {
		if !strings.HasPrefix(decl.name, prefix) {
			continue
		}
		kind := protocol.CompletionItemKindReference
		detail := fmt.Sprintf("label (line %d)", decl.rng.Start.Line+1)
		name := decl.name
		items = append(items, protocol.CompletionItem{
			Label:      name,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &name,
		})
	}

	return items
}

func (s *LspServer) hover(text, word string) *protocol.Hover {
	// Uppercase word → instruction keyword
	if word == strings.ToUpper(word) {
		op, ok := vm.OpcodeForKeyword(word)
		if !ok {
			return nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "**%s**\n\n%s", word, op.Doc())
		if s.problem != nil && !s.problem.Allows(word) {
			b.WriteString("\n\n*Not available in this problem.*")
		}

		return &protocol.Hover{
			Contents: protocol.MarkupContent{
				Kind:  protocol.MarkupKindMarkdown,
				Value: b.String(),
			},
		}
	}

	// Lowercase word → label
	for _, decl := range declaredLabels(text) {
		if decl.name == word {
			var b strings.Builder
			fmt.Fprintf(&b, "**%s:**\n\n", word)
			fmt.Fprintf(&b, "Label declared on line %d, referenced %d times.",
				decl.rng.Start.Line+1, len(labelReferences(text, word)))
			return &protocol.Hover{
				Contents: protocol.MarkupContent{
					Kind:  protocol.MarkupKindMarkdown,
					Value: b.String(),
				},
			}
		}
	}
	return nil
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	var diagnostics []protocol.Diagnostic

	prog, err := compiler.Compile(text)
	if err != nil {
		diagnostics = append(diagnostics, errorDiagnostic(err))
	} else if s.problem != nil {
		if err := prog.Validate(s.problem); err != nil {
			diagnostics = append(diagnostics, errorDiagnostic(err))
		}
	}

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

func errorDiagnostic(err error) protocol.Diagnostic {
	line := protocol.UInteger(0)
	if ill, ok := err.(*compiler.IllegalLineError); ok && ill.Number > 0 {
		line = protocol.UInteger(ill.Number - 1)
	}

	severity := protocol.DiagnosticSeverityError
	source := lspName
	return protocol.Diagnostic{
		Range: protocol.Range{
			Start: protocol.Position{Line: line, Character: 0},
			End:   protocol.Position{Line: line, Character: 0},
		},
		Severity: &severity,
		Source:   &source,
		Message:  err.Error(),
	}
}

// --- Label scanning ---

type labelDecl struct {
	name string
	rng  protocol.Range
}

// declaredLabels scans the document for "name:" lines.
func declaredLabels(text string) []labelDecl {
	var decls []labelDecl
	for i, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasSuffix(trimmed, ":") {
			continue
		}
		name := strings.TrimSuffix(trimmed, ":")
		if !isLabelName(name) {
			continue
		}
		col := strings.Index(line, name)
		decls = append(decls, labelDecl{
			name: name,
			rng: protocol.Range{
				Start: protocol.Position{Line: protocol.UInteger(i), Character: protocol.UInteger(col)},
				End:   protocol.Position{Line: protocol.UInteger(i), Character: protocol.UInteger(col + len(name))},
			},
		})
	}
	return decls
}

// labelReferences finds jump instructions whose argument is the label.
func labelReferences(text, label string) []protocol.Range {
	var refs []protocol.Range
	for i, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 || fields[1] != label {
			continue
		}
		op, ok := vm.OpcodeForKeyword(fields[0])
		if !ok || op.OperandKind() != vm.OperandLabel {
			continue
		}
		col := strings.LastIndex(line, label)
		refs = append(refs, protocol.Range{
			Start: protocol.Position{Line: protocol.UInteger(i), Character: protocol.UInteger(col)},
			End:   protocol.Position{Line: protocol.UInteger(i), Character: protocol.UInteger(col + len(label))},
		})
	}
	return refs
}

func isLabelName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

// --- Text extraction helpers ---

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Walk backwards from cursor to find the start of the word
	start := col
	for start > 0 {
		ch := rune(line[start-1])
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) {
			start--
		} else {
			break
		}
	}

	if start == col {
		return ""
	}

	return line[start:col]
}

// extractWord returns the full word under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Find start
	start := col
	for start > 0 {
		ch := rune(line[start-1])
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) {
			start--
		} else {
			break
		}
	}

	// Find end
	end := col
	for end < len(line) {
		ch := rune(line[end])
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) {
			end++
		} else {
			break
		}
	}

	if start == end {
		return ""
	}

	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
