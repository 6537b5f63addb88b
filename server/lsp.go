package server

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/tapevm/pkg/bytecode"
	"github.com/chazu/tapevm/wire"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "tape-lsp"

// LspServer reports bracket errors to editors and lets them navigate
// between matching brackets.
type LspServer struct {
	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new language server.
func NewLSP() *LspServer {
	s := &LspServer{
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

		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
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
	log.Info("tape LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true

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
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
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

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// --- Language features ---

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	offset, ok := offsetAt(text, params.Position)
	if !ok {
		return nil, nil
	}
	doc := describeOperator(text[offset])
	if doc == "" {
		return nil, nil
	}

	start := params.Position
	end := protocol.Position{Line: start.Line, Character: start.Character + 1}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: doc,
		},
		Range: &protocol.Range{Start: start, End: end},
	}, nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}

	offset, ok := offsetAt(text, params.Position)
	if !ok {
		return nil, nil
	}
	partner, ok := matchingBracket(text, offset)
	if !ok {
		return nil, nil
	}

	pos := positionAt(text, partner)
	return protocol.Location{
		URI: uri,
		Range: protocol.Range{
			Start: pos,
			End:   protocol.Position{Line: pos.Line, Character: pos.Character + 1},
		},
	}, nil
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	diagnostics := diagnose(text)

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// diagnose compiles text and converts any bracket error into a diagnostic
// spanning the offending character.
func diagnose(text string) []protocol.Diagnostic {
	_, err := bytecode.Compile(text)
	if err == nil {
		return []protocol.Diagnostic{}
	}

	diagnostics := []protocol.Diagnostic{}
	for _, d := range wire.DiagnosticsFor(err) {
		start := positionAt(text, d.Offset)
		severity := protocol.DiagnosticSeverityError
		source := lspName
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range: protocol.Range{
				Start: start,
				End:   protocol.Position{Line: start.Line, Character: start.Character + 1},
			},
			Severity: &severity,
			Source:   &source,
			Message:  d.Message,
		})
	}
	return diagnostics
}

// --- Text helpers ---

// positionAt converts a byte offset to an LSP position, whose character
// is counted in UTF-16 code units.
func positionAt(text string, offset int) protocol.Position {
	if offset > len(text) {
		offset = len(text)
	}
	var line, char protocol.UInteger
	for _, r := range text[:offset] {
		if r == '\n' {
			line++
			char = 0
			continue
		}
		char += protocol.UInteger(utf16.RuneLen(r))
	}
	return protocol.Position{Line: line, Character: char}
}

// offsetAt converts an LSP position to the byte offset of the character it
// points at. Reports false past the end of a line or of the document.
func offsetAt(text string, pos protocol.Position) (int, bool) {
	lineStart := 0
	for i := protocol.UInteger(0); i < pos.Line; i++ {
		nl := strings.IndexByte(text[lineStart:], '\n')
		if nl < 0 {
			return 0, false
		}
		lineStart += nl + 1
	}

	var char protocol.UInteger
	for i := lineStart; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if r == '\n' {
			return 0, false
		}
		if char == pos.Character {
			return i, true
		}
		char += protocol.UInteger(utf16.RuneLen(r))
		i += size
	}
	return 0, false
}

// matchingBracket returns the offset of the bracket paired with the one at
// offset. Brackets are matched through the compiled program's source map,
// so text with bracket errors has no matches.
func matchingBracket(text string, offset int) (int, bool) {
	if c := text[offset]; c != '[' && c != ']' {
		return 0, false
	}
	prog, err := bytecode.Compile(text)
	if err != nil {
		return 0, false
	}
	for i, in := range prog.Instructions {
		if !in.Op.IsJump() || int(prog.Location(i).Offset) != offset {
			continue
		}
		return int(prog.Location(in.Arg).Offset), true
	}
	return 0, false
}

// describeOperator returns hover text for a source character, or "" for
// comment characters.
func describeOperator(c byte) string {
	var desc string
	switch c {
	case '+':
		desc = "increment the current cell (wraps 255 → 0)"
	case '-':
		desc = "decrement the current cell (wraps 0 → 255)"
	case '>':
		desc = "move the pointer one cell right"
	case '<':
		desc = "move the pointer one cell left"
	case '[':
		desc = "jump past the matching `]` if the current cell is zero"
	case ']':
		desc = "jump back to the matching `[` if the current cell is nonzero"
	case '.':
		desc = "write the current cell to output"
	case ',':
		desc = "read one byte of input into the current cell"
	default:
		return ""
	}
	return fmt.Sprintf("`%c`: %s", c, desc)
}

func boolPtr(b bool) *bool {
	return &b
}
