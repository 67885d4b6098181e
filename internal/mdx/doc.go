// Package mdx compiles Markdown/MDX page documents to HTML.
//
// A Compiler is built from a composed siteconfig.Config. The declared plugin
// pipeline is resolved by name against a registry of goldmark AST transforms
// and applied in declaration order after parsing. Embedded JSX and HTML
// blocks are passed through untouched when the config enables JSX.
//
// Compile is safe for concurrent use. Per-document state (diagnostics,
// headings, slug counters) lives in the goldmark parser context.
package mdx
