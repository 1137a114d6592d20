// Package internal contains the core implementation packages for filament.
//
// This package follows Go's internal package convention, making these
// packages unavailable for import by external modules while providing
// all the core functionality for the filament CLI tool.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - config: Configuration management with validation
//   - devloop: Watch-mode supervisor feeding changes into the graph
//   - errors: Build error collection with file positions
//   - graph: File records, dependency edges, batch pipeline and manifest
//   - imports: Import scanning, resolution and cache-reference rewriting
//   - logging: Structured logging on slog
//   - paths: Canonical file identity and cache naming
//   - transpile: Syntax-only source-to-ESM transforms
//   - typecheck: Out-of-process type checker worker
//   - watcher: File system monitoring with debouncing
//
// # Design Principles
//
// Packages lower in the dependency order never import packages above
// them: paths and types sit at the bottom, graph composes the middle, and
// devloop composes graph with the watcher and the type checker. Shared
// types live in the types package to keep the layering acyclic.
//
// # Performance
//
//   - Metadata pre-checks in front of content hashing keep redundant
//     watcher events cheap
//   - LRU caching of import scans by content hash
//   - Bounded worker pools for batch parsing and finalization
//   - Debounced file watching to prevent excessive rebuilds
//
// For detailed documentation, see the individual package documentation.
package internal
