// Package assets provides the HTML template and CSS used when a book is
// assembled into a single HTML document.
//
// # Loader Architecture
//
//	AssetLoader (interface)
//	    │
//	    ├── EmbeddedLoader    - built-in assets compiled into the binary
//	    ├── FilesystemLoader  - overrides from a directory on disk
//	    └── AssetResolver     - custom first, embedded fallback
//
// # Directory Structure
//
// An override directory mirrors the embedded layout:
//
//	{basePath}/
//	├── styles/
//	│   └── cover.css
//	└── templates/
//	    └── book.html
//
// Only the files present are overridden; the rest fall back to the
// embedded copies.
//
// # Security
//
// Asset names are validated to prevent path traversal. FilesystemLoader
// resolves symlinks and verifies paths stay within basePath.
package assets
