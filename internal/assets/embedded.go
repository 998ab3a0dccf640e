package assets

import "embed"

//go:embed styles templates
var builtin embed.FS

// EmbeddedLoader serves the stylesheet and template compiled into the binary.
type EmbeddedLoader struct{}

func NewEmbeddedLoader() *EmbeddedLoader {
	return &EmbeddedLoader{}
}

func (e *EmbeddedLoader) LoadStyle(name string) (string, error) {
	return e.load(styleKind, name)
}

func (e *EmbeddedLoader) LoadTemplate(name string) (string, error) {
	return e.load(templateKind, name)
}

func (e *EmbeddedLoader) load(k assetKind, name string) (string, error) {
	path, err := k.file(name)
	if err != nil {
		return "", err
	}
	data, err := builtin.ReadFile(path)
	if err != nil {
		return "", k.missing(name)
	}
	return string(data), nil
}

var _ AssetLoader = (*EmbeddedLoader)(nil)
