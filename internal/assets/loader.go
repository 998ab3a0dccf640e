package assets

import (
	"fmt"
	"strings"
)

// Built-in asset names.
const (
	BookTemplateName = "book"
	CoverStyleName   = "cover"
)

// AssetLoader defines the contract for loading CSS styles and HTML templates.
type AssetLoader interface {
	// LoadStyle loads a CSS style by name (without .css extension).
	// Returns ErrStyleNotFound if the style doesn't exist.
	LoadStyle(name string) (string, error)

	// LoadTemplate loads an HTML template by name (without .html extension).
	// Returns ErrTemplateNotFound if the template doesn't exist.
	LoadTemplate(name string) (string, error)
}

// assetKind locates one family of assets: styles/*.css or templates/*.html.
type assetKind struct {
	dir      string
	ext      string
	notFound error
}

var (
	styleKind    = assetKind{dir: "styles", ext: ".css", notFound: ErrStyleNotFound}
	templateKind = assetKind{dir: "templates", ext: ".html", notFound: ErrTemplateNotFound}
)

// file returns the slash-separated path of name relative to an asset root.
func (k assetKind) file(name string) (string, error) {
	if err := ValidateAssetName(name); err != nil {
		return "", err
	}
	return k.dir + "/" + name + k.ext, nil
}

func (k assetKind) missing(name string) error {
	return fmt.Errorf("%w: %q", k.notFound, name)
}

// ValidateAssetName rejects empty names and names carrying separators,
// dots or NUL bytes.
func ValidateAssetName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidAssetName)
	}
	if strings.ContainsAny(name, "/\\.\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidAssetName, name)
	}
	return nil
}
