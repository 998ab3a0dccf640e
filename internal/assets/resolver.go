package assets

import "errors"

// AssetResolver serves each asset from the override directory when it has
// one and from the embedded copy otherwise.
type AssetResolver struct {
	chain []AssetLoader // override first; embedded always last
}

// NewAssetResolver returns a resolver over the embedded assets, preceded
// by customBasePath when it is not empty.
func NewAssetResolver(customBasePath string) (*AssetResolver, error) {
	r := &AssetResolver{}
	if customBasePath != "" {
		fs, err := NewFilesystemLoader(customBasePath)
		if err != nil {
			return nil, err
		}
		r.chain = append(r.chain, fs)
	}
	r.chain = append(r.chain, NewEmbeddedLoader())
	return r, nil
}

func (r *AssetResolver) LoadStyle(name string) (string, error) {
	return r.first(styleKind, func(l AssetLoader) (string, error) { return l.LoadStyle(name) })
}

func (r *AssetResolver) LoadTemplate(name string) (string, error) {
	return r.first(templateKind, func(l AssetLoader) (string, error) { return l.LoadTemplate(name) })
}

// first walks the chain while loaders report k as missing. Any other error
// stops the walk.
func (r *AssetResolver) first(k assetKind, load func(AssetLoader) (string, error)) (string, error) {
	var err error
	for _, l := range r.chain {
		var s string
		if s, err = load(l); !errors.Is(err, k.notFound) {
			return s, err
		}
	}
	return "", err
}

// HasCustomLoader reports whether an override directory is configured.
func (r *AssetResolver) HasCustomLoader() bool {
	return len(r.chain) > 1
}

var _ AssetLoader = (*AssetResolver)(nil)
