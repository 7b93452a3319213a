package assets

// Loader decodes one kind of asset from disk. The concrete type returned is
// fixed per asset type.
type Loader interface {
	Load(path string) (any, error)
}
