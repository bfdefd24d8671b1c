package spatial

// Option configures Build.
type Option func(*Index)

// WithNodeSize sets the leaf size of the tree.
func WithNodeSize(n int) Option {
	return func(idx *Index) {
		if n > 0 {
			idx.nodeSize = n
		}
	}
}
