package fastembed

// Name identifies this backend in stats output.
const Name = "fastembed"

// Config holds configuration for the FastEmbed backend.
type Config struct {
	// Model is one of BAAI/bge-small-en-v1.5, BAAI/bge-base-en-v1.5 or
	// sentence-transformers/all-MiniLM-L6-v2.
	Model string

	// CacheDir holds downloaded model files. Defaults to ./local_cache.
	CacheDir string

	// MaxLength is the maximum input sequence length. Defaults to 512.
	MaxLength int

	// BatchSize is passed to PassageEmbed. Defaults to 256.
	BatchSize int
}
