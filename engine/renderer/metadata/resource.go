package metadata

type ResourceKind int

/** @brief Kinds of device resources a handle can name. */
const (
	/** @brief Plain buffer: uniform, storage, atomic counter, vertex or index data. */
	ResourceKindBuffer ResourceKind = iota
	/** @brief Sampled texture. */
	ResourceKindTexture
	/** @brief Sampler object. */
	ResourceKindSampler
	/** @brief Storage image. */
	ResourceKindImage
	/** @brief Virtually backed buffer whose pages are committed on demand. */
	ResourceKindSparseBuffer
)

var resourceKindNames = [...]string{
	ResourceKindBuffer:       "buffer",
	ResourceKindTexture:      "texture",
	ResourceKindSampler:      "sampler",
	ResourceKindImage:        "image",
	ResourceKindSparseBuffer: "sparse_buffer",
}

func (k ResourceKind) String() string {
	if k < 0 || int(k) >= len(resourceKindNames) {
		return "unknown"
	}
	return resourceKindNames[k]
}

/**
 * @brief Creation parameters of a device resource.
 */
type ResourceConfig struct {
	/** @brief The name of the resource, for logging. */
	Name string
	/** @brief The resource kind. */
	Kind ResourceKind
	/** @brief Size in bytes for buffers. For sparse buffers a multiple of the page size. */
	Size uint64
	/** @brief Image width, height and layer count. */
	Width  uint32
	Height uint32
	Layers uint32
	/** @brief Image format. */
	Format uint32
}
