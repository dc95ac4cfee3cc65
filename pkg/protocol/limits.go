package protocol

// Size limits applied when decoding client input.
const (
	// MaxMessageSize is the largest command frame or batch body accepted.
	MaxMessageSize = 64 * 1024

	// MaxBatchSize is the largest number of commands in one batch.
	MaxBatchSize = 256
)
