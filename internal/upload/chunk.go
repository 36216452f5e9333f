package upload

// MiB is one mebibyte in bytes.
const MiB = 1 << 20

// ChunkPlan is the chunk size and client-side parallelism chosen for a
// multipart upload.
type ChunkPlan struct {
	ChunkSize     int64 `json:"chunk_size"`
	MaxConcurrent int   `json:"max_concurrent_uploads"`
}

// PlanChunks picks the chunk size and upload concurrency from the
// declared file size and the client's mobile hint. Mobile clients get
// smaller chunks and fewer parallel uploads to survive flaky links.
func PlanChunks(size int64, mobile bool) ChunkPlan {
	switch {
	case size <= 100*MiB:
		if mobile {
			return ChunkPlan{ChunkSize: 5 * MiB, MaxConcurrent: 2}
		}
		return ChunkPlan{ChunkSize: 10 * MiB, MaxConcurrent: 4}
	case size <= 500*MiB:
		if mobile {
			return ChunkPlan{ChunkSize: 8 * MiB, MaxConcurrent: 3}
		}
		return ChunkPlan{ChunkSize: 15 * MiB, MaxConcurrent: 6}
	case size <= 1024*MiB:
		if mobile {
			return ChunkPlan{ChunkSize: 10 * MiB, MaxConcurrent: 3}
		}
		return ChunkPlan{ChunkSize: 20 * MiB, MaxConcurrent: 6}
	default:
		if mobile {
			return ChunkPlan{ChunkSize: 15 * MiB, MaxConcurrent: 4}
		}
		return ChunkPlan{ChunkSize: 25 * MiB, MaxConcurrent: 8}
	}
}
