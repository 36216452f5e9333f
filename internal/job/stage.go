package job

// Stage identifies where in the processing pipeline a job currently is.
// Stages are finer-grained than Status: a PROCESSING job walks through
// downloading, probing, generating_text, processing_segment and
// uploading_results before reaching a terminal stage.
type Stage string

const (
	// StageQueued indicates the job is waiting for a worker.
	StageQueued Stage = "queued"
	// StageDownloading indicates the worker is fetching the source video.
	StageDownloading Stage = "downloading"
	// StageProbing indicates the worker is reading video metadata.
	StageProbing Stage = "probing"
	// StageGeneratingText indicates overlay texts are being resolved.
	StageGeneratingText Stage = "generating_text"
	// StageProcessingSegment indicates a segment is being cut and rendered.
	StageProcessingSegment Stage = "processing_segment"
	// StageUploadingResults indicates rendered segments are being stored.
	StageUploadingResults Stage = "uploading_results"
	// StageCompleted indicates the job finished successfully.
	StageCompleted Stage = "completed"
	// StageFailed indicates the job stopped with an error.
	StageFailed Stage = "failed"
)

// Anchor returns the canonical progress percentage for a stage.
// StageProcessingSegment has no single anchor; use SegmentProgress.
func (s Stage) Anchor() int {
	switch s {
	case StageQueued, StageFailed:
		return 0
	case StageDownloading:
		return 2
	case StageProbing:
		return 5
	case StageGeneratingText, StageProcessingSegment:
		return 10
	case StageUploadingResults:
		return 95
	case StageCompleted:
		return 100
	default:
		return 0
	}
}

// Terminal returns true for stages that end the pipeline.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// SegmentProgress returns the progress percentage after done segments out
// of total have finished. Segment work advances progress linearly from 10
// to 90; the remaining 10 points belong to upload and completion.
func SegmentProgress(done, total int) int {
	if total <= 0 {
		return 10
	}
	if done < 0 {
		done = 0
	}
	if done > total {
		done = total
	}
	return 10 + (done*80)/total
}
