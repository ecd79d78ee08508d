package model

// JobStatus is the state of a remote extraction job.
type JobStatus string

const (
	JobSubmitted  JobStatus = "submitted"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
	JobExpired    JobStatus = "expired"
	JobTimedOut   JobStatus = "timed_out"
)

// Terminal reports whether no further transition can happen.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled, JobExpired, JobTimedOut:
		return true
	}
	return false
}

// JobHandle identifies a submitted job and the transient resources created for it.
type JobHandle struct {
	JobID       string
	StagingPath string
}

// PollResult is one status observation of a job.
type PollResult struct {
	Status         JobStatus
	Payload        []byte
	Message        string
	ExtractedPages int
	TotalPages     int
}

// ExtractedPayload is the raw structured output of a completed job.
type ExtractedPayload struct {
	JobID string
	Data  []byte
}
