package coordinator

// Stage labels a step of the federation. Stages are only reported through
// logs, events and metrics; nothing reads them back.
type Stage string

const (
	StageInitStarted       Stage = "FEDERATION_INITIALIZATION_STARTED"
	StageInitCompleted     Stage = "FEDERATION_INITIALIZATION_COMPLETED"
	StageTrainStarted      Stage = "TRAINING_STARTED"
	StageTrainCompleted    Stage = "TRAINING_COMPLETED"
	StageAggregateStarted  Stage = "AGGREGATION_STARTED"
	StageAggregateComplete Stage = "AGGREGATION_COMPLETED"
	StageTestStarted       Stage = "TESTING_STARTED"
	StageTestCompleted     Stage = "TESTING_COMPLETED"
	StageFederationDone    Stage = "FEDERATION_COMPLETED"
	StageUploadStarted     Stage = "UPLOAD_STARTED"
	StageUploadCompleted   Stage = "UPLOAD_COMPLETED"
	StageUploadFailed      Stage = "UPLOAD_FAILED"
)

func (s Stage) String() string {
	return string(s)
}
