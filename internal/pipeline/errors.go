package pipeline

import "fmt"

// Stage names the five sequential processing steps.
type Stage string

const (
	StageDownload   Stage = "download"
	StageTranscribe Stage = "transcribe"
	StageAnalyze    Stage = "analyze"
	StageCut        Stage = "cut"
	StageExport     Stage = "export"
)

// Stages lists the stages in dependency order.
var Stages = []Stage{StageDownload, StageTranscribe, StageAnalyze, StageCut, StageExport}

// StageError is a fatal failure of one stage for one video. It carries the
// stage name, the video id and the underlying tool or service error, enough
// context to resume manually from the failing stage.
type StageError struct {
	Stage   Stage
	VideoID string
	Err     error
}

func (e *StageError) Error() string {
	if e.VideoID == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.VideoID, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage Stage, videoID string, err error) error {
	return &StageError{Stage: stage, VideoID: videoID, Err: err}
}

func stageErrf(stage Stage, videoID, format string, args ...any) error {
	return &StageError{Stage: stage, VideoID: videoID, Err: fmt.Errorf(format, args...)}
}
