package pipeline

import "fmt"

// StageError reports a stage whose engine invocation returned a non-zero
// exit status. The referenced log holds the engine's diagnostics.
type StageError struct {
	Stage    string
	ExitCode int
	LogPath  string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s exited with code %d (see %s)", e.Stage, e.ExitCode, e.LogPath)
}
