// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package assembly

// Phase is the position of a [Job] in its lifecycle. A job moves through the
// phases in declaration order, except that it may jump to Failed from any
// phase before Complete.
type Phase int32

const (
	Created        Phase = iota // Submitted and waiting to start
	Starting                    // StartJob is running
	Executing                   // ExecuteJob is running
	AwaitingCommit              // ExecuteJob returned; waiting for predecessors to commit
	Committing                  // EndJob is running
	Complete                    // EndJob returned without error
	Failed                      // A phase failed or the job was cancelled
)

var phaseNames = [...]string{
	Created:        "created",
	Starting:       "starting",
	Executing:      "executing",
	AwaitingCommit: "awaiting-commit",
	Committing:     "committing",
	Complete:       "complete",
	Failed:         "failed",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// Terminal reports whether no further transitions are possible.
func (p Phase) Terminal() bool {
	return p == Complete || p == Failed
}
