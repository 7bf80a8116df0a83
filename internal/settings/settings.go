package settings

import "fmt"

const (
	CmdName = "funclat"

	// DefaultWorkers is the default number of parallel workers.
	DefaultWorkers = 10

	// ScriptFile is the perf script output, or the prefix of its chunks
	// when perf script runs in parallel.
	ScriptFile = "script_out"
	// ScriptChunkFormat names the chunk of index i of a parallel script.
	ScriptChunkFormat = ScriptFile + "__%05d"

	PerfDataFile = "perf.data"
)

// ReadySocket is the default socket telling that the recording started.
var ReadySocket = fmt.Sprintf("/tmp/%s.sock", CmdName)
