package types

const (
	// Calibration preamble magic, written by firmware as its first state.
	MON_ST_CHECK = 0xAABB

	// File sink state tag announcing an info payload.
	MON_INFO_TAG = 0xFFFF

	// File sink magic, 'ctkm'.
	MON_FILE_MAGIC = 0x63746b6d

	CTL_INFO_LEN_MASK = 0xFF
	CTL_RECORD        = 0x100
	CTL_INFO_MODE     = 0x200

	EVENT_STATE = 1
	EVENT_INFO  = 2
)

// Sink kinds accepted by the factory.
const (
	SinkDiscard = "discard"
	SinkStdout  = "stdout"
	SinkFile    = "file"
	SinkTrace   = "trace"
	SinkKafka   = "kafka"
)

// Skip policies.
const (
	SkipDiscard = "discard"
	SkipBuffer  = "buffer"
	SkipWarn    = "warn"
)

// Fixed monitor register block.
const (
	REG_CTX = 0x1C0
	REG_ENT = 0x1C2
	REG_STI = 0x1C4
	REG_CTL = 0x1C6
)

// Firmware symbols of the relocatable register block.
const (
	SYM_CTX = "memmon_reg_ctx"
	SYM_ENT = "memmon_reg_ent"
	SYM_STI = "memmon_reg_sti"
	SYM_CTL = "memmon_reg_ctl"
)

// Capture record flags.
const (
	CAPTURE_ATTACH = 1
	CAPTURE_DETACH = 2
	CAPTURE_MEMORY = 3
	CAPTURE_WRITE  = 4
)
