package core

// Stats holds performance statistics for the core.
type Stats struct {
	// Cycles is the total number of cycles simulated.
	Cycles uint64
	// Instructions is the number of instructions retired.
	Instructions uint64

	Dispatched uint64
	Issued     uint64

	// BranchesResolved counts branches and indirect jumps checked against
	// their prediction.
	BranchesResolved uint64
	Mispredictions   uint64
	// Flushes counts misprediction recoveries and exception rollbacks.
	Flushes uint64

	// Dispatch stall cycles by cause. StallIssuePort counts cycles an
	// instruction waited because its queue already took an insert that
	// cycle; StallIssueQueueFull counts cycles its queue had no free slot.
	StallROBFull        uint64
	StallIssueQueueFull uint64
	StallIssuePort      uint64
	StallNoRegister     uint64
	StallNoStoreID      uint64
	StallNoCheckpoint   uint64
	StallSerialize      uint64
}

// CPI returns cycles per retired instruction.
func (s Stats) CPI() float64 {
	if s.Instructions == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Instructions)
}

// IPC returns retired instructions per cycle.
func (s Stats) IPC() float64 {
	if s.Cycles == 0 {
		return 0
	}
	return float64(s.Instructions) / float64(s.Cycles)
}

// MispredictRate returns mispredictions per resolved branch as a percentage.
func (s Stats) MispredictRate() float64 {
	if s.BranchesResolved == 0 {
		return 0
	}
	return float64(s.Mispredictions) / float64(s.BranchesResolved) * 100
}
