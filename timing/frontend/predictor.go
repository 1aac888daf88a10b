package frontend

import "fmt"

// PredictorConfig holds configuration for the branch predictor.
type PredictorConfig struct {
	// BHTSize is the number of entries in the Branch History Table.
	// Must be a power of 2. Default is 1024.
	BHTSize uint32 `json:"bht_size" yaml:"bht_size"`
	// BTBSize is the number of entries in the Branch Target Buffer.
	// Must be a power of 2. Default is 256.
	BTBSize uint32 `json:"btb_size" yaml:"btb_size"`
}

// DefaultPredictorConfig returns a default configuration.
func DefaultPredictorConfig() PredictorConfig {
	return PredictorConfig{
		BHTSize: 1024,
		BTBSize: 256,
	}
}

// Validate checks that both tables are sized as powers of two.
func (c PredictorConfig) Validate() error {
	if c.BHTSize == 0 || c.BHTSize&(c.BHTSize-1) != 0 {
		return fmt.Errorf("bht_size must be a power of two")
	}
	if c.BTBSize == 0 || c.BTBSize&(c.BTBSize-1) != 0 {
		return fmt.Errorf("btb_size must be a power of two")
	}
	return nil
}

// PredictorStats holds statistics for the branch predictor.
type PredictorStats struct {
	// Predictions is the total number of branch predictions made.
	Predictions uint64
	// Correct is the number of correct direction predictions.
	Correct uint64
	// Mispredictions is the number of incorrect direction predictions.
	Mispredictions uint64
	// BTBHits is the number of BTB hits.
	BTBHits uint64
	// BTBMisses is the number of BTB misses.
	BTBMisses uint64
}

// Accuracy returns the prediction accuracy as a percentage.
func (s PredictorStats) Accuracy() float64 {
	total := s.Correct + s.Mispredictions
	if total == 0 {
		return 0
	}
	return float64(s.Correct) / float64(total) * 100
}

// BTBHitRate returns the BTB hit rate as a percentage.
func (s PredictorStats) BTBHitRate() float64 {
	total := s.BTBHits + s.BTBMisses
	if total == 0 {
		return 0
	}
	return float64(s.BTBHits) / float64(total) * 100
}

// Prediction represents a branch prediction result.
type Prediction struct {
	// Taken indicates whether the branch is predicted to be taken.
	Taken bool
	// Target is the predicted target address (if known from BTB).
	Target uint64
	// TargetKnown indicates whether the target address is known.
	TargetKnown bool
}

// BranchPredictor implements a 2-bit saturating counter (bimodal) predictor
// with a Branch Target Buffer (BTB).
type BranchPredictor struct {
	// States: 0=Strongly Not Taken, 1=Weakly Not Taken,
	//         2=Weakly Taken, 3=Strongly Taken
	bht []uint8

	btb      []btbEntry
	btbValid []bool

	bhtSize uint32
	btbSize uint32

	stats PredictorStats
}

type btbEntry struct {
	pc     uint64
	target uint64
}

// NewBranchPredictor creates a new branch predictor. It panics on an
// invalid configuration.
func NewBranchPredictor(config PredictorConfig) *BranchPredictor {
	if err := config.Validate(); err != nil {
		panic(fmt.Sprintf("frontend: invalid predictor config: %v", err))
	}

	bp := &BranchPredictor{
		bht:      make([]uint8, config.BHTSize),
		btb:      make([]btbEntry, config.BTBSize),
		btbValid: make([]bool, config.BTBSize),
		bhtSize:  config.BHTSize,
		btbSize:  config.BTBSize,
	}
	bp.Reset()

	return bp
}

// RV64IM instructions are 4-byte aligned, so the low two PC bits carry no
// information.
func (bp *BranchPredictor) bhtIndex(pc uint64) uint32 {
	return uint32((pc >> 2) & uint64(bp.bhtSize-1))
}

func (bp *BranchPredictor) btbIndex(pc uint64) uint32 {
	return uint32((pc >> 2) & uint64(bp.btbSize-1))
}

// Predict makes a branch prediction for the given PC.
func (bp *BranchPredictor) Predict(pc uint64) Prediction {
	pred := Prediction{
		Taken: bp.bht[bp.bhtIndex(pc)] >= 2,
	}

	idx := bp.btbIndex(pc)
	if bp.btbValid[idx] && bp.btb[idx].pc == pc {
		pred.Target = bp.btb[idx].target
		pred.TargetKnown = true
		bp.stats.BTBHits++
	} else {
		bp.stats.BTBMisses++
	}

	bp.stats.Predictions++
	return pred
}

// Update trains the predictor with the resolved outcome of the branch at pc.
func (bp *BranchPredictor) Update(pc uint64, taken bool, target uint64) {
	bhtIdx := bp.bhtIndex(pc)
	counter := bp.bht[bhtIdx]

	if (counter >= 2) == taken {
		bp.stats.Correct++
	} else {
		bp.stats.Mispredictions++
	}

	if taken {
		if counter < 3 {
			bp.bht[bhtIdx] = counter + 1
		}
	} else if counter > 0 {
		bp.bht[bhtIdx] = counter - 1
	}

	if taken {
		idx := bp.btbIndex(pc)
		bp.btb[idx] = btbEntry{pc: pc, target: target}
		bp.btbValid[idx] = true
	}
}

// Stats returns the branch predictor statistics.
func (bp *BranchPredictor) Stats() PredictorStats {
	return bp.stats
}

// Reset clears all predictor state and statistics. Counters start weakly
// taken.
func (bp *BranchPredictor) Reset() {
	for i := range bp.bht {
		bp.bht[i] = 2
	}
	for i := range bp.btbValid {
		bp.btbValid[i] = false
	}
	bp.stats = PredictorStats{}
}
