package frontend_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvooo/timing/frontend"
)

var _ = Describe("BranchPredictor", func() {
	var bp *frontend.BranchPredictor

	BeforeEach(func() {
		bp = frontend.NewBranchPredictor(frontend.PredictorConfig{
			BHTSize: 16,
			BTBSize: 8,
		})
	})

	Describe("Prediction", func() {
		It("should initially predict taken (biased)", func() {
			pred := bp.Predict(0x1000)
			Expect(pred.Taken).To(BeTrue())
			Expect(pred.TargetKnown).To(BeFalse())
		})

		It("should learn not-taken pattern", func() {
			pc := uint64(0x1000)
			for i := 0; i < 10; i++ {
				bp.Update(pc, false, 0)
			}
			Expect(bp.Predict(pc).Taken).To(BeFalse())
		})
	})

	Describe("2-bit saturating counter", func() {
		It("should require 2 mispredictions to change direction", func() {
			pc := uint64(0x1000)
			target := uint64(0x2000)

			bp.Update(pc, true, target)
			bp.Update(pc, true, target) // saturated at strongly taken

			bp.Update(pc, false, 0)
			Expect(bp.Predict(pc).Taken).To(BeTrue())

			bp.Update(pc, false, 0)
			Expect(bp.Predict(pc).Taken).To(BeFalse())
		})
	})

	Describe("BTB", func() {
		It("should cache taken branch targets only", func() {
			bp.Update(0x1000, false, 0x2000)
			Expect(bp.Predict(0x1000).TargetKnown).To(BeFalse())

			bp.Update(0x1000, true, 0x2000)
			pred := bp.Predict(0x1000)
			Expect(pred.TargetKnown).To(BeTrue())
			Expect(pred.Target).To(Equal(uint64(0x2000)))
		})

		It("should replace a conflicting entry", func() {
			pc1 := uint64(0x1000)
			pc2 := pc1 + 8*4 // same index in an 8-entry BTB

			bp.Update(pc1, true, 0x2000)
			bp.Update(pc2, true, 0x3000)

			Expect(bp.Predict(pc2).Target).To(Equal(uint64(0x3000)))
			Expect(bp.Predict(pc1).TargetKnown).To(BeFalse())
		})
	})

	Describe("Statistics", func() {
		It("should compute accuracy correctly", func() {
			pc := uint64(0x1000)
			for i := 0; i < 3; i++ {
				bp.Predict(pc)
				bp.Update(pc, true, 0x2000)
			}
			bp.Predict(pc)
			bp.Update(pc, false, 0)

			stats := bp.Stats()
			Expect(stats.Predictions).To(Equal(uint64(4)))
			Expect(stats.Correct).To(Equal(uint64(3)))
			Expect(stats.Mispredictions).To(Equal(uint64(1)))
			Expect(stats.Accuracy()).To(BeNumerically("~", 75.0, 0.1))
			Expect(stats.BTBHits).To(Equal(uint64(3)))
			Expect(stats.BTBMisses).To(Equal(uint64(1)))
			Expect(stats.BTBHitRate()).To(BeNumerically("~", 75.0, 0.1))
		})
	})

	Describe("Reset", func() {
		It("should clear all state", func() {
			bp.Update(0x1000, false, 0)
			bp.Update(0x1000, false, 0)
			bp.Update(0x1004, true, 0x2000)

			bp.Reset()

			Expect(bp.Stats()).To(Equal(frontend.PredictorStats{}))
			Expect(bp.Predict(0x1000).Taken).To(BeTrue())
			Expect(bp.Predict(0x1004).TargetKnown).To(BeFalse())
		})
	})

	Describe("Configuration", func() {
		It("should accept the defaults", func() {
			Expect(frontend.DefaultPredictorConfig().Validate()).To(Succeed())
		})

		It("should reject tables that are not a power of two", func() {
			cfg := frontend.PredictorConfig{BHTSize: 12, BTBSize: 8}
			Expect(cfg.Validate()).To(HaveOccurred())
			Expect(func() { frontend.NewBranchPredictor(cfg) }).To(Panic())
		})
	})
})
