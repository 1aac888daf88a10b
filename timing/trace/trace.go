// Package trace turns akita hook invocations from the core, its dataflow
// manager and its issue queues into structured log lines.
package trace

import (
	"fmt"
	"io"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/rs/xid"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/rvooo/timing/core"
	"github.com/sarchlab/rvooo/timing/dataflow"
	"github.com/sarchlab/rvooo/timing/issue"
)

// Verbosity levels used by LogHook.
const (
	// LevelEvent covers mispredictions, restores and rollbacks.
	LevelEvent = 1
	// LevelRetire adds retirements, snapshots and kills.
	LevelRetire = 2
	// LevelPipeline adds dispatch, issue and register commits.
	LevelPipeline = 3
)

// NewLogger returns a logger writing one line per entry to w, keeping
// entries up to verbosity.
func NewLogger(w io.Writer, verbosity int) logr.Logger {
	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			_, _ = fmt.Fprintf(w, "%s: %s\n", prefix, args)
			return
		}
		_, _ = fmt.Fprintln(w, args)
	}, funcr.Options{Verbosity: verbosity})
}

// LogHook logs hook invocations. Every line carries the run id and, when a
// clock is set, the current cycle.
type LogHook struct {
	logger logr.Logger
	runID  xid.ID
	clock  func() uint64
}

// NewLogHook creates a hook logging to logger under a fresh run id.
func NewLogHook(logger logr.Logger) *LogHook {
	id := xid.New()
	return &LogHook{
		logger: logger.WithValues("run", id.String()),
		runID:  id,
	}
}

// RunID returns the id attached to every line.
func (h *LogHook) RunID() xid.ID {
	return h.runID
}

// SetClock sets the cycle source, usually Core.Cycle.
func (h *LogHook) SetClock(clock func() uint64) {
	h.clock = clock
}

func (h *LogHook) at(level int) logr.Logger {
	l := h.logger.V(level)
	if h.clock != nil {
		l = l.WithValues("cycle", h.clock())
	}
	return l
}

// Func implements sim.Hook.
func (h *LogHook) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case core.HookPosMispredict:
		d := ctx.Detail.(core.MispredictDetail)
		h.at(LevelEvent).Info("mispredict",
			"pc", hex(d.PC), "predicted", hex(d.Predicted), "actual", hex(d.Actual))
	case core.HookPosRetire:
		h.uop(LevelRetire, "retire", ctx.Detail.(*core.Uop))
	case core.HookPosDispatch:
		h.uop(LevelPipeline, "dispatch", ctx.Detail.(*core.Uop))
	case issue.HookPosIssue:
		if u, ok := ctx.Detail.(*core.Uop); ok {
			h.uop(LevelPipeline, "issue", u)
		}
	case issue.HookPosKill:
		d := ctx.Detail.(issue.KillDetail)
		h.at(LevelRetire).Info("kill",
			"killMask", d.Notice.KillMask, "clearMask", d.Notice.ClearMask,
			"force", d.Notice.Force, "killed", d.Killed)
	case dataflow.HookPosSnapshot:
		h.at(LevelRetire).Info("snapshot", "checkpoint", ctx.Detail)
	case dataflow.HookPosRestore:
		h.at(LevelEvent).Info("restore", "checkpoint", ctx.Detail)
	case dataflow.HookPosRollback:
		h.at(LevelEvent).Info("rollback")
	case dataflow.HookPosCommit:
		d := ctx.Detail.(dataflow.CommitDetail)
		h.at(LevelPipeline).Info("commit", "areg", d.Areg, "tag", d.Tag, "freed", d.Freed)
	}
}

func (h *LogHook) uop(level int, msg string, u *core.Uop) {
	inst := "illegal"
	if u.Inst != nil {
		inst = u.Inst.Op.String()
	}

	l := h.at(level)
	if tag, ok := u.Dst(); ok {
		l = l.WithValues("tag", tag)
	}
	l.Info(msg, "seq", u.Seq, "pc", hex(u.PC), "op", inst)
}

func hex(v uint64) string {
	return fmt.Sprintf("0x%x", v)
}
