// Package assembler converts the interleaved inbound event stream into
// completed Turn records, emitting each turn the moment its boundary arrives.
package assembler

import (
	"go.uber.org/zap"

	"github.com/jonasttaws/nova-sonic-training/domain/entities"
)

// EmitFunc receives completed, non-empty turns in boundary-arrival order.
type EmitFunc func(*entities.Turn)

// Assembler maintains exactly one open turn per role. Content events append
// to the open turn of their role; a turn-boundary closes it. Turns interleave
// across roles in arrival order; no reordering is attempted.
type Assembler struct {
	emit   EmitFunc
	logger *zap.Logger

	open    map[entities.Role]*entities.Turn
	lastSeq map[entities.Role]uint32
}

// New creates an assembler that hands completed turns to emit.
func New(logger *zap.Logger, emit EmitFunc) *Assembler {
	return &Assembler{
		emit:    emit,
		logger:  logger,
		open:    make(map[entities.Role]*entities.Turn),
		lastSeq: make(map[entities.Role]uint32),
	}
}

// Process feeds one inbound event through the assembler. It returns the
// event's error for EventError so the session can enter recovery; all other
// events return nil.
func (a *Assembler) Process(ev entities.StreamEvent) error {
	switch ev.Type {
	case entities.EventAudioChunk:
		if ev.Frame.Empty() {
			return nil
		}
		a.checkSequence(ev.Role, ev.Frame.Seq)
		a.turnFor(ev.Role).AppendFrame(ev.Frame)

	case entities.EventPartialTranscript:
		a.turnFor(ev.Role).AppendPartial(ev.Text)

	case entities.EventFinalTranscript:
		a.turnFor(ev.Role).SetFinalTranscript(ev.Text)

	case entities.EventTurnBoundary:
		a.closeTurn(ev.Role)

	case entities.EventError:
		// Abort both open turns rather than silently dropping buffered audio;
		// the session state machine decides how to recover.
		a.abortAll()
		return ev.Err

	case entities.EventEndOfSession:
		a.Flush()

	default:
		a.logger.Warn("Unknown stream event type", zap.String("type", string(ev.Type)))
	}
	return nil
}

// TruncateRole closes the open turn for a role early, keeping its transcript
// but flagging it truncated. Used when a barge-in cuts off assistant audio.
func (a *Assembler) TruncateRole(role entities.Role) {
	turn, ok := a.open[role]
	if !ok {
		return
	}
	delete(a.open, role)
	turn.Truncate()
	if !turn.IsEmpty() {
		a.emit(turn)
	}
}

// Flush closes and emits any non-empty open turns, in role order user first.
// Called at end of session so trailing speech is not lost.
func (a *Assembler) Flush() {
	a.closeTurn(entities.RoleUser)
	a.closeTurn(entities.RoleAssistant)
}

// OpenTurn returns the currently open turn for a role, or nil.
func (a *Assembler) OpenTurn(role entities.Role) *entities.Turn {
	return a.open[role]
}

func (a *Assembler) turnFor(role entities.Role) *entities.Turn {
	turn, ok := a.open[role]
	if !ok {
		turn = entities.NewTurn(role)
		a.open[role] = turn
	}
	return turn
}

// closeTurn handles a boundary: a boundary with no prior content closes an
// empty turn without emitting it, guarding against spurious boundaries.
func (a *Assembler) closeTurn(role entities.Role) {
	turn, ok := a.open[role]
	if !ok {
		return
	}
	delete(a.open, role)
	if turn.IsEmpty() {
		return
	}
	turn.MarkComplete()
	a.emit(turn)
}

func (a *Assembler) abortAll() {
	for role, turn := range a.open {
		a.logger.Warn("Aborting open turn",
			zap.String("role", string(role)),
			zap.Int("frames", len(turn.Frames)))
		delete(a.open, role)
	}
}

// checkSequence logs sequence gaps. Policy: the gap is reported and every
// subsequent frame is still delivered in order; nothing after the gap is
// dropped.
func (a *Assembler) checkSequence(role entities.Role, seq uint32) {
	last, seen := a.lastSeq[role]
	if seen && seq > last+1 {
		a.logger.Warn("Audio sequence gap detected",
			zap.String("role", string(role)),
			zap.Uint32("lastSeq", last),
			zap.Uint32("seq", seq))
	}
	if !seen || seq > last {
		a.lastSeq[role] = seq
	}
}
