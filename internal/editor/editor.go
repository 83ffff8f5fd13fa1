// Package editor holds the editable working copy of an extracted lender policy.
//
// Programs and rules receive an ephemeral id when the working copy is
// installed. Every operation is addressable by position (as the form renders
// it) or by id; expanded-program state is tracked by id so it survives
// deletions that shift positions.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lender-policy-review/internal/models"
	"lender-policy-review/internal/utils"
)

var (
	// ErrNoWorkingCopy is returned when no extraction data is loaded.
	ErrNoWorkingCopy = errors.New("no working copy loaded")
	// ErrNoCommitter is returned by Save when no committer is attached.
	ErrNoCommitter = errors.New("editor has no committer")
	// ErrCriteriaParse wraps a criteria draft that could not be parsed.
	ErrCriteriaParse = errors.New("criteria text could not be parsed")
)

// Committer persists the working copy and returns the authoritative result.
type Committer interface {
	SaveEdits(ctx context.Context, req models.UpdateExtractionRequest) (*models.ExtractionResult, error)
}

type ruleEntry struct {
	id       string
	rule     models.Rule
	draft    *string
	parseErr error
}

type programEntry struct {
	id      string
	program models.Program // Rules is always nil; see rules
	rules   []*ruleEntry
}

// Editor is the nested lender → programs → rules working copy.
type Editor struct {
	mu        sync.Mutex
	committer Committer
	logger    *zap.Logger
	newID     func() string
	listeners []func(Event)

	source       *models.ExtractionResult
	extractionID string
	loaded       bool
	lender       models.Lender
	programs     []*programEntry
	expanded     map[string]bool

	editSeq  int
	savedSeq int
}

// Option configures an Editor.
type Option func(*Editor)

// WithCommitter attaches the component that performs saves.
func WithCommitter(c Committer) Option {
	return func(e *Editor) { e.committer = c }
}

// WithLogger sets the editor logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Editor) { e.logger = l }
}

// WithIDGenerator replaces the ephemeral id source.
func WithIDGenerator(gen func() string) Option {
	return func(e *Editor) { e.newID = gen }
}

// New creates an empty editor.
func New(opts ...Option) *Editor {
	e := &Editor{
		newID:    func() string { return uuid.NewString() },
		expanded: map[string]bool{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = utils.OrDefault(e.logger, "policy-editor")
	return e
}

// SetCommitter attaches the save target after construction.
func (e *Editor) SetCommitter(c Committer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.committer = c
}

// Subscribe registers fn to receive editor events.
func (e *Editor) Subscribe(fn func(Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Load installs a fresh working copy from an extraction result. Loading the
// result that is already installed is a no-op; any other result replaces the
// working copy and discards unsaved edits. A nil result, or one without
// extracted data, clears the working copy.
func (e *Editor) Load(result *models.ExtractionResult) {
	e.mu.Lock()
	if result != nil && result == e.source {
		e.mu.Unlock()
		return
	}

	e.source = result
	var events []Event
	if result == nil || result.ExtractedData == nil {
		events = e.clearLocked()
		if result != nil {
			e.extractionID = result.ExtractionID
		}
	} else {
		e.extractionID = result.ExtractionID
		events = e.installLocked(result.ExtractedData.Lender, result.ExtractedData.Programs)
	}
	listeners := e.listenersLocked()
	e.mu.Unlock()

	e.emit(listeners, events)
}

// SetWorkingCopy replaces the entire working copy with lender and programs,
// discarding unsaved edits. The first program starts expanded.
func (e *Editor) SetWorkingCopy(lender models.Lender, programs []models.Program) {
	e.mu.Lock()
	events := e.installLocked(lender, programs)
	listeners := e.listenersLocked()
	e.mu.Unlock()

	e.emit(listeners, events)
}

func (e *Editor) installLocked(lender models.Lender, programs []models.Program) []Event {
	events := e.discardLocked()

	e.lender = lender.Clone()
	e.programs = make([]*programEntry, 0, len(programs))
	for _, p := range programs {
		e.programs = append(e.programs, e.newProgramEntry(p))
	}
	e.expanded = map[string]bool{}
	if len(e.programs) > 0 {
		e.expanded[e.programs[0].id] = true
	}
	e.loaded = true
	e.editSeq, e.savedSeq = 0, 0

	e.logger.Debug("Installed working copy",
		zap.String("extraction_id", e.extractionID),
		zap.Int("programs", len(e.programs)),
	)
	return append(events, Event{Kind: EventWorkingCopyInstalled, ExtractionID: e.extractionID})
}

func (e *Editor) clearLocked() []Event {
	events := e.discardLocked()
	e.lender = models.Lender{}
	e.programs = nil
	e.expanded = map[string]bool{}
	e.loaded = false
	e.extractionID = ""
	e.editSeq, e.savedSeq = 0, 0
	return append(events, Event{Kind: EventWorkingCopyCleared})
}

// discardLocked reports edits that are about to be thrown away.
func (e *Editor) discardLocked() []Event {
	lost := e.editSeq - e.savedSeq
	if !e.loaded || lost <= 0 {
		return nil
	}
	e.logger.Info("Discarding unsaved edits",
		zap.String("extraction_id", e.extractionID),
		zap.Int("lost_edits", lost),
	)
	return []Event{{Kind: EventUnsavedEditsDiscarded, ExtractionID: e.extractionID, LostEdits: lost}}
}

func (e *Editor) newProgramEntry(p models.Program) *programEntry {
	entry := &programEntry{id: e.newID()}
	entry.program = p.Clone()
	entry.program.Rules = nil
	entry.rules = make([]*ruleEntry, 0, len(p.Rules))
	for _, r := range p.Rules {
		entry.rules = append(entry.rules, &ruleEntry{id: e.newID(), rule: r.Clone()})
	}
	return entry
}

// Dirty reports whether there are edits not yet handed to a save.
func (e *Editor) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.editSeq != e.savedSeq
}

// HasWorkingCopy reports whether editable data is loaded.
func (e *Editor) HasWorkingCopy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// Lender returns a copy of the working lender.
func (e *Editor) Lender() models.Lender {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lender.Clone()
}

// Programs returns a deep copy of the working programs with their rules.
func (e *Editor) Programs() []models.Program {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.programsLocked()
}

func (e *Editor) programsLocked() []models.Program {
	out := make([]models.Program, 0, len(e.programs))
	for _, entry := range e.programs {
		p := entry.program.Clone()
		p.Rules = make([]models.Rule, 0, len(entry.rules))
		for _, r := range entry.rules {
			p.Rules = append(p.Rules, r.rule.Clone())
		}
		p.Normalize()
		out = append(out, p)
	}
	return out
}

// ProgramID returns the ephemeral id of the program at index.
func (e *Editor) ProgramID(index int) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, err := e.programAtLocked(index)
	if err != nil {
		return "", err
	}
	return entry.id, nil
}

// RuleID returns the ephemeral id of one rule.
func (e *Editor) RuleID(programIndex, ruleIndex int) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, rule, err := e.ruleAtLocked(programIndex, ruleIndex)
	if err != nil {
		return "", err
	}
	return rule.id, nil
}

// ExpandedIndices returns the positions of expanded programs in order.
func (e *Editor) ExpandedIndices() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	indices := []int{}
	for i, entry := range e.programs {
		if e.expanded[entry.id] {
			indices = append(indices, i)
		}
	}
	return indices
}

// Save hands the working copy to the committer and installs the returned
// result. Field validity is advisory and never blocks a save. On failure the
// working copy and its edits are kept.
func (e *Editor) Save(ctx context.Context) (*models.ExtractionResult, error) {
	e.mu.Lock()
	if !e.loaded {
		e.mu.Unlock()
		return nil, ErrNoWorkingCopy
	}
	if e.committer == nil {
		e.mu.Unlock()
		return nil, ErrNoCommitter
	}
	committer := e.committer
	lender := e.lender.Clone()
	lender.Normalize()
	req := models.UpdateExtractionRequest{Lender: &lender, Programs: e.programsLocked()}
	seq, prevSaved := e.editSeq, e.savedSeq
	e.savedSeq = seq
	listeners := e.listenersLocked()
	extractionID := e.extractionID
	e.mu.Unlock()

	e.emit(listeners, []Event{{Kind: EventSaveRequested, ExtractionID: extractionID}})

	result, err := committer.SaveEdits(ctx, req)
	if err != nil {
		e.mu.Lock()
		if e.savedSeq == seq {
			e.savedSeq = prevSaved
		}
		e.mu.Unlock()
		return nil, fmt.Errorf("save edits: %w", err)
	}

	e.Load(result)
	return result, nil
}

// commitLocked records one successful edit.
func (e *Editor) commitLocked() {
	e.editSeq++
}

func (e *Editor) listenersLocked() []func(Event) {
	listeners := make([]func(Event), len(e.listeners))
	copy(listeners, e.listeners)
	return listeners
}

func (e *Editor) emit(listeners []func(Event), events []Event) {
	for _, ev := range events {
		for _, fn := range listeners {
			fn(ev)
		}
	}
}
