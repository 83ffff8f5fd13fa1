package editor

import (
	"fmt"

	"lender-policy-review/internal/models"
)

// UpdateLenderField sets one lender field by its JSON name.
func (e *Editor) UpdateLenderField(field string, value any) error {
	return e.mutateLender(func(l *models.Lender) error {
		return l.SetField(field, value)
	})
}

// AddExcludedState appends a state code to the lender's exclusions.
func (e *Editor) AddExcludedState(code string) error {
	return e.mutateLender(func(l *models.Lender) error {
		return l.AddExcludedState(code)
	})
}

// RemoveExcludedState drops a state code from the lender's exclusions.
func (e *Editor) RemoveExcludedState(code string) error {
	return e.mutateLender(func(l *models.Lender) error {
		l.RemoveExcludedState(code)
		return nil
	})
}

// AddExcludedIndustry appends an industry to the lender's exclusions.
func (e *Editor) AddExcludedIndustry(name string) error {
	return e.mutateLender(func(l *models.Lender) error {
		return l.AddExcludedIndustry(name)
	})
}

// RemoveExcludedIndustry drops an industry from the lender's exclusions.
func (e *Editor) RemoveExcludedIndustry(name string) error {
	return e.mutateLender(func(l *models.Lender) error {
		l.RemoveExcludedIndustry(name)
		return nil
	})
}

// mutateLender applies fn to a copy and commits it only on success.
func (e *Editor) mutateLender(fn func(*models.Lender) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return ErrNoWorkingCopy
	}
	next := e.lender.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	e.lender = next
	e.commitLocked()
	return nil
}

// UpdateProgramField sets one field of the program at index.
func (e *Editor) UpdateProgramField(index int, field string, value any) error {
	return e.withProgramAt(index, func(p *programEntry) error {
		return e.setProgramFieldLocked(p, field, value)
	})
}

// UpdateProgramFieldByID sets one field of the program with the given id.
func (e *Editor) UpdateProgramFieldByID(id, field string, value any) error {
	return e.withProgramID(id, func(p *programEntry) error {
		return e.setProgramFieldLocked(p, field, value)
	})
}

func (e *Editor) setProgramFieldLocked(p *programEntry, field string, value any) error {
	next := p.program.Clone()
	if err := next.SetField(field, value); err != nil {
		return err
	}
	p.program = next
	e.commitLocked()
	return nil
}

// AddProgram appends a default program and returns its id.
func (e *Editor) AddProgram() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return "", ErrNoWorkingCopy
	}
	entry := e.newProgramEntry(models.NewProgram())
	e.programs = append(e.programs, entry)
	e.commitLocked()
	return entry.id, nil
}

// DeleteProgram removes the program at index. Expanded state of the
// remaining programs follows them to their new positions.
func (e *Editor) DeleteProgram(index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.programAtLocked(index); err != nil {
		return err
	}
	e.deleteProgramLocked(index)
	return nil
}

// DeleteProgramByID removes the program with the given id.
func (e *Editor) DeleteProgramByID(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	index, err := e.programIndexLocked(id)
	if err != nil {
		return err
	}
	e.deleteProgramLocked(index)
	return nil
}

func (e *Editor) deleteProgramLocked(index int) {
	delete(e.expanded, e.programs[index].id)
	e.programs = append(e.programs[:index:index], e.programs[index+1:]...)
	e.commitLocked()
}

// ToggleProgramExpanded flips the expanded state of the program at index.
// Expansion is presentation state and does not mark the copy dirty.
func (e *Editor) ToggleProgramExpanded(index int) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, err := e.programAtLocked(index)
	if err != nil {
		return false, err
	}
	return e.toggleLocked(entry.id), nil
}

// ToggleProgramExpandedByID flips the expanded state of a program by id.
func (e *Editor) ToggleProgramExpandedByID(id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.programIndexLocked(id); err != nil {
		return false, err
	}
	return e.toggleLocked(id), nil
}

func (e *Editor) toggleLocked(id string) bool {
	if e.expanded[id] {
		delete(e.expanded, id)
		return false
	}
	e.expanded[id] = true
	return true
}

// AddRule appends a default rule to the program at index and returns its id.
func (e *Editor) AddRule(programIndex int) (string, error) {
	var id string
	err := e.withProgramAt(programIndex, func(p *programEntry) error {
		id = e.addRuleLocked(p)
		return nil
	})
	return id, err
}

// AddRuleByID appends a default rule to the program with the given id.
func (e *Editor) AddRuleByID(programID string) (string, error) {
	var id string
	err := e.withProgramID(programID, func(p *programEntry) error {
		id = e.addRuleLocked(p)
		return nil
	})
	return id, err
}

func (e *Editor) addRuleLocked(p *programEntry) string {
	entry := &ruleEntry{id: e.newID(), rule: models.NewRule()}
	p.rules = append(p.rules, entry)
	e.commitLocked()
	return entry.id
}

// UpdateRule replaces the rule at the given position. Any pending criteria
// draft for that rule is dropped.
func (e *Editor) UpdateRule(programIndex, ruleIndex int, rule models.Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, entry, err := e.ruleAtLocked(programIndex, ruleIndex)
	if err != nil {
		return err
	}
	e.replaceRuleLocked(entry, rule)
	return nil
}

// UpdateRuleByID replaces the rule with the given id.
func (e *Editor) UpdateRuleByID(ruleID string, rule models.Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, entry, err := e.ruleByIDLocked(ruleID)
	if err != nil {
		return err
	}
	e.replaceRuleLocked(entry, rule)
	return nil
}

func (e *Editor) replaceRuleLocked(entry *ruleEntry, rule models.Rule) {
	entry.rule = rule.Clone()
	entry.draft = nil
	entry.parseErr = nil
	e.commitLocked()
}

// DeleteRule removes the rule at the given position.
func (e *Editor) DeleteRule(programIndex, ruleIndex int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	program, _, err := e.ruleAtLocked(programIndex, ruleIndex)
	if err != nil {
		return err
	}
	e.deleteRuleLocked(program, ruleIndex)
	return nil
}

// DeleteRuleByID removes the rule with the given id.
func (e *Editor) DeleteRuleByID(ruleID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	program, _, err := e.ruleByIDLocked(ruleID)
	if err != nil {
		return err
	}
	for i, r := range program.rules {
		if r.id == ruleID {
			e.deleteRuleLocked(program, i)
			break
		}
	}
	return nil
}

func (e *Editor) deleteRuleLocked(p *programEntry, index int) {
	p.rules = append(p.rules[:index:index], p.rules[index+1:]...)
	e.commitLocked()
}

// SetCriteriaDraft records free-form criteria text for a rule. Text that
// parses to an object replaces the rule's criteria; anything else
// leaves the criteria untouched and keeps the parse error on the rule until
// a later draft succeeds or the rule is replaced.
func (e *Editor) SetCriteriaDraft(programIndex, ruleIndex int, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, entry, err := e.ruleAtLocked(programIndex, ruleIndex)
	if err != nil {
		return err
	}
	return e.applyDraftLocked(entry, text)
}

// SetCriteriaDraftByID is SetCriteriaDraft addressed by rule id.
func (e *Editor) SetCriteriaDraftByID(ruleID, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, entry, err := e.ruleByIDLocked(ruleID)
	if err != nil {
		return err
	}
	return e.applyDraftLocked(entry, text)
}

func (e *Editor) applyDraftLocked(entry *ruleEntry, text string) error {
	draft := text
	entry.draft = &draft

	criteria, err := models.ParseCriteria(text)
	if err != nil {
		entry.parseErr = fmt.Errorf("%w: %w", ErrCriteriaParse, err)
		return entry.parseErr
	}

	entry.parseErr = nil
	entry.rule.Criteria = criteria
	e.commitLocked()
	return nil
}

func (e *Editor) withProgramAt(index int, fn func(*programEntry) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, err := e.programAtLocked(index)
	if err != nil {
		return err
	}
	return fn(entry)
}

func (e *Editor) withProgramID(id string, fn func(*programEntry) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	index, err := e.programIndexLocked(id)
	if err != nil {
		return err
	}
	return fn(e.programs[index])
}

func (e *Editor) programAtLocked(index int) (*programEntry, error) {
	if !e.loaded {
		return nil, ErrNoWorkingCopy
	}
	if index < 0 || index >= len(e.programs) {
		return nil, fmt.Errorf("%w: %d (have %d)", models.ErrProgramIndexOutOfRange, index, len(e.programs))
	}
	return e.programs[index], nil
}

func (e *Editor) programIndexLocked(id string) (int, error) {
	if !e.loaded {
		return -1, ErrNoWorkingCopy
	}
	for i, entry := range e.programs {
		if entry.id == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", models.ErrProgramNotFound, id)
}

func (e *Editor) ruleAtLocked(programIndex, ruleIndex int) (*programEntry, *ruleEntry, error) {
	program, err := e.programAtLocked(programIndex)
	if err != nil {
		return nil, nil, err
	}
	if ruleIndex < 0 || ruleIndex >= len(program.rules) {
		return nil, nil, fmt.Errorf("%w: %d (program %d has %d)", models.ErrRuleIndexOutOfRange, ruleIndex, programIndex, len(program.rules))
	}
	return program, program.rules[ruleIndex], nil
}

func (e *Editor) ruleByIDLocked(ruleID string) (*programEntry, *ruleEntry, error) {
	if !e.loaded {
		return nil, nil, ErrNoWorkingCopy
	}
	for _, program := range e.programs {
		for _, r := range program.rules {
			if r.id == ruleID {
				return program, r, nil
			}
		}
	}
	return nil, nil, fmt.Errorf("%w: %s", models.ErrRuleNotFound, ruleID)
}
