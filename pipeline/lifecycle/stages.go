package lifecycle

import (
	"github.com/teranos/pursuit/errors"
)

// Stage names form a closed set. Order here is dispatch order: the
// orchestrator drains each stage before pulling the next, so a record
// that advances becomes eligible for its next stage within the same
// tick. Fresh postings move promptly; the rate gates bound the
// external calls, not the tick.
const (
	StageExtract       = "extract"
	StageCompose       = "compose"
	StageSend          = "send"
	StageFollowUp      = "follow_up"
	StageCheckResponse = "check_response"
	StageSchedule      = "schedule"
	StageClose         = "close"
)

// StageDef declares one stage's transition contract: which status a record
// must be in to run it, which status success produces, and which rate-gate
// destination the stage's external action consumes.
type StageDef struct {
	Name         string
	Precondition Status
	OnSuccess    Status
	Destination  string
}

// SelfLoop reports whether success leaves the status unchanged (follow_up
// and check_response poll rather than advance).
func (d StageDef) SelfLoop() bool {
	return d.Precondition == d.OnSuccess
}

// Gated reports whether dispatching this stage consumes rate-gate capacity.
func (d StageDef) Gated() bool {
	return d.Destination != ""
}

// Destinations for the rate gate. Stages sharing a destination share its
// window: send and follow_up both draw from the mail bucket.
const (
	DestExtractor = "extractor"
	DestComposer  = "composer"
	DestMail      = "mail"
	DestInbox     = "inbox"
	DestCalendar  = "calendar"
)

// stageTable is the authoritative transition table, in dispatch order.
var stageTable = []StageDef{
	{Name: StageExtract, Precondition: StatusDiscovered, OnSuccess: StatusExtracted, Destination: DestExtractor},
	{Name: StageCompose, Precondition: StatusExtracted, OnSuccess: StatusApplied, Destination: DestComposer},
	{Name: StageSend, Precondition: StatusApplied, OnSuccess: StatusAwaitingResponse, Destination: DestMail},
	{Name: StageFollowUp, Precondition: StatusAwaitingResponse, OnSuccess: StatusAwaitingResponse, Destination: DestMail},
	{Name: StageCheckResponse, Precondition: StatusAwaitingResponse, OnSuccess: StatusAwaitingResponse, Destination: DestInbox},
	{Name: StageSchedule, Precondition: StatusAwaitingResponse, OnSuccess: StatusInterviewScheduled, Destination: DestCalendar},
	{Name: StageClose, Precondition: StatusInterviewScheduled, OnSuccess: StatusClosed, Destination: ""},
}

// Stages returns the stage definitions in dispatch order.
func Stages() []StageDef {
	out := make([]StageDef, len(stageTable))
	copy(out, stageTable)
	return out
}

// StageByName looks up a stage definition.
func StageByName(name string) (StageDef, error) {
	for _, def := range stageTable {
		if def.Name == name {
			return def, nil
		}
	}
	return StageDef{}, errors.Newf("unknown stage: %s", name)
}

// validateStageTable checks the table's internal consistency once at
// package init. A broken table is a programming error, not a runtime
// condition, so it panics.
func validateStageTable() {
	seen := make(map[string]bool, len(stageTable))
	for _, def := range stageTable {
		if def.Name == "" {
			panic("lifecycle: stage with empty name")
		}
		if seen[def.Name] {
			panic("lifecycle: duplicate stage " + def.Name)
		}
		seen[def.Name] = true

		if !IsValidStatus(string(def.Precondition)) || !IsValidStatus(string(def.OnSuccess)) {
			panic("lifecycle: stage " + def.Name + " references unknown status")
		}
		if def.Precondition.IsTerminal() {
			panic("lifecycle: stage " + def.Name + " preconditioned on terminal status")
		}
	}
}

func init() {
	validateStageTable()
}
