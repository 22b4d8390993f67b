package display

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"

	"github.com/teranos/pursuit/pipeline/lifecycle"
)

// statusOrder fixes the row order of the status summary so repeated runs
// line up; map iteration would shuffle it.
var statusOrder = []lifecycle.Status{
	lifecycle.StatusDiscovered,
	lifecycle.StatusExtracted,
	lifecycle.StatusApplied,
	lifecycle.StatusAwaitingResponse,
	lifecycle.StatusInterviewScheduled,
	lifecycle.StatusClosed,
	lifecycle.StatusFailed,
	lifecycle.StatusStale,
}

// RenderStatusCounts prints the per-status record summary.
func RenderStatusCounts(counts map[lifecycle.Status]int) error {
	data := pterm.TableData{{"Status", "Records"}}
	total := 0
	for _, status := range statusOrder {
		n, ok := counts[status]
		if !ok {
			continue
		}
		data = append(data, []string{string(status), strconv.Itoa(n)})
		total += n
	}
	data = append(data, []string{"total", strconv.Itoa(total)})
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

// RenderRecords prints one row per record.
func RenderRecords(records []*lifecycle.JobRecord) error {
	if len(records) == 0 {
		pterm.Info.Println("No records")
		return nil
	}

	data := pterm.TableData{{"Fingerprint", "Company", "Title", "Status", "Updated"}}
	for _, rec := range records {
		data = append(data, []string{
			shortFingerprint(rec.Fingerprint),
			rec.Company,
			rec.Title,
			string(rec.Status),
			rec.UpdatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

// RenderRecordDetail prints one record's fields followed by its full
// transition history.
func RenderRecordDetail(rec *lifecycle.JobRecord, attempts []lifecycle.StageAttempt) error {
	pterm.DefaultSection.Printf("%s — %s", rec.Company, rec.Title)

	detail := pterm.TableData{
		{"Fingerprint", rec.Fingerprint},
		{"Status", string(rec.Status)},
		{"Location", rec.Location},
		{"Region", rec.Region},
	}
	if rec.Contact != nil {
		detail = append(detail, []string{"Contact", *rec.Contact})
	}
	if rec.SalaryMin != nil && rec.SalaryMax != nil {
		detail = append(detail, []string{"Salary", fmt.Sprintf("%d – %d", *rec.SalaryMin, *rec.SalaryMax)})
	}
	if rec.SentMessageID != nil {
		detail = append(detail, []string{"Sent message", *rec.SentMessageID})
	}
	if rec.FollowUpCount > 0 {
		detail = append(detail, []string{"Follow-ups", strconv.Itoa(rec.FollowUpCount)})
	}
	if rec.InterviewStart != nil {
		detail = append(detail, []string{"Interview", rec.InterviewStart.Local().Format(time.RFC1123)})
	}
	if rec.ClosedReason != nil {
		detail = append(detail, []string{"Closed", *rec.ClosedReason})
	}
	for _, src := range rec.Sources {
		detail = append(detail, []string{"Source", src.Platform + " / " + src.SourceID})
	}
	if err := pterm.DefaultTable.WithData(detail).Render(); err != nil {
		return err
	}

	if len(attempts) == 0 {
		return nil
	}
	pterm.DefaultSection.Println("History")
	history := pterm.TableData{{"When", "Stage", "Outcome", "Detail"}}
	for _, a := range attempts {
		detailText := a.Detail
		if a.Error != "" {
			detailText = a.Error
		}
		history = append(history, []string{
			a.EndedAt.Local().Format("2006-01-02 15:04:05"),
			a.Stage,
			string(a.Outcome),
			detailText,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(history).Render()
}

// IngestRow is one source's poll outcome for the ingest report table.
type IngestRow struct {
	Source   string
	Fetched  int
	New      int
	Merged   int
	Filtered int
	Invalid  int
	Err      error
}

// RenderIngestReport prints the per-source outcome of one ingest cycle.
func RenderIngestReport(rows []IngestRow) error {
	data := pterm.TableData{{"Source", "Fetched", "New", "Merged", "Filtered", "Invalid"}}
	for _, row := range rows {
		if row.Err != nil {
			data = append(data, []string{row.Source, "failed: " + row.Err.Error(), "", "", "", ""})
			continue
		}
		data = append(data, []string{
			row.Source,
			strconv.Itoa(row.Fetched),
			strconv.Itoa(row.New),
			strconv.Itoa(row.Merged),
			strconv.Itoa(row.Filtered),
			strconv.Itoa(row.Invalid),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func shortFingerprint(fp string) string {
	if len(fp) <= 12 {
		return fp
	}
	return fp[:12]
}
