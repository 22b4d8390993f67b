package lifecycle

import (
	"database/sql"
	"time"

	"github.com/teranos/pursuit/errors"
)

// recordScanArgs holds the nullable columns of a job_records row so scan
// targets stay aligned with recordSelectColumns.
type recordScanArgs struct {
	Requirements   sql.NullString
	Contact        sql.NullString
	SalaryMin      sql.NullInt64
	SalaryMax      sql.NullInt64
	DraftSubject   sql.NullString
	DraftBody      sql.NullString
	SentMessageID  sql.NullString
	InterviewStart sql.NullString
	InterviewEnd   sql.NullString
	ConfirmationID sql.NullString
	ClosedReason   sql.NullString
	CreatedAt      string
	UpdatedAt      string
}

// recordSelectColumns is the canonical column list for job record SELECTs.
// Order must match recordScanTargets.
const recordSelectColumns = `fingerprint, company, title, location, region, description,
		requirements, contact, salary_min, salary_max,
		draft_subject, draft_body, sent_message_id,
		follow_up_count, interview_requested,
		interview_start, interview_end, confirmation_id,
		status, closed_reason, created_at, updated_at`

func recordScanTargets(rec *JobRecord, args *recordScanArgs) []interface{} {
	return []interface{}{
		&rec.Fingerprint,
		&rec.Company,
		&rec.Title,
		&rec.Location,
		&rec.Region,
		&rec.Description,
		&args.Requirements,
		&args.Contact,
		&args.SalaryMin,
		&args.SalaryMax,
		&args.DraftSubject,
		&args.DraftBody,
		&args.SentMessageID,
		&rec.FollowUpCount,
		&rec.InterviewRequested,
		&args.InterviewStart,
		&args.InterviewEnd,
		&args.ConfirmationID,
		&rec.Status,
		&args.ClosedReason,
		&args.CreatedAt,
		&args.UpdatedAt,
	}
}

// processRecordScanArgs moves the nullable columns onto the record and
// parses timestamps. Timestamps are stored as RFC3339 UTC text; a row that
// fails to parse indicates schema drift, not bad input.
func processRecordScanArgs(rec *JobRecord, args *recordScanArgs) error {
	if args.Requirements.Valid {
		rec.Requirements = &args.Requirements.String
	}
	if args.Contact.Valid {
		rec.Contact = &args.Contact.String
	}
	if args.SalaryMin.Valid {
		rec.SalaryMin = &args.SalaryMin.Int64
	}
	if args.SalaryMax.Valid {
		rec.SalaryMax = &args.SalaryMax.Int64
	}
	if args.DraftSubject.Valid {
		rec.DraftSubject = &args.DraftSubject.String
	}
	if args.DraftBody.Valid {
		rec.DraftBody = &args.DraftBody.String
	}
	if args.SentMessageID.Valid {
		rec.SentMessageID = &args.SentMessageID.String
	}
	if args.ConfirmationID.Valid {
		rec.ConfirmationID = &args.ConfirmationID.String
	}
	if args.ClosedReason.Valid {
		rec.ClosedReason = &args.ClosedReason.String
	}

	if args.InterviewStart.Valid {
		t, err := time.Parse(time.RFC3339, args.InterviewStart.String)
		if err != nil {
			return errors.Wrapf(err, "parse interview_start for %s", rec.Fingerprint)
		}
		rec.InterviewStart = &t
	}
	if args.InterviewEnd.Valid {
		t, err := time.Parse(time.RFC3339, args.InterviewEnd.String)
		if err != nil {
			return errors.Wrapf(err, "parse interview_end for %s", rec.Fingerprint)
		}
		rec.InterviewEnd = &t
	}

	var err error
	rec.CreatedAt, err = time.Parse(time.RFC3339, args.CreatedAt)
	if err != nil {
		return errors.Wrapf(err, "parse created_at for %s", rec.Fingerprint)
	}
	rec.UpdatedAt, err = time.Parse(time.RFC3339, args.UpdatedAt)
	if err != nil {
		return errors.Wrapf(err, "parse updated_at for %s", rec.Fingerprint)
	}
	return nil
}

// scanRecordFromRow scans a single record from a sql.Row.
func scanRecordFromRow(row *sql.Row, rec *JobRecord) error {
	args := &recordScanArgs{}
	if err := row.Scan(recordScanTargets(rec, args)...); err != nil {
		return err
	}
	return processRecordScanArgs(rec, args)
}

// scanRecordFromRows scans a single record from sql.Rows (for use in loops).
func scanRecordFromRows(rows *sql.Rows, rec *JobRecord) error {
	args := &recordScanArgs{}
	if err := rows.Scan(recordScanTargets(rec, args)...); err != nil {
		return err
	}
	return processRecordScanArgs(rec, args)
}

// scanRecords drains rows into records, wrapping iteration errors with the
// query context.
func scanRecords(rows *sql.Rows, context string) ([]*JobRecord, error) {
	var records []*JobRecord
	for rows.Next() {
		var rec JobRecord
		if err := scanRecordFromRows(rows, &rec); err != nil {
			return nil, errors.Wrap(err, "scan job record")
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "iterate %s", context)
	}
	return records, nil
}
