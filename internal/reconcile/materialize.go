package reconcile

import (
	"github.com/jonathan/job-agent/internal/classify"
	"github.com/jonathan/job-agent/internal/timeline"
	"github.com/jonathan/job-agent/internal/types"
)

// enrichmentKeys are the automation output fields surfaced on the job entry of a resumed run
var enrichmentKeys = []string{"jobUrl", "applicationUrl", "portalUrl", "companyUrl", "info", "notes"}

// Materialize rebuilds a timeline from a historical record in one pass.
// Every history event becomes an action entry; the record's job snapshot,
// documents and a successful automation result are then attached using the
// same backward-scan rules as live backfill.
func Materialize(record *types.ApplicationRecord, opts ...timeline.Option) []types.TimelineEntry {
	if record == nil {
		return nil
	}
	store := timeline.NewStore(opts...)
	MaterializeInto(store, record)
	return store.Entries()
}

// MaterializeInto appends the record's timeline to store. Callers reset the
// store first when the record should replace what is shown.
func MaterializeInto(store *timeline.Store, record *types.ApplicationRecord) {
	if record == nil {
		return
	}

	for _, ev := range record.Events {
		c := classify.Classify(ev.Type, ev.Status)
		ts := ev.Timestamp
		if ts.IsZero() {
			ts = record.CreatedAt
		}
		md := map[string]any{MetaEventType: ev.Type}
		if ev.Identifier != "" {
			md[MetaEventID] = ev.Identifier
		}
		store.Append(types.TimelineEntry{
			Kind:        types.EntryAction,
			Timestamp:   ts,
			Content:     c.Description,
			Status:      c.Status,
			StepCount:   c.StepCount,
			StepDetails: c.StepDetails,
			Metadata:    md,
		})
	}

	if !record.Job.IsEmpty() {
		BackfillJob(store, record.Job)
	}
	if len(record.Documents) > 0 {
		BackfillDocuments(store, record.Documents)
	}

	if res := record.AutomationResult; res != nil && res.Success {
		if md := ResultEnrichment(res); len(md) > 0 {
			if idx := store.FindLast(IsJobLinkedEntry); idx >= 0 {
				store.MergeMetadata(idx, md)
			}
		}
		if len(res.Documents) > 0 {
			BackfillDocuments(store, res.Documents)
		}
	}
}

// ResultEnrichment extracts the job URLs and auxiliary info from an automation result
func ResultEnrichment(res *types.AutomationResult) map[string]any {
	md := make(map[string]any)
	if res == nil {
		return md
	}
	for _, key := range enrichmentKeys {
		if v, ok := res.Output[key]; ok && v != nil && v != "" {
			md[key] = v
		}
	}
	return md
}
