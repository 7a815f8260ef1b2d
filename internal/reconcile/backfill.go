package reconcile

import (
	"strings"

	"github.com/jonathan/job-agent/internal/classify"
	"github.com/jonathan/job-agent/internal/timeline"
	"github.com/jonathan/job-agent/internal/types"
)

// Result messages carry no correlation ID, so they are joined to entries by
// rendered content: the most recent entry matching a predicate wins.

// Metadata keys written by backfill
const (
	MetaJobTitle       = "jobTitle"
	MetaJobDescription = "jobDescription"
	MetaJobOrigin      = "jobOrigin"
	MetaJobLocation    = "jobLocation"
	MetaJobCompany     = "jobCompany"
	MetaJobURL         = "jobUrl"
	MetaDocumentID     = "documentId"
	MetaDocumentType   = "documentType"
	MetaDocumentName   = "documentName"
	MetaDocumentURL    = "documentUrl"
	MetaEventType      = "eventType"
	MetaEventID        = "eventId"
	MetaError          = "error"
)

// IsJobLinkedEntry matches action entries announcing a linked or imported job posting
func IsJobLinkedEntry(e types.TimelineEntry) bool {
	if e.Kind != types.EntryAction {
		return false
	}
	return strings.Contains(e.Content, classify.PhraseJobLinked) ||
		strings.Contains(e.Content, classify.PhraseJobImported)
}

// IsDocumentEntry matches entries announcing a generated résumé or cover letter
func IsDocumentEntry(e types.TimelineEntry) bool {
	return strings.Contains(e.Content, classify.PhraseResumeCreated) ||
		strings.Contains(e.Content, classify.PhraseCoverLetterCreated)
}

// JobMetadata flattens the non-empty snapshot fields into entry metadata
func JobMetadata(job *types.JobSnapshot) map[string]any {
	md := make(map[string]any)
	if job == nil {
		return md
	}
	set := func(key, value string) {
		if value != "" {
			md[key] = value
		}
	}
	set(MetaJobTitle, job.Title)
	set(MetaJobDescription, job.PlainDescription())
	set(MetaJobOrigin, job.Origin)
	set(MetaJobLocation, job.Location)
	set(MetaJobCompany, job.Company)
	set(MetaJobURL, job.URL)
	return md
}

// BackfillJob merges the snapshot into the most recent job-linked entry.
// Returns the entry index, or -1 and false when no entry matches; in that
// case the enrichment is dropped.
func BackfillJob(store *timeline.Store, job *types.JobSnapshot) (int, bool) {
	idx := store.FindLast(IsJobLinkedEntry)
	if idx < 0 {
		return -1, false
	}
	store.MergeMetadata(idx, JobMetadata(job))
	return idx, true
}

// WantedDocumentKind derives which document an entry refers to from its content
func WantedDocumentKind(content string) string {
	switch {
	case strings.Contains(content, classify.PhraseResumeCreated):
		return types.DocumentResume
	case strings.Contains(content, classify.PhraseCoverLetterCreated):
		return types.DocumentCoverLetter
	}
	return ""
}

// SelectDocument picks the document whose type matches the entry content,
// falling back to the first document. Returns false for an empty list.
func SelectDocument(docs []types.Document, content string) (types.Document, bool) {
	if len(docs) == 0 {
		return types.Document{}, false
	}
	if want := WantedDocumentKind(content); want != "" {
		for _, d := range docs {
			if types.DocumentKind(d.Type) == want {
				return d, true
			}
		}
	}
	return docs[0], true
}

// DocumentMetadata flattens a document reference into entry metadata
func DocumentMetadata(doc types.Document) map[string]any {
	md := map[string]any{
		MetaDocumentID:   doc.ID,
		MetaDocumentType: doc.Type,
	}
	if doc.Name != "" {
		md[MetaDocumentName] = doc.Name
	}
	if doc.URL != "" {
		md[MetaDocumentURL] = doc.URL
	}
	return md
}

// BackfillDocuments attaches the matching document to the most recent résumé or
// cover-letter entry. Returns -1 and false when no entry matches or docs is empty.
func BackfillDocuments(store *timeline.Store, docs []types.Document) (int, bool) {
	if len(docs) == 0 {
		return -1, false
	}
	idx := store.FindLast(IsDocumentEntry)
	if idx < 0 {
		return -1, false
	}
	doc, _ := SelectDocument(docs, store.At(idx).Content)
	store.MergeMetadata(idx, DocumentMetadata(doc))
	return idx, true
}

// MergeJob folds a snapshot into the record's denormalized job; non-empty fields win.
func MergeJob(record *types.ApplicationRecord, job *types.JobSnapshot) {
	if record == nil || job == nil {
		return
	}
	if record.Job == nil {
		record.Job = &types.JobSnapshot{}
	}
	dst := record.Job
	pick := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	pick(&dst.Title, job.Title)
	pick(&dst.Description, job.Description)
	pick(&dst.Origin, job.Origin)
	pick(&dst.Location, job.Location)
	pick(&dst.Company, job.Company)
	pick(&dst.URL, job.URL)
}

// MergeDocuments adds documents to the record's collection, replacing entries with the same ID
func MergeDocuments(record *types.ApplicationRecord, docs []types.Document) {
	if record == nil {
		return
	}
	for _, d := range docs {
		replaced := false
		for i := range record.Documents {
			if d.ID != "" && record.Documents[i].ID == d.ID {
				record.Documents[i] = d
				replaced = true
				break
			}
		}
		if !replaced {
			record.Documents = append(record.Documents, d)
		}
	}
}
