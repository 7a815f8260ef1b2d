package types

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// JobDetails is what the user submits before a run starts
type JobDetails struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description,omitempty" validate:"required_without=URL"`
	URL         string `json:"url,omitempty" validate:"omitempty,url"`
	Company     string `json:"company,omitempty"`
	Location    string `json:"location,omitempty"`
}

// JobSnapshot is the denormalized job posting the backend attaches once known
type JobSnapshot struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Origin      string `json:"origin,omitempty"`
	Location    string `json:"location,omitempty"`
	Company     string `json:"company,omitempty"`
	URL         string `json:"url,omitempty"`
}

// IsEmpty reports whether the snapshot carries none of the identifying fields
func (j *JobSnapshot) IsEmpty() bool {
	return j == nil || (j.Title == "" && j.Description == "" && j.Origin == "")
}

// PlainDescription returns the description with any HTML markup stripped
// and whitespace collapsed. Job boards frequently deliver rich-text descriptions.
func (j *JobSnapshot) PlainDescription() string {
	if j == nil {
		return ""
	}
	return HTMLToText(j.Description)
}

// HTMLToText converts an HTML fragment into single-spaced plain text.
// Input without markup is only whitespace-normalized.
func HTMLToText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	// Block elements would otherwise glue their words together
	doc.Find("br, p, li, div, h1, h2, h3, h4").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml(" ")
	})
	return strings.Join(strings.Fields(doc.Text()), " ")
}
