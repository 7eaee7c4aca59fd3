package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ChangelogEntry records one committed mutation of a document. Entries are
// immutable once appended.
type ChangelogEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
	Reason      string    `json:"reason,omitempty"`

	// Proposer is "bot" for engine-raised changes (compactions), otherwise
	// the user ID that triggered the proposal.
	Proposer string `json:"proposer"`
}

// ProposerBot marks changelog entries raised by the engine itself.
const ProposerBot = "bot"

// DirectoryEntry maps one person to the area they own.
type DirectoryEntry struct {
	PersonID string `json:"person_id"`
	Name     string `json:"name,omitempty"`
	Area     string `json:"area,omitempty"`
}

// Sections holds the three governed sections of a ground-truth document.
type Sections struct {
	CoreObjective string           `json:"core_objective"`
	Directory     []DirectoryEntry `json:"directory"`
	DecisionLog   []ChangelogEntry `json:"decision_log"`
}

// Document is the versioned ground truth for one channel. Exactly one
// current document exists per channel; prior versions survive only as
// changelog entries.
type Document struct {
	ChannelID string    `json:"channel_id"`
	Version   int64     `json:"version"`
	Sections  Sections  `json:"sections"`
	WordCount int       `json:"word_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DirectoryLine renders one directory entry the way it appears in the
// document text. Compaction verification checks for these lines verbatim.
func (e DirectoryEntry) DirectoryLine() string {
	line := fmt.Sprintf("* **%s** (<@%s>)", e.Name, e.PersonID)
	if e.Name == "" {
		line = fmt.Sprintf("* <@%s>", e.PersonID)
	}
	if e.Area != "" {
		line += " - " + e.Area
	}
	return line
}

// Render produces the document as text, the form fed to the classifier and
// measured for the word limit.
func (d *Document) Render() string {
	var b strings.Builder
	b.WriteString("# Project Ground Truth\n\n")
	b.WriteString("## Core Objective\n")
	b.WriteString(d.Sections.CoreObjective)
	b.WriteString("\n\n## Directory & Responsibilities\n")
	if len(d.Sections.Directory) == 0 {
		b.WriteString("(No members found)\n")
	}
	for _, e := range d.Sections.Directory {
		b.WriteString(e.DirectoryLine())
		b.WriteByte('\n')
	}
	b.WriteString("\n## Decision Log\n")
	if len(d.Sections.DecisionLog) == 0 {
		b.WriteString("(No decisions recorded yet)\n")
	}
	for _, entry := range d.Sections.DecisionLog {
		fmt.Fprintf(&b, "* **%s:** %s", entry.Timestamp.Format("2006-01-02"), entry.Description)
		if entry.Proposer != "" && entry.Proposer != ProposerBot {
			fmt.Fprintf(&b, " (approved by <@%s>)", entry.Proposer)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// CountWords recomputes the document word count from its rendered form.
func (d *Document) CountWords() int {
	return len(strings.Fields(d.Render()))
}

// Clone returns a deep copy. The store hands out and caches copies so a
// committed document is never mutated in place under a concurrent reader.
func (d *Document) Clone() *Document {
	out := *d
	out.Sections.Directory = append([]DirectoryEntry(nil), d.Sections.Directory...)
	out.Sections.DecisionLog = append([]ChangelogEntry(nil), d.Sections.DecisionLog...)
	return &out
}

// SortedDirectory returns the directory ordered by person ID, for stable
// rendering and comparison.
func (s Sections) SortedDirectory() []DirectoryEntry {
	out := append([]DirectoryEntry(nil), s.Directory...)
	sort.Slice(out, func(i, j int) bool { return out[i].PersonID < out[j].PersonID })
	return out
}
