package bundle

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"

	"github.com/PuerkitoBio/goquery"
)

// DocumentEntryName is the archive entry holding the rewritten page.
const DocumentEntryName = "index.html"

// ErrArchiveFinalized is returned when entries are appended after Close.
var ErrArchiveFinalized = errors.New("archive already finalized")

// ArchiveBuilder streams entries into a zip container incrementally.
// Close is the single terminal operation; a build whose Close was never
// awaited is a truncated archive.
type ArchiveBuilder struct {
	zw        *zip.Writer
	finalized bool
}

// NewArchiveBuilder wraps w with a zip writer. Nothing is buffered
// beyond the current entry, so archives can stream straight into an
// HTTP response.
func NewArchiveBuilder(w io.Writer) *ArchiveBuilder {
	return &ArchiveBuilder{zw: zip.NewWriter(w)}
}

// Add appends one named payload to the archive.
func (b *ArchiveBuilder) Add(entry ArchiveEntry) error {
	if b.finalized {
		return ErrArchiveFinalized
	}
	w, err := b.zw.Create(entry.Path)
	if err != nil {
		return fmt.Errorf("create archive entry %s: %w", entry.Path, err)
	}
	if _, err := w.Write(entry.Payload); err != nil {
		return fmt.Errorf("write archive entry %s: %w", entry.Path, err)
	}
	return nil
}

// Close finalizes the container. No entries may be appended afterwards.
func (b *ArchiveBuilder) Close() error {
	if b.finalized {
		return ErrArchiveFinalized
	}
	b.finalized = true
	if err := b.zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return nil
}

// WriteArchive streams the asset entries followed by the serialized
// document (as index.html) into w and finalizes the container. The
// document must not be mutated after this call begins; the coordinator's
// join guarantees that for pipeline runs.
func WriteArchive(w io.Writer, doc *goquery.Document, entries []ArchiveEntry) error {
	html, err := doc.Html()
	if err != nil {
		return fmt.Errorf("serialize document: %w", err)
	}

	builder := NewArchiveBuilder(w)
	for _, entry := range entries {
		if err := builder.Add(entry); err != nil {
			return err
		}
	}
	if err := builder.Add(ArchiveEntry{Path: DocumentEntryName, Payload: []byte(html)}); err != nil {
		return err
	}
	return builder.Close()
}
