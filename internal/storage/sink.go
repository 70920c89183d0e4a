package storage

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rohmanhakim/docs-crawler/internal/metadata"
	"github.com/rohmanhakim/docs-crawler/internal/normalize"
	"github.com/rohmanhakim/docs-crawler/pkg/failure"
	"github.com/rohmanhakim/docs-crawler/pkg/fileutil"
)

/*
Responsibilities
- Persist one Markdown file per crawled page under outputDir/pages
- Merge every saved page into a single table-of-contents document once the
  crawl's worker pool has exited
- Ensure deterministic filenames and a deterministic merge ordering

Output Characteristics
- Stable directory layout (outputDir/pages/<file>.md, outputDir/<merged>.md)
- Idempotent writes
- Overwrite-safe reruns
- Merge sorts by source URL so repeated runs over the same crawl produce
  byte-identical merged documents
*/

type Sink interface {
	// Begin prepares outputDir (and its pages subdirectory) to receive
	// writes. Called once before the worker pool starts.
	Begin(outputDir string) failure.ClassifiedError

	// Save persists one page's reduced Markdown under outputDir/pages and
	// returns where it landed. Safe to call from multiple worker
	// goroutines concurrently.
	Save(
		sourceURL url.URL,
		normalizedDoc normalize.NormalizedMarkdownDoc,
	) (WriteResult, failure.ClassifiedError)

	// Merge combines every page Saved so far into a single document with
	// a table of contents, writes it to outputDir/mergedFilename, and
	// returns its path. Called once after all workers have exited.
	Merge(outputDir string, mergedFilename string) (string, failure.ClassifiedError)
}

type LocalSink struct {
	metadataSink metadata.MetadataSink

	mu        sync.Mutex
	outputDir string
	records   []pageRecord
}

func NewLocalSink(
	metadataSink metadata.MetadataSink,
) LocalSink {
	return LocalSink{
		metadataSink: metadataSink,
	}
}

// pagesDirName is the subdirectory under outputDir that holds one Markdown
// file per saved page, kept separate from the merged document.
const pagesDirName = "pages"

// sourceCommentPrefix is prepended to every saved page's body so a reader
// opening a page file in isolation still knows what URL it came from.
const sourceCommentPrefix = "<!-- Source: %s -->\n\n"

func (s *LocalSink) Begin(outputDir string) failure.ClassifiedError {
	if err := fileutil.EnsureDir(outputDir, pagesDirName); err != nil {
		storageErr := wrapEnsureDirError(err, filepath.Join(outputDir, pagesDirName))
		s.metadataSink.RecordError(
			time.Now(),
			"storage",
			"LocalSink.Begin",
			mapStorageErrorToMetadataCause(storageErr),
			storageErr.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrWritePath, storageErr.Path),
			},
		)
		return storageErr
	}
	s.mu.Lock()
	s.outputDir = outputDir
	s.records = nil
	s.mu.Unlock()
	return nil
}

func (s *LocalSink) Save(
	sourceURL url.URL,
	normalizedDoc normalize.NormalizedMarkdownDoc,
) (WriteResult, failure.ClassifiedError) {
	s.mu.Lock()
	outputDir := s.outputDir
	s.mu.Unlock()

	writeResult, body, err := save(outputDir, sourceURL, normalizedDoc)
	if err != nil {
		var storageError *StorageError
		errors.As(err, &storageError)
		s.metadataSink.RecordError(
			time.Now(),
			"storage",
			"LocalSink.Save",
			mapStorageErrorToMetadataCause(storageError),
			err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, sourceURL.String()),
				metadata.NewAttr(metadata.AttrWritePath, storageError.Path),
			},
		)
		return WriteResult{}, storageError
	}

	s.mu.Lock()
	s.records = append(s.records, pageRecord{
		sourceURL: sourceURL.String(),
		title:     normalizedDoc.Frontmatter().Title(),
		content:   body,
	})
	s.mu.Unlock()

	s.metadataSink.RecordArtifact(
		metadata.ArtifactMarkdown,
		writeResult.Path(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrWritePath, writeResult.Path()),
			metadata.NewAttr(metadata.AttrURL, sourceURL.String()),
			metadata.NewAttr(metadata.AttrField, writeResult.URLHash()),
			metadata.NewAttr(metadata.AttrField, writeResult.ContentHash()),
		},
	)
	return writeResult, nil
}

// save writes outputDir/pages/<sanitized-path>_<hash8>.md, body prefixed
// with a Source comment, and returns the WriteResult plus the exact bytes
// written so Merge doesn't need to re-read every page off disk.
func save(
	outputDir string,
	sourceURL url.URL,
	normalizedDoc normalize.NormalizedMarkdownDoc,
) (WriteResult, string, failure.ClassifiedError) {
	canonicalURL := normalizedDoc.Frontmatter().CanonicalURL()
	hash8 := hashURL8(canonicalURL)
	filename := sanitizePathForFilename(sourceURL) + "_" + hash8 + ".md"
	fullPath := filepath.Join(outputDir, pagesDirName, filename)

	body := fmt.Sprintf(sourceCommentPrefix, sourceURL.String()) + string(normalizedDoc.Content())

	if err := os.WriteFile(fullPath, []byte(body), 0644); err != nil {
		cause := ErrCauseWriteFailure
		retryable := false
		if errors.Is(err, syscall.ENOSPC) {
			cause = ErrCauseDiskFull
			retryable = true
		}
		return WriteResult{}, "", &StorageError{
			Message:   err.Error(),
			Retryable: retryable,
			Cause:     cause,
			Path:      fullPath,
		}
	}

	contentHash := normalizedDoc.Frontmatter().ContentHash()
	writeResult := NewWriteResult(hash8, fullPath, contentHash)
	return writeResult, body, nil
}

// hashURL8 is the first 8 hex characters of the MD5 digest of url, the
// exact filename-hashing scheme the saved-page layout calls for.
func hashURL8(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])[:8]
}

// filenameSafe matches characters that may appear verbatim in a sanitized
// path segment; everything else collapses to a hyphen.
var filenameSafe = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

func sanitizePathForFilename(u url.URL) string {
	path := strings.Trim(u.Path, "/")
	if path == "" {
		path = "index"
	}
	path = strings.ReplaceAll(path, "/", "_")
	return filenameSafe.ReplaceAllString(path, "-")
}

func wrapEnsureDirError(err error, path string) *StorageError {
	return &StorageError{
		Message:   err.Error(),
		Retryable: false,
		Cause:     ErrCausePathError,
		Path:      path,
	}
}

// slugNonWord matches every rune that isn't a word character, mirroring
// the merged document's anchor-slug rule.
var slugNonWord = regexp.MustCompile(`\W`)

func slugify(sourceURL string) string {
	return slugNonWord.ReplaceAllString(sourceURL, "-")
}

// Merge combines every page Saved since the last Begin into one document:
// a heading, a table of contents linking to per-page anchors, and the
// pages themselves in source-URL order, separated by rules. Byte-identical
// across reruns over the same crawl because the ordering is sorted rather
// than insertion-order (insertion order depends on worker scheduling).
func (s *LocalSink) Merge(outputDir string, mergedFilename string) (string, failure.ClassifiedError) {
	s.mu.Lock()
	records := make([]pageRecord, len(s.records))
	copy(records, s.records)
	s.mu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].sourceURL < records[j].sourceURL
	})

	var body strings.Builder
	body.WriteString("# Merged Documentation\n")
	fmt.Fprintf(&body, "**Total Pages:** %d\n\n", len(records))
	body.WriteString("## Table of Contents\n")
	for i, rec := range records {
		title := rec.title
		if title == "" {
			title = rec.sourceURL
		}
		fmt.Fprintf(&body, "%d. [%s](#%s)\n", i+1, title, slugify(rec.sourceURL))
	}
	body.WriteString("\n---\n\n")
	for i, rec := range records {
		fmt.Fprintf(&body, "<a id=\"%s\"></a>\n", slugify(rec.sourceURL))
		fmt.Fprintf(&body, "## Source: %s\n\n", rec.sourceURL)
		body.WriteString(rec.content)
		if i != len(records)-1 {
			body.WriteString("\n\n---\n\n")
		}
	}

	fullPath := filepath.Join(outputDir, mergedFilename)
	if err := os.WriteFile(fullPath, []byte(body.String()), 0644); err != nil {
		storageErr := &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseMergeFailure,
			Path:      fullPath,
		}
		s.metadataSink.RecordError(
			time.Now(),
			"storage",
			"LocalSink.Merge",
			mapStorageErrorToMetadataCause(storageErr),
			storageErr.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrWritePath, fullPath),
			},
		)
		return "", storageErr
	}

	s.metadataSink.RecordArtifact(
		metadata.ArtifactMerged,
		fullPath,
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrWritePath, fullPath),
		},
	)
	return fullPath, nil
}
