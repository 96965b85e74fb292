package segment

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/errors"
)

// Reader gives term-level access to a segment file.
type Reader struct {
	file     *os.File
	filePath string
	header   SegmentHeader
	dict     []DictEntry
	meta     Meta
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := readLayout(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.filePath = path
	return r, nil
}

func readLayout(f *os.File) (*Reader, error) {
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, apperrors.Newf(apperrors.ErrCorrupt, "reading segment header: %v", err)
	}
	header := decodeHeader(headerBytes)
	if header.Magic != MagicBytes {
		return nil, apperrors.Newf(apperrors.ErrCorrupt, "invalid segment file: bad magic bytes %x", header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, apperrors.Newf(apperrors.ErrCorrupt, "unsupported segment version %d", header.Version)
	}
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, header.MetaOffset+header.MetaSize); err != nil {
		return nil, apperrors.Newf(apperrors.ErrCorrupt, "reading segment footer: %v", err)
	}

	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		return nil, apperrors.Newf(apperrors.ErrCorrupt, "reading dictionary: %v", err)
	}
	if crc32.ChecksumIEEE(dictBytes) != binary.LittleEndian.Uint32(footer[0:4]) {
		return nil, apperrors.New(apperrors.ErrCorrupt, "dictionary checksum mismatch")
	}
	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, apperrors.Newf(apperrors.ErrCorrupt, "parsing dictionary: %v", err)
	}

	metaBytes := make([]byte, header.MetaSize)
	if _, err := f.ReadAt(metaBytes, header.MetaOffset); err != nil {
		return nil, apperrors.Newf(apperrors.ErrCorrupt, "reading meta: %v", err)
	}
	if crc32.ChecksumIEEE(metaBytes) != binary.LittleEndian.Uint32(footer[4:8]) {
		return nil, apperrors.New(apperrors.ErrCorrupt, "meta checksum mismatch")
	}
	var meta Meta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, apperrors.Newf(apperrors.ErrCorrupt, "parsing meta: %v", err)
	}
	return &Reader{
		file:   f,
		header: header,
		dict:   dict,
		meta:   meta,
	}, nil
}

func (r *Reader) readPostings(entry DictEntry) (index.PostingList, error) {
	postingsBytes := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(postingsBytes, r.header.PostOffset+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings for %q: %w", entry.Term, err)
	}
	var postings index.PostingList
	if err := json.Unmarshal(postingsBytes, &postings); err != nil {
		return nil, apperrors.Newf(apperrors.ErrCorrupt, "parsing postings for %q: %v", entry.Term, err)
	}
	if len(postings) != entry.DocFreq {
		return nil, apperrors.Newf(apperrors.ErrCorrupt, "term %q: %d postings, dictionary says %d", entry.Term, len(postings), entry.DocFreq)
	}
	return postings, nil
}

// Load materialises the whole segment as an InvertedIndex bound to a. It
// fails if a normalises differently from the analyzer the segment was
// written with.
func (r *Reader) Load(a *analysis.Analyzer) (*index.InvertedIndex, error) {
	if r.meta.Analyzer != a.Fingerprint() {
		return nil, apperrors.Newf(apperrors.ErrCorrupt, "segment built with analyzer %s, want %s", r.meta.Analyzer, a.Fingerprint())
	}
	entries := make([]index.TermEntry, 0, len(r.dict))
	for _, d := range r.dict {
		postings, err := r.readPostings(d)
		if err != nil {
			return nil, err
		}
		entries = append(entries, index.TermEntry{Term: d.Term, Postings: postings})
	}
	return index.FromEntries(a, r.meta.Fingerprint, r.meta.Docs, entries)
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

func (r *Reader) Fingerprint() string {
	return r.meta.Fingerprint
}

func (r *Reader) Close() error {
	return r.file.Close()
}

// LoadIfPresent returns the index stored for fingerprint in dataDir, or
// (nil, nil) when there is no usable segment. Corrupt segments are logged
// and ignored so the caller rebuilds.
func LoadIfPresent(dataDir, fingerprint string, a *analysis.Analyzer) (*index.InvertedIndex, error) {
	logger := slog.Default().With("component", "segment")
	path := filepath.Join(dataDir, FileName(fingerprint))
	reader, err := OpenReader(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		if errors.Is(err, apperrors.ErrCorrupt) {
			logger.Warn("ignoring unreadable segment", "segment", path, "error", err)
			return nil, nil
		}
		return nil, err
	}
	defer reader.Close()
	if reader.Fingerprint() != fingerprint {
		logger.Warn("segment fingerprint mismatch, rebuilding",
			"segment", path,
			"have", reader.Fingerprint(),
			"want", fingerprint,
		)
		return nil, nil
	}
	idx, err := reader.Load(a)
	if err != nil {
		if errors.Is(err, apperrors.ErrCorrupt) {
			logger.Warn("ignoring unreadable segment", "segment", path, "error", err)
			return nil, nil
		}
		return nil, err
	}
	logger.Info("loaded index segment",
		"segment", path,
		"terms", reader.Terms(),
		"docs", reader.DocCount(),
	)
	return idx, nil
}
