// Package segment persists a built inverted index as a single .spdx file so
// that a re-run over the same collection and analyzer settings can skip
// indexing.
//
// Layout:
//
//	header (64 bytes) | postings blocks (JSON, one per term) | dictionary (JSON) | meta (JSON) | footer (32 bytes)
package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/index"
)

// MagicBytes identifies a valid .spdx segment file.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 64
	FooterSize    int    = 32
)

// SegmentHeader is the 64-byte header written at the start of every segment.
type SegmentHeader struct {
	Magic      uint32
	Version    uint32
	TermCount  uint32
	DocCount   uint32
	PostOffset int64
	PostSize   int64
	DictOffset int64
	DictSize   int64
	MetaOffset int64
	MetaSize   int64
}

// DictEntry maps a term to its postings offset, length, and document frequency
// in the segment file.
type DictEntry struct {
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

// Meta carries everything besides postings needed to rebuild the index.
type Meta struct {
	Fingerprint string          `json:"fingerprint"`
	Analyzer    string          `json:"analyzer"`
	Docs        []index.DocStat `json:"docs"`
}

// FileName returns the segment file name for an index fingerprint.
func FileName(fingerprint string) string {
	return fmt.Sprintf("index_%s.spdx", fingerprint)
}

// Writer serialises inverted indexes into .spdx segment files.
type Writer struct {
	dataDir string
}

// NewWriter creates a Writer that writes segments into the given directory.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Write atomically creates the segment file for idx. It writes to a .tmp
// file first and renames on success.
func (w *Writer) Write(idx *index.InvertedIndex) (string, error) {
	segmentName := FileName(idx.Fingerprint())
	finalPath := filepath.Join(w.dataDir, segmentName)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp segment file: %w", err)
	}
	defer os.Remove(tmpPath)
	defer f.Close()

	entries := idx.Entries()
	header := SegmentHeader{
		Magic:      MagicBytes,
		Version:    FormatVersion,
		TermCount:  uint32(len(entries)),
		DocCount:   uint32(idx.DocCount()),
		PostOffset: int64(HeaderSize),
	}
	if _, err := f.Write(make([]byte, HeaderSize)); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	var written int64
	dict := make([]DictEntry, 0, len(entries))
	for _, entry := range entries {
		postingsData, err := json.Marshal(entry.Postings)
		if err != nil {
			return "", fmt.Errorf("marshaling postings for term %q: %w", entry.Term, err)
		}
		if _, err := f.Write(postingsData); err != nil {
			return "", fmt.Errorf("writing postings for term %q: %w", entry.Term, err)
		}
		dict = append(dict, DictEntry{
			Term:       entry.Term,
			PostOffset: written,
			PostLen:    len(postingsData),
			DocFreq:    len(entry.Postings),
		})
		written += int64(len(postingsData))
	}
	header.PostSize = written

	dictData, err := json.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("marshaling dictionary: %w", err)
	}
	header.DictOffset = header.PostOffset + header.PostSize
	header.DictSize = int64(len(dictData))
	if _, err := f.Write(dictData); err != nil {
		return "", fmt.Errorf("writing dictionary: %w", err)
	}

	metaData, err := json.Marshal(Meta{
		Fingerprint: idx.Fingerprint(),
		Analyzer:    idx.Analyzer().Fingerprint(),
		Docs:        idx.DocStats(),
	})
	if err != nil {
		return "", fmt.Errorf("marshaling meta: %w", err)
	}
	header.MetaOffset = header.DictOffset + header.DictSize
	header.MetaSize = int64(len(metaData))
	if _, err := f.Write(metaData); err != nil {
		return "", fmt.Errorf("writing meta: %w", err)
	}

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(dictData))
	binary.LittleEndian.PutUint32(footer[4:8], crc32.ChecksumIEEE(metaData))
	binary.LittleEndian.PutUint32(footer[8:12], header.DocCount)
	binary.LittleEndian.PutUint32(footer[12:16], MagicBytes)
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}
	if _, err := f.WriteAt(encodeHeader(header), 0); err != nil {
		return "", fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing segment file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	return finalPath, nil
}

func encodeHeader(h SegmentHeader) []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(b[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.PostOffset))
	binary.LittleEndian.PutUint64(b[24:32], uint64(h.PostSize))
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.DictOffset))
	binary.LittleEndian.PutUint64(b[40:48], uint64(h.DictSize))
	binary.LittleEndian.PutUint64(b[48:56], uint64(h.MetaOffset))
	binary.LittleEndian.PutUint64(b[56:64], uint64(h.MetaSize))
	return b
}

func decodeHeader(b []byte) SegmentHeader {
	return SegmentHeader{
		Magic:      binary.LittleEndian.Uint32(b[0:4]),
		Version:    binary.LittleEndian.Uint32(b[4:8]),
		TermCount:  binary.LittleEndian.Uint32(b[8:12]),
		DocCount:   binary.LittleEndian.Uint32(b[12:16]),
		PostOffset: int64(binary.LittleEndian.Uint64(b[16:24])),
		PostSize:   int64(binary.LittleEndian.Uint64(b[24:32])),
		DictOffset: int64(binary.LittleEndian.Uint64(b[32:40])),
		DictSize:   int64(binary.LittleEndian.Uint64(b[40:48])),
		MetaOffset: int64(binary.LittleEndian.Uint64(b[48:56])),
		MetaSize:   int64(binary.LittleEndian.Uint64(b[56:64])),
	}
}
