// Package corpus loads the Cranfield collection: TREC-style XML documents and
// topics, and plain-text relevance judgments. Files may omit a root element;
// every <doc> or <top> element in the stream is read.
package corpus

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/errors"
)

// Document is a single collection entry. Text is the indexed field: title
// followed by body.
type Document struct {
	ID           string
	Title        string
	Author       string
	Bibliography string
	Text         string
}

// Query is a single topic. ID is what the run file reports; OriginalID is the
// <num> value from the topic file.
type Query struct {
	ID         string
	OriginalID string
	Text       string
}

type rawDoc struct {
	DocNo  string `xml:"docno"`
	Title  string `xml:"title"`
	Author string `xml:"author"`
	Bib    string `xml:"bib"`
	Text   string `xml:"text"`
}

type rawTopic struct {
	Num   string `xml:"num"`
	Title string `xml:"title"`
	Desc  string `xml:"desc"`
}

// LoadDocuments parses the document collection at path.
func LoadDocuments(path string) ([]Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrParse, "opening documents %s: %v", path, err)
	}
	defer f.Close()
	docs, err := ReadDocuments(f)
	if err != nil {
		return nil, fmt.Errorf("loading documents %s: %w", path, err)
	}
	return docs, nil
}

// ReadDocuments parses documents from r in file order.
func ReadDocuments(r io.Reader) ([]Document, error) {
	logger := slog.Default().With("component", "corpus-loader")
	data, err := readSanitized(r, logger)
	if err != nil {
		return nil, err
	}
	docs := make([]Document, 0, 1024)
	seen := make(map[string]struct{})
	err = eachElement(data, "doc", func(d *xml.Decoder, start xml.StartElement) error {
		var raw rawDoc
		if err := d.DecodeElement(&raw, &start); err != nil {
			return err
		}
		id := strings.TrimSpace(raw.DocNo)
		if id == "" {
			return apperrors.Newf(apperrors.ErrParse, "document #%d has no docno", len(docs)+1)
		}
		if _, dup := seen[id]; dup {
			return apperrors.Newf(apperrors.ErrParse, "duplicate docno %q", id)
		}
		seen[id] = struct{}{}
		doc := Document{
			ID:           id,
			Title:        strings.TrimSpace(raw.Title),
			Author:       strings.TrimSpace(raw.Author),
			Bibliography: strings.TrimSpace(raw.Bib),
		}
		doc.Text = strings.TrimSpace(doc.Title + " " + strings.TrimSpace(raw.Text))
		if doc.Text == "" {
			logger.Warn("document has no indexable text", "doc_id", id)
		}
		if strings.ContainsRune(doc.Text, utf8.RuneError) {
			logger.Warn("document contains undecodable bytes", "doc_id", id)
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("documents parsed", "count", len(docs))
	return docs, nil
}

// LoadQueries parses the topic file at path. When renumber is set, query IDs
// become 1..N in file order, which is how the Cranfield qrels refer to them.
func LoadQueries(path string, renumber bool) ([]Query, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrParse, "opening queries %s: %v", path, err)
	}
	defer f.Close()
	queries, err := ReadQueries(f, renumber)
	if err != nil {
		return nil, fmt.Errorf("loading queries %s: %w", path, err)
	}
	return queries, nil
}

// ReadQueries parses topics from r in file order.
func ReadQueries(r io.Reader, renumber bool) ([]Query, error) {
	logger := slog.Default().With("component", "query-loader")
	data, err := readSanitized(r, logger)
	if err != nil {
		return nil, err
	}
	queries := make([]Query, 0, 256)
	seen := make(map[string]struct{})
	err = eachElement(data, "top", func(d *xml.Decoder, start xml.StartElement) error {
		var raw rawTopic
		if err := d.DecodeElement(&raw, &start); err != nil {
			return err
		}
		num := strings.TrimSpace(raw.Num)
		if num == "" {
			return apperrors.Newf(apperrors.ErrParse, "topic #%d has no num", len(queries)+1)
		}
		if _, dup := seen[num]; dup {
			return apperrors.Newf(apperrors.ErrParse, "duplicate topic num %q", num)
		}
		seen[num] = struct{}{}
		text := strings.TrimSpace(raw.Title)
		if text == "" {
			text = strings.TrimSpace(raw.Desc)
		}
		if text == "" {
			logger.Warn("topic has no text", "num", num)
		}
		id := num
		if renumber {
			id = strconv.Itoa(len(queries) + 1)
		}
		queries = append(queries, Query{ID: id, OriginalID: num, Text: text})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(queries) > 0 {
		logger.Debug("queries parsed",
			"count", len(queries),
			"first_num", queries[0].OriginalID,
			"last_num", queries[len(queries)-1].OriginalID,
		)
	}
	return queries, nil
}

// readSanitized reads r fully and replaces invalid UTF-8 sequences with
// U+FFFD so that one bad byte never costs a whole document.
func readSanitized(r io.Reader, logger *slog.Logger) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrParse, "reading input: %v", err)
	}
	if !utf8.Valid(data) {
		logger.Warn("input is not valid UTF-8, replacing undecodable bytes")
		data = bytes.ToValidUTF8(data, []byte(string(utf8.RuneError)))
	}
	return data, nil
}

// eachElement streams data and calls fn for every start element named name,
// at any depth. A missing root element is tolerated.
func eachElement(data []byte, name string, fn func(*xml.Decoder, xml.StartElement) error) error {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.Entity = xml.HTMLEntity
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return parseError(err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || !strings.EqualFold(start.Name.Local, name) {
			continue
		}
		if err := fn(d, start); err != nil {
			return parseError(err)
		}
	}
}

func parseError(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	var syntaxErr *xml.SyntaxError
	if errors.As(err, &syntaxErr) {
		return apperrors.Newf(apperrors.ErrParse, "malformed markup at line %d: %s", syntaxErr.Line, syntaxErr.Msg)
	}
	return apperrors.Newf(apperrors.ErrParse, "%v", err)
}
