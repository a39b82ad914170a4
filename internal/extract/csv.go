package extract

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/net/html/charset"
)

// ReadCSV czyta eksport CSV arkusza. Separator (',' lub ';') wykrywany z
// pierwszej linii, kodowanie wg opt.Charset (puste -> utf-8).
func ReadCSV(r io.Reader, fileName string, opt Options) (*Result, error) {
	in := r
	if cs := normalizeCharset(opt.Charset); cs != "" && cs != "utf-8" {
		dec, err := charset.NewReaderLabel(cs, r)
		if err != nil {
			return nil, fmt.Errorf("charset %q: %w", opt.Charset, err)
		}
		in = dec
	}

	br := bufio.NewReader(in)
	// BOM z Excela
	if b, _ := br.Peek(3); bytes.Equal(b, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = br.Discard(3)
	}
	first, _ := br.Peek(4096)

	cr := csv.NewReader(br)
	cr.Comma = sniffComma(first)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	// csv pomija puste linie, więc numer wiersza bierzemy z pozycji rekordu
	var (
		rows  [][]string
		lines []int
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv %s: %w", fileName, err)
		}
		line, _ := cr.FieldPos(0)
		rows = append(rows, rec)
		lines = append(lines, line)
	}
	sheet := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	return fromRows(rows, lines, fileName, sheet, opt)
}

func sniffComma(head []byte) rune {
	line := head
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		line = head[:i]
	}
	if bytes.Count(line, []byte{';'}) > bytes.Count(line, []byte{','}) {
		return ';'
	}
	return ','
}

// Etykiety, które Excel i ludzie wpisują do configu, a których charset nie zna.
func normalizeCharset(cs string) string {
	c := strings.Join(strings.Fields(strings.ToLower(cs)), " ")
	switch c {
	case "latin ii", "latin-2", "latin2", "iso8859-2", "iso_8859-2":
		return "iso-8859-2"
	case "cp1250", "windows1250", "win-1250", "ansi ce":
		return "windows-1250"
	case "cp1252", "windows1252", "win-1252", "ansi":
		return "windows-1252"
	case "utf8", "utf-8 bom", "utf8 bom":
		return "utf-8"
	default:
		return c
	}
}
