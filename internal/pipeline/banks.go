package pipeline

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dvloznov/dapfinance/internal/domain"
)

var (
	// ErrUnsupportedBank is returned for a bank tag with no registered parser.
	ErrUnsupportedBank = errors.New("unsupported bank")

	// ErrUnrecognizedFormat is wrapped by parser errors when a file's
	// required columns cannot be located.
	ErrUnrecognizedFormat = errors.New("unrecognized file format")
)

// BankParser turns the records of one bank's CSV export into normalized
// transactions. Implementations keep input order.
type BankParser interface {
	// Source is the tag stored on transactions produced by this parser.
	Source() string
	Parse(records [][]string) (*ParseResult, error)
}

// ParsedEntry is one accepted data row.
type ParsedEntry struct {
	Row         int // 1-based data row number, header excluded
	Transaction domain.NormalizedTransaction
}

// RowIssue describes a data row that was skipped.
type RowIssue struct {
	Row    int
	Reason string
}

func (i RowIssue) String() string {
	return fmt.Sprintf("row %d: %s", i.Row, i.Reason)
}

// ParseResult is the output of a BankParser.
type ParseResult struct {
	Entries []ParsedEntry
	Issues  []RowIssue
}

var bankParsers = map[string]BankParser{}

// RegisterBankParser adds p under its Source tag, replacing any existing one.
func RegisterBankParser(p BankParser) {
	bankParsers[p.Source()] = p
}

func init() {
	RegisterBankParser(positionalParser{source: domain.SourceBoA, dateCol: 0, descCol: 1, amountCol: 2, refCol: 3})
	RegisterBankParser(positionalParser{source: domain.SourceChase, dateCol: 1, descCol: 2, amountCol: 3, refCol: -1})
	RegisterBankParser(headerParser{source: domain.SourceFidelity})
}

// ParserFor returns the parser registered for bank (case-insensitive).
func ParserFor(bank string) (BankParser, error) {
	p, ok := bankParsers[strings.ToLower(strings.TrimSpace(bank))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBank, bank)
	}
	return p, nil
}

// SupportedBanks lists registered bank tags in sorted order.
func SupportedBanks() []string {
	out := make([]string, 0, len(bankParsers))
	for k := range bankParsers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// positionalParser reads fixed column positions and skips the first record.
type positionalParser struct {
	source    string
	dateCol   int
	descCol   int
	amountCol int
	refCol    int // -1 when the format has no reference column
}

func (p positionalParser) Source() string { return p.source }

func (p positionalParser) Parse(records [][]string) (*ParseResult, error) {
	res := &ParseResult{}
	if len(records) == 0 {
		return res, nil
	}

	for i, rec := range records[1:] {
		if isBlankRecord(rec) {
			continue
		}
		row := i + 1
		ref := ""
		if p.refCol >= 0 {
			ref = field(rec, p.refCol)
		}
		appendRow(res, row, field(rec, p.dateCol), field(rec, p.descCol), field(rec, p.amountCol), ref)
	}
	return res, nil
}

var (
	dateHeader        = regexp.MustCompile(`(?i)date`)
	descriptionHeader = regexp.MustCompile(`(?i)description`)
	transactionHeader = regexp.MustCompile(`(?i)transaction`)
	amountHeader      = regexp.MustCompile(`(?i)amount`)
)

// headerParser locates columns by matching header names on the first record.
type headerParser struct {
	source string
}

func (p headerParser) Source() string { return p.source }

func (p headerParser) Parse(records [][]string) (*ParseResult, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: empty file: %w", p.source, ErrUnrecognizedFormat)
	}

	header := records[0]
	dateCol := findColumn(header, dateHeader, -1)
	descCol := findColumn(header, descriptionHeader, -1)
	if descCol < 0 {
		descCol = findColumn(header, transactionHeader, dateCol)
	}
	amountCol := findColumn(header, amountHeader, -1)

	if dateCol < 0 || descCol < 0 || amountCol < 0 {
		return nil, fmt.Errorf("%s: could not find required columns (date, description, amount) in header %q: %w",
			p.source, strings.Join(header, ","), ErrUnrecognizedFormat)
	}

	res := &ParseResult{}
	for i, rec := range records[1:] {
		if isBlankRecord(rec) {
			continue
		}
		appendRow(res, i+1, field(rec, dateCol), field(rec, descCol), field(rec, amountCol), "")
	}
	return res, nil
}

// findColumn returns the first header index matching re, ignoring index skip.
func findColumn(header []string, re *regexp.Regexp, skip int) int {
	for i, h := range header {
		if i != skip && re.MatchString(h) {
			return i
		}
	}
	return -1
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}

// appendRow validates one row and records it as an entry or an issue.
func appendRow(res *ParseResult, row int, date, desc, amount, ref string) {
	var missing []string
	if date == "" {
		missing = append(missing, "date")
	}
	if desc == "" {
		missing = append(missing, "description")
	}
	if amount == "" {
		missing = append(missing, "amount")
	}
	if len(missing) > 0 {
		res.Issues = append(res.Issues, RowIssue{Row: row, Reason: "missing " + strings.Join(missing, ", ")})
		return
	}

	amt, err := ParseAmount(amount)
	if err != nil {
		res.Issues = append(res.Issues, RowIssue{Row: row, Reason: fmt.Sprintf("invalid amount %q", amount)})
		return
	}

	res.Entries = append(res.Entries, ParsedEntry{
		Row: row,
		Transaction: domain.NormalizedTransaction{
			Date:        NormalizeDate(date),
			Description: desc,
			Amount:      amt,
			Currency:    domain.DefaultCurrency,
			Reference:   ref,
		},
	})
}
