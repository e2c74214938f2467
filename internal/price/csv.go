package price

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

type quote struct {
	date  time.Time
	price float64
}

// CSVSource CSV 价格表
// 必须有 symbol 列和 price/close 列，date 列可选；
// 同一 symbol 多行时取 asOf 当天或之前最近的一行
type CSVSource struct {
	path   string
	quotes map[string][]quote
}

// LoadCSV 加载 CSV 价格表
func LoadCSV(path string) (*CSVSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV file has no data rows")
	}

	// 解析表头，找到各列的索引
	colIndex := parseHeader(records[0])
	if _, ok := colIndex["symbol"]; !ok {
		return nil, fmt.Errorf("CSV header has no symbol column")
	}
	if _, ok := colIndex["price"]; !ok {
		return nil, fmt.Errorf("CSV header has no price/close column")
	}

	s := &CSVSource{path: path, quotes: make(map[string][]quote)}
	for i := 1; i < len(records); i++ {
		symbol, q, err := parseRow(records[i], colIndex)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+1, err)
		}
		s.quotes[symbol] = append(s.quotes[symbol], q)
	}

	// 按日期排序
	for _, qs := range s.quotes {
		sort.SliceStable(qs, func(i, j int) bool {
			return qs[i].date.Before(qs[j].date)
		})
	}
	return s, nil
}

// parseHeader 解析CSV表头
func parseHeader(header []string) map[string]int {
	colIndex := make(map[string]int)
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "symbol", "ticker", "code":
			colIndex["symbol"] = i
		case "date", "timestamp":
			colIndex["date"] = i
		case "price", "close", "current_price", "adj close", "adj_close":
			if _, ok := colIndex["price"]; !ok {
				colIndex["price"] = i
			}
		}
	}
	return colIndex
}

// parseRow 解析CSV行
func parseRow(row []string, colIndex map[string]int) (string, quote, error) {
	var q quote

	idx := colIndex["symbol"]
	if idx >= len(row) || strings.TrimSpace(row[idx]) == "" {
		return "", q, fmt.Errorf("missing symbol")
	}
	symbol := strings.TrimSpace(row[idx])

	idx = colIndex["price"]
	if idx >= len(row) {
		return "", q, fmt.Errorf("missing price for %s", symbol)
	}
	p, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
	if err != nil {
		return "", q, fmt.Errorf("invalid price for %s: %w", symbol, err)
	}
	q.price = p

	if idx, ok := colIndex["date"]; ok && idx < len(row) && row[idx] != "" {
		t, err := parseDate(row[idx])
		if err != nil {
			return "", q, err
		}
		q.date = t
	}

	return symbol, q, nil
}

// parseDate 解析日期字符串
func parseDate(dateStr string) (time.Time, error) {
	formats := []string{
		"2006-01-02",
		"2006/01/02",
		"01/02/2006",
		"2006-01-02 15:04:05",
		"01/02/2006 15:04:05",
		time.RFC3339,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, strings.TrimSpace(dateStr)); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %s", dateStr)
}

// Price 返回 asOf 当天或之前最近的价格，asOf 为零值时取最新价格
func (s *CSVSource) Price(ctx context.Context, symbol string, asOf time.Time) (float64, error) {
	qs, ok := s.quotes[symbol]
	if !ok || len(qs) == 0 {
		return 0, fmt.Errorf("%w: %s in %s", ErrNotFound, symbol, s.path)
	}

	if asOf.IsZero() {
		return s.checked(symbol, qs[len(qs)-1].price)
	}

	// 二分查找第一个晚于 asOf 的行
	idx := sort.Search(len(qs), func(i int) bool {
		return qs[i].date.After(asOf)
	})
	if idx == 0 {
		return 0, fmt.Errorf("%w: %s before %s", ErrNotFound, symbol, asOf.Format("2006-01-02"))
	}
	return s.checked(symbol, qs[idx-1].price)
}

func (s *CSVSource) checked(symbol string, p float64) (float64, error) {
	if err := Validate(symbol, p); err != nil {
		return 0, err
	}
	return p, nil
}

// Symbols 返回价格表中的所有标的
func (s *CSVSource) Symbols() []string {
	out := make([]string, 0, len(s.quotes))
	for sym := range s.quotes {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
