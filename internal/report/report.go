package report

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/glamour"
	md "github.com/nao1215/markdown"
	"github.com/opsxjacky/cash-rebalancer/pkg/types"
	"github.com/shopspring/decimal"
)

// Currency 报告中金额的币种
const Currency = money.USD

// DefaultWidth 默认折行宽度
const DefaultWidth = 100

// 输出格式
const (
	FormatMarkdown = "markdown"
	FormatText     = "text"
)

// Markdown 生成所有账户的 markdown 报告
func Markdown(reports []types.AccountReport) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)

	doc.H1("Rebalance Report")
	for _, r := range reports {
		doc.H2(fmt.Sprintf("Account: %s", r.Name))
		if r.Error != "" {
			doc.PlainText(md.Bold("Error:") + " " + r.Error)
			continue
		}
		doc.PlainText(fmt.Sprintf("Portfolio value: %s", Money(r.InitialValue)))

		doc.H3("Current allocation")
		table := md.TableSet{
			Alignment: []md.TableAlignment{md.AlignLeft, md.AlignRight, md.AlignRight, md.AlignRight},
			Header:    []string{"Type", "Current", "Target", "Diff"},
		}
		for _, t := range typeUnion(r.InitialAllocation, r.Targets, r.InitialDiff) {
			table.Rows = append(table.Rows, []string{
				t,
				Fraction(r.InitialAllocation[t]),
				Fraction(r.Targets[t]),
				Fraction(r.InitialDiff[t]),
			})
		}
		doc.Table(table)

		doc.H3("Shares to purchase")
		deltas := SortedDeltas(r.Deltas)
		if len(deltas) == 0 {
			doc.PlainText("Nothing to trade.")
		} else {
			table = md.TableSet{
				Alignment: []md.TableAlignment{md.AlignLeft, md.AlignRight},
				Header:    []string{"Symbol", "Delta"},
			}
			for _, d := range deltas {
				table.Rows = append(table.Rows, []string{d.Symbol, FormatDelta(d)})
			}
			doc.Table(table)
		}

		if len(r.LimitOrders) > 0 {
			doc.H3("Limit orders")
			table = md.TableSet{
				Alignment: []md.TableAlignment{md.AlignLeft, md.AlignRight, md.AlignRight, md.AlignRight},
				Header:    []string{"Symbol", "Shares", "Limit price", "Last price"},
			}
			for _, o := range r.LimitOrders {
				table.Rows = append(table.Rows, []string{
					o.Symbol,
					fmt.Sprintf("%d", o.Shares),
					Money(o.LimitPrice),
					Money(o.LastPrice),
				})
			}
			doc.Table(table)
		}

		doc.H3("Residual diff")
		table = md.TableSet{
			Alignment: []md.TableAlignment{md.AlignLeft, md.AlignRight},
			Header:    []string{"Type", "Diff"},
		}
		for _, t := range typeUnion(r.ResidualDiff) {
			table.Rows = append(table.Rows, []string{t, Fraction(r.ResidualDiff[t])})
		}
		doc.Table(table)
		doc.PlainText(fmt.Sprintf("Residual cash: %s", Money(r.ResidualCash)))
	}

	return doc.String()
}

// Text 生成纯文本报告
func Text(reports []types.AccountReport) string {
	var b strings.Builder
	for i, r := range reports {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Account: %s\n", r.Name)
		if r.Error != "" {
			fmt.Fprintf(&b, "  error: %s\n", r.Error)
			continue
		}
		fmt.Fprintf(&b, "  value: %s\n", Money(r.InitialValue))
		fmt.Fprintf(&b, "  allocation: %s\n", fractions(r.InitialAllocation))
		fmt.Fprintf(&b, "  diff: %s\n", fractions(r.InitialDiff))

		deltas := SortedDeltas(r.Deltas)
		parts := make([]string, 0, len(deltas))
		for _, d := range deltas {
			parts = append(parts, fmt.Sprintf("%s %s", d.Symbol, FormatDelta(d)))
		}
		fmt.Fprintf(&b, "  purchase: %s\n", strings.Join(parts, ", "))

		parts = parts[:0]
		for _, o := range r.LimitOrders {
			parts = append(parts, fmt.Sprintf("%s %d @ %s", o.Symbol, o.Shares, Money(o.LimitPrice)))
		}
		fmt.Fprintf(&b, "  limit orders: %s\n", strings.Join(parts, ", "))
		fmt.Fprintf(&b, "  residual diff: %s\n", fractions(r.ResidualDiff))
		fmt.Fprintf(&b, "  residual cash: %s\n", Money(r.ResidualCash))
	}
	return b.String()
}

// Render 用 glamour 把 markdown 渲染成终端输出
// style 为 "auto" 时根据终端背景选择
func Render(markdown, style string, width int) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if style == "" || style == "auto" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}

	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return out, nil
}

// Write 按格式输出报告
// width 只影响 markdown，不大于 0 时使用 DefaultWidth
func Write(w io.Writer, format, style string, width int, reports []types.AccountReport) error {
	if width <= 0 {
		width = DefaultWidth
	}
	var out string
	switch format {
	case FormatMarkdown:
		rendered, err := Render(Markdown(reports), style, width)
		if err != nil {
			return err
		}
		out = rendered
	case FormatText:
		out = Text(reports)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
	_, err := io.WriteString(w, out)
	return err
}

// SortedDeltas 按份额变化降序排列，去掉为零的项
func SortedDeltas(deltas []types.ShareDelta) []types.ShareDelta {
	out := make([]types.ShareDelta, 0, len(deltas))
	for _, d := range deltas {
		if d.Delta != 0 {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Delta > out[j].Delta
	})
	return out
}

// FormatDelta 现金显示为金额，其余显示为份额
func FormatDelta(d types.ShareDelta) string {
	if d.Symbol == types.CashType {
		return Money(d.Delta)
	}
	return decimal.NewFromFloat(d.Delta).String()
}

// Money 金额显示，例如 $1,234.50
func Money(amount float64) string {
	cur := money.GetCurrency(Currency)
	factor, _ := decimal.NewFromInt(10).PowInt32(int32(cur.Fraction))
	cents := decimal.NewFromFloat(amount).Mul(factor).Round(0)
	return money.New(cents.IntPart(), Currency).Display()
}

// Fraction 占比显示，保留 4 位小数
func Fraction(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(4)
}

func fractions(m map[string]float64) string {
	keys := typeUnion(m)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, Fraction(m[k])))
	}
	return strings.Join(parts, ", ")
}

func typeUnion(maps ...map[string]float64) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, m := range maps {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}
