package app

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"card-broker/internal/dataset"
	"card-broker/internal/history"
	"card-broker/internal/sweep"
	"card-broker/internal/tradeopt"
)

// Format 为命令输出格式。
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat 解析输出格式，空字符串视为 table。
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("app: 未知输出格式 %q", s)
	}
}

type tradeView struct {
	From  string `json:"from" yaml:"from"`
	To    string `json:"to" yaml:"to"`
	Item  string `json:"price_id" yaml:"price_id"`
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	Set   string `json:"set_id,omitempty" yaml:"set_id,omitempty"`
	Price string `json:"price,omitempty" yaml:"price,omitempty"`
}

type flowView struct {
	From     string `json:"from" yaml:"from"`
	To       string `json:"to" yaml:"to"`
	Cards    int    `json:"total_cards" yaml:"total_cards"`
	Value    string `json:"total_value" yaml:"total_value"`
	Unpriced int    `json:"unpriced,omitempty" yaml:"unpriced,omitempty"`
}

type holdingView struct {
	Agent    string `json:"agent" yaml:"agent"`
	Units    int    `json:"units" yaml:"units"`
	Distinct int    `json:"distinct" yaml:"distinct"`
	Unpriced int    `json:"unpriced,omitempty" yaml:"unpriced,omitempty"`
	Value    string `json:"value" yaml:"value"`
}

type reportView struct {
	RunID     string        `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Status    string        `json:"status" yaml:"status"`
	Objective float64       `json:"objective" yaml:"objective"`
	Tolerance float64       `json:"tolerance" yaml:"tolerance"`
	Nodes     int           `json:"nodes" yaml:"nodes"`
	Elapsed   string        `json:"elapsed" yaml:"elapsed"`
	Holdings  []holdingView `json:"holdings,omitempty" yaml:"holdings,omitempty"`
	Flows     []flowView    `json:"flows" yaml:"flows"`
	Imbalance string        `json:"imbalance" yaml:"imbalance"`
	Trades    []tradeView   `json:"trades" yaml:"trades"`
}

type sweepRowView struct {
	Tolerance float64 `json:"tolerance" yaml:"tolerance"`
	Status    string  `json:"status" yaml:"status"`
	Objective float64 `json:"objective" yaml:"objective"`
	Trades    int     `json:"trades" yaml:"trades"`
	Imbalance string  `json:"imbalance" yaml:"imbalance"`
	RunID     string  `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Error     string  `json:"error,omitempty" yaml:"error,omitempty"`
	Best      bool    `json:"best,omitempty" yaml:"best,omitempty"`
}

func viewTrade(r tradeopt.TradeRecord) tradeView {
	v := tradeView{
		From: string(r.Giver),
		To:   string(r.Receiver),
		Item: string(r.Item),
		Name: r.Name,
		Set:  r.Set,
	}
	if r.UnitPrice.Valid {
		v.Price = r.UnitPrice.Decimal.StringFixed(2)
	}
	return v
}

func newReportView(report *tradeopt.Report, run *history.Run, holdings []dataset.HoldingSummary) reportView {
	v := reportView{
		Status:    string(report.Status),
		Objective: report.Objective,
		Tolerance: report.Tolerance,
		Nodes:     report.Nodes,
		Elapsed:   report.Elapsed.Round(time.Millisecond).String(),
		Imbalance: tradeopt.Imbalance(report.Flows).StringFixed(2),
		Flows:     make([]flowView, 0, len(report.Flows)),
		Trades:    make([]tradeView, 0, len(report.Trades)),
	}
	if run != nil {
		v.RunID = run.ID
	}
	for _, h := range holdings {
		v.Holdings = append(v.Holdings, holdingView{
			Agent:    string(h.Agent),
			Units:    h.Units,
			Distinct: h.Distinct,
			Unpriced: h.Unpriced,
			Value:    h.Value.StringFixed(2),
		})
	}
	for _, f := range report.Flows {
		v.Flows = append(v.Flows, flowView{
			From:     string(f.Giver),
			To:       string(f.Receiver),
			Cards:    f.Count,
			Value:    f.Value.StringFixed(2),
			Unpriced: f.Unpriced,
		})
	}
	for _, r := range report.Trades {
		v.Trades = append(v.Trades, viewTrade(r))
	}
	return v
}

// RenderReport 输出一次交易建议。
func RenderReport(w io.Writer, format Format, report *tradeopt.Report, run *history.Run, holdings []dataset.HoldingSummary) error {
	view := newReportView(report, run, holdings)
	if format != FormatTable {
		return encode(w, format, view)
	}

	tw := newTabWriter(w)
	if view.RunID != "" {
		fmt.Fprintf(tw, "运行\t%s\n", view.RunID)
	}
	fmt.Fprintf(tw, "状态\t%s\n", view.Status)
	fmt.Fprintf(tw, "目标值\t%.2f\n", view.Objective)
	fmt.Fprintf(tw, "容差\t%g\n", view.Tolerance)
	fmt.Fprintf(tw, "耗时\t%s (%d 节点)\n", view.Elapsed, view.Nodes)
	fmt.Fprintln(tw)

	if len(view.Holdings) > 0 {
		fmt.Fprintln(tw, "AGENT\tUNITS\tDISTINCT\tUNPRICED\tVALUE")
		for _, h := range view.Holdings {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", h.Agent, h.Units, h.Distinct, h.Unpriced, h.Value)
		}
		fmt.Fprintln(tw)
	}

	fmt.Fprintln(tw, "FROM\tTO\tCARDS\tVALUE\tUNPRICED")
	for _, f := range view.Flows {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\n", f.From, f.To, f.Cards, f.Value, f.Unpriced)
	}
	fmt.Fprintf(tw, "差额\t\t\t%s\t\n", view.Imbalance)
	fmt.Fprintln(tw)

	writeTrades(tw, view.Trades)
	return tw.Flush()
}

// RenderSweep 输出容差扫描结果。
func RenderSweep(w io.Writer, format Format, result sweep.Result) error {
	rows := make([]sweepRowView, 0, len(result.Rows))
	for i, r := range result.Rows {
		rows = append(rows, sweepRowView{
			Tolerance: r.Tolerance,
			Status:    r.Status,
			Objective: r.Objective,
			Trades:    r.Trades,
			Imbalance: r.Imbalance.StringFixed(2),
			RunID:     r.RunID,
			Error:     r.Error,
			Best:      i == result.Best,
		})
	}
	if format != FormatTable {
		return encode(w, format, rows)
	}

	tw := newTabWriter(w)
	fmt.Fprintln(tw, "TOLERANCE\tSTATUS\tOBJECTIVE\tTRADES\tIMBALANCE\tRUN\t")
	for _, r := range rows {
		mark := ""
		if r.Best {
			mark = "*"
		}
		fmt.Fprintf(tw, "%g\t%s\t%.2f\t%d\t%s\t%s\t%s\n", r.Tolerance, r.Status, r.Objective, r.Trades, r.Imbalance, r.RunID, mark)
		if r.Error != "" {
			fmt.Fprintf(tw, "\t%s\t\t\t\t\t\n", r.Error)
		}
	}
	return tw.Flush()
}

// RenderRuns 输出运行历史列表。
func RenderRuns(w io.Writer, format Format, runs []history.Run) error {
	if format != FormatTable {
		return encode(w, format, runs)
	}

	tw := newTabWriter(w)
	fmt.Fprintln(tw, "ID\tCREATED\tAGENTS\tTOLERANCE\tSTATUS\tOBJECTIVE\tTRADES")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%g\t%s\t%.2f\t%d\n",
			r.ID, r.CreatedAt.Format(time.RFC3339), r.Agents, r.Tolerance, r.Status, r.Objective, r.TradeCount)
	}
	return tw.Flush()
}

// RenderRunTrades 输出某次运行的交易记录。
func RenderRunTrades(w io.Writer, format Format, run *history.Run, trades []history.Trade) error {
	views := make([]tradeView, 0, len(trades))
	for _, t := range trades {
		views = append(views, viewTrade(t.Record()))
	}
	if format != FormatTable {
		return encode(w, format, views)
	}

	tw := newTabWriter(w)
	fmt.Fprintf(tw, "运行\t%s\n", run.ID)
	fmt.Fprintf(tw, "状态\t%s\n", run.Status)
	if run.Error != "" {
		fmt.Fprintf(tw, "错误\t%s\n", run.Error)
	}
	fmt.Fprintln(tw)
	writeTrades(tw, views)
	return tw.Flush()
}

func writeTrades(tw *tabwriter.Writer, trades []tradeView) {
	if len(trades) == 0 {
		fmt.Fprintln(tw, "没有可行的交易")
		return
	}
	fmt.Fprintln(tw, "FROM\tTO\tITEM\tNAME\tSET\tPRICE")
	for _, t := range trades {
		price := t.Price
		if price == "" {
			price = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", t.From, t.To, t.Item, t.Name, t.Set, price)
	}
}

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func encode(w io.Writer, format Format, v interface{}) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("app: 未知输出格式 %q", format)
	}
}
