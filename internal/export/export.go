package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/vcurve/internal/events"
	"github.com/rovshanmuradov/vcurve/internal/storage/models"
)

// ExportFormat represents the export file format
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ExportOptions configures the export behavior
type ExportOptions struct {
	Format        ExportFormat
	StartTime     time.Time
	EndTime       time.Time
	CurveFilter   string // Filter by curve id
	AccountFilter string // Filter by trader
	ActionFilter  string // buy, sell, or any event type
	TradesOnly    bool   // Skip lifecycle events
	AssetDecimals int32  // Used to render volumes in the summary
	OutputDir     string
}

// TradeExporter handles trade export functionality
type TradeExporter struct {
	logger *zap.Logger
}

// NewTradeExporter creates a new trade exporter
func NewTradeExporter(logger *zap.Logger) *TradeExporter {
	return &TradeExporter{
		logger: logger.Named("export"),
	}
}

// ExportTrades exports journaled events based on the provided options
func (te *TradeExporter) ExportTrades(trades []*models.Trade, options ExportOptions) (string, error) {
	filtered := te.filterTrades(trades, options)

	if len(filtered) == 0 {
		return "", fmt.Errorf("no trades match the export criteria")
	}

	// Journal order first, time as tie-breaker across curves
	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].CurveID == filtered[j].CurveID {
			return filtered[i].Sequence < filtered[j].Sequence
		}
		return filtered[i].BlockTime.Before(filtered[j].BlockTime)
	})

	filename := te.generateFilename(options)
	outputPath := filepath.Join(options.OutputDir, filename)

	if err := os.MkdirAll(options.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	switch options.Format {
	case FormatCSV:
		err = te.exportToCSV(filtered, outputPath)
	case FormatJSON:
		err = te.exportToJSON(filtered, options.AssetDecimals, outputPath)
	default:
		err = fmt.Errorf("unsupported format: %s", options.Format)
	}

	if err != nil {
		return "", err
	}

	te.logger.Info("Trades exported",
		zap.String("file", outputPath),
		zap.Int("count", len(filtered)),
		zap.String("format", string(options.Format)))

	return outputPath, nil
}

func action(t *models.Trade) string {
	switch events.EventType(t.EventType) {
	case events.CurveBuy:
		return "buy"
	case events.CurveSell:
		return "sell"
	default:
		return t.EventType
	}
}

func (te *TradeExporter) filterTrades(trades []*models.Trade, options ExportOptions) []*models.Trade {
	var filtered []*models.Trade

	for _, trade := range trades {
		if !options.StartTime.IsZero() && trade.BlockTime.Before(options.StartTime) {
			continue
		}
		if !options.EndTime.IsZero() && trade.BlockTime.After(options.EndTime) {
			continue
		}
		if options.CurveFilter != "" && trade.CurveID != options.CurveFilter {
			continue
		}
		if options.AccountFilter != "" && trade.Account != options.AccountFilter {
			continue
		}
		if options.ActionFilter != "" && action(trade) != options.ActionFilter {
			continue
		}
		if options.TradesOnly && action(trade) != "buy" && action(trade) != "sell" {
			continue
		}

		filtered = append(filtered, trade)
	}

	return filtered
}

func (te *TradeExporter) generateFilename(options ExportOptions) string {
	timestamp := time.Now().Format("20060102_150405")

	var prefix string
	if options.ActionFilter != "" {
		prefix = fmt.Sprintf("trades_%s", options.ActionFilter)
	} else {
		prefix = "trades_all"
	}

	if c := options.CurveFilter; c != "" {
		if len(c) > 10 {
			c = c[:10]
		}
		prefix += "_" + c
	}

	return fmt.Sprintf("%s_%s.%s", prefix, timestamp, options.Format)
}

// CSVHeaders is the column order of exportToCSV.
func CSVHeaders() []string {
	return []string{
		"event_id", "curve_id", "sequence", "time", "action", "account",
		"amount_in", "amount_out", "fee", "price", "reserve_token", "reserve_asset",
		"status", "error",
	}
}

func toCSV(t *models.Trade) []string {
	return []string{
		t.EventID,
		t.CurveID,
		strconv.FormatUint(t.Sequence, 10),
		t.BlockTime.UTC().Format(time.RFC3339Nano),
		action(t),
		t.Account,
		t.AmountIn,
		t.AmountOut,
		t.Fee,
		t.Price,
		t.ReserveToken,
		t.ReserveAsset,
		t.Status,
		t.ErrorMessage,
	}
}

func (te *TradeExporter) exportToCSV(trades []*models.Trade, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write(CSVHeaders()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, trade := range trades {
		if err := writer.Write(toCSV(trade)); err != nil {
			return fmt.Errorf("failed to write trade: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func (te *TradeExporter) exportToJSON(trades []*models.Trade, assetDecimals int32, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	exportData := struct {
		ExportTime time.Time       `json:"export_time"`
		TradeCount int             `json:"trade_count"`
		Trades     []*models.Trade `json:"trades"`
		Summary    ExportSummary   `json:"summary"`
	}{
		ExportTime: time.Now(),
		TradeCount: len(trades),
		Trades:     trades,
		Summary:    te.calculateSummary(trades, assetDecimals),
	}

	if err := encoder.Encode(exportData); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}

// assetLeg is the asset side of a trade in base units.
func assetLeg(t *models.Trade) decimal.Decimal {
	raw := t.AmountIn
	if action(t) == "sell" {
		raw = t.AmountOut
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (te *TradeExporter) calculateSummary(trades []*models.Trade, assetDecimals int32) ExportSummary {
	summary := ExportSummary{
		TotalTrades: len(trades),
	}

	if len(trades) == 0 {
		return summary
	}

	summary.StartDate = trades[0].BlockTime
	summary.EndDate = trades[len(trades)-1].BlockTime

	accounts := make(map[string]bool)
	curves := make(map[string]bool)
	buyVol, sellVol, fees := decimal.Zero, decimal.Zero, decimal.Zero

	for _, trade := range trades {
		curves[trade.CurveID] = true
		if trade.BlockTime.Before(summary.StartDate) {
			summary.StartDate = trade.BlockTime
		}
		if trade.BlockTime.After(summary.EndDate) {
			summary.EndDate = trade.BlockTime
		}

		switch action(trade) {
		case "buy":
			summary.BuyCount++
			buyVol = buyVol.Add(assetLeg(trade))
			fees = fees.Add(parseDec(trade.Fee))
			accounts[trade.Account] = true
		case "sell":
			summary.SellCount++
			sellVol = sellVol.Add(assetLeg(trade))
			fees = fees.Add(parseDec(trade.Fee))
			accounts[trade.Account] = true
		default:
			summary.LifecycleEvents++
		}
	}

	scale := decimal.New(1, assetDecimals)
	summary.UniqueTraders = len(accounts)
	summary.UniqueCurves = len(curves)
	summary.TotalBuyVolume = buyVol.Div(scale).String()
	summary.TotalSellVolume = sellVol.Div(scale).String()
	summary.TotalVolume = buyVol.Add(sellVol).Div(scale).String()
	summary.TotalFees = fees.Div(scale).String()
	summary.NetInflow = buyVol.Sub(sellVol).Div(scale).String()

	return summary
}

// ExportSummary contains summary statistics for exported trades. Volumes
// are decimal strings in asset units.
type ExportSummary struct {
	TotalTrades     int       `json:"total_trades"`
	BuyCount        int       `json:"buy_count"`
	SellCount       int       `json:"sell_count"`
	LifecycleEvents int       `json:"lifecycle_events"`
	UniqueTraders   int       `json:"unique_traders"`
	UniqueCurves    int       `json:"unique_curves"`
	TotalVolume     string    `json:"total_volume"`
	TotalBuyVolume  string    `json:"total_buy_volume"`
	TotalSellVolume string    `json:"total_sell_volume"`
	TotalFees       string    `json:"total_fees"`
	NetInflow       string    `json:"net_inflow"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
}

// ExportDailyReport exports a daily summary report
func (te *TradeExporter) ExportDailyReport(trades []*models.Trade, date time.Time, assetDecimals int32, outputDir string) (string, error) {
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	options := ExportOptions{
		Format:    FormatJSON,
		StartTime: startOfDay,
		EndTime:   endOfDay,
		OutputDir: outputDir,
	}

	filename := fmt.Sprintf("daily_report_%s.json", startOfDay.Format("20060102"))
	outputPath := filepath.Join(outputDir, filename)

	filtered := te.filterTrades(trades, options)

	if len(filtered) == 0 {
		te.logger.Info("No trades for daily report",
			zap.Time("date", startOfDay))
		return "", nil
	}

	report := DailyReport{
		Date:            startOfDay,
		TradeCount:      len(filtered),
		Trades:          filtered,
		Summary:         te.calculateSummary(filtered, assetDecimals),
		HourlyBreakdown: te.calculateHourlyBreakdown(filtered),
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	file, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(report); err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	te.logger.Info("Daily report exported",
		zap.String("file", outputPath),
		zap.Time("date", startOfDay),
		zap.Int("trades", len(filtered)))

	return outputPath, nil
}

// DailyReport represents a daily trading report
type DailyReport struct {
	Date            time.Time       `json:"date"`
	TradeCount      int             `json:"trade_count"`
	Summary         ExportSummary   `json:"summary"`
	HourlyBreakdown []HourlyStats   `json:"hourly_breakdown"`
	Trades          []*models.Trade `json:"trades"`
}

// HourlyStats represents trading statistics for an hour
type HourlyStats struct {
	Hour       int `json:"hour"`
	TradeCount int `json:"trade_count"`
	BuyCount   int `json:"buy_count"`
	SellCount  int `json:"sell_count"`
}

func (te *TradeExporter) calculateHourlyBreakdown(trades []*models.Trade) []HourlyStats {
	hourlyMap := make(map[int]*HourlyStats)

	for _, trade := range trades {
		hour := trade.BlockTime.Hour()

		stats, exists := hourlyMap[hour]
		if !exists {
			stats = &HourlyStats{Hour: hour}
			hourlyMap[hour] = stats
		}

		stats.TradeCount++
		switch action(trade) {
		case "buy":
			stats.BuyCount++
		case "sell":
			stats.SellCount++
		}
	}

	var breakdown []HourlyStats
	for hour := 0; hour < 24; hour++ {
		if stats, exists := hourlyMap[hour]; exists {
			breakdown = append(breakdown, *stats)
		}
	}

	return breakdown
}
