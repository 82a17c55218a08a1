package main

import (
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"lukechampine.com/blake3"
)

// recordRow is one (record, benefactor) pair flattened for export. One row
// per share keeps both files joinable on sequence and benefactor.
type recordRow struct {
	Sequence        uint64
	Timestamp       int64
	Caller          string
	Benefactor      string
	ShareAmount     *big.Int
	ConvertedTotal  *big.Int
	SwapIn          *big.Int
	SwapOut         *big.Int
	LiquidityDelta  *big.Int
	AccumulatedFees *big.Int
	Entitlement     *big.Int
	Watermark       *big.Int
	Claimable       *big.Int
}

type parquetRow struct {
	Sequence        int64  `parquet:"name=sequence, type=INT64"`
	Timestamp       string `parquet:"name=timestamp, type=BYTE_ARRAY, convertedtype=UTF8"`
	Caller          string `parquet:"name=caller, type=BYTE_ARRAY, convertedtype=UTF8"`
	Benefactor      string `parquet:"name=benefactor, type=BYTE_ARRAY, convertedtype=UTF8"`
	ShareAmount     string `parquet:"name=share_amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	ConvertedTotal  string `parquet:"name=converted_total, type=BYTE_ARRAY, convertedtype=UTF8"`
	SwapIn          string `parquet:"name=swap_in, type=BYTE_ARRAY, convertedtype=UTF8"`
	SwapOut         string `parquet:"name=swap_out, type=BYTE_ARRAY, convertedtype=UTF8"`
	LiquidityDelta  string `parquet:"name=liquidity_delta, type=BYTE_ARRAY, convertedtype=UTF8"`
	AccumulatedFees string `parquet:"name=accumulated_fees, type=BYTE_ARRAY, convertedtype=UTF8"`
	Entitlement     string `parquet:"name=entitlement, type=BYTE_ARRAY, convertedtype=UTF8"`
	ClaimWatermark  string `parquet:"name=claim_watermark, type=BYTE_ARRAY, convertedtype=UTF8"`
	Claimable       string `parquet:"name=claimable, type=BYTE_ARRAY, convertedtype=UTF8"`
}

const (
	csvExportName     = "conversion_records.csv"
	parquetExportName = "conversion_records.parquet"
)

// writeExports materialises both record exports under dir and returns their
// blake3 digests so the report pins the exact bytes shipped to reviewers.
func writeExports(dir string, rows []recordRow) ([]exportDigest, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: create export dir: %w", err)
	}
	csvPath := filepath.Join(dir, csvExportName)
	if err := writeRecordsCSV(csvPath, rows); err != nil {
		return nil, err
	}
	parquetPath := filepath.Join(dir, parquetExportName)
	if err := writeRecordsParquet(parquetPath, rows); err != nil {
		return nil, err
	}
	digests := make([]exportDigest, 0, 2)
	for _, path := range []string{csvPath, parquetPath} {
		digest, err := digestFile(path)
		if err != nil {
			return nil, err
		}
		digests = append(digests, exportDigest{Path: path, Rows: len(rows), Blake3: digest})
	}
	return digests, nil
}

func writeRecordsCSV(path string, rows []recordRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audit: create csv: %w", err)
	}
	defer file.Close()
	csvWriter := csv.NewWriter(file)
	header := []string{
		"sequence", "timestamp", "caller", "benefactor", "share_amount", "converted_total",
		"swap_in", "swap_out", "liquidity_delta", "accumulated_fees", "entitlement",
		"claim_watermark", "claimable",
	}
	if err := csvWriter.Write(header); err != nil {
		return fmt.Errorf("audit: write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			strconv.FormatUint(row.Sequence, 10),
			formatExportTime(row.Timestamp),
			row.Caller,
			row.Benefactor,
			row.ShareAmount.String(),
			row.ConvertedTotal.String(),
			row.SwapIn.String(),
			row.SwapOut.String(),
			row.LiquidityDelta.String(),
			row.AccumulatedFees.String(),
			row.Entitlement.String(),
			row.Watermark.String(),
			row.Claimable.String(),
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("audit: write csv row: %w", err)
		}
	}
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("audit: flush csv: %w", err)
	}
	return nil
}

func writeRecordsParquet(path string, rows []recordRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audit: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("audit: parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		pr := &parquetRow{
			Sequence:        int64(row.Sequence),
			Timestamp:       formatExportTime(row.Timestamp),
			Caller:          row.Caller,
			Benefactor:      row.Benefactor,
			ShareAmount:     row.ShareAmount.String(),
			ConvertedTotal:  row.ConvertedTotal.String(),
			SwapIn:          row.SwapIn.String(),
			SwapOut:         row.SwapOut.String(),
			LiquidityDelta:  row.LiquidityDelta.String(),
			AccumulatedFees: row.AccumulatedFees.String(),
			Entitlement:     row.Entitlement.String(),
			ClaimWatermark:  row.Watermark.String(),
			Claimable:       row.Claimable.String(),
		}
		if err := pw.Write(pr); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("audit: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("audit: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("audit: close parquet file: %w", err)
	}
	return nil
}

func digestFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("audit: open export: %w", err)
	}
	defer file.Close()
	h := blake3.New(32, nil)
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("audit: digest export: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func formatExportTime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(time.RFC3339)
}
