//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Derek Kellner derek.kellner@gmail.com
//
// This file is part of SalesETL.
//
// SalesETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SalesETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with SalesETL. If not, see https://www.gnu.org/licenses/.

// Command salesetl runs the sales ETL stages from the command line.
//
//	salesetl prepare    clean a raw sales extract
//	salesetl load       load prepared extracts into the warehouse
//	salesetl aggregate  compute the revenue-per-customer report
//	salesetl run        sequence prepare, load, and aggregate
//
// Configuration is read from salesetl.yaml (working directory or
// $HOME/.salesetl), overridable through SALESETL_* environment
// variables and command-line flags.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/dkellner/salesetl"
	"github.com/dkellner/salesetl/core"
	"github.com/dkellner/salesetl/jobs"
	"github.com/dkellner/salesetl/prepare"
	"github.com/dkellner/salesetl/readers"
	"github.com/dkellner/salesetl/revenue"
	"github.com/dkellner/salesetl/types"
	"github.com/dkellner/salesetl/warehouse"
	"github.com/dkellner/salesetl/writers"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "salesetl: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.GetString("logging.level"))
	ctx := context.Background()

	var runErr error
	switch os.Args[1] {
	case "prepare":
		runErr = runPrepare(ctx, cfg, logger, os.Args[2:])
	case "load":
		runErr = runLoad(ctx, cfg, logger, os.Args[2:])
	case "aggregate":
		runErr = runAggregate(ctx, cfg, logger, os.Args[2:])
	case "run":
		runErr = runAll(ctx, cfg, logger, os.Args[2:])
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "salesetl: unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if runErr != nil {
		logger.WithError(runErr).Error("command failed")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `usage: salesetl <command> [flags]

commands:
  prepare    clean a raw sales extract into a prepared file
  load       load prepared extracts into the warehouse
  aggregate  compute the revenue-per-customer report
  run        sequence prepare, load, and aggregate
`)
}

func loadConfig() (*viper.Viper, error) {
	cfg := viper.New()
	cfg.SetConfigName("salesetl")
	cfg.SetConfigType("yaml")
	cfg.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		cfg.AddConfigPath(home + "/.salesetl")
	}

	cfg.SetEnvPrefix("salesetl")
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()

	cfg.SetDefault("logging.level", "info")
	cfg.SetDefault("paths.raw_sales", "data/raw/sales_data.csv")
	cfg.SetDefault("paths.prepared_sales", "data/prepared/sales_data_prepared.csv")
	cfg.SetDefault("paths.prepared_customers", "data/prepared/customers_data_prepared.csv")
	cfg.SetDefault("paths.prepared_products", "data/prepared/products_data_prepared.csv")
	cfg.SetDefault("paths.report", "data/reports/revenue_by_customer.csv")
	cfg.SetDefault("report.format", "csv")
	cfg.SetDefault("warehouse.dsn", "")

	if err := cfg.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config")
		}
	}

	return cfg, nil
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}

func runPrepare(ctx context.Context, cfg *viper.Viper, logger *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("prepare", flag.ExitOnError)
	input := fs.String("input", cfg.GetString("paths.raw_sales"), "raw sales CSV")
	output := fs.String("output", cfg.GetString("paths.prepared_sales"), "prepared sales CSV")
	fs.Parse(args)

	logger.WithFields(logrus.Fields{"input": *input, "output": *output}).Info("preparing sales extract")

	records, err := readCSVRecords(ctx, *input)
	if err != nil {
		return err
	}
	logger.WithField("records", len(records)).Info("raw extract read")

	transformers, filters := prepare.SalesCleaning()
	cleaned, dropped, err := prepare.CleanRecords(ctx, records, transformers, filters)
	if err != nil {
		return errors.Wrap(err, "clean records")
	}
	if dropped > 0 {
		logger.WithField("dropped", dropped).Warn("records dropped during cleaning")
	}

	if err := writeCSVRecords(ctx, *output, cleaned, nil); err != nil {
		return err
	}
	logger.WithField("records", len(cleaned)).Info("prepared extract written")
	return nil
}

func runLoad(ctx context.Context, cfg *viper.Viper, logger *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	dsn := fs.String("dsn", cfg.GetString("warehouse.dsn"), "warehouse DSN")
	customersPath := fs.String("customers", cfg.GetString("paths.prepared_customers"), "prepared customers CSV")
	productsPath := fs.String("products", cfg.GetString("paths.prepared_products"), "prepared products CSV")
	salesPath := fs.String("sales", cfg.GetString("paths.prepared_sales"), "prepared sales CSV")
	fs.Parse(args)

	if *dsn == "" {
		return errors.New("warehouse dsn is required (flag -dsn or SALESETL_WAREHOUSE_DSN)")
	}

	customers, err := readCSVRecords(ctx, *customersPath)
	if err != nil {
		return err
	}
	products, err := readCSVRecords(ctx, *productsPath)
	if err != nil {
		return err
	}
	sales, err := readCSVRecords(ctx, *salesPath)
	if err != nil {
		return err
	}

	loader, err := warehouse.NewLoader(*dsn, warehouse.WithLogger(logger))
	if err != nil {
		return err
	}
	defer loader.Close()

	if err := loader.EnsureSchema(ctx); err != nil {
		return err
	}
	return loader.Load(ctx, customers, products, sales)
}

func runAggregate(ctx context.Context, cfg *viper.Viper, logger *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("aggregate", flag.ExitOnError)
	input := fs.String("input", cfg.GetString("paths.prepared_sales"), "prepared sales CSV, or - for stdin")
	dsn := fs.String("dsn", "", "aggregate in the warehouse instead of reading a file")
	output := fs.String("output", cfg.GetString("paths.report"), "report destination, or - for stdout")
	format := fs.String("format", cfg.GetString("report.format"), "report format: csv, json, or parquet")
	fs.Parse(args)

	if *dsn != "" {
		return aggregateFromWarehouse(ctx, logger, *dsn, *output, *format)
	}
	return aggregateFromFile(ctx, logger, *input, *output, *format)
}

// aggregateFromFile streams the extract through the pipeline: records
// fold into the revenue aggregator and per-customer totals drain to the
// report sink.
func aggregateFromFile(ctx context.Context, logger *logrus.Logger, input, output, format string) error {
	in, err := openInput(input)
	if err != nil {
		return err
	}

	reader, err := readers.NewCSVReader(in, readers.WithCSVHasHeaders(true))
	if err != nil {
		return errors.Wrap(err, "open sales reader")
	}

	sink, err := newReportSink(output, format)
	if err != nil {
		return err
	}

	aggregator := revenue.NewAggregator()

	pipeline, err := salesetl.NewPipeline().
		From(reader).
		Aggregate(aggregator).
		To(sink).
		WithErrorStrategy(salesetl.SkipErrors).
		Build()
	if err != nil {
		return errors.Wrap(err, "build pipeline")
	}

	if err := pipeline.Execute(ctx); err != nil {
		return errors.Wrap(err, "aggregate sales")
	}

	logger.WithFields(logrus.Fields{
		"customers": len(aggregator.Totals()),
		"processed": aggregator.Processed(),
		"skipped":   aggregator.Skipped(),
	}).Info("revenue report written")
	return nil
}

func aggregateFromWarehouse(ctx context.Context, logger *logrus.Logger, dsn, output, format string) error {
	loader, err := warehouse.NewLoader(dsn, warehouse.WithLogger(logger))
	if err != nil {
		return err
	}
	defer loader.Close()

	totals, err := loader.RevenueByCustomer(ctx)
	if err != nil {
		return err
	}

	sink, err := newReportSink(output, format)
	if err != nil {
		return err
	}

	for _, total := range totals {
		record := core.Record{
			revenue.FieldCustomerID:   total.CustomerID,
			revenue.FieldTotalRevenue: total.TotalRevenue,
		}
		if err := sink.Write(ctx, record); err != nil {
			sink.Close()
			return errors.Wrap(err, "write report")
		}
	}
	if err := sink.Flush(); err != nil {
		sink.Close()
		return errors.Wrap(err, "flush report")
	}
	if err := sink.Close(); err != nil {
		return errors.Wrap(err, "close report")
	}

	logger.WithField("customers", len(totals)).Info("revenue report written")
	return nil
}

func runAll(ctx context.Context, cfg *viper.Viper, logger *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	dsn := fs.String("dsn", cfg.GetString("warehouse.dsn"), "warehouse DSN; empty skips the load stage")
	fs.Parse(args)

	runner := jobs.NewRunner(jobs.WithLogger(logger))

	runner.AddFunc("prepare", func(ctx context.Context) error {
		return runPrepare(ctx, cfg, logger, nil)
	})

	aggregateDeps := []string{"prepare"}
	if *dsn != "" {
		runner.AddFunc("load", func(ctx context.Context) error {
			return runLoad(ctx, cfg, logger, []string{"-dsn", *dsn})
		}, "prepare")
		aggregateDeps = []string{"load"}
	}

	runner.AddFunc("aggregate", func(ctx context.Context) error {
		return runAggregate(ctx, cfg, logger, nil)
	}, aggregateDeps...)

	result, err := runner.Run(ctx)
	if result != nil {
		for name, taskResult := range result.Tasks {
			logger.WithFields(logrus.Fields{
				"task":     name,
				"status":   taskResult.Status.String(),
				"attempts": taskResult.Attempts,
				"duration": taskResult.Duration,
			}).Info("task finished")
		}
	}
	return err
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return file, nil
}

func openOutput(path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	if dir := dirOf(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create %s", dir)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", path)
	}
	return file, nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func dirOf(path string) string {
	if idx := strings.LastIndexByte(path, '/'); idx > 0 {
		return path[:idx]
	}
	return ""
}

// newReportSink resolves the report target: "-" streams to stdout,
// s3://bucket/key uploads, anything else is a local path.
func newReportSink(output, format string) (salesetl.DataSink, error) {
	reportFormat, err := types.ParseFormat(format)
	if err != nil {
		return nil, err
	}

	if output == "-" {
		switch reportFormat {
		case types.FormatJSON:
			return writers.NewJSONWriter(nopWriteCloser{os.Stdout}), nil
		case types.FormatCSV:
			sink, err := writers.NewCSVWriter(nopWriteCloser{os.Stdout},
				writers.WithHeaders([]string{revenue.FieldCustomerID, revenue.FieldTotalRevenue}))
			if err != nil {
				return nil, errors.Wrap(err, "open report writer")
			}
			return sink, nil
		default:
			return nil, errors.New("parquet reports cannot stream to stdout")
		}
	}

	if dir := dirOf(output); dir != "" && !strings.HasPrefix(output, "s3://") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create %s", dir)
		}
	}

	sink, err := types.Destination(output).NewSink(reportFormat)
	if err != nil {
		return nil, errors.Wrap(err, "open report writer")
	}
	return sink, nil
}

func readCSVRecords(ctx context.Context, path string) ([]core.Record, error) {
	in, err := openInput(path)
	if err != nil {
		return nil, err
	}

	reader, err := readers.NewCSVReader(in, readers.WithCSVHasHeaders(true))
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer reader.Close()

	var records []core.Record
	for {
		record, err := reader.Read(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", path)
		}
		records = append(records, record)
	}
	return records, nil
}

func writeCSVRecords(ctx context.Context, path string, records []core.Record, headers []string) error {
	out, err := openOutput(path)
	if err != nil {
		return err
	}

	var opts []writers.WriterOptionCSV
	if len(headers) > 0 {
		opts = append(opts, writers.WithHeaders(headers))
	}
	writer, err := writers.NewCSVWriter(out, opts...)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}

	for _, record := range records {
		if err := writer.Write(ctx, record); err != nil {
			writer.Close()
			return errors.Wrapf(err, "write %s", path)
		}
	}
	return errors.Wrapf(writer.Close(), "close %s", path)
}
