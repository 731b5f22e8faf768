package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloo-solutions/supportdesk/internal/database"
	"github.com/cloo-solutions/supportdesk/internal/service"
	"github.com/spf13/cobra"
)

func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <files...>",
		Short: "Ingest documents into the knowledge store",
		Long:  "Extract, chunk and embed each file, adding its chunks to the knowledge store. Supported: txt, md, csv, pdf, docx, xlsx.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runIngest,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	outputFormat, _ := cmd.Flags().GetString("output")

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var results []*service.IngestResult
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		result, err := a.retrieval.IngestDocument(ctx, data, filepath.Base(path))
		if err != nil {
			return err
		}
		results = append(results, result)

		if outputFormat != "json" {
			fmt.Printf("Ingested %s: %d chunks\n", result.Filename, result.Chunks)
		}
	}

	if outputFormat == "json" {
		return printJSON(results)
	}
	return nil
}

func IngestDBCmd() *cobra.Command {
	var dbCfg database.Config

	cmd := &cobra.Command{
		Use:   "ingest-db",
		Short: "Ingest every table of an external PostgreSQL database",
		Long:  "Read up to 10000 rows from each public table of an external database and add one chunk per row to the knowledge store",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runIngestDB(cmd.Context(), dbCfg, outputFormat)
		},
	}

	cmd.Flags().StringVar(&dbCfg.Host, "host", "", "Database host")
	cmd.Flags().IntVar(&dbCfg.Port, "port", 5432, "Database port")
	cmd.Flags().StringVarP(&dbCfg.User, "user", "u", "", "Database user")
	cmd.Flags().StringVar(&dbCfg.Password, "password", "", "Database password")
	cmd.Flags().StringVarP(&dbCfg.Database, "database", "d", "", "Database name")
	cmd.Flags().StringVar(&dbCfg.SSLMode, "sslmode", "", "SSL mode (disable, require, verify-full)")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	_ = cmd.MarkFlagRequired("host")
	_ = cmd.MarkFlagRequired("database")

	return cmd
}

func runIngestDB(ctx context.Context, dbCfg database.Config, outputFormat string) error {
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.retrieval.IngestExternalTables(ctx, dbCfg)
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(result)
	}

	fmt.Printf("Database %s:\n", result.Database)
	for _, t := range result.Tables {
		if t.Failed {
			fmt.Printf("  %s: failed (%s)\n", t.Table, t.Error)
			continue
		}
		fmt.Printf("  %s: %d rows\n", t.Table, t.Rows)
	}
	fmt.Printf("Total chunks: %d\n", result.TotalChunks)
	return nil
}

func SearchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge store",
		Long:  "Embed the query and print the nearest knowledge chunks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runSearch(cmd.Context(), strings.Join(args, " "), limit, outputFormat)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Maximum number of results")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runSearch(ctx context.Context, query string, limit int, outputFormat string) error {
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.retrieval.Search(ctx, query, limit)
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(results)
	}

	if len(results) == 0 {
		fmt.Println("No results found")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%d. [%s] (distance %.4f)\n%s\n\n", i+1, r.Source, r.Distance, r.Content)
	}
	return nil
}

func ResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset [files...]",
		Short: "Replace the knowledge store contents",
		Long:  "Delete every chunk. When files are given, their chunks replace the store contents in one transaction.",
		RunE:  runReset,
	}

	cmd.Flags().Bool("yes", false, "Do not ask for confirmation")

	return cmd
}

func runReset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		fmt.Print("This deletes all knowledge chunks. Continue? [y/N] ")
		var answer string
		fmt.Scanln(&answer)
		if !strings.EqualFold(strings.TrimSpace(answer), "y") {
			fmt.Println("Aborted")
			return nil
		}
	}

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(args) == 0 {
		if err := a.retrieval.Clear(ctx); err != nil {
			return err
		}
		fmt.Println("Knowledge store cleared")
		return nil
	}

	docs := make([]service.Document, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		docs = append(docs, service.Document{Filename: filepath.Base(path), Data: data})
	}

	total, err := a.retrieval.ReplaceAll(ctx, docs)
	if err != nil {
		return err
	}
	fmt.Printf("Knowledge store replaced: %d documents, %d chunks\n", len(docs), total)
	return nil
}

func printJSON(v interface{}) error {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(jsonBytes))
	return nil
}
