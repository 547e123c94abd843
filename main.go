package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"scout/internal/browser"
	"scout/internal/config"
	"scout/internal/engine"
	"scout/internal/fields"
	"scout/internal/formatter"
	"scout/internal/logging"
	"scout/internal/page"
	"scout/internal/recipe"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var version = "dev"

var (
	steps        string
	outputFormat string
	outputFile   string
	static       bool
	showUI       bool
	proxyURL     string
	schemaPath   string
	configPath   string
	logLevel     string
	logFormat    string
	timeout      time.Duration
	fieldsFormat string
)

func main() {
	var rootCmd = &cobra.Command{
		Use:     "scout",
		Short:   "Run declarative scraping recipes",
		Version: version,
		Long: `scout interprets JSON scraping recipes. A recipe lists the steps that
turn a search query into candidates (autocomplete_steps) or a detail page
URL into a structured record (url_steps).`,
		SilenceUsage: true,
	}

	runCmd := &cobra.Command{
		Use:   "run <recipe.json> <input>",
		Short: "Execute a recipe step list",
		Example: `  # Search candidates
  scout run recipes/movies.json "the matrix"

  # Extract a detail page and save it as Markdown
  scout run recipes/movies.json https://movies.example.com/m/603 -o matrix.md

  # Plain HTTP fetching, no browser
  scout run --static --steps url recipes/books.json https://books.example.com/b/1`,
		Args:         cobra.ExactArgs(2),
		RunE:         runRecipe,
		SilenceUsage: true,
	}
	runCmd.Flags().StringVar(&steps, "steps", "", "Step list to run (autocomplete, url); inferred from the input when empty")
	runCmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format (html, text, markdown, json, csv)")
	runCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file path (format inferred from extension if -f not specified)")
	runCmd.Flags().BoolVar(&static, "static", false, "Fetch pages over plain HTTP instead of a browser")
	runCmd.Flags().BoolVar(&showUI, "showui", false, "Show browser UI (disable headless mode)")
	runCmd.Flags().StringVarP(&proxyURL, "proxy", "p", "", "Proxy URL (e.g. http://127.0.0.1:7890), defaults to SCOUT_PROXY env var")
	runCmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "Default page load timeout (overrides DEFAULT_PAGE_LOAD_TIMEOUT)")
	runCmd.Flags().StringVar(&schemaPath, "schema", "", "Field schema file (.json or .yaml); built-in schema when empty")

	validateCmd := &cobra.Command{
		Use:          "validate <recipe.json>",
		Short:        "Check a recipe's structure and output fields",
		Args:         cobra.ExactArgs(1),
		RunE:         validateRecipe,
		SilenceUsage: true,
	}
	validateCmd.Flags().StringVar(&schemaPath, "schema", "", "Field schema file (.json or .yaml); built-in schema when empty")

	fieldsCmd := &cobra.Command{
		Use:          "fields",
		Short:        "Print the field schema",
		Args:         cobra.NoArgs,
		RunE:         printFields,
		SilenceUsage: true,
	}
	fieldsCmd.Flags().StringVar(&schemaPath, "schema", "", "Field schema file (.json or .yaml); built-in schema when empty")
	fieldsCmd.Flags().StringVarP(&fieldsFormat, "format", "f", "yaml", "Output format (yaml, json)")

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(runCmd, validateCmd, fieldsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runRecipe(cmd *cobra.Command, args []string) error {
	recipePath, input := args[0], args[1]

	// If output file is specified but format is not, infer format from file extension
	if outputFile != "" && !cmd.Flags().Changed("format") {
		if inferred := inferFormatFromExtension(outputFile); inferred != "" {
			outputFormat = inferred
		}
	}
	if err := validateFormat(outputFormat); err != nil {
		return err
	}

	logger, err := logging.New(os.Stderr, logLevel, logFormat)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(recipePath)
	if err != nil {
		return fmt.Errorf("failed to read recipe: %w", err)
	}
	for _, p := range recipe.ValidateDocument(data) {
		logger.Warn("recipe does not match schema", "path", p.Path, "problem", p.Message)
	}
	r, err := recipe.Parse(data)
	if err != nil {
		return err
	}

	stepType, err := resolveStepType(steps, input)
	if err != nil {
		return err
	}

	ctrl, err := newController(cfg)
	if err != nil {
		return err
	}

	eng := engine.New(cfg, ctrl, logger, engine.WithSchema(loadSchema(cfg, logger)))
	defer eng.Close()

	result := eng.ExecuteRecipe(context.Background(), r, stepType, input)

	outputContent, err := formatter.Format(formatter.NewResultContent(result), outputFormat)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(outputContent), 0644); err != nil {
			return fmt.Errorf("failed to write to file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Output written to: %s\n", outputFile)
	} else {
		fmt.Println(outputContent)
	}
	return nil
}

func validateRecipe(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read recipe: %w", err)
	}

	logger, err := logging.New(os.Stderr, logLevel, logFormat)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	problems := recipe.ValidateDocument(data)
	for _, p := range problems {
		fmt.Printf("schema: %s\n", p.Error())
	}

	r, err := recipe.Parse(data)
	if err != nil {
		return err
	}

	validator := fields.NewValidator(loadSchema(cfg, logger), logging.Discard())
	failed := len(problems) > 0
	for _, t := range recipe.StepTypes {
		report := validator.ValidateRecipeFields(r, t)
		for _, issue := range report.Errors {
			fmt.Printf("error: %s\n", issue)
			failed = true
		}
		for _, issue := range report.Warnings {
			fmt.Printf("warning: %s\n", issue)
		}
	}

	if failed {
		return fmt.Errorf("recipe %s is invalid", args[0])
	}
	fmt.Printf("%s: ok\n", args[0])
	return nil
}

func printFields(cmd *cobra.Command, args []string) error {
	logger, err := logging.New(os.Stderr, logLevel, logFormat)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	schema := loadSchema(cfg, logger)

	var out []byte
	switch strings.ToLower(fieldsFormat) {
	case "yaml", "yml":
		out, err = yaml.Marshal(schema)
	case "json":
		out, err = json.MarshalIndent(schema, "", "  ")
	default:
		return fmt.Errorf("invalid output format: %s", fieldsFormat)
	}
	if err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	fmt.Println(strings.TrimRight(string(out), "\n"))
	return nil
}

// loadConfig merges the config file, the environment and the command line flags.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath, os.Environ())
	if err != nil {
		return cfg, err
	}
	if showUI {
		cfg.Headless = false
	}
	if proxyURL != "" {
		cfg.ProxyURL = proxyURL
	}
	if schemaPath != "" {
		cfg.SchemaPath = schemaPath
	}
	if timeout > 0 {
		cfg.DefaultPageLoadTimeout = timeout
	}
	return cfg, cfg.Validate()
}

func loadSchema(cfg config.Config, logger *slog.Logger) *fields.Schema {
	if cfg.SchemaPath == "" {
		return fields.DefaultSchema()
	}
	return fields.LoadSchema(cfg.SchemaPath, logger)
}

func newController(cfg config.Config) (page.Controller, error) {
	if static {
		return page.NewStaticController(&http.Client{}), nil
	}
	ctrl, err := page.NewRodController(browser.Config{
		ProxyURL: cfg.ProxyURL,
		Headless: cfg.Headless,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return ctrl, nil
}

// resolveStepType maps the --steps flag to a step list. Without the flag, URLs
// run url_steps and anything else runs autocomplete_steps.
func resolveStepType(flag, input string) (recipe.StepType, error) {
	switch strings.ToLower(flag) {
	case "":
		lower := strings.ToLower(strings.TrimSpace(input))
		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
			return recipe.URLSteps, nil
		}
		return recipe.AutocompleteSteps, nil
	case "autocomplete", string(recipe.AutocompleteSteps):
		return recipe.AutocompleteSteps, nil
	case "url", string(recipe.URLSteps):
		return recipe.URLSteps, nil
	default:
		return "", fmt.Errorf("invalid step list: %s", flag)
	}
}

func validateFormat(format string) error {
	if !formatter.Supported(format) {
		return fmt.Errorf("invalid output format: %s", format)
	}
	return nil
}

// inferFormatFromExtension infers output format from file extension
func inferFormatFromExtension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".md", ".markdown":
		return "markdown"
	case ".json":
		return "json"
	case ".html", ".htm":
		return "html"
	case ".txt":
		return "text"
	case ".csv":
		return "csv"
	default:
		return ""
	}
}
