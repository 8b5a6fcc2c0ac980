// Package main 提供单次问答的命令行工具，直接复用服务端的检索与生成层。
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"multimodal-rag-go/internal/config"
	"multimodal-rag-go/internal/model"
	"multimodal-rag-go/internal/service"
	"multimodal-rag-go/internal/vectorstore"
	"multimodal-rag-go/pkg/embedding"
	"multimodal-rag-go/pkg/llm"
	"multimodal-rag-go/pkg/log"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	configPath   string
	backend      string
	strategy     string
	mode         string
	language     string
	numResults   int
	noVision     bool
	retrieveOnly bool
	jsonOutput   bool
	timeout      time.Duration
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	labelColor  = color.New(color.FgYellow)
	dimColor    = color.New(color.Faint)
	errColor    = color.New(color.FgRed, color.Bold)
)

var rootCmd = &cobra.Command{
	Use:           "ask <question>",
	Short:         "Ask a question against the ingested PDF collections",
	Long:          "Retrieve text, image and table content for a question and generate an answer with citations",
	Args:          cobra.ExactArgs(1),
	RunE:          runAsk,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "./configs/config.yaml", "Config file path")
	rootCmd.Flags().StringVar(&backend, "backend", "", "Override vectorstore.backend (elasticsearch|pgvector|memory)")
	rootCmd.Flags().StringVarP(&strategy, "strategy", "s", service.StrategyAll, "Retrieval strategy: "+strings.Join(service.Strategies, ", "))
	rootCmd.Flags().StringVarP(&mode, "mode", "m", "", "Generation mode: simple, citations, structured")
	rootCmd.Flags().StringVarP(&language, "language", "l", "", "Answer language: Indonesian, English")
	rootCmd.Flags().IntVarP(&numResults, "num", "k", 5, "Number of results")
	rootCmd.Flags().BoolVar(&noVision, "no-vision", false, "Disable real-time image analysis")
	rootCmd.Flags().BoolVar(&retrieveOnly, "retrieve-only", false, "Print retrieved sources without generating an answer")
	rootCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the raw JSON result")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 3*time.Minute, "Overall timeout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		errColor.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if backend != "" {
		cfg.VectorStore.Backend = backend
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	log.InitStderr("warn")
	defer log.Sync()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	store, closeStore, err := vectorstore.Open(ctx, cfg, embedding.NewClient(cfg.Embedding))
	if err != nil {
		return err
	}
	defer closeStore()

	retrievalService := service.NewRetrievalService(store)
	params := service.RetrievalParams{K: numResults}

	if retrieveOnly {
		resp, err := retrievalService.Retrieve(ctx, args[0], strategy, params)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(resp)
		}
		fmt.Print(service.FormatResultWithSources(resp))
		return nil
	}

	visionEnabled := cfg.Vision.Enabled && !noVision
	var visionService service.VisionService
	if visionEnabled {
		fetcher := service.NewAssetFetcher(cfg.MinIO, cfg.Vision.FetchTimeout)
		visionService = service.NewVisionService(llm.NewVisionClient(cfg.LLM, cfg.Vision), fetcher, nil, cfg.Vision.FetchTimeout)
	}
	generationService := service.NewGenerationService(llm.NewClient(cfg.LLM), visionService, visionEnabled, cfg.LLM.Generation)
	queryService := service.NewQueryService(retrievalService, generationService, store,
		cfg.Server.MaxQueryLen, cfg.Generation.DefaultMode, cfg.Generation.DefaultLanguage)

	result, err := queryService.Query(ctx, service.QueryRequest{
		Query:             args[0],
		Strategy:          strategy,
		Params:            params,
		Mode:              mode,
		Language:          language,
		IncludeSources:    true,
		IncludeSourcePdfs: true,
	})
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(result)
	}
	printResult(result)
	return nil
}

func printResult(r *model.QueryResult) {
	headerColor.Println("Answer")
	fmt.Println(r.Answer)
	if r.Error != "" {
		errColor.Printf("\nmodel error: %s\n", r.Error)
	}
	fmt.Println()

	if len(r.Sources) > 0 {
		headerColor.Println("Sources")
		for _, s := range r.Sources {
			preview := s.ContentPreview
			if preview == "" {
				preview = s.Description
			}
			labelColor.Printf("  [%s] ", s.ID)
			fmt.Printf("page %s  ", s.Page)
			dimColor.Println(oneLine(preview, 100))
		}
		fmt.Println()
	}

	if len(r.SourcePdfs) > 0 {
		headerColor.Println("Documents")
		for _, pdf := range r.SourcePdfs {
			labelColor.Printf("  %s ", pdf.Filename)
			dimColor.Println(pdf.URL)
		}
		fmt.Println()
	}

	dimColor.Printf("strategy=%s mode=%s language=%s results=%d text=%d images=%d tables=%d vision=%t %.2fs\n",
		r.RetrievalMethod, r.GenerationMethod, r.Language, r.TotalResults,
		r.SourcesCount.Text, r.SourcesCount.Images, r.SourcesCount.Tables,
		r.VisionUsed, r.ProcessingTimeSeconds)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
