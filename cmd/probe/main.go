// Command probe runs the ingestion pipeline against a local delimited file
// and prints the result to stdout. It is the quickest way to see what the
// dashboard would make of a dataset without starting the server.
//
// Output modes
//
//   - Default mode: prints the typed grid as JSON.
//   - Schema mode (-schema): prints only the inferred schema response.
//
// The OpenAI key comes from OPENAI_API_KEY; -base-url can point the client at
// a proxy or a compatible local model server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"gridchat/internal/inference"
	"gridchat/internal/ingest"
)

func main() {
	var (
		flagFile    = flag.String("file", "", "path of the delimited input file")
		flagModel   = flag.String("model", "", "chat-completion model for schema inference")
		flagBaseURL = flag.String("base-url", "", "override the inference API base URL")
		flagSchema  = flag.Bool("schema", false, "print only the inferred schema")
		flagTimeout = flag.Duration("timeout", 60*time.Second, "overall run timeout")
	)
	flag.Parse()

	if *flagFile == "" {
		fatalf("missing -file")
	}

	data, err := os.ReadFile(*flagFile)
	if err != nil {
		fatalf("read input: %v", err)
	}

	client := inference.New(inference.Config{
		Model:   *flagModel,
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		BaseURL: *flagBaseURL,
	})

	ctx, cancel := context.WithTimeout(context.Background(), *flagTimeout)
	defer cancel()

	text := string(data)

	if *flagSchema {
		delim := ingest.DetectDelimiter(text)
		headers, rows, err := ingest.Tokenize(text, delim)
		if err != nil {
			fatalf("tokenize: %v", err)
		}
		if len(rows) > 5 {
			rows = rows[:5]
		}
		resp, err := client.InferSchema(ctx, delim, headers, rows)
		if err != nil {
			fatalf("infer schema: %v", err)
		}
		printJSON(resp)
		return
	}

	grid, err := ingest.NewPipeline(client).Run(ctx, text)
	if err != nil {
		fatalf("run pipeline: %v", err)
	}
	fmt.Fprintf(os.Stderr, "%s: %d rows, %d columns\n", *flagFile, len(grid.Data), len(grid.Columns))
	printJSON(grid)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatalf("encode output: %v", err)
	}
}

func fatalf(format string, args ...any) {
	log.Printf(format, args...)
	os.Exit(1)
}
