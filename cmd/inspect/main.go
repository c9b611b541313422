// Command inspect runs the ingestion pipeline over a local file and
// prints what the server would have done with it: inferred column
// schema, validation issues, the quality score, and coercion failure
// counts.
//
// It is intended for quickly checking a dataset before uploading it,
// and for debugging inference on files that validate unexpectedly.
//
// Output modes:
//
//   - Default mode: prints a JSON summary to stdout.
//   - Issues mode (-issues): prints one human-readable line per
//     validation issue and suppresses the JSON summary. The exit code
//     is 1 when any error-severity issue exists, so the command works
//     in shell pipelines.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"datalik/internal/ingest"
	"datalik/internal/schema"
)

func main() {
	var (
		// flagFile is the local path of the dataset to inspect.
		flagFile = flag.String("file", "", "Path of the dataset (CSV, XLSX, or HTML)")

		// flagFormat overrides format detection from the file extension.
		flagFormat = flag.String("format", "", "Force format: csv|xlsx|html (default: by extension)")

		// flagSample bounds how many rows type inference reads.
		flagSample = flag.Int("sample", ingest.DefaultSampleRows, "Rows sampled for type inference")

		// flagRatio is the distinct/non-empty ceiling for categorical
		// promotion. Zero uses the built-in default.
		flagRatio = flag.Float64("ratio", 0, "Categorical distinct ratio ceiling (0 = default)")

		// flagRequired names columns that must be present, comma-separated.
		flagRequired = flag.String("required", "", "Comma-separated required column names")

		// flagIssues enables issues mode: print validation issues as text
		// and suppress the JSON summary.
		flagIssues = flag.Bool("issues", false, "Print validation issues only (suppresses JSON output)")

		// flagPretty controls JSON indentation for summary output.
		flagPretty = flag.Bool("pretty", true, "Pretty-print JSON output")
	)
	flag.Parse()

	if strings.TrimSpace(*flagFile) == "" {
		fmt.Fprintln(os.Stderr, "missing -file")
		flag.Usage()
		os.Exit(2)
	}

	data, err := os.ReadFile(*flagFile)
	if err != nil {
		log.Fatalf("read input: %v", err)
	}

	up := ingest.RawUpload{
		Filename: *flagFile,
		Format:   ingest.FormatFromFilename(*flagFile),
		Data:     data,
	}
	if f := strings.TrimSpace(*flagFormat); f != "" {
		up.Format = ingest.Format(f)
	}

	opt := ingest.Options{
		SampleRows:       *flagSample,
		CategoricalRatio: *flagRatio,
	}
	if req := splitList(*flagRequired); len(req) > 0 {
		opt.Template = &ingest.Template{Name: "inspect", Required: req}
	}

	// Bound the run. Parsing is local and should be fast; a hang means
	// something is badly wrong with the input.
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	res, err := ingest.Run(ctx, up, opt)
	if err != nil {
		log.Fatalf("ingest: %v", err)
	}

	if *flagIssues {
		for _, issue := range res.Issues {
			col := issue.Column
			if col == "" {
				col = "-"
			}
			fmt.Fprintf(os.Stdout, "%s\t%s\t%s\n", issue.Severity, col, issue.Message)
		}
		if schema.HasErrors(res.Issues) {
			os.Exit(1)
		}
		return
	}

	enc := json.NewEncoder(os.Stdout)
	if *flagPretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(res.Summarize()); err != nil {
		log.Fatalf("encode summary: %v", err)
	}
	if !res.Promoted() {
		os.Exit(1)
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
