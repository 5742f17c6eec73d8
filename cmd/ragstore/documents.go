package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/schema"

	"github.com/fyrsmithlabs/ragstore/internal/ingest"
)

// publishedLayout renders file modification times in document metadata.
const publishedLayout = "1/2/2006, 3:04:05 PM"

type ingestOptions struct {
	docID     string
	title     string
	skipCache bool
}

func newIngestCmd(root *rootOptions) *cobra.Command {
	opts := &ingestOptions{}
	cmd := &cobra.Command{
		Use:   "ingest <namespace> <file>",
		Short: "Chunk, embed and store a text file",
		Long: `Chunk, embed and store a text file in a namespace.

The embedding result is cached by the file's absolute path; ingesting the same
file again reuses the cached vectors unless --skip-cache is set.

Examples:
  ragstore ingest docs ./handbook.md
  ragstore ingest docs ./handbook.md --doc-id handbook --skip-cache`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, path, err := readDocument(args[1], opts)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), root, false)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			res := a.svc.Ingest(cmd.Context(), args[0], doc, path, opts.skipCache)
			if err := printJSON(cmd.OutOrStdout(), struct {
				DocID string `json:"docId"`
				ingest.Result
			}{doc.ID, res}); err != nil {
				return err
			}
			if res.Error != nil {
				return fmt.Errorf("ingest failed: %s", *res.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.docID, "doc-id", "", "document id (default: random UUID)")
	cmd.Flags().StringVar(&opts.title, "title", "", "document title (default: file name)")
	cmd.Flags().BoolVar(&opts.skipCache, "skip-cache", false, "re-embed even if the file is cached")
	return cmd
}

// readDocument loads a file as a document with title, published and url
// metadata. It returns the absolute path used as the cache key.
func readDocument(file string, opts *ingestOptions) (ingest.DocumentData, string, error) {
	path, err := filepath.Abs(file)
	if err != nil {
		return ingest.DocumentData{}, "", fmt.Errorf("resolving %s: %w", file, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return ingest.DocumentData{}, "", err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return ingest.DocumentData{}, "", fmt.Errorf("reading %s: %w", file, err)
	}

	docID := opts.docID
	if docID == "" {
		docID = uuid.NewString()
	}
	title := opts.title
	if title == "" {
		title = filepath.Base(path)
	}

	doc := ingest.FromSchema(docID, schema.Document{
		PageContent: string(content),
		Metadata: map[string]any{
			"title":     title,
			"published": info.ModTime().Format(publishedLayout),
			"url":       "file://" + path,
		},
	})
	return doc, path, nil
}

type searchOptions struct {
	topN      int
	threshold float64
	exclude   []string
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	opts := &searchOptions{}
	cmd := &cobra.Command{
		Use:   "search <namespace> <query>",
		Short: "Find the chunks most similar to a query",
		Long: `Find the chunks most similar to a query.

Examples:
  ragstore search docs "how do I rotate credentials"
  ragstore search docs "vacation policy" --top-n 8 --threshold 0.4`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), root, false)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			req := a.svc.NewSearchRequest(args[0], args[1])
			req.TopN = opts.topN
			req.SimilarityThreshold = opts.threshold
			req.FilterIdentifiers = opts.exclude

			resp, err := a.svc.Search(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().IntVar(&opts.topN, "top-n", 4, "number of neighbors to request")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", 0.25, "minimum similarity score")
	cmd.Flags().StringSliceVar(&opts.exclude, "exclude", nil, "source identifiers (title:<t>-timestamp:<p>) to leave out")
	return cmd
}
