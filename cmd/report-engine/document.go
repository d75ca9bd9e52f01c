// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/report-engine/internal/docx"
)

var documentCmd = &cobra.Command{
	Use:   "document <spec.yaml>",
	Short: "Build a Word document from a YAML block list",
	Long: `Document lays out headings, paragraphs, bullet lists, CSV tables, PNG
figures, page breaks and a table of contents as described in a YAML file,
and saves the result as .docx. Relative csv and png paths are resolved
against the YAML file's directory.

Example:

  output: output/informe.docx
  number_headings: true
  blocks:
    - {type: toc}
    - {type: heading, text: Resumen, level: 1}
    - {type: paragraph, text: "Resultados del periodo."}
    - type: table
      csv: ventas.csv
      title: Ventas por región
      merge: [Region]
      colors:
        - column: Estado
          values: {OK: C6EFCE, Riesgo: FFC7CE}`,
	Args: cobra.ExactArgs(1),
	RunE: runDocument,
}

func init() {
	documentCmd.Flags().StringP("out", "o", "", "output .docx path (overrides output in the YAML file)")
	documentCmd.Flags().Bool("history", false, "print the build history")
	documentCmd.Flags().Bool("contents", false, "print the block list before saving")

	rootCmd.AddCommand(documentCmd)
}

func runDocument(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")
	showHistory, _ := cmd.Flags().GetBool("history")
	showContents, _ := cmd.Flags().GetBool("contents")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	spec, err := docx.LoadSpec(args[0], cfg.Document)
	if err != nil {
		return err
	}
	if out == "" {
		out = spec.Output
	}
	if out == "" {
		return fmt.Errorf("no output path: set output in the YAML file or pass --out")
	}

	b := docx.New(spec.Config, logger)
	if err := docx.Apply(b, spec); err != nil {
		return err
	}
	if showContents {
		for _, info := range b.Contents() {
			fmt.Printf("%3d  %-10s %s\n", info.Index, info.Kind, info.Summary)
		}
	}
	saveErr := b.Save(out)
	if showHistory {
		for _, line := range b.History() {
			fmt.Fprintln(os.Stderr, line)
		}
	}
	if saveErr != nil {
		return saveErr
	}
	fmt.Printf("Saved %s (%d blocks)\n", out, b.Len())
	return nil
}
