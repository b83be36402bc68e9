package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rikiramadhan1028/NEW-ART/internal/archive"
	"github.com/rikiramadhan1028/NEW-ART/internal/catalog"
	"github.com/rikiramadhan1028/NEW-ART/internal/compositor"
	"github.com/rikiramadhan1028/NEW-ART/internal/engine"
	"github.com/rikiramadhan1028/NEW-ART/internal/model"
)

type generateFlags struct {
	layers      string
	out         string
	count       int
	name        string
	description string
	format      string
	baseURL     string
	externalURL string
	compress    bool
	zip         bool
}

func generateCommand(c *cli) *cobra.Command {
	var f generateFlags
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a collection from a local layers directory",
		Example: `  newart generate --layers ./input_layers --out ./generated_output -n 100 \
    --name "My Collection" --description "Hand drawn traits"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, c, f)
		},
	}
	cmd.Flags().StringVar(&f.layers, "layers", "", "Directory holding one sub-directory per layer")
	cmd.Flags().StringVar(&f.out, "out", "generated_output", "Output directory")
	cmd.Flags().IntVarP(&f.count, "count", "n", 0, "Number of items to generate")
	cmd.Flags().StringVar(&f.name, "name", "", "Collection name")
	cmd.Flags().StringVar(&f.description, "description", "", "Collection description")
	cmd.Flags().StringVar(&f.format, "format", model.FormatPNG, "Output image format (png or gif)")
	cmd.Flags().StringVar(&f.baseURL, "base-url", "", "Provisional base URL for image fields")
	cmd.Flags().StringVar(&f.externalURL, "external-url", "", "External URL copied into every record")
	cmd.Flags().BoolVar(&f.compress, "compress", false, "Losslessly recompress generated images")
	cmd.Flags().BoolVar(&f.zip, "zip", false, "Package images/ and metadata/ into a zip archive")
	_ = cmd.MarkFlagRequired("layers")
	_ = cmd.MarkFlagRequired("count")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func runGenerate(cmd *cobra.Command, c *cli, f generateFlags) error {
	ctx := cmd.Context()

	req, err := model.NewJobRequest(model.JobRequest{
		Count:                 f.count,
		CollectionName:        f.name,
		CollectionDescription: f.description,
		BaseImageURL:          f.baseURL,
		ExternalURL:           f.externalURL,
		UserAddress:           "local",
		CompressImages:        f.compress,
		OutputFormat:          f.format,
	}, 0)
	if err != nil {
		return err
	}

	root, err := catalog.ResolveRoot(f.layers)
	if err != nil {
		return err
	}
	cat, err := catalog.Build(ctx, root)
	if err != nil {
		return err
	}
	slog.Debug("catalog built", "root", root, "layers", len(cat), "combinations", cat.Space())

	comp, err := compositor.New(compositor.Options{Size: c.cfg.CanvasSize, Background: c.cfg.CanvasBackground})
	if err != nil {
		return err
	}
	assembler := engine.NewAssembler(comp, engine.NopRecorder{}, engine.AssemblerOptions{
		MaxConsecutiveRejections: c.cfg.MaxConsecutiveRejections,
		MaxConsecutiveFailures:   c.cfg.MaxConsecutiveFailures,
	})

	jobID := "local-" + uuid.NewString()
	asm, err := assembler.Assemble(ctx, engine.Spec{
		JobID:     jobID,
		Request:   req,
		Catalog:   cat,
		InputDir:  root,
		OutputDir: f.out,
	})
	if err != nil {
		return err
	}

	if req.CompressImages {
		if _, err := compositor.OptimizeDir(ctx, asm.ImagesDir); err != nil {
			return err
		}
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "generated %d items (%d rejected draws, %d failures)\n", asm.FinalCount, asm.Rejections, asm.Failures)
	fmt.Fprintf(w, "images:   %s\nmetadata: %s\n", asm.ImagesDir, asm.MetadataDir)

	if f.zip {
		out, err := archive.Directory(ctx, filepath.Join(f.out, jobID+".zip"),
			archive.Entry{Dir: asm.ImagesDir, Name: engine.ImagesDirName},
			archive.Entry{Dir: asm.MetadataDir, Name: engine.MetadataDirName},
		)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "archive:  %s\n", out)
	}
	return nil
}
