package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rikiramadhan1028/NEW-ART/internal/metadata"
	"github.com/rikiramadhan1028/NEW-ART/internal/model"
)

func rewriteCommand(c *cli) *cobra.Command {
	var dir, cid, gateway, format string
	cmd := &cobra.Command{
		Use:   "rewrite",
		Short: "Point every metadata record at its published image URL",
		Long: `Rewrite sets the image field of every JSON record below --dir to
<gateway><cid>/<file stem>.<format>. Records are parsed before any file is
written, so one malformed record leaves the directory untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rw := &metadata.Rewriter{Concurrency: c.cfg.RewriteConcurrency}
			n, err := rw.Rewrite(cmd.Context(), dir, metadata.FinalBaseURL(gateway, cid), format)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rewrote %d metadata records\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Directory holding metadata JSON records")
	cmd.Flags().StringVar(&cid, "cid", "", "Content identifier of the published image folder")
	cmd.Flags().StringVar(&gateway, "gateway", "", "Gateway URL, e.g. https://ipfs.io/ipfs/")
	cmd.Flags().StringVar(&format, "format", model.FormatPNG, "Image extension (png or gif)")
	_ = cmd.MarkFlagRequired("dir")
	_ = cmd.MarkFlagRequired("cid")
	_ = cmd.MarkFlagRequired("gateway")
	return cmd
}
