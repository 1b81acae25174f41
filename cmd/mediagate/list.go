package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zen-systems/mediagate/pkg/adapter"
	"github.com/zen-systems/mediagate/pkg/archive"
	"github.com/zen-systems/mediagate/pkg/catalog"
	"github.com/zen-systems/mediagate/pkg/config"
	"github.com/zen-systems/mediagate/pkg/provider"
)

func modelsCmd() *cobra.Command {
	var providerFlag string
	var capabilityFlag string
	var aliasesFlag bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List known models per provider",
		Long: `Lists the model catalog: built-in models merged with
	~/.mediagate/models.yaml.

	Use --aliases to show aliases and what they resolve to.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadCatalog()
			if err != nil {
				return fmt.Errorf("failed to load model catalog: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)

			if aliasesFlag {
				fmt.Fprintln(w, "ALIAS\tMODEL")
				aliases := cat.Aliases()
				names := make([]string, 0, len(aliases))
				for name := range aliases {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Fprintf(w, "%s\t%s\n", name, aliases[name])
				}
				return w.Flush()
			}

			var filter catalog.Filter
			if providerFlag != "" {
				p, err := provider.Parse(providerFlag)
				if err != nil {
					return err
				}
				filter.Provider = p
			}
			if capabilityFlag != "" {
				c, err := provider.ParseCapability(capabilityFlag)
				if err != nil {
					return err
				}
				filter.Capability = c
			}

			fmt.Fprintln(w, "PROVIDER\tMODEL\tNAME\tCAPABILITIES\tDEFAULT\tCREDITS")
			for _, m := range cat.List(filter) {
				caps := make([]string, len(m.Capabilities))
				for i, c := range m.Capabilities {
					caps[i] = c.Kind()
				}
				def := ""
				if m.Default {
					def = "yes"
				}
				credits := "-"
				if m.Credits > 0 {
					credits = fmt.Sprintf("%g", m.Credits)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					m.Provider, m.ID, m.Name(), strings.Join(caps, ","), def, credits)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&providerFlag, "provider", "", "only this provider")
	cmd.Flags().StringVar(&capabilityFlag, "capability", "", "only models with this capability (image or video)")
	cmd.Flags().BoolVar(&aliasesFlag, "aliases", false, "show aliases and what they resolve to")

	return cmd
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "Show providers, what they can generate and whether they are configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tIMAGE\tVIDEO\tCREDENTIAL\tSTATUS")
			for _, row := range providerRows(settings) {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", row.provider, row.image, row.video, row.credential, row.status)
			}
			return w.Flush()
		},
	}
}

type providerRow struct {
	provider   provider.Provider
	image      string
	video      string
	credential string
	status     string
}

func providerRows(settings *config.Settings) []providerRow {
	wiredFor := func(p provider.Provider, c provider.Capability) string {
		for _, w := range adapter.WiredProviders(c) {
			if w == p {
				return "yes"
			}
		}
		return "-"
	}

	var rows []providerRow
	for _, p := range provider.All() {
		row := providerRow{
			provider:   p,
			image:      wiredFor(p, provider.ImageGeneration),
			video:      wiredFor(p, provider.VideoGeneration),
			credential: strings.Join(config.EnvVars(p), " | "),
			status:     "no key",
		}
		if row.credential == "" {
			row.credential = "-"
		}
		if settings.HasProvider(p) {
			row.status = "ready"
		}
		rows = append(rows, row)
	}
	return rows
}

func historyCmd() *cobra.Command {
	var limit int
	var exportDir string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived generations, newest last",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := archive.NewStore("")
			if err != nil {
				return fmt.Errorf("failed to open archive: %w", err)
			}
			records, err := store.Records()
			if err != nil {
				return err
			}
			if limit > 0 && len(records) > limit {
				records = records[len(records)-limit:]
			}

			if exportDir != "" {
				for _, rec := range records {
					path, err := store.Restore(rec, exportDir)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), path)
				}
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STORED\tPROVIDER\tMODEL\tTYPE\tSIZE\tPROMPT")
			for _, rec := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					rec.StoredAt.Local().Format("2006-01-02 15:04:05"),
					rec.Provider, rec.Model, rec.MIMEType, rec.Size, truncate(rec.Prompt, 60))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "show at most this many records (0: all)")
	cmd.Flags().StringVar(&exportDir, "export", "", "copy the listed generations into this directory instead of printing them")
	return cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
