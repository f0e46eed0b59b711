package cli

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cperrin88/acquire/internal/logger"
	"github.com/cperrin88/acquire/pkg/acquire"
	"github.com/cperrin88/acquire/pkg/errsink"
	"github.com/cperrin88/acquire/pkg/hashes"
)

// NewFetchCmd creates the fetch command.
func NewFetchCmd() *cobra.Command {
	var (
		destDir string
		sha256  string
		sha512  string
		retries int
	)

	cmd := &cobra.Command{
		Use:   "fetch URI...",
		Short: "Download one or more URIs via their access methods",
		Long: `Download URIs by driving the method binary of each URI's scheme.
Downloaded files are verified against the given hashes, retried on
transient network errors and land in the destination directory under
their URI's base name.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, args, destDir, sha256, sha512, retries)
		},
	}

	cmd.Flags().StringVarP(&destDir, "dest-dir", "d", ".", "directory downloads land in")
	cmd.Flags().StringVar(&sha256, "sha256", "", "expected SHA256 digest (single URI only)")
	cmd.Flags().StringVar(&sha512, "sha512", "", "expected SHA512 digest (single URI only)")
	cmd.Flags().IntVar(&retries, "retries", -1, "transient failure retries per URI (-1: configured default)")

	return cmd
}

func runFetch(cmd *cobra.Command, uris []string, destDir, sha256, sha512 string, retries int) error {
	if (sha256 != "" || sha512 != "") && len(uris) > 1 {
		return fmt.Errorf("hash flags apply to a single URI, got %d", len(uris))
	}

	conf, err := loadConfig()
	if err != nil {
		return err
	}
	if retries >= 0 {
		conf.Set("Acquire::Retries", fmt.Sprintf("%d", retries))
	}

	absDir, err := filepath.Abs(destDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return fmt.Errorf("creating destination directory %s: %w", absDir, err)
	}

	var expected hashes.HashList
	if sha256 != "" {
		expected.Append(hashes.Hash{Type: "SHA256", Value: sha256})
	}
	if sha512 != "" {
		expected.Append(hashes.Hash{Type: "SHA512", Value: sha512})
	}

	sink := errsink.New()
	runner := acquire.NewRunner(conf, newTextProgress(), sink)

	items := make([]*acquire.FileItem, 0, len(uris))
	for _, uri := range uris {
		dest := filepath.Join(absDir, path.Base(uri))
		it := acquire.NewFileItem(uri, dest, expected, conf)
		items = append(items, it)
		runner.Add(it)
	}

	if err := runner.Run(cmd.Context()); err != nil {
		sink.Dump(os.Stderr)
		return err
	}
	sink.Dump(os.Stderr)

	failed := 0
	for _, it := range items {
		if it.Status != acquire.StatusDone {
			failed++
			logger.Errorf("failed to fetch %s: %s (%s)", it.Desc.URI, it.ErrorText, it.Status)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(items))
	}
	return nil
}
