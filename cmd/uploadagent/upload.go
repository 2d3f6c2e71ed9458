package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/objectvault/upload-agent/internal/common"
	"github.com/objectvault/upload-agent/internal/rpcclient"
	"github.com/objectvault/upload-agent/internal/session"
)

var (
	projectFlag string
	folderFlag  string
	nameFlag    string
	compress    bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload <path> [path...]",
	Short: "Upload one or more local files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runUpload,
}

func init() {
	uploadCmd.Flags().StringVar(&projectFlag, "project", "", "destination project id or reference")
	uploadCmd.Flags().StringVar(&folderFlag, "folder", "/", "destination folder path within the project")
	uploadCmd.Flags().StringVar(&nameFlag, "name", "", "remote name (defaults to each local file's basename; only valid for a single file)")
	uploadCmd.Flags().BoolVar(&compress, "compress", false, "gzip-compress each part before uploading")
	_ = uploadCmd.MarkFlagRequired("project")
}

func runUpload(cmd *cobra.Command, args []string) error {
	if nameFlag != "" && len(args) > 1 {
		return fmt.Errorf("--name can only be used when uploading a single file")
	}

	logger, closeLogger, err := newLogger()
	if err != nil {
		return err
	}
	defer closeLogger()

	if baseURLFlag == "" {
		return fmt.Errorf("--api-url is required")
	}
	if tokenFlag == "" {
		return fmt.Errorf("--token (or $UPLOADAGENT_TOKEN) is required")
	}

	rpc := rpcclient.NewHTTPClient(baseURLFlag, tokenFlag, nil, logger)

	cfg := session.DefaultConfig()
	cfg.ChunkSize = chunkSizeMiB * 1024 * 1024
	cfg.TryResume = !noResume
	if jobsFlag > 0 {
		cfg.Workers = jobsFlag
	}
	if triesFlag > 0 {
		cfg.Tries = triesFlag
	}

	specs := make([]session.FileSpec, len(args))
	for i, path := range args {
		specs[i] = session.FileSpec{
			LocalPath:   path,
			ProjectSpec: projectFlag,
			Folder:      folderFlag,
			Name:        nameFlag,
			ToCompress:  compress,
		}
	}

	sess := session.New(cfg, rpc, nil, logger)
	ctx := context.Background()
	outcomes, err := sess.Upload(ctx, specs)
	if err != nil {
		return err
	}

	anyFailed := false
	for _, o := range outcomes {
		if o.Failed {
			anyFailed = true
			common.Logf(logger, common.LogError, "%s: FAILED: %v", o.LocalPath, o.Err)
			fmt.Printf("%s: FAILED: %v\n", o.LocalPath, o.Err)
		} else {
			fmt.Printf("%s: uploaded to %s\n", o.LocalPath, o.FileID)
		}
	}
	if anyFailed {
		return fmt.Errorf("one or more files failed to upload")
	}
	return nil
}
