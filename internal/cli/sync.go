package cli

import (
	"encoding/json"
	"os/signal"
	"syscall"

	"ContractSync/internal/service"

	"github.com/spf13/cobra"
)

// SyncOptions sync 命令参数
type SyncOptions struct {
	*RootOptions
	Reset  bool
	Months int
}

// NewSyncCommand 前台执行一次同步，结束后输出运行摘要
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "同步最近几个月的合同数据",
		Long: `下载回溯窗口内每个月的数据包并入库。已完成的月份会跳过，
未完成的月份从断点记录的批次继续。--reset 忽略已有断点。

Example:
  contractsync sync
  contractsync sync --reset --months 6`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := NewApp(ctx, opts.RootOptions)
			if err != nil {
				return err
			}
			defer app.Close()

			summary, err := app.Sync.Run(ctx, service.RunOptions{Reset: opts.Reset, Months: opts.Months})
			if summary != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(summary); encErr != nil {
					return encErr
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&opts.Reset, "reset", false, "忽略断点，从头开始")
	cmd.Flags().IntVar(&opts.Months, "months", 0, "回溯月份数（默认取配置）")
	return cmd
}
