package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions 所有子命令共享的参数
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

// NewRootCommand contractsync 根命令
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "contractsync",
		Short: "合同登记册月度数据同步",
		Long: `按月下载合同登记册的XML数据包，识别合同双方并进行地理编码，
与数据库中的合同对账入库，随后提取供应商登记。运行进度写入断点文件，中断后可继续。`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "配置文件路径（默认 ./config/config.yaml）")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "输出调试日志")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewSuppliersCommand(opts))
	cmd.AddCommand(NewAmendmentsCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))

	return cmd
}
