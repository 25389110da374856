package cli

import (
	"encoding/json"

	"ContractSync/internal/checkpoint"
	"ContractSync/internal/config"
	"ContractSync/internal/notify"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// statusReport 不连数据库即可查看的进度
type statusReport struct {
	Checkpoint *checkpoint.State `json:"checkpoint,omitempty"`
	LastRun    *notify.Summary   `json:"lastRun,omitempty"`
}

// NewStatusCommand 输出断点文件与最近一次运行摘要
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "查看断点进度和最近一次运行摘要",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			rep := readStatus(cfg, newLogger(&cfg.Log, rootOpts.Verbose))
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		},
	}
}

func readStatus(cfg *config.Config, log *logrus.Logger) statusReport {
	var rep statusReport
	if st, err := checkpoint.NewStore(cfg.Sync.CheckpointPath, log).Peek(); err != nil {
		log.WithError(err).Debug("没有可读的断点文件")
	} else {
		rep.Checkpoint = st
	}
	if cfg.Notify.Dir == "" {
		return rep
	}
	if s, err := notify.NewFilesystemPublisher(cfg.Notify.Dir).ReadLatest(); err != nil {
		log.WithError(err).Debug("没有运行摘要")
	} else {
		rep.LastRun = &s
	}
	return rep
}
