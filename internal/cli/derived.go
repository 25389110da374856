package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSuppliersCommand 对全部合同执行供应商提取
func NewSuppliersCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "suppliers",
		Short: "从全部合同中提取供应商登记",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()

			created, err := app.Suppliers.ExtractAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "新建供应商: %d\n", created)
			return nil
		},
	}
}

// NewAmendmentsCommand 为尚无补充协议的合同生成合成数据
func NewAmendmentsCommand(rootOpts *RootOptions) *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "amendments",
		Short: "生成合成补充协议（演示数据，标记 synthetic）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("生成的是合成数据，请加 --yes 确认")
			}
			app, err := NewApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()

			created, err := app.Amendments.CreateAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "生成合成补充协议: %d\n", created)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&confirm, "yes", "y", false, "确认生成合成数据")
	return cmd
}
