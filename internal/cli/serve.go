package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ContractSync/internal/api"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

// NewServeCommand 启动HTTP服务，通过接口触发同步
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动HTTP服务（同步触发、状态、指标、pprof）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := NewApp(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()

			if port == 0 {
				port = app.Config.Server.Port
			}
			gin.SetMode(app.Config.Server.Mode)
			app.Logger.Infof("Gin运行模式: %s", app.Config.Server.Mode)

			h := api.NewSyncHandler(ctx, app.Sync, app.Suppliers, app.Amendments, app.Logger)
			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", port),
				Handler:           api.NewRouter(h, app.Metrics),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				app.Logger.Infof("服务启动成功，端口：%d", port)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("启动服务失败: %w", err)
			case <-ctx.Done():
				app.Logger.Info("收到退出信号，关闭服务")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				err := srv.Shutdown(shutdownCtx)
				// 后台同步随 ctx 取消，等它写完断点再关闭数据库和缓存
				app.Sync.Wait()
				return err
			}
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "监听端口（默认取配置）")
	return cmd
}
