package app

import (
	"context"
	"errors"
	"net"
	"net/http"

	"go.uber.org/zap"

	"card-broker/internal/history"
)

// Serve 启动只读的历史查询接口，阻塞直到 ctx 结束后优雅关闭。
func (a *App) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.Addr)
	if err != nil {
		return err
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:     history.NewHandler(a.history, a.logger.Named("http")),
		ReadTimeout: a.cfg.Server.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	a.logger.Info("历史查询接口已启动", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		a.logger.Error("历史查询接口异常", zap.Error(err))
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Warn("关闭历史查询接口失败", zap.Error(err))
		return err
	}
	a.logger.Info("历史查询接口已停止")
	return nil
}
