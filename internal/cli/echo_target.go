package cli

import (
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/callproxy/internal/logging"
	"github.com/ppiankov/callproxy/internal/transport"
)

var echoListen string

func init() {
	rootCmd.AddCommand(echoTargetCmd)
	echoTargetCmd.Flags().StringVar(&echoListen, "listen", "127.0.0.1:9901", "Listen address")
}

var echoTargetCmd = &cobra.Command{
	Use:   "echo-target",
	Short: "Run a demo call target",
	Long: `Serves a target for trying the proxy locally. Methods:

  test_call, test_call_key  reply "value"
  test_query                reply "query"
  echo                      reply with the argument bytes
  reject                    fail with InvalidArgument
  trap                      fail with Internal`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := logging.New("info", false)
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		lis, err := net.Listen("tcp", echoListen)
		if err != nil {
			return err
		}
		srv := transport.NewEchoServer(logger)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			srv.GracefulStop()
		}()

		logger.Info("echo target listening", zap.String("addr", lis.Addr().String()))
		return srv.Serve(lis)
	},
}
