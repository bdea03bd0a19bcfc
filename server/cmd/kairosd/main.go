// kairosd 是 Kairos 演示平台的服务端：脚本化对话回放 + 实时视图。
//
// Usage:
//
//	kairosd serve  [--config=server/configs/config.yaml]
//	kairosd play   --agent=<id> [--topic=<n>] [--instant]
//	kairosd agents [--catalog=<path>]
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"kairos-demo/server/internal/config"

	"github.com/spf13/cobra"
)

// version 在构建时通过 -ldflags 注入
var version = "dev"

const defaultConfigPath = "server/configs/config.yaml"

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "kairosd",
		Short:         "Scripted agent-conversation playback server",
		Long:          "kairosd plays scripted PE agent conversations as live chats,\nover HTTP/WebSocket or directly in the terminal.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath, "config file path")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newPlayCmd(opts))
	cmd.AddCommand(newAgentsCmd(opts))
	return cmd
}

// loadConfig 读取配置；未显式指定 --config 且默认文件不存在时使用默认配置。
func (o *rootOptions) loadConfig(cmd *cobra.Command, summary io.Writer) (*config.Config, error) {
	if _, err := os.Stat(o.configPath); errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		return config.Default(), nil
	}
	return config.Load(o.configPath, summary)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
