package main

import (
	"context"
	"os"

	"ContractSync/internal/cli"

	"github.com/sirupsen/logrus"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		logrus.Errorf("执行失败: %v", err)
		os.Exit(1)
	}
}
