package main

import (
	"k8s.io/klog/v2"

	"calcbridge/cmd/server/app"
)

func main() {
	cmd := app.NewAPIServerCommand()
	if err := cmd.Execute(); err != nil {
		klog.Fatalf("run command: %v", err)
	}
}
